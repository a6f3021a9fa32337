package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/narvanalabs/pipeline-console/internal/result"
	"github.com/narvanalabs/pipeline-console/internal/route"
	"github.com/narvanalabs/pipeline-console/pkg/logger"
	"github.com/narvanalabs/pipeline-console/web/api"
	"github.com/narvanalabs/pipeline-console/web/pages/runs"
)

const (
	runsPage     = 1
	runsPageSize = 20
)

func (s *server) handleRuns(w http.ResponseWriter, r *http.Request) {
	page, err := s.clientFor(r).ListRuns(r.Context(), runsPage, runsPageSize)
	res := result.Of(page, err)
	if !res.IsOk() {
		s.requestLogger(r).Warn("failed to list runs", "error", res.Err())
	}

	data := runs.ListData{Error: res.Message()}
	if p := res.OrDefault(nil); p != nil {
		data.Runs = p.Items
		data.Total = p.Total
	}
	s.page(w, r, "Runs", runs.List(data))
}

func (s *server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathID(r, "runID")
	if !ok {
		http.Redirect(w, r, route.Runs.Path(), http.StatusFound)
		return
	}

	ctx := logger.ContextWithRunID(r.Context(), strconv.FormatInt(runID, 10))
	data, err := s.loadRunDetail(ctx, runID, s.clientFor(r))
	if err != nil {
		// The browser went away; late results are dropped.
		s.requestLogger(r).Debug("run detail abandoned", "run_id", runID, "error", err)
		return
	}
	s.page(w, r, "Run #"+strconv.FormatInt(runID, 10), runs.Detail(data))
}

// loadRunDetail fetches timeline, progress and artifacts in parallel. Each
// failure is swallowed into an empty value. If ctx ends before all three
// return, the results are discarded and ctx's error is returned.
func (s *server) loadRunDetail(ctx context.Context, runID int64, c *api.Client) (runs.DetailData, error) {
	var (
		timeline  result.Result[[]api.BlockEvent]
		progress  result.Result[*api.Payload]
		artifacts result.Result[[]api.Artifact]
	)

	var g errgroup.Group
	g.Go(func() error {
		timeline = result.Of(c.Timeline(ctx, runID))
		return nil
	})
	g.Go(func() error {
		progress = result.Of(c.Progress(ctx, runID))
		return nil
	})
	g.Go(func() error {
		artifacts = result.Of(c.Artifacts(ctx, runID))
		return nil
	})
	g.Wait()

	if err := ctx.Err(); err != nil {
		return runs.DetailData{}, err
	}

	log := s.logger.WithContext(ctx)
	for name, err := range map[string]error{
		"timeline":  timeline.Err(),
		"progress":  progress.Err(),
		"artifacts": artifacts.Err(),
	} {
		if err != nil {
			log.Debug("run detail section unavailable", "section", name, "error", err)
		}
	}

	return runs.DetailData{
		RunID:     runID,
		Timeline:  timeline.OrDefault(nil),
		Progress:  progress.OrDefault(nil),
		Artifacts: artifacts.OrDefault(nil),
	}, nil
}

// handleArtifactDownload sends the browser to the signed artifact URL, or to
// the direct download URL when signing fails.
func (s *server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathID(r, "runID")
	if !ok {
		http.Redirect(w, r, route.Runs.Path(), http.StatusFound)
		return
	}
	artifactID, ok := pathID(r, "artifactID")
	if !ok {
		http.Redirect(w, r, route.Route{View: route.ViewRunDetail, RunID: runID}.Path(), http.StatusFound)
		return
	}

	target, signed := s.clientFor(r).ResolveArtifactURL(r.Context(), artifactID)
	s.requestLogger(r).Debug("artifact download", "run_id", runID, "artifact_id", artifactID, "signed", signed)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// pathID parses a positive numeric URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
