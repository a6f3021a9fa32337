package main

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/narvanalabs/pipeline-console/internal/pipelinespec"
	"github.com/narvanalabs/pipeline-console/internal/route"
	"github.com/narvanalabs/pipeline-console/web/api"
	"github.com/narvanalabs/pipeline-console/web/pages/pipelines"
)

const (
	msgEnterPipelineID = "Enter a pipeline id"
	msgRunStarted      = "Run started"
)

// pipelinesForm reads the shared pipelines form fields. A body that does not
// parse is answered with 400 and ok is false.
func (s *server) pipelinesForm(w http.ResponseWriter, r *http.Request) (pipelines.Data, bool) {
	if err := r.ParseForm(); err != nil {
		s.requestLogger(r).Warn("invalid pipelines form", "error", err)
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return pipelines.Data{}, false
	}
	return pipelines.Data{
		Spec:       r.FormValue("spec"),
		DryRun:     r.FormValue("dry_run") == "true",
		PipelineID: strings.TrimSpace(r.FormValue("pipeline_id")),
		RunID:      strings.TrimSpace(r.FormValue("run_id")),
	}, true
}

func (s *server) renderPipelines(w http.ResponseWriter, r *http.Request, d pipelines.Data) {
	page := pipelines.Page(d)
	s.pageOrFragment(w, r, pipelines.Fragment, "Pipelines", page, page)
}

func (s *server) handlePipelines(w http.ResponseWriter, r *http.Request) {
	s.renderPipelines(w, r, pipelines.Data{})
}

func (s *server) handlePipelineDemo(w http.ResponseWriter, r *http.Request) {
	d, ok := s.pipelinesForm(w, r)
	if !ok {
		return
	}
	d.Spec = pipelinespec.DemoText()
	s.renderPipelines(w, r, d)
}

// handlePipelineImport parses the editor text and imports it. Parse and
// request failures are shown next to the editor.
func (s *server) handlePipelineImport(w http.ResponseWriter, r *http.Request) {
	d, ok := s.pipelinesForm(w, r)
	if !ok {
		return
	}

	spec, err := pipelinespec.Parse(d.Spec)
	if err != nil {
		var pe *pipelinespec.ParseError
		if errors.As(err, &pe) {
			s.requestLogger(r).Info("pipeline spec rejected", "format", pe.Format, "error", pe.Err)
		}
		d.ImportMessage = err.Error()
		s.renderPipelines(w, r, d)
		return
	}

	payload, err := s.clientFor(r).ImportPipeline(r.Context(), spec, d.DryRun)
	if err != nil {
		s.requestLogger(r).Warn("pipeline import failed", "dry_run", d.DryRun, "error", err)
		d.ImportMessage = err.Error()
		s.renderPipelines(w, r, d)
		return
	}

	d.ImportOutput = payload.Pretty()
	if id := api.PipelineIDOf(payload.Value); id != "" {
		d.PipelineID = id
		s.requestLogger(r).Info("pipeline imported", "pipeline_id", id, "dry_run", d.DryRun)
	}
	s.renderPipelines(w, r, d)
}

// handlePipelineRun starts a run and opens it when the response names it.
func (s *server) handlePipelineRun(w http.ResponseWriter, r *http.Request) {
	d, ok := s.pipelinesForm(w, r)
	if !ok {
		return
	}
	if d.PipelineID == "" {
		d.Error = msgEnterPipelineID
		s.renderPipelines(w, r, d)
		return
	}

	payload, err := s.clientFor(r).StartRun(r.Context(), d.PipelineID)
	if err != nil {
		s.requestLogger(r).Warn("failed to start run", "pipeline_id", d.PipelineID, "error", err)
		d.Error = err.Error()
		s.renderPipelines(w, r, d)
		return
	}

	runID := api.RunIDOf(payload.Value)
	s.requestLogger(r).Info("run started", "pipeline_id", d.PipelineID, "run_id", runID)
	if rt := route.ParsePath("/runs/" + url.PathEscape(runID)); runID != "" && rt.View == route.ViewRunDetail {
		http.Redirect(w, r, rt.Path(), http.StatusSeeOther)
		return
	}

	d.Started = msgRunStarted
	if runID != "" {
		d.Started += " #" + runID
	}
	s.renderPipelines(w, r, d)
}

func (s *server) handlePipelineGraph(w http.ResponseWriter, r *http.Request) {
	d, ok := s.pipelinesForm(w, r)
	if !ok {
		return
	}
	if d.PipelineID == "" {
		d.Error = msgEnterPipelineID
		s.renderPipelines(w, r, d)
		return
	}

	graph, err := s.clientFor(r).PipelineGraph(r.Context(), d.PipelineID, d.RunID)
	if err != nil {
		s.requestLogger(r).Warn("failed to load graph", "pipeline_id", d.PipelineID, "error", err)
		d.Error = err.Error()
	} else {
		d.Graph = graph
	}
	s.renderPipelines(w, r, d)
}
