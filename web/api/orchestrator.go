package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ListRuns fetches one page of run summaries.
func (c *Client) ListRuns(ctx context.Context, page, pageSize int) (*RunPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	p, err := c.Get(ctx, "/runs", q)
	if err != nil {
		return nil, err
	}
	var out RunPage
	if err := p.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Timeline fetches the block events of a run in server order.
func (c *Client) Timeline(ctx context.Context, runID int64) ([]BlockEvent, error) {
	p, err := c.Get(ctx, runPath(runID, "timeline"), nil)
	if err != nil {
		return nil, err
	}
	var events []BlockEvent
	if err := p.Decode(&events); err != nil {
		return nil, err
	}
	return events, nil
}

// Progress fetches the progress document of a run. Its shape is owned by the server.
func (c *Client) Progress(ctx context.Context, runID int64) (*Payload, error) {
	return c.Get(ctx, runPath(runID, "progress"), nil)
}

// Artifacts lists the artifacts of a run.
func (c *Client) Artifacts(ctx context.Context, runID int64) ([]Artifact, error) {
	p, err := c.Get(ctx, runPath(runID, "artifacts"), nil)
	if err != nil {
		return nil, err
	}
	var artifacts []Artifact
	if err := p.Decode(&artifacts); err != nil {
		return nil, err
	}
	return artifacts, nil
}

// SignArtifact asks the server for a signed download URL and resolves it against the base.
func (c *Client) SignArtifact(ctx context.Context, artifactID int64) (string, error) {
	p, err := c.Get(ctx, fmt.Sprintf("/artifacts/%d/sign", artifactID), nil)
	if err != nil {
		return "", err
	}
	var signed struct {
		URL string `json:"url"`
	}
	if err := p.Decode(&signed); err != nil {
		return "", err
	}
	if signed.URL == "" {
		return "", fmt.Errorf("sign response has no url")
	}
	return c.ResolveURL(signed.URL)
}

// ArtifactDownloadURL is the direct download URL of an artifact.
func (c *Client) ArtifactDownloadURL(artifactID int64) string {
	return fmt.Sprintf("%s/artifacts/%d/download", c.baseURL, artifactID)
}

// ResolveArtifactURL returns the signed URL when signing succeeds and the
// direct download URL when it fails for any reason.
func (c *Client) ResolveArtifactURL(ctx context.Context, artifactID int64) (string, bool) {
	signed, err := c.SignArtifact(ctx, artifactID)
	if err != nil {
		return c.ArtifactDownloadURL(artifactID), false
	}
	return signed, true
}

// ImportPipeline posts a parsed pipeline spec. With dryRun the server only validates it.
func (c *Client) ImportPipeline(ctx context.Context, spec any, dryRun bool) (*Payload, error) {
	var q url.Values
	if dryRun {
		q = url.Values{"dry_run": {"true"}}
	}
	return c.postJSON(ctx, "/pipelines/import", q, spec)
}

// StartRun starts a run of the pipeline.
func (c *Client) StartRun(ctx context.Context, pipelineID string) (*Payload, error) {
	if strings.TrimSpace(pipelineID) == "" {
		return nil, fmt.Errorf("pipeline id is required")
	}
	return c.PostEmpty(ctx, "/pipelines/"+url.PathEscape(pipelineID)+"/run", nil)
}

// PipelineGraph fetches the node/edge graph of a pipeline. A non-empty runID
// asks the server to overlay block statuses of that run.
func (c *Client) PipelineGraph(ctx context.Context, pipelineID, runID string) (*Graph, error) {
	if strings.TrimSpace(pipelineID) == "" {
		return nil, fmt.Errorf("pipeline id is required")
	}
	var q url.Values
	if runID != "" {
		q = url.Values{"run_id": {runID}}
	}
	p, err := c.Get(ctx, "/pipelines/"+url.PathEscape(pipelineID)+"/graph", q)
	if err != nil {
		return nil, err
	}
	var g Graph
	if err := p.Decode(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

// QueueSize reports the queue size, scoped to a run when runID is set.
func (c *Client) QueueSize(ctx context.Context, runID string) (*Payload, error) {
	return c.Get(ctx, "/queue/size", url.Values{"run_id": {runID}})
}

// Cleanup deletes finished runs older than the given number of days.
func (c *Client) Cleanup(ctx context.Context, olderThanDays int) (*Payload, error) {
	return c.PostEmpty(ctx, "/admin/cleanup", url.Values{"older_than_days": {strconv.Itoa(olderThanDays)}})
}

// StreamPublish publishes a message on the orchestrator's message stream.
func (c *Client) StreamPublish(ctx context.Context, req PublishRequest) (*Payload, error) {
	return c.PostJSON(ctx, "/stream/publish", req)
}

// StreamConsume reads up to maxMessages from a topic, waiting at most timeout.
func (c *Client) StreamConsume(ctx context.Context, topic string, maxMessages int, timeout time.Duration) (*Payload, error) {
	q := url.Values{}
	q.Set("topic", topic)
	q.Set("max_messages", strconv.Itoa(maxMessages))
	q.Set("timeout_ms", strconv.FormatInt(timeout.Milliseconds(), 10))
	return c.Get(ctx, "/stream/consume", q)
}

// Health checks that the orchestrator answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Get(ctx, "/health", nil)
	return err
}

func runPath(runID int64, leaf string) string {
	return fmt.Sprintf("/runs/%d/%s", runID, leaf)
}
