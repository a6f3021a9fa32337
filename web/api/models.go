package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Run statuses the orchestrator reports. Status is free-form; these are the usual values.
const (
	RunStatusQueued    = "QUEUED"
	RunStatusRunning   = "RUNNING"
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
)

// Run represents a pipeline run summary from the API.
type Run struct {
	ID            int64  `json:"id"`
	PipelineID    int64  `json:"pipeline_id"`
	Status        string `json:"status"`
	StartedAt     string `json:"started_at,omitempty"`
	FinishedAt    string `json:"finished_at,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// StatusClass buckets the run status into ok, err or run for badge styling.
func (r Run) StatusClass() string {
	return StatusClass(r.Status)
}

// StatusClass buckets a run status string into ok, err or run.
func StatusClass(status string) string {
	switch strings.ToUpper(status) {
	case RunStatusSucceeded:
		return "ok"
	case RunStatusFailed:
		return "err"
	default:
		return "run"
	}
}

// RunPage is one page of the runs listing.
type RunPage struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int   `json:"total"`
	Items    []Run `json:"items"`
}

// BlockEvent is one timeline entry of a run.
type BlockEvent struct {
	TS        string `json:"ts,omitempty"`
	Type      string `json:"type,omitempty"`
	BlockName string `json:"block_name,omitempty"`
	WorkerID  string `json:"worker_id,omitempty"`
}

// ArtifactPreview is the subset of an artifact preview the console displays.
type ArtifactPreview struct {
	Filename string `json:"filename,omitempty"`
}

// Artifact represents an artifact produced by a run.
type Artifact struct {
	ID         int64            `json:"id"`
	BlockRunID *int64           `json:"block_run_id,omitempty"`
	Kind       string           `json:"kind"`
	URI        string           `json:"uri,omitempty"`
	Preview    *ArtifactPreview `json:"preview,omitempty"`
}

// UnmarshalJSON accepts the preview under either "preview" or "preview_json".
// A preview that is not an object is ignored rather than failing the artifact.
func (a *Artifact) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          int64           `json:"id"`
		BlockRunID  *int64          `json:"block_run_id"`
		Kind        string          `json:"kind"`
		URI         string          `json:"uri"`
		Preview     json.RawMessage `json:"preview"`
		PreviewJSON json.RawMessage `json:"preview_json"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.ID = raw.ID
	a.BlockRunID = raw.BlockRunID
	a.Kind = raw.Kind
	a.URI = raw.URI
	a.Preview = nil

	for _, candidate := range []json.RawMessage{raw.Preview, raw.PreviewJSON} {
		var p ArtifactPreview
		if len(candidate) == 0 || json.Unmarshal(candidate, &p) != nil {
			continue
		}
		if p.Filename != "" {
			a.Preview = &p
			break
		}
	}
	return nil
}

// Filename returns the preview filename, or "" when there is none.
func (a Artifact) Filename() string {
	if a.Preview == nil {
		return ""
	}
	return a.Preview.Filename
}

// GraphNode is a block of a pipeline graph.
type GraphNode struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Status   string `json:"status,omitempty"`
	Attempts *int   `json:"attempts,omitempty"`
}

// GraphEdge connects two blocks of a pipeline graph.
type GraphEdge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"from"`
	Target string `json:"to"`
}

// UnmarshalJSON accepts from/to, from_id/to_id and source/target spellings.
func (e *GraphEdge) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.ID = flexString(raw["id"])
	e.Source = firstNonEmpty(flexString(raw["from"]), flexString(raw["from_id"]), flexString(raw["source"]))
	e.Target = firstNonEmpty(flexString(raw["to"]), flexString(raw["to_id"]), flexString(raw["target"]))
	return nil
}

// Graph is the node/edge view of a pipeline.
type Graph struct {
	PipelineID int64       `json:"pipeline_id,omitempty"`
	Nodes      []GraphNode `json:"nodes"`
	Edges      []GraphEdge `json:"edges"`
}

// HasRunOverlay reports whether any node carries run status.
func (g *Graph) HasRunOverlay() bool {
	for _, n := range g.Nodes {
		if n.Status != "" || n.Attempts != nil {
			return true
		}
	}
	return false
}

// PublishRequest is the body of a stream publish call.
type PublishRequest struct {
	Topic string `json:"topic"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// PipelineIDOf extracts a new pipeline id from an import response.
// Accepted shapes are {pipeline:{id}}, {id} and {pipeline_id}.
func PipelineIDOf(v any) string {
	return firstID(v, []string{"pipeline", "id"}, []string{"id"}, []string{"pipeline_id"})
}

// RunIDOf extracts a new run id from a start-run response.
// Accepted shapes are {run:{id}} and {id}.
func RunIDOf(v any) string {
	return firstID(v, []string{"run", "id"}, []string{"id"})
}

func firstID(v any, paths ...[]string) string {
	for _, path := range paths {
		if id := idString(lookup(v, path)); id != "" {
			return id
		}
	}
	return ""
}

func lookup(v any, path []string) any {
	cur := v
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func idString(v any) string {
	switch id := v.(type) {
	case json.Number:
		return id.String()
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return ""
	}
}

// flexString renders a JSON scalar as a string; null and missing become "".
func flexString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
