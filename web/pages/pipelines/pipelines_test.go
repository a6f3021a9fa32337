package pipelines

import (
	"context"
	"strings"
	"testing"

	"github.com/narvanalabs/pipeline-console/web/api"
)

func render(t *testing.T, d Data) string {
	t.Helper()
	var sb strings.Builder
	if err := Page(d).Render(context.Background(), &sb); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return sb.String()
}

func TestPageKeepsFormValues(t *testing.T) {
	out := render(t, Data{Spec: `{"name":"<x>"}`, DryRun: true, PipelineID: "4"})
	for _, want := range []string{
		`id="pipelines" data-fragment="pipelines"`,
		"{&#34;name&#34;:&#34;&lt;x&gt;&#34;}</textarea>",
		`value="true" checked>`,
		`name="pipeline_id" placeholder="e.g. 1"`,
		`value="4"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(render(t, Data{}), " checked") {
		t.Error("dry run checked by default")
	}
}

func TestGraphOverlayColumns(t *testing.T) {
	two := 2
	plain := render(t, Data{Graph: &api.Graph{Nodes: []api.GraphNode{{ID: 1, Name: "read", Type: "CSV_READER"}}}})
	if strings.Contains(plain, "Attempts") {
		t.Error("overlay columns without run state")
	}

	overlay := render(t, Data{Graph: &api.Graph{Nodes: []api.GraphNode{
		{ID: 1, Name: "read", Type: "CSV_READER", Status: "SUCCEEDED", Attempts: &two},
		{ID: 2, Name: "score", Type: "LLM_SENTIMENT", Attempts: &two},
	}}})
	for _, want := range []string{">Attempts</th>", "bg-emerald-900", ">2</td>", ">-</td>", "No edges"} {
		if !strings.Contains(overlay, want) {
			t.Errorf("overlay missing %q", want)
		}
	}
}
