package route

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestParse(t *testing.T) {
	tests := []struct {
		hash string
		want Route
	}{
		{"", Runs},
		{"#", Runs},
		{"#/", Runs},
		{"#/runs", Runs},
		{"#/runs/42", Route{View: ViewRunDetail, RunID: 42}},
		{"#/runs/42/", Route{View: ViewRunDetail, RunID: 42}},
		{"#/runs/abc", Runs},
		{"#/runs/0", Runs},
		{"#/runs/-3", Runs},
		{"#/pipelines", Route{View: ViewPipelines}},
		{"#/tools", Route{View: ViewTools}},
		{"#/logs", Route{View: ViewLogs}},
		{"#/unknown", Runs},
		{"  #/tools  ", Route{View: ViewTools}},
	}
	for _, tt := range tests {
		if got := Parse(tt.hash); got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.hash, got, tt.want)
		}
	}
}

func TestPathAndSection(t *testing.T) {
	detail := Route{View: ViewRunDetail, RunID: 7}
	if detail.Path() != "/runs/7" || detail.Hash() != "#/runs/7" {
		t.Fatalf("detail path = %q hash = %q", detail.Path(), detail.Hash())
	}
	if detail.Section() != ViewRuns {
		t.Fatalf("detail section = %q", detail.Section())
	}
	if (Route{}).Path() != "/runs" || (Route{View: ViewLogs}).Section() != ViewLogs {
		t.Fatal("zero route does not map to runs")
	}
}

// **Feature: pipeline-console, Property 8: Route Parsing**
// *For any* positive run id, "#/runs/{id}" SHALL resolve to the run detail
// view with that id and Path/Parse SHALL round trip; *for any* unknown first
// segment the runs list SHALL be chosen.

func TestRouteProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("run detail hashes carry their id", prop.ForAll(
		func(id int64) bool {
			r := Parse(fmt.Sprintf("#/runs/%d", id))
			return r.View == ViewRunDetail && r.RunID == id && Parse(r.Hash()) == r && ParsePath(r.Path()) == r
		},
		gen.Int64Range(1, 1<<62),
	))

	properties.Property("unknown sections fall back to runs", prop.ForAll(
		func(segment string) bool {
			switch segment {
			case "runs", "pipelines", "tools", "logs":
				return true
			}
			return Parse("#/"+segment) == Runs
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
