package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func propertyParameters() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	return parameters
}

// **Feature: pipeline-console, Property 1: Non-2xx Responses Fail With Their Status**
// *For any* non-2xx status, the client SHALL return an error whose message
// contains the numeric status code.

func TestNon2xxErrorContainsStatus(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("error message contains the status code", prop.ForAll(
		func(code int, body string) bool {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
				fmt.Fprint(w, body)
			}))
			defer server.Close()

			_, err := NewClient(server.URL).Get(context.Background(), "/runs", nil)
			if err == nil {
				t.Logf("status %d produced no error", code)
				return false
			}
			if !strings.Contains(err.Error(), fmt.Sprint(code)) {
				t.Logf("error %q lacks status %d", err, code)
				return false
			}
			return IsStatus(err, code)
		},
		gen.IntRange(400, 599),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// **Feature: pipeline-console, Property 2: Response Parsing Follows Content Type**
// *For any* successful response, a JSON content type SHALL yield a decoded
// document and any other content type SHALL yield the raw text.

func TestResponseParsingFollowsContentType(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("JSON responses are decoded", prop.ForAll(
		func(n int, name string) bool {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				json.NewEncoder(w).Encode(map[string]any{"count": n, "name": name})
			}))
			defer server.Close()

			p, err := NewClient(server.URL).Get(context.Background(), "/queue/size", nil)
			if err != nil || !p.IsJSON() {
				return false
			}
			var out struct {
				Count int    `json:"count"`
				Name  string `json:"name"`
			}
			if err := p.Decode(&out); err != nil {
				return false
			}
			return out.Count == n && out.Name == name && p.Text == ""
		},
		gen.Int(),
		gen.AlphaString(),
	))

	properties.Property("other responses are text", prop.ForAll(
		func(text string) bool {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				fmt.Fprint(w, text)
			}))
			defer server.Close()

			p, err := NewClient(server.URL).Get(context.Background(), "/health", nil)
			if err != nil {
				return false
			}
			return !p.IsJSON() && p.Text == text && p.Pretty() == text
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// **Feature: pipeline-console, Property 3: API Key Header Presence**
// *For any* request, the API key header SHALL be present exactly when a key
// is configured, with the configured value.

func TestAPIKeyHeaderPresence(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("key header mirrors the stored key", prop.ForAll(
		func(key string) bool {
			var got []string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Values("X-API-Key")
				if r.Header.Get("Accept") != "application/json" {
					w.WriteHeader(http.StatusNotAcceptable)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `{"count":0}`)
			}))
			defer server.Close()

			if _, err := NewClient(server.URL).WithAPIKey(key).QueueSize(context.Background(), "1"); err != nil {
				return false
			}
			if key == "" {
				return len(got) == 0
			}
			return len(got) == 1 && got[0] == key
		},
		gen.OneGenOf(gen.Const(""), gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func TestCustomKeyHeader(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization-Key")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewClient(server.URL, WithKeyHeader("Authorization-Key")).WithAPIKey("k1")
	p, err := c.PostEmpty(context.Background(), "/admin/cleanup", nil)
	if err != nil {
		t.Fatalf("PostEmpty: %v", err)
	}
	if got != "k1" {
		t.Fatalf("header = %q, want k1", got)
	}
	if p.IsJSON() || p.Text != "" {
		t.Fatalf("empty body parsed as %+v", p)
	}
}

// **Feature: pipeline-console, Property 4: Identifier Extraction**
// *For any* positive id, an import response SHALL yield it from {id},
// {pipeline_id} or {pipeline:{id}}, and a start-run response from {id} or
// {run:{id}}.

func TestIdentifierExtraction(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	decode := func(doc string) any {
		p, err := parsePayload("application/json", []byte(doc))
		if err != nil {
			return nil
		}
		return p.Value
	}

	properties.Property("pipeline id from every accepted shape", prop.ForAll(
		func(id int64) bool {
			want := fmt.Sprint(id)
			for _, doc := range []string{
				fmt.Sprintf(`{"id":%d}`, id),
				fmt.Sprintf(`{"pipeline_id":%d,"name":"demo"}`, id),
				fmt.Sprintf(`{"pipeline":{"id":%d,"name":"demo"}}`, id),
			} {
				if got := PipelineIDOf(decode(doc)); got != want {
					t.Logf("%s: got %q want %q", doc, got, want)
					return false
				}
			}
			return true
		},
		gen.Int64Range(1, 1<<53),
	))

	properties.Property("run id from every accepted shape", prop.ForAll(
		func(id int64) bool {
			want := fmt.Sprint(id)
			return RunIDOf(decode(fmt.Sprintf(`{"id":%d}`, id))) == want &&
				RunIDOf(decode(fmt.Sprintf(`{"run":{"id":%d,"status":"QUEUED"},"enqueued_roots":1}`, id))) == want
		},
		gen.Int64Range(1, 1<<53),
	))

	properties.TestingRun(t)

	if got := RunIDOf(decode(`{"status":"QUEUED"}`)); got != "" {
		t.Fatalf("missing id extracted as %q", got)
	}
}

func TestGraphDecodesEdgeSpellings(t *testing.T) {
	doc := `{"pipeline_id":3,"nodes":[{"id":1,"name":"csv","type":"CSV_READER","status":"SUCCEEDED","attempts":1}],
		"edges":[{"id":9,"from_id":1,"to_id":2},{"from":"csv","to":"sent"},{"source":"a","target":"b"}]}`

	var g Graph
	if err := json.Unmarshal([]byte(doc), &g); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []GraphEdge{{ID: "9", Source: "1", Target: "2"}, {Source: "csv", Target: "sent"}, {Source: "a", Target: "b"}}
	if len(g.Edges) != len(want) {
		t.Fatalf("edges = %+v", g.Edges)
	}
	for i := range want {
		if g.Edges[i] != want[i] {
			t.Errorf("edge %d = %+v, want %+v", i, g.Edges[i], want[i])
		}
	}
	if !g.HasRunOverlay() {
		t.Error("run overlay not detected")
	}
}

func TestArtifactPreviewSpellings(t *testing.T) {
	var items []Artifact
	doc := `[{"id":1,"kind":"csv","preview":{"filename":"a.csv"}},
		{"id":2,"block_run_id":7,"kind":"json","preview_json":{"filename":"b.json"}},
		{"id":3,"kind":"txt","preview_json":"not an object"}]`
	if err := json.Unmarshal([]byte(doc), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if items[0].Filename() != "a.csv" || items[1].Filename() != "b.json" || items[2].Filename() != "" {
		t.Fatalf("filenames = %q %q %q", items[0].Filename(), items[1].Filename(), items[2].Filename())
	}
	if items[1].BlockRunID == nil || *items[1].BlockRunID != 7 || items[0].BlockRunID != nil {
		t.Fatal("block_run_id not decoded")
	}
}

func TestStatusClass(t *testing.T) {
	tests := map[string]string{
		"SUCCEEDED": "ok",
		"FAILED":    "err",
		"RUNNING":   "run",
		"QUEUED":    "run",
		"":          "run",
	}
	for status, want := range tests {
		if got := StatusClass(status); got != want {
			t.Errorf("StatusClass(%q) = %q, want %q", status, got, want)
		}
	}
}

// **Feature: pipeline-console, Property 5: Download Resolution**
// *For any* artifact, the download URL SHALL be the resolved signed URL when
// signing succeeds and the fallback download URL when it fails.

func TestDownloadResolution(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("signed or fallback", prop.ForAll(
		func(id int64, signOK bool, token string) bool {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !signOK {
					http.Error(w, "signing disabled", http.StatusInternalServerError)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprintf(w, `{"url":"/artifacts/%d/download?sig=%s"}`, id, token)
			}))
			defer server.Close()

			c := NewClient(server.URL)
			got, signed := c.ResolveArtifactURL(context.Background(), id)
			if signed != signOK {
				return false
			}
			if signOK {
				return got == fmt.Sprintf("%s/artifacts/%d/download?sig=%s", server.URL, id, token)
			}
			return got == c.ArtifactDownloadURL(id) &&
				got == fmt.Sprintf("%s/artifacts/%d/download", server.URL, id)
		},
		gen.Int64Range(1, 1<<40),
		gen.Bool(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestResolveURLKeepsAbsolute(t *testing.T) {
	c := NewClient("http://orchestrator:8000/")
	got, err := c.ResolveURL("https://bucket.example.com/obj?sig=1")
	if err != nil || got != "https://bucket.example.com/obj?sig=1" {
		t.Fatalf("ResolveURL = %q, %v", got, err)
	}
}

func TestRequestsHonourContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(server.URL).Timeline(ctx, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestEndpointsUseDocumentedPaths(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.RequestURI())
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/graph"):
			fmt.Fprint(w, `{"nodes":[],"edges":[]}`)
		case r.URL.Path == "/runs":
			fmt.Fprint(w, `{"page":1,"page_size":20,"total":0,"items":[]}`)
		case strings.HasSuffix(r.URL.Path, "/timeline"), strings.HasSuffix(r.URL.Path, "/artifacts"):
			fmt.Fprint(w, `[]`)
		default:
			fmt.Fprint(w, `{}`)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	c := NewClient(server.URL)
	c.ListRuns(ctx, 1, 20)
	c.Timeline(ctx, 4)
	c.Progress(ctx, 4)
	c.Artifacts(ctx, 4)
	c.ImportPipeline(ctx, map[string]any{"name": "demo"}, true)
	c.StartRun(ctx, "5")
	c.PipelineGraph(ctx, "5", "4")
	c.Cleanup(ctx, 7)
	c.StreamPublish(ctx, PublishRequest{Topic: "t", Key: "k", Value: 1})
	c.StreamConsume(ctx, "t", 10, 500*time.Millisecond)

	want := []string{
		"GET /runs?page=1&page_size=20",
		"GET /runs/4/timeline",
		"GET /runs/4/progress",
		"GET /runs/4/artifacts",
		"POST /pipelines/import?dry_run=true",
		"POST /pipelines/5/run",
		"GET /pipelines/5/graph?run_id=4",
		"POST /admin/cleanup?older_than_days=7",
		"POST /stream/publish",
		"GET /stream/consume?max_messages=10&timeout_ms=500&topic=t",
	}
	if strings.Join(seen, "\n") != strings.Join(want, "\n") {
		t.Fatalf("requests:\n%s\nwant:\n%s", strings.Join(seen, "\n"), strings.Join(want, "\n"))
	}

	if _, err := c.StartRun(ctx, " "); err == nil {
		t.Fatal("StartRun accepted an empty pipeline id")
	}
}
