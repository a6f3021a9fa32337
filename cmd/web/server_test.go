package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/narvanalabs/pipeline-console/internal/livelog"
	"github.com/narvanalabs/pipeline-console/internal/session"
	"github.com/narvanalabs/pipeline-console/pkg/config"
	"github.com/narvanalabs/pipeline-console/pkg/logger"
	"github.com/narvanalabs/pipeline-console/web/api"
	"github.com/narvanalabs/pipeline-console/web/health"
)

// recorded is one request seen by the fake orchestrator.
type recorded struct {
	Method string
	URI    string
	Key    string
	Body   string
}

// fakeOrchestrator serves canned responses per "METHOD path".
type fakeOrchestrator struct {
	mu       sync.Mutex
	requests []recorded
	routes   map[string]http.HandlerFunc
}

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{routes: map[string]http.HandlerFunc{}}
}

func (f *fakeOrchestrator) handle(pattern string, h http.HandlerFunc) {
	f.routes[pattern] = h
}

func (f *fakeOrchestrator) json(pattern string, status int, body string) {
	f.handle(pattern, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	})
}

func (f *fakeOrchestrator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recorded{
		Method: r.Method,
		URI:    r.URL.RequestURI(),
		Key:    r.Header.Get("X-API-Key"),
		Body:   string(body),
	})
	h := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if h == nil {
		http.Error(w, "no route", http.StatusNotFound)
		return
	}
	h(w, r)
}

func (f *fakeOrchestrator) seen() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.requests...)
}

func (f *fakeOrchestrator) find(method, path string) (recorded, bool) {
	for _, r := range f.seen() {
		if r.Method == method && strings.SplitN(r.URI, "?", 2)[0] == path {
			return r, true
		}
	}
	return recorded{}, false
}

// logSink collects console log output across request goroutines.
type logSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *logSink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *logSink) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

type harness struct {
	logs    *logSink
	orch    *fakeOrchestrator
	api     *httptest.Server
	console *httptest.Server
	srv     *server
	client  *http.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	orch := newFakeOrchestrator()
	apiServer := httptest.NewServer(orch)
	t.Cleanup(apiServer.Close)

	cfg := config.LoadWithDefaults()
	cfg.APIBase = apiServer.URL
	cfg.APIKeyHeader = api.DefaultKeyHeader
	cfg.LiveLog.BufferLines = 500
	cfg.LiveLog.DefaultTopic = livelog.DefaultTopic

	logs := &logSink{}
	log := logger.NewWithWriter(logs, slog.LevelDebug, true)
	codec, err := session.NewCodec("console-test-secret-with-32-characters", "", time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	client := api.NewClient(apiServer.URL)
	srv := newServer(cfg, log, client,
		session.NewManager(codec, false, log.Logger),
		livelog.NewRegistry(log.Logger),
		health.NewChecker(client.Health, "test"))

	console := httptest.NewServer(srv.routes())
	t.Cleanup(console.Close)

	jar, _ := cookiejar.New(nil)
	return &harness{
		logs:    logs,
		orch:    orch,
		api:     apiServer,
		console: console,
		srv:     srv,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (h *harness) get(t *testing.T, path string, header ...string) (*http.Response, string) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, h.console.URL+path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	return h.do(t, req)
}

func (h *harness) post(t *testing.T, path string, form url.Values, header ...string) (*http.Response, string) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, h.console.URL+path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	return h.do(t, req)
}

func (h *harness) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func mustContain(t *testing.T, body string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(body, w) {
			t.Errorf("body missing %q", w)
		}
	}
}

func TestRunsList(t *testing.T) {
	h := newHarness(t)
	h.orch.json("GET /runs", http.StatusOK, `{"page":1,"page_size":20,"total":2,"items":[
		{"id":7,"pipeline_id":3,"status":"SUCCEEDED","started_at":"2024-05-01T10:00:00Z"},
		{"id":8,"pipeline_id":3,"status":"FAILED"}]}`)

	resp, body := h.get(t, "/runs")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	mustContain(t, body, `href="/runs/7"`, `href="/runs/8"`, "SUCCEEDED", "bg-emerald-900", "bg-red-900", "2024-05-01T10:00:00Z")

	if r, ok := h.orch.find("GET", "/runs"); !ok || r.URI != "/runs?page=1&page_size=20" {
		t.Fatalf("runs request = %+v", r)
	}
}

func TestRunsListEmptyAndError(t *testing.T) {
	h := newHarness(t)
	h.orch.json("GET /runs", http.StatusOK, `{"items":[]}`)
	_, body := h.get(t, "/runs")
	mustContain(t, body, "No data")

	h.orch.handle("GET /runs", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
	})
	_, body = h.get(t, "/runs")
	mustContain(t, body, "503", "database unavailable", "No data")
}

func TestRunDetailSwallowsSectionFailures(t *testing.T) {
	h := newHarness(t)
	h.orch.json("GET /runs/5/timeline", http.StatusOK, `[{"ts":"t1","type":"BLOCK_STARTED","block_name":"csv","worker_id":"w-1"}]`)
	h.orch.json("GET /runs/5/progress", http.StatusInternalServerError, `{"detail":"boom"}`)
	h.orch.json("GET /runs/5/artifacts", http.StatusOK, `[{"id":31,"block_run_id":2,"kind":"csv","preview_json":{"filename":"out.csv"}}]`)

	resp, body := h.get(t, "/runs/5")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	mustContain(t, body, "BLOCK_STARTED", "csv", "w-1", "No data", "out.csv",
		`href="/runs/5/artifacts/31/download"`, `target="_blank"`)
	if strings.Contains(body, "boom") {
		t.Fatal("swallowed failure was rendered")
	}

	h.orch.json("GET /runs/6/timeline", http.StatusBadGateway, ``)
	h.orch.json("GET /runs/6/progress", http.StatusOK, `null`)
	h.orch.json("GET /runs/6/artifacts", http.StatusBadGateway, ``)
	_, body = h.get(t, "/runs/6")
	mustContain(t, body, "No events", "No data", "No artifacts")
}

func TestRunDetailInvalidID(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/runs/abc", "/runs/0"} {
		resp, _ := h.get(t, path)
		if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/runs" {
			t.Errorf("%s: status %d location %q", path, resp.StatusCode, resp.Header.Get("Location"))
		}
	}
	if len(h.orch.seen()) != 0 {
		t.Fatalf("unexpected upstream calls: %+v", h.orch.seen())
	}
}

func TestLoadRunDetailDiscardsLateResults(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	defer close(release)
	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}
	h.orch.handle("GET /runs/9/timeline", slow)
	h.orch.handle("GET /runs/9/progress", slow)
	h.orch.handle("GET /runs/9/artifacts", slow)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := h.srv.loadRunDetail(ctx, 9, h.srv.client); err == nil {
		t.Fatal("cancelled load produced a result")
	}
}

func TestArtifactDownloadResolution(t *testing.T) {
	h := newHarness(t)
	h.orch.json("GET /artifacts/31/sign", http.StatusOK, `{"url":"/artifacts/31/download?sig=abc"}`)
	h.orch.json("GET /artifacts/32/sign", http.StatusForbidden, `{"detail":"no signer"}`)

	resp, _ := h.get(t, "/runs/5/artifacts/31/download")
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != h.api.URL+"/artifacts/31/download?sig=abc" {
		t.Fatalf("signed: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp, _ = h.get(t, "/runs/5/artifacts/32/download")
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != h.api.URL+"/artifacts/32/download" {
		t.Fatalf("fallback: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestImportThenStartRun(t *testing.T) {
	h := newHarness(t)
	h.orch.json("POST /pipelines/import", http.StatusOK, `{"pipeline":{"id":11,"name":"demo-ui"},"created":true}`)
	h.orch.json("POST /pipelines/11/run", http.StatusOK, `{"run":{"id":99,"status":"QUEUED"},"enqueued_roots":1}`)

	spec := "name: demo-ui\nblocks:\n  - name: csv\n    type: CSV_READER\n"
	_, body := h.post(t, "/pipelines/import", url.Values{"spec": {spec}})
	mustContain(t, body, `name="pipeline_id"`, `value="11"`, "demo-ui")

	imported, ok := h.orch.find("POST", "/pipelines/import")
	if !ok {
		t.Fatal("import not sent")
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(imported.Body), &doc); err != nil || doc["name"] != "demo-ui" {
		t.Fatalf("import body = %s (%v)", imported.Body, err)
	}

	resp, _ := h.post(t, "/pipelines/run", url.Values{"pipeline_id": {"11"}})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/runs/99" {
		t.Fatalf("start run: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestImportFailuresAreShown(t *testing.T) {
	h := newHarness(t)
	h.orch.json("POST /pipelines/import", http.StatusUnprocessableEntity, `{"detail":"unknown block type"}`)

	_, body := h.post(t, "/pipelines/import", url.Values{"spec": {"{broken"}})
	mustContain(t, body, "Invalid JSON/YAML")
	_, body = h.post(t, "/pipelines/import", url.Values{"spec": {"   "}})
	mustContain(t, body, "Empty spec")
	if len(h.orch.seen()) != 0 {
		t.Fatal("invalid spec reached the orchestrator")
	}
	mustContain(t, h.logs.String(), `"msg":"pipeline spec rejected"`, `"format":"json"`)

	req, _ := http.NewRequest(http.MethodPost, h.console.URL+"/pipelines/import", strings.NewReader("spec=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if resp, body := h.do(t, req); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed form: %d %q", resp.StatusCode, body)
	}

	_, body = h.post(t, "/pipelines/import", url.Values{"spec": {`{"name":"x"}`}, "dry_run": {"true"}})
	mustContain(t, body, "422", "unknown block type")
	if r, _ := h.orch.find("POST", "/pipelines/import"); r.URI != "/pipelines/import?dry_run=true" {
		t.Fatalf("dry run uri = %q", r.URI)
	}
}

func TestStartRunWithoutIDOrRunID(t *testing.T) {
	h := newHarness(t)
	_, body := h.post(t, "/pipelines/run", url.Values{"pipeline_id": {"  "}})
	mustContain(t, body, msgEnterPipelineID)
	if len(h.orch.seen()) != 0 {
		t.Fatal("empty id reached the orchestrator")
	}

	h.orch.json("POST /pipelines/4/run", http.StatusOK, `{"status":"QUEUED"}`)
	resp, body := h.post(t, "/pipelines/run", url.Values{"pipeline_id": {"4"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	mustContain(t, body, msgRunStarted)
}

func TestPipelineGraph(t *testing.T) {
	h := newHarness(t)
	h.orch.json("GET /pipelines/3/graph", http.StatusOK, `{"pipeline_id":3,
		"nodes":[{"id":1,"name":"csv","type":"CSV_READER","status":"SUCCEEDED","attempts":1},{"id":2,"name":"sent","type":"LLM_SENTIMENT"}],
		"edges":[]}`)

	_, body := h.get(t, "/pipelines/graph?pipeline_id=3&run_id=8")
	mustContain(t, body, "CSV_READER", "LLM_SENTIMENT", "No edges", "Attempts")
	if r, _ := h.orch.find("GET", "/pipelines/3/graph"); r.URI != "/pipelines/3/graph?run_id=8" {
		t.Fatalf("graph uri = %q", r.URI)
	}

	_, body = h.get(t, "/pipelines/graph")
	mustContain(t, body, msgEnterPipelineID)
}

func TestPipelinesFragmentAndDemo(t *testing.T) {
	h := newHarness(t)
	_, body := h.post(t, "/pipelines/demo", url.Values{"pipeline_id": {"2"}}, fragmentHeader, "pipelines")
	if strings.Contains(body, "<html") {
		t.Fatal("fragment request rendered the page shell")
	}
	mustContain(t, body, `id="pipelines"`, "demo-ui", "CSV_READER", "/app/data/input.csv", `value="2"`)
}

func TestToolsActions(t *testing.T) {
	h := newHarness(t)
	h.orch.json("GET /queue/size", http.StatusOK, `{"count":3}`)
	h.orch.json("POST /admin/cleanup", http.StatusOK, `{"deleted_runs":4}`)
	h.orch.json("POST /stream/publish", http.StatusOK, `{"ok":true}`)
	h.orch.json("GET /stream/consume", http.StatusOK, `{"messages":[]}`)

	_, body := h.get(t, "/tools/queue?run_id=12", fragmentHeader, "queue-output")
	if strings.Contains(body, "<html") || !strings.Contains(body, `id="queue-output"`) {
		t.Fatalf("queue fragment = %s", body)
	}
	mustContain(t, body, "&#34;count&#34;: 3")

	_, body = h.post(t, "/tools/cleanup", url.Values{"older_than_days": {"abc"}})
	mustContain(t, body, "deleted_runs", "<html")

	_, body = h.post(t, "/tools/publish", url.Values{"topic": {"t1"}, "key": {"ui"}, "payload": {"{not json"}})
	mustContain(t, body, msgInvalidJSONValue)
	if _, ok := h.orch.find("POST", "/stream/publish"); ok {
		t.Fatal("invalid payload was published")
	}

	h.post(t, "/tools/publish", url.Values{"topic": {"t1"}, "key": {"ui"}, "payload": {`{"n": 12345678901234567890}`}})
	h.post(t, "/tools/consume", url.Values{"topic": {"t1"}})

	want := map[string]string{
		"GET /queue/size":     "/queue/size?run_id=12",
		"POST /admin/cleanup": "/admin/cleanup?older_than_days=7",
		"GET /stream/consume": "/stream/consume?max_messages=10&timeout_ms=500&topic=t1",
	}
	for key, uri := range want {
		parts := strings.SplitN(key, " ", 2)
		if r, ok := h.orch.find(parts[0], parts[1]); !ok || r.URI != uri {
			t.Errorf("%s uri = %q, want %q", key, r.URI, uri)
		}
	}
	if r, _ := h.orch.find("POST", "/stream/publish"); r.Body != `{"topic":"t1","key":"ui","value":{"n":12345678901234567890}}` {
		t.Errorf("publish body = %s", r.Body)
	}
}

func TestToolsErrorStaysInItsPanel(t *testing.T) {
	h := newHarness(t)
	h.orch.json("GET /queue/size", http.StatusUnauthorized, `{"detail":"missing api key"}`)

	_, body := h.get(t, "/tools/queue?run_id=1", fragmentHeader, "queue-output")
	mustContain(t, body, "401", "missing api key", `role="alert"`)
	if strings.Contains(body, "cleanup-output") {
		t.Fatal("fragment leaked other panels")
	}
}

func TestToolsRejectMalformedForm(t *testing.T) {
	h := newHarness(t)
	h.orch.json("POST /stream/publish", http.StatusOK, `{"ok":true}`)

	for _, path := range []string{"/tools/publish", "/tools/cleanup", "/tools/consume"} {
		req, _ := http.NewRequest(http.MethodPost, h.console.URL+path, strings.NewReader("payload=%zz&topic=t1"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, body := h.do(t, req)
		if resp.StatusCode != http.StatusBadRequest || !strings.Contains(body, "Invalid form data") {
			t.Errorf("%s: %d %q", path, resp.StatusCode, body)
		}
	}
	if len(h.orch.seen()) != 0 {
		t.Fatalf("malformed form reached the orchestrator: %+v", h.orch.seen())
	}
}

func TestParseDays(t *testing.T) {
	tests := map[string]int{"": 7, "abc": 7, " 30 ": 30, "0": 0, "7.5": 7}
	for in, want := range tests {
		if got := parseDays(in); got != want {
			t.Errorf("parseDays(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestSessionKeyIsForwarded(t *testing.T) {
	h := newHarness(t)
	h.orch.json("GET /runs", http.StatusOK, `{"items":[]}`)

	resp, _ := h.post(t, "/session/key", url.Values{"api_key": {"k-42"}, "return_to": {"/tools"}})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/tools" {
		t.Fatalf("save key: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	_, body := h.get(t, "/runs")
	mustContain(t, body, "Key set</span>")
	if strings.Contains(body, "k-42") {
		t.Fatal("saved key was echoed into the page")
	}
	if r, _ := h.orch.find("GET", "/runs"); r.Key != "k-42" {
		t.Fatalf("forwarded key = %q", r.Key)
	}

	resp, _ = h.post(t, "/session/key", url.Values{"api_key": {""}, "return_to": {"https://evil.example/"}})
	if resp.Header.Get("Location") != "/runs" {
		t.Fatalf("open redirect to %q", resp.Header.Get("Location"))
	}
	if _, body = h.get(t, "/runs"); strings.Contains(body, "data-key-set") {
		t.Fatal("cleared key still shown as set")
	}
}

func TestLegacyHashAndUnknownPaths(t *testing.T) {
	h := newHarness(t)
	tests := map[string]string{
		"/go?hash=" + url.QueryEscape("#/runs/42"):  "/runs/42",
		"/go?hash=" + url.QueryEscape("#/tools"):    "/tools",
		"/go?hash=" + url.QueryEscape("#/whatever"): "/runs",
		"/":              "/runs",
		"/no/such/page": "/runs",
	}
	for path, want := range tests {
		resp, _ := h.get(t, path)
		if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != want {
			t.Errorf("%s: %d %q, want %q", path, resp.StatusCode, resp.Header.Get("Location"), want)
		}
	}
}

func TestHealthAndAssets(t *testing.T) {
	h := newHarness(t)
	h.orch.handle("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"ok"}`)
	})

	resp, body := h.get(t, "/health")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"healthy"`) {
		t.Fatalf("health: %d %s", resp.StatusCode, body)
	}

	resp, body = h.get(t, "/assets/app.js")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "data-fragment") {
		t.Fatalf("app.js: %d", resp.StatusCode)
	}
	if resp, _ = h.get(t, "/assets/missing.js"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing asset: %d", resp.StatusCode)
	}
}

// logView applies socket messages the way the browser does.
type logView struct {
	conn  *websocket.Conn
	limit int
	lines []string
}

func dialLogs(t *testing.T, h *harness, query string) *logView {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.console.URL, "http") + "/logs/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &logView{conn: conn, limit: h.srv.cfg.LiveLog.BufferLines}
}

// readUntil applies messages until match accepts one, returning it.
func (v *logView) readUntil(t *testing.T, match func(logMessage) bool) logMessage {
	t.Helper()
	v.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var m logMessage
		if err := v.conn.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v", err)
		}
		switch m.Type {
		case "snapshot":
			v.lines = append([]string(nil), m.Lines...)
		case "line":
			v.lines = append(v.lines, m.Data)
		}
		if len(v.lines) > v.limit {
			v.lines = v.lines[len(v.lines)-v.limit:]
		}
		if match(m) {
			return m
		}
	}
}

func (v *logView) has(line string) bool {
	for _, l := range v.lines {
		if l == line {
			return true
		}
	}
	return false
}

func TestLiveLogWebsocket(t *testing.T) {
	h := newHarness(t)
	h.orch.handle("GET /logs/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "data: %s line %d\n\n", r.URL.Query().Get("topic"), i)
		}
		flusher.Flush()
		<-r.Context().Done()
	})

	v := dialLogs(t, h, "?topic=audit")
	first := v.readUntil(t, func(logMessage) bool { return true })
	if first.Type != "snapshot" && first.Type != "status" {
		t.Fatalf("first message = %+v", first)
	}
	v.readUntil(t, func(logMessage) bool { return v.has("audit line 2") })
	if len(v.lines) != 3 || v.lines[0] != "audit line 0" {
		t.Fatalf("lines = %v", v.lines)
	}
	if h.srv.tails.Count() != 1 {
		t.Fatalf("tails = %d", h.srv.tails.Count())
	}

	v.conn.WriteJSON(logCommand{Action: "topic", Topic: "pipeline_events"})
	v.readUntil(t, func(logMessage) bool { return v.has("pipeline_events line 0") })

	v.conn.WriteJSON(logCommand{Action: "reconnect"})
	m := v.readUntil(t, func(m logMessage) bool { return m.Type == "snapshot" })
	if len(m.Lines) == 0 {
		t.Fatal("reconnect snapshot is empty")
	}

	v.conn.WriteJSON(logCommand{Action: "stop"})
	v.readUntil(t, func(m logMessage) bool { return m.Type == "status" && m.State == string(livelog.StateStopped) })

	v.conn.WriteJSON(logCommand{Action: "bogus"})
	v.readUntil(t, func(m logMessage) bool { return m.Type == "error" })

	v.conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for h.srv.tails.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.srv.tails.Count() != 0 {
		t.Fatal("closing the socket left the tail registered")
	}
}

func TestLiveLogBurstKeepsNewestLines(t *testing.T) {
	const burst = 5000
	h := newHarness(t)
	h.orch.handle("GET /logs/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < burst; i++ {
			fmt.Fprintf(w, "data: line %d\n\n", i)
		}
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	v := dialLogs(t, h, "")
	last := fmt.Sprintf("line %d", burst-1)
	v.readUntil(t, func(logMessage) bool {
		return len(v.lines) > 0 && v.lines[len(v.lines)-1] == last
	})

	if len(v.lines) != v.limit {
		t.Fatalf("view holds %d lines, want %d", len(v.lines), v.limit)
	}
	for i, line := range v.lines {
		if want := fmt.Sprintf("line %d", burst-v.limit+i); line != want {
			t.Fatalf("lines[%d] = %q, want %q", i, line, want)
		}
	}
}

func TestLiveLogRefusedAfterShutdown(t *testing.T) {
	h := newHarness(t)
	h.srv.health.AddCheck("live_logs", h.srv.tails.Check)
	h.orch.handle("GET /health", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"ok"}`)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.srv.tails.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(h.console.URL, "http") + "/logs/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial succeeded after shutdown")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("dial response = %v", resp)
	}

	_, body := h.get(t, "/health")
	mustContain(t, body, `"degraded"`, `"live_logs"`)
}
