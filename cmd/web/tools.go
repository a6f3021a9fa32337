package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/narvanalabs/pipeline-console/internal/result"
	"github.com/narvanalabs/pipeline-console/web/api"
	"github.com/narvanalabs/pipeline-console/web/pages/tools"
)

const (
	defaultCleanupDays  = 7
	consumeMaxMessages  = 10
	consumeTimeout      = 500 * time.Millisecond
	msgInvalidJSONValue = "Invalid JSON payload"
)

// toolsForm starts from the defaults and keeps whatever fields were posted.
// A body that does not parse is answered with 400 and ok is false.
func (s *server) toolsForm(w http.ResponseWriter, r *http.Request) (d tools.Data, ok bool) {
	d = tools.Defaults(s.cfg.LiveLog.DefaultTopic)
	if err := r.ParseForm(); err != nil {
		s.requestLogger(r).Warn("invalid tools form", "error", err)
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return d, false
	}
	set := func(dst *string, name string) {
		if _, ok := r.Form[name]; ok {
			*dst = r.Form.Get(name)
		}
	}
	set(&d.RunID, "run_id")
	set(&d.Days, "older_than_days")
	set(&d.Topic, "topic")
	set(&d.Key, "key")
	set(&d.Payload, "payload")
	return d, true
}

func (s *server) renderTools(w http.ResponseWriter, r *http.Request, d tools.Data, id string, p tools.Panel) {
	s.pageOrFragment(w, r, id, "Tools", tools.Output(id, p), tools.Page(d))
}

// panelOf surfaces a failure as the panel's error text.
func panelOf(res result.Result[*api.Payload]) tools.Panel {
	if !res.IsOk() {
		return tools.Panel{Error: res.Message()}
	}
	p, _ := res.Get()
	return tools.Panel{Output: p.Pretty()}
}

func (s *server) handleTools(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, "Tools", tools.Page(tools.Defaults(s.cfg.LiveLog.DefaultTopic)))
}

func (s *server) handleQueueSize(w http.ResponseWriter, r *http.Request) {
	d, ok := s.toolsForm(w, r)
	if !ok {
		return
	}
	d.Queue = panelOf(result.Of(s.clientFor(r).QueueSize(r.Context(), strings.TrimSpace(d.RunID))))
	s.renderTools(w, r, d, tools.QueueOutput, d.Queue)
}

func (s *server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	d, ok := s.toolsForm(w, r)
	if !ok {
		return
	}
	days := parseDays(d.Days)
	s.requestLogger(r).Info("cleanup requested", "older_than_days", days)
	d.Cleanup = panelOf(result.Of(s.clientFor(r).Cleanup(r.Context(), days)))
	s.renderTools(w, r, d, tools.CleanupOutput, d.Cleanup)
}

// handlePublish validates the payload locally; invalid JSON never reaches
// the orchestrator.
func (s *server) handlePublish(w http.ResponseWriter, r *http.Request) {
	d, ok := s.toolsForm(w, r)
	if !ok {
		return
	}
	value, err := decodeValue(d.Payload)
	if err != nil {
		d.Publish = tools.Panel{Error: msgInvalidJSONValue}
		s.renderTools(w, r, d, tools.PublishOutput, d.Publish)
		return
	}

	req := api.PublishRequest{Topic: d.Topic, Key: d.Key, Value: value}
	d.Publish = panelOf(result.Of(s.clientFor(r).StreamPublish(r.Context(), req)))
	s.renderTools(w, r, d, tools.PublishOutput, d.Publish)
}

func (s *server) handleConsume(w http.ResponseWriter, r *http.Request) {
	d, ok := s.toolsForm(w, r)
	if !ok {
		return
	}
	d.Consume = panelOf(result.Of(s.clientFor(r).StreamConsume(r.Context(), d.Topic, consumeMaxMessages, consumeTimeout)))
	s.renderTools(w, r, d, tools.ConsumeOutput, d.Consume)
}

// parseDays reads the cleanup age, falling back to 7 days when the text is
// blank or not a number.
func parseDays(text string) int {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return defaultCleanupDays
	}
	return n
}

// decodeValue parses exactly one JSON value, keeping numbers verbatim.
func decodeValue(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}
