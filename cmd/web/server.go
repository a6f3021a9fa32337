package main

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/narvanalabs/pipeline-console/internal/livelog"
	"github.com/narvanalabs/pipeline-console/internal/middleware"
	"github.com/narvanalabs/pipeline-console/internal/route"
	"github.com/narvanalabs/pipeline-console/internal/session"
	"github.com/narvanalabs/pipeline-console/pkg/config"
	"github.com/narvanalabs/pipeline-console/pkg/logger"
	"github.com/narvanalabs/pipeline-console/web/api"
	"github.com/narvanalabs/pipeline-console/web/assets"
	"github.com/narvanalabs/pipeline-console/web/health"
	"github.com/narvanalabs/pipeline-console/web/layouts"
)

// fragmentHeader names the element a data-fragment form wants back.
const fragmentHeader = "X-Fragment"

type server struct {
	cfg      *config.Config
	logger   *logger.Logger
	client   *api.Client
	sessions *session.Manager
	tails    *livelog.Registry
	health   *health.Checker
}

func newServer(cfg *config.Config, log *logger.Logger, client *api.Client, sessions *session.Manager, tails *livelog.Registry, checker *health.Checker) *server {
	return &server{
		cfg:      cfg,
		logger:   log,
		client:   client,
		sessions: sessions,
		tails:    tails,
		health:   checker,
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(s.logger.Logger))
	r.Use(middleware.Recovery(s.logger.Logger))

	r.Handle("/assets/*", assets.Handler("/assets/"))
	r.Get("/health", s.health.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.sessions.Middleware)

		r.Get("/", s.handleIndex)
		r.Get("/go", s.handleGo)
		r.Post("/session/key", s.handleSessionKey)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleRuns)
			r.Get("/{runID}", s.handleRunDetail)
			r.Get("/{runID}/artifacts/{artifactID}/download", s.handleArtifactDownload)
		})

		r.Route("/pipelines", func(r chi.Router) {
			r.Get("/", s.handlePipelines)
			r.Post("/import", s.handlePipelineImport)
			r.Post("/demo", s.handlePipelineDemo)
			r.Post("/run", s.handlePipelineRun)
			r.Get("/graph", s.handlePipelineGraph)
			r.Post("/graph", s.handlePipelineGraph)
		})

		r.Route("/tools", func(r chi.Router) {
			r.Get("/", s.handleTools)
			r.Get("/queue", s.handleQueueSize)
			r.Post("/cleanup", s.handleCleanup)
			r.Post("/publish", s.handlePublish)
			r.Get("/consume", s.handleConsume)
			r.Post("/consume", s.handleConsume)
		})

		r.Get("/logs", s.handleLogs)
		r.Get("/logs/ws", s.handleLogsWS)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, route.Runs.Path(), http.StatusFound)
	})

	return r
}

// clientFor returns the orchestrator client carrying the session's API key.
func (s *server) clientFor(r *http.Request) *api.Client {
	return s.client.WithAPIKey(session.FromContext(r.Context()).APIKey())
}

func (s *server) requestLogger(r *http.Request) *logger.Logger {
	return s.logger.WithContext(r.Context())
}

// page renders body inside the page shell.
func (s *server) page(w http.ResponseWriter, r *http.Request, title string, body templ.Component) {
	s.renderComponent(w, r, layouts.Base(layouts.PageData{Title: title, APIBase: s.cfg.APIBase}, body))
}

// pageOrFragment renders only the fragment when the request asked for id.
func (s *server) pageOrFragment(w http.ResponseWriter, r *http.Request, id, title string, fragment, body templ.Component) {
	if r.Header.Get(fragmentHeader) == id {
		s.renderComponent(w, r, fragment)
		return
	}
	s.page(w, r, title, body)
}

func (s *server) renderComponent(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		s.requestLogger(r).Error("failed to render page", "path", r.URL.Path, "error", err)
	}
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, route.Runs.Path(), http.StatusFound)
}

// handleGo resolves a legacy "#/..." location.
func (s *server) handleGo(w http.ResponseWriter, r *http.Request) {
	rt := route.Parse(r.URL.Query().Get("hash"))
	http.Redirect(w, r, rt.Path(), http.StatusFound)
}

// handleSessionKey stores or clears the API key and returns to the page
// the form was posted from.
func (s *server) handleSessionKey(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	state := session.FromContext(r.Context())
	state.SetAPIKey(strings.TrimSpace(r.FormValue("api_key")))
	if state.Changed() {
		if err := s.sessions.Save(w, state); err != nil {
			s.requestLogger(r).Error("failed to save session", "error", err)
			http.Error(w, "Failed to save API key", http.StatusInternalServerError)
			return
		}
		s.requestLogger(r).Info("api key updated", "set", state.APIKey() != "")
	}

	http.Redirect(w, r, returnPath(r.FormValue("return_to")), http.StatusSeeOther)
}

// returnPath keeps redirects on this site and on a known route.
func returnPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return route.Runs.Path()
	}
	return route.ParsePath(u.Path).Path()
}
