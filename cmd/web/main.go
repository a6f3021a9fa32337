package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/narvanalabs/pipeline-console/internal/livelog"
	"github.com/narvanalabs/pipeline-console/internal/session"
	"github.com/narvanalabs/pipeline-console/internal/shutdown"
	"github.com/narvanalabs/pipeline-console/pkg/config"
	"github.com/narvanalabs/pipeline-console/pkg/logger"
	"github.com/narvanalabs/pipeline-console/web/api"
	"github.com/narvanalabs/pipeline-console/web/health"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Default().Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.FromConfig(cfg.LogLevel, cfg.LogFormat)

	codec, err := session.NewCodec(cfg.Session.Secret, cfg.Session.AgeIdentity, cfg.Session.MaxAge)
	if err != nil {
		log.Error("failed to initialize session codec", "error", err)
		os.Exit(1)
	}
	if cfg.Session.AgeIdentity == "" {
		log.Warn("SESSION_AGE_IDENTITY not set, sessions will not survive a restart")
	}

	client := api.NewClient(cfg.APIBase, api.WithKeyHeader(cfg.APIKeyHeader))
	tails := livelog.NewRegistry(log.WithComponent("livelog").Logger)

	checker := health.NewChecker(client.Health, health.Version)
	checker.AddCheck("live_logs", tails.Check)
	checker.SetTimeout(3 * time.Second)

	srv := newServer(cfg, log, client,
		session.NewManager(codec, cfg.Session.Secure, log.WithComponent("session").Logger),
		tails, checker)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)
	coordinator.Register(shutdown.NewFuncComponent("orchestrator-client", func(ctx context.Context) error {
		client.CloseIdleConnections()
		return nil
	}))
	coordinator.Register(tails)
	coordinator.Register(shutdown.NewHTTPServerComponent("http", httpServer))

	go func() {
		log.Info("starting web server",
			"addr", cfg.Addr,
			"api_base", cfg.APIBase,
			"version", health.Version,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("web server failed")
			coordinator.Shutdown()
		}
	}()

	go coordinator.WaitForSignal()
	coordinator.Wait()
	os.Exit(coordinator.ExitCode())
}
