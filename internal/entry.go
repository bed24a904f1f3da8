// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/dispatch/internal/api"
	"github.com/starford/dispatch/internal/metrics"
	"github.com/starford/dispatch/internal/models"
	"github.com/starford/dispatch/internal/statuspoll"
	"github.com/starford/dispatch/internal/watch"
)

// NewLogger returns the JSON logger used by every command.
func NewLogger(cfg *Config, w *os.File) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// Run starts the HTTP server, the file watcher and the repository status
// poller, and blocks until a shutdown signal or ctx cancellation.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = NewLogger(cfg, os.Stdout)
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("repo_path", cfg.Site.RepoPath),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	rt, err := NewRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("runtime close failed", slog.String("error", err.Error()))
		}
	}()

	apiRouter := api.NewRouter(rt.Service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, rt.Broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health and metrics endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","version":%q}`, app.version)
	})
	var poller *statuspoll.Poller
	if cfg.Git.StatusInterval > 0 {
		poller, err = statuspoll.New(cfg.Git.StatusInterval, rt.Repo, rt.Broker, logger)
		if err != nil {
			return err
		}
	}

	r.Get("/health/ready", readyHandler(rt, poller))
	r.Handle("/metrics", metrics.Handler(rt.Registry))

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// File watcher feeding SSE.
	g.Go(func() error {
		trees := []watch.Tree{
			{Name: "vault", Store: rt.VaultFS},
			{Name: "site", Store: rt.RepoFS, Dir: cfg.Site.ContentRoot},
		}
		if err := watch.Watch(gCtx, trees, logger, rt.Service.DocumentChanged); err != nil {
			logger.Warn("watcher unavailable", slog.String("error", err.Error()))
		}
		return nil
	})

	// Repository status poller.
	if poller != nil {
		g.Go(func() error {
			return poller.Run(gCtx)
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

type readiness struct {
	Status     string                  `json:"status"`
	Repository *models.RepositoryState `json:"repository,omitempty"`
}

// readyHandler reports 503 while the vault is unreadable. The latest polled
// repository state is included once sampled; it never affects the status code.
func readyHandler(rt *Runtime, poller *statuspoll.Poller) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		body := readiness{Status: "ok"}
		code := http.StatusOK
		if _, err := rt.VaultFS.List(""); err != nil {
			body.Status = "vault unavailable"
			code = http.StatusServiceUnavailable
		}
		if poller != nil {
			if st, ok := poller.Last(); ok {
				body.Repository = &st
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// errShutdown cancels the group so the watcher and poller stop with the server.
var errShutdown = errors.New("shutdown")
