package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-learn/internal/catalog"
	"github.com/p-n-ai/pai-learn/internal/curriculum"
	"github.com/p-n-ai/pai-learn/internal/deck"
	"github.com/p-n-ai/pai-learn/internal/platform/cache"
	"github.com/p-n-ai/pai-learn/internal/platform/config"
	"github.com/p-n-ai/pai-learn/internal/platform/database"
	"github.com/p-n-ai/pai-learn/internal/realtime"
	"github.com/p-n-ai/pai-learn/internal/responses"
)

const readyTimeout = 2 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(os.Stdout, cfg.Log))

	if err := run(cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	loader, err := curriculum.NewLoader(cfg.Curriculum.Path)
	if err != nil {
		return err
	}

	checks := map[string]healthChecker{}

	var db *database.DB
	if cfg.UsesDatabase() {
		db, err = database.Open(ctx, database.Options{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
			Migrate:  cfg.Database.Migrate,
		})
		if err != nil {
			return err
		}
		defer db.Close()
		checks["database"] = db
	}

	var c *cache.Cache
	if cfg.Responses.CacheEnabled {
		c, err = cache.Open(ctx, cfg.Cache.URL)
		if err != nil {
			return err
		}
		defer c.Close()
		checks["cache"] = c
	}

	store, versions, err := openStore(cfg, db, c)
	if err != nil {
		return err
	}

	events := eventLogger(cfg, db)
	if async, ok := events.(*deck.AsyncEventLogger); ok {
		defer func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := async.Close(drainCtx); err != nil {
				slog.Warn("deck events not fully written", "error", err)
			}
		}()
	}
	hub := realtime.NewHub()

	mux := newMux(checks,
		catalog.NewHandler(catalog.NewService(loader, store), versions),
		realtime.NewServer(realtime.Config{
			Slides:          loader,
			Store:           store,
			Events:          events,
			Hub:             hub,
			BlockedAdvisory: cfg.Deck.BlockedAdvisory,
		}),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting",
			"addr", srv.Addr,
			"responses_backend", cfg.Responses.Backend,
			"response_cache", cfg.Responses.CacheEnabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	hub.CloseAll("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

// newLogger builds the process logger from LEARN_LOG_LEVEL and LEARN_LOG_FORMAT.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// openStore picks the response backend and wraps it in the cache when one is
// configured. versions is nil without a cache.
func openStore(cfg *config.Config, db *database.DB, c *cache.Cache) (responses.Store, catalog.Versioner, error) {
	var store responses.Store
	switch cfg.Responses.Backend {
	case config.BackendPostgres:
		if db == nil {
			return nil, nil, fmt.Errorf("postgres backend needs a database")
		}
		pg, err := responses.NewPostgresStore(db.Pool)
		if err != nil {
			return nil, nil, err
		}
		store = pg
	default:
		store = responses.NewMemoryStore()
	}

	if c == nil {
		return store, nil, nil
	}
	cached := responses.NewCachedStore(store, c.Client, cfg.Responses.CacheTTL)
	return cached, cached, nil
}

func eventLogger(cfg *config.Config, db *database.DB) deck.EventLogger {
	switch {
	case !cfg.Deck.LogEvents:
		return deck.NopEventLogger{}
	case db != nil:
		// Inserts run off the deck session loop.
		return deck.NewAsyncEventLogger(deck.NewPostgresEventLogger(db.Pool), deck.DefaultEventBuffer)
	default:
		return deck.SlogEventLogger{}
	}
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

type registrar interface {
	Register(mux *http.ServeMux)
}

// newMux creates the HTTP router with health check endpoints and the given
// route groups.
func newMux(checks map[string]healthChecker, routes ...registrar) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))
	for _, r := range routes {
		r.Register(mux)
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks map[string]healthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		failed := map[string]string{}
		for name, check := range checks {
			if err := check.HealthCheck(ctx); err != nil {
				slog.Warn("readiness check failed", "dependency", name, "error", err)
				failed[name] = err.Error()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if len(failed) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{"status": "not ready", "failed": failed})
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
