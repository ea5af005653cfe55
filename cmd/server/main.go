// Package main is the entrypoint for the analyzr API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/analyzr/internal/analysis"
	"github.com/kiranshivaraju/analyzr/internal/analyzer/provider"
	"github.com/kiranshivaraju/analyzr/internal/api"
	"github.com/kiranshivaraju/analyzr/internal/api/handler"
	mw "github.com/kiranshivaraju/analyzr/internal/api/middleware"
	"github.com/kiranshivaraju/analyzr/internal/api/response"
	"github.com/kiranshivaraju/analyzr/internal/auth"
	"github.com/kiranshivaraju/analyzr/internal/cache"
	"github.com/kiranshivaraju/analyzr/internal/config"
	"github.com/kiranshivaraju/analyzr/internal/jobstore"
	"github.com/kiranshivaraju/analyzr/internal/notify"
	"github.com/kiranshivaraju/analyzr/internal/ratelimit"
	"github.com/kiranshivaraju/analyzr/internal/realtime"
	"github.com/kiranshivaraju/analyzr/internal/store"
	"github.com/kiranshivaraju/analyzr/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

const (
	shutdownTimeout = 30 * time.Second
	migrationsDir   = "migrations"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)
	logger.Info("config loaded",
		"analyzer", cfg.Analyzer.Provider,
		"job_store", cfg.JobStore.Driver,
		"env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, migrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("redis connected")

	// 5. Open job store
	jobs, err := newJobStore(cfg.JobStore, pool, redisCache.Client())
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer jobs.Close()
	logger.Info("job store ready", "driver", cfg.JobStore.Driver)

	// 6. Create analyzer
	analyzer, err := provider.New(cfg.Analyzer, logger)
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}
	logger.Info("analyzer initialized", "provider", analyzer.Name())

	// 7. Realtime hub, notifications and orchestrator
	metrics := telemetry.New()
	hub := realtime.NewHub(logger, metrics)
	directory := realtime.NewRedisDirectory(redisCache.Client())
	fanout := notify.NewFanout(directory, hub, logger, metrics)

	svc := analysis.NewService(jobs, jobs, analyzer, fanout,
		analysis.WithLogger(logger),
		analysis.WithMetrics(metrics))

	// 8. Build router with dependencies
	pgStore := store.NewPostgresStore(pool)
	validator := auth.NewAPIKeyValidator(pgStore, logger)
	limiter := ratelimit.New(redisCache, cfg.RateLimit.Window, cfg.RateLimit.Max,
		ratelimit.WithLogger(logger))

	deps := api.Dependencies{
		Auth:      mw.NewAuth(validator, logger),
		RateLimit: mw.NewRateLimit(limiter, metrics),

		HealthHandler:  healthHandler(pgStore, redisCache, analyzer),
		MetricsHandler: metrics.Handler(),
		Realtime:       realtime.NewHandler(validator, hub, directory, cfg.Realtime.AllowedOrigins, logger),

		CreateAnalysis: handler.NewCreateAnalysisHandler(svc),
		GetAnalysis:    handler.NewGetAnalysisHandler(svc),
		ListAnalyses:   handler.NewListAnalysesHandler(svc),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore, logger),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore, logger),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	hub.Close()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Server.DrainTimeout)
	defer cancelDrain()
	if err := svc.Shutdown(drainCtx); err != nil {
		logger.Warn("abandoning in-flight analyses", "in_flight", svc.InFlight(), "error", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func newJobStore(cfg config.JobStoreConfig, pool *pgxpool.Pool, client *redis.Client) (jobstore.Backend, error) {
	switch cfg.Driver {
	case "redis":
		return jobstore.NewRedisStore(client, cfg.TTL), nil
	case "postgres":
		return jobstore.NewPostgresStore(pool), nil
	case "sqlite":
		s, err := jobstore.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown job store driver %q", cfg.Driver)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

type healthChecker interface {
	Health(ctx context.Context) bool
}

// healthHandler checks database, cache and analyzer connectivity.
func healthHandler(db, c pinger, a healthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"analyzer": "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if !a.Health(r.Context()) {
			checks["analyzer"] = "degraded"
		}

		for _, status := range checks {
			if status != "ok" {
				response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
					"One or more services degraded", checks)
				return
			}
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
