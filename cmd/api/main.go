package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/commit-streaks/internal/aggregator"
	"github.com/kurihiro0119/commit-streaks/internal/api"
	"github.com/kurihiro0119/commit-streaks/internal/backfill"
	"github.com/kurihiro0119/commit-streaks/internal/collector"
	"github.com/kurihiro0119/commit-streaks/internal/config"
	"github.com/kurihiro0119/commit-streaks/internal/logging"
	"github.com/kurihiro0119/commit-streaks/internal/metrics"
	"github.com/kurihiro0119/commit-streaks/internal/scheduler"
	"github.com/kurihiro0119/commit-streaks/internal/storage"
	"github.com/kurihiro0119/commit-streaks/internal/storage/postgres"
	"github.com/kurihiro0119/commit-streaks/internal/storage/sqlite"
	"github.com/kurihiro0119/commit-streaks/internal/streak"
	"github.com/kurihiro0119/commit-streaks/internal/tracker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	slog.SetDefault(logger)

	// Initialize storage
	var store storage.Storage
	switch cfg.StorageType {
	case "postgres":
		store, err = postgres.NewPostgresStorage(cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL storage: %v", err)
		}
	default:
		store, err = sqlite.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite storage: %v", err)
		}
	}
	defer store.Close()

	m := metrics.New()

	// Source
	var (
		source collector.Collector
		scope  []string
	)
	switch cfg.Source {
	case config.SourceGitHub:
		source = collector.NewGitHubCollector(cfg.GitHubToken, logger)
		scope = cfg.GitHubScope
	default:
		source = collector.NewLocalCollector(collector.NewExecExecutor(), cfg.AuthorEmails, logger)
		scope = cfg.SearchPaths
	}
	retryOpts := collector.DefaultRetryOptions()
	retryOpts.Timeout = cfg.SourceTimeout
	retryOpts.MaxTries = uint(cfg.SourceRetries)
	source = collector.WithRetry(source, retryOpts, m, logger)

	// Engines
	engine := streak.NewEngine(store, cfg.StreakOptions(), cfg.Thresholds, m, logger)
	agg := aggregator.NewAggregator(store, m, logger)
	tr := tracker.NewTracker(source, store, engine, scope, m, logger)
	reconciler := backfill.NewReconciler(source, store, m, logger)

	// Bring persisted streaks in line with the ledger before serving
	if _, err := engine.Refresh(context.Background()); err != nil {
		log.Fatalf("Failed to refresh streaks: %v", err)
	}

	if cfg.TrackSchedule != "" {
		sched := scheduler.New(tr, cfg.TrackSchedule, 0, logger)
		if err := sched.Start(); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
		defer sched.Stop()
	}

	// Setup routes
	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(agg, store, engine, tr, reconciler, backfill.Options{
		SearchScope: scope,
		BatchSize:   cfg.BackfillBatchSize,
		MaxDays:     cfg.BackfillMaxDays,
	})
	router := api.SetupRoutes(handler, m, logger)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting API server", "addr", addr, "storage", cfg.StorageType, "source", cfg.Source)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
