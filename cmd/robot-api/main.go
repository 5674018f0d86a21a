// Package main is the entry point for the robot-api server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/7and1/robotscraping/internal/config"
	"github.com/7and1/robotscraping/internal/database"
	"github.com/7and1/robotscraping/internal/http/routes"
	"github.com/7and1/robotscraping/internal/logging"
	"github.com/7and1/robotscraping/internal/queue"
	"github.com/7and1/robotscraping/internal/repository"
	"github.com/7and1/robotscraping/internal/schedule"
	"github.com/7and1/robotscraping/internal/service"
	"github.com/7and1/robotscraping/internal/shutdown"
	"github.com/7and1/robotscraping/internal/storage"
	"github.com/7and1/robotscraping/internal/version"
	"github.com/7and1/robotscraping/internal/worker"
)

func main() {
	// Initialize logger with TTY detection, source paths, and format control
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting robot-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	if schemaVersion, err := database.GetLatestSchemaVersion(db); err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else if schemaVersion != "" {
		logger.Info("database schema ready", "schema_version", schemaVersion)
	}

	repos := repository.NewRepositories(db)

	// Jobs left in processing by a previous run will never finish; fail them
	// now so their webhooks fire and clients stop polling.
	staleCount, err := repos.Jobs.MarkStaleProcessingFailed(context.Background(), 10*time.Minute)
	if err != nil {
		logger.Warn("failed to clean up stale jobs", "error", err)
	} else if staleCount > 0 {
		logger.Info("cleaned up stale processing jobs", "count", staleCount)
	}

	var store storage.Store
	if cfg.StorageEnabled {
		s3Store, err := storage.NewS3Store(cfg, logger)
		if err != nil {
			logger.Error("failed to initialize object storage", "error", err)
			os.Exit(1)
		}
		store = s3Store
		logger.Info("object storage enabled", "bucket", cfg.StorageBucket)
	} else {
		store = storage.NewMemoryStore()
		logger.Warn("object storage not configured, results held in memory")
	}

	var jobQueue queue.Queue
	if cfg.RedisURL != "" {
		redisQueue, err := queue.NewRedisQueue(cfg.RedisURL, logger)
		if err != nil {
			logger.Error("failed to connect to redis queue", "error", err)
			os.Exit(1)
		}
		jobQueue = redisQueue
		logger.Info("redis queue enabled")
	} else {
		jobQueue = queue.NewMemoryQueue()
		logger.Warn("redis not configured, using in-process queue")
	}
	defer func() { _ = jobQueue.Close() }()

	services, err := service.NewServices(cfg, repos, store, jobQueue, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	jobWorker := worker.New(
		repos,
		jobQueue,
		store,
		services.Extraction,
		services.Webhook,
		worker.Config{Concurrency: cfg.WorkerBatchSize},
		logger,
	)
	jobWorker.Start(ctx)

	scheduler := schedule.NewScheduler(repos, jobQueue, services.Webhook, cfg.SchedulerInterval, cfg.SchedulerBatchSize, logger)
	scheduler.Start(ctx)

	if cfg.JanitorEnabled {
		services.Janitor.Start(ctx)
	}

	router := routes.New(cfg, services, repos, db, logger)

	idle := shutdown.NewIdleMonitor(cfg.IdleTimeout, jobWorker.Busy, logger)
	idle.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      idle.Middleware(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on signal or idle timeout
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigChan:
			logger.Info("shutting down server", "signal", sig.String())
		case <-idle.Done():
			logger.Info("shutting down server", "reason", "idle timeout")
		}

		idle.Stop()
		scheduler.Stop()
		if cfg.JanitorEnabled {
			services.Janitor.Stop()
		}
		cancel()
		jobWorker.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL, "anonymous", cfg.AllowAnonymous)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
