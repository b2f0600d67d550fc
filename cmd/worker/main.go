package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/docmine/server/internal/config"
	"github.com/docmine/server/internal/importer"
	"github.com/docmine/server/internal/logging"
	"github.com/docmine/server/internal/queue"
	"github.com/docmine/server/internal/store"
	"github.com/docmine/server/internal/webhook"
)

// The worker drains the import queue. It shares the database and upload
// directory with the API server but connects to the broker with its own
// consumer, so it can be scaled independently.
func main() {
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := slog.Default()

	slog.Info("configuration loaded",
		"broker_addr", cfg.Redis.Addr,
		"concurrency", cfg.Worker.Concurrency,
	)

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	dispatcher := webhook.NewDispatcher(store.NewWebhookStore(pool), cfg.Webhook.Timeout, log)
	exec := importer.New(store.NewProductStore(pool), log)
	worker := queue.NewWorker(store.NewJobStore(pool), exec, dispatcher, log)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency:    cfg.Worker.Concurrency,
			Queues:         map[string]int{queue.QueueImports: 1},
			RetryDelayFunc: queue.RetryDelay,
		},
	)

	slog.Info("worker starting", "queue", queue.QueueImports)
	if err := srv.Run(worker.Mux()); err != nil {
		slog.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}
