package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"envelope/internal/amqp"
	"envelope/internal/config"
	"envelope/internal/log"
	"envelope/internal/services"
	"envelope/internal/storage"
	"envelope/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)
	log.SetDefault(logger)

	logger.Info("Starting cron-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - no events will be published")
	}

	recurring := services.NewRecurringProcessor(repo, amqpClient, cfg.BatchConcurrency)
	budgets := services.NewBudgetService(repo, amqpClient)
	cron := worker.NewCronWorker(recurring, budgets, cfg.CronInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Cron worker configured",
		"interval", cfg.CronInterval,
		"concurrency", cfg.BatchConcurrency,
		"sqlite_db", cfg.SQLiteDBPath)

	if err := cron.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("Cron worker failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Cron-worker shutdown complete")
}
