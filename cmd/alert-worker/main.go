package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"envelope/internal/amqp"
	"envelope/internal/config"
	"envelope/internal/log"
)

// alert-worker drains the event queue. Notification delivery is owned
// by downstream consumers; this worker logs every event so operators
// can watch alerts fire without a broker UI.
func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentAMQP)
	log.SetDefault(logger)

	logger.Info("Starting alert-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the alert-worker")
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = amqpClient.Consume(ctx, func(msg *amqp.Message) error {
		switch msg.Type {
		case amqp.TypeBudgetAlert:
			if msg.Alert == nil {
				return fmt.Errorf("budget alert without payload")
			}
			logger.Warn("Budget alert",
				"owner_id", msg.Alert.OwnerID,
				"period", msg.Alert.Period,
				"category_id", msg.Alert.CategoryID,
				"category", msg.Alert.CategoryName,
				"limit_cents", msg.Alert.LimitCents,
				"spent_cents", msg.Alert.SpentCents,
				"percentage", msg.Alert.Percentage,
				"over_limit", msg.Alert.OverLimit)
		case amqp.TypeExpenseMaterialized:
			if msg.Materialized == nil {
				return fmt.Errorf("materialized event without payload")
			}
			logger.Info("Expense materialized",
				"owner_id", msg.Materialized.OwnerID,
				"recurring_id", msg.Materialized.RecurringID,
				"expense_id", msg.Materialized.ExpenseID,
				"amount_cents", msg.Materialized.AmountCents,
				"due_date", msg.Materialized.DueDate)
		default:
			logger.Warn("Unknown event type, dropping", "type", msg.Type)
		}
		return nil
	})
	if err != nil && err != context.Canceled {
		logger.Error("Consumption failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Alert-worker shutdown complete")
}
