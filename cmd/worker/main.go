package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go-catalog-service/internal/config"
	"go-catalog-service/internal/database"
	"go-catalog-service/internal/queue"
	"go-catalog-service/internal/search"
	"go-catalog-service/internal/worker"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	// ── Infrastructure ─────────────────────────────────────────────────────────

	db, err := database.Connect(cfg.PostgresDSN)
	if err != nil {
		slog.Error("postgres connect failed", "component", "worker", "error", err)
		os.Exit(1)
	}

	searchClient, err := search.New(cfg.ElasticsearchURL)
	if err != nil {
		slog.Error("elasticsearch init failed", "component", "worker", "error", err)
		os.Exit(1)
	}

	publisher, err := queue.NewPublisher(cfg.RabbitMQURL)
	if err != nil {
		slog.Error("rabbitmq connect failed", "component", "worker", "error", err)
		os.Exit(1)
	}

	consumer, err := queue.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		slog.Error("rabbitmq connect failed", "component", "worker", "error", err)
		os.Exit(1)
	}

	// ── Run ────────────────────────────────────────────────────────────────────
	//
	// ctx is cancelled on SIGINT/SIGTERM. The relay stops polling the outbox,
	// and worker.Run drains the current in-flight message and returns cleanly
	// before we close connections.

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relay := worker.NewRelay(db, publisher, cfg.OutboxPollInterval)
	go relay.Run(ctx)

	w := worker.New(db, searchClient, consumer)
	if err := w.Run(ctx); err != nil {
		slog.Error("worker error", "component", "worker", "error", err)
	}

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	//
	// Run() has returned — the consume loop is done.
	// Close connections in reverse init order.

	consumer.Close()
	publisher.Close()
	db.Conn.Close()

	slog.Info("worker stopped", "component", "worker")
}
