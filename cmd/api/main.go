package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-catalog-service/internal/api"
	"go-catalog-service/internal/authz"
	"go-catalog-service/internal/cache"
	"go-catalog-service/internal/carts"
	"go-catalog-service/internal/catalog"
	"go-catalog-service/internal/config"
	"go-catalog-service/internal/database"
	"go-catalog-service/internal/importer"
	"go-catalog-service/internal/orders"
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
		slog.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}

	redisClient, err := cache.New(cfg.RedisAddr)
	if err != nil {
		slog.Error("redis connect failed", "error", err)
		os.Exit(1)
	}

	searchClient, err := search.New(cfg.ElasticsearchURL)
	if err != nil {
		slog.Error("elasticsearch init failed", "error", err)
		os.Exit(1)
	}

	// ── Services ───────────────────────────────────────────────────────────────

	policy := authz.NewRolePolicy()
	catalogSvc := catalog.NewService(db, redisClient, searchClient, policy)
	orderSvc := orders.NewService(db, policy)
	cartSvc := carts.NewService(db, redisClient)
	imp := importer.New(db, redisClient)

	// ── Background reconciliation ──────────────────────────────────────────────
	//
	// Sync jobs that exhaust their retries are dropped; the scheduled full
	// re-index is what brings Elasticsearch back in line with Postgres.

	cronScheduler, err := worker.StartReconciliation(db, searchClient, cfg.ReconcileSchedule)
	if err != nil {
		slog.Error("invalid cron schedule", "schedule", cfg.ReconcileSchedule, "error", err)
		os.Exit(1)
	}

	// ── HTTP server ────────────────────────────────────────────────────────────

	h := &api.Handler{
		Catalog:  catalogSvc,
		Orders:   orderSvc,
		Carts:    cartSvc,
		Importer: imp,
		Policy:   policy,
	}

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second, // bulk imports hold the connection longer
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api started", "component", "api", "port", cfg.APIPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "component", "api", "error", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	//
	// Shutdown order matters:
	//  1. Stop accepting new HTTP requests (srv.Shutdown) — in-flight requests finish.
	//  2. Stop the cron scheduler — waits for a running reconciliation pass
	//     to complete before returning, so db.Close() does not yank the
	//     connection mid-query.
	//  3. Close infrastructure clients in reverse init order.

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutdown signal received", "component", "api")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "component", "api", "error", err)
	}

	// cron.Stop() blocks until the currently-running job (if any) finishes.
	<-cronScheduler.Stop().Done()
	slog.Info("cron stopped", "component", "api")

	redisClient.Close()
	db.Conn.Close()

	slog.Info("shutdown complete", "component", "api")
}
