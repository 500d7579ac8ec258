// Package worker keeps the search index converged with Postgres: it
// consumes sync jobs from RabbitMQ, relays the durable outbox into the
// queue, and periodically re-syncs the whole catalog.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"go-catalog-service/internal/metrics"
	"go-catalog-service/internal/models"
	"go-catalog-service/internal/queue"
)

// Per-job policy: a transient index failure is retried a bounded number of
// times with a fixed delay, then the job is dropped. A dropped job means
// the index diverges for that product until the reconciliation cron passes.
const (
	maxAttempts       = 3
	defaultRetryDelay = 2 * time.Second
	perJobTimeout     = 10 * time.Second
)

// ProductStore re-fetches products at apply time. Job payloads only carry
// the product ID — state captured at enqueue time is never applied, so
// out-of-order deliveries cannot write stale documents.
type ProductStore interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
}

// Index is the search index contract. DeleteProduct must be idempotent:
// deleting an absent document succeeds.
type Index interface {
	IndexProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, productID int64) error
}

// Worker consumes sync jobs and applies them to the search index.
type Worker struct {
	store      ProductStore
	index      Index
	consumer   *queue.Consumer
	retryDelay time.Duration
}

// New constructs a Worker. All dependencies are injected — no globals.
func New(store ProductStore, index Index, consumer *queue.Consumer) *Worker {
	return &Worker{store: store, index: index, consumer: consumer, retryDelay: defaultRetryDelay}
}

// Run starts consuming jobs and blocks until ctx is cancelled.
// On cancellation it drains any in-flight job before returning,
// so the caller's deferred Close() calls happen after the loop is clean.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.consumer.Consume(ctx)
	if err != nil {
		return err
	}

	slog.Info("index sync worker started", "component", "worker")

	for {
		select {
		case <-ctx.Done():
			slog.Info("index sync worker shutting down", "component", "worker")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				slog.Warn("delivery channel closed", "component", "worker")
				return nil
			}
			w.process(delivery)
		}
	}
}

// process applies one delivery and always acks it: either the job was
// applied, or retries were exhausted and the job is deliberately dropped.
// Nacking here would loop a poisoned job forever; divergence is tolerated
// and repaired by reconciliation instead.
func (w *Worker) process(d queue.Delivery) {
	job := d.Job

	ctx, cancel := context.WithTimeout(context.Background(), perJobTimeout)
	defer cancel()

	if err := w.apply(ctx, job); err != nil {
		slog.Error("sync job dropped after retries",
			"component", "worker",
			"op", job.Op,
			"product_id", job.ProductID,
			"error", err,
		)
		metrics.SyncJobs.WithLabelValues(job.Op, "dropped").Inc()
	} else {
		metrics.SyncJobs.WithLabelValues(job.Op, "applied").Inc()
		slog.Info("sync job applied",
			"component", "worker",
			"op", job.Op,
			"product_id", job.ProductID,
		)
	}

	if err := d.Ack(); err != nil {
		slog.Error("ack failed", "component", "worker", "product_id", job.ProductID, "error", err)
	}
}

// apply runs one job with bounded retry. Unknown ops are dropped without
// retry — they will never become valid.
func (w *Worker) apply(ctx context.Context, job *models.SyncJob) error {
	if job.Op != models.SyncOpUpsert && job.Op != models.SyncOpDelete {
		return errors.New("unknown sync op: " + job.Op)
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.SyncJobs.WithLabelValues(job.Op, "retried").Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.retryDelay):
			}
		}
		if err = w.applyOnce(ctx, job); err == nil {
			return nil
		}
		slog.Warn("sync job attempt failed",
			"component", "worker",
			"op", job.Op,
			"product_id", job.ProductID,
			"attempt", attempt,
			"error", err,
		)
	}
	return err
}

func (w *Worker) applyOnce(ctx context.Context, job *models.SyncJob) error {
	switch job.Op {
	case models.SyncOpDelete:
		return w.index.DeleteProduct(ctx, job.ProductID)

	default: // upsert
		p, err := w.store.GetProduct(ctx, job.ProductID)
		if errors.Is(err, sql.ErrNoRows) {
			// Deleted between enqueue and apply: converge on the
			// current state, which is "gone".
			return w.index.DeleteProduct(ctx, job.ProductID)
		}
		if err != nil {
			return err
		}
		return w.index.IndexProduct(ctx, p)
	}
}
