package worker

import (
	"context"
	"log/slog"
	"time"

	"go-catalog-service/internal/models"
)

// Outbox reads and stamps the durable sync job log.
type Outbox interface {
	FetchPendingSyncJobs(ctx context.Context, limit int) ([]models.SyncJob, error)
	MarkSyncJobDispatched(ctx context.Context, id int64) error
}

// JobPublisher hands jobs to the broker.
type JobPublisher interface {
	PublishSyncJob(ctx context.Context, job *models.SyncJob) error
}

// Relay drains the transactional outbox into RabbitMQ. The outbox row is
// only stamped after a successful publish, so a crash anywhere in between
// re-publishes the job — downstream handling is idempotent, so duplicate
// delivery is harmless.
type Relay struct {
	outbox    Outbox
	publisher JobPublisher
	interval  time.Duration
	batchSize int
}

func NewRelay(outbox Outbox, publisher JobPublisher, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{outbox: outbox, publisher: publisher, interval: interval, batchSize: 100}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	slog.Info("outbox relay started", "component", "relay", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("outbox relay shutting down", "component", "relay")
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				slog.Error("outbox relay pass failed", "component", "relay", "error", err)
			}
		}
	}
}

// RunOnce relays one batch of pending jobs in insertion order and returns
// how many were dispatched. A publish failure stops the pass — the
// remaining rows stay pending and the next tick retries from where this
// one stopped.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	jobs, err := r.outbox.FetchPendingSyncJobs(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	for i := range jobs {
		job := &jobs[i]
		if err := r.publisher.PublishSyncJob(ctx, job); err != nil {
			return i, err
		}
		if err := r.outbox.MarkSyncJobDispatched(ctx, job.ID); err != nil {
			return i, err
		}
	}
	return len(jobs), nil
}
