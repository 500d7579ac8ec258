package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"go-catalog-service/internal/models"
)

const (
	reconcileTimeout  = 10 * time.Minute
	reconcilePageSize = int64(200)
)

// CatalogLister pages through every product for a full re-sync.
type CatalogLister interface {
	ListProducts(ctx context.Context, f models.ProductFilter, limit, offset int64) ([]models.Product, int64, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
}

// StartReconciliation registers a periodic full re-sync of the search
// index from Postgres and starts the scheduler. Dropped sync jobs leave
// the index diverged; this is the repair path. Returns an error if the
// schedule string is invalid so that main() can fail fast with a clear
// message instead of a buried panic.
//
// The returned *cron.Cron must be stopped on shutdown:
//
//	c, err := StartReconciliation(store, index, cfg.ReconcileSchedule)
//	defer c.Stop()  // waits for any running pass to finish before returning
func StartReconciliation(store CatalogLister, index Index, schedule string) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		slog.Info("index reconciliation started", "component", "cron")

		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()

		indexed, failed := reconcile(ctx, store, index)
		slog.Info("index reconciliation done",
			"component", "cron",
			"indexed", indexed,
			"failed", failed,
		)
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	slog.Info("reconciliation scheduler started", "component", "cron", "schedule", schedule)
	return c, nil
}

// reconcile walks every product page and re-indexes each row. Individual
// failures are logged and skipped — the next pass gets another chance.
func reconcile(ctx context.Context, store CatalogLister, index Index) (indexed, failed int) {
	for offset := int64(0); ; offset += reconcilePageSize {
		page, _, err := store.ListProducts(ctx, models.ProductFilter{}, reconcilePageSize, offset)
		if err != nil {
			slog.Error("reconciliation page failed", "component", "cron", "offset", offset, "error", err)
			return indexed, failed
		}
		if len(page) == 0 {
			return indexed, failed
		}

		for i := range page {
			// Re-fetch with the category joined; the list query
			// carries only the bare product row.
			p, err := store.GetProduct(ctx, page[i].ID)
			if err != nil {
				slog.Warn("reconciliation fetch failed", "component", "cron", "product_id", page[i].ID, "error", err)
				failed++
				continue
			}
			if err := index.IndexProduct(ctx, p); err != nil {
				slog.Warn("reconciliation index failed", "component", "cron", "product_id", p.ID, "error", err)
				failed++
				continue
			}
			indexed++
		}
	}
}
