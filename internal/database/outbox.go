package database

import (
	"context"
	"database/sql"

	"go-catalog-service/internal/models"
)

// insertOutboxTx records a sync job inside the caller's transaction. The
// job becomes visible to the relay only when the product mutation commits,
// so the index can never be told about a mutation that rolled back.
func insertOutboxTx(ctx context.Context, tx *sql.Tx, op string, productID int64) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO catalog_outbox (op, product_id, created_at) VALUES ($1, $2, NOW())",
		op, productID)
	return err
}

// FetchPendingSyncJobs returns up to limit undispatched outbox rows in
// insertion order.
func (db *DB) FetchPendingSyncJobs(ctx context.Context, limit int) ([]models.SyncJob, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	rows, err := db.Conn.QueryContext(ctx,
		`SELECT id, op, product_id, created_at FROM catalog_outbox
		 WHERE dispatched_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.SyncJob
	for rows.Next() {
		var j models.SyncJob
		if err := rows.Scan(&j.ID, &j.Op, &j.ProductID, &j.CreatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MarkSyncJobDispatched stamps an outbox row after a successful publish.
// A crash between publish and this update re-publishes the job on the next
// poll — downstream handling is idempotent, so at-least-once is fine.
func (db *DB) MarkSyncJobDispatched(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := db.Conn.ExecContext(ctx,
		"UPDATE catalog_outbox SET dispatched_at = NOW() WHERE id = $1", id)
	return err
}
