// Package database is the Postgres store — the source of truth for
// products, categories, carts and orders.
//
// Expected tables: categories, products, reviews, carts, cart_items,
// orders, order_items, and catalog_outbox (id bigserial, op text,
// product_id bigint, created_at timestamptz, dispatched_at timestamptz
// null). Product mutations write their outbox row in the same transaction
// as the mutation itself, so no index sync job can be lost between a
// commit and a publish.
package database

import (
	"database/sql"
	"errors"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// Operation timeouts.
// These cap how long a single DB call can hold a connection / wait on a
// lock. They are intentionally tighter than the HTTP WriteTimeout so the
// handler can return a clean 500 before the client's TCP connection times out.
const (
	readTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second
	bulkTimeout  = 30 * time.Second // bulk import commits hundreds of rows at once
)

// ErrInsufficientStock is returned when an order line asks for more units
// than the product currently has. The conditional decrement makes this
// check atomic — two concurrent orders cannot both take the last unit.
var ErrInsufficientStock = errors.New("database: insufficient stock")

type DB struct {
	Conn *sql.DB
}

// Connect opens and verifies a Postgres connection.
func Connect(connStr string) (*DB, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		return nil, err
	}
	slog.Info("postgres connected")
	return &DB{Conn: conn}, nil
}
