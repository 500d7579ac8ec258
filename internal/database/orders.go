package database

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"go-catalog-service/internal/metrics"
	"go-catalog-service/internal/models"
)

// CreateOrder places an order in a single transaction: every line item's
// stock is taken with an atomic conditional decrement, and the per-line
// price is snapshotted from the product row as it is at this moment.
// Any failed line (unknown product, insufficient stock) rolls the whole
// order back — no partial stock mutation survives.
//
// Note that this path deliberately does not touch the catalog cache:
// stock-only changes from order placement leave cached listings stale
// until their TTL expires.
func (db *DB) CreateOrder(ctx context.Context, o *models.Order) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	timer := prometheus.NewTimer(metrics.DBQueryDuration.WithLabelValues("create_order"))
	defer timer.ObserveDuration()

	tx, err := db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (id, user_id, status, address, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 RETURNING created_at, updated_at`,
		o.ID, o.UserID, o.Status, o.Address,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range o.Items {
		item := &o.Items[i]

		p, err := decrementStockTx(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return err
		}
		item.PriceAtPurchase = p.EffectivePrice()

		if err := tx.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, price_at_purchase)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			o.ID, item.ProductID, item.Quantity, item.PriceAtPurchase,
		).Scan(&item.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetOrder fetches an order with its items. Returns sql.ErrNoRows when the
// ID does not exist.
func (db *DB) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var o models.Order
	err := db.Conn.QueryRowContext(ctx,
		`SELECT id, user_id, status, address, created_at, updated_at
		 FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.UserID, &o.Status, &o.Address, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	items, err := db.orderItems(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

// ListOrders returns a user's orders, newest first, optionally filtered by
// status.
func (db *DB) ListOrders(ctx context.Context, userID int64, status string) ([]models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	query := `SELECT id, user_id, status, address, created_at, updated_at
		 FROM orders WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.Address, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		items, err := db.orderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (db *DB) orderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	rows, err := db.Conn.QueryContext(ctx,
		`SELECT id, product_id, quantity, price_at_purchase
		 FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Quantity, &it.PriceAtPurchase); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateOrderStatus persists a status transition already validated by the
// service layer. Returns sql.ErrNoRows when the ID does not exist.
func (db *DB) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	var id string
	return db.Conn.QueryRowContext(ctx,
		"UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING id",
		orderID, status,
	).Scan(&id)
}

// GetCart fetches the user's cart with items. Returns sql.ErrNoRows when
// the user has no cart yet.
func (db *DB) GetCart(ctx context.Context, userID int64) (*models.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var c models.Cart
	err := db.Conn.QueryRowContext(ctx,
		"SELECT id, user_id FROM carts WHERE user_id = $1", userID,
	).Scan(&c.ID, &c.UserID)
	if err != nil {
		return nil, err
	}

	rows, err := db.Conn.QueryContext(ctx,
		"SELECT id, product_id, quantity FROM cart_items WHERE cart_id = $1 ORDER BY id", c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it models.CartItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Quantity); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, it)
	}
	return &c, rows.Err()
}

// AddCartItem performs the get-or-create-and-increment: the cart row is
// created on first use, and adding a product already in the cart bumps its
// quantity instead of inserting a second row.
func (db *DB) AddCartItem(ctx context.Context, userID, productID, quantity int64) (*models.CartItem, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	tx, err := db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	var cartID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO carts (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING id`, userID,
	).Scan(&cartID)
	if err != nil {
		return nil, err
	}

	var it models.CartItem
	it.ProductID = productID
	err = tx.QueryRowContext(ctx,
		`INSERT INTO cart_items (cart_id, product_id, quantity)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (cart_id, product_id)
		 DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		 RETURNING id, quantity`,
		cartID, productID, quantity,
	).Scan(&it.ID, &it.Quantity)
	if err != nil {
		return nil, err
	}
	return &it, tx.Commit()
}

// UpdateCartItem sets an item's quantity. Returns sql.ErrNoRows when the
// user has no such item.
func (db *DB) UpdateCartItem(ctx context.Context, userID, productID, quantity int64) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	var id int64
	return db.Conn.QueryRowContext(ctx,
		`UPDATE cart_items SET quantity = $3
		 WHERE product_id = $2
		   AND cart_id = (SELECT id FROM carts WHERE user_id = $1)
		 RETURNING id`,
		userID, productID, quantity,
	).Scan(&id)
}

// RemoveCartItem removes a product from the user's cart. Returns
// sql.ErrNoRows when the item is not in the cart.
func (db *DB) RemoveCartItem(ctx context.Context, userID, productID int64) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	var id int64
	return db.Conn.QueryRowContext(ctx,
		`DELETE FROM cart_items
		 WHERE product_id = $2
		   AND cart_id = (SELECT id FROM carts WHERE user_id = $1)
		 RETURNING id`,
		userID, productID,
	).Scan(&id)
}
