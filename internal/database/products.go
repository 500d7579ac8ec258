package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"go-catalog-service/internal/metrics"
	"go-catalog-service/internal/models"
)

const productColumns = `p.id, p.category_id, p.name, p.slug, p.description,
	p.price, p.sell_price, p.on_sell, p.stock, COALESCE(p.image, ''),
	p.created_at, p.updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Slug, &p.Description,
		&p.Price, &p.SellPrice, &p.OnSell, &p.Stock, &p.Image,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// filterClauses translates the allow-listed filters into WHERE predicates.
// Placeholders are numbered from the current length of args.
func filterClauses(f models.ProductFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.CategoryID != nil {
		add("p.category_id = $%d", *f.CategoryID)
	}
	if f.Price != nil {
		add("p.price = $%d", *f.Price)
	}
	if f.PriceLT != nil {
		add("p.price < $%d", *f.PriceLT)
	}
	if f.PriceGT != nil {
		add("p.price > $%d", *f.PriceGT)
	}
	if f.Name != "" {
		add("p.name ILIKE '%%' || $%d || '%%'", f.Name)
	}
	if f.Description != "" {
		add("p.description ILIKE '%%' || $%d || '%%'", f.Description)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListProducts returns one page of filtered products plus the total match
// count (ignoring limit/offset), ordered newest first.
func (db *DB) ListProducts(ctx context.Context, f models.ProductFilter, limit, offset int64) ([]models.Product, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	timer := prometheus.NewTimer(metrics.DBQueryDuration.WithLabelValues("list_products"))
	defer timer.ObserveDuration()

	where, args := filterClauses(f)

	var count int64
	if err := db.Conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM products p"+where, args...,
	).Scan(&count); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(
		"SELECT %s FROM products p%s ORDER BY p.created_at DESC, p.updated_at DESC, p.name LIMIT $%d OFFSET $%d",
		productColumns, where, len(args)+1, len(args)+2,
	)
	rows, err := db.Conn.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	return products, count, rows.Err()
}

// GetProduct fetches a product by ID with its category joined in (the
// worker denormalizes the category into the search document).
// Returns sql.ErrNoRows when the ID does not exist.
func (db *DB) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s, c.name, c.slug, COALESCE(c.description, '')
		FROM products p JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1`, productColumns)

	var (
		p models.Product
		c models.Category
	)
	err := db.Conn.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.CategoryID, &p.Name, &p.Slug, &p.Description,
		&p.Price, &p.SellPrice, &p.OnSell, &p.Stock, &p.Image,
		&p.CreatedAt, &p.UpdatedAt, &c.Name, &c.Slug, &c.Description)
	if err != nil {
		return nil, err
	}
	c.ID = p.CategoryID
	p.Category = &c
	return &p, nil
}

// GetProductBySlug fetches a product by its unique slug.
func (db *DB) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT %s FROM products p WHERE p.slug = $1", productColumns)
	return scanProduct(db.Conn.QueryRowContext(ctx, query, slug))
}

// ProductSlugExists reports whether any product already uses slug.
func (db *DB) ProductSlugExists(ctx context.Context, slug string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var exists bool
	err := db.Conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM products WHERE slug = $1)", slug,
	).Scan(&exists)
	return exists, err
}

// CreateProduct inserts the product and its upsert outbox row in one
// transaction, filling in the generated ID and timestamps.
func (db *DB) CreateProduct(ctx context.Context, p *models.Product) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	tx, err := db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	err = tx.QueryRowContext(ctx,
		`INSERT INTO products (category_id, name, slug, description, price, sell_price, on_sell, stock, image, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		p.CategoryID, p.Name, p.Slug, p.Description, p.Price, p.SellPrice, p.OnSell, p.Stock, p.Image,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return err
	}

	if err := insertOutboxTx(ctx, tx, models.SyncOpUpsert, p.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateProduct persists the full product row and its upsert outbox row in
// one transaction. Returns sql.ErrNoRows when the ID does not exist.
func (db *DB) UpdateProduct(ctx context.Context, p *models.Product) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	tx, err := db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	err = tx.QueryRowContext(ctx,
		`UPDATE products
		 SET category_id = $2, name = $3, slug = $4, description = $5,
		     price = $6, sell_price = $7, on_sell = $8, stock = $9,
		     image = NULLIF($10, ''), updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		p.ID, p.CategoryID, p.Name, p.Slug, p.Description,
		p.Price, p.SellPrice, p.OnSell, p.Stock, p.Image,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return err
	}

	if err := insertOutboxTx(ctx, tx, models.SyncOpUpsert, p.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteProduct removes the product and records a delete outbox row in one
// transaction. Returns sql.ErrNoRows when the ID does not exist.
func (db *DB) DeleteProduct(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	tx, err := db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var deleted int64
	if err := tx.QueryRowContext(ctx,
		"DELETE FROM products WHERE id = $1 RETURNING id", id,
	).Scan(&deleted); err != nil {
		return err
	}

	if err := insertOutboxTx(ctx, tx, models.SyncOpDelete, id); err != nil {
		return err
	}
	return tx.Commit()
}

// BulkInsertProducts inserts a whole import batch and one upsert outbox row
// per product in a single transaction — either the batch lands or none of
// it does.
func (db *DB) BulkInsertProducts(ctx context.Context, products []*models.Product) error {
	if len(products) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, bulkTimeout)
	defer cancel()

	timer := prometheus.NewTimer(metrics.DBQueryDuration.WithLabelValues("bulk_insert_products"))
	defer timer.ObserveDuration()

	tx, err := db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO products (category_id, name, slug, description, price, sell_price, on_sell, stock, image, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NOW(), NOW())
		 RETURNING id`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range products {
		if err := stmt.QueryRowContext(ctx,
			p.CategoryID, p.Name, p.Slug, p.Description, p.Price, p.SellPrice, p.OnSell, p.Stock, p.Image,
		).Scan(&p.ID); err != nil {
			return err
		}
		if err := insertOutboxTx(ctx, tx, models.SyncOpUpsert, p.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DecrementStockTx atomically takes quantity units of stock inside an open
// transaction. The WHERE clause is the oversell guard: if stock is short
// the UPDATE matches nothing and ErrInsufficientStock is returned (or
// sql.ErrNoRows when the product does not exist at all).
func decrementStockTx(ctx context.Context, tx *sql.Tx, productID, quantity int64) (*models.Product, error) {
	var p models.Product
	err := tx.QueryRowContext(ctx,
		`UPDATE products
		 SET stock = stock - $2, updated_at = NOW()
		 WHERE id = $1 AND stock >= $2
		 RETURNING id, price, sell_price, on_sell, stock`,
		productID, quantity,
	).Scan(&p.ID, &p.Price, &p.SellPrice, &p.OnSell, &p.Stock)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)", productID,
	).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, sql.ErrNoRows
	}
	return nil, ErrInsufficientStock
}
