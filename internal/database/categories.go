package database

import (
	"context"

	"go-catalog-service/internal/models"
)

// ListCategories returns one page of categories plus the total count.
func (db *DB) ListCategories(ctx context.Context, limit, offset int64) ([]models.Category, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var count int64
	if err := db.Conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories").Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := db.Conn.QueryContext(ctx,
		`SELECT id, name, slug, COALESCE(description, '')
		 FROM categories ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description); err != nil {
			return nil, 0, err
		}
		categories = append(categories, c)
	}
	return categories, count, rows.Err()
}

// GetCategoryBySlug returns sql.ErrNoRows when the slug is unknown.
func (db *DB) GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var c models.Category
	err := db.Conn.QueryRowContext(ctx,
		"SELECT id, name, slug, COALESCE(description, '') FROM categories WHERE slug = $1",
		slug,
	).Scan(&c.ID, &c.Name, &c.Slug, &c.Description)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCategoryByName is used by the bulk importer to resolve category_name
// columns. Returns sql.ErrNoRows when no category has that name.
func (db *DB) GetCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var c models.Category
	err := db.Conn.QueryRowContext(ctx,
		"SELECT id, name, slug, COALESCE(description, '') FROM categories WHERE name = $1",
		name,
	).Scan(&c.ID, &c.Name, &c.Slug, &c.Description)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CategorySlugExists reports whether any category already uses slug.
func (db *DB) CategorySlugExists(ctx context.Context, slug string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var exists bool
	err := db.Conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM categories WHERE slug = $1)", slug,
	).Scan(&exists)
	return exists, err
}

// CreateCategory inserts the category and fills in the generated ID.
func (db *DB) CreateCategory(ctx context.Context, c *models.Category) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return db.Conn.QueryRowContext(ctx,
		`INSERT INTO categories (name, slug, description)
		 VALUES ($1, $2, NULLIF($3, '')) RETURNING id`,
		c.Name, c.Slug, c.Description,
	).Scan(&c.ID)
}

// ListReviews returns all reviews for a product, newest first.
func (db *DB) ListReviews(ctx context.Context, productID int64) ([]models.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	rows, err := db.Conn.QueryContext(ctx,
		`SELECT id, product_id, author, rating, comment, created_at
		 FROM reviews WHERE product_id = $1 ORDER BY created_at DESC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []models.Review
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.ProductID, &r.Author, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, err
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// AddReview inserts a review and fills in the generated ID and timestamp.
func (db *DB) AddReview(ctx context.Context, r *models.Review) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return db.Conn.QueryRowContext(ctx,
		`INSERT INTO reviews (product_id, author, rating, comment, created_at)
		 VALUES ($1, $2, $3, $4, NOW()) RETURNING id, created_at`,
		r.ProductID, r.Author, r.Rating, r.Comment,
	).Scan(&r.ID, &r.CreatedAt)
}
