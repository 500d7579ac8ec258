package catalog

import (
	"context"
	"database/sql"
	"errors"

	"go-catalog-service/internal/authz"
	"go-catalog-service/internal/cache"
	"go-catalog-service/internal/models"
)

// ListCategories serves one page of categories, read-through cached.
func (s *Service) ListCategories(ctx context.Context, limit, offset int64) (*CategoryPage, error) {
	limit, offset = clampWindow(limit, offset)

	key := cache.NewKey(cache.NSCategoryList).Int(offset).Int(limit)

	var cached CategoryPage
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	categories, count, err := s.store.ListCategories(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	page := NewCategoryPage(categories, count, limit, offset)
	s.cacheSet(ctx, key, page, cache.DefaultTTL)
	return &page, nil
}

// GetCategoryBySlug serves the by-slug category lookup through the cache.
func (s *Service) GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	key := cache.NewKey(cache.NSCategory).Str(slug)

	var cached models.Category
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	c, err := s.store.GetCategoryBySlug(ctx, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, key, c, cache.DefaultTTL)
	return c, nil
}

// CategoryInput is the write payload for category creation.
type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateCategory derives a collision-free slug, persists, and invalidates
// cached category lists.
func (s *Service) CreateCategory(ctx context.Context, actor authz.Actor, in CategoryInput) (*models.Category, error) {
	if !s.policy.CanWrite(actor, "category") {
		return nil, ErrPermission
	}
	if in.Name == "" {
		return nil, NewValidationError("name", "Name is required.")
	}

	slug, err := ResolveSlug(ctx, in.Name, s.store.CategorySlugExists)
	if err != nil {
		return nil, err
	}

	c := &models.Category{Name: in.Name, Slug: slug, Description: in.Description}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, err
	}

	s.invalidatePattern(ctx, cache.NSCategoryList.Pattern())
	return c, nil
}

// ListReviews returns all reviews for a product, read-through cached.
func (s *Service) ListReviews(ctx context.Context, productID int64) ([]models.Review, error) {
	key := cache.NewKey(cache.NSReviews).Int(productID)

	var cached []models.Review
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	reviews, err := s.store.ListReviews(ctx, productID)
	if err != nil {
		return nil, err
	}
	if reviews == nil {
		reviews = []models.Review{}
	}

	s.cacheSet(ctx, key, reviews, cache.DefaultTTL)
	return reviews, nil
}

// ReviewInput is the write payload for adding a review.
type ReviewInput struct {
	Author  string `json:"author"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// AddReview validates the rating, persists, and invalidates the product's
// cached review list.
func (s *Service) AddReview(ctx context.Context, productID int64, in ReviewInput) (*models.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, NewValidationError("rating", "Rating must be between 1 and 5.")
	}

	if _, err := s.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	r := &models.Review{ProductID: productID, Author: in.Author, Rating: in.Rating, Comment: in.Comment}
	if err := s.store.AddReview(ctx, r); err != nil {
		return nil, err
	}

	s.cacheDelete(ctx, cache.NewKey(cache.NSReviews).Int(productID))
	return r, nil
}
