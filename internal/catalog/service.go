// Package catalog orchestrates the product catalog's read and write paths:
// reads go cache → store → cache back-fill, writes go policy check →
// validation → store (which records the index sync job in the same
// transaction) → cache invalidation.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go-catalog-service/internal/authz"
	"go-catalog-service/internal/cache"
	"go-catalog-service/internal/models"
	"go-catalog-service/internal/search"
)

// Defaults applied when a request does not specify pagination.
const (
	DefaultLimit  = 10
	DefaultOffset = 0
)

// filterAllowList is the set of query parameters translated into store
// predicates; anything else in the query string is ignored.
var filterAllowList = []string{"category", "price", "price_lt", "price_gt", "name", "description"}

// Store is the source-of-truth contract the service needs from Postgres.
type Store interface {
	ListProducts(ctx context.Context, f models.ProductFilter, limit, offset int64) ([]models.Product, int64, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*models.Product, error)
	ProductSlugExists(ctx context.Context, slug string) (bool, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error

	ListCategories(ctx context.Context, limit, offset int64) ([]models.Category, int64, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error)
	CategorySlugExists(ctx context.Context, slug string) (bool, error)
	CreateCategory(ctx context.Context, c *models.Category) error

	ListReviews(ctx context.Context, productID int64) ([]models.Review, error)
	AddReview(ctx context.Context, r *models.Review) error
}

// Cache is the TTL-bounded key-value contract. Any failure other than
// cache.ErrNotFound is treated as a miss — the store always wins.
type Cache interface {
	Get(ctx context.Context, key cache.Key, dest any) error
	Set(ctx context.Context, key cache.Key, val any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...cache.Key) error
	DeletePattern(ctx context.Context, pattern string) error
}

// Search is the full-text contract backed by Elasticsearch.
type Search interface {
	SearchProducts(ctx context.Context, query string, limit, offset int64) (*search.Result, error)
	SuggestProducts(ctx context.Context, query string, limit int64) ([]string, error)
	SimilarProducts(ctx context.Context, p *models.Product, limit int64) (*search.Result, error)
}

// Service wires store, cache, search and the write policy together.
type Service struct {
	store  Store
	cache  Cache
	search Search
	policy authz.Policy
}

func NewService(store Store, c Cache, s Search, policy authz.Policy) *Service {
	return &Service{store: store, cache: c, search: s, policy: policy}
}

// ---------------------------------------------------------------------------
// Read path
// ---------------------------------------------------------------------------

// ListProducts serves one filtered page, read-through cached.
//
// Two consecutive calls with the same parameters hit the store once: the
// first populates the cache, the second is served from it. A concurrent
// pair that both miss will both query and both set — last writer wins,
// which is fine because equal keys hold equal values.
func (s *Service) ListProducts(ctx context.Context, rawFilters map[string]string, limit, offset int64) (*Page, error) {
	filters := normalizeFilters(rawFilters)
	limit, offset = clampWindow(limit, offset)

	key := cache.NewKey(cache.NSProductList).Int(limit).Int(offset).Map(filters)

	var cached Page
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	f, err := parseFilter(filters)
	if err != nil {
		return nil, err
	}

	products, count, err := s.store.ListProducts(ctx, f, limit, offset)
	if err != nil {
		return nil, err
	}

	page := NewPage(products, count, limit, offset, filters)
	s.cacheSet(ctx, key, page, cache.DefaultTTL)
	return &page, nil
}

// GetProduct fetches a single product by ID, uncached.
func (s *Service) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// GetProductBySlug serves the by-slug lookup through the cache.
func (s *Service) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	key := cache.NewKey(cache.NSSlug).Str(slug)

	var cached models.Product
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	p, err := s.store.GetProductBySlug(ctx, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, key, p, cache.DefaultTTL)
	return p, nil
}

// ---------------------------------------------------------------------------
// Write path
// ---------------------------------------------------------------------------

// ProductInput is the write payload for creation.
type ProductInput struct {
	CategoryID  int64   `json:"category"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	SellPrice   float64 `json:"sell_price"`
	OnSell      bool    `json:"on_sell"`
	Stock       int64   `json:"stock"`
	Image       string  `json:"image"`
}

// ProductPatch is the partial-update payload; nil fields keep their
// persisted values. Price invariants are re-validated against the mix of
// supplied and existing values.
type ProductPatch struct {
	CategoryID  *int64   `json:"category"`
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	SellPrice   *float64 `json:"sell_price"`
	OnSell      *bool    `json:"on_sell"`
	Stock       *int64   `json:"stock"`
	Image       *string  `json:"image"`
}

// CreateProduct validates, derives a collision-free slug, persists the
// product together with its index sync job, and invalidates cached lists.
func (s *Service) CreateProduct(ctx context.Context, actor authz.Actor, in ProductInput) (*models.Product, error) {
	if !s.policy.CanWrite(actor, "product") {
		return nil, ErrPermission
	}

	ve := &ValidationError{Fields: map[string]string{}}
	if in.Name == "" {
		ve.Fields["name"] = "Name is required."
	}
	if in.CategoryID == 0 {
		ve.Fields["category"] = "Category is required."
	}
	if in.Stock < 0 {
		ve.Fields["stock"] = "Stock cannot be negative."
	}
	validatePrices(ve, in.Price, in.SellPrice)
	if len(ve.Fields) > 0 {
		return nil, ve
	}

	slug, err := ResolveSlug(ctx, in.Name, s.store.ProductSlugExists)
	if err != nil {
		return nil, err
	}

	p := &models.Product{
		CategoryID:  in.CategoryID,
		Name:        in.Name,
		Slug:        slug,
		Description: in.Description,
		Price:       in.Price,
		SellPrice:   in.SellPrice,
		OnSell:      in.OnSell,
		Stock:       in.Stock,
		Image:       in.Image,
	}
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, err
	}

	s.invalidateProductLists(ctx)
	return p, nil
}

// UpdateProduct applies a partial update. The price/sell_price invariant is
// checked over supplied-or-persisted values, so patching only sell_price
// above the stored price still fails.
func (s *Service) UpdateProduct(ctx context.Context, actor authz.Actor, id int64, patch ProductPatch) (*models.Product, error) {
	if !s.policy.CanWrite(actor, "product") {
		return nil, ErrPermission
	}

	p, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	price, sellPrice := p.Price, p.SellPrice
	if patch.Price != nil {
		price = *patch.Price
	}
	if patch.SellPrice != nil {
		sellPrice = *patch.SellPrice
	}
	ve := &ValidationError{Fields: map[string]string{}}
	validatePrices(ve, price, sellPrice)
	if patch.Stock != nil && *patch.Stock < 0 {
		ve.Fields["stock"] = "Stock cannot be negative."
	}
	if len(ve.Fields) > 0 {
		return nil, ve
	}

	p.Price, p.SellPrice = price, sellPrice
	if patch.CategoryID != nil {
		p.CategoryID = *patch.CategoryID
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.OnSell != nil {
		p.OnSell = *patch.OnSell
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	if patch.Image != nil {
		p.Image = *patch.Image
	}

	if err := s.store.UpdateProduct(ctx, p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.invalidateProductLists(ctx)
	s.cacheDelete(ctx, cache.NewKey(cache.NSSlug).Str(p.Slug))
	return p, nil
}

// DeleteProduct removes the product, records the index delete job, and
// invalidates cached lists plus the by-slug entry.
func (s *Service) DeleteProduct(ctx context.Context, actor authz.Actor, id int64) error {
	if !s.policy.CanWrite(actor, "product") {
		return ErrPermission
	}

	p, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := s.store.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	s.invalidateProductLists(ctx)
	s.cacheDelete(ctx, cache.NewKey(cache.NSSlug).Str(p.Slug))
	return nil
}

// ---------------------------------------------------------------------------
// Cache helpers: fail open, log, move on
// ---------------------------------------------------------------------------

// cacheGet reports whether dest was populated from the cache. Any error —
// miss or Redis being down — means "no", and only real failures are logged.
func (s *Service) cacheGet(ctx context.Context, key cache.Key, dest any) bool {
	err := s.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrNotFound) {
		slog.Warn("cache read failed", "component", "catalog", "key", key.String(), "error", err)
	}
	return false
}

func (s *Service) cacheSet(ctx context.Context, key cache.Key, val any, ttl time.Duration) {
	if err := s.cache.Set(ctx, key, val, ttl); err != nil {
		slog.Warn("cache write failed", "component", "catalog", "key", key.String(), "error", err)
	}
}

func (s *Service) cacheDelete(ctx context.Context, keys ...cache.Key) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		slog.Warn("cache delete failed", "component", "catalog", "error", err)
	}
}

func (s *Service) invalidateProductLists(ctx context.Context) {
	s.invalidatePattern(ctx, cache.NSProductList.Pattern())
}

// invalidatePattern fails open: a stale entry that survives an invalidation
// error still expires with its TTL.
func (s *Service) invalidatePattern(ctx context.Context, pattern string) {
	if err := s.cache.DeletePattern(ctx, pattern); err != nil {
		slog.Warn("cache invalidation failed",
			"component", "catalog",
			"pattern", pattern,
			"error", err,
		)
	}
}

// ---------------------------------------------------------------------------
// Input normalization
// ---------------------------------------------------------------------------

func normalizeFilters(raw map[string]string) map[string]string {
	filters := make(map[string]string, len(raw))
	for _, k := range filterAllowList {
		if v, ok := raw[k]; ok && v != "" {
			filters[k] = v
		}
	}
	return filters
}

func clampWindow(limit, offset int64) (int64, int64) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = DefaultOffset
	}
	return limit, offset
}

func parseFilter(filters map[string]string) (models.ProductFilter, error) {
	var f models.ProductFilter

	if v, ok := filters["category"]; ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, NewValidationError("category", "Category must be an integer ID.")
		}
		f.CategoryID = &id
	}
	for _, pf := range []struct {
		key  string
		dest **float64
	}{
		{"price", &f.Price},
		{"price_lt", &f.PriceLT},
		{"price_gt", &f.PriceGT},
	} {
		if v, ok := filters[pf.key]; ok {
			val, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return f, NewValidationError(pf.key, "Must be a number.")
			}
			*pf.dest = &val
		}
	}
	f.Name = filters["name"]
	f.Description = filters["description"]
	return f, nil
}

func validatePrices(ve *ValidationError, price, sellPrice float64) {
	if price < 0 {
		ve.Fields["price"] = "Price cannot be negative."
	}
	if sellPrice < 0 {
		ve.Fields["sell_price"] = "Sell price cannot be negative."
	}
	if price >= 0 && sellPrice >= 0 && sellPrice > price {
		ve.Fields["sell_price"] = "Sell price cannot be greater than the regular price."
	}
}
