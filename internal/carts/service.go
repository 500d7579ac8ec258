// Package carts implements the per-user shopping cart: add is
// get-or-create-and-increment, reads are cached with a short TTL, and
// every mutation invalidates the user's cached cart.
package carts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go-catalog-service/internal/cache"
	"go-catalog-service/internal/catalog"
	"go-catalog-service/internal/models"
)

// Store is what the cart service needs from Postgres.
type Store interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetCart(ctx context.Context, userID int64) (*models.Cart, error)
	AddCartItem(ctx context.Context, userID, productID, quantity int64) (*models.CartItem, error)
	UpdateCartItem(ctx context.Context, userID, productID, quantity int64) error
	RemoveCartItem(ctx context.Context, userID, productID int64) error
}

// Cache is the subset of cache operations carts use.
type Cache interface {
	Get(ctx context.Context, key cache.Key, dest any) error
	Set(ctx context.Context, key cache.Key, val any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...cache.Key) error
}

type Service struct {
	store Store
	cache Cache
}

func NewService(store Store, c Cache) *Service {
	return &Service{store: store, cache: c}
}

func cartKey(userID int64) cache.Key {
	return cache.NewKey(cache.NSUserCart).Int(userID)
}

// GetCart returns the user's cart, read-through cached for five minutes.
// A user with no cart yet gets an empty one, not an error.
func (s *Service) GetCart(ctx context.Context, userID int64) (*models.Cart, error) {
	key := cartKey(userID)

	var cached models.Cart
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrNotFound) {
		slog.Warn("cart cache read failed", "component", "carts", "user_id", userID, "error", err)
	}

	c, err := s.store.GetCart(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		c = &models.Cart{UserID: userID, Items: []models.CartItem{}}
	} else if err != nil {
		return nil, err
	}
	if c.Items == nil {
		c.Items = []models.CartItem{}
	}

	if err := s.cache.Set(ctx, key, c, cache.CartTTL); err != nil {
		slog.Warn("cart cache write failed", "component", "carts", "user_id", userID, "error", err)
	}
	return c, nil
}

// AddItem adds quantity units of a product to the cart, incrementing the
// existing line if the product is already there.
func (s *Service) AddItem(ctx context.Context, userID, productID, quantity int64) (*models.CartItem, error) {
	if quantity <= 0 {
		return nil, catalog.NewValidationError("quantity", "Quantity must be greater than zero.")
	}

	p, err := s.store.GetProduct(ctx, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if quantity > p.Stock {
		return nil, catalog.NewValidationError("quantity",
			fmt.Sprintf("Only %d items are available in stock.", p.Stock))
	}

	item, err := s.store.AddCartItem(ctx, userID, productID, quantity)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, userID)
	return item, nil
}

// UpdateItem sets a line's quantity.
func (s *Service) UpdateItem(ctx context.Context, userID, productID, quantity int64) error {
	if quantity <= 0 {
		return catalog.NewValidationError("quantity", "Quantity must be greater than zero.")
	}

	err := s.store.UpdateCartItem(ctx, userID, productID, quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.ErrNotFound
	}
	if err != nil {
		return err
	}

	s.invalidate(ctx, userID)
	return nil
}

// RemoveItem removes a product from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID, productID int64) error {
	err := s.store.RemoveCartItem(ctx, userID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.ErrNotFound
	}
	if err != nil {
		return err
	}

	s.invalidate(ctx, userID)
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if err := s.cache.Delete(ctx, cartKey(userID)); err != nil {
		slog.Warn("cart cache invalidation failed", "component", "carts", "user_id", userID, "error", err)
	}
}
