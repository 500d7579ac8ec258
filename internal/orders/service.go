// Package orders places orders against catalog stock. The stock decrement
// is an atomic conditional update inside the order transaction, so two
// concurrent orders can never both take the last unit. Order placement
// deliberately bypasses catalog cache invalidation: stock-only changes age
// out of cached listings with the TTL.
package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"go-catalog-service/internal/authz"
	"go-catalog-service/internal/catalog"
	"go-catalog-service/internal/database"
	"go-catalog-service/internal/models"
)

// Store is what the order service needs from Postgres.
type Store interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, userID int64, status string) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) error
}

type Service struct {
	store  Store
	policy authz.Policy
}

func NewService(store Store, policy authz.Policy) *Service {
	return &Service{store: store, policy: policy}
}

// ItemInput is one requested order line.
type ItemInput struct {
	ProductID int64 `json:"product"`
	Quantity  int64 `json:"quantity"`
}

// CreateOrder validates the lines and places the order. Each line's price
// is snapshotted inside the store transaction (sell_price when on sale,
// price otherwise); insufficient stock on any line fails the whole order
// with no stock mutated.
func (s *Service) CreateOrder(ctx context.Context, userID int64, address string, items []ItemInput) (*models.Order, error) {
	if len(items) == 0 {
		return nil, catalog.NewValidationError("items", "An order must contain at least one item.")
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, catalog.NewValidationError("quantity", "Quantity must be greater than zero.")
		}
	}

	o := &models.Order{
		ID:      uuid.New().String(),
		UserID:  userID,
		Status:  models.StatusPending,
		Address: address,
	}
	for _, it := range items {
		o.Items = append(o.Items, models.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	if err := s.store.CreateOrder(ctx, o); err != nil {
		if errors.Is(err, database.ErrInsufficientStock) {
			return nil, catalog.NewValidationError("items", "Not enough stock.")
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.NewValidationError("items", "Unknown product in order.")
		}
		return nil, err
	}
	return o, nil
}

// GetOrder fetches an order, scoped to its owner.
func (s *Service) GetOrder(ctx context.Context, userID int64, orderID string) (*models.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		// Scoping, not authorization: another user's order simply does
		// not exist from this caller's point of view.
		return nil, catalog.ErrNotFound
	}
	return o, nil
}

// ListOrders returns the user's orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, userID int64, status string) ([]models.Order, error) {
	orders, err := s.store.ListOrders(ctx, userID, status)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

// UpdateStatus moves an order through the status table. Only privileged
// actors may move orders, and only along valid transitions.
func (s *Service) UpdateStatus(ctx context.Context, actor authz.Actor, orderID, newStatus string) (*models.Order, error) {
	if !s.policy.CanWrite(actor, "order") {
		return nil, catalog.ErrPermission
	}

	o, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if !o.CanChangeStatus(newStatus) {
		return nil, catalog.NewValidationError("status",
			fmt.Sprintf("Cannot change status from %s to %s.", o.Status, newStatus))
	}

	if err := s.store.UpdateOrderStatus(ctx, orderID, newStatus); err != nil {
		return nil, err
	}
	o.Status = newStatus
	return o, nil
}
