package orders

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-catalog-service/internal/authz"
	"go-catalog-service/internal/catalog"
	"go-catalog-service/internal/database"
	"go-catalog-service/internal/models"
)

type fakeStore struct {
	orders    map[string]*models.Order
	createErr error
	status    map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: map[string]*models.Order{}, status: map[string]string{}}
}

func (f *fakeStore) CreateOrder(ctx context.Context, o *models.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	cp := *o
	f.orders[o.ID] = &cp
	return nil
}

func (f *fakeStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) ListOrders(ctx context.Context, userID int64, status string) ([]models.Order, error) {
	var out []models.Order
	for _, o := range f.orders {
		if o.UserID != userID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeStore) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	o, ok := f.orders[orderID]
	if !ok {
		return sql.ErrNoRows
	}
	o.Status = status
	f.status[orderID] = status
	return nil
}

var (
	staff = authz.Actor{UserID: 1, Role: authz.RoleStaff}
	buyer = authz.Actor{UserID: 7, Role: authz.RoleUser}
)

func newTestService() (*Service, *fakeStore) {
	store := newFakeStore()
	return NewService(store, authz.NewRolePolicy()), store
}

func TestCreateOrderRejectsEmptyItems(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateOrder(context.Background(), buyer.UserID, "addr", nil)

	ve, ok := catalog.AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "items")
}

func TestCreateOrderRejectsNonPositiveQuantity(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateOrder(context.Background(), buyer.UserID, "addr",
		[]ItemInput{{ProductID: 1, Quantity: 0}})

	ve, ok := catalog.AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "quantity")
}

func TestCreateOrderStartsPending(t *testing.T) {
	svc, store := newTestService()

	o, err := svc.CreateOrder(context.Background(), buyer.UserID, "Some Street 1",
		[]ItemInput{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, o.Status)
	assert.NotEmpty(t, o.ID)
	assert.Len(t, o.Items, 2)
	assert.Contains(t, store.orders, o.ID)
}

func TestCreateOrderMapsInsufficientStock(t *testing.T) {
	svc, store := newTestService()
	store.createErr = database.ErrInsufficientStock

	_, err := svc.CreateOrder(context.Background(), buyer.UserID, "addr",
		[]ItemInput{{ProductID: 1, Quantity: 99}})

	ve, ok := catalog.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "Not enough stock.", ve.Fields["items"])
}

func TestCreateOrderMapsUnknownProduct(t *testing.T) {
	svc, store := newTestService()
	store.createErr = sql.ErrNoRows

	_, err := svc.CreateOrder(context.Background(), buyer.UserID, "addr",
		[]ItemInput{{ProductID: 404, Quantity: 1}})

	ve, ok := catalog.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "Unknown product in order.", ve.Fields["items"])
}

func TestGetOrderScopedToOwner(t *testing.T) {
	svc, store := newTestService()
	store.orders["abc"] = &models.Order{ID: "abc", UserID: buyer.UserID}

	o, err := svc.GetOrder(context.Background(), buyer.UserID, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", o.ID)

	_, err = svc.GetOrder(context.Background(), 999, "abc")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestGetOrderNotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.GetOrder(context.Background(), buyer.UserID, "ghost")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestListOrdersEmptyIsNotNil(t *testing.T) {
	svc, _ := newTestService()

	orders, err := svc.ListOrders(context.Background(), buyer.UserID, "")
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
}

func TestUpdateStatusRequiresPrivilege(t *testing.T) {
	svc, store := newTestService()
	store.orders["abc"] = &models.Order{ID: "abc", Status: models.StatusPending}

	_, err := svc.UpdateStatus(context.Background(), buyer, "abc", models.StatusSubmitted)
	assert.ErrorIs(t, err, catalog.ErrPermission)
}

func TestUpdateStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{models.StatusPending, models.StatusSubmitted, true},
		{models.StatusPending, models.StatusCanceled, true},
		{models.StatusPending, models.StatusDelivering, false},
		{models.StatusSubmitted, models.StatusPreparing, true},
		{models.StatusPreparing, models.StatusDelivering, true},
		{models.StatusDelivering, models.StatusCompleted, true},
		{models.StatusDelivering, models.StatusDeliveryFailed, true},
		{models.StatusDelivering, models.StatusCanceled, false},
		{models.StatusCompleted, models.StatusCanceled, false},
		{models.StatusCanceled, models.StatusSubmitted, false},
	}

	for _, tc := range cases {
		svc, store := newTestService()
		store.orders["abc"] = &models.Order{ID: "abc", Status: tc.from}

		o, err := svc.UpdateStatus(context.Background(), staff, "abc", tc.to)
		if tc.ok {
			require.NoError(t, err, "%s -> %s", tc.from, tc.to)
			assert.Equal(t, tc.to, o.Status)
			assert.Equal(t, tc.to, store.status["abc"])
		} else {
			ve, isVE := catalog.AsValidationError(err)
			require.True(t, isVE, "%s -> %s", tc.from, tc.to)
			assert.Contains(t, ve.Fields, "status")
		}
	}
}

func TestOrderTotalPriceUsesSnapshots(t *testing.T) {
	o := models.Order{Items: []models.OrderItem{
		{Quantity: 2, PriceAtPurchase: 10.5},
		{Quantity: 1, PriceAtPurchase: 4},
	}}
	assert.Equal(t, 25.0, o.TotalPrice())
}
