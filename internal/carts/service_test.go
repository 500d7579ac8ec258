package carts

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-catalog-service/internal/cache"
	"go-catalog-service/internal/catalog"
	"go-catalog-service/internal/models"
)

type fakeStore struct {
	products map[int64]*models.Product
	carts    map[int64]*models.Cart

	getCartCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{products: map[int64]*models.Product{}, carts: map[int64]*models.Cart{}}
}

func (f *fakeStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetCart(ctx context.Context, userID int64) (*models.Cart, error) {
	f.getCartCalls++
	c, ok := f.carts[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *c
	cp.Items = append([]models.CartItem(nil), c.Items...)
	return &cp, nil
}

func (f *fakeStore) AddCartItem(ctx context.Context, userID, productID, quantity int64) (*models.CartItem, error) {
	c, ok := f.carts[userID]
	if !ok {
		c = &models.Cart{ID: userID, UserID: userID}
		f.carts[userID] = c
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += quantity
			item := c.Items[i]
			return &item, nil
		}
	}
	c.Items = append(c.Items, models.CartItem{ID: int64(len(c.Items) + 1), ProductID: productID, Quantity: quantity})
	item := c.Items[len(c.Items)-1]
	return &item, nil
}

func (f *fakeStore) UpdateCartItem(ctx context.Context, userID, productID, quantity int64) error {
	c, ok := f.carts[userID]
	if !ok {
		return sql.ErrNoRows
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) RemoveCartItem(ctx context.Context, userID, productID int64) error {
	c, ok := f.carts[userID]
	if !ok {
		return sql.ErrNoRows
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

type fakeCache struct {
	data map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (c *fakeCache) Get(ctx context.Context, key cache.Key, dest any) error {
	b, ok := c.data[key.String()]
	if !ok {
		return cache.ErrNotFound
	}
	return json.Unmarshal(b, dest)
}

func (c *fakeCache) Set(ctx context.Context, key cache.Key, val any, _ time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.data[key.String()] = b
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, keys ...cache.Key) error {
	for _, k := range keys {
		delete(c.data, k.String())
	}
	return nil
}

func newTestService() (*Service, *fakeStore, *fakeCache) {
	store := newFakeStore()
	c := newFakeCache()
	return NewService(store, c), store, c
}

func TestGetCartMissingCartIsEmptyNotError(t *testing.T) {
	svc, _, _ := newTestService()

	c, err := svc.GetCart(context.Background(), 7)
	require.NoError(t, err)

	assert.EqualValues(t, 7, c.UserID)
	assert.NotNil(t, c.Items)
	assert.Empty(t, c.Items)
}

func TestGetCartSecondCallServedFromCache(t *testing.T) {
	svc, store, _ := newTestService()
	store.carts[7] = &models.Cart{ID: 1, UserID: 7, Items: []models.CartItem{{ProductID: 1, Quantity: 2}}}

	_, err := svc.GetCart(context.Background(), 7)
	require.NoError(t, err)
	_, err = svc.GetCart(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, 1, store.getCartCalls)
}

func TestAddItemRejectsNonPositiveQuantity(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.AddItem(context.Background(), 7, 1, 0)

	ve, ok := catalog.AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "quantity")
}

func TestAddItemUnknownProduct(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.AddItem(context.Background(), 7, 404, 1)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestAddItemChecksStock(t *testing.T) {
	svc, store, _ := newTestService()
	store.products[1] = &models.Product{ID: 1, Stock: 3}

	_, err := svc.AddItem(context.Background(), 7, 1, 5)

	ve, ok := catalog.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "Only 3 items are available in stock.", ve.Fields["quantity"])
}

func TestAddItemIncrementsExistingLine(t *testing.T) {
	svc, store, _ := newTestService()
	store.products[1] = &models.Product{ID: 1, Stock: 10}

	_, err := svc.AddItem(context.Background(), 7, 1, 2)
	require.NoError(t, err)

	item, err := svc.AddItem(context.Background(), 7, 1, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 5, item.Quantity)
}

func TestMutationsInvalidateCachedCart(t *testing.T) {
	svc, store, _ := newTestService()
	store.products[1] = &models.Product{ID: 1, Stock: 10}

	_, err := svc.GetCart(context.Background(), 7)
	require.NoError(t, err)

	_, err = svc.AddItem(context.Background(), 7, 1, 2)
	require.NoError(t, err)

	c, err := svc.GetCart(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.EqualValues(t, 2, c.Items[0].Quantity)

	require.NoError(t, svc.UpdateItem(context.Background(), 7, 1, 4))
	c, err = svc.GetCart(context.Background(), 7)
	require.NoError(t, err)
	assert.EqualValues(t, 4, c.Items[0].Quantity)

	require.NoError(t, svc.RemoveItem(context.Background(), 7, 1))
	c, err = svc.GetCart(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestUpdateItemMissingLine(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.UpdateItem(context.Background(), 7, 1, 2)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestRemoveItemMissingLine(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.RemoveItem(context.Background(), 7, 1)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}
