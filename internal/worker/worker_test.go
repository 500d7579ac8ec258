package worker

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-catalog-service/internal/models"
)

type fakeProductStore struct {
	products map[int64]*models.Product
	err      error

	getCalls int
}

func (f *fakeProductStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	f.getCalls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.products[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

type fakeIndex struct {
	docs map[int64]*models.Product

	indexErrs   int // fail this many IndexProduct calls before succeeding
	deleteErr   error
	indexCalls  int
	deleteCalls int
}

func newFakeIndex() *fakeIndex { return &fakeIndex{docs: map[int64]*models.Product{}} }

func (f *fakeIndex) IndexProduct(ctx context.Context, p *models.Product) error {
	f.indexCalls++
	if f.indexErrs > 0 {
		f.indexErrs--
		return errors.New("index unavailable")
	}
	cp := *p
	f.docs[p.ID] = &cp
	return nil
}

func (f *fakeIndex) DeleteProduct(ctx context.Context, productID int64) error {
	f.deleteCalls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	// Deleting an absent document succeeds, matching the real client.
	delete(f.docs, productID)
	return nil
}

func newTestWorker(store *fakeProductStore, index *fakeIndex) *Worker {
	return &Worker{store: store, index: index, retryDelay: 0}
}

func TestApplyUpsertRefetchesAtApplyTime(t *testing.T) {
	store := &fakeProductStore{products: map[int64]*models.Product{
		1: {ID: 1, Name: "Current Name", Price: 42},
	}}
	index := newFakeIndex()
	w := newTestWorker(store, index)

	err := w.apply(context.Background(), &models.SyncJob{Op: models.SyncOpUpsert, ProductID: 1})
	require.NoError(t, err)

	require.Contains(t, index.docs, int64(1))
	assert.Equal(t, "Current Name", index.docs[1].Name)
	assert.Equal(t, 1, store.getCalls)
}

func TestApplyUpsertOfDeletedProductConvergesOnDelete(t *testing.T) {
	store := &fakeProductStore{products: map[int64]*models.Product{}}
	index := newFakeIndex()
	index.docs[1] = &models.Product{ID: 1, Name: "Stale"}
	w := newTestWorker(store, index)

	err := w.apply(context.Background(), &models.SyncJob{Op: models.SyncOpUpsert, ProductID: 1})
	require.NoError(t, err)

	assert.NotContains(t, index.docs, int64(1))
	assert.Equal(t, 0, index.indexCalls)
	assert.Equal(t, 1, index.deleteCalls)
}

func TestApplyDeleteIsIdempotent(t *testing.T) {
	store := &fakeProductStore{}
	index := newFakeIndex()
	w := newTestWorker(store, index)

	job := &models.SyncJob{Op: models.SyncOpDelete, ProductID: 9}
	require.NoError(t, w.apply(context.Background(), job))
	require.NoError(t, w.apply(context.Background(), job))

	assert.Equal(t, 2, index.deleteCalls)
}

func TestApplyRetriesTransientFailures(t *testing.T) {
	store := &fakeProductStore{products: map[int64]*models.Product{
		1: {ID: 1, Name: "P"},
	}}
	index := newFakeIndex()
	index.indexErrs = 2 // first two attempts fail, third succeeds
	w := newTestWorker(store, index)

	err := w.apply(context.Background(), &models.SyncJob{Op: models.SyncOpUpsert, ProductID: 1})
	require.NoError(t, err)

	assert.Equal(t, 3, index.indexCalls)
	assert.Contains(t, index.docs, int64(1))
}

func TestApplyGivesUpAfterMaxAttempts(t *testing.T) {
	store := &fakeProductStore{products: map[int64]*models.Product{
		1: {ID: 1, Name: "P"},
	}}
	index := newFakeIndex()
	index.indexErrs = maxAttempts + 1
	w := newTestWorker(store, index)

	err := w.apply(context.Background(), &models.SyncJob{Op: models.SyncOpUpsert, ProductID: 1})
	require.Error(t, err)

	assert.Equal(t, maxAttempts, index.indexCalls)
	assert.NotContains(t, index.docs, int64(1))
}

func TestApplyStopsRetryingOnCancelledContext(t *testing.T) {
	store := &fakeProductStore{products: map[int64]*models.Product{
		1: {ID: 1, Name: "P"},
	}}
	index := newFakeIndex()
	index.indexErrs = maxAttempts + 1
	w := &Worker{store: store, index: index, retryDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.apply(ctx, &models.SyncJob{Op: models.SyncOpUpsert, ProductID: 1})
	require.ErrorIs(t, err, context.Canceled)

	// First attempt runs, then the retry delay observes the cancellation
	// instead of sleeping it out.
	assert.Equal(t, 1, index.indexCalls)
}

func TestApplyUnknownOpFailsWithoutRetry(t *testing.T) {
	store := &fakeProductStore{}
	index := newFakeIndex()
	w := newTestWorker(store, index)

	err := w.apply(context.Background(), &models.SyncJob{Op: "vacuum", ProductID: 1})
	require.Error(t, err)

	assert.Equal(t, 0, index.indexCalls)
	assert.Equal(t, 0, index.deleteCalls)
	assert.Equal(t, 0, store.getCalls)
}
