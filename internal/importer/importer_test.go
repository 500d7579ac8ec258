package importer

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-catalog-service/internal/models"
)

const csvHeader = "name,description,price,sell_price,on_sell,stock,category_name,image_url\n"

type fakeStore struct {
	categories map[string]*models.Category
	slugs      map[string]bool
	inserted   []*models.Product
	insertErr  error

	categoryLookups int
}

func newFakeStore() *fakeStore {
	return &fakeStore{categories: map[string]*models.Category{}, slugs: map[string]bool{}}
}

func (f *fakeStore) GetCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	f.categoryLookups++
	c, ok := f.categories[name]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func (f *fakeStore) CategorySlugExists(ctx context.Context, slug string) (bool, error) {
	for _, c := range f.categories {
		if c.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateCategory(ctx context.Context, c *models.Category) error {
	c.ID = int64(len(f.categories) + 1)
	f.categories[c.Name] = c
	return nil
}

func (f *fakeStore) ProductSlugExists(ctx context.Context, slug string) (bool, error) {
	return f.slugs[slug], nil
}

func (f *fakeStore) BulkInsertProducts(ctx context.Context, products []*models.Product) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, products...)
	return nil
}

type fakeInvalidator struct {
	patterns []string
}

func (f *fakeInvalidator) DeletePattern(ctx context.Context, pattern string) error {
	f.patterns = append(f.patterns, pattern)
	return nil
}

func newTestImporter() (*Importer, *fakeStore, *fakeInvalidator) {
	store := newFakeStore()
	inv := &fakeInvalidator{}
	return New(store, inv), store, inv
}

// ---------------------------------------------------------------------------
// ParseCSV
// ---------------------------------------------------------------------------

func TestParseCSVRejectsMissingRequiredColumn(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("name,description,price\nOlive Oil,good,10\n"))
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestParseCSVKeepsRowsWithMissingValues(t *testing.T) {
	// A blank value in a row is a row-level problem for Import, never a
	// reason to reject the file.
	rows, err := ParseCSV(strings.NewReader(csvHeader +
		"Olive Oil,good,10,8,true,5,Pantry,\n" +
		"No Category,bad,10,8,true,5,,\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Pantry", rows[0]["category_name"])
	assert.Equal(t, "", rows[1]["category_name"])
}

func TestParseCSVExtraColumnsAreCarried(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader(csvHeader +
		"Olive Oil,good,10,8,true,5,Pantry,http://img.example/x.png\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "http://img.example/x.png", rows[0]["image_url"])
}

// ---------------------------------------------------------------------------
// Import
// ---------------------------------------------------------------------------

func TestImportCountsBadRowsWithoutAbortingBatch(t *testing.T) {
	imp, store, _ := newTestImporter()
	rows := []Row{
		{"name": "Olive Oil", "description": "good", "price": "10", "sell_price": "8", "on_sell": "true", "stock": "5", "category_name": "Pantry"},
		{"name": "No Category", "description": "bad", "price": "10", "sell_price": "8", "on_sell": "true", "stock": "5", "category_name": ""},
	}

	imported, failed := imp.Import(context.Background(), rows)

	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, failed)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, "olive-oil", store.inserted[0].Slug)
}

func TestImportRejectsPriceInvariantViolations(t *testing.T) {
	imp, _, _ := newTestImporter()
	rows := []Row{
		{"name": "A", "description": "", "price": "10", "sell_price": "20", "on_sell": "true", "stock": "5", "category_name": "Pantry"},
		{"name": "B", "description": "", "price": "-1", "sell_price": "0", "on_sell": "false", "stock": "5", "category_name": "Pantry"},
		{"name": "C", "description": "", "price": "abc", "sell_price": "0", "on_sell": "false", "stock": "5", "category_name": "Pantry"},
	}

	imported, failed := imp.Import(context.Background(), rows)

	assert.Equal(t, 0, imported)
	assert.Equal(t, 3, failed)
}

func TestImportResolvesSlugsWithinBatch(t *testing.T) {
	imp, store, _ := newTestImporter()
	store.slugs["olive-oil"] = true
	rows := []Row{
		{"name": "Olive Oil", "description": "", "price": "10", "sell_price": "8", "on_sell": "true", "stock": "5", "category_name": "Pantry"},
		{"name": "Olive Oil", "description": "", "price": "12", "sell_price": "9", "on_sell": "true", "stock": "3", "category_name": "Pantry"},
	}

	imported, failed := imp.Import(context.Background(), rows)

	assert.Equal(t, 2, imported)
	assert.Equal(t, 0, failed)
	require.Len(t, store.inserted, 2)
	assert.Equal(t, "olive-oil_1", store.inserted[0].Slug)
	assert.Equal(t, "olive-oil_2", store.inserted[1].Slug)
}

func TestImportCreatesCategoriesOnce(t *testing.T) {
	imp, store, _ := newTestImporter()
	rows := []Row{
		{"name": "A", "description": "", "price": "10", "sell_price": "8", "on_sell": "true", "stock": "5", "category_name": "Pantry"},
		{"name": "B", "description": "", "price": "10", "sell_price": "8", "on_sell": "true", "stock": "5", "category_name": "Pantry"},
	}

	imported, _ := imp.Import(context.Background(), rows)

	assert.Equal(t, 2, imported)
	assert.Len(t, store.categories, 1)
	assert.Equal(t, 1, store.categoryLookups)
	assert.Equal(t, "pantry", store.categories["Pantry"].Slug)
}

func TestImportBulkFailureFailsWholeBatch(t *testing.T) {
	imp, store, inv := newTestImporter()
	store.insertErr = sql.ErrConnDone
	rows := []Row{
		{"name": "A", "description": "", "price": "10", "sell_price": "8", "on_sell": "true", "stock": "5", "category_name": "Pantry"},
		{"name": "B", "description": "", "price": "bad", "sell_price": "8", "on_sell": "true", "stock": "5", "category_name": "Pantry"},
	}

	imported, failed := imp.Import(context.Background(), rows)

	assert.Equal(t, 0, imported)
	assert.Equal(t, 2, failed)
	assert.Empty(t, inv.patterns)
}

func TestImportInvalidatesProductListsAfterBatch(t *testing.T) {
	imp, _, inv := newTestImporter()
	rows := []Row{
		{"name": "A", "description": "", "price": "10", "sell_price": "8", "on_sell": "true", "stock": "5", "category_name": "Pantry"},
	}

	imp.Import(context.Background(), rows)

	require.Len(t, inv.patterns, 1)
	assert.Equal(t, "product_list_*", inv.patterns[0])
}

func TestImportToleratesImageFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	imp, store, _ := newTestImporter()
	rows := []Row{
		{"name": "A", "description": "", "price": "10", "sell_price": "8", "on_sell": "true", "stock": "5", "category_name": "Pantry", "image_url": srv.URL + "/x.png"},
	}

	imported, failed := imp.Import(context.Background(), rows)

	assert.Equal(t, 1, imported)
	assert.Equal(t, 0, failed)
	require.Len(t, store.inserted, 1)
	assert.Empty(t, store.inserted[0].Image)
}

func TestImportKeepsReachableImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png bytes"))
	}))
	defer srv.Close()

	imp, store, _ := newTestImporter()
	imageURL := srv.URL + "/x.png"
	rows := []Row{
		{"name": "A", "description": "", "price": "10", "sell_price": "8", "on_sell": "true", "stock": "5", "category_name": "Pantry", "image_url": imageURL},
	}

	imported, _ := imp.Import(context.Background(), rows)

	assert.Equal(t, 1, imported)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, imageURL, store.inserted[0].Image)
}
