// Package importer implements bulk CSV product import. A batch is
// best-effort per row — one malformed row never aborts the rest — and
// all-or-nothing at the persistence step: the surviving rows land in a
// single transaction together with their index sync jobs.
package importer

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go-catalog-service/internal/cache"
	"go-catalog-service/internal/catalog"
	"go-catalog-service/internal/models"
)

// imageFetchTimeout bounds the optional image download per row. A slow or
// dead image host costs one row at most ten seconds, never the batch.
const imageFetchTimeout = 10 * time.Second

// RequiredColumns must all be present in the CSV header.
var RequiredColumns = []string{"name", "description", "price", "sell_price", "on_sell", "stock", "category_name"}

// ErrMissingColumns is returned by ParseCSV when the header lacks a
// required column; the whole request is rejected in that case.
var ErrMissingColumns = errors.New("importer: csv missing required columns")

// Store is what the importer needs from Postgres.
type Store interface {
	GetCategoryByName(ctx context.Context, name string) (*models.Category, error)
	CategorySlugExists(ctx context.Context, slug string) (bool, error)
	CreateCategory(ctx context.Context, c *models.Category) error
	ProductSlugExists(ctx context.Context, slug string) (bool, error)
	BulkInsertProducts(ctx context.Context, products []*models.Product) error
}

// Invalidator clears cached product lists after a batch lands.
type Invalidator interface {
	DeletePattern(ctx context.Context, pattern string) error
}

// Row is one CSV record keyed by column name.
type Row map[string]string

// ParseCSV reads the file, validates the header against RequiredColumns,
// and returns the rows. Row values are not validated here — row-level
// problems are counted per row during Import, they never reject the file.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("importer: read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[col] = i
	}
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumns, col)
		}
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("importer: read row: %w", err)
		}
		row := make(Row, len(index))
		for col, i := range index {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Importer accumulates a batch and persists it in one bulk operation.
type Importer struct {
	store       Store
	invalidator Invalidator
	httpClient  *http.Client
}

func New(store Store, inv Invalidator) *Importer {
	return &Importer{
		store:       store,
		invalidator: inv,
		httpClient:  &http.Client{Timeout: imageFetchTimeout},
	}
}

// Import processes the batch and returns (imported, failed) counts.
//
// Per row: resolve or create the category (memoized for the batch), parse
// and validate the numeric fields, derive a slug that collides neither with
// the store nor with rows already buffered in this batch, and optionally
// fetch the image URL. Row failures are logged and counted, never raised.
// A bulk persistence failure counts every buffered row as failed.
func (im *Importer) Import(ctx context.Context, rows []Row) (imported, failed int) {
	var (
		batch      []*models.Product
		batchSlugs = map[string]bool{}
		categories = map[string]*models.Category{}
	)

	slugExists := func(ctx context.Context, slug string) (bool, error) {
		if batchSlugs[slug] {
			return true, nil
		}
		return im.store.ProductSlugExists(ctx, slug)
	}

	for _, row := range rows {
		p, err := im.buildProduct(ctx, row, categories, slugExists)
		if err != nil {
			slog.Error("bulk import row failed",
				"component", "importer",
				"name", row["name"],
				"error", err,
			)
			failed++
			continue
		}
		batchSlugs[p.Slug] = true
		batch = append(batch, p)
	}

	if len(batch) == 0 {
		return 0, failed
	}

	if err := im.store.BulkInsertProducts(ctx, batch); err != nil {
		slog.Error("bulk import insert failed",
			"component", "importer",
			"rows", len(batch),
			"error", err,
		)
		return 0, failed + len(batch)
	}

	if err := im.invalidator.DeletePattern(ctx, cache.NSProductList.Pattern()); err != nil {
		slog.Warn("bulk import cache invalidation failed", "component", "importer", "error", err)
	}

	slog.Info("bulk import done", "component", "importer", "imported", len(batch), "failed", failed)
	return len(batch), failed
}

func (im *Importer) buildProduct(
	ctx context.Context,
	row Row,
	categories map[string]*models.Category,
	slugExists func(context.Context, string) (bool, error),
) (*models.Product, error) {
	name := row["name"]
	if name == "" {
		return nil, errors.New("missing name")
	}
	categoryName := row["category_name"]
	if categoryName == "" {
		return nil, errors.New("missing category_name")
	}

	category, err := im.resolveCategory(ctx, categoryName, categories)
	if err != nil {
		return nil, fmt.Errorf("resolve category %q: %w", categoryName, err)
	}

	price, err := strconv.ParseFloat(row["price"], 64)
	if err != nil {
		return nil, fmt.Errorf("bad price %q", row["price"])
	}
	sellPrice, err := strconv.ParseFloat(row["sell_price"], 64)
	if err != nil {
		return nil, fmt.Errorf("bad sell_price %q", row["sell_price"])
	}
	if price < 0 || sellPrice < 0 || sellPrice > price {
		return nil, fmt.Errorf("price invariant violated: price=%v sell_price=%v", price, sellPrice)
	}
	stock, err := strconv.ParseInt(row["stock"], 10, 64)
	if err != nil || stock < 0 {
		return nil, fmt.Errorf("bad stock %q", row["stock"])
	}
	onSell, err := strconv.ParseBool(row["on_sell"])
	if err != nil {
		return nil, fmt.Errorf("bad on_sell %q", row["on_sell"])
	}

	slug, err := catalog.ResolveSlug(ctx, name, slugExists)
	if err != nil {
		return nil, err
	}

	p := &models.Product{
		CategoryID:  category.ID,
		Name:        name,
		Slug:        slug,
		Description: row["description"],
		Price:       price,
		SellPrice:   sellPrice,
		OnSell:      onSell,
		Stock:       stock,
	}

	if imageURL := row["image_url"]; imageURL != "" {
		if err := im.fetchImage(ctx, imageURL); err != nil {
			// The row proceeds without an image.
			slog.Warn("image fetch failed",
				"component", "importer",
				"name", name,
				"url", imageURL,
				"error", err,
			)
		} else {
			p.Image = imageURL
		}
	}
	return p, nil
}

// resolveCategory looks the category up by name, creating it (with a
// collision-resolved slug) on first sight. The memo avoids re-querying the
// same category for every row of a large batch.
func (im *Importer) resolveCategory(ctx context.Context, name string, memo map[string]*models.Category) (*models.Category, error) {
	if c, ok := memo[name]; ok {
		return c, nil
	}

	c, err := im.store.GetCategoryByName(ctx, name)
	if err == nil {
		memo[name] = c
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	slug, err := catalog.ResolveSlug(ctx, name, im.store.CategorySlugExists)
	if err != nil {
		return nil, err
	}
	c = &models.Category{Name: name, Slug: slug}
	if err := im.store.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	memo[name] = c
	return c, nil
}

// fetchImage validates the external image with a bounded-timeout GET.
func (im *Importer) fetchImage(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	res, err := im.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body) //nolint:errcheck

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", res.StatusCode)
	}
	return nil
}
