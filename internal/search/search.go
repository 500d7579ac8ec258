// Package search provides an Elasticsearch client for indexing and querying
// product documents.
//
// Index lifecycle:
//   - The worker calls IndexProduct / DeleteProduct after a product mutation
//     has been committed to Postgres and relayed through the outbox.
//   - The API calls SearchProducts, SuggestProducts and SimilarProducts for
//     the keyword, autocomplete and "more like this" endpoints.
//   - Postgres remains the source of truth; the index is a read-optimised
//     projection that is allowed to lag and, on repeated sync failure, to
//     diverge until the reconciliation cron catches up.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"go-catalog-service/internal/models"
)

const productsIndex = "products"

// Client wraps the Elasticsearch client with domain-level operations.
type Client struct {
	es *elasticsearch.Client
}

// New creates an Elasticsearch client pointed at the given URL.
func New(url string) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{url},
	}
	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("search: create client: %w", err)
	}
	return &Client{es: es}, nil
}

// document is the denormalized shape stored in the index: the category row
// is flattened into a sub-object so queries can filter on category.id and
// match on category.name without a join.
type document struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Slug        string           `json:"slug"`
	Description string           `json:"description"`
	Price       float64          `json:"price"`
	SellPrice   float64          `json:"sell_price"`
	OnSell      bool             `json:"on_sell"`
	Stock       int64            `json:"stock"`
	Image       string           `json:"image,omitempty"`
	Category    documentCategory `json:"category"`
	Suggest     []string         `json:"suggest,omitempty"`
	CreatedAt   string           `json:"created_at,omitempty"`
	UpdatedAt   string           `json:"updated_at,omitempty"`
}

type documentCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func newDocument(p *models.Product) document {
	doc := document{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Price:       p.Price,
		SellPrice:   p.SellPrice,
		OnSell:      p.OnSell,
		Stock:       p.Stock,
		Image:       p.Image,
		Category:    documentCategory{ID: p.CategoryID},
		Suggest:     []string{p.Name}, // feeds the completion suggester
	}
	if p.Category != nil {
		doc.Category.Name = p.Category.Name
		doc.Category.Slug = p.Category.Slug
	}
	if !p.CreatedAt.IsZero() {
		doc.CreatedAt = p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if !p.UpdatedAt.IsZero() {
		doc.UpdatedAt = p.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return doc
}

func (d document) toProduct() models.Product {
	return models.Product{
		ID:          d.ID,
		CategoryID:  d.Category.ID,
		Name:        d.Name,
		Slug:        d.Slug,
		Description: d.Description,
		Price:       d.Price,
		SellPrice:   d.SellPrice,
		OnSell:      d.OnSell,
		Stock:       d.Stock,
		Image:       d.Image,
	}
}

// Result is a window of matching products plus the total match count,
// which the service layer turns into a pagination envelope.
type Result struct {
	Total    int64
	Products []models.Product
}

// IndexProduct upserts a product document. Using the product ID as the
// document ID makes this idempotent — replaying the same sync job on a
// worker retry will not create duplicates.
func (c *Client) IndexProduct(ctx context.Context, p *models.Product) error {
	body, err := json.Marshal(newDocument(p))
	if err != nil {
		return err
	}

	res, err := c.es.Index(
		productsIndex,
		bytes.NewReader(body),
		c.es.Index.WithDocumentID(fmt.Sprintf("%d", p.ID)),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("search: index request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("search: index error [%s]: %s", res.Status(), body)
	}
	return nil
}

// DeleteProduct removes a product document by ID. A 404 counts as success:
// deleting an already-absent document twice must succeed both times.
func (c *Client) DeleteProduct(ctx context.Context, productID int64) error {
	res, err := c.es.Delete(
		productsIndex,
		fmt.Sprintf("%d", productID),
		c.es.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("search: delete request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("search: delete error [%s]: %s", res.Status(), body)
	}
	return nil
}

// SearchProducts executes a fuzzy multi-field match over name, description,
// slug and the denormalized category name, windowed by offset/limit.
func (c *Client) SearchProducts(ctx context.Context, query string, limit, offset int64) (*Result, error) {
	body := map[string]any{
		"from": offset,
		"size": limit,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"name", "description", "slug", "category.name"},
				"operator":  "or",
				"fuzziness": "AUTO",
			},
		},
	}
	return c.search(ctx, body)
}

// SimilarProducts finds products related to p: fuzzy name matches, products
// in the same category, and description similarity via more_like_this.
func (c *Client) SimilarProducts(ctx context.Context, p *models.Product, limit int64) (*Result, error) {
	body := map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{
						"match": map[string]any{
							"name": map[string]any{"query": p.Name, "fuzziness": "AUTO"},
						},
					},
					map[string]any{
						"term": map[string]any{"category.id": p.CategoryID},
					},
					map[string]any{
						"more_like_this": map[string]any{
							"fields":          []string{"description"},
							"like":            []any{map[string]any{"_id": fmt.Sprintf("%d", p.ID)}},
							"min_term_freq":   1,
							"max_query_terms": 10,
						},
					},
				},
				"minimum_should_match": 1,
			},
		},
	}
	return c.search(ctx, body)
}

// SuggestProducts returns up to limit autocomplete texts for a partial
// query. The completion suggester on the "suggest" field answers first;
// when it comes back empty, a fuzzy multi-field match over name,
// description and slug fills in with the names of matching products.
func (c *Client) SuggestProducts(ctx context.Context, query string, limit int64) ([]string, error) {
	query = strings.ToLower(query)

	body := map[string]any{
		"suggest": map[string]any{
			"suggestion": map[string]any{
				"text": query,
				"completion": map[string]any{
					"field": "suggest",
					"size":  limit,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(productsIndex),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("search: suggest request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search: suggest error [%s]: %s", res.Status(), body)
	}

	var parsed struct {
		Suggest map[string][]struct {
			Options []struct {
				Text string `json:"text"`
			} `json:"options"`
		} `json:"suggest"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("search: decode suggest response: %w", err)
	}

	var suggestions []string
	for _, entry := range parsed.Suggest["suggestion"] {
		for _, opt := range entry.Options {
			suggestions = append(suggestions, opt.Text)
		}
	}

	if len(suggestions) == 0 {
		result, err := c.search(ctx, map[string]any{
			"size": limit,
			"query": map[string]any{
				"multi_match": map[string]any{
					"query":     query,
					"fields":    []string{"name", "description", "slug"},
					"fuzziness": "AUTO",
				},
			},
		})
		if err != nil {
			return nil, err
		}
		for _, p := range result.Products {
			suggestions = append(suggestions, p.Name)
		}
	}

	if int64(len(suggestions)) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}

func (c *Client) search(ctx context.Context, query map[string]any) (*Result, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, err
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(productsIndex),
		c.es.Search.WithBody(&buf),
		c.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("search: query request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search: query error [%s]: %s", res.Status(), body)
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	result := &Result{Total: parsed.Hits.Total.Value}
	for _, hit := range parsed.Hits.Hits {
		result.Products = append(result.Products, hit.Source.toProduct())
	}
	return result, nil
}
