package catalog

import (
	"context"
	"log/slog"

	"go-catalog-service/internal/cache"
	"go-catalog-service/internal/models"
)

// SearchProducts serves the keyword endpoint: a fuzzy multi-field match
// against the search index, windowed and wrapped in the same pagination
// envelope as the store-backed list. The store is never consulted — results
// are only as fresh as the index.
func (s *Service) SearchProducts(ctx context.Context, query string, limit, offset int64) (*Page, error) {
	if query == "" {
		return nil, NewValidationError("q", "Search query is required.")
	}
	limit, offset = clampWindow(limit, offset)

	key := cache.NewKey(cache.NSSearchProducts).Str(query).Int(limit).Int(offset)

	var cached Page
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	result, err := s.search.SearchProducts(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}

	page := NewPage(result.Products, result.Total, limit, offset, map[string]string{"q": query})
	s.cacheSet(ctx, key, page, cache.DefaultTTL)
	return &page, nil
}

// DefaultSuggestLimit caps autocomplete responses when no limit is given.
const DefaultSuggestLimit = 5

// SuggestProducts serves the autocomplete endpoint. An empty query and an
// index failure both come back as an empty list rather than an error: a
// typeahead box has no use for a 500, it just shows nothing.
func (s *Service) SuggestProducts(ctx context.Context, query string, limit int64) []string {
	if query == "" {
		return []string{}
	}
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}

	suggestions, err := s.search.SuggestProducts(ctx, query, limit)
	if err != nil {
		slog.Warn("suggest failed", "component", "catalog", "query", query, "error", err)
		return []string{}
	}
	if suggestions == nil {
		return []string{}
	}
	return suggestions
}

// SimilarResult is the body of the similar-products endpoint: no pagination
// links, just a bounded result set.
type SimilarResult struct {
	Count   int64            `json:"count"`
	Results []models.Product `json:"results"`
}

// SimilarProducts returns products related to the given one by name
// fuzziness, shared category, or description similarity. The anchor product
// is read from the store so a just-updated product anchors on current data
// even if its index document lags.
func (s *Service) SimilarProducts(ctx context.Context, productID, limit int64) (*SimilarResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	key := cache.NewKey(cache.NSSimilar).Int(productID).Int(limit)

	var cached SimilarResult
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	result, err := s.search.SimilarProducts(ctx, p, limit)
	if err != nil {
		return nil, err
	}

	similar := &SimilarResult{Count: int64(len(result.Products)), Results: result.Products}
	if similar.Results == nil {
		similar.Results = []models.Product{}
	}
	s.cacheSet(ctx, key, similar, cache.DefaultTTL)
	return similar, nil
}
