package catalog

import (
	"fmt"
	"net/url"
	"sort"

	"go-catalog-service/internal/models"
)

// Page is the pagination envelope every list/search endpoint returns.
// Next and Previous are query-string fragments (not absolute URLs) that a
// client can append to the endpoint it just called.
type Page struct {
	Count    int64            `json:"count"`
	Next     *string          `json:"next"`
	Previous *string          `json:"previous"`
	Results  []models.Product `json:"results"`
}

// NewPage builds the envelope for a window of results. params carries the
// non-pagination query parameters (filters, or q for search) that must be
// preserved in the links; they are rendered in sorted key order so the
// links are deterministic.
func NewPage(results []models.Product, count, limit, offset int64, params map[string]string) Page {
	if results == nil {
		results = []models.Product{}
	}
	p := Page{Count: count, Results: results}

	if offset+limit < count {
		link := pageLink(params, limit, offset+limit)
		p.Next = &link
	}
	if offset > 0 {
		prev := offset - limit
		if prev < 0 {
			prev = 0
		}
		link := pageLink(params, limit, prev)
		p.Previous = &link
	}
	return p
}

func pageLink(params map[string]string, limit, offset int64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	link := "?"
	for _, k := range keys {
		link += k + "=" + url.QueryEscape(params[k]) + "&"
	}
	return link + fmt.Sprintf("limit=%d&offset=%d", limit, offset)
}

// CategoryPage is Page with category results.
type CategoryPage struct {
	Count    int64             `json:"count"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []models.Category `json:"results"`
}

func NewCategoryPage(results []models.Category, count, limit, offset int64) CategoryPage {
	if results == nil {
		results = []models.Category{}
	}
	p := CategoryPage{Count: count, Results: results}
	if offset+limit < count {
		link := pageLink(nil, limit, offset+limit)
		p.Next = &link
	}
	if offset > 0 {
		prev := offset - limit
		if prev < 0 {
			prev = 0
		}
		link := pageLink(nil, limit, prev)
		p.Previous = &link
	}
	return p
}
