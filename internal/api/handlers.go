package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"go-catalog-service/internal/authz"
	"go-catalog-service/internal/catalog"
	"go-catalog-service/internal/importer"
	"go-catalog-service/internal/models"
	"go-catalog-service/internal/orders"
)

// ---------------------------------------------------------------------------
// Dependency interfaces
//
// Each interface captures exactly the methods this package needs.
// Callers (main, tests) inject the real implementations or fakes.
// ---------------------------------------------------------------------------

// Catalog is the product/category/review surface.
type Catalog interface {
	ListProducts(ctx context.Context, rawFilters map[string]string, limit, offset int64) (*catalog.Page, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*models.Product, error)
	CreateProduct(ctx context.Context, actor authz.Actor, in catalog.ProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, actor authz.Actor, id int64, patch catalog.ProductPatch) (*models.Product, error)
	DeleteProduct(ctx context.Context, actor authz.Actor, id int64) error

	SearchProducts(ctx context.Context, query string, limit, offset int64) (*catalog.Page, error)
	SuggestProducts(ctx context.Context, query string, limit int64) []string
	SimilarProducts(ctx context.Context, productID, limit int64) (*catalog.SimilarResult, error)

	ListCategories(ctx context.Context, limit, offset int64) (*catalog.CategoryPage, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error)
	CreateCategory(ctx context.Context, actor authz.Actor, in catalog.CategoryInput) (*models.Category, error)

	ListReviews(ctx context.Context, productID int64) ([]models.Review, error)
	AddReview(ctx context.Context, productID int64, in catalog.ReviewInput) (*models.Review, error)
}

// Orders is the order placement and tracking surface.
type Orders interface {
	CreateOrder(ctx context.Context, userID int64, address string, items []orders.ItemInput) (*models.Order, error)
	GetOrder(ctx context.Context, userID int64, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, userID int64, status string) ([]models.Order, error)
	UpdateStatus(ctx context.Context, actor authz.Actor, orderID, newStatus string) (*models.Order, error)
}

// Carts is the per-user shopping cart surface.
type Carts interface {
	GetCart(ctx context.Context, userID int64) (*models.Cart, error)
	AddItem(ctx context.Context, userID, productID, quantity int64) (*models.CartItem, error)
	UpdateItem(ctx context.Context, userID, productID, quantity int64) error
	RemoveItem(ctx context.Context, userID, productID int64) error
}

// Import is the CSV bulk-load surface.
type Import interface {
	Import(ctx context.Context, rows []importer.Row) (imported, failed int)
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

// Handler holds every dependency the HTTP layer needs.
// All fields are interfaces — the real implementations are injected by main,
// fakes or mocks can be injected in tests.
type Handler struct {
	Catalog  Catalog
	Orders   Orders
	Carts    Carts
	Importer Import
	Policy   authz.Policy
}

// ---------------------------------------------------------------------------
// Identity
//
// Upstream authentication (gateway or reverse proxy) is trusted to set
// X-User-ID and X-User-Role. This layer only reads them.
// ---------------------------------------------------------------------------

func actorFrom(r *http.Request) authz.Actor {
	id, _ := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	return authz.Actor{
		UserID: id,
		Role:   r.Header.Get("X-User-Role"),
	}
}

// requireUser rejects requests that carry no user identity.
func requireUser(w http.ResponseWriter, r *http.Request) (authz.Actor, bool) {
	actor := actorFrom(r)
	if actor.UserID == 0 {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return actor, false
	}
	return actor, true
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

// ListProducts — GET /api/products?category=&price_lt=&limit=&offset=
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := window(r)
	if err != nil {
		writeError(w, err)
		return
	}

	filters := map[string]string{}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			filters[k] = vs[0]
		}
	}

	page, err := h.Catalog.ListProducts(r.Context(), filters, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetProduct — GET /api/products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.Catalog.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetProductBySlug — GET /api/products/slug/{slug}
func (h *Handler) GetProductBySlug(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.GetProductBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateProduct — POST /api/products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	p, err := h.Catalog.CreateProduct(r.Context(), actorFrom(r), in)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("product created", "component", "api", "product_id", p.ID, "slug", p.Slug)
	writeJSON(w, http.StatusCreated, p)
}

// UpdateProduct — PATCH /api/products/{id}
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var patch catalog.ProductPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	p, err := h.Catalog.UpdateProduct(r.Context(), actorFrom(r), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProduct — DELETE /api/products/{id}
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.Catalog.DeleteProduct(r.Context(), actorFrom(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

// SearchProducts — GET /api/search?q={term}
func (h *Handler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := window(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.Catalog.SearchProducts(r.Context(), r.URL.Query().Get("q"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// SuggestProducts — GET /api/search/suggest?q={prefix}&limit=
func (h *Handler) SuggestProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r.URL.Query().Get("limit"), "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	suggestions := h.Catalog.SuggestProducts(r.Context(), r.URL.Query().Get("q"), limit)
	writeJSON(w, http.StatusOK, map[string][]string{"suggestions": suggestions})
}

// SimilarProducts — GET /api/products/{id}/similar
func (h *Handler) SimilarProducts(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	limit, _, err := window(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.Catalog.SimilarProducts(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ---------------------------------------------------------------------------
// Categories & reviews
// ---------------------------------------------------------------------------

// ListCategories — GET /api/categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := window(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.Catalog.ListCategories(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetCategory — GET /api/categories/{slug}
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.Catalog.GetCategoryBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CreateCategory — POST /api/categories
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var in catalog.CategoryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	c, err := h.Catalog.CreateCategory(r.Context(), actorFrom(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListReviews — GET /api/products/{id}/reviews
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	reviews, err := h.Catalog.ListReviews(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

// AddReview — POST /api/products/{id}/reviews
func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var in catalog.ReviewInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	review, err := h.Catalog.AddReview(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

// ---------------------------------------------------------------------------
// Cart
// ---------------------------------------------------------------------------

// GetCart — GET /api/cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	cart, err := h.Carts.GetCart(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// AddCartItem — POST /api/cart/items
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	var in struct {
		ProductID int64 `json:"product"`
		Quantity  int64 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	item, err := h.Carts.AddItem(r.Context(), actor.UserID, in.ProductID, in.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// UpdateCartItem — PATCH /api/cart/items/{productID}
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	productID, err := pathInt(r, "productID")
	if err != nil {
		writeError(w, err)
		return
	}

	var in struct {
		Quantity int64 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	if err := h.Carts.UpdateItem(r.Context(), actor.UserID, productID, in.Quantity); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveCartItem — DELETE /api/cart/items/{productID}
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	productID, err := pathInt(r, "productID")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.Carts.RemoveItem(r.Context(), actor.UserID, productID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// CreateOrder — POST /api/orders
//
// Stock is decremented and line prices are snapshotted inside a single
// Postgres transaction; any line with insufficient stock fails the whole
// order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	var in struct {
		Address string             `json:"address"`
		Items   []orders.ItemInput `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	order, err := h.Orders.CreateOrder(r.Context(), actor.UserID, in.Address, in.Items)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("order placed",
		"component", "api",
		"order_id", order.ID,
		"user_id", actor.UserID,
		"items", len(order.Items),
	)
	writeJSON(w, http.StatusCreated, order)
}

// ListOrders — GET /api/orders?status=
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	list, err := h.Orders.ListOrders(r.Context(), actor.UserID, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetOrder — GET /api/orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	order, err := h.Orders.GetOrder(r.Context(), actor.UserID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// UpdateOrderStatus — PATCH /api/orders/{id}/status
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	order, err := h.Orders.UpdateStatus(r.Context(), actorFrom(r), r.PathValue("id"), in.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ---------------------------------------------------------------------------
// Bulk import
// ---------------------------------------------------------------------------

// ImportProducts — POST /api/products/import
//
// Accepts a multipart upload with a "file" part containing CSV. A file
// missing required header columns is rejected outright; bad rows inside a
// valid file are skipped and reported in the failed count.
func (h *Handler) ImportProducts(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if !h.Policy.CanWrite(actor, "product") {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file upload", http.StatusBadRequest)
		return
	}
	defer file.Close()

	rows, err := importer.ParseCSV(file)
	if err != nil {
		writeError(w, err)
		return
	}

	imported, failed := h.Importer.Import(r.Context(), rows)
	slog.Info("bulk import finished",
		"component", "api",
		"imported", imported,
		"failed", failed,
	)
	writeJSON(w, http.StatusOK, map[string]int{
		"imported": imported,
		"failed":   failed,
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the service error taxonomy onto HTTP statuses.
// Anything unrecognized is an infra failure, logged and returned as 500.
func writeError(w http.ResponseWriter, err error) {
	if ve, ok := catalog.AsValidationError(err); ok {
		writeJSON(w, http.StatusBadRequest, ve.Fields)
		return
	}
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, catalog.ErrPermission):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, importer.ErrMissingColumns):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("request failed", "component", "api", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func pathInt(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, catalog.NewValidationError(name, "Must be an integer.")
	}
	return v, nil
}

// window extracts limit/offset. Absent values come back zero; the service
// layer applies its own defaults and clamping.
func window(r *http.Request) (limit, offset int64, err error) {
	q := r.URL.Query()
	if limit, err = queryInt(q.Get("limit"), "limit"); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(q.Get("offset"), "offset"); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func queryInt(raw, name string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, catalog.NewValidationError(name, "Must be an integer.")
	}
	return v, nil
}
