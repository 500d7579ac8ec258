// Package models defines the domain types shared between the API, the
// persistence layer and the index sync worker.
package models

import "time"

// Product is the catalog unit of sale. Postgres is the source of truth;
// the Elasticsearch document derived from it is eventually consistent.
type Product struct {
	ID          int64     `json:"id"`
	CategoryID  int64     `json:"category"`
	Category    *Category `json:"-"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	SellPrice   float64   `json:"sell_price"`
	OnSell      bool      `json:"on_sell"`
	Stock       int64     `json:"stock"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EffectivePrice is the price an order line is charged at the moment the
// order is placed. It is snapshotted into OrderItem.PriceAtPurchase and
// never recomputed afterwards.
func (p *Product) EffectivePrice() float64 {
	if p.OnSell {
		return p.SellPrice
	}
	return p.Price
}

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

type Review struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product"`
	Author    string    `json:"author"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductFilter carries the allow-listed list predicates. Nil/empty fields
// are not applied. Name and Description are case-insensitive substring
// matches; the price fields are exact / strict-less / strict-greater.
type ProductFilter struct {
	CategoryID  *int64
	Price       *float64
	PriceLT     *float64
	PriceGT     *float64
	Name        string
	Description string
}

// Order statuses. Transitions are validated by CanChangeStatus.
const (
	StatusPending        = "pd"
	StatusSubmitted      = "sb"
	StatusPreparing      = "pr"
	StatusDelivering     = "de"
	StatusCompleted      = "cp"
	StatusDeliveryFailed = "df"
	StatusCanceled       = "cn"
)

// statusTransitions maps a status to the set of statuses reachable from it.
var statusTransitions = map[string][]string{
	StatusPending:    {StatusSubmitted, StatusCanceled},
	StatusSubmitted:  {StatusPreparing, StatusCanceled},
	StatusPreparing:  {StatusDelivering, StatusCanceled},
	StatusDelivering: {StatusDeliveryFailed, StatusCompleted},
}

type Order struct {
	ID        string      `json:"id"`
	UserID    int64       `json:"user"`
	Status    string      `json:"status"`
	Address   string      `json:"address"`
	Items     []OrderItem `json:"items"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// CanChangeStatus reports whether the order may move to newStatus.
// Completed, delivery-failed and canceled are terminal.
func (o *Order) CanChangeStatus(newStatus string) bool {
	for _, s := range statusTransitions[o.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// TotalPrice sums quantity times the snapshotted per-line price.
func (o *Order) TotalPrice() float64 {
	var total float64
	for _, it := range o.Items {
		total += float64(it.Quantity) * it.PriceAtPurchase
	}
	return total
}

type OrderItem struct {
	ID              int64   `json:"id"`
	ProductID       int64   `json:"product"`
	Quantity        int64   `json:"quantity"`
	PriceAtPurchase float64 `json:"price_at_purchase"`
}

type Cart struct {
	ID     int64      `json:"id"`
	UserID int64      `json:"user"`
	Items  []CartItem `json:"items"`
}

type CartItem struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"product"`
	Quantity  int64 `json:"quantity"`
}

// Sync job operations applied to the search index.
const (
	SyncOpUpsert = "upsert"
	SyncOpDelete = "delete"
)

// SyncJob is one outbox row: a product mutation that still has to reach the
// search index. It is written in the same transaction as the Store mutation,
// relayed to RabbitMQ, and consumed by the worker.
type SyncJob struct {
	ID        int64     `json:"id"`
	Op        string    `json:"op"`
	ProductID int64     `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
}
