package orders

import "time"

type Product struct {
	ID        string         `json:"id"`
	SKU       string         `json:"sku"`
	Name      string         `json:"name"`
	Category  string         `json:"category"`
	Prices    map[string]int `json:"prices"` // size -> price cents
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type AddOn struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int    `json:"price_cents"`
}

// LineItem is immutable after checkout; completion reads it, never writes it.
type LineItem struct {
	ProductName string  `json:"product_name"`
	Category    string  `json:"category"`
	Size        string  `json:"size"`
	Qty         int     `json:"qty"`
	PriceCents  int     `json:"price_cents"` // computed line price, qty and add-ons included
	AddOns      []AddOn `json:"add_ons,omitempty"`
}

type Order struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"external_id"`
	Status      Status     `json:"status"`
	TotalCents  int        `json:"total_cents"`
	Items       []LineItem `json:"items,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	VoidedAt    *time.Time `json:"voided_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
