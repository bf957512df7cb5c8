package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderCompleted = "OrderCompleted"
	EventOrderVoided    = "OrderVoided"
	EventStockRejected  = "StockRejected"
)

type Envelope struct {
	EventID       string          `json:"event_id"` // uuid
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID    string     `json:"order_id"`
	ExternalID string     `json:"external_id"`
	Items      []LineItem `json:"items"`
	TotalCents int        `json:"total_cents"`
}

// DeductionEntry is one applied decrement against an inventory document.
// Remaining is the quantity left after the decrement, used by the stock
// auditor to record post-deduction levels without re-reading inventory.
type DeductionEntry struct {
	Document  string `json:"document"`
	Item      string `json:"item"`
	Qty       int    `json:"qty"`
	Remaining int    `json:"remaining"`
}

type OrderCompletedPayload struct {
	OrderID     string           `json:"order_id"`
	CompletedAt time.Time        `json:"completed_at"`
	Deductions  []DeductionEntry `json:"deductions"`
}

type ShortageDetail struct {
	Document  string `json:"document"`
	Item      string `json:"item"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

type StockRejectedPayload struct {
	OrderID string           `json:"order_id"`
	Reason  string           `json:"reason"` // e.g. INSUFFICIENT_STOCK
	Details []ShortageDetail `json:"details,omitempty"`
}

type OrderVoidedPayload struct {
	OrderID  string    `json:"order_id"`
	VoidedAt time.Time `json:"voided_at"`
}
