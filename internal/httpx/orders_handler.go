package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/normalkidtim/tiger-mango-inventory-sub000/internal/kafka"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/orders"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/redisx"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/stock"
)

type OrdersHandler struct {
	Repo         *orders.Repo
	Stock        *stock.Service
	Producer     kafkax.Publisher // pos.order.created
	ProducerVoid kafkax.Publisher // pos.order.voided
	Redis        *redis.Client
	Log          *zap.Logger
	Service      string
}

type CreateOrderReq struct {
	ExternalID string                `json:"external_id"`
	Items      []orders.CheckoutItem `json:"items"`
}

type CreateOrderResp struct {
	OrderID    string `json:"order_id"`
	TotalCents int    `json:"total_cents"`
	Idempotent bool   `json:"idempotent"`
}

type CompleteOrderResp struct {
	OrderID    string                  `json:"order_id"`
	Status     orders.Status           `json:"status"`
	Deductions []orders.DeductionEntry `json:"deductions"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Post("/orders/{id}/complete", h.completeOrder)
	r.Post("/orders/{id}/void", h.voidOrder)
	r.Get("/menu", h.listMenu)
	r.Get("/menu/addons", h.listAddOns)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ExternalID == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// fast-path idempotency: a repeat checkout answers from cache without
	// touching the DB; the unique external_id stays the source of truth
	idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, req.ExternalID)
	if b, err := h.Redis.Get(ctx, idemKey).Bytes(); err == nil && len(b) > 0 {
		var cached CreateOrderResp
		if json.Unmarshal(b, &cached) == nil && cached.OrderID != "" {
			cached.Idempotent = true
			writeJSON(w, http.StatusAccepted, cached)
			return
		}
	}

	orderID, total, existed, err := h.Repo.CreateOrderTx(ctx, req.ExternalID, req.Items)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	_ = h.Redis.Set(ctx, idemKey,
		kafkax.MustMarshal(CreateOrderResp{OrderID: orderID, TotalCents: total}),
		redisx.TTLIdempotency).Err()
	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	_ = h.Redis.Set(ctx, statusKey, `{"status":"PENDING"}`, redisx.TTLStatusCache).Err()

	if !existed {
		items, err := h.Repo.GetOrderItems(ctx, orderID)
		if err != nil {
			// degrade to a thin payload; consumers can re-query by order id
			h.Log.Warn("order items unavailable for event payload",
				zap.String("order_id", orderID), zap.Error(err))
			items = nil
		}
		ev := orders.Envelope{
			EventID:       uuid.NewString(),
			EventType:     orders.EventOrderCreated,
			EventVersion:  1,
			OccurredAt:    time.Now().UTC(),
			Producer:      h.Service,
			TraceID:       r.Header.Get("X-Request-Id"),
			CorrelationID: orderID,
			Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
				OrderID: orderID, ExternalID: req.ExternalID, Items: items, TotalCents: total,
			}),
		}
		h.Producer.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
			kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
			kafkago.Header{Key: "x-event-version", Value: []byte("1")},
		)
	}

	writeJSON(w, http.StatusAccepted, CreateOrderResp{OrderID: orderID, TotalCents: total, Idempotent: existed})
}

// completeOrder is the only path that mutates inventory. The handler must
// not report success until the stock transaction has committed, and a
// rejection must tell the operator whether to restock or simply retry.
func (h *OrdersHandler) completeOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	applied, err := h.Stock.CompleteOrder(ctx, orderID, r.Header.Get("X-Request-Id"))
	if err != nil {
		var ise *stock.InsufficientStockError
		switch {
		case errors.As(err, &ise):
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":   "not enough stock, restock before retrying",
				"details": ise.Shortages,
			})
		case errors.Is(err, orders.ErrNotPending):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "order is not pending"})
		case errors.Is(err, orders.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		case stock.IsConflict(err):
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "temporary conflict, try again"})
		default:
			h.Log.Error("complete order failed", zap.String("order_id", orderID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}

	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	_ = h.Redis.Set(ctx, statusKey, `{"status":"COMPLETED"}`, redisx.TTLStatusCache).Err()

	writeJSON(w, http.StatusOK, CompleteOrderResp{OrderID: orderID, Status: orders.StatusCompleted, Deductions: applied})
}

func (h *OrdersHandler) voidOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	voidedAt, err := h.Repo.VoidOrder(ctx, orderID)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	case errors.Is(err, orders.ErrNotPending):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order is not pending"})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	_ = h.Redis.Set(ctx, statusKey, `{"status":"VOIDED"}`, redisx.TTLStatusCache).Err()

	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderVoided,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(orders.OrderVoidedPayload{OrderID: orderID, VoidedAt: voidedAt}),
	}
	h.ProducerVoid.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderVoided)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)

	writeJSON(w, http.StatusOK, map[string]any{"order_id": orderID, "status": orders.StatusVoided})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Repo.GetOrder(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// cache first, DB as fallback
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	status, err := h.Repo.GetOrderStatus(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	b, _ := json.Marshal(map[string]any{"status": status})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *OrdersHandler) listMenu(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Repo.ListProducts(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) listAddOns(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	as, err := h.Repo.ListAddOns(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, as)
}
