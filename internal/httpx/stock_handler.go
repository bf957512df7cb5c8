package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/redisx"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/stock"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/stocklog"
)

type StockHandler struct {
	Stock *stock.Repo
	Logs  *stocklog.Repo
	Redis *redis.Client
	Log   *zap.Logger
}

type SetStockReq struct {
	Qty int `json:"qty"`
}

func (h *StockHandler) Register(r *chi.Mux) {
	r.Get("/stock/logs", h.listLogs)
	r.Get("/stock/{document}", h.getDocument)
	r.Put("/stock/{document}/{item}", h.setItem)
}

func (h *StockHandler) getDocument(w http.ResponseWriter, r *http.Request) {
	doc := chi.URLParam(r, "document")
	if !stock.ValidDocument(doc) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown inventory document"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyStockDoc, doc)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	m, err := h.Stock.GetDocument(ctx, doc)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	b, _ := json.Marshal(m)
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStockCache).Err()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// setItem is the manual stock edit path. Every edit lands in the audit log
// with the acting user; automated deductions never go through here.
func (h *StockHandler) setItem(w http.ResponseWriter, r *http.Request) {
	doc := chi.URLParam(r, "document")
	item := chi.URLParam(r, "item")
	if !stock.ValidDocument(doc) || item == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown inventory document"})
		return
	}
	actor := r.Header.Get("X-User-Id")
	if actor == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing X-User-Id"})
		return
	}

	var req SetStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Qty < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "qty must be >= 0"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Stock.SetItem(ctx, doc, item, req.Qty); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if err := h.Logs.Append(ctx, stocklog.Entry{
		Document: doc, Item: item, NewQty: req.Qty, Actor: actor, Source: stocklog.SourceManual,
	}); err != nil {
		h.Log.Error("stock log append failed",
			zap.String("document", doc), zap.String("item", item), zap.Error(err))
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyStockDoc, doc)).Err()

	writeJSON(w, http.StatusOK, map[string]any{"document": doc, "item": item, "qty": req.Qty})
}

func (h *StockHandler) listLogs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.Logs.Recent(ctx, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
