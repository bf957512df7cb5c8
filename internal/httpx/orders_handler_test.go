package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/orders"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/redisx"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/stock"
)

type stubOrders struct{ items []orders.LineItem }

func (s *stubOrders) GetOrderItems(ctx context.Context, orderID string) ([]orders.LineItem, error) {
	return s.items, nil
}

type stubApplier struct{ err error }

func (s *stubApplier) ApplyDeduction(ctx context.Context, orderID string, ds stock.DeductionSet) ([]orders.DeductionEntry, error) {
	return nil, s.err
}

type nopPublisher struct{}

func (nopPublisher) Publish(key, value []byte, headers ...kafkago.Header) {}

func newCompleteServer(t *testing.T, applyErr error) *httptest.Server {
	t.Helper()
	svc := &stock.Service{
		Orders:         &stubOrders{items: []orders.LineItem{{Category: "Milk Tea", Size: "medium", Qty: 1}}},
		Stock:          &stubApplier{err: applyErr},
		ProducerOK:     nopPublisher{},
		ProducerReject: nopPublisher{},
		Log:            zap.NewNop(),
		ServiceName:    "pos-api-test",
		RetryDelay:     time.Millisecond,
	}
	h := &OrdersHandler{Stock: svc, Log: zap.NewNop(), Service: "pos-api-test"}
	r := NewRouter()
	h.Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postComplete(t *testing.T, srv *httptest.Server) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/orders/order-1/complete", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestCompleteOrderInsufficientStockResponse(t *testing.T) {
	srv := newCompleteServer(t, &stock.InsufficientStockError{Shortages: []orders.ShortageDetail{
		{Document: stock.DocCups, Item: "medium", Required: 3, Available: 2},
	}})

	resp, body := postComplete(t, srv)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "not enough stock")
	details, ok := body["details"].([]any)
	require.True(t, ok)
	require.Len(t, details, 1)
	d := details[0].(map[string]any)
	assert.Equal(t, "medium", d["item"])
	assert.Equal(t, float64(3), d["required"])
	assert.Equal(t, float64(2), d["available"])
}

func TestCompleteOrderNotPendingResponse(t *testing.T) {
	srv := newCompleteServer(t, orders.ErrNotPending)

	resp, body := postComplete(t, srv)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "order is not pending", body["error"])
}

func TestCompleteOrderNotFoundResponse(t *testing.T) {
	srv := newCompleteServer(t, orders.ErrNotFound)

	resp, _ := postComplete(t, srv)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type capturePublisher struct{ envelopes []orders.Envelope }

func (c *capturePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	var env orders.Envelope
	if err := json.Unmarshal(value, &env); err == nil {
		c.envelopes = append(c.envelopes, env)
	}
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCreateOrderIdempotentFastPath(t *testing.T) {
	rdb := testRedis(t)
	require.NoError(t, rdb.Set(context.Background(),
		fmt.Sprintf(redisx.KeyIdemOrderCreate, "ext-9"),
		`{"order_id":"ord-9","total_cents":700}`, 0).Err())

	// Repo is nil: a cache hit must answer before any DB access
	h := &OrdersHandler{Redis: rdb, Log: zap.NewNop(), Service: "pos-api-test"}
	r := NewRouter()
	h.Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	body := `{"external_id":"ext-9","items":[{"sku":"MT-1","size":"medium","qty":1}]}`
	resp, err := http.Post(srv.URL+"/orders", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	var got CreateOrderResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "ord-9", got.OrderID)
	assert.Equal(t, 700, got.TotalCents)
	assert.True(t, got.Idempotent)
}

func TestCreateOrderDegradesEventPayloadOnItemReadFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectQuery(`SELECT id, total_cents FROM orders`).WithArgs("ext-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, sku, name, category FROM products`).WithArgs([]string{"MT-1"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "sku", "name", "category"}).
			AddRow("p1", "MT-1", "Classic Milk Tea", "Milk Tea"))
	mock.ExpectQuery(`SELECT product_id, size, price_cents FROM product_prices`).WithArgs([]string{"p1"}).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "size", "price_cents"}).
			AddRow("p1", "medium", 500))
	mock.ExpectExec(`INSERT INTO orders`).WithArgs(pgxmock.AnyArg(), "ext-1", 500).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO order_items`).
		WithArgs(pgxmock.AnyArg(), "Classic Milk Tea", "Milk Tea", "medium", 1, 500, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	// the post-commit read for the event payload fails
	mock.ExpectQuery(`SELECT product_name, category, size, qty, price_cents, addons`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(assert.AnError)

	pub := &capturePublisher{}
	h := &OrdersHandler{
		Repo:         &orders.Repo{DB: mock},
		Producer:     pub,
		ProducerVoid: &capturePublisher{},
		Redis:        testRedis(t),
		Log:          zap.NewNop(),
		Service:      "pos-api-test",
	}
	r := NewRouter()
	h.Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	body := `{"external_id":"ext-1","items":[{"sku":"MT-1","size":"medium","qty":1}]}`
	resp, err := http.Post(srv.URL+"/orders", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// the event still goes out, with an empty item list instead of a
	// half-populated one
	require.Len(t, pub.envelopes, 1)
	assert.Equal(t, orders.EventOrderCreated, pub.envelopes[0].EventType)
	var p orders.OrderCreatedPayload
	require.NoError(t, json.Unmarshal(pub.envelopes[0].Payload, &p))
	assert.Empty(t, p.Items)
	assert.Equal(t, "ext-1", p.ExternalID)
	assert.Equal(t, 500, p.TotalCents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteOrderConflictResponse(t *testing.T) {
	srv := newCompleteServer(t, &pgconn.PgError{Code: "40001"})

	resp, body := postComplete(t, srv)
	// operators must be able to tell a transient conflict from a stock problem
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body["error"], "try again")
}
