package stock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/orders"
)

type fakeOrders struct {
	items []orders.LineItem
	err   error
}

func (f *fakeOrders) GetOrderItems(ctx context.Context, orderID string) ([]orders.LineItem, error) {
	return f.items, f.err
}

// fakeApplier replays a scripted sequence of results, one per attempt.
type fakeApplier struct {
	results []error
	applied []orders.DeductionEntry
	calls   int
	seen    []DeductionSet
}

func (f *fakeApplier) ApplyDeduction(ctx context.Context, orderID string, ds DeductionSet) ([]orders.DeductionEntry, error) {
	f.seen = append(f.seen, ds)
	err := f.results[f.calls]
	f.calls++
	if err != nil {
		return nil, err
	}
	return f.applied, nil
}

type fakePublisher struct {
	envelopes []orders.Envelope
}

func (f *fakePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	var env orders.Envelope
	if err := json.Unmarshal(value, &env); err == nil {
		f.envelopes = append(f.envelopes, env)
	}
}

func conflictErr() error {
	return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
}

func newService(src *fakeOrders, app *fakeApplier) (*Service, *fakePublisher, *fakePublisher) {
	ok := &fakePublisher{}
	rej := &fakePublisher{}
	return &Service{
		Orders:         src,
		Stock:          app,
		ProducerOK:     ok,
		ProducerReject: rej,
		Log:            zap.NewNop(),
		ServiceName:    "pos-api-test",
		RetryDelay:     time.Millisecond,
	}, ok, rej
}

func TestCompleteOrderSuccess(t *testing.T) {
	src := &fakeOrders{items: []orders.LineItem{{Category: "Milk Tea", Size: "medium", Qty: 1}}}
	app := &fakeApplier{
		results: []error{nil},
		applied: []orders.DeductionEntry{{Document: DocCups, Item: "medium", Qty: 1, Remaining: 9}},
	}
	svc, ok, rej := newService(src, app)

	applied, err := svc.CompleteOrder(context.Background(), "order-1", "trace-1")
	require.NoError(t, err)
	assert.Equal(t, app.applied, applied)
	assert.Equal(t, 1, app.calls)

	require.Len(t, ok.envelopes, 1)
	assert.Equal(t, orders.EventOrderCompleted, ok.envelopes[0].EventType)
	assert.Equal(t, "trace-1", ok.envelopes[0].TraceID)
	assert.Empty(t, rej.envelopes)

	var p orders.OrderCompletedPayload
	require.NoError(t, json.Unmarshal(ok.envelopes[0].Payload, &p))
	assert.Equal(t, "order-1", p.OrderID)
	assert.Equal(t, app.applied, p.Deductions)
}

func TestCompleteOrderRetriesConflicts(t *testing.T) {
	src := &fakeOrders{items: []orders.LineItem{{Category: "Frappe", Size: "large", Qty: 2}}}
	app := &fakeApplier{results: []error{conflictErr(), conflictErr(), nil}, applied: []orders.DeductionEntry{}}
	svc, ok, _ := newService(src, app)

	_, err := svc.CompleteOrder(context.Background(), "order-2", "")
	require.NoError(t, err)
	assert.Equal(t, 3, app.calls)
	assert.Len(t, ok.envelopes, 1)

	// the deduction set is computed once and replayed verbatim
	for _, ds := range app.seen[1:] {
		assert.Equal(t, app.seen[0], ds)
	}
}

func TestCompleteOrderConflictRetriesBounded(t *testing.T) {
	src := &fakeOrders{items: []orders.LineItem{{Category: "Coffee", Size: "tall", Qty: 1}}}
	app := &fakeApplier{results: []error{conflictErr(), conflictErr(), conflictErr(), conflictErr(), conflictErr()}}
	svc, ok, rej := newService(src, app)
	svc.MaxRetries = 2

	_, err := svc.CompleteOrder(context.Background(), "order-3", "")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Equal(t, 3, app.calls, "first attempt plus two retries")
	assert.Empty(t, ok.envelopes)
	assert.Empty(t, rej.envelopes, "conflicts are not stock rejections")
}

func TestCompleteOrderInsufficientStockNotRetried(t *testing.T) {
	src := &fakeOrders{items: []orders.LineItem{
		{Category: "Milk Tea", Size: "medium", Qty: 1},
		{Category: "Milk Tea", Size: "medium", Qty: 2},
	}}
	shortage := &InsufficientStockError{Shortages: []orders.ShortageDetail{
		{Document: DocCups, Item: "medium", Required: 3, Available: 2},
	}}
	app := &fakeApplier{results: []error{shortage, nil}}
	svc, ok, rej := newService(src, app)

	_, err := svc.CompleteOrder(context.Background(), "order-4", "")
	require.Error(t, err)

	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, shortage.Shortages, ise.Shortages)
	assert.Equal(t, 1, app.calls, "business-rule rejection must not be retried")

	assert.Empty(t, ok.envelopes)
	require.Len(t, rej.envelopes, 1)
	assert.Equal(t, orders.EventStockRejected, rej.envelopes[0].EventType)

	var p orders.StockRejectedPayload
	require.NoError(t, json.Unmarshal(rej.envelopes[0].Payload, &p))
	assert.Equal(t, "INSUFFICIENT_STOCK", p.Reason)
	require.Len(t, p.Details, 1)
	assert.Equal(t, "medium", p.Details[0].Item)
	assert.Equal(t, 3, p.Details[0].Required)
	assert.Equal(t, 2, p.Details[0].Available)
}

func TestCompleteOrderNotPendingPassedThrough(t *testing.T) {
	src := &fakeOrders{items: []orders.LineItem{{Category: "Milk Tea", Size: "tall", Qty: 1}}}
	app := &fakeApplier{results: []error{orders.ErrNotPending}}
	svc, ok, rej := newService(src, app)

	_, err := svc.CompleteOrder(context.Background(), "order-5", "")
	assert.ErrorIs(t, err, orders.ErrNotPending)
	assert.Equal(t, 1, app.calls)
	assert.Empty(t, ok.envelopes)
	assert.Empty(t, rej.envelopes)
}

func TestCompleteOrderLoadItemsError(t *testing.T) {
	src := &fakeOrders{err: errors.New("boom")}
	app := &fakeApplier{results: []error{nil}}
	svc, _, _ := newService(src, app)

	_, err := svc.CompleteOrder(context.Background(), "order-6", "")
	require.Error(t, err)
	assert.Equal(t, 0, app.calls)
}

func TestInsufficientStockErrorMessage(t *testing.T) {
	err := &InsufficientStockError{Shortages: []orders.ShortageDetail{
		{Document: DocCups, Item: "medium", Required: 3, Available: 2},
		{Document: DocAddOns, Item: "pearl", Required: 1, Available: 0},
	}}
	msg := err.Error()
	assert.Contains(t, msg, "cups/medium need 3 have 2")
	assert.Contains(t, msg, "addons/pearl need 1 have 0")
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(conflictErr()))
	assert.True(t, IsConflict(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsConflict(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsConflict(errors.New("plain")))
	assert.False(t, IsConflict(&InsufficientStockError{}))
}
