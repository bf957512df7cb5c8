package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/normalkidtim/tiger-mango-inventory-sub000/internal/kafka"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/orders"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/redisx"
)

type OrderSource interface {
	GetOrderItems(ctx context.Context, orderID string) ([]orders.LineItem, error)
}

type Applier interface {
	ApplyDeduction(ctx context.Context, orderID string, ds DeductionSet) ([]orders.DeductionEntry, error)
}

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 50 * time.Millisecond
)

// Service drives order completion: compute the deduction set once from the
// immutable order items, then apply it atomically, retrying only on transient
// transactional conflicts. Insufficient stock is terminal and never retried.
type Service struct {
	Orders         OrderSource
	Stock          Applier
	Redis          *redis.Client    // optional; unclassified counters are best-effort
	ProducerOK     kafkax.Publisher // pos.order.completed
	ProducerReject kafkax.Publisher // pos.stock.rejected
	Log            *zap.Logger
	ServiceName    string

	MaxRetries int           // conflict retries on top of the first attempt; 0 means default
	RetryDelay time.Duration // pause between conflict retries; 0 means default
}

func (s *Service) CompleteOrder(ctx context.Context, orderID, traceID string) ([]orders.DeductionEntry, error) {
	items, err := s.Orders.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}

	ds := Compute(items)
	s.reportUnclassified(ctx, orderID, ds.Unclassified)

	retries := s.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	delay := s.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	var applied []orders.DeductionEntry
	for attempt := 0; ; attempt++ {
		applied, err = s.Stock.ApplyDeduction(ctx, orderID, ds)
		if err == nil {
			break
		}
		if !IsConflict(err) || attempt >= retries {
			break
		}
		s.Log.Warn("stock transaction conflict, retrying",
			zap.String("order_id", orderID), zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		var ise *InsufficientStockError
		if errors.As(err, &ise) {
			s.publishRejected(orderID, ise.Shortages, traceID)
			s.Log.Info("order completion rejected",
				zap.String("order_id", orderID), zap.Int("shortages", len(ise.Shortages)))
		}
		return nil, err
	}

	s.publishCompleted(orderID, applied, traceID)
	s.Log.Info("order completed",
		zap.String("order_id", orderID), zap.Int("deductions", len(applied)))
	return applied, nil
}

// reportUnclassified surfaces categories missing from the consumption table.
// Behavior is unchanged (they consume no lid or straw) but the gap is made
// visible instead of silently dropped.
func (s *Service) reportUnclassified(ctx context.Context, orderID string, categories []string) {
	for _, c := range categories {
		s.Log.Warn("category has no lid/straw classification",
			zap.String("order_id", orderID), zap.String("category", c))
		if s.Redis != nil {
			_ = s.Redis.Incr(ctx, fmt.Sprintf(redisx.KeyUnclassified, c)).Err()
		}
	}
}

func (s *Service) publishCompleted(orderID string, applied []orders.DeductionEntry, trace string) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCompleted,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       trace,
		CorrelationID: orderID,
		Payload: kafkax.MustMarshal(orders.OrderCompletedPayload{
			OrderID: orderID, CompletedAt: time.Now().UTC(), Deductions: applied,
		}),
	}
	s.ProducerOK.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCompleted)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Service) publishRejected(orderID string, details []orders.ShortageDetail, trace string) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventStockRejected,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       trace,
		CorrelationID: orderID,
		Payload: kafkax.MustMarshal(orders.StockRejectedPayload{
			OrderID: orderID, Reason: "INSUFFICIENT_STOCK", Details: details,
		}),
	}
	s.ProducerReject.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventStockRejected)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
