package stocklog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/normalkidtim/tiger-mango-inventory-sub000/internal/kafka"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/orders"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/redisx"
)

// Appender is the slice of Repo the auditor needs.
type Appender interface {
	Append(ctx context.Context, e Entry) error
}

// Auditor fills the audit-trail gap for automated deductions: manual edits
// are logged synchronously by the stock handler, while order completions are
// logged here from pos.order.completed events, outside the stock transaction.
type Auditor struct {
	Logs        Appender
	Redis       *redis.Client
	Log         *zap.Logger
	ServiceName string
}

// HandleOrderCompleted is installed as the consumer handler.
func (a *Auditor) HandleOrderCompleted(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderCompleted {
		return nil // ignore
	}

	// dedup by event_id so redeliveries do not double-log; best-effort
	dkey := fmt.Sprintf(redisx.KeyDedup, a.ServiceName, env.EventID)
	if a.Redis != nil {
		if exists, _ := redisx.Exists(ctx, a.Redis, dkey); exists {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[orders.OrderCompletedPayload](env.Payload)
	if err != nil {
		return err
	}

	for _, d := range p.Deductions {
		if err := a.Logs.Append(ctx, Entry{
			Document: d.Document,
			Item:     d.Item,
			NewQty:   d.Remaining,
			Actor:    "system:" + env.Producer,
			Source:   SourceOrder,
		}); err != nil {
			return err
		}
	}

	if a.Redis != nil {
		_ = a.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}
	a.Log.Info("deduction audit recorded",
		zap.String("order_id", p.OrderID), zap.Int("entries", len(p.Deductions)))
	return nil
}
