package redisx

import "time"

const (
	// Idempotency for checkout: idem:order:create:{external_id} ->
	// cached create response {"order_id": ..., "total_cents": ...}
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Cache order status: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Snapshot cache of one inventory document: stock:doc:{document}
	KeyStockDoc = "stock:doc:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Counter of line items whose category matched no classification entry:
	// metric:unclassified:{category}. Operators watch this to spot menu
	// categories that were never added to the lid/straw tables.
	KeyUnclassified = "metric:unclassified:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLStockCache  = 30 * time.Second
	TTLDedup       = 48 * time.Hour
)
