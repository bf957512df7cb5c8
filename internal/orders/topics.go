package orders

const (
	TopicOrderCreated   = "pos.order.created"
	TopicOrderCompleted = "pos.order.completed"
	TopicOrderVoided    = "pos.order.voided"
	TopicStockRejected  = "pos.stock.rejected"
)

// Partition key = order_id so all events for one order stay ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
