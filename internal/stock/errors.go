package stock

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/orders"
)

// InsufficientStockError is a terminal business-rule rejection: at least one
// counter cannot cover the required deduction. Never retried.
type InsufficientStockError struct {
	Shortages []orders.ShortageDetail
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s/%s need %d have %d", s.Document, s.Item, s.Required, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

// IsConflict reports whether err is a transient transactional conflict
// (serialization failure or deadlock) worth replaying with the same deltas.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
