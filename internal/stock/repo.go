package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/orders"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/postgres"
)

var Documents = []string{DocCups, DocLids, DocStraws, DocAddOns}

func ValidDocument(name string) bool {
	for _, d := range Documents {
		if d == name {
			return true
		}
	}
	return false
}

type Repo struct{ DB postgres.Pool }

// ApplyDeduction runs the whole check-and-decrement as one transaction:
// lock the order row (status must still be PENDING), lock every touched
// counter, verify sufficiency, then decrement everything and stamp the order
// COMPLETED. Any shortage rolls the whole thing back; nothing is written.
//
// Counters are visited in a fixed (document, item) order so two concurrent
// completions acquire row locks in the same sequence.
func (r *Repo) ApplyDeduction(ctx context.Context, orderID string, ds DeductionSet) ([]orders.DeductionEntry, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orders.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !orders.CanTransition(orders.Status(status), orders.StatusCompleted) {
		return nil, fmt.Errorf("%w: status=%s", orders.ErrNotPending, status)
	}

	var (
		applied   []orders.DeductionEntry
		shortages []orders.ShortageDetail
	)
	byDoc := ds.ByDocument()
	for _, doc := range Documents {
		needs := byDoc[doc]
		items := make([]string, 0, len(needs))
		for item := range needs {
			items = append(items, item)
		}
		sort.Strings(items)

		for _, item := range items {
			need := needs[item]
			var have int
			err := tx.QueryRow(ctx, `SELECT qty FROM inventory WHERE category=$1 AND item=$2 FOR UPDATE`, doc, item).Scan(&have)
			if errors.Is(err, pgx.ErrNoRows) {
				have = 0 // missing counter reads as zero stock
			} else if err != nil {
				return nil, err
			}
			if have < need {
				shortages = append(shortages, orders.ShortageDetail{
					Document: doc, Item: item, Required: need, Available: have,
				})
				continue
			}
			if _, err := tx.Exec(ctx, `UPDATE inventory SET qty = qty - $3, updated_at=now() WHERE category=$1 AND item=$2`, doc, item, need); err != nil {
				return nil, err
			}
			applied = append(applied, orders.DeductionEntry{
				Document: doc, Item: item, Qty: need, Remaining: have - need,
			})
		}
	}

	if len(shortages) > 0 {
		return nil, &InsufficientStockError{Shortages: shortages} // rollback via defer
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status='COMPLETED', completed_at=now(), voided_at=NULL, updated_at=now()
		WHERE id=$1`, orderID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return applied, nil
}

// GetDocument reads one inventory document as an item -> qty map.
// A document with no rows yet is returned empty, not as an error.
func (r *Repo) GetDocument(ctx context.Context, doc string) (map[string]int, error) {
	rows, err := r.DB.Query(ctx, `SELECT item, qty FROM inventory WHERE category=$1 ORDER BY item`, doc)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var item string
		var qty int
		if err := rows.Scan(&item, &qty); err != nil {
			return nil, err
		}
		out[item] = qty
	}
	return out, rows.Err()
}

// SetItem upserts a single counter to an absolute value. Used by manual stock
// edits only; order completion goes through ApplyDeduction.
func (r *Repo) SetItem(ctx context.Context, doc, item string, qty int) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO inventory(category, item, qty) VALUES ($1,$2,$3)
		ON CONFLICT (category, item) DO UPDATE SET qty = EXCLUDED.qty, updated_at = now()
	`, doc, item, qty)
	return err
}
