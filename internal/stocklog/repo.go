package stocklog

import (
	"context"
	"time"

	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/postgres"
)

const (
	SourceManual = "manual" // operator edit through the stock endpoint
	SourceOrder  = "order"  // automated deduction recorded by the auditor
)

// Entry is one append-only audit record: who left a counter at what value.
type Entry struct {
	ID        int64     `json:"id"`
	Document  string    `json:"document"`
	Item      string    `json:"item"`
	NewQty    int       `json:"new_qty"`
	Actor     string    `json:"actor"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

type Repo struct{ DB postgres.Pool }

func (r *Repo) Append(ctx context.Context, e Entry) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO stock_logs(category, item, new_qty, actor, source)
		VALUES ($1, $2, $3, $4, $5)`,
		e.Document, e.Item, e.NewQty, e.Actor, e.Source)
	return err
}

func (r *Repo) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, category, item, new_qty, actor, source, created_at
		FROM stock_logs ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Document, &e.Item, &e.NewQty, &e.Actor, &e.Source, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
