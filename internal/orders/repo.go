package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/postgres"
)

var (
	ErrNotFound   = errors.New("order not found")
	ErrNotPending = errors.New("order is not pending")
)

// CheckoutItem is one cart line as submitted by a staff client. Prices are
// never taken from the client; they are resolved from the menu tables inside
// the checkout transaction.
type CheckoutItem struct {
	SKU      string   `json:"sku"`
	Size     string   `json:"size"`
	Qty      int      `json:"qty"`
	AddOnIDs []string `json:"addon_ids,omitempty"`
}

type Repo struct{ DB postgres.Pool }

// CreateOrderTx creates a PENDING order, idempotent via external_id:
// if external_id already exists it returns the existing order (existed=true).
func (r *Repo) CreateOrderTx(ctx context.Context, externalID string, items []CheckoutItem) (orderID string, total int, existed bool, err error) {
	row := r.DB.QueryRow(ctx, `SELECT id, total_cents FROM orders WHERE external_id=$1`, externalID)
	if err = row.Scan(&orderID, &total); err == nil {
		return orderID, total, true, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return "", 0, false, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", 0, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	skus := make([]string, 0, len(items))
	addonIDs := make([]string, 0)
	for _, it := range items {
		if it.Qty <= 0 {
			return "", 0, false, fmt.Errorf("invalid qty for sku=%s", it.SKU)
		}
		skus = append(skus, it.SKU)
		addonIDs = append(addonIDs, it.AddOnIDs...)
	}

	type product struct {
		id, name, category string
		prices             map[string]int
	}
	bySKU := map[string]*product{}
	rows, err := tx.Query(ctx, `SELECT id, sku, name, category FROM products WHERE sku = ANY($1)`, skus)
	if err != nil {
		return "", 0, false, err
	}
	idToSKU := map[string]string{}
	for rows.Next() {
		var id, sku string
		p := &product{prices: map[string]int{}}
		if err := rows.Scan(&id, &sku, &p.name, &p.category); err != nil {
			rows.Close()
			return "", 0, false, err
		}
		p.id = id
		bySKU[sku] = p
		idToSKU[id] = sku
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", 0, false, err
	}

	productIDs := make([]string, 0, len(idToSKU))
	for id := range idToSKU {
		productIDs = append(productIDs, id)
	}
	rows, err = tx.Query(ctx, `SELECT product_id, size, price_cents FROM product_prices WHERE product_id = ANY($1)`, productIDs)
	if err != nil {
		return "", 0, false, err
	}
	for rows.Next() {
		var pid, size string
		var cents int
		if err := rows.Scan(&pid, &size, &cents); err != nil {
			rows.Close()
			return "", 0, false, err
		}
		bySKU[idToSKU[pid]].prices[size] = cents
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", 0, false, err
	}

	addonByID := map[string]AddOn{}
	if len(addonIDs) > 0 {
		rows, err = tx.Query(ctx, `SELECT id, name, price_cents FROM addons WHERE id = ANY($1)`, addonIDs)
		if err != nil {
			return "", 0, false, err
		}
		for rows.Next() {
			var a AddOn
			if err := rows.Scan(&a.ID, &a.Name, &a.PriceCents); err != nil {
				rows.Close()
				return "", 0, false, err
			}
			addonByID[a.ID] = a
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return "", 0, false, err
		}
	}

	lines := make([]LineItem, 0, len(items))
	for _, it := range items {
		p, ok := bySKU[it.SKU]
		if !ok {
			return "", 0, false, fmt.Errorf("product not found: sku=%s", it.SKU)
		}
		base, ok := p.prices[it.Size]
		if !ok {
			return "", 0, false, fmt.Errorf("size %q not offered for sku=%s", it.Size, it.SKU)
		}
		line := LineItem{ProductName: p.name, Category: p.category, Size: it.Size, Qty: it.Qty}
		unit := base
		for _, aid := range it.AddOnIDs {
			a, ok := addonByID[aid]
			if !ok {
				return "", 0, false, fmt.Errorf("add-on not found: %s", aid)
			}
			line.AddOns = append(line.AddOns, a)
			unit += a.PriceCents
		}
		line.PriceCents = unit * it.Qty
		total += line.PriceCents
		lines = append(lines, line)
	}

	orderID = uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, external_id, status, total_cents)
		VALUES ($1, $2, 'PENDING', $3)
	`, orderID, externalID, total)
	if err != nil {
		return "", 0, false, err
	}

	for _, l := range lines {
		addons, err := json.Marshal(l.AddOns)
		if err != nil {
			return "", 0, false, err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_name, category, size, qty, price_cents, addons)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			orderID, l.ProductName, l.Category, l.Size, l.Qty, l.PriceCents, addons,
		)
		if err != nil {
			return "", 0, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", 0, false, err
	}
	return orderID, total, false, nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, external_id, status, total_cents, created_at, completed_at, voided_at, updated_at
		FROM orders WHERE id=$1`, orderID).
		Scan(&o.ID, &o.ExternalID, &o.Status, &o.TotalCents, &o.CreatedAt, &o.CompletedAt, &o.VoidedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Items, err = r.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repo) GetOrderItems(ctx context.Context, orderID string) ([]LineItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT product_name, category, size, qty, price_cents, addons
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LineItem
	for rows.Next() {
		var l LineItem
		var addons []byte
		if err := rows.Scan(&l.ProductName, &l.Category, &l.Size, &l.Qty, &l.PriceCents, &addons); err != nil {
			return nil, err
		}
		if len(addons) > 0 {
			if err := json.Unmarshal(addons, &l.AddOns); err != nil {
				return nil, err
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repo) GetOrderStatus(ctx context.Context, orderID string) (Status, error) {
	var s string
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return Status(s), nil
}

// VoidOrder moves a PENDING order to VOIDED. Inventory is untouched: items
// are discarded without stock being returned or consumed.
func (r *Repo) VoidOrder(ctx context.Context, orderID string) (time.Time, error) {
	var voidedAt time.Time
	err := r.DB.QueryRow(ctx, `
		UPDATE orders SET status='VOIDED', voided_at=now(), updated_at=now()
		WHERE id=$1 AND status='PENDING'
		RETURNING voided_at`, orderID).Scan(&voidedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, serr := r.GetOrderStatus(ctx, orderID); serr != nil {
			return time.Time{}, serr
		}
		return time.Time{}, ErrNotPending
	}
	if err != nil {
		return time.Time{}, err
	}
	return voidedAt, nil
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT p.id, p.sku, p.name, p.category, p.created_at, p.updated_at, pr.size, pr.price_cents
		FROM products p JOIN product_prices pr ON pr.product_id = p.id
		ORDER BY p.sku, pr.size`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := map[string]*Product{}
	var out []*Product
	for rows.Next() {
		var p Product
		var size string
		var cents int
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.CreatedAt, &p.UpdatedAt, &size, &cents); err != nil {
			return nil, err
		}
		cur, ok := byID[p.ID]
		if !ok {
			p.Prices = map[string]int{}
			byID[p.ID] = &p
			out = append(out, &p)
			cur = &p
		}
		cur.Prices[size] = cents
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ps := make([]Product, 0, len(out))
	for _, p := range out {
		ps = append(ps, *p)
	}
	return ps, nil
}

func (r *Repo) ListAddOns(ctx context.Context) ([]AddOn, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, price_cents FROM addons ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AddOn
	for rows.Next() {
		var a AddOn
		if err := rows.Scan(&a.ID, &a.Name, &a.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
