package sales

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/orderflow"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. Header updates are version
// guarded; a stale version surfaces as ErrConcurrentModification.
type TxRepository interface {
	NextSequence(ctx context.Context, family, period string) (int64, error)
	CreateOrder(ctx context.Context, so SalesOrder) (int64, error)
	InsertLine(ctx context.Context, line OrderLine) error
	DeleteLines(ctx context.Context, orderID int64) error
	UpdateHeaderTotals(ctx context.Context, orderID, version int64, adj orderflow.Adjustments, totals orderflow.Totals) error
	UpdateStatus(ctx context.Context, orderID, version int64, status orderflow.Status, at time.Time) error
	Stock() inventory.MovementWriter
}

type txRepo struct {
	tx    pgx.Tx
	stock *inventory.TxWriter
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, stock: inventory.NewTxWriter(tx)})
	})
}

// GetOrder returns sales order and lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (SalesOrder, []OrderLine, error) {
	var so SalesOrder
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, number, customer_id, created_by, order_date, status,
discount_pct, tax_pct, subtotal, discount_amount, tax_amount, shipping_cost, total_amount,
shipping_address, notes, version, COALESCE(shipped_at, 'epoch'::timestamptz), COALESCE(delivered_at, 'epoch'::timestamptz),
created_at, updated_at
FROM sales_orders WHERE id=$1`, id).Scan(
		&so.ID, &so.Number, &so.CustomerID, &so.CreatedBy, &so.OrderDate, &status,
		&so.DiscountPercent, &so.TaxPercent, &so.Subtotal, &so.DiscountAmount, &so.TaxAmount, &so.ShippingCost, &so.TotalAmount,
		&so.ShippingAddress, &so.Notes, &so.Version, &so.ShippedAt, &so.DeliveredAt,
		&so.CreatedAt, &so.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SalesOrder{}, nil, ErrNotFound
		}
		return SalesOrder{}, nil, shared.ClassifyPgError("sales: get order", err)
	}
	so.Status = orderflow.Status(status)

	rows, err := r.pool.Query(ctx, `SELECT id, order_id, product_id, qty, unit_price, discount_amount, line_total, notes
FROM sales_order_lines WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return SalesOrder{}, nil, shared.ClassifyPgError("sales: get order lines", err)
	}
	defer rows.Close()
	var lines []OrderLine
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.DiscountAmount, &line.LineTotal, &line.Notes); err != nil {
			return SalesOrder{}, nil, shared.ClassifyPgError("sales: scan order line", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return SalesOrder{}, nil, shared.ClassifyPgError("sales: get order lines", err)
	}
	return so, lines, nil
}

// ListOrders returns sales orders with customer name and total.
func (r *Repository) ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]OrderListItem, int, error) {
	countSQL := `SELECT COUNT(*) FROM sales_orders o WHERE 1=1`
	args := []any{}
	argNum := 1
	if filters.Status != "" {
		countSQL += ` AND o.status = $` + itoa(argNum)
		args = append(args, filters.Status)
		argNum++
	}
	if filters.CustomerID > 0 {
		countSQL += ` AND o.customer_id = $` + itoa(argNum)
		args = append(args, filters.CustomerID)
		argNum++
	}
	if filters.Search != "" {
		countSQL += ` AND o.number ILIKE $` + itoa(argNum)
		args = append(args, "%"+filters.Search+"%")
		argNum++
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, shared.ClassifyPgError("sales: count orders", err)
	}

	dataSQL := `SELECT o.id, o.number, o.customer_id, COALESCE(c.name, '') AS customer_name,
		o.status, o.order_date, o.total_amount, o.created_at
	FROM sales_orders o
	LEFT JOIN customers c ON c.id = o.customer_id
	WHERE 1=1`
	args2 := []any{}
	argNum2 := 1
	if filters.Status != "" {
		dataSQL += ` AND o.status = $` + itoa(argNum2)
		args2 = append(args2, filters.Status)
		argNum2++
	}
	if filters.CustomerID > 0 {
		dataSQL += ` AND o.customer_id = $` + itoa(argNum2)
		args2 = append(args2, filters.CustomerID)
		argNum2++
	}
	if filters.Search != "" {
		dataSQL += ` AND o.number ILIKE $` + itoa(argNum2)
		args2 = append(args2, "%"+filters.Search+"%")
		argNum2++
	}
	dataSQL += ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir) + ` LIMIT $` + itoa(argNum2) + ` OFFSET $` + itoa(argNum2+1)
	args2 = append(args2, limit, offset)

	rows, err := r.pool.Query(ctx, dataSQL, args2...)
	if err != nil {
		return nil, 0, shared.ClassifyPgError("sales: list orders", err)
	}
	defer rows.Close()
	var items []OrderListItem
	for rows.Next() {
		var item OrderListItem
		var status string
		if err := rows.Scan(&item.ID, &item.Number, &item.CustomerID, &item.CustomerName,
			&status, &item.OrderDate, &item.TotalAmount, &item.CreatedAt); err != nil {
			return nil, 0, shared.ClassifyPgError("sales: scan order", err)
		}
		item.Status = orderflow.Status(status)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, shared.ClassifyPgError("sales: list orders", err)
	}
	return items, total, nil
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

func sortOrder(sortBy, sortDir string) string {
	dir := "DESC"
	if sortDir == "asc" {
		dir = "ASC"
	}
	switch sortBy {
	case "number":
		return "o.number " + dir
	case "customer":
		return "customer_name " + dir
	case "order_date":
		return "o.order_date " + dir
	case "total":
		return "o.total_amount " + dir
	case "status":
		return "o.status " + dir
	default:
		return "o.created_at DESC"
	}
}

func (t *txRepo) NextSequence(ctx context.Context, family, period string) (int64, error) {
	var value int64
	err := t.tx.QueryRow(ctx, `INSERT INTO doc_sequences (family, period, value) VALUES ($1,$2,1)
ON CONFLICT (family, period) DO UPDATE SET value = doc_sequences.value + 1 RETURNING value`, family, period).Scan(&value)
	if err != nil {
		return 0, shared.ClassifyPgError("sales: next sequence", err)
	}
	return value, nil
}

func (t *txRepo) CreateOrder(ctx context.Context, so SalesOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sales_orders
(number, customer_id, created_by, order_date, status, discount_pct, tax_pct,
subtotal, discount_amount, tax_amount, shipping_cost, total_amount, shipping_address, notes, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,1,NOW(),NOW()) RETURNING id`,
		so.Number, so.CustomerID, so.CreatedBy, so.OrderDate, string(so.Status),
		so.DiscountPercent.String(), so.TaxPercent.String(),
		so.Subtotal.String(), so.DiscountAmount.String(), so.TaxAmount.String(), so.ShippingCost.String(), so.TotalAmount.String(),
		so.ShippingAddress, so.Notes).Scan(&id)
	if err != nil {
		return 0, shared.ClassifyPgError("sales: create order", err)
	}
	return id, nil
}

func (t *txRepo) InsertLine(ctx context.Context, line OrderLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO sales_order_lines (order_id, product_id, qty, unit_price, discount_amount, line_total, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		line.OrderID, line.ProductID, line.Quantity, line.UnitPrice.String(), line.DiscountAmount.String(), line.LineTotal.String(), line.Notes)
	if err != nil {
		return shared.ClassifyPgError("sales: insert line", err)
	}
	return nil
}

func (t *txRepo) DeleteLines(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM sales_order_lines WHERE order_id=$1`, orderID)
	if err != nil {
		return shared.ClassifyPgError("sales: delete lines", err)
	}
	return nil
}

func (t *txRepo) UpdateHeaderTotals(ctx context.Context, orderID, version int64, adj orderflow.Adjustments, totals orderflow.Totals) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales_orders SET discount_pct=$3, tax_pct=$4,
subtotal=$5, discount_amount=$6, tax_amount=$7, shipping_cost=$8, total_amount=$9,
version = version + 1, updated_at = NOW()
WHERE id=$1 AND version=$2`,
		orderID, version, adj.DiscountPercent.String(), adj.TaxPercent.String(),
		totals.Subtotal.String(), totals.DiscountAmount.String(), totals.TaxAmount.String(),
		totals.ShippingCost.String(), totals.GrandTotal.String())
	if err != nil {
		return shared.ClassifyPgError("sales: update totals", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrentModification
	}
	return nil
}

func (t *txRepo) UpdateStatus(ctx context.Context, orderID, version int64, status orderflow.Status, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales_orders SET status=$3,
shipped_at = CASE WHEN $3 = 'SHIPPED' THEN $4 ELSE shipped_at END,
delivered_at = CASE WHEN $3 = 'DELIVERED' THEN $4 ELSE delivered_at END,
version = version + 1, updated_at = NOW() WHERE id=$1 AND version=$2`,
		orderID, version, string(status), at)
	if err != nil {
		return shared.ClassifyPgError("sales: update status", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrentModification
	}
	return nil
}

func (t *txRepo) Stock() inventory.MovementWriter {
	return t.stock
}
