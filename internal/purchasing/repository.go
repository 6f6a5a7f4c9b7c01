package purchasing

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

// TxRepository exposes transactional operations. Status and totals updates
// are version guarded; a stale version surfaces as ErrConcurrentModification.
type TxRepository interface {
	NextSequence(ctx context.Context, family, period string) (int64, error)
	CreateOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertLine(ctx context.Context, line OrderLine) error
	DeleteLines(ctx context.Context, orderID int64) error
	UpdateHeaderTotals(ctx context.Context, orderID, version int64, adj orderflow.Adjustments, totals orderflow.Totals) error
	UpdateStatus(ctx context.Context, orderID, version int64, status orderflow.Status, notes string) error
	SetApproval(ctx context.Context, orderID, approvedBy int64, approvedAt time.Time) error
	CreateReceipt(ctx context.Context, grn GoodsReceipt) (int64, error)
	InsertReceiptLine(ctx context.Context, line ReceiptLine) error
	UpdateReceiptStatus(ctx context.Context, receiptID int64, from, to ReceiptStatus) error
	ReceivedQtyByProduct(ctx context.Context, orderID int64) (map[int64]int64, error)
	ClaimIdempotencyKey(ctx context.Context, key, module string) error
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

// GetOrder returns purchase order and lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error) {
	var po PurchaseOrder
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, number, supplier_id, created_by, order_date, COALESCE(expected_date, 'epoch'::timestamptz),
status, discount_pct, tax_pct, subtotal, discount_amount, tax_amount, shipping_cost, total_amount,
notes, terms, version, COALESCE(approved_by, 0), COALESCE(approved_at, 'epoch'::timestamptz), created_at, updated_at
FROM purchase_orders WHERE id=$1`, id).Scan(
		&po.ID, &po.Number, &po.SupplierID, &po.CreatedBy, &po.OrderDate, &po.ExpectedDate,
		&status, &po.DiscountPercent, &po.TaxPercent, &po.Subtotal, &po.DiscountAmount, &po.TaxAmount, &po.ShippingCost, &po.TotalAmount,
		&po.Notes, &po.Terms, &po.Version, &po.ApprovedBy, &po.ApprovedAt, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, nil, ErrNotFound
		}
		return PurchaseOrder{}, nil, shared.ClassifyPgError("purchasing: get order", err)
	}
	po.Status = orderflow.Status(status)

	rows, err := r.pool.Query(ctx, `SELECT id, order_id, product_id, qty, unit_price, discount_amount, line_total, notes
FROM purchase_order_lines WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, nil, shared.ClassifyPgError("purchasing: get order lines", err)
	}
	defer rows.Close()
	var lines []OrderLine
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.DiscountAmount, &line.LineTotal, &line.Notes); err != nil {
			return PurchaseOrder{}, nil, shared.ClassifyPgError("purchasing: scan order line", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return PurchaseOrder{}, nil, shared.ClassifyPgError("purchasing: get order lines", err)
	}
	return po, lines, nil
}

// GetReceipt returns goods receipt and lines.
func (r *Repository) GetReceipt(ctx context.Context, id int64) (GoodsReceipt, []ReceiptLine, error) {
	var grn GoodsReceipt
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, number, order_id, supplier_id, status, received_at, notes, created_by, created_at
FROM goods_receipts WHERE id=$1`, id).Scan(
		&grn.ID, &grn.Number, &grn.OrderID, &grn.SupplierID, &status, &grn.ReceivedAt, &grn.Notes, &grn.CreatedBy, &grn.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceipt{}, nil, ErrNotFound
		}
		return GoodsReceipt{}, nil, shared.ClassifyPgError("purchasing: get receipt", err)
	}
	grn.Status = ReceiptStatus(status)

	rows, err := r.pool.Query(ctx, `SELECT id, receipt_id, order_line_id, product_id, qty, unit_cost
FROM goods_receipt_lines WHERE receipt_id=$1 ORDER BY id`, id)
	if err != nil {
		return GoodsReceipt{}, nil, shared.ClassifyPgError("purchasing: get receipt lines", err)
	}
	defer rows.Close()
	var lines []ReceiptLine
	for rows.Next() {
		var line ReceiptLine
		if err := rows.Scan(&line.ID, &line.ReceiptID, &line.OrderLineID, &line.ProductID, &line.Quantity, &line.UnitCost); err != nil {
			return GoodsReceipt{}, nil, shared.ClassifyPgError("purchasing: scan receipt line", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return GoodsReceipt{}, nil, shared.ClassifyPgError("purchasing: get receipt lines", err)
	}
	return grn, lines, nil
}

// ListOrders returns purchase orders with supplier name and total.
func (r *Repository) ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]OrderListItem, int, error) {
	countSQL := `SELECT COUNT(*) FROM purchase_orders p WHERE 1=1`
	args := []any{}
	argNum := 1
	if filters.Status != "" {
		countSQL += ` AND p.status = $` + itoa(argNum)
		args = append(args, filters.Status)
		argNum++
	}
	if filters.SupplierID > 0 {
		countSQL += ` AND p.supplier_id = $` + itoa(argNum)
		args = append(args, filters.SupplierID)
		argNum++
	}
	if filters.Search != "" {
		countSQL += ` AND p.number ILIKE $` + itoa(argNum)
		args = append(args, "%"+filters.Search+"%")
		argNum++
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, shared.ClassifyPgError("purchasing: count orders", err)
	}

	dataSQL := `SELECT p.id, p.number, p.supplier_id, COALESCE(s.name, '') AS supplier_name,
		p.status, p.order_date, COALESCE(p.expected_date, 'epoch'::timestamptz), p.total_amount, p.created_at
	FROM purchase_orders p
	LEFT JOIN suppliers s ON s.id = p.supplier_id
	WHERE 1=1`
	args2 := []any{}
	argNum2 := 1
	if filters.Status != "" {
		dataSQL += ` AND p.status = $` + itoa(argNum2)
		args2 = append(args2, filters.Status)
		argNum2++
	}
	if filters.SupplierID > 0 {
		dataSQL += ` AND p.supplier_id = $` + itoa(argNum2)
		args2 = append(args2, filters.SupplierID)
		argNum2++
	}
	if filters.Search != "" {
		dataSQL += ` AND p.number ILIKE $` + itoa(argNum2)
		args2 = append(args2, "%"+filters.Search+"%")
		argNum2++
	}
	dataSQL += ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir) + ` LIMIT $` + itoa(argNum2) + ` OFFSET $` + itoa(argNum2+1)
	args2 = append(args2, limit, offset)

	rows, err := r.pool.Query(ctx, dataSQL, args2...)
	if err != nil {
		return nil, 0, shared.ClassifyPgError("purchasing: list orders", err)
	}
	defer rows.Close()
	var items []OrderListItem
	for rows.Next() {
		var item OrderListItem
		var status string
		if err := rows.Scan(&item.ID, &item.Number, &item.SupplierID, &item.SupplierName,
			&status, &item.OrderDate, &item.ExpectedDate, &item.TotalAmount, &item.CreatedAt); err != nil {
			return nil, 0, shared.ClassifyPgError("purchasing: scan order", err)
		}
		item.Status = orderflow.Status(status)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, shared.ClassifyPgError("purchasing: list orders", err)
	}
	return items, total, nil
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

// sortOrder returns a safe ORDER BY clause for order list queries.
func sortOrder(sortBy, sortDir string) string {
	dir := "DESC"
	if sortDir == "asc" {
		dir = "ASC"
	}
	switch sortBy {
	case "number":
		return "p.number " + dir
	case "supplier":
		return "supplier_name " + dir
	case "order_date":
		return "p.order_date " + dir
	case "total":
		return "p.total_amount " + dir
	case "status":
		return "p.status " + dir
	default:
		return "p.created_at DESC"
	}
}

func (t *txRepo) NextSequence(ctx context.Context, family, period string) (int64, error) {
	var value int64
	err := t.tx.QueryRow(ctx, `INSERT INTO doc_sequences (family, period, value) VALUES ($1,$2,1)
ON CONFLICT (family, period) DO UPDATE SET value = doc_sequences.value + 1 RETURNING value`, family, period).Scan(&value)
	if err != nil {
		return 0, shared.ClassifyPgError("purchasing: next sequence", err)
	}
	return value, nil
}

func (t *txRepo) CreateOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders
(number, supplier_id, created_by, order_date, expected_date, status, discount_pct, tax_pct,
subtotal, discount_amount, tax_amount, shipping_cost, total_amount, notes, terms, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,1,NOW(),NOW()) RETURNING id`,
		po.Number, po.SupplierID, po.CreatedBy, po.OrderDate, nullTime(po.ExpectedDate), string(po.Status),
		po.DiscountPercent.String(), po.TaxPercent.String(),
		po.Subtotal.String(), po.DiscountAmount.String(), po.TaxAmount.String(), po.ShippingCost.String(), po.TotalAmount.String(),
		po.Notes, po.Terms).Scan(&id)
	if err != nil {
		return 0, shared.ClassifyPgError("purchasing: create order", err)
	}
	return id, nil
}

func (t *txRepo) InsertLine(ctx context.Context, line OrderLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_order_lines (order_id, product_id, qty, unit_price, discount_amount, line_total, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		line.OrderID, line.ProductID, line.Quantity, line.UnitPrice.String(), line.DiscountAmount.String(), line.LineTotal.String(), line.Notes)
	if err != nil {
		return shared.ClassifyPgError("purchasing: insert line", err)
	}
	return nil
}

func (t *txRepo) DeleteLines(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_order_lines WHERE order_id=$1`, orderID)
	if err != nil {
		return shared.ClassifyPgError("purchasing: delete lines", err)
	}
	return nil
}

func (t *txRepo) UpdateHeaderTotals(ctx context.Context, orderID, version int64, adj orderflow.Adjustments, totals orderflow.Totals) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET discount_pct=$3, tax_pct=$4,
subtotal=$5, discount_amount=$6, tax_amount=$7, shipping_cost=$8, total_amount=$9,
version = version + 1, updated_at = NOW()
WHERE id=$1 AND version=$2`,
		orderID, version, adj.DiscountPercent.String(), adj.TaxPercent.String(),
		totals.Subtotal.String(), totals.DiscountAmount.String(), totals.TaxAmount.String(),
		totals.ShippingCost.String(), totals.GrandTotal.String())
	if err != nil {
		return shared.ClassifyPgError("purchasing: update totals", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrentModification
	}
	return nil
}

func (t *txRepo) UpdateStatus(ctx context.Context, orderID, version int64, status orderflow.Status, notes string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status=$3, notes = CASE WHEN $4 <> '' THEN $4 ELSE notes END,
version = version + 1, updated_at = NOW() WHERE id=$1 AND version=$2`,
		orderID, version, string(status), notes)
	if err != nil {
		return shared.ClassifyPgError("purchasing: update status", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrentModification
	}
	return nil
}

func (t *txRepo) SetApproval(ctx context.Context, orderID, approvedBy int64, approvedAt time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET approved_by=$2, approved_at=$3 WHERE id=$1`, orderID, approvedBy, approvedAt)
	if err != nil {
		return shared.ClassifyPgError("purchasing: set approval", err)
	}
	return nil
}

func (t *txRepo) CreateReceipt(ctx context.Context, grn GoodsReceipt) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO goods_receipts (number, order_id, supplier_id, status, received_at, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		grn.Number, grn.OrderID, grn.SupplierID, string(grn.Status), grn.ReceivedAt, grn.Notes, grn.CreatedBy).Scan(&id)
	if err != nil {
		return 0, shared.ClassifyPgError("purchasing: create receipt", err)
	}
	return id, nil
}

func (t *txRepo) InsertReceiptLine(ctx context.Context, line ReceiptLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO goods_receipt_lines (receipt_id, order_line_id, product_id, qty, unit_cost)
VALUES ($1,$2,$3,$4,$5)`, line.ReceiptID, line.OrderLineID, line.ProductID, line.Quantity, line.UnitCost.String())
	if err != nil {
		return shared.ClassifyPgError("purchasing: insert receipt line", err)
	}
	return nil
}

func (t *txRepo) UpdateReceiptStatus(ctx context.Context, receiptID int64, from, to ReceiptStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE goods_receipts SET status=$3 WHERE id=$1 AND status=$2`,
		receiptID, string(from), string(to))
	if err != nil {
		return shared.ClassifyPgError("purchasing: update receipt status", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrentModification
	}
	return nil
}

func (t *txRepo) ReceivedQtyByProduct(ctx context.Context, orderID int64) (map[int64]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT l.product_id, SUM(l.qty) FROM goods_receipt_lines l
JOIN goods_receipts g ON g.id = l.receipt_id
WHERE g.order_id = $1 AND g.status = 'COMPLETED'
GROUP BY l.product_id`, orderID)
	if err != nil {
		return nil, shared.ClassifyPgError("purchasing: received quantities", err)
	}
	defer rows.Close()
	received := make(map[int64]int64)
	for rows.Next() {
		var productID, qty int64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, shared.ClassifyPgError("purchasing: scan received quantity", err)
		}
		received[productID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, shared.ClassifyPgError("purchasing: received quantities", err)
	}
	return received, nil
}

// ClaimIdempotencyKey claims the key inside this transaction, so a rollback
// releases it along with everything else.
func (t *txRepo) ClaimIdempotencyKey(ctx context.Context, key, module string) error {
	return shared.ClaimIdempotencyKey(ctx, t.tx, key, module)
}

func (t *txRepo) Stock() inventory.MovementWriter {
	return t.stock
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
