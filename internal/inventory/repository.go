package inventory

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository provides PostgreSQL backed reads over the stock ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetStockLevel returns the on-hand quantity for a product. Products with no
// movements yet report zero.
func (r *Repository) GetStockLevel(ctx context.Context, productID int64) (StockLevel, error) {
	level := StockLevel{ProductID: productID}
	err := r.pool.QueryRow(ctx, `SELECT product_id, qty, updated_at FROM product_stock WHERE product_id=$1`, productID).
		Scan(&level.ProductID, &level.Quantity, &level.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return StockLevel{ProductID: productID}, nil
		}
		return StockLevel{}, shared.ClassifyPgError("inventory: get stock level", err)
	}
	return level, nil
}

// ListMovements returns ledger entries, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	query := `SELECT id, product_id, direction, qty, unit_cost, ref_type, ref_id, actor_id, note, created_at
FROM stock_movements WHERE 1=1`
	args := []any{}
	argNum := 1
	if filter.ProductID > 0 {
		query += ` AND product_id = $` + itoa(argNum)
		args = append(args, filter.ProductID)
		argNum++
	}
	if filter.RefType != "" {
		query += ` AND ref_type = $` + itoa(argNum)
		args = append(args, string(filter.RefType))
		argNum++
	}
	if filter.RefID > 0 {
		query += ` AND ref_id = $` + itoa(argNum)
		args = append(args, filter.RefID)
		argNum++
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY id DESC LIMIT $` + itoa(argNum)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.ClassifyPgError("inventory: list movements", err)
	}
	defer rows.Close()
	var movements []StockMovement
	for rows.Next() {
		var m StockMovement
		var direction, refType string
		if err := rows.Scan(&m.ID, &m.ProductID, &direction, &m.Quantity, &m.UnitCost, &refType, &m.RefID, &m.ActorID, &m.Note, &m.CreatedAt); err != nil {
			return nil, shared.ClassifyPgError("inventory: scan movement", err)
		}
		m.Direction = Direction(direction)
		m.RefType = RefType(refType)
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.ClassifyPgError("inventory: list movements", err)
	}
	return movements, nil
}

// TxWriter implements MovementWriter over a caller-owned transaction.
type TxWriter struct {
	tx pgx.Tx
}

// NewTxWriter wraps a transaction for dispatcher use.
func NewTxWriter(tx pgx.Tx) *TxWriter {
	return &TxWriter{tx: tx}
}

// MovementsExist reports whether the document was dispatched before.
func (w *TxWriter) MovementsExist(ctx context.Context, refType RefType, refID int64) (bool, error) {
	var exists bool
	err := w.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_movements WHERE ref_type=$1 AND ref_id=$2)`,
		string(refType), refID).Scan(&exists)
	if err != nil {
		return false, shared.ClassifyPgError("inventory: movements exist", err)
	}
	return exists, nil
}

// InsertMovement appends a ledger entry.
func (w *TxWriter) InsertMovement(ctx context.Context, m StockMovement) (int64, error) {
	var id int64
	err := w.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, direction, qty, unit_cost, ref_type, ref_id, actor_id, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		m.ProductID, string(m.Direction), m.Quantity, m.UnitCost.String(), string(m.RefType), m.RefID, m.ActorID, m.Note).Scan(&id)
	if err != nil {
		return 0, shared.ClassifyPgError("inventory: insert movement", err)
	}
	return id, nil
}

// IncreaseStock adds to the counter with a single atomic upsert.
func (w *TxWriter) IncreaseStock(ctx context.Context, productID, qty int64) error {
	_, err := w.tx.Exec(ctx, `INSERT INTO product_stock (product_id, qty, updated_at) VALUES ($1,$2,NOW())
ON CONFLICT (product_id) DO UPDATE SET qty = product_stock.qty + EXCLUDED.qty, updated_at = NOW()`, productID, qty)
	if err != nil {
		return shared.ClassifyPgError("inventory: increase stock", err)
	}
	return nil
}

// DecreaseStock subtracts from the counter atomically. The backorder policy
// upserts like IncreaseStock does, so a product with no stock row yet simply
// goes negative. Under strict policy the update is guarded and only touches
// the row when enough stock exists; a missing row counts as zero on hand.
func (w *TxWriter) DecreaseStock(ctx context.Context, productID, qty int64, allowNegative bool) error {
	if allowNegative {
		_, err := w.tx.Exec(ctx, `INSERT INTO product_stock (product_id, qty, updated_at) VALUES ($1,-$2,NOW())
ON CONFLICT (product_id) DO UPDATE SET qty = product_stock.qty + EXCLUDED.qty, updated_at = NOW()`, productID, qty)
		if err != nil {
			return shared.ClassifyPgError("inventory: decrease stock", err)
		}
		return nil
	}
	tag, err := w.tx.Exec(ctx, `UPDATE product_stock SET qty = qty - $2, updated_at = NOW()
WHERE product_id = $1 AND qty >= $2`, productID, qty)
	if err != nil {
		return shared.ClassifyPgError("inventory: decrease stock", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var available int64
	err = w.tx.QueryRow(ctx, `SELECT qty FROM product_stock WHERE product_id=$1`, productID).Scan(&available)
	if err != nil && err != pgx.ErrNoRows {
		return shared.ClassifyPgError("inventory: read stock", err)
	}
	return &InsufficientStockError{ProductID: productID, Requested: qty, Available: available}
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
