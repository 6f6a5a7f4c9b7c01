package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction enumerates stock movement directions.
type Direction string

const (
	// DirectionIn represents an inbound movement.
	DirectionIn Direction = "IN"
	// DirectionOut represents an outbound movement.
	DirectionOut Direction = "OUT"
)

// RefType identifies the originating document kind of a movement.
type RefType string

const (
	// RefReceipt marks movements produced by goods receipt completion.
	RefReceipt RefType = "RECEIPT"
	// RefSalesOrder marks movements produced by sale fulfillment.
	RefSalesOrder RefType = "SALES_ORDER"
	// RefAdjustment marks manual corrections. Corrections are new offsetting
	// movements; existing movements are never edited.
	RefAdjustment RefType = "ADJUSTMENT"
)

// StockMovement is an append-only ledger entry. It is the only authorised
// mutator of a product's stock level.
type StockMovement struct {
	ID        int64
	ProductID int64
	Direction Direction
	Quantity  int64
	UnitCost  decimal.Decimal
	RefType   RefType
	RefID     int64
	ActorID   int64
	Note      string
	CreatedAt time.Time
}

// StockLevel summarises on-hand quantity per product.
type StockLevel struct {
	ProductID int64
	Quantity  int64
	UpdatedAt time.Time
}

// MovementFilter narrows ledger queries.
type MovementFilter struct {
	ProductID int64
	RefType   RefType
	RefID     int64
	Limit     int
}

// InsufficientStockError reports a sale that would drive stock negative
// under the strict policy.
type InsufficientStockError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: product %d short by %d (requested %d, available %d)",
		e.ProductID, e.Shortfall(), e.Requested, e.Available)
}

// Shortfall is the quantity missing to satisfy the request.
func (e *InsufficientStockError) Shortfall() int64 {
	return e.Requested - e.Available
}

// ErrInvalidQuantity indicates a non-positive movement quantity.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
