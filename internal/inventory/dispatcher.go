package inventory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// MovementWriter is the transactional surface the dispatcher writes through.
// Implementations run inside the caller's transaction so the status write
// that triggers a dispatch and the movements it produces commit as one unit.
type MovementWriter interface {
	MovementsExist(ctx context.Context, refType RefType, refID int64) (bool, error)
	InsertMovement(ctx context.Context, m StockMovement) (int64, error)
	IncreaseStock(ctx context.Context, productID, qty int64) error
	DecreaseStock(ctx context.Context, productID, qty int64, allowNegative bool) error
}

// Policy groups deployment-level inventory rules.
type Policy struct {
	// AllowNegative permits sales to drive stock below zero (backorders).
	AllowNegative bool
}

// MovementInput describes one line of a dispatch.
type MovementInput struct {
	ProductID int64
	Quantity  int64
	UnitCost  decimal.Decimal
	Note      string
}

// Dispatcher translates order lifecycle events into stock movements. The
// source document id and type form the idempotency key: re-running a dispatch
// for the same document applies nothing.
type Dispatcher struct {
	policy Policy
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(policy Policy) *Dispatcher {
	return &Dispatcher{policy: policy}
}

// ApplyInbound records one IN movement per received line and increments the
// product stock counters. Returns the number of movements written; zero with
// a nil error means the document was already dispatched.
func (d *Dispatcher) ApplyInbound(ctx context.Context, w MovementWriter, refType RefType, refID, actorID int64, lines []MovementInput) (int, error) {
	return d.apply(ctx, w, DirectionIn, refType, refID, actorID, lines)
}

// ApplyOutbound records one OUT movement per sold line and decrements stock.
// Under the strict policy a shortfall aborts the whole dispatch with
// *InsufficientStockError.
func (d *Dispatcher) ApplyOutbound(ctx context.Context, w MovementWriter, refType RefType, refID, actorID int64, lines []MovementInput) (int, error) {
	return d.apply(ctx, w, DirectionOut, refType, refID, actorID, lines)
}

func (d *Dispatcher) apply(ctx context.Context, w MovementWriter, dir Direction, refType RefType, refID, actorID int64, lines []MovementInput) (int, error) {
	if actorID == 0 {
		return 0, shared.ErrActorRequired
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return 0, ErrInvalidQuantity
		}
	}
	exists, err := w.MovementsExist(ctx, refType, refID)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}
	applied := 0
	for _, line := range lines {
		movement := StockMovement{
			ProductID: line.ProductID,
			Direction: dir,
			Quantity:  line.Quantity,
			UnitCost:  line.UnitCost,
			RefType:   refType,
			RefID:     refID,
			ActorID:   actorID,
			Note:      line.Note,
		}
		if _, err := w.InsertMovement(ctx, movement); err != nil {
			return 0, err
		}
		if dir == DirectionIn {
			err = w.IncreaseStock(ctx, line.ProductID, line.Quantity)
		} else {
			err = w.DecreaseStock(ctx, line.ProductID, line.Quantity, d.policy.AllowNegative)
		}
		if err != nil {
			return 0, err
		}
		applied++
	}
	return applied, nil
}
