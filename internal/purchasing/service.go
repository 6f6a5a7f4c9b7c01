package purchasing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/orderflow"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error)
	GetReceipt(ctx context.Context, id int64) (GoodsReceipt, []ReceiptLine, error)
	ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]OrderListItem, int, error)
}

// Service implements purchase order lifecycle workflows.
type Service struct {
	logger     *slog.Logger
	repo       RepositoryPort
	dispatcher *inventory.Dispatcher
	machine    *orderflow.Machine
	cache      *cache.JSONCache
	audit      *shared.AuditLogger
	approvals  *shared.ApprovalRecorder
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewService wires Service dependencies.
func NewService(
	logger *slog.Logger,
	repo RepositoryPort,
	dispatcher *inventory.Dispatcher,
	cacheClient *cache.JSONCache,
	audit *shared.AuditLogger,
	approvals *shared.ApprovalRecorder,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		logger:     logger,
		repo:       repo,
		dispatcher: dispatcher,
		machine:    orderflow.PurchaseMachine(),
		cache:      cacheClient,
		audit:      audit,
		approvals:  approvals,
		metrics:    metrics,
		now:        time.Now,
	}
}

// CreateOrderInput carries a new purchase order.
type CreateOrderInput struct {
	SupplierID   int64
	OrderDate    time.Time
	ExpectedDate time.Time
	Lines        []orderflow.LineInput
	Adjustments  orderflow.Adjustments
	Notes        string
	Terms        string
}

// CreateReceiptInput carries a new goods receipt against an approved order.
type CreateReceiptInput struct {
	OrderID    int64
	ReceivedAt time.Time
	Notes      string
	Lines      []ReceiptLineInput
}

// ReceiptLineInput is one received line. A zero unit cost falls back to the
// order line price.
type ReceiptLineInput struct {
	OrderLineID int64
	Quantity    int64
	UnitCost    decimal.Decimal
}

// CreateOrder persists a new DRAFT order with derived totals.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (OrderDetail, error) {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return OrderDetail{}, shared.ErrActorRequired
	}
	if input.SupplierID <= 0 {
		return OrderDetail{}, fmt.Errorf("%w: supplier required", ErrValidation)
	}
	if len(input.Lines) == 0 {
		return OrderDetail{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	totals, err := orderflow.ComputeTotals(input.Lines, input.Adjustments)
	if err != nil {
		return OrderDetail{}, err
	}
	orderDate := input.OrderDate
	if orderDate.IsZero() {
		orderDate = s.now()
	}

	var orderID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, "PO", orderflow.PurchasePeriod(orderDate))
		if err != nil {
			return err
		}
		po := PurchaseOrder{
			Number:          orderflow.FormatPurchaseNumber(orderDate, seq),
			SupplierID:      input.SupplierID,
			CreatedBy:       actorID,
			OrderDate:       orderDate,
			ExpectedDate:    input.ExpectedDate,
			Status:          orderflow.StatusDraft,
			DiscountPercent: input.Adjustments.DiscountPercent,
			TaxPercent:      input.Adjustments.TaxPercent,
			Subtotal:        totals.Subtotal,
			DiscountAmount:  totals.DiscountAmount,
			TaxAmount:       totals.TaxAmount,
			ShippingCost:    totals.ShippingCost,
			TotalAmount:     totals.GrandTotal,
			Notes:           input.Notes,
			Terms:           input.Terms,
		}
		orderID, err = tx.CreateOrder(ctx, po)
		if err != nil {
			return err
		}
		for _, l := range input.Lines {
			line := OrderLine{
				OrderID:        orderID,
				ProductID:      l.ProductID,
				Quantity:       l.Quantity,
				UnitPrice:      l.UnitPrice,
				DiscountAmount: l.DiscountAmount,
				LineTotal:      orderflow.LineTotal(l).Round(2),
				Notes:          l.Notes,
			}
			if err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return OrderDetail{}, err
	}

	s.recordAudit(ctx, actorID, "po.create", orderID, nil)
	s.invalidateCache(ctx)
	po, lines, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return OrderDetail{}, err
	}
	return OrderDetail{Order: po, Lines: lines}, nil
}

// GetOrder returns order detail, served from cache when warm.
func (s *Service) GetOrder(ctx context.Context, id int64) (OrderDetail, error) {
	if s.cache == nil {
		return s.loadOrder(ctx, id)
	}
	key, err := s.cache.BuildKey(ctx, "po", strconv.FormatInt(id, 10))
	if err != nil {
		s.logger.Warn("purchase order cache unavailable", slog.Any("error", err))
		return s.loadOrder(ctx, id)
	}
	var detail OrderDetail
	err = s.cache.FetchJSON(ctx, key, &detail, func(ctx context.Context) (any, error) {
		return s.loadOrder(ctx, id)
	})
	if err != nil {
		return OrderDetail{}, err
	}
	return detail, nil
}

func (s *Service) loadOrder(ctx context.Context, id int64) (OrderDetail, error) {
	po, lines, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return OrderDetail{}, err
	}
	return OrderDetail{Order: po, Lines: lines}, nil
}

// ListOrders returns a page of orders plus the unpaged total.
func (s *Service) ListOrders(ctx context.Context, page, perPage int, filters ListFilters) ([]OrderListItem, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 20
	}
	return s.repo.ListOrders(ctx, perPage, (page-1)*perPage, filters)
}

// UpdateStatus moves the order through its lifecycle. Requesting the current
// status is a no-op success; everything else is validated by the machine.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, requested orderflow.Status, notes string) (PurchaseOrder, error) {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return PurchaseOrder{}, shared.ErrActorRequired
	}
	po, _, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if err := s.machine.CanTransition(po.Status, requested); err != nil {
		return PurchaseOrder{}, err
	}
	if requested == po.Status {
		return po, nil
	}

	approvedAt := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateStatus(ctx, orderID, po.Version, requested, notes); err != nil {
			return err
		}
		if requested == orderflow.StatusApproved {
			return tx.SetApproval(ctx, orderID, actorID, approvedAt)
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}

	switch requested {
	case orderflow.StatusSent:
		s.recordSubmit(ctx, orderID, actorID, notes)
	case orderflow.StatusApproved:
		s.recordApproval(ctx, orderID, actorID, shared.ApprovalApprove, notes)
	}
	s.metrics.ObserveTransition("purchase", string(requested))
	s.recordAudit(ctx, actorID, "po.status", orderID, map[string]any{
		"from": string(po.Status),
		"to":   string(requested),
	})
	s.invalidateCache(ctx)

	updated, _, err := s.repo.GetOrder(ctx, orderID)
	return updated, err
}

// ReplaceItems swaps the order's line set atomically and rewrites the header
// totals. An empty payload leaves the order untouched.
func (s *Service) ReplaceItems(ctx context.Context, orderID, version int64, lines []orderflow.LineInput, adj orderflow.Adjustments) (OrderDetail, error) {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return OrderDetail{}, shared.ErrActorRequired
	}
	po, stored, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return OrderDetail{}, err
	}
	if len(lines) == 0 {
		return OrderDetail{Order: po, Lines: stored}, nil
	}
	if s.machine.IsTerminal(po.Status) {
		return OrderDetail{}, fmt.Errorf("%w: order %s no longer accepts item changes", ErrValidation, po.Status)
	}
	if version == 0 {
		version = po.Version
	}
	totals, err := orderflow.ComputeTotals(lines, adj)
	if err != nil {
		return OrderDetail{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteLines(ctx, orderID); err != nil {
			return err
		}
		for _, l := range lines {
			line := OrderLine{
				OrderID:        orderID,
				ProductID:      l.ProductID,
				Quantity:       l.Quantity,
				UnitPrice:      l.UnitPrice,
				DiscountAmount: l.DiscountAmount,
				LineTotal:      orderflow.LineTotal(l).Round(2),
				Notes:          l.Notes,
			}
			if err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
		}
		return tx.UpdateHeaderTotals(ctx, orderID, version, adj, totals)
	})
	if err != nil {
		return OrderDetail{}, err
	}

	s.recordAudit(ctx, actorID, "po.items", orderID, map[string]any{"lines": len(lines)})
	s.invalidateCache(ctx)
	return s.loadOrder(ctx, orderID)
}

// CreateReceipt registers a DRAFT goods receipt against an approved order.
func (s *Service) CreateReceipt(ctx context.Context, input CreateReceiptInput) (GoodsReceipt, []ReceiptLine, error) {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return GoodsReceipt{}, nil, shared.ErrActorRequired
	}
	po, orderLines, err := s.repo.GetOrder(ctx, input.OrderID)
	if err != nil {
		return GoodsReceipt{}, nil, err
	}
	if po.Status != orderflow.StatusApproved {
		return GoodsReceipt{}, nil, fmt.Errorf("%w: order must be APPROVED to receive goods, currently %s", ErrValidation, po.Status)
	}
	if len(input.Lines) == 0 {
		return GoodsReceipt{}, nil, fmt.Errorf("%w: at least one receipt line required", ErrValidation)
	}
	byLineID := make(map[int64]OrderLine, len(orderLines))
	for _, l := range orderLines {
		byLineID[l.ID] = l
	}
	for _, rl := range input.Lines {
		ol, ok := byLineID[rl.OrderLineID]
		if !ok {
			return GoodsReceipt{}, nil, fmt.Errorf("%w: order line %d does not belong to order", ErrValidation, rl.OrderLineID)
		}
		if rl.Quantity <= 0 {
			return GoodsReceipt{}, nil, fmt.Errorf("%w: received quantity must be positive", ErrValidation)
		}
		if rl.Quantity > ol.Quantity {
			return GoodsReceipt{}, nil, fmt.Errorf("%w: received quantity exceeds ordered quantity for line %d", ErrValidation, rl.OrderLineID)
		}
	}
	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}

	var receiptID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, "GRN", "ALL")
		if err != nil {
			return err
		}
		grn := GoodsReceipt{
			Number:     orderflow.FormatReceiptNumber(seq),
			OrderID:    po.ID,
			SupplierID: po.SupplierID,
			Status:     ReceiptStatusDraft,
			ReceivedAt: receivedAt,
			Notes:      input.Notes,
			CreatedBy:  actorID,
		}
		receiptID, err = tx.CreateReceipt(ctx, grn)
		if err != nil {
			return err
		}
		for _, rl := range input.Lines {
			ol := byLineID[rl.OrderLineID]
			cost := rl.UnitCost
			if cost.IsZero() {
				cost = ol.UnitPrice
			}
			line := ReceiptLine{
				ReceiptID:   receiptID,
				OrderLineID: rl.OrderLineID,
				ProductID:   ol.ProductID,
				Quantity:    rl.Quantity,
				UnitCost:    cost,
			}
			if err := tx.InsertReceiptLine(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return GoodsReceipt{}, nil, err
	}

	s.recordAudit(ctx, actorID, "grn.create", receiptID, map[string]any{"order_id": po.ID})
	return s.repo.GetReceipt(ctx, receiptID)
}

// CompleteReceipt finalises a receipt: it flips the receipt to COMPLETED,
// writes the inbound stock movements, and completes the order once every
// ordered quantity has arrived. All of it commits in one transaction.
// Completing an already completed receipt is a no-op.
func (s *Service) CompleteReceipt(ctx context.Context, receiptID int64) error {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return shared.ErrActorRequired
	}
	grn, receiptLines, err := s.repo.GetReceipt(ctx, receiptID)
	if err != nil {
		return err
	}
	switch grn.Status {
	case ReceiptStatusCompleted:
		return nil
	case ReceiptStatusCancelled:
		return fmt.Errorf("%w: receipt %s is cancelled", ErrValidation, grn.Number)
	}
	po, orderLines, err := s.repo.GetOrder(ctx, grn.OrderID)
	if err != nil {
		return err
	}

	movements := make([]inventory.MovementInput, 0, len(receiptLines))
	for _, rl := range receiptLines {
		movements = append(movements, inventory.MovementInput{
			ProductID: rl.ProductID,
			Quantity:  rl.Quantity,
			UnitCost:  rl.UnitCost,
			Note:      grn.Number,
		})
	}

	// The key is claimed inside the transaction: a rollback releases it, and
	// a concurrent completion of the same receipt loses the claim and backs
	// off as a no-op.
	var applied int
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.ClaimIdempotencyKey(ctx, "RCPT:"+grn.Number, "purchasing"); err != nil {
			return err
		}
		if err := tx.UpdateReceiptStatus(ctx, receiptID, ReceiptStatusDraft, ReceiptStatusCompleted); err != nil {
			return err
		}
		applied, err = s.dispatcher.ApplyInbound(ctx, tx.Stock(), inventory.RefReceipt, grn.ID, actorID, movements)
		if err != nil {
			return err
		}
		received, err := tx.ReceivedQtyByProduct(ctx, grn.OrderID)
		if err != nil {
			return err
		}
		if fullyReceived(orderLines, received) {
			if err := s.machine.CanTransition(po.Status, orderflow.StatusCompleted); err != nil {
				return err
			}
			return tx.UpdateStatus(ctx, grn.OrderID, po.Version, orderflow.StatusCompleted, "")
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return nil
		}
		return err
	}

	s.metrics.ObserveMovements(string(inventory.DirectionIn), applied)
	s.recordAudit(ctx, actorID, "grn.complete", receiptID, map[string]any{"order_id": grn.OrderID})
	s.invalidateCache(ctx)
	return nil
}

// Approvals returns the approval trail for an order.
func (s *Service) Approvals(ctx context.Context, orderID int64) ([]shared.ApprovalLog, error) {
	if s.approvals == nil {
		return nil, nil
	}
	return s.approvals.List(ctx, "purchasing", orderRef(orderID))
}

// fullyReceived reports whether completed receipts cover every ordered line.
func fullyReceived(orderLines []OrderLine, received map[int64]int64) bool {
	wanted := make(map[int64]int64, len(orderLines))
	for _, l := range orderLines {
		wanted[l.ProductID] += l.Quantity
	}
	for productID, qty := range wanted {
		if received[productID] < qty {
			return false
		}
	}
	return true
}

func orderRef(orderID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("purchase-order:"+strconv.FormatInt(orderID, 10)))
}

func (s *Service) recordSubmit(ctx context.Context, orderID, actorID int64, note string) {
	if s.approvals == nil {
		return
	}
	if err := s.approvals.EnsureSubmit(ctx, "purchasing", orderRef(orderID), actorID, note); err != nil {
		s.logger.Error("record submit", slog.Int64("order_id", orderID), slog.Any("error", err))
	}
}

func (s *Service) recordApproval(ctx context.Context, orderID, actorID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "purchasing",
		RefID:   orderRef(orderID),
		ActorID: actorID,
		Action:  action,
		Note:    note,
		At:      s.now(),
	})
	if err != nil {
		s.logger.Error("record approval", slog.Int64("order_id", orderID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchasing",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Error("record audit log", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate purchase order cache", slog.Any("error", err))
	}
}
