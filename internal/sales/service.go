package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/orderflow"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (SalesOrder, []OrderLine, error)
	ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]OrderListItem, int, error)
}

// Service implements sales order lifecycle workflows.
type Service struct {
	logger     *slog.Logger
	repo       RepositoryPort
	dispatcher *inventory.Dispatcher
	machine    *orderflow.Machine
	cache      *cache.JSONCache
	audit      *shared.AuditLogger
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
	metrics *observability.Metrics,
) *Service {
	return &Service{
		logger:     logger,
		repo:       repo,
		dispatcher: dispatcher,
		machine:    orderflow.SalesMachine(),
		cache:      cacheClient,
		audit:      audit,
		metrics:    metrics,
		now:        time.Now,
	}
}

// CreateOrderInput carries a new sales order.
type CreateOrderInput struct {
	CustomerID      int64
	OrderDate       time.Time
	Lines           []orderflow.LineInput
	Adjustments     orderflow.Adjustments
	ShippingAddress string
	Notes           string
}

// CreateOrder persists a new DRAFT order with derived totals.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (OrderDetail, error) {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return OrderDetail{}, shared.ErrActorRequired
	}
	if input.CustomerID <= 0 {
		return OrderDetail{}, fmt.Errorf("%w: customer required", ErrValidation)
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
		seq, err := tx.NextSequence(ctx, "SO", orderflow.SalesPeriod(orderDate))
		if err != nil {
			return err
		}
		so := SalesOrder{
			Number:          orderflow.FormatSalesNumber(orderDate, seq),
			CustomerID:      input.CustomerID,
			CreatedBy:       actorID,
			OrderDate:       orderDate,
			Status:          orderflow.StatusDraft,
			DiscountPercent: input.Adjustments.DiscountPercent,
			TaxPercent:      input.Adjustments.TaxPercent,
			Subtotal:        totals.Subtotal,
			DiscountAmount:  totals.DiscountAmount,
			TaxAmount:       totals.TaxAmount,
			ShippingCost:    totals.ShippingCost,
			TotalAmount:     totals.GrandTotal,
			ShippingAddress: input.ShippingAddress,
			Notes:           input.Notes,
		}
		orderID, err = tx.CreateOrder(ctx, so)
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

	s.recordAudit(ctx, actorID, "so.create", orderID, nil)
	s.invalidateCache(ctx)
	return s.loadOrder(ctx, orderID)
}

// GetOrder returns order detail, served from cache when warm.
func (s *Service) GetOrder(ctx context.Context, id int64) (OrderDetail, error) {
	if s.cache == nil {
		return s.loadOrder(ctx, id)
	}
	key, err := s.cache.BuildKey(ctx, "so", strconv.FormatInt(id, 10))
	if err != nil {
		s.logger.Warn("sales order cache unavailable", slog.Any("error", err))
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
	so, lines, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return OrderDetail{}, err
	}
	return OrderDetail{Order: so, Lines: lines}, nil
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

// UpdateStatus moves the order through its lifecycle. The move to PROCESSING
// reserves stock: the outbound movements commit in the same transaction as the
// status write, and a shortfall under the strict policy aborts both.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, requested orderflow.Status, notes string) (SalesOrder, error) {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return SalesOrder{}, shared.ErrActorRequired
	}
	so, lines, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return SalesOrder{}, err
	}
	if err := s.machine.CanTransition(so.Status, requested); err != nil {
		return SalesOrder{}, err
	}
	if requested == so.Status {
		return so, nil
	}

	at := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateStatus(ctx, orderID, so.Version, requested, at); err != nil {
			return err
		}
		if requested != orderflow.StatusProcessing {
			return nil
		}
		movements := make([]inventory.MovementInput, 0, len(lines))
		for _, l := range lines {
			movements = append(movements, inventory.MovementInput{
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				UnitCost:  l.UnitPrice,
				Note:      so.Number,
			})
		}
		applied, err := s.dispatcher.ApplyOutbound(ctx, tx.Stock(), inventory.RefSalesOrder, so.ID, actorID, movements)
		if err != nil {
			return err
		}
		s.metrics.ObserveMovements(string(inventory.DirectionOut), applied)
		return nil
	})
	if err != nil {
		return SalesOrder{}, err
	}

	s.metrics.ObserveTransition("sales", string(requested))
	s.recordAudit(ctx, actorID, "so.status", orderID, map[string]any{
		"from": string(so.Status),
		"to":   string(requested),
	})
	s.invalidateCache(ctx)

	updated, _, err := s.repo.GetOrder(ctx, orderID)
	return updated, err
}

// ReplaceItems swaps the order's line set atomically and rewrites the header
// totals. An empty payload leaves the order untouched. Once stock has been
// reserved the line set is frozen.
func (s *Service) ReplaceItems(ctx context.Context, orderID, version int64, lines []orderflow.LineInput, adj orderflow.Adjustments) (OrderDetail, error) {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return OrderDetail{}, shared.ErrActorRequired
	}
	so, stored, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return OrderDetail{}, err
	}
	if len(lines) == 0 {
		return OrderDetail{Order: so, Lines: stored}, nil
	}
	if so.Status != orderflow.StatusDraft && so.Status != orderflow.StatusConfirmed {
		return OrderDetail{}, fmt.Errorf("%w: order %s no longer accepts item changes", ErrValidation, so.Status)
	}
	if version == 0 {
		version = so.Version
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

	s.recordAudit(ctx, actorID, "so.items", orderID, map[string]any{"lines": len(lines)})
	s.invalidateCache(ctx)
	return s.loadOrder(ctx, orderID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sales",
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
		s.logger.Warn("invalidate sales order cache", slog.Any("error", err))
	}
}
