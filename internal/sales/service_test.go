package sales

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/orderflow"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type stockWriter struct {
	movements []inventory.StockMovement
	stock     map[int64]int64
	nextID    int64
}

func newStockWriter() *stockWriter {
	return &stockWriter{stock: make(map[int64]int64)}
}

func (w *stockWriter) MovementsExist(ctx context.Context, refType inventory.RefType, refID int64) (bool, error) {
	for _, m := range w.movements {
		if m.RefType == refType && m.RefID == refID {
			return true, nil
		}
	}
	return false, nil
}

func (w *stockWriter) InsertMovement(ctx context.Context, m inventory.StockMovement) (int64, error) {
	w.nextID++
	m.ID = w.nextID
	w.movements = append(w.movements, m)
	return m.ID, nil
}

func (w *stockWriter) IncreaseStock(ctx context.Context, productID, qty int64) error {
	w.stock[productID] += qty
	return nil
}

func (w *stockWriter) DecreaseStock(ctx context.Context, productID, qty int64, allowNegative bool) error {
	available := w.stock[productID]
	if !allowNegative && available < qty {
		return &inventory.InsufficientStockError{ProductID: productID, Requested: qty, Available: available}
	}
	w.stock[productID] = available - qty
	return nil
}

type memRepo struct {
	orders map[int64]SalesOrder
	lines  map[int64][]OrderLine
	seqs   map[string]int64
	stock  *stockWriter

	nextOrderID int64
	nextLineID  int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		orders: make(map[int64]SalesOrder),
		lines:  make(map[int64][]OrderLine),
		seqs:   make(map[string]int64),
		stock:  newStockWriter(),
	}
}

// WithTx snapshots mutable state so a failed callback rolls back like a real
// transaction would.
func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	ordersBefore := make(map[int64]SalesOrder, len(r.orders))
	for k, v := range r.orders {
		ordersBefore[k] = v
	}
	stockBefore := make(map[int64]int64, len(r.stock.stock))
	for k, v := range r.stock.stock {
		stockBefore[k] = v
	}
	movementsBefore := len(r.stock.movements)

	if err := fn(ctx, r); err != nil {
		r.orders = ordersBefore
		r.stock.stock = stockBefore
		r.stock.movements = r.stock.movements[:movementsBefore]
		return err
	}
	return nil
}

func (r *memRepo) GetOrder(ctx context.Context, id int64) (SalesOrder, []OrderLine, error) {
	so, ok := r.orders[id]
	if !ok {
		return SalesOrder{}, nil, ErrNotFound
	}
	return so, append([]OrderLine(nil), r.lines[id]...), nil
}

func (r *memRepo) ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]OrderListItem, int, error) {
	var items []OrderListItem
	for _, so := range r.orders {
		if filters.Status != "" && string(so.Status) != filters.Status {
			continue
		}
		items = append(items, OrderListItem{
			ID:          so.ID,
			Number:      so.Number,
			CustomerID:  so.CustomerID,
			Status:      so.Status,
			OrderDate:   so.OrderDate,
			TotalAmount: so.TotalAmount,
			CreatedAt:   so.CreatedAt,
		})
	}
	total := len(items)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return items[offset:end], total, nil
}

func (r *memRepo) NextSequence(ctx context.Context, family, period string) (int64, error) {
	key := family + ":" + period
	r.seqs[key]++
	return r.seqs[key], nil
}

func (r *memRepo) CreateOrder(ctx context.Context, so SalesOrder) (int64, error) {
	r.nextOrderID++
	so.ID = r.nextOrderID
	so.Version = 1
	so.CreatedAt = time.Now()
	so.UpdatedAt = so.CreatedAt
	r.orders[so.ID] = so
	return so.ID, nil
}

func (r *memRepo) InsertLine(ctx context.Context, line OrderLine) error {
	r.nextLineID++
	line.ID = r.nextLineID
	r.lines[line.OrderID] = append(r.lines[line.OrderID], line)
	return nil
}

func (r *memRepo) DeleteLines(ctx context.Context, orderID int64) error {
	delete(r.lines, orderID)
	return nil
}

func (r *memRepo) UpdateHeaderTotals(ctx context.Context, orderID, version int64, adj orderflow.Adjustments, totals orderflow.Totals) error {
	so, ok := r.orders[orderID]
	if !ok || so.Version != version {
		return shared.ErrConcurrentModification
	}
	so.DiscountPercent = adj.DiscountPercent
	so.TaxPercent = adj.TaxPercent
	so.Subtotal = totals.Subtotal
	so.DiscountAmount = totals.DiscountAmount
	so.TaxAmount = totals.TaxAmount
	so.ShippingCost = totals.ShippingCost
	so.TotalAmount = totals.GrandTotal
	so.Version++
	so.UpdatedAt = time.Now()
	r.orders[orderID] = so
	return nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, orderID, version int64, status orderflow.Status, at time.Time) error {
	so, ok := r.orders[orderID]
	if !ok || so.Version != version {
		return shared.ErrConcurrentModification
	}
	so.Status = status
	if status == orderflow.StatusShipped {
		so.ShippedAt = at
	}
	if status == orderflow.StatusDelivered {
		so.DeliveredAt = at
	}
	so.Version++
	so.UpdatedAt = time.Now()
	r.orders[orderID] = so
	return nil
}

func (r *memRepo) Stock() inventory.MovementWriter {
	return r.stock
}

func newTestService(repo *memRepo, policy inventory.Policy) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, repo, inventory.NewDispatcher(policy), nil, nil, nil)
}

func actorCtx() context.Context {
	return shared.ContextWithActor(context.Background(), 7)
}

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func confirmedOrder(t *testing.T, svc *Service) OrderDetail {
	t.Helper()
	detail, err := svc.CreateOrder(actorCtx(), CreateOrderInput{
		CustomerID: 4,
		Lines: []orderflow.LineInput{
			{ProductID: 11, Quantity: 6, UnitPrice: dec("15000")},
			{ProductID: 12, Quantity: 2, UnitPrice: dec("80000")},
		},
		Adjustments: orderflow.Adjustments{TaxPercent: dec("10")},
	})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(actorCtx(), detail.Order.ID, orderflow.StatusConfirmed, "")
	require.NoError(t, err)
	fresh, err := svc.GetOrder(actorCtx(), detail.Order.ID)
	require.NoError(t, err)
	return fresh
}

func TestCreateOrderAssignsYearScopedNumber(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, inventory.Policy{})

	first, err := svc.CreateOrder(actorCtx(), CreateOrderInput{
		CustomerID: 4,
		Lines:      []orderflow.LineInput{{ProductID: 11, Quantity: 1, UnitPrice: dec("100")}},
	})
	require.NoError(t, err)
	second, err := svc.CreateOrder(actorCtx(), CreateOrderInput{
		CustomerID: 4,
		Lines:      []orderflow.LineInput{{ProductID: 11, Quantity: 1, UnitPrice: dec("100")}},
	})
	require.NoError(t, err)

	year := time.Now().Year()
	require.Equal(t, orderflow.FormatSalesNumber(time.Now(), 1), first.Order.Number)
	require.Equal(t, orderflow.FormatSalesNumber(time.Now(), 2), second.Order.Number)
	require.Contains(t, first.Order.Number, "SO-")
	require.Contains(t, first.Order.Number, time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006"))
}

func TestProcessingReservesStock(t *testing.T) {
	repo := newMemRepo()
	repo.stock.stock[11] = 10
	repo.stock.stock[12] = 5
	svc := newTestService(repo, inventory.Policy{})
	detail := confirmedOrder(t, svc)

	so, err := svc.UpdateStatus(actorCtx(), detail.Order.ID, orderflow.StatusProcessing, "")
	require.NoError(t, err)
	require.Equal(t, orderflow.StatusProcessing, so.Status)
	require.EqualValues(t, 4, repo.stock.stock[11])
	require.EqualValues(t, 3, repo.stock.stock[12])
	require.Len(t, repo.stock.movements, 2)
	require.Equal(t, inventory.DirectionOut, repo.stock.movements[0].Direction)
	require.Equal(t, inventory.RefSalesOrder, repo.stock.movements[0].RefType)
}

func TestProcessingShortfallAbortsTransition(t *testing.T) {
	repo := newMemRepo()
	repo.stock.stock[11] = 4
	repo.stock.stock[12] = 5
	svc := newTestService(repo, inventory.Policy{})
	detail := confirmedOrder(t, svc)

	_, err := svc.UpdateStatus(actorCtx(), detail.Order.ID, orderflow.StatusProcessing, "")
	var short *inventory.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.EqualValues(t, 11, short.ProductID)
	require.EqualValues(t, 2, short.Shortfall())

	so, _, err := repo.GetOrder(context.Background(), detail.Order.ID)
	require.NoError(t, err)
	require.Equal(t, orderflow.StatusConfirmed, so.Status)
	require.Empty(t, repo.stock.movements)
	require.EqualValues(t, 4, repo.stock.stock[11])
}

func TestProcessingBackorderPolicyAllowsNegative(t *testing.T) {
	repo := newMemRepo()
	repo.stock.stock[11] = 4
	repo.stock.stock[12] = 5
	svc := newTestService(repo, inventory.Policy{AllowNegative: true})
	detail := confirmedOrder(t, svc)

	so, err := svc.UpdateStatus(actorCtx(), detail.Order.ID, orderflow.StatusProcessing, "")
	require.NoError(t, err)
	require.Equal(t, orderflow.StatusProcessing, so.Status)
	require.EqualValues(t, -2, repo.stock.stock[11])
}

func TestShippedAndDeliveredTimestamps(t *testing.T) {
	repo := newMemRepo()
	repo.stock.stock[11] = 10
	repo.stock.stock[12] = 5
	svc := newTestService(repo, inventory.Policy{})
	detail := confirmedOrder(t, svc)

	_, err := svc.UpdateStatus(actorCtx(), detail.Order.ID, orderflow.StatusProcessing, "")
	require.NoError(t, err)
	so, err := svc.UpdateStatus(actorCtx(), detail.Order.ID, orderflow.StatusShipped, "")
	require.NoError(t, err)
	require.False(t, so.ShippedAt.IsZero())
	so, err = svc.UpdateStatus(actorCtx(), detail.Order.ID, orderflow.StatusDelivered, "")
	require.NoError(t, err)
	require.False(t, so.DeliveredAt.IsZero())

	_, err = svc.UpdateStatus(actorCtx(), detail.Order.ID, orderflow.StatusCancelled, "")
	var invalid *orderflow.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestCancelBeforeDispatchLeavesStockAlone(t *testing.T) {
	repo := newMemRepo()
	repo.stock.stock[11] = 10
	svc := newTestService(repo, inventory.Policy{})
	detail := confirmedOrder(t, svc)

	so, err := svc.UpdateStatus(actorCtx(), detail.Order.ID, orderflow.StatusCancelled, "customer withdrew")
	require.NoError(t, err)
	require.Equal(t, orderflow.StatusCancelled, so.Status)
	require.Empty(t, repo.stock.movements)
	require.EqualValues(t, 10, repo.stock.stock[11])
}

func TestReplaceItemsFrozenAfterDispatch(t *testing.T) {
	repo := newMemRepo()
	repo.stock.stock[11] = 10
	repo.stock.stock[12] = 5
	svc := newTestService(repo, inventory.Policy{})
	detail := confirmedOrder(t, svc)

	_, err := svc.UpdateStatus(actorCtx(), detail.Order.ID, orderflow.StatusProcessing, "")
	require.NoError(t, err)

	_, err = svc.ReplaceItems(actorCtx(), detail.Order.ID, 0, []orderflow.LineInput{
		{ProductID: 11, Quantity: 1, UnitPrice: dec("100")},
	}, orderflow.Adjustments{})
	require.ErrorIs(t, err, ErrValidation)
}

func TestReplaceItemsWhileConfirmed(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, inventory.Policy{})
	detail := confirmedOrder(t, svc)

	after, err := svc.ReplaceItems(actorCtx(), detail.Order.ID, detail.Order.Version, []orderflow.LineInput{
		{ProductID: 11, Quantity: 3, UnitPrice: dec("1000")},
	}, orderflow.Adjustments{})
	require.NoError(t, err)
	require.True(t, after.Order.TotalAmount.Equal(dec("3000")))
	require.Len(t, after.Lines, 1)
}

func TestUpdateStatusRequiresActor(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, inventory.Policy{})
	detail := confirmedOrder(t, svc)

	_, err := svc.UpdateStatus(context.Background(), detail.Order.ID, orderflow.StatusProcessing, "")
	require.ErrorIs(t, err, shared.ErrActorRequired)
}
