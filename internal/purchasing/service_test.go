package purchasing

import (
	"context"
	"io"
	"log/slog"
	"strings"
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
	orders       map[int64]PurchaseOrder
	lines        map[int64][]OrderLine
	receipts     map[int64]GoodsReceipt
	receiptLines map[int64][]ReceiptLine
	seqs         map[string]int64
	claimed      map[string]bool
	stock        *stockWriter

	nextOrderID       int64
	nextLineID        int64
	nextReceiptID     int64
	nextReceiptLineID int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		orders:       make(map[int64]PurchaseOrder),
		lines:        make(map[int64][]OrderLine),
		receipts:     make(map[int64]GoodsReceipt),
		receiptLines: make(map[int64][]ReceiptLine),
		seqs:         make(map[string]int64),
		claimed:      make(map[string]bool),
		stock:        newStockWriter(),
	}
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memRepo) GetOrder(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error) {
	po, ok := r.orders[id]
	if !ok {
		return PurchaseOrder{}, nil, ErrNotFound
	}
	return po, append([]OrderLine(nil), r.lines[id]...), nil
}

func (r *memRepo) GetReceipt(ctx context.Context, id int64) (GoodsReceipt, []ReceiptLine, error) {
	grn, ok := r.receipts[id]
	if !ok {
		return GoodsReceipt{}, nil, ErrNotFound
	}
	return grn, append([]ReceiptLine(nil), r.receiptLines[id]...), nil
}

func (r *memRepo) ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]OrderListItem, int, error) {
	var items []OrderListItem
	for _, po := range r.orders {
		if filters.Status != "" && string(po.Status) != filters.Status {
			continue
		}
		if filters.Search != "" && !strings.Contains(po.Number, filters.Search) {
			continue
		}
		items = append(items, OrderListItem{
			ID:          po.ID,
			Number:      po.Number,
			SupplierID:  po.SupplierID,
			Status:      po.Status,
			OrderDate:   po.OrderDate,
			TotalAmount: po.TotalAmount,
			CreatedAt:   po.CreatedAt,
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

func (r *memRepo) CreateOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	r.nextOrderID++
	po.ID = r.nextOrderID
	po.Version = 1
	po.CreatedAt = time.Now()
	po.UpdatedAt = po.CreatedAt
	r.orders[po.ID] = po
	return po.ID, nil
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
	po, ok := r.orders[orderID]
	if !ok || po.Version != version {
		return shared.ErrConcurrentModification
	}
	po.DiscountPercent = adj.DiscountPercent
	po.TaxPercent = adj.TaxPercent
	po.Subtotal = totals.Subtotal
	po.DiscountAmount = totals.DiscountAmount
	po.TaxAmount = totals.TaxAmount
	po.ShippingCost = totals.ShippingCost
	po.TotalAmount = totals.GrandTotal
	po.Version++
	po.UpdatedAt = time.Now()
	r.orders[orderID] = po
	return nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, orderID, version int64, status orderflow.Status, notes string) error {
	po, ok := r.orders[orderID]
	if !ok || po.Version != version {
		return shared.ErrConcurrentModification
	}
	po.Status = status
	if notes != "" {
		po.Notes = notes
	}
	po.Version++
	po.UpdatedAt = time.Now()
	r.orders[orderID] = po
	return nil
}

func (r *memRepo) SetApproval(ctx context.Context, orderID, approvedBy int64, approvedAt time.Time) error {
	po, ok := r.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	po.ApprovedBy = approvedBy
	po.ApprovedAt = approvedAt
	r.orders[orderID] = po
	return nil
}

func (r *memRepo) CreateReceipt(ctx context.Context, grn GoodsReceipt) (int64, error) {
	r.nextReceiptID++
	grn.ID = r.nextReceiptID
	grn.CreatedAt = time.Now()
	r.receipts[grn.ID] = grn
	return grn.ID, nil
}

func (r *memRepo) InsertReceiptLine(ctx context.Context, line ReceiptLine) error {
	r.nextReceiptLineID++
	line.ID = r.nextReceiptLineID
	r.receiptLines[line.ReceiptID] = append(r.receiptLines[line.ReceiptID], line)
	return nil
}

func (r *memRepo) UpdateReceiptStatus(ctx context.Context, receiptID int64, from, to ReceiptStatus) error {
	grn, ok := r.receipts[receiptID]
	if !ok || grn.Status != from {
		return shared.ErrConcurrentModification
	}
	grn.Status = to
	r.receipts[receiptID] = grn
	return nil
}

func (r *memRepo) ReceivedQtyByProduct(ctx context.Context, orderID int64) (map[int64]int64, error) {
	received := make(map[int64]int64)
	for id, grn := range r.receipts {
		if grn.OrderID != orderID || grn.Status != ReceiptStatusCompleted {
			continue
		}
		for _, line := range r.receiptLines[id] {
			received[line.ProductID] += line.Quantity
		}
	}
	return received, nil
}

func (r *memRepo) ClaimIdempotencyKey(ctx context.Context, key, module string) error {
	if r.claimed[key] {
		return shared.ErrIdempotencyConflict
	}
	r.claimed[key] = true
	return nil
}

func (r *memRepo) Stock() inventory.MovementWriter {
	return r.stock
}

func newTestService(repo *memRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, repo, inventory.NewDispatcher(inventory.Policy{}), nil, nil, nil, nil)
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

func scenarioLines() []orderflow.LineInput {
	return []orderflow.LineInput{
		{ProductID: 101, Quantity: 50, UnitPrice: dec("25000")},
		{ProductID: 102, Quantity: 25, UnitPrice: dec("45000"), DiscountAmount: dec("50000")},
	}
}

func TestCreateOrderComputesTotalsAndNumber(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)

	detail, err := svc.CreateOrder(actorCtx(), CreateOrderInput{
		SupplierID:  3,
		Lines:       scenarioLines(),
		Adjustments: orderflow.Adjustments{TaxPercent: dec("10")},
	})
	require.NoError(t, err)

	po := detail.Order
	require.Equal(t, orderflow.StatusDraft, po.Status)
	require.Equal(t, orderflow.FormatPurchaseNumber(po.OrderDate, 1), po.Number)
	require.True(t, po.Subtotal.Equal(dec("2325000")), po.Subtotal.String())
	require.True(t, po.TaxAmount.Equal(dec("232500")), po.TaxAmount.String())
	require.True(t, po.TotalAmount.Equal(dec("2557500")), po.TotalAmount.String())
	require.Len(t, detail.Lines, 2)
	require.True(t, detail.Lines[1].LineTotal.Equal(dec("1075000")))
}

func TestCreateOrderRequiresActor(t *testing.T) {
	svc := newTestService(newMemRepo())
	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{SupplierID: 3, Lines: scenarioLines()})
	require.ErrorIs(t, err, shared.ErrActorRequired)
}

func TestCreateOrderRejectsBadLine(t *testing.T) {
	svc := newTestService(newMemRepo())
	_, err := svc.CreateOrder(actorCtx(), CreateOrderInput{
		SupplierID: 3,
		Lines: []orderflow.LineInput{
			{ProductID: 101, Quantity: 5, UnitPrice: dec("100")},
			{ProductID: 102, Quantity: -1, UnitPrice: dec("100")},
		},
	})
	var invalid *orderflow.InvalidLineItemError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, 1, invalid.Index)
}

func TestUpdateStatusForwardAndApproval(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	detail, err := svc.CreateOrder(actorCtx(), CreateOrderInput{SupplierID: 3, Lines: scenarioLines()})
	require.NoError(t, err)
	orderID := detail.Order.ID

	po, err := svc.UpdateStatus(actorCtx(), orderID, orderflow.StatusSent, "")
	require.NoError(t, err)
	require.Equal(t, orderflow.StatusSent, po.Status)

	po, err = svc.UpdateStatus(actorCtx(), orderID, orderflow.StatusApproved, "looks good")
	require.NoError(t, err)
	require.Equal(t, orderflow.StatusApproved, po.Status)
	require.EqualValues(t, 7, po.ApprovedBy)
	require.False(t, po.ApprovedAt.IsZero())

	_, err = svc.UpdateStatus(actorCtx(), orderID, orderflow.StatusSent, "")
	var invalid *orderflow.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestUpdateStatusIdentityNoOp(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	detail, err := svc.CreateOrder(actorCtx(), CreateOrderInput{SupplierID: 3, Lines: scenarioLines()})
	require.NoError(t, err)

	po, err := svc.UpdateStatus(actorCtx(), detail.Order.ID, orderflow.StatusDraft, "")
	require.NoError(t, err)
	require.Equal(t, detail.Order.Version, po.Version)
}

func TestReplaceItemsEmptyPayloadNoOp(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	detail, err := svc.CreateOrder(actorCtx(), CreateOrderInput{SupplierID: 3, Lines: scenarioLines()})
	require.NoError(t, err)

	after, err := svc.ReplaceItems(actorCtx(), detail.Order.ID, 0, nil, orderflow.Adjustments{})
	require.NoError(t, err)
	require.True(t, after.Order.TotalAmount.Equal(detail.Order.TotalAmount))
	require.Equal(t, detail.Order.Version, after.Order.Version)
	require.Len(t, after.Lines, 2)
}

func TestReplaceItemsRecomputesTotals(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	detail, err := svc.CreateOrder(actorCtx(), CreateOrderInput{SupplierID: 3, Lines: scenarioLines()})
	require.NoError(t, err)

	after, err := svc.ReplaceItems(actorCtx(), detail.Order.ID, detail.Order.Version, []orderflow.LineInput{
		{ProductID: 101, Quantity: 10, UnitPrice: dec("1000")},
	}, orderflow.Adjustments{TaxPercent: dec("10")})
	require.NoError(t, err)
	require.True(t, after.Order.Subtotal.Equal(dec("10000")))
	require.True(t, after.Order.TotalAmount.Equal(dec("11000")))
	require.Len(t, after.Lines, 1)
	require.Equal(t, detail.Order.Version+1, after.Order.Version)
}

func TestReplaceItemsStaleVersion(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	detail, err := svc.CreateOrder(actorCtx(), CreateOrderInput{SupplierID: 3, Lines: scenarioLines()})
	require.NoError(t, err)

	_, err = svc.ReplaceItems(actorCtx(), detail.Order.ID, detail.Order.Version+5, []orderflow.LineInput{
		{ProductID: 101, Quantity: 1, UnitPrice: dec("1")},
	}, orderflow.Adjustments{})
	require.ErrorIs(t, err, shared.ErrConcurrentModification)
}

func TestReplaceItemsRejectsTerminalOrder(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	detail, err := svc.CreateOrder(actorCtx(), CreateOrderInput{SupplierID: 3, Lines: scenarioLines()})
	require.NoError(t, err)

	po := repo.orders[detail.Order.ID]
	po.Status = orderflow.StatusCompleted
	repo.orders[detail.Order.ID] = po

	_, err = svc.ReplaceItems(actorCtx(), detail.Order.ID, 0, []orderflow.LineInput{
		{ProductID: 101, Quantity: 1, UnitPrice: dec("1")},
	}, orderflow.Adjustments{})
	require.ErrorIs(t, err, ErrValidation)
}

func approvedOrder(t *testing.T, svc *Service) OrderDetail {
	t.Helper()
	detail, err := svc.CreateOrder(actorCtx(), CreateOrderInput{SupplierID: 3, Lines: scenarioLines()})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(actorCtx(), detail.Order.ID, orderflow.StatusSent, "")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(actorCtx(), detail.Order.ID, orderflow.StatusApproved, "")
	require.NoError(t, err)
	fresh, err := svc.GetOrder(actorCtx(), detail.Order.ID)
	require.NoError(t, err)
	return fresh
}

func TestCreateReceiptRequiresApprovedOrder(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	detail, err := svc.CreateOrder(actorCtx(), CreateOrderInput{SupplierID: 3, Lines: scenarioLines()})
	require.NoError(t, err)

	_, _, err = svc.CreateReceipt(actorCtx(), CreateReceiptInput{
		OrderID: detail.Order.ID,
		Lines:   []ReceiptLineInput{{OrderLineID: detail.Lines[0].ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCompleteReceiptDispatchesStockAndCompletesOrder(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	detail := approvedOrder(t, svc)

	grn, lines, err := svc.CreateReceipt(actorCtx(), CreateReceiptInput{
		OrderID: detail.Order.ID,
		Lines: []ReceiptLineInput{
			{OrderLineID: detail.Lines[0].ID, Quantity: 50},
			{OrderLineID: detail.Lines[1].ID, Quantity: 25},
		},
	})
	require.NoError(t, err)
	require.Equal(t, ReceiptStatusDraft, grn.Status)
	require.Len(t, lines, 2)
	require.True(t, lines[0].UnitCost.Equal(dec("25000")))

	require.NoError(t, svc.CompleteReceipt(actorCtx(), grn.ID))

	require.EqualValues(t, 50, repo.stock.stock[101])
	require.EqualValues(t, 25, repo.stock.stock[102])
	require.Len(t, repo.stock.movements, 2)
	require.Equal(t, inventory.DirectionIn, repo.stock.movements[0].Direction)

	po, _, err := repo.GetOrder(context.Background(), detail.Order.ID)
	require.NoError(t, err)
	require.Equal(t, orderflow.StatusCompleted, po.Status)
}

func TestCompleteReceiptTwiceIsNoOp(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	detail := approvedOrder(t, svc)

	grn, _, err := svc.CreateReceipt(actorCtx(), CreateReceiptInput{
		OrderID: detail.Order.ID,
		Lines: []ReceiptLineInput{
			{OrderLineID: detail.Lines[0].ID, Quantity: 50},
			{OrderLineID: detail.Lines[1].ID, Quantity: 25},
		},
	})
	require.NoError(t, err)

	require.NoError(t, svc.CompleteReceipt(actorCtx(), grn.ID))
	require.NoError(t, svc.CompleteReceipt(actorCtx(), grn.ID))

	require.Len(t, repo.stock.movements, 2)
	require.EqualValues(t, 50, repo.stock.stock[101])
}

func TestCompleteReceiptClaimedKeyBacksOff(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	detail := approvedOrder(t, svc)

	grn, _, err := svc.CreateReceipt(actorCtx(), CreateReceiptInput{
		OrderID: detail.Order.ID,
		Lines:   []ReceiptLineInput{{OrderLineID: detail.Lines[0].ID, Quantity: 50}},
	})
	require.NoError(t, err)

	// Another worker holds the claim for this receipt.
	repo.claimed["RCPT:"+grn.Number] = true

	require.NoError(t, svc.CompleteReceipt(actorCtx(), grn.ID))
	require.Empty(t, repo.stock.movements)
	require.Equal(t, ReceiptStatusDraft, repo.receipts[grn.ID].Status)
}

func TestCompleteReceiptPartialKeepsOrderApproved(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	detail := approvedOrder(t, svc)

	grn, _, err := svc.CreateReceipt(actorCtx(), CreateReceiptInput{
		OrderID: detail.Order.ID,
		Lines:   []ReceiptLineInput{{OrderLineID: detail.Lines[0].ID, Quantity: 20}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.CompleteReceipt(actorCtx(), grn.ID))

	po, _, err := repo.GetOrder(context.Background(), detail.Order.ID)
	require.NoError(t, err)
	require.Equal(t, orderflow.StatusApproved, po.Status)
	require.EqualValues(t, 20, repo.stock.stock[101])
}

func TestCreateReceiptRejectsForeignLine(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	detail := approvedOrder(t, svc)

	_, _, err := svc.CreateReceipt(actorCtx(), CreateReceiptInput{
		OrderID: detail.Order.ID,
		Lines:   []ReceiptLineInput{{OrderLineID: 9999, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrValidation)
}
