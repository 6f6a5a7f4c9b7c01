package purchasing

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/orderflow"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes the purchasing HTTP surface.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchasing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/export.csv", h.exportOrdersCSV)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Post("/orders/{orderID}/status", h.updateStatus)
	r.Put("/orders/{orderID}/items", h.replaceItems)
	r.Get("/orders/{orderID}/approvals", h.listApprovals)
	r.Post("/orders/{orderID}/receipts", h.createReceipt)
	r.Get("/receipts/{receiptID}", h.getReceipt)
	r.Post("/receipts/{receiptID}/complete", h.completeReceipt)
}

type orderLinePayload struct {
	ProductID      int64           `json:"product_id" validate:"required,gt=0"`
	Quantity       int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Notes          string          `json:"notes"`
}

type createOrderRequest struct {
	SupplierID      int64              `json:"supplier_id" validate:"required,gt=0"`
	OrderDate       time.Time          `json:"order_date"`
	ExpectedDate    time.Time          `json:"expected_date"`
	Lines           []orderLinePayload `json:"lines" validate:"required,min=1,dive"`
	DiscountPercent decimal.Decimal    `json:"discount_percent"`
	TaxPercent      decimal.Decimal    `json:"tax_percent"`
	ShippingCost    decimal.Decimal    `json:"shipping_cost"`
	Notes           string             `json:"notes"`
	Terms           string             `json:"terms"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes"`
}

type replaceItemsRequest struct {
	Version         int64              `json:"version"`
	Lines           []orderLinePayload `json:"lines"`
	DiscountPercent decimal.Decimal    `json:"discount_percent"`
	TaxPercent      decimal.Decimal    `json:"tax_percent"`
	ShippingCost    decimal.Decimal    `json:"shipping_cost"`
}

type receiptLinePayload struct {
	OrderLineID int64           `json:"order_line_id" validate:"required,gt=0"`
	Quantity    int64           `json:"quantity" validate:"required,gt=0"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

type createReceiptRequest struct {
	ReceivedAt time.Time            `json:"received_at"`
	Notes      string               `json:"notes"`
	Lines      []receiptLinePayload `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	detail, err := h.service.CreateOrder(r.Context(), CreateOrderInput{
		SupplierID:   req.SupplierID,
		OrderDate:    req.OrderDate,
		ExpectedDate: req.ExpectedDate,
		Lines:        toLineInputs(req.Lines),
		Adjustments: orderflow.Adjustments{
			DiscountPercent: req.DiscountPercent,
			TaxPercent:      req.TaxPercent,
			ShippingCost:    req.ShippingCost,
		},
		Notes: req.Notes,
		Terms: req.Terms,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	filters := ListFilters{
		Status:     q.Get("status"),
		SupplierID: supplierID,
		Search:     q.Get("search"),
		SortBy:     q.Get("sort_by"),
		SortDir:    q.Get("sort_dir"),
	}
	items, total, err := h.service.ListOrders(r.Context(), page, perPage, filters)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orders": items,
		"total":  total,
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	detail, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	po, err := h.service.UpdateStatus(r.Context(), orderID, orderflow.Status(req.Status), req.Notes)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, po)
}

func (h *Handler) replaceItems(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req replaceItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	detail, err := h.service.ReplaceItems(r.Context(), orderID, req.Version, toLineInputs(req.Lines), orderflow.Adjustments{
		DiscountPercent: req.DiscountPercent,
		TaxPercent:      req.TaxPercent,
		ShippingCost:    req.ShippingCost,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) listApprovals(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	logs, err := h.service.Approvals(r.Context(), orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": logs})
}

func (h *Handler) createReceipt(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req createReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	input := CreateReceiptInput{OrderID: orderID, ReceivedAt: req.ReceivedAt, Notes: req.Notes}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, ReceiptLineInput{
			OrderLineID: l.OrderLineID,
			Quantity:    l.Quantity,
			UnitCost:    l.UnitCost,
		})
	}
	grn, lines, err := h.service.CreateReceipt(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"receipt": grn, "lines": lines})
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	receiptID, ok := h.pathID(w, r, "receiptID")
	if !ok {
		return
	}
	grn, lines, err := h.service.repo.GetReceipt(r.Context(), receiptID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipt": grn, "lines": lines})
}

func (h *Handler) completeReceipt(w http.ResponseWriter, r *http.Request) {
	receiptID, ok := h.pathID(w, r, "receiptID")
	if !ok {
		return
	}
	if err := h.service.CompleteReceipt(r.Context(), receiptID); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "COMPLETED"})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func toLineInputs(payload []orderLinePayload) []orderflow.LineInput {
	lines := make([]orderflow.LineInput, 0, len(payload))
	for _, l := range payload {
		lines = append(lines, orderflow.LineInput{
			ProductID:      l.ProductID,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			DiscountAmount: l.DiscountAmount,
			Notes:          l.Notes,
		})
	}
	return lines
}

// respondError maps domain failures onto HTTP statuses.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var invalidTransition *orderflow.InvalidTransitionError
	var invalidLine *orderflow.InvalidLineItemError
	var insufficient *inventory.InsufficientStockError
	var persistence *shared.PersistenceError

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, orderflow.ErrValidation),
		errors.Is(err, orderflow.ErrUnknownStatus),
		errors.As(err, &invalidTransition),
		errors.As(err, &invalidLine):
		status = http.StatusBadRequest
	case errors.Is(err, shared.ErrActorRequired):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrNotFound), errors.Is(err, shared.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &insufficient),
		errors.Is(err, shared.ErrConcurrentModification):
		status = http.StatusConflict
	case errors.As(err, &persistence):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("purchasing request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	writeJSON(w, status, map[string]any{"error": shared.UserSafeMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
