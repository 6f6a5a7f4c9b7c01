package purchasing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/orderflow"
)

// PurchaseOrder domain model. Monetary fields are derived from the line set
// plus the adjustment parameters and are rewritten on every item change.
type PurchaseOrder struct {
	ID              int64            `json:"id"`
	Number          string           `json:"number"`
	SupplierID      int64            `json:"supplier_id"`
	CreatedBy       int64            `json:"created_by"`
	OrderDate       time.Time        `json:"order_date"`
	ExpectedDate    time.Time        `json:"expected_date,omitempty"`
	Status          orderflow.Status `json:"status"`
	DiscountPercent decimal.Decimal  `json:"discount_percent"`
	TaxPercent      decimal.Decimal  `json:"tax_percent"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	DiscountAmount  decimal.Decimal  `json:"discount_amount"`
	TaxAmount       decimal.Decimal  `json:"tax_amount"`
	ShippingCost    decimal.Decimal  `json:"shipping_cost"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	Notes           string           `json:"notes,omitempty"`
	Terms           string           `json:"terms,omitempty"`
	Version         int64            `json:"version"`
	ApprovedBy      int64            `json:"approved_by,omitempty"`
	ApprovedAt      time.Time        `json:"approved_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// OrderLine is owned exclusively by its order.
type OrderLine struct {
	ID             int64           `json:"id"`
	OrderID        int64           `json:"order_id"`
	ProductID      int64           `json:"product_id"`
	Quantity       int64           `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	LineTotal      decimal.Decimal `json:"line_total"`
	Notes          string          `json:"notes,omitempty"`
}

// Goods receipt statuses.
type ReceiptStatus string

const (
	ReceiptStatusDraft     ReceiptStatus = "DRAFT"
	ReceiptStatusCompleted ReceiptStatus = "COMPLETED"
	ReceiptStatusCancelled ReceiptStatus = "CANCELLED"
)

// GoodsReceipt records physically receiving some or all of a PO's quantities.
type GoodsReceipt struct {
	ID         int64         `json:"id"`
	Number     string        `json:"number"`
	OrderID    int64         `json:"order_id"`
	SupplierID int64         `json:"supplier_id"`
	Status     ReceiptStatus `json:"status"`
	ReceivedAt time.Time     `json:"received_at"`
	Notes      string        `json:"notes,omitempty"`
	CreatedBy  int64         `json:"created_by"`
	CreatedAt  time.Time     `json:"created_at"`
}

// ReceiptLine describes received goods per order line.
type ReceiptLine struct {
	ID          int64           `json:"id"`
	ReceiptID   int64           `json:"receipt_id"`
	OrderLineID int64           `json:"order_line_id"`
	ProductID   int64           `json:"product_id"`
	Quantity    int64           `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// ListFilters narrows order list queries.
type ListFilters struct {
	Status     string
	SupplierID int64
	Search     string
	SortBy     string
	SortDir    string
}

// OrderListItem is the list projection with the supplier name joined in.
type OrderListItem struct {
	ID           int64            `json:"id"`
	Number       string           `json:"number"`
	SupplierID   int64            `json:"supplier_id"`
	SupplierName string           `json:"supplier_name"`
	Status       orderflow.Status `json:"status"`
	OrderDate    time.Time        `json:"order_date"`
	ExpectedDate time.Time        `json:"expected_date,omitempty"`
	TotalAmount  decimal.Decimal  `json:"total_amount"`
	CreatedAt    time.Time        `json:"created_at"`
}

// OrderDetail groups a header with its lines for detail reads.
type OrderDetail struct {
	Order PurchaseOrder `json:"order"`
	Lines []OrderLine   `json:"lines"`
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("purchasing: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("purchasing: invalid input")
)
