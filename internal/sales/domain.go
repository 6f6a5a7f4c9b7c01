package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/orderflow"
)

// SalesOrder domain model. Monetary fields are derived the same way the
// purchasing side derives them; the two families share the calculator.
type SalesOrder struct {
	ID              int64            `json:"id"`
	Number          string           `json:"number"`
	CustomerID      int64            `json:"customer_id"`
	CreatedBy       int64            `json:"created_by"`
	OrderDate       time.Time        `json:"order_date"`
	Status          orderflow.Status `json:"status"`
	DiscountPercent decimal.Decimal  `json:"discount_percent"`
	TaxPercent      decimal.Decimal  `json:"tax_percent"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	DiscountAmount  decimal.Decimal  `json:"discount_amount"`
	TaxAmount       decimal.Decimal  `json:"tax_amount"`
	ShippingCost    decimal.Decimal  `json:"shipping_cost"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	ShippingAddress string           `json:"shipping_address,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	Version         int64            `json:"version"`
	ShippedAt       time.Time        `json:"shipped_at,omitempty"`
	DeliveredAt     time.Time        `json:"delivered_at,omitempty"`
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

// ListFilters narrows order list queries.
type ListFilters struct {
	Status     string
	CustomerID int64
	Search     string
	SortBy     string
	SortDir    string
}

// OrderListItem is the list projection with the customer name joined in.
type OrderListItem struct {
	ID           int64            `json:"id"`
	Number       string           `json:"number"`
	CustomerID   int64            `json:"customer_id"`
	CustomerName string           `json:"customer_name"`
	Status       orderflow.Status `json:"status"`
	OrderDate    time.Time        `json:"order_date"`
	TotalAmount  decimal.Decimal  `json:"total_amount"`
	CreatedAt    time.Time        `json:"created_at"`
}

// OrderDetail groups a header with its lines for detail reads.
type OrderDetail struct {
	Order SalesOrder  `json:"order"`
	Lines []OrderLine `json:"lines"`
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("sales: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("sales: invalid input")
)
