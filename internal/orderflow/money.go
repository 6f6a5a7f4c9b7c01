package orderflow

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LineInput is a single order line as submitted by the caller. The line
// discount is an absolute amount; percentage discounts are resolved into it
// before the line reaches the calculator.
type LineInput struct {
	ProductID      int64
	Quantity       int64
	UnitPrice      decimal.Decimal
	DiscountAmount decimal.Decimal
	Notes          string
}

// Adjustments are the order level parameters applied on top of line totals.
type Adjustments struct {
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
	ShippingCost    decimal.Decimal
}

// Totals holds the derived monetary fields of an order header.
type Totals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxableAmount  decimal.Decimal
	TaxAmount      decimal.Decimal
	ShippingCost   decimal.Decimal
	GrandTotal     decimal.Decimal
}

// LineTotal derives quantity * unit price - discount for one line.
func LineTotal(l LineInput) decimal.Decimal {
	return decimal.NewFromInt(l.Quantity).Mul(l.UnitPrice).Sub(l.DiscountAmount)
}

// ValidateLines checks every submitted line and reports the first offender.
func ValidateLines(lines []LineInput) error {
	for i, l := range lines {
		switch {
		case l.ProductID == 0:
			return &InvalidLineItemError{Index: i, Reason: "product reference required"}
		case l.Quantity <= 0:
			return &InvalidLineItemError{Index: i, Reason: "quantity must be positive"}
		case l.UnitPrice.IsNegative():
			return &InvalidLineItemError{Index: i, Reason: "unit price must not be negative"}
		case l.DiscountAmount.IsNegative():
			return &InvalidLineItemError{Index: i, Reason: "discount must not be negative"}
		case l.DiscountAmount.GreaterThan(decimal.NewFromInt(l.Quantity).Mul(l.UnitPrice)):
			return &InvalidLineItemError{Index: i, Reason: "discount exceeds line amount"}
		}
	}
	return nil
}

// ValidateAdjustments rejects negative percentages and shipping.
func ValidateAdjustments(adj Adjustments) error {
	if adj.DiscountPercent.IsNegative() || adj.DiscountPercent.GreaterThan(hundred) {
		return fmt.Errorf("%w: discount percent out of range", ErrValidation)
	}
	if adj.TaxPercent.IsNegative() {
		return fmt.Errorf("%w: tax percent must not be negative", ErrValidation)
	}
	if adj.ShippingCost.IsNegative() {
		return fmt.Errorf("%w: shipping cost must not be negative", ErrValidation)
	}
	return nil
}

// ComputeTotals derives the header totals from the line set and adjustments.
// Intermediate values stay unrounded; rounding to two decimals happens once,
// when the Totals value is assembled.
func ComputeTotals(lines []LineInput, adj Adjustments) (Totals, error) {
	if err := ValidateLines(lines); err != nil {
		return Totals{}, err
	}
	if err := ValidateAdjustments(adj); err != nil {
		return Totals{}, err
	}
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(LineTotal(l))
	}
	discount := subtotal.Mul(adj.DiscountPercent).Div(hundred)
	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(adj.TaxPercent).Div(hundred)
	total := taxable.Add(tax).Add(adj.ShippingCost)
	return Totals{
		Subtotal:       subtotal.Round(2),
		DiscountAmount: discount.Round(2),
		TaxableAmount:  taxable.Round(2),
		TaxAmount:      tax.Round(2),
		ShippingCost:   adj.ShippingCost.Round(2),
		GrandTotal:     total.Round(2),
	}, nil
}
