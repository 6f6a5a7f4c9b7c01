package orderflow

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeTotalsScenario(t *testing.T) {
	// 50 @ 25000 plus 25 @ 45000 with a 50000 line discount,
	// 0% discount, 10% tax, no shipping.
	lines := []LineInput{
		{ProductID: 1, Quantity: 50, UnitPrice: dec("25000")},
		{ProductID: 2, Quantity: 25, UnitPrice: dec("45000"), DiscountAmount: dec("50000")},
	}
	totals, err := ComputeTotals(lines, Adjustments{TaxPercent: dec("10")})
	require.NoError(t, err)
	require.True(t, totals.Subtotal.Equal(dec("2325000")), "subtotal=%s", totals.Subtotal)
	require.True(t, totals.TaxAmount.Equal(dec("232500")), "tax=%s", totals.TaxAmount)
	require.True(t, totals.GrandTotal.Equal(dec("2557500")), "total=%s", totals.GrandTotal)
}

func TestComputeTotalsIdentity(t *testing.T) {
	lines := []LineInput{
		{ProductID: 1, Quantity: 3, UnitPrice: dec("19.99")},
		{ProductID: 2, Quantity: 7, UnitPrice: dec("4.25"), DiscountAmount: dec("1.10")},
	}
	adj := Adjustments{DiscountPercent: dec("5"), TaxPercent: dec("11"), ShippingCost: dec("12.50")}
	totals, err := ComputeTotals(lines, adj)
	require.NoError(t, err)

	// total = subtotal - discount + tax + shipping
	reconstructed := totals.Subtotal.Sub(totals.DiscountAmount).Add(totals.TaxAmount).Add(totals.ShippingCost)
	require.True(t, totals.GrandTotal.Sub(reconstructed).Abs().LessThanOrEqual(dec("0.01")))
	require.True(t, totals.DiscountAmount.LessThanOrEqual(totals.Subtotal))
	require.False(t, totals.GrandTotal.IsNegative())
}

func TestValidateLines(t *testing.T) {
	cases := []struct {
		name  string
		line  LineInput
		index int
	}{
		{"missing product", LineInput{Quantity: 1, UnitPrice: dec("10")}, 1},
		{"zero quantity", LineInput{ProductID: 3, UnitPrice: dec("10")}, 1},
		{"negative price", LineInput{ProductID: 3, Quantity: 1, UnitPrice: dec("-1")}, 1},
		{"negative discount", LineInput{ProductID: 3, Quantity: 1, UnitPrice: dec("10"), DiscountAmount: dec("-2")}, 1},
		{"discount above amount", LineInput{ProductID: 3, Quantity: 1, UnitPrice: dec("10"), DiscountAmount: dec("11")}, 1},
	}
	valid := LineInput{ProductID: 9, Quantity: 2, UnitPrice: dec("5")}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateLines([]LineInput{valid, tc.line})
			var invalid *InvalidLineItemError
			require.ErrorAs(t, err, &invalid)
			require.Equal(t, tc.index, invalid.Index)
		})
	}
	require.NoError(t, ValidateLines([]LineInput{valid}))
}

func TestValidateAdjustments(t *testing.T) {
	require.ErrorIs(t, ValidateAdjustments(Adjustments{DiscountPercent: dec("-1")}), ErrValidation)
	require.ErrorIs(t, ValidateAdjustments(Adjustments{DiscountPercent: dec("101")}), ErrValidation)
	require.ErrorIs(t, ValidateAdjustments(Adjustments{TaxPercent: dec("-0.5")}), ErrValidation)
	require.ErrorIs(t, ValidateAdjustments(Adjustments{ShippingCost: dec("-10")}), ErrValidation)
	require.NoError(t, ValidateAdjustments(Adjustments{TaxPercent: dec("10")}))
}

func TestDocumentNumberFormats(t *testing.T) {
	date := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "PO-20250314007", FormatPurchaseNumber(date, 7))
	require.Equal(t, "SO-2025-0042", FormatSalesNumber(date, 42))
	require.Equal(t, "GRN-000315", FormatReceiptNumber(315))
	require.Equal(t, "20250314", PurchasePeriod(date))
	require.Equal(t, "2025", SalesPeriod(date))
}
