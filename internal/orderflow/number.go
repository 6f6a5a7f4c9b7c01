package orderflow

import (
	"fmt"
	"time"
)

// Document number formats. Sequences are per family and period, allocated by
// the repository inside the creating transaction.

// FormatPurchaseNumber renders PO-<YYYYMMDD><NNN>.
func FormatPurchaseNumber(date time.Time, seq int64) string {
	return fmt.Sprintf("PO-%s%03d", date.Format("20060102"), seq)
}

// FormatSalesNumber renders SO-<YYYY>-<NNNN>.
func FormatSalesNumber(date time.Time, seq int64) string {
	return fmt.Sprintf("SO-%d-%04d", date.Year(), seq)
}

// FormatReceiptNumber renders GRN-<NNNNNN>.
func FormatReceiptNumber(seq int64) string {
	return fmt.Sprintf("GRN-%06d", seq)
}

// PurchasePeriod is the sequence period key for purchase orders.
func PurchasePeriod(date time.Time) string {
	return date.Format("20060102")
}

// SalesPeriod is the sequence period key for sales orders.
func SalesPeriod(date time.Time) string {
	return date.Format("2006")
}
