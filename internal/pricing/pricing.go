// Package pricing computes sale totals from requested line items and the
// catalog prices captured for them. It is pure: no storage, no clock.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"clearvue/backend/internal/store"
)

// DefaultTaxRate applies when configuration does not override it.
const DefaultTaxRate = 0.15

// Volume discount tiers, evaluated highest threshold first; tiers do not
// stack.
var (
	bulkQty       = 50
	bulkRate      = decimal.NewFromFloat(0.10)
	volumeQty     = 10
	volumeRate    = decimal.NewFromFloat(0.05)
	zeroRate      = decimal.Zero
	currencyScale = int32(2)
)

type Line struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

type QuotedLine struct {
	Line
	LineDiscount decimal.Decimal
}

// Quote carries the priced sale. Discount is always zero: per-line discounts
// are already folded into Subtotal, and the field keeps the legacy meaning
// the reporting consumers expect. The real figures live on the lines.
type Quote struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
	Lines    []QuotedLine
}

type Calculator struct {
	taxRate decimal.Decimal
}

func NewCalculator(taxRate float64) Calculator {
	if taxRate < 0 {
		taxRate = DefaultTaxRate
	}
	return Calculator{taxRate: decimal.NewFromFloat(taxRate)}
}

func (c Calculator) TaxRate() decimal.Decimal {
	return c.taxRate
}

// Quote prices the given lines. All money outputs are rounded to currency
// precision with round-half-away-from-zero.
func (c Calculator) Quote(lines []Line) (Quote, error) {
	if len(lines) == 0 {
		return Quote{}, fmt.Errorf("%w: no line items", store.ErrInvalidInput)
	}

	subtotal := decimal.Zero
	quoted := make([]QuotedLine, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return Quote{}, fmt.Errorf("%w: quantity %d for product %s", store.ErrInvalidInput, line.Quantity, line.ProductID)
		}
		if line.UnitPrice.IsNegative() {
			return Quote{}, fmt.Errorf("%w: negative unit price for product %s", store.ErrInvalidInput, line.ProductID)
		}

		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		lineDiscount := lineTotal.Mul(discountRate(line.Quantity)).Round(currencyScale)
		subtotal = subtotal.Add(lineTotal.Sub(lineDiscount))

		quoted = append(quoted, QuotedLine{Line: line, LineDiscount: lineDiscount})
	}

	subtotal = subtotal.Round(currencyScale)
	tax := subtotal.Mul(c.taxRate).Round(currencyScale)
	total := subtotal.Add(tax).Round(currencyScale)

	return Quote{
		Subtotal: subtotal,
		Tax:      tax,
		Discount: decimal.Zero,
		Total:    total,
		Lines:    quoted,
	}, nil
}

// discountRate returns the rate for the highest tier the quantity reaches.
func discountRate(quantity int) decimal.Decimal {
	switch {
	case quantity >= bulkQty:
		return bulkRate
	case quantity >= volumeQty:
		return volumeRate
	default:
		return zeroRate
	}
}
