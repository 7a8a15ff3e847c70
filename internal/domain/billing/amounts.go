// Package billing holds the pure calculation rules of the billing engine:
// amount arithmetic, the tax rounding rule, cadence date math and reminder
// offsets. No I/O, no external services.
package billing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kitabu/billing-api/internal/domain"
)

// LineInput is one line item as submitted by a caller.
// Quantity and UnitRate are validated here, not at the transport layer.
type LineInput struct {
	Description string
	Quantity    int64
	UnitRate    int64 // minor units
}

// Amounts are the computed monetary fields of an invoice, in minor units.
// Invariant: Total == Subtotal + TaxAmount.
type Amounts struct {
	Subtotal  int64
	TaxAmount int64
	Total     int64
}

// LineAmount returns quantity * rate for a single line.
func LineAmount(l LineInput) int64 {
	return l.Quantity * l.UnitRate
}

// TaxAmount applies the single rounding rule of the engine:
// round(subtotal * rate / 100), half-up.
func TaxAmount(subtotal int64, rate decimal.Decimal) int64 {
	// decimal.Round is round-half-away-from-zero, which equals half-up for
	// the non-negative values reachable here.
	return decimal.NewFromInt(subtotal).
		Mul(rate).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

// Compute validates the line items and derives subtotal, tax and total.
// rate is a percentage (1.5 means 1.5%).
func Compute(items []LineInput, rate decimal.Decimal) (Amounts, error) {
	if len(items) == 0 {
		return Amounts{}, fmt.Errorf("%w: at least one line item is required", domain.ErrInvalidInput)
	}
	if rate.IsNegative() {
		return Amounts{}, fmt.Errorf("%w: tax rate must not be negative", domain.ErrInvalidInput)
	}
	var subtotal int64
	for i, l := range items {
		if l.Description == "" {
			return Amounts{}, fmt.Errorf("%w: item %d has no description", domain.ErrInvalidInput, i+1)
		}
		if l.Quantity < 1 {
			return Amounts{}, fmt.Errorf("%w: item %d quantity must be at least 1", domain.ErrInvalidInput, i+1)
		}
		if l.UnitRate < 0 {
			return Amounts{}, fmt.Errorf("%w: item %d rate must not be negative", domain.ErrInvalidInput, i+1)
		}
		subtotal += LineAmount(l)
	}
	tax := TaxAmount(subtotal, rate)
	return Amounts{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal + tax,
	}, nil
}
