package billing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitabu/billing-api/internal/domain"
	"github.com/kitabu/billing-api/internal/domain/billing"
)

// ──────────────────────────────────────────────────────────────────────────────
// Compute: amount invariants
// ──────────────────────────────────────────────────────────────────────────────

// A KES invoice with one line {qty:2, rate:1000} at 1.5% must come out as
// subtotal 2000, tax 30, total 2030.
func TestCompute_KESLineItem(t *testing.T) {
	amounts, err := billing.Compute(
		[]billing.LineInput{{Description: "Consulting", Quantity: 2, UnitRate: 1000}},
		decimal.NewFromFloat(1.5),
	)
	require.NoError(t, err)

	assert.Equal(t, int64(2000), amounts.Subtotal)
	assert.Equal(t, int64(30), amounts.TaxAmount)
	assert.Equal(t, int64(2030), amounts.Total)
}

func TestCompute_TotalInvariantHolds(t *testing.T) {
	cases := []struct {
		name  string
		items []billing.LineInput
		rate  decimal.Decimal
	}{
		{"zero rate", []billing.LineInput{{Description: "a", Quantity: 1, UnitRate: 999}}, decimal.Zero},
		{"single item", []billing.LineInput{{Description: "a", Quantity: 3, UnitRate: 333}}, decimal.NewFromFloat(1.5)},
		{"multiple items", []billing.LineInput{
			{Description: "a", Quantity: 1, UnitRate: 100},
			{Description: "b", Quantity: 7, UnitRate: 1},
			{Description: "c", Quantity: 2, UnitRate: 50000},
		}, decimal.NewFromFloat(16)},
		{"free item", []billing.LineInput{{Description: "a", Quantity: 5, UnitRate: 0}}, decimal.NewFromFloat(1.5)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amounts, err := billing.Compute(tc.items, tc.rate)
			require.NoError(t, err)

			var subtotal int64
			for _, l := range tc.items {
				subtotal += l.Quantity * l.UnitRate
			}
			assert.Equal(t, subtotal, amounts.Subtotal)
			assert.Equal(t, billing.TaxAmount(subtotal, tc.rate), amounts.TaxAmount)
			assert.Equal(t, amounts.Subtotal+amounts.TaxAmount, amounts.Total,
				"total must equal subtotal + tax")
		})
	}
}

// The documented rounding rule is round-half-up.
func TestTaxAmount_RoundsHalfUp(t *testing.T) {
	rate := decimal.NewFromFloat(1.5)

	// 1633 * 1.5% = 24.495 -> 24; 1700 * 1.5% = 25.5 -> 26
	assert.Equal(t, int64(24), billing.TaxAmount(1633, rate))
	assert.Equal(t, int64(26), billing.TaxAmount(1700, rate))
	// Exact halves round up, not to even.
	assert.Equal(t, int64(1), billing.TaxAmount(50, decimal.NewFromInt(1))) // 0.5 -> 1
}

func TestCompute_RejectsBadInput(t *testing.T) {
	rate := decimal.NewFromFloat(1.5)

	cases := []struct {
		name  string
		items []billing.LineInput
	}{
		{"no items", nil},
		{"zero quantity", []billing.LineInput{{Description: "a", Quantity: 0, UnitRate: 100}}},
		{"negative rate", []billing.LineInput{{Description: "a", Quantity: 1, UnitRate: -5}}},
		{"missing description", []billing.LineInput{{Quantity: 1, UnitRate: 100}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := billing.Compute(tc.items, rate)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}
