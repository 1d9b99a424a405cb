package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReconcileWithinTolerance(t *testing.T) {
	computed := Totals{SubtotalWithDiscounts: 42_750, Tax: 6_413, ShippingCost: 0, Total: 49_163}
	declared := DeclaredTotals{Subtotal: "427.50", Tax: "64.12", Shipping: "0", Total: "491.62"}

	res := Reconcile(computed, declared, DefaultTolerance)
	require.True(t, res.Checked)
	require.True(t, res.Matches)
	require.Empty(t, res.Mismatches)
}

func TestReconcileReportsMismatch(t *testing.T) {
	computed := Totals{SubtotalWithDiscounts: 10_000, Total: 11_500}
	declared := DeclaredTotals{Subtotal: "100.00", Total: "114.50"}

	res := Reconcile(computed, declared, DefaultTolerance)
	require.True(t, res.Checked)
	require.False(t, res.Matches)
	require.Len(t, res.Mismatches, 1)
	require.Equal(t, "total", res.Mismatches[0].Field)
	require.Equal(t, int64(11_450), res.Mismatches[0].Declared)
	require.Equal(t, int64(11_500), res.Mismatches[0].Computed)
}

func TestReconcileSkipsAbsentAndMalformedFields(t *testing.T) {
	computed := Totals{Total: 5_000}

	res := Reconcile(computed, DeclaredTotals{}, DefaultTolerance)
	require.False(t, res.Checked)
	require.True(t, res.Matches)

	res = Reconcile(computed, DeclaredTotals{Total: "fifty"}, DefaultTolerance)
	require.False(t, res.Checked)
	require.True(t, res.Matches)
}

func TestReconcileRoundsHalfUp(t *testing.T) {
	computed := Totals{Total: 1_000}
	res := Reconcile(computed, DeclaredTotals{Total: "9.995"}, DefaultTolerance)
	require.True(t, res.Checked)
	require.True(t, res.Matches)
}
