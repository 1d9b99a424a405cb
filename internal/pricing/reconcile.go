package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultTolerance is the accepted absolute difference in minor units between
// client-submitted and server-computed figures.
const DefaultTolerance Money = 1

// DeclaredTotals carries client-submitted figures as decimal strings. Only the
// total is required; the rest are compared when present.
type DeclaredTotals struct {
	Subtotal string `json:"subtotal,omitempty"`
	Tax      string `json:"tax,omitempty"`
	Shipping string `json:"shipping,omitempty"`
	Total    string `json:"total"`
}

// Mismatch reports a single field disagreement in minor units.
type Mismatch struct {
	Field    string `json:"field"`
	Declared Money  `json:"declared"`
	Computed Money  `json:"computed"`
}

// ReconcileResult summarises the comparison between client and server totals.
// A mismatch is reported, never fatal: the server-computed figures always win.
type ReconcileResult struct {
	Checked    bool       `json:"checked"`
	Matches    bool       `json:"matches"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// Reconcile recomputes nothing; it compares already-computed Totals against
// the client's declared figures within the provided tolerance.
func Reconcile(computed Totals, declared DeclaredTotals, tolerance Money) ReconcileResult {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	res := ReconcileResult{Matches: true}
	compare := func(field, raw string, computedValue Money) {
		cents, ok := parseCents(raw)
		if !ok {
			return
		}
		res.Checked = true
		delta := cents - computedValue
		if delta < 0 {
			delta = -delta
		}
		if delta > tolerance {
			res.Matches = false
			res.Mismatches = append(res.Mismatches, Mismatch{Field: field, Declared: cents, Computed: computedValue})
		}
	}
	compare("subtotal", declared.Subtotal, computed.SubtotalWithDiscounts)
	compare("tax", declared.Tax, computed.Tax)
	compare("shipping", declared.Shipping, computed.ShippingCost)
	compare("total", declared.Total, computed.Total)
	return res
}

func parseCents(raw string) (Money, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, false
	}
	return d.Shift(2).Round(0).IntPart(), true
}
