package pricing

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// Tier is one volume discount threshold.
type Tier struct {
	MinQty     int    `json:"minQty"`
	PercentBps int    `json:"percentBps"`
	Label      string `json:"label"`
}

// TierSet is a normalised, ascending-by-MinQty list of tiers.
type TierSet []Tier

// ParseTiers normalises an arbitrary JSON tier list into a TierSet. Malformed
// input or entries yield an empty set rather than an error so a bad
// configuration value degrades to "no volume discount".
func ParseTiers(raw string) TierSet {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	var entries []Tier
	if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
		return nil
	}
	return NormalizeTiers(entries)
}

// NormalizeTiers drops invalid entries, clamps percentages and sorts ascending
// by minimum quantity.
func NormalizeTiers(entries []Tier) TierSet {
	out := make(TierSet, 0, len(entries))
	for _, t := range entries {
		if t.MinQty < 1 {
			continue
		}
		t.PercentBps = clampBps(t.PercentBps)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinQty < out[j].MinQty })
	return out
}

// Resolve returns the tier with the highest minimum quantity not exceeding qty.
func (s TierSet) Resolve(qty int) (Tier, bool) {
	if qty < 1 {
		return Tier{}, false
	}
	var (
		best  Tier
		found bool
	)
	for _, t := range s {
		if t.MinQty <= qty {
			best = t
			found = true
		}
	}
	return best, found
}

// TierSource supplies per-product tier overrides.
type TierSource interface {
	TiersForProduct(ctx context.Context, productID pgtype.UUID) (TierSet, error)
}

// Resolver resolves the applicable volume discount for a product and quantity.
type Resolver struct {
	Enabled bool
	Default TierSet
	Source  TierSource
}

// Resolve returns the volume discount in basis points plus the applied tier
// label. A disabled feature, non-positive quantity, missing tiers or a failing
// source all resolve to zero.
func (r Resolver) Resolve(ctx context.Context, productID pgtype.UUID, qty int) (int, string) {
	if !r.Enabled || qty < 1 {
		return 0, ""
	}
	tiers := r.Default
	if r.Source != nil && productID.Valid {
		if override, err := r.Source.TiersForProduct(ctx, productID); err == nil && len(override) > 0 {
			tiers = override
		}
	}
	tier, ok := tiers.Resolve(qty)
	if !ok {
		return 0, ""
	}
	return tier.PercentBps, tier.Label
}
