package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// Tiers provides read access to per-product volume discount overrides.
type Tiers struct {
	DB DBTX
}

// ListTiersForProduct returns the override tiers for a product ordered by
// minimum quantity. An empty result means the default tier set applies.
func (r Tiers) ListTiersForProduct(ctx context.Context, productID pgtype.UUID) ([]VolumeTier, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, product_id, min_qty, percent_bps, label
		FROM volume_discount_tiers WHERE product_id = $1 ORDER BY min_qty`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VolumeTier
	for rows.Next() {
		var t VolumeTier
		if err := rows.Scan(&t.ID, &t.ProductID, &t.MinQty, &t.PercentBps, &t.Label); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
