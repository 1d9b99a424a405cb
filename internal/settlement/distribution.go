package settlement

import (
	"fmt"

	"github.com/kevinvillajim/bcommerce-core/internal/common"
)

// Config controls how an order's shipping revenue is split between sellers
// and the platform. Percentages are basis points of the shipping total.
type Config struct {
	Enabled         bool
	SingleSellerBps int
	PerSellerBps    int
}

// Distribution is the outcome of splitting one order's shipping total.
// The figures always satisfy SellerShare*SellerCount + PlatformShare == Total.
type Distribution struct {
	Total         int64 `json:"total"`
	SellerCount   int   `json:"sellerCount"`
	SellerShare   int64 `json:"sellerShare"`
	PlatformShare int64 `json:"platformShare"`
}

// Distribute splits the shipping total across the order's sellers. With the
// split disabled the platform keeps everything. A configuration whose
// per-seller percentages sum past 100% yields a negative platform share,
// which is rejected rather than clamped so the misconfiguration is visible.
func Distribute(total int64, sellerCount int, cfg Config) (Distribution, error) {
	d := Distribution{Total: total, SellerCount: sellerCount}
	if total < 0 {
		return d, common.ValidationError("shipping total cannot be negative", nil)
	}
	if !cfg.Enabled || sellerCount <= 0 || total == 0 {
		d.PlatformShare = total
		return d, nil
	}
	bps := cfg.PerSellerBps
	if sellerCount == 1 {
		bps = cfg.SingleSellerBps
	}
	if bps < 0 || bps > 10000 {
		return d, common.ConfigurationError(fmt.Sprintf("shipping split percentage out of range: %d bps", bps), nil)
	}
	d.SellerShare = total * int64(bps) / 10000
	d.PlatformShare = total - d.SellerShare*int64(sellerCount)
	if d.PlatformShare < 0 {
		return Distribution{Total: total, SellerCount: sellerCount}, common.ConfigurationError(
			fmt.Sprintf("shipping split exceeds total: %d sellers at %d bps", sellerCount, bps), nil)
	}
	return d, nil
}
