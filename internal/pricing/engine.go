package pricing

import "github.com/jackc/pgx/v5/pgtype"

// Money represents a monetary value stored in minor units.
type Money = int64

// Item describes a cart line as submitted for pricing. Items are
// request-scoped: constructed per call and never persisted.
type Item struct {
	ProductID         pgtype.UUID
	SellerID          pgtype.UUID
	Qty               int
	UnitPrice         Money
	SellerDiscountBps int
	Attributes        map[string]string
}

// PricedItem is the result of applying seller and volume discounts to an Item.
type PricedItem struct {
	Item
	UnitAfterSeller Money
	FinalUnitPrice  Money
	LineBase        Money
	LineSubtotal    Money
	Savings         Money
	VolumeBps       int
	TierLabel       string
}

// CouponInfo reports the outcome of a discount-code lookup. An invalid code is
// an expected result, not an error: checkout proceeds with zero discount.
type CouponInfo struct {
	Code       string `json:"code,omitempty"`
	Applied    bool   `json:"applied"`
	Valid      bool   `json:"valid"`
	Reason     string `json:"reason,omitempty"`
	PercentBps int    `json:"percentBps,omitempty"`
}

// Config is the immutable pricing configuration snapshot used for one
// computation. Callers build it once per request so results are reproducible.
type Config struct {
	TaxBps                int
	ShippingCost          Money
	FreeShippingThreshold Money
	Currency              string
}

// Totals is the full pricing breakdown. Every intermediate figure is kept so
// downstream consumers and the reconciliation check can inspect each step.
type Totals struct {
	Subtotal              Money      `json:"subtotal"`
	SellerDiscount        Money      `json:"sellerDiscount"`
	VolumeDiscount        Money      `json:"volumeDiscount"`
	SubtotalWithDiscounts Money      `json:"subtotalWithDiscounts"`
	CouponDiscount        Money      `json:"couponDiscount"`
	SubtotalAfterCoupon   Money      `json:"subtotalAfterCoupon"`
	Tax                   Money      `json:"tax"`
	ShippingCost          Money      `json:"shippingCost"`
	FreeShipping          bool       `json:"freeShipping"`
	Total                 Money      `json:"total"`
	Currency              string     `json:"currency"`
	Coupon                CouponInfo `json:"couponInfo"`
}

// PriceItem applies the seller discount and then the volume discount to the
// item's unit price. Each step truncates to whole cents, so the ordering is
// fixed: reversing it shifts the discount attribution and, for some prices,
// the final cent, which would be a compatibility break.
func PriceItem(it Item, volumeBps int, tierLabel string) PricedItem {
	sellerBps := clampBps(it.SellerDiscountBps)
	volumeBps = clampBps(volumeBps)
	unit := it.UnitPrice
	if unit < 0 {
		unit = 0
	}
	afterSeller := unit * int64(10000-sellerBps) / 10000
	final := afterSeller * int64(10000-volumeBps) / 10000
	qty := int64(it.Qty)
	if qty < 0 {
		qty = 0
	}
	p := PricedItem{
		Item:            it,
		UnitAfterSeller: afterSeller,
		FinalUnitPrice:  final,
		LineBase:        unit * qty,
		LineSubtotal:    final * qty,
		Savings:         (unit - final) * qty,
		VolumeBps:       volumeBps,
	}
	if volumeBps > 0 {
		p.TierLabel = tierLabel
	}
	return p
}

// Aggregate sums per-item figures, applies the coupon, and computes tax and
// shipping. The invariant
//
//	Total = Subtotal - SellerDiscount - VolumeDiscount - CouponDiscount + Tax + ShippingCost
//
// holds exactly in minor units.
func Aggregate(items []PricedItem, coupon CouponInfo, cfg Config) Totals {
	t := Totals{Currency: cfg.Currency, Coupon: coupon}
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		qty := int64(it.Qty)
		t.Subtotal += it.LineBase
		t.SellerDiscount += (it.UnitPrice - it.UnitAfterSeller) * qty
		t.VolumeDiscount += (it.UnitAfterSeller - it.FinalUnitPrice) * qty
		t.SubtotalWithDiscounts += it.LineSubtotal
	}
	if coupon.Applied && coupon.Valid && coupon.PercentBps > 0 {
		t.CouponDiscount = t.SubtotalWithDiscounts * int64(clampBps(coupon.PercentBps)) / 10000
		if t.CouponDiscount > t.SubtotalWithDiscounts {
			t.CouponDiscount = t.SubtotalWithDiscounts
		}
	}
	t.SubtotalAfterCoupon = t.SubtotalWithDiscounts - t.CouponDiscount
	t.Tax = t.SubtotalAfterCoupon * int64(cfg.TaxBps) / 10000
	// A non-positive threshold means the free-shipping promotion is disabled.
	if cfg.FreeShippingThreshold > 0 && t.SubtotalAfterCoupon >= cfg.FreeShippingThreshold {
		t.FreeShipping = true
	} else {
		t.ShippingCost = cfg.ShippingCost
	}
	t.Total = t.SubtotalAfterCoupon + t.Tax + t.ShippingCost
	return t
}

func clampBps(bps int) int {
	if bps < 0 {
		return 0
	}
	if bps > 10000 {
		return 10000
	}
	return bps
}
