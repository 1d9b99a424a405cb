package pricing

import "context"

// CouponResolver looks up a discount code for a user. Implementations must
// report invalid codes through CouponInfo, not through errors.
type CouponResolver interface {
	Resolve(ctx context.Context, code, userID string, subtotal Money) CouponInfo
}

// Service computes quotes: it resolves volume tiers per item, prices each
// line, resolves an optional coupon and aggregates totals. Totals are computed
// fresh on every call; nothing is cached because discount configuration and
// prices may change between requests.
type Service struct {
	Tiers   Resolver
	Coupons CouponResolver
	Cfg     Config
}

// Price applies seller and volume discounts to every item.
func (s *Service) Price(ctx context.Context, items []Item) []PricedItem {
	priced := make([]PricedItem, 0, len(items))
	for _, it := range items {
		bps, label := s.Tiers.Resolve(ctx, it.ProductID, it.Qty)
		priced = append(priced, PriceItem(it, bps, label))
	}
	return priced
}

// Quote prices the items and aggregates totals, applying couponCode when
// provided. A bad coupon never fails the quote; it is reported in
// Totals.Coupon with Valid=false.
func (s *Service) Quote(ctx context.Context, userID string, items []Item, couponCode string) (Totals, []PricedItem) {
	priced := s.Price(ctx, items)
	var subtotal Money
	for _, it := range priced {
		subtotal += it.LineSubtotal
	}
	coupon := CouponInfo{}
	if couponCode != "" {
		if s.Coupons != nil {
			coupon = s.Coupons.Resolve(ctx, couponCode, userID, subtotal)
		} else {
			coupon = CouponInfo{Code: couponCode, Applied: false, Valid: false, Reason: "coupons unavailable"}
		}
	}
	return Aggregate(priced, coupon, s.Cfg), priced
}
