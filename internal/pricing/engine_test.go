package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPriceItemSellerThenVolume(t *testing.T) {
	// base 100.00, seller 10%, qty 5, volume 5%
	item := Item{Qty: 5, UnitPrice: 10_000, SellerDiscountBps: 1000}
	priced := PriceItem(item, 500, "5+")

	require.Equal(t, int64(9_000), priced.UnitAfterSeller)
	require.Equal(t, int64(8_550), priced.FinalUnitPrice)
	require.Equal(t, int64(42_750), priced.LineSubtotal)
	require.Equal(t, int64(7_250), priced.Savings)
	require.Equal(t, "5+", priced.TierLabel)
}

func TestPriceItemOrderingMatters(t *testing.T) {
	// The two bps factors commute in exact arithmetic, but each step
	// truncates to whole cents and the breakdown attributes savings to the
	// step that produced them. Swapping seller and volume therefore shifts
	// the attribution, and when truncation bites, the final cent too.
	item := Item{Qty: 1, UnitPrice: 9_999, SellerDiscountBps: 1_333}
	specified := PriceItem(item, 777, "")

	reversed := Item{Qty: 1, UnitPrice: 9_999, SellerDiscountBps: 777}
	swapped := PriceItem(reversed, 1_333, "")

	require.Equal(t, int64(8_666), specified.UnitAfterSeller)
	require.Equal(t, int64(9_222), swapped.UnitAfterSeller)
	require.NotEqual(t, item.UnitPrice-specified.UnitAfterSeller,
		item.UnitPrice-swapped.UnitAfterSeller,
		"seller discount attribution must follow the seller-then-volume order")

	// 999 cents, 0.01% seller then 50% volume: 999 -> 998 -> 499.
	// Swapped: 999 -> 499 -> 498. The intermediate truncation is observable.
	cheap := PriceItem(Item{Qty: 1, UnitPrice: 999, SellerDiscountBps: 1}, 5_000, "")
	cheapSwapped := PriceItem(Item{Qty: 1, UnitPrice: 999, SellerDiscountBps: 5_000}, 1, "")
	require.Equal(t, int64(499), cheap.FinalUnitPrice)
	require.Equal(t, int64(498), cheapSwapped.FinalUnitPrice)
}

func TestPriceItemClampsPercentages(t *testing.T) {
	priced := PriceItem(Item{Qty: 2, UnitPrice: 1_000, SellerDiscountBps: 15_000}, -50, "")
	require.Equal(t, int64(0), priced.UnitAfterSeller)
	require.Equal(t, int64(0), priced.FinalUnitPrice)
	require.GreaterOrEqual(t, priced.FinalUnitPrice, int64(0))
}

func TestPriceItemNoTierLabelWithoutDiscount(t *testing.T) {
	priced := PriceItem(Item{Qty: 1, UnitPrice: 1_000}, 0, "ignored")
	require.Empty(t, priced.TierLabel)
}

func defaultConfig() Config {
	return Config{TaxBps: 1_500, ShippingCost: 500, FreeShippingThreshold: 5_000, Currency: "USD"}
}

func TestAggregateInvariant(t *testing.T) {
	items := []PricedItem{
		PriceItem(Item{Qty: 5, UnitPrice: 10_000, SellerDiscountBps: 1_000}, 500, "5+"),
		PriceItem(Item{Qty: 2, UnitPrice: 3_333, SellerDiscountBps: 0}, 0, ""),
	}
	coupon := CouponInfo{Code: "PROMO", Applied: true, Valid: true, PercentBps: 1_000}
	totals := Aggregate(items, coupon, defaultConfig())

	require.Equal(t, totals.Total,
		totals.Subtotal-totals.SellerDiscount-totals.VolumeDiscount-totals.CouponDiscount+totals.Tax+totals.ShippingCost)
	require.Equal(t, totals.SubtotalWithDiscounts, totals.Subtotal-totals.SellerDiscount-totals.VolumeDiscount)
}

func TestAggregateDeterministic(t *testing.T) {
	items := []PricedItem{
		PriceItem(Item{Qty: 3, UnitPrice: 7_777, SellerDiscountBps: 450}, 250, "3+"),
	}
	coupon := CouponInfo{Applied: true, Valid: true, PercentBps: 500}
	first := Aggregate(items, coupon, defaultConfig())
	second := Aggregate(items, coupon, defaultConfig())
	require.Equal(t, first, second)
}

func TestAggregateFreeShippingThreshold(t *testing.T) {
	cfg := defaultConfig() // threshold 50.00

	at := Aggregate([]PricedItem{PriceItem(Item{Qty: 1, UnitPrice: 5_000}, 0, "")}, CouponInfo{}, cfg)
	require.True(t, at.FreeShipping)
	require.Equal(t, int64(0), at.ShippingCost)

	below := Aggregate([]PricedItem{PriceItem(Item{Qty: 1, UnitPrice: 4_999}, 0, "")}, CouponInfo{}, cfg)
	require.False(t, below.FreeShipping)
	require.Equal(t, int64(500), below.ShippingCost)
}

func TestAggregateInvalidCouponIsZeroDiscount(t *testing.T) {
	items := []PricedItem{PriceItem(Item{Qty: 1, UnitPrice: 10_000}, 0, "")}
	coupon := CouponInfo{Code: "EXPIRED", Applied: false, Valid: false, Reason: "coupon expired"}
	totals := Aggregate(items, coupon, defaultConfig())
	require.Equal(t, int64(0), totals.CouponDiscount)
	require.False(t, totals.Coupon.Valid)
	require.Equal(t, "coupon expired", totals.Coupon.Reason)
}

func TestAggregateCouponCappedAtSubtotal(t *testing.T) {
	items := []PricedItem{PriceItem(Item{Qty: 1, UnitPrice: 100}, 0, "")}
	coupon := CouponInfo{Applied: true, Valid: true, PercentBps: 10_000}
	totals := Aggregate(items, coupon, Config{TaxBps: 1_500, ShippingCost: 500})
	require.Equal(t, totals.SubtotalWithDiscounts, totals.CouponDiscount)
	require.Equal(t, int64(0), totals.SubtotalAfterCoupon)
}

func TestAggregateSkipsNonPositiveQty(t *testing.T) {
	items := []PricedItem{
		PriceItem(Item{Qty: 0, UnitPrice: 10_000}, 0, ""),
		PriceItem(Item{Qty: 1, UnitPrice: 1_000}, 0, ""),
	}
	totals := Aggregate(items, CouponInfo{}, Config{})
	require.Equal(t, int64(1_000), totals.Subtotal)
}
