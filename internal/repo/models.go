package repo

import "github.com/jackc/pgx/v5/pgtype"

// OrderStatus enumerates the parent order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// PaymentStatus enumerates payment record states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusPaid      PaymentStatus = "PAID"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// DeliveryStatus enumerates the seller-order fulfillment lifecycle.
type DeliveryStatus string

const (
	DeliveryStatusProcessing     DeliveryStatus = "PROCESSING"
	DeliveryStatusShipped        DeliveryStatus = "SHIPPED"
	DeliveryStatusOutForDelivery DeliveryStatus = "OUT_FOR_DELIVERY"
	DeliveryStatusDelivered      DeliveryStatus = "DELIVERED"
)

// Order is the aggregate root persisted at checkout. Pricing columns are a
// frozen snapshot captured at creation time.
type Order struct {
	ID                    pgtype.UUID
	OrderNumber           string
	UserID                pgtype.UUID
	Status                OrderStatus
	Currency              string
	PricingSubtotal       int64
	PricingSellerDiscount int64
	PricingVolumeDiscount int64
	PricingCouponDiscount int64
	PricingTax            int64
	PricingShipping       int64
	PricingTotal          int64
	PricingSnapshot       []byte
	ShippingAddress       []byte
	BillingAddress        []byte
	AppliedCouponCode     pgtype.Text
	CreatedAt             pgtype.Timestamptz
	UpdatedAt             pgtype.Timestamptz
}

// SellerOrder is the per-seller partition of a parent order.
type SellerOrder struct {
	ID             pgtype.UUID
	OrderID        pgtype.UUID
	SellerID       pgtype.UUID
	Total          int64
	ShippingShare  int64
	Status         OrderStatus
	DeliveryStatus DeliveryStatus
	Courier        pgtype.Text
	TrackingNumber pgtype.Text
	CreatedAt      pgtype.Timestamptz
	UpdatedAt      pgtype.Timestamptz
}

// OrderItem is a priced line item frozen at checkout.
type OrderItem struct {
	ID                pgtype.UUID
	OrderID           pgtype.UUID
	SellerOrderID     pgtype.UUID
	ProductID         pgtype.UUID
	SellerID          pgtype.UUID
	Qty               int32
	UnitPrice         int64
	FinalUnitPrice    int64
	LineSubtotal      int64
	Savings           int64
	SellerDiscountBps int32
	VolumeBps         int32
	TierLabel         pgtype.Text
}

// Payment tracks a single payment attempt against an order.
type Payment struct {
	ID              pgtype.UUID
	OrderID         pgtype.UUID
	Provider        pgtype.Text
	Status          PaymentStatus
	Amount          int64
	IntentToken     pgtype.Text
	RedirectURL     pgtype.Text
	ProviderTxID    pgtype.Text
	ProviderPayload []byte
	ExpiresAt       pgtype.Timestamptz
	CreatedAt       pgtype.Timestamptz
	UpdatedAt       pgtype.Timestamptz
}

// PaymentEvent is an append-only audit trail of payment status changes.
type PaymentEvent struct {
	ID        pgtype.UUID
	PaymentID pgtype.UUID
	Status    PaymentStatus
	Payload   []byte
	CreatedAt pgtype.Timestamptz
}

// Coupon is a discount code definition.
type Coupon struct {
	ID           pgtype.UUID
	Code         string
	PercentBps   int32
	MinSpend     int64
	UsageLimit   pgtype.Int4
	UsedCount    int32
	PerUserLimit pgtype.Int4
	ValidFrom    pgtype.Timestamptz
	ValidTo      pgtype.Timestamptz
	CreatedAt    pgtype.Timestamptz
}

// CouponUsage records settled coupon redemptions, one row per order.
type CouponUsage struct {
	ID        pgtype.UUID
	CouponID  pgtype.UUID
	OrderID   pgtype.UUID
	UserID    pgtype.UUID
	Amount    int64
	CreatedAt pgtype.Timestamptz
}

// VolumeTier is a per-product volume discount override row.
type VolumeTier struct {
	ID         pgtype.UUID
	ProductID  pgtype.UUID
	MinQty     int32
	PercentBps int32
	Label      string
}

// DomainEvent is a persisted domain event.
type DomainEvent struct {
	ID          pgtype.UUID
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
	OccurredAt  pgtype.Timestamptz
}
