package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Orders provides persistence for orders, seller orders and order items.
type Orders struct {
	DB DBTX
}

// WithTx returns a copy of the repository bound to the provided transaction.
func (r Orders) WithTx(tx pgx.Tx) Orders {
	return Orders{DB: tx}
}

// CreateOrderParams captures the frozen pricing snapshot written at checkout.
type CreateOrderParams struct {
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
}

const orderColumns = `id, order_number, user_id, status, currency,
	pricing_subtotal, pricing_seller_discount, pricing_volume_discount,
	pricing_coupon_discount, pricing_tax, pricing_shipping, pricing_total,
	pricing_snapshot, shipping_address, billing_address, applied_coupon_code,
	created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.Currency,
		&o.PricingSubtotal, &o.PricingSellerDiscount, &o.PricingVolumeDiscount,
		&o.PricingCouponDiscount, &o.PricingTax, &o.PricingShipping, &o.PricingTotal,
		&o.PricingSnapshot, &o.ShippingAddress, &o.BillingAddress, &o.AppliedCouponCode,
		&o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// CreateOrder inserts a new order and returns the stored row.
func (r Orders) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := r.DB.QueryRow(ctx, `INSERT INTO orders (
		order_number, user_id, status, currency,
		pricing_subtotal, pricing_seller_discount, pricing_volume_discount,
		pricing_coupon_discount, pricing_tax, pricing_shipping, pricing_total,
		pricing_snapshot, shipping_address, billing_address, applied_coupon_code
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	RETURNING `+orderColumns,
		arg.OrderNumber, arg.UserID, arg.Status, arg.Currency,
		arg.PricingSubtotal, arg.PricingSellerDiscount, arg.PricingVolumeDiscount,
		arg.PricingCouponDiscount, arg.PricingTax, arg.PricingShipping, arg.PricingTotal,
		arg.PricingSnapshot, arg.ShippingAddress, arg.BillingAddress, arg.AppliedCouponCode)
	return scanOrder(row)
}

// GetOrderByID loads an order by identifier.
func (r Orders) GetOrderByID(ctx context.Context, id pgtype.UUID) (Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// GetOrderForUpdate loads an order acquiring a row-level lock. Webhook
// processing for the same order must serialise on this lock.
func (r Orders) GetOrderForUpdate(ctx context.Context, id pgtype.UUID) (Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

// ListOrdersByUser returns a page of the user's orders, newest first.
func (r Orders) ListOrdersByUser(ctx context.Context, userID pgtype.UUID, limit, offset int32) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountOrdersByUser returns the user's total order count for pagination.
func (r Orders) CountOrdersByUser(ctx context.Context, userID pgtype.UUID) (int64, error) {
	var count int64
	err := r.DB.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

// UpdateOrderStatus transitions the order to the provided status.
func (r Orders) UpdateOrderStatus(ctx context.Context, id pgtype.UUID, status OrderStatus) error {
	_, err := r.DB.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

const sellerOrderColumns = `id, order_id, seller_id, total, shipping_share,
	status, delivery_status, courier, tracking_number, created_at, updated_at`

func scanSellerOrder(row pgx.Row) (SellerOrder, error) {
	var so SellerOrder
	err := row.Scan(&so.ID, &so.OrderID, &so.SellerID, &so.Total, &so.ShippingShare,
		&so.Status, &so.DeliveryStatus, &so.Courier, &so.TrackingNumber, &so.CreatedAt, &so.UpdatedAt)
	return so, err
}

// CreateSellerOrderParams describes one per-seller partition of an order.
type CreateSellerOrderParams struct {
	OrderID       pgtype.UUID
	SellerID      pgtype.UUID
	Total         int64
	ShippingShare int64
	Status        OrderStatus
}

// CreateSellerOrder inserts a seller order row.
func (r Orders) CreateSellerOrder(ctx context.Context, arg CreateSellerOrderParams) (SellerOrder, error) {
	row := r.DB.QueryRow(ctx, `INSERT INTO seller_orders (
		order_id, seller_id, total, shipping_share, status, delivery_status
	) VALUES ($1,$2,$3,$4,$5,$6)
	RETURNING `+sellerOrderColumns,
		arg.OrderID, arg.SellerID, arg.Total, arg.ShippingShare, arg.Status, DeliveryStatusProcessing)
	return scanSellerOrder(row)
}

// ListSellerOrdersByOrder returns the seller orders belonging to a parent order.
func (r Orders) ListSellerOrdersByOrder(ctx context.Context, orderID pgtype.UUID) ([]SellerOrder, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+sellerOrderColumns+` FROM seller_orders
		WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SellerOrder
	for rows.Next() {
		so, err := scanSellerOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, so)
	}
	return out, rows.Err()
}

// ListPaidSellerOrdersBySeller returns settled seller orders for earnings aggregation.
func (r Orders) ListPaidSellerOrdersBySeller(ctx context.Context, sellerID pgtype.UUID) ([]SellerOrder, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+sellerOrderColumns+` FROM seller_orders
		WHERE seller_id = $1 AND status = $2 ORDER BY created_at DESC`, sellerID, OrderStatusPaid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SellerOrder
	for rows.Next() {
		so, err := scanSellerOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, so)
	}
	return out, rows.Err()
}

// GetSellerOrderByID loads a single seller order.
func (r Orders) GetSellerOrderByID(ctx context.Context, id pgtype.UUID) (SellerOrder, error) {
	return scanSellerOrder(r.DB.QueryRow(ctx, `SELECT `+sellerOrderColumns+` FROM seller_orders WHERE id = $1`, id))
}

// UpdateSellerOrderStatus mirrors a payment-side transition onto all seller orders of the parent.
func (r Orders) UpdateSellerOrderStatus(ctx context.Context, orderID pgtype.UUID, status OrderStatus) error {
	_, err := r.DB.Exec(ctx, `UPDATE seller_orders SET status = $2, updated_at = now() WHERE order_id = $1`, orderID, status)
	return err
}

// UpdateSellerOrderDeliveryParams transitions fulfillment state with optional tracking data.
type UpdateSellerOrderDeliveryParams struct {
	ID             pgtype.UUID
	DeliveryStatus DeliveryStatus
	Courier        pgtype.Text
	TrackingNumber pgtype.Text
}

// UpdateSellerOrderDelivery records a delivery status transition.
func (r Orders) UpdateSellerOrderDelivery(ctx context.Context, arg UpdateSellerOrderDeliveryParams) error {
	_, err := r.DB.Exec(ctx, `UPDATE seller_orders SET delivery_status = $2,
		courier = COALESCE(NULLIF($3, ''), courier),
		tracking_number = COALESCE(NULLIF($4, ''), tracking_number),
		updated_at = now() WHERE id = $1`,
		arg.ID, arg.DeliveryStatus, arg.Courier.String, arg.TrackingNumber.String)
	return err
}

// GetSellerOrderByTracking finds a seller order by courier tracking number.
func (r Orders) GetSellerOrderByTracking(ctx context.Context, trackingNumber string) (SellerOrder, error) {
	return scanSellerOrder(r.DB.QueryRow(ctx, `SELECT `+sellerOrderColumns+` FROM seller_orders
		WHERE tracking_number = $1`, trackingNumber))
}

const orderItemColumns = `id, order_id, seller_order_id, product_id, seller_id,
	qty, unit_price, final_unit_price, line_subtotal, savings,
	seller_discount_bps, volume_bps, tier_label`

// CreateOrderItemParams is a priced line frozen at checkout.
type CreateOrderItemParams struct {
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

// CreateOrderItem inserts one order line.
func (r Orders) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) error {
	_, err := r.DB.Exec(ctx, `INSERT INTO order_items (
		order_id, seller_order_id, product_id, seller_id, qty, unit_price,
		final_unit_price, line_subtotal, savings, seller_discount_bps, volume_bps, tier_label
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		arg.OrderID, arg.SellerOrderID, arg.ProductID, arg.SellerID, arg.Qty, arg.UnitPrice,
		arg.FinalUnitPrice, arg.LineSubtotal, arg.Savings, arg.SellerDiscountBps, arg.VolumeBps, arg.TierLabel)
	return err
}

// ListOrderItems returns the lines of an order.
func (r Orders) ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderItemColumns+` FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.SellerOrderID, &it.ProductID, &it.SellerID,
			&it.Qty, &it.UnitPrice, &it.FinalUnitPrice, &it.LineSubtotal, &it.Savings,
			&it.SellerDiscountBps, &it.VolumeBps, &it.TierLabel); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
