package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Coupons provides persistence for discount codes and their usage records.
type Coupons struct {
	DB DBTX
}

// WithTx returns a copy of the repository bound to the provided transaction.
func (r Coupons) WithTx(tx pgx.Tx) Coupons {
	return Coupons{DB: tx}
}

const couponColumns = `id, code, percent_bps, min_spend, usage_limit, used_count,
	per_user_limit, valid_from, valid_to, created_at`

func scanCoupon(row pgx.Row) (Coupon, error) {
	var c Coupon
	err := row.Scan(&c.ID, &c.Code, &c.PercentBps, &c.MinSpend, &c.UsageLimit, &c.UsedCount,
		&c.PerUserLimit, &c.ValidFrom, &c.ValidTo, &c.CreatedAt)
	return c, err
}

// GetCouponByCode loads a coupon by its (case-insensitive) code.
func (r Coupons) GetCouponByCode(ctx context.Context, code string) (Coupon, error) {
	return scanCoupon(r.DB.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons
		WHERE upper(code) = upper($1)`, code))
}

// GetCouponByCodeForUpdate loads a coupon with a row lock for settlement.
func (r Coupons) GetCouponByCodeForUpdate(ctx context.Context, code string) (Coupon, error) {
	return scanCoupon(r.DB.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons
		WHERE upper(code) = upper($1) FOR UPDATE`, code))
}

// CreateCouponParams describes a new discount code.
type CreateCouponParams struct {
	Code         string
	PercentBps   int32
	MinSpend     int64
	UsageLimit   pgtype.Int4
	PerUserLimit pgtype.Int4
	ValidFrom    pgtype.Timestamptz
	ValidTo      pgtype.Timestamptz
}

// CreateCoupon inserts a coupon definition.
func (r Coupons) CreateCoupon(ctx context.Context, arg CreateCouponParams) (Coupon, error) {
	row := r.DB.QueryRow(ctx, `INSERT INTO coupons (
		code, percent_bps, min_spend, usage_limit, per_user_limit, valid_from, valid_to
	) VALUES ($1,$2,$3,$4,$5,$6,$7)
	RETURNING `+couponColumns,
		arg.Code, arg.PercentBps, arg.MinSpend, arg.UsageLimit, arg.PerUserLimit, arg.ValidFrom, arg.ValidTo)
	return scanCoupon(row)
}

// CountCouponUsageByUser returns the number of settled redemptions for a user.
func (r Coupons) CountCouponUsageByUser(ctx context.Context, couponID, userID pgtype.UUID) (int64, error) {
	var count int64
	err := r.DB.QueryRow(ctx, `SELECT count(*) FROM coupon_usages
		WHERE coupon_id = $1 AND user_id = $2`, couponID, userID).Scan(&count)
	return count, err
}

// GetCouponUsageByOrder returns the settlement record for an order, if any.
func (r Coupons) GetCouponUsageByOrder(ctx context.Context, couponID, orderID pgtype.UUID) (CouponUsage, error) {
	var u CouponUsage
	err := r.DB.QueryRow(ctx, `SELECT id, coupon_id, order_id, user_id, amount, created_at
		FROM coupon_usages WHERE coupon_id = $1 AND order_id = $2`, couponID, orderID).
		Scan(&u.ID, &u.CouponID, &u.OrderID, &u.UserID, &u.Amount, &u.CreatedAt)
	return u, err
}

// InsertCouponUsage records a settled redemption.
func (r Coupons) InsertCouponUsage(ctx context.Context, couponID, orderID, userID pgtype.UUID, amount int64) error {
	_, err := r.DB.Exec(ctx, `INSERT INTO coupon_usages (coupon_id, order_id, user_id, amount)
		VALUES ($1,$2,$3,$4)`, couponID, orderID, userID, amount)
	return err
}

// IncrementCouponUsedCount bumps the global usage counter.
func (r Coupons) IncrementCouponUsedCount(ctx context.Context, id pgtype.UUID) error {
	_, err := r.DB.Exec(ctx, `UPDATE coupons SET used_count = used_count + 1 WHERE id = $1`, id)
	return err
}
