package coupon

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/kevinvillajim/bcommerce-core/internal/pricing"
	"github.com/kevinvillajim/bcommerce-core/internal/repo"
)

// Querier captures the database methods required by the coupon service.
type Querier interface {
	GetCouponByCode(ctx context.Context, code string) (repo.Coupon, error)
	GetCouponByCodeForUpdate(ctx context.Context, code string) (repo.Coupon, error)
	CountCouponUsageByUser(ctx context.Context, couponID, userID pgtype.UUID) (int64, error)
	GetCouponUsageByOrder(ctx context.Context, couponID, orderID pgtype.UUID) (repo.CouponUsage, error)
	InsertCouponUsage(ctx context.Context, couponID, orderID, userID pgtype.UUID, amount int64) error
	IncrementCouponUsedCount(ctx context.Context, id pgtype.UUID) error
}

// Service evaluates discount codes during quoting and settles redemptions when
// an order is paid. Evaluation never fails a quote: every rejection is mapped
// to a CouponInfo with Valid=false and a reason.
type Service struct {
	Q                   Querier
	Log                 zerolog.Logger
	Now                 func() time.Time
	DefaultPerUserLimit int
}

// Resolve evaluates a discount code for the given user and discounted
// subtotal. It implements pricing.CouponResolver.
func (s *Service) Resolve(ctx context.Context, code, userID string, subtotal pricing.Money) pricing.CouponInfo {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		return pricing.CouponInfo{}
	}
	info := pricing.CouponInfo{Code: trimmed}
	if s == nil || s.Q == nil {
		info.Reason = "coupons unavailable"
		return info
	}
	c, err := s.Q.GetCouponByCode(ctx, trimmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			info.Reason = Reason(ErrNotFound)
		} else {
			s.Log.Error().Err(err).Str("code", trimmed).Msg("coupon lookup failed")
			info.Reason = "coupon unavailable"
		}
		return info
	}
	rule := s.ruleFromModel(c)
	if rule.PerUserLimit > 0 && userID != "" {
		uid, uidErr := repo.ToUUID(userID)
		if uidErr == nil {
			used, countErr := s.Q.CountCouponUsageByUser(ctx, c.ID, uid)
			if countErr != nil {
				s.Log.Error().Err(countErr).Str("code", trimmed).Msg("coupon usage count failed")
				info.Reason = "coupon unavailable"
				return info
			}
			rule.PerUserUsed = int32(used)
		}
	}
	if err := rule.Validate(s.now(), subtotal); err != nil {
		info.Reason = Reason(err)
		return info
	}
	info.Applied = true
	info.Valid = true
	info.PercentBps = rule.PercentBps
	return info
}

// Settle records a redemption once an order transitions to PAID. It takes the
// coupon row lock, so it must run inside the payment transaction. Settling the
// same order twice is a no-op.
func (s *Service) Settle(ctx context.Context, q Querier, code string, orderID, userID pgtype.UUID, amount int64) error {
	if q == nil {
		q = s.Q
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" || !orderID.Valid {
		return nil
	}
	if amount < 0 {
		amount = 0
	}
	c, err := q.GetCouponByCodeForUpdate(ctx, trimmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if _, err := q.GetCouponUsageByOrder(ctx, c.ID, orderID); err == nil {
		return nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if err := q.InsertCouponUsage(ctx, c.ID, orderID, userID, amount); err != nil {
		return err
	}
	return q.IncrementCouponUsedCount(ctx, c.ID)
}

func (s *Service) ruleFromModel(c repo.Coupon) Rule {
	rule := Rule{
		Code:       c.Code,
		PercentBps: int(c.PercentBps),
		MinSpend:   c.MinSpend,
		UsedCount:  c.UsedCount,
	}
	if c.UsageLimit.Valid {
		limit := c.UsageLimit.Int32
		rule.UsageLimit = &limit
	}
	if c.PerUserLimit.Valid && c.PerUserLimit.Int32 > 0 {
		rule.PerUserLimit = c.PerUserLimit.Int32
	} else if s.DefaultPerUserLimit > 0 {
		rule.PerUserLimit = int32(s.DefaultPerUserLimit)
	}
	if c.ValidFrom.Valid {
		rule.ValidFrom = &c.ValidFrom.Time
	}
	if c.ValidTo.Valid {
		rule.ValidTo = &c.ValidTo.Time
	}
	return rule
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
