package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kevinvillajim/bcommerce-core/internal/repo"
)

type stubQueries struct {
	coupon     repo.Coupon
	usageCount int64
	usageErr   error

	settled       bool
	existingUsage bool
	inserted      int
	incremented   int
}

func (s *stubQueries) GetCouponByCode(ctx context.Context, code string) (repo.Coupon, error) {
	if s.coupon.Code == "" {
		return repo.Coupon{}, pgx.ErrNoRows
	}
	return s.coupon, nil
}

func (s *stubQueries) GetCouponByCodeForUpdate(ctx context.Context, code string) (repo.Coupon, error) {
	return s.GetCouponByCode(ctx, code)
}

func (s *stubQueries) CountCouponUsageByUser(ctx context.Context, couponID, userID pgtype.UUID) (int64, error) {
	if s.usageErr != nil {
		return 0, s.usageErr
	}
	return s.usageCount, nil
}

func (s *stubQueries) GetCouponUsageByOrder(ctx context.Context, couponID, orderID pgtype.UUID) (repo.CouponUsage, error) {
	if s.existingUsage {
		return repo.CouponUsage{CouponID: couponID, OrderID: orderID}, nil
	}
	return repo.CouponUsage{}, pgx.ErrNoRows
}

func (s *stubQueries) InsertCouponUsage(ctx context.Context, couponID, orderID, userID pgtype.UUID, amount int64) error {
	s.inserted++
	return nil
}

func (s *stubQueries) IncrementCouponUsedCount(ctx context.Context, id pgtype.UUID) error {
	s.incremented++
	return nil
}

func newCoupon(percentBps int32) repo.Coupon {
	return repo.Coupon{
		ID:         pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Code:       "PROMO",
		PercentBps: percentBps,
		MinSpend:   1_000,
		ValidFrom:  pgtype.Timestamptz{Time: time.Now().Add(-time.Hour), Valid: true},
		ValidTo:    pgtype.Timestamptz{Time: time.Now().Add(time.Hour), Valid: true},
	}
}

func TestResolveValidCoupon(t *testing.T) {
	svc := &Service{Q: &stubQueries{coupon: newCoupon(1_000)}}
	info := svc.Resolve(context.Background(), "promo", "", 5_000)
	if !info.Applied || !info.Valid {
		t.Fatalf("expected applied valid coupon, got %+v", info)
	}
	if info.PercentBps != 1_000 {
		t.Fatalf("expected 1000 bps, got %d", info.PercentBps)
	}
	if info.Code != "PROMO" {
		t.Fatalf("code should be upper-cased, got %q", info.Code)
	}
}

func TestResolveUnknownCodeIsResultNotError(t *testing.T) {
	svc := &Service{Q: &stubQueries{}}
	info := svc.Resolve(context.Background(), "NOPE", "", 5_000)
	if info.Applied || info.Valid {
		t.Fatalf("unknown code must not apply, got %+v", info)
	}
	if info.Reason != "coupon not found" {
		t.Fatalf("unexpected reason %q", info.Reason)
	}
}

func TestResolveMinSpendReason(t *testing.T) {
	svc := &Service{Q: &stubQueries{coupon: newCoupon(1_000)}}
	info := svc.Resolve(context.Background(), "PROMO", "", 500)
	if info.Valid {
		t.Fatal("coupon below min spend must be invalid")
	}
	if info.Reason != "minimum spend not met" {
		t.Fatalf("unexpected reason %q", info.Reason)
	}
}

func TestResolvePerUserLimit(t *testing.T) {
	c := newCoupon(1_000)
	c.PerUserLimit = pgtype.Int4{Int32: 1, Valid: true}
	svc := &Service{Q: &stubQueries{coupon: c, usageCount: 1}}
	info := svc.Resolve(context.Background(), "PROMO", uuid.New().String(), 5_000)
	if info.Valid {
		t.Fatal("expected per-user limit rejection")
	}
	if info.Reason != "coupon per-user limit reached" {
		t.Fatalf("unexpected reason %q", info.Reason)
	}
}

func TestResolveDefaultPerUserLimit(t *testing.T) {
	svc := &Service{Q: &stubQueries{coupon: newCoupon(1_000), usageCount: 1}, DefaultPerUserLimit: 1}
	info := svc.Resolve(context.Background(), "PROMO", uuid.New().String(), 5_000)
	if info.Valid {
		t.Fatal("default per-user limit should apply when the coupon has none")
	}
}

func TestResolveEmptyCode(t *testing.T) {
	svc := &Service{Q: &stubQueries{coupon: newCoupon(1_000)}}
	info := svc.Resolve(context.Background(), "  ", "", 5_000)
	if info.Code != "" || info.Applied || info.Reason != "" {
		t.Fatalf("empty code should be a zero result, got %+v", info)
	}
}

func TestSettleRecordsUsageOnce(t *testing.T) {
	q := &stubQueries{coupon: newCoupon(1_000)}
	svc := &Service{Q: q}
	orderID := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	userID := pgtype.UUID{Bytes: uuid.New(), Valid: true}

	if err := svc.Settle(context.Background(), q, "PROMO", orderID, userID, 500); err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if q.inserted != 1 || q.incremented != 1 {
		t.Fatalf("expected one usage insert and increment, got %d/%d", q.inserted, q.incremented)
	}
}

func TestSettleIdempotentPerOrder(t *testing.T) {
	q := &stubQueries{coupon: newCoupon(1_000), existingUsage: true}
	svc := &Service{Q: q}
	orderID := pgtype.UUID{Bytes: uuid.New(), Valid: true}

	if err := svc.Settle(context.Background(), q, "PROMO", orderID, pgtype.UUID{}, 500); err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if q.inserted != 0 || q.incremented != 0 {
		t.Fatal("repeated settlement must be a no-op")
	}
}

func TestSettleUnknownCouponIsNoop(t *testing.T) {
	q := &stubQueries{}
	svc := &Service{Q: q}
	orderID := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	if err := svc.Settle(context.Background(), q, "GONE", orderID, pgtype.UUID{}, 500); err != nil {
		t.Fatalf("expected nil for unknown coupon, got %v", err)
	}
	if q.inserted != 0 {
		t.Fatal("no usage should be recorded for unknown coupon")
	}
}
