package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kevinvillajim/bcommerce-core/internal/repo"
)

// Querier defines the database access required for earnings reporting.
type Querier interface {
	ListPaidSellerOrdersBySeller(ctx context.Context, sellerID pgtype.UUID) ([]repo.SellerOrder, error)
	ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]repo.OrderItem, error)
}

// EarningsService provides cached per-seller earnings reports.
type EarningsService struct {
	Q   Querier
	R   *redis.Client
	Log zerolog.Logger
	TTL time.Duration
}

// OrderEarnings is one paid seller order in the report.
type OrderEarnings struct {
	SellerOrderID string `json:"sellerOrderId"`
	OrderID       string `json:"orderId"`
	ItemsTotal    int64  `json:"itemsTotal"`
	ShippingShare int64  `json:"shippingShare"`
	Earnings      int64  `json:"earnings"`
	ItemCount     int    `json:"itemCount"`
}

// EarningsReport aggregates a seller's paid orders.
type EarningsReport struct {
	SellerID      string          `json:"sellerId"`
	OrderCount    int             `json:"orderCount"`
	ItemsTotal    int64           `json:"itemsTotal"`
	ShippingShare int64           `json:"shippingShare"`
	Total         int64           `json:"total"`
	Skipped       int             `json:"skipped,omitempty"`
	Orders        []OrderEarnings `json:"orders"`
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// Report computes the seller's earnings across paid orders. A broken order
// row is skipped and counted rather than failing the whole report.
func (s *EarningsService) Report(ctx context.Context, sellerID pgtype.UUID) (EarningsReport, error) {
	if s == nil || s.Q == nil {
		return EarningsReport{}, fmt.Errorf("earnings service not configured")
	}
	key := cacheKey("earn", repo.UUIDString(sellerID))
	if report, ok := s.fromCache(ctx, key); ok {
		return report, nil
	}
	rows, err := s.Q.ListPaidSellerOrdersBySeller(ctx, sellerID)
	if err != nil {
		return EarningsReport{}, err
	}
	report := EarningsReport{SellerID: repo.UUIDString(sellerID), Orders: []OrderEarnings{}}
	for _, so := range rows {
		items, err := s.Q.ListOrderItems(ctx, so.OrderID)
		if err != nil {
			s.Log.Error().Err(err).
				Str("seller_order_id", repo.UUIDString(so.ID)).
				Msg("earnings: skipping unreadable order")
			report.Skipped++
			continue
		}
		entry := OrderEarnings{
			SellerOrderID: repo.UUIDString(so.ID),
			OrderID:       repo.UUIDString(so.OrderID),
			ShippingShare: so.ShippingShare,
		}
		for _, it := range items {
			if !repo.UUIDEqual(it.SellerID, so.SellerID) {
				continue
			}
			entry.ItemsTotal += it.LineSubtotal
			entry.ItemCount++
		}
		entry.Earnings = entry.ItemsTotal + entry.ShippingShare
		report.Orders = append(report.Orders, entry)
		report.OrderCount++
		report.ItemsTotal += entry.ItemsTotal
		report.ShippingShare += entry.ShippingShare
		report.Total += entry.Earnings
	}
	s.store(ctx, key, report)
	return report, nil
}

func (s *EarningsService) fromCache(ctx context.Context, key string) (EarningsReport, bool) {
	if s.R == nil || s.TTL <= 0 {
		return EarningsReport{}, false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return EarningsReport{}, false
	}
	var report EarningsReport
	if err := json.Unmarshal(data, &report); err != nil {
		return EarningsReport{}, false
	}
	return report, true
}

func (s *EarningsService) store(ctx context.Context, key string, report EarningsReport) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := s.R.Set(ctx, key, data, s.TTL).Err(); err != nil {
		s.Log.Debug().Err(err).Str("key", key).Msg("earnings cache write failed")
	}
}
