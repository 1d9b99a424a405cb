package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/kevinvillajim/bcommerce-core/internal/common"
	"github.com/kevinvillajim/bcommerce-core/internal/events"
	"github.com/kevinvillajim/bcommerce-core/internal/obs"
	"github.com/kevinvillajim/bcommerce-core/internal/payment"
	"github.com/kevinvillajim/bcommerce-core/internal/pricing"
	"github.com/kevinvillajim/bcommerce-core/internal/repo"
	"github.com/kevinvillajim/bcommerce-core/internal/resilience"
	"github.com/kevinvillajim/bcommerce-core/internal/settlement"
)

// Address is the buyer-supplied delivery or billing address, stored verbatim
// on the order.
type Address struct {
	ReceiverName string `json:"receiverName" validate:"required"`
	Phone        string `json:"phone"`
	Country      string `json:"country" validate:"required"`
	City         string `json:"city" validate:"required"`
	PostalCode   string `json:"postalCode"`
	AddressLine1 string `json:"addressLine1" validate:"required"`
	AddressLine2 string `json:"addressLine2"`
}

// Input is the full checkout request.
type Input struct {
	Items           []pricing.ItemPayload   `json:"items" validate:"required,min=1,dive"`
	CouponCode      string                  `json:"couponCode,omitempty"`
	DeclaredTotals  *pricing.DeclaredTotals `json:"declaredTotals,omitempty"`
	ShippingAddress Address                 `json:"shippingAddress" validate:"required"`
	BillingAddress  *Address                `json:"billingAddress,omitempty"`
	PaymentMethod   string                  `json:"paymentMethod,omitempty"`
	CardToken       string                  `json:"cardToken,omitempty"`
}

// PaymentOutput describes how the buyer completes (or completed) payment.
type PaymentOutput struct {
	Provider    string `json:"provider"`
	Status      string `json:"status"`
	Token       string `json:"token,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// Output is the checkout response.
type Output struct {
	OrderID        string                   `json:"orderId"`
	OrderNumber    string                   `json:"orderNumber"`
	Status         string                   `json:"status"`
	Totals         pricing.Totals           `json:"totals"`
	Reconciliation *pricing.ReconcileResult `json:"reconciliation,omitempty"`
	Payment        PaymentOutput            `json:"payment"`
}

// CouponSettler records coupon usage when a synchronous charge succeeds.
type CouponSettler = payment.CouponSettler

// Service orchestrates checkout: it prices the cart server-side, partitions
// it per seller, distributes shipping, persists the order with a frozen
// pricing snapshot, and opens (or synchronously confirms) the payment.
type Service struct {
	Pool            *pgxpool.Pool
	Orders          repo.Orders
	Payments        repo.Payments
	Coupons         repo.Coupons
	Pricing         *pricing.Service
	Settler         CouponSettler
	Split           settlement.Config
	Providers       map[string]payment.Provider
	DefaultProvider string
	Breaker         *resilience.Breaker
	IntentTTL       time.Duration
	PaymentTimeout  time.Duration
	CallbackBaseURL string
	Events          *events.Bus
	Log             zerolog.Logger
	Now             func() time.Time
}

type sellerPartition struct {
	sellerID pgtype.UUID
	items    []pricing.PricedItem
	total    int64
}

// Create runs the full checkout flow for an authenticated buyer.
func (s *Service) Create(ctx context.Context, userID string, in Input) (Output, error) {
	var out Output
	if s == nil || s.Pool == nil || s.Pricing == nil {
		return out, errors.New("checkout service not configured")
	}
	result := "error"
	defer func() {
		if obs.CheckoutTotal != nil {
			obs.CheckoutTotal.WithLabelValues(result).Inc()
		}
	}()

	uid, err := repo.ToUUID(userID)
	if err != nil {
		return out, common.ValidationError("invalid user id", err)
	}
	items, err := pricing.ToItems(in.Items)
	if err != nil {
		return out, err
	}

	totals, priced := s.Pricing.Quote(ctx, userID, items, in.CouponCode)
	out.Totals = totals

	if in.DeclaredTotals != nil {
		rec := pricing.Reconcile(totals, *in.DeclaredTotals, pricing.DefaultTolerance)
		out.Reconciliation = &rec
		if rec.Checked && !rec.Matches {
			s.Log.Warn().Str("user_id", userID).Interface("mismatches", rec.Mismatches).
				Msg("checkout totals reconciliation mismatch")
			if obs.ReconciliationMismatchTotal != nil {
				obs.ReconciliationMismatchTotal.Inc()
			}
		}
	}

	partitions := partitionBySeller(priced)
	dist, err := settlement.Distribute(totals.ShippingCost, len(partitions), s.Split)
	if err != nil {
		return out, err
	}

	provider, sync, err := s.selectProvider(in)
	if err != nil {
		return out, err
	}

	orderNumber := s.orderNumber()
	snapshot, _ := json.Marshal(map[string]any{
		"totals":       totals,
		"items":        pricing.PricedItemsPayload(priced),
		"distribution": dist,
	})

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return out, common.PersistenceError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	orders := s.Orders.WithTx(tx)
	payments := s.Payments.WithTx(tx)

	couponCode := pgtype.Text{}
	if totals.Coupon.Applied && totals.Coupon.Valid {
		couponCode = pgtype.Text{String: totals.Coupon.Code, Valid: true}
	}
	order, err := orders.CreateOrder(ctx, repo.CreateOrderParams{
		OrderNumber:           orderNumber,
		UserID:                uid,
		Status:                repo.OrderStatusPending,
		Currency:              totals.Currency,
		PricingSubtotal:       totals.Subtotal,
		PricingSellerDiscount: totals.SellerDiscount,
		PricingVolumeDiscount: totals.VolumeDiscount,
		PricingCouponDiscount: totals.CouponDiscount,
		PricingTax:            totals.Tax,
		PricingShipping:       totals.ShippingCost,
		PricingTotal:          totals.Total,
		PricingSnapshot:       snapshot,
		ShippingAddress:       toJSON(in.ShippingAddress),
		BillingAddress:        toJSON(in.BillingAddress),
		AppliedCouponCode:     couponCode,
	})
	if err != nil {
		return out, common.PersistenceError(err)
	}

	for _, part := range partitions {
		sellerOrder, err := orders.CreateSellerOrder(ctx, repo.CreateSellerOrderParams{
			OrderID:       order.ID,
			SellerID:      part.sellerID,
			Total:         part.total + dist.SellerShare,
			ShippingShare: dist.SellerShare,
			Status:        repo.OrderStatusPending,
		})
		if err != nil {
			return out, common.PersistenceError(err)
		}
		for _, it := range part.items {
			if err := orders.CreateOrderItem(ctx, repo.CreateOrderItemParams{
				OrderID:           order.ID,
				SellerOrderID:     sellerOrder.ID,
				ProductID:         it.ProductID,
				SellerID:          it.SellerID,
				Qty:               int32(it.Qty),
				UnitPrice:         it.UnitPrice,
				FinalUnitPrice:    it.FinalUnitPrice,
				LineSubtotal:      it.LineSubtotal,
				Savings:           it.Savings,
				SellerDiscountBps: int32(it.SellerDiscountBps),
				VolumeBps:         int32(it.VolumeBps),
				TierLabel:         pgtype.Text{String: it.TierLabel, Valid: it.TierLabel != ""},
			}); err != nil {
				return out, common.PersistenceError(err)
			}
		}
	}

	paid := false
	if sync != nil {
		paid, err = s.confirmSync(ctx, tx, orders, payments, &order, sync, in.CardToken, &out)
		if err != nil {
			return out, err
		}
	} else {
		if err := s.openIntent(ctx, payments, order, provider, &out); err != nil {
			return out, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return out, common.PersistenceError(err)
	}
	result = "success"
	if paid {
		result = "paid"
	}

	out.OrderID = repo.UUIDString(order.ID)
	out.OrderNumber = order.OrderNumber
	out.Status = string(order.Status)

	if s.Events != nil {
		payload := map[string]any{
			"orderId":     out.OrderID,
			"orderNumber": order.OrderNumber,
			"userId":      userID,
			"total":       totals.Total,
		}
		_, _ = s.Events.Emit(ctx, events.TopicOrderCreated, order.ID, payload)
		if paid {
			_, _ = s.Events.Emit(ctx, events.TopicOrderPaid, order.ID, payload)
		}
	}
	return out, nil
}

// confirmSync charges the buyer during checkout. A declined charge keeps the
// order PENDING so the buyer may retry with another instrument. A timed-out
// confirmation is not a decline: the provider may still have captured the
// charge, so the order is committed with a PENDING payment and the outcome is
// settled later by the webhook or the status endpoint.
func (s *Service) confirmSync(ctx context.Context, tx pgx.Tx, orders repo.Orders, payments repo.Payments,
	order *repo.Order, sync payment.SyncProvider, cardToken string, out *Output) (bool, error) {
	if strings.TrimSpace(cardToken) == "" {
		return false, common.ValidationError("card token is required for synchronous payment", nil)
	}
	if s.Breaker != nil && !s.Breaker.Allow(ctx) {
		return false, payment.ErrProviderUnavailable
	}
	callCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout())
	defer cancel()
	res, err := sync.Confirm(callCtx, payment.ConfirmRequest{
		OrderNumber: order.OrderNumber,
		Amount:      order.PricingTotal,
		Currency:    order.Currency,
		CardToken:   cardToken,
	})
	if s.Breaker != nil {
		s.Breaker.Report(ctx, err == nil)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return false, s.recordUnresolvedConfirm(ctx, payments, order, sync, out, err)
		}
		return false, common.NewAppError(common.CodePaymentProvider, "payment confirmation failed",
			http.StatusBadGateway, err)
	}

	status := repo.PaymentStatus(res.Status)
	if status != repo.PaymentStatusPaid {
		status = repo.PaymentStatusFailed
	}
	p, err := payments.CreatePayment(ctx, repo.CreatePaymentParams{
		OrderID:         order.ID,
		Provider:        pgtype.Text{String: sync.Name(), Valid: true},
		Status:          status,
		Amount:          order.PricingTotal,
		ProviderTxID:    pgtype.Text{String: res.ProviderTx, Valid: res.ProviderTx != ""},
		ProviderPayload: res.Payload,
	})
	if err != nil {
		return false, common.PersistenceError(err)
	}
	_ = payments.InsertPaymentEvent(ctx, p.ID, status, res.Payload)

	out.Payment = PaymentOutput{Provider: sync.Name(), Status: string(status)}
	if status != repo.PaymentStatusPaid {
		return false, nil
	}
	if err := orders.UpdateOrderStatus(ctx, order.ID, repo.OrderStatusPaid); err != nil {
		return false, common.PersistenceError(err)
	}
	if err := orders.UpdateSellerOrderStatus(ctx, order.ID, repo.OrderStatusPaid); err != nil {
		return false, common.PersistenceError(err)
	}
	order.Status = repo.OrderStatusPaid
	if s.Settler != nil && order.AppliedCouponCode.Valid {
		if err := s.Settler.Settle(ctx, s.Coupons.WithTx(tx), order.AppliedCouponCode.String,
			order.ID, order.UserID, order.PricingCouponDiscount); err != nil {
			return false, common.PersistenceError(err)
		}
	}
	return true, nil
}

// recordUnresolvedConfirm persists a PENDING payment for a charge whose
// outcome is unknown. The caller commits the order so a possibly captured
// charge is never attached to a rolled-back order.
func (s *Service) recordUnresolvedConfirm(ctx context.Context, payments repo.Payments, order *repo.Order,
	sync payment.SyncProvider, out *Output, cause error) error {
	s.Log.Warn().Err(cause).Str("order_number", order.OrderNumber).
		Msg("synchronous confirmation outcome unknown, order committed pending")
	p, err := payments.CreatePayment(ctx, repo.CreatePaymentParams{
		OrderID:  order.ID,
		Provider: pgtype.Text{String: sync.Name(), Valid: true},
		Status:   repo.PaymentStatusPending,
		Amount:   order.PricingTotal,
	})
	if err != nil {
		return common.PersistenceError(err)
	}
	_ = payments.InsertPaymentEvent(ctx, p.ID, repo.PaymentStatusPending, nil)
	out.Payment = PaymentOutput{Provider: sync.Name(), Status: string(repo.PaymentStatusPending)}
	return nil
}

// openIntent opens a hosted-page payment intent. A provider timeout does not
// fail the checkout: the order is committed PENDING and the client polls the
// payment status endpoint.
func (s *Service) openIntent(ctx context.Context, payments repo.Payments, order repo.Order,
	provider payment.Provider, out *Output) error {
	out.Payment = PaymentOutput{Provider: provider.Name(), Status: string(repo.PaymentStatusPending)}

	if s.Breaker != nil && !s.Breaker.Allow(ctx) {
		s.Log.Warn().Str("order_number", order.OrderNumber).Msg("payment breaker open, intent deferred")
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout())
	defer cancel()
	resp, err := provider.CreateIntent(callCtx, payment.IntentRequest{
		OrderNumber:     order.OrderNumber,
		Amount:          order.PricingTotal,
		Currency:        order.Currency,
		CallbackBaseURL: s.CallbackBaseURL,
		ExpiresAtSec:    int(s.intentTTL().Seconds()),
	})
	if s.Breaker != nil {
		s.Breaker.Report(ctx, err == nil)
	}
	if err != nil {
		s.Log.Error().Err(err).Str("order_number", order.OrderNumber).
			Msg("payment intent creation failed, order committed pending")
		return nil
	}

	payload, _ := json.Marshal(resp)
	expiresAt := pgtype.Timestamptz{Time: time.Now().Add(s.intentTTL()), Valid: true}
	if resp.ExpiresAt > 0 {
		expiresAt.Time = time.Unix(resp.ExpiresAt, 0)
	}
	p, err := payments.CreatePayment(ctx, repo.CreatePaymentParams{
		OrderID:         order.ID,
		Provider:        pgtype.Text{String: provider.Name(), Valid: true},
		Status:          repo.PaymentStatusPending,
		Amount:          order.PricingTotal,
		IntentToken:     pgtype.Text{String: resp.Token, Valid: resp.Token != ""},
		RedirectURL:     pgtype.Text{String: resp.RedirectURL, Valid: resp.RedirectURL != ""},
		ProviderTxID:    pgtype.Text{String: resp.ProviderTx, Valid: resp.ProviderTx != ""},
		ProviderPayload: payload,
		ExpiresAt:       expiresAt,
	})
	if err != nil {
		return common.PersistenceError(err)
	}
	_ = payments.InsertPaymentEvent(ctx, p.ID, repo.PaymentStatusPending, payload)
	out.Payment.Token = resp.Token
	out.Payment.RedirectURL = resp.RedirectURL
	return nil
}

func (s *Service) selectProvider(in Input) (payment.Provider, payment.SyncProvider, error) {
	name := strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(s.DefaultProvider))
	}
	provider, ok := s.Providers[name]
	if !ok {
		return nil, nil, common.ValidationError(fmt.Sprintf("unsupported payment method %q", name), nil)
	}
	if sync, ok := provider.(payment.SyncProvider); ok {
		return provider, sync, nil
	}
	return provider, nil, nil
}

// partitionBySeller groups priced lines per seller preserving first-seen order.
func partitionBySeller(priced []pricing.PricedItem) []sellerPartition {
	index := make(map[[16]byte]int)
	var parts []sellerPartition
	for _, it := range priced {
		key := it.SellerID.Bytes
		i, ok := index[key]
		if !ok {
			i = len(parts)
			index[key] = i
			parts = append(parts, sellerPartition{sellerID: it.SellerID})
		}
		parts[i].items = append(parts[i].items, it)
		parts[i].total += it.LineSubtotal
	}
	return parts
}

func (s *Service) orderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", s.now().Format("20060102"), suffix)
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) intentTTL() time.Duration {
	if s.IntentTTL > 0 {
		return s.IntentTTL
	}
	return 15 * time.Minute
}

func (s *Service) paymentTimeout() time.Duration {
	if s.PaymentTimeout > 0 {
		return s.PaymentTimeout
	}
	return 10 * time.Second
}

func toJSON(v any) []byte {
	if v == nil {
		return nil
	}
	if p, ok := v.(*Address); ok && p == nil {
		return nil
	}
	b, _ := json.Marshal(v)
	return b
}
