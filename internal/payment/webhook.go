package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kevinvillajim/bcommerce-core/internal/common"
	"github.com/kevinvillajim/bcommerce-core/internal/coupon"
	"github.com/kevinvillajim/bcommerce-core/internal/events"
	"github.com/kevinvillajim/bcommerce-core/internal/lock"
	"github.com/kevinvillajim/bcommerce-core/internal/obs"
	"github.com/kevinvillajim/bcommerce-core/internal/repo"
)

// CouponSettler records coupon usage as part of order settlement. The querier
// argument lets settlement join the webhook's transaction.
type CouponSettler interface {
	Settle(ctx context.Context, q coupon.Querier, code string, orderID, userID pgtype.UUID, amount int64) error
}

// TxBeginner opens the transaction a webhook transition runs in. Satisfied by
// *pgxpool.Pool.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Webhook handles payment provider callbacks. Deliveries are acknowledged
// with 200 even when rejected: providers retry aggressively on non-2xx, and a
// forged or stale notification must not trigger retries. The accepted flag in
// the body carries the real outcome.
type Webhook struct {
	Pool      TxBeginner
	Payments  repo.Payments
	Orders    repo.Orders
	Coupons   repo.Coupons
	Settler   CouponSettler
	Providers map[string]Provider
	Replay    *redis.Client
	ReplayTTL time.Duration
	Locker    lock.Locker
	LockTTL   time.Duration
	Events    *events.Bus
	Log       zerolog.Logger
}

type webhookOutcome struct {
	accepted  bool
	reason    string
	metric    string
	newStatus repo.PaymentStatus
	payment   repo.Payment
	order     repo.Order
	cancelled bool
	changed   bool
}

// Handle processes a webhook delivery for the provider named in the URL.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	providerKey := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	provider, ok := h.Providers[providerKey]
	if !ok {
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "unknown provider", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "unable to read payload", nil)
		return
	}
	result, err := provider.VerifyWebhook(r, body)
	if err != nil || !result.Valid {
		h.ack(w, providerKey, false, "signature verification failed", "invalid_signature")
		return
	}
	if result.ProviderPayload == nil {
		result.ProviderPayload = body
	}
	ctx := r.Context()

	var replayKey string
	if h.Replay != nil && h.ReplayTTL > 0 {
		replayKey = fmt.Sprintf("wh:%s:%s", providerKey, common.Sha256Hex(body))
		fresh, err := h.Replay.SetNX(ctx, replayKey, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "replay store unavailable", nil)
			return
		}
		if !fresh {
			h.ack(w, providerKey, false, "duplicate delivery", "replay")
			return
		}
	}

	payment, err := h.Payments.GetPaymentByProviderTx(ctx, result.ProviderTx)
	if err != nil {
		h.releaseReplayClaim(ctx, replayKey)
		if errors.Is(err, pgx.ErrNoRows) {
			h.Log.Warn().Str("provider", providerKey).Str("provider_tx", result.ProviderTx).
				Msg("webhook for unknown transaction")
			h.ack(w, providerKey, false, "unknown transaction", "unknown_tx")
			return
		}
		common.WriteError(w, common.PersistenceError(err))
		return
	}

	var out webhookOutcome
	lockKey := "paylock:" + repo.UUIDString(payment.ID)
	err = h.Locker.WithLock(ctx, lockKey, h.lockTTL(), func(ctx context.Context) error {
		var lockErr error
		out, lockErr = h.apply(ctx, payment.ID, result)
		return lockErr
	})
	if err != nil {
		h.releaseReplayClaim(ctx, replayKey)
		common.WriteError(w, common.PersistenceError(err))
		return
	}
	if out.changed {
		h.emit(ctx, out)
	}
	h.ack(w, providerKey, out.accepted, out.reason, out.metric)
}

// apply runs the status transition inside a transaction while holding the
// payment row lock. The redis lock plus FOR UPDATE serialises concurrent
// deliveries for the same payment.
func (h Webhook) apply(ctx context.Context, paymentID pgtype.UUID, result WebhookVerifyResult) (webhookOutcome, error) {
	out := webhookOutcome{}
	if h.Pool == nil {
		return out, errors.New("webhook: pool not configured")
	}
	tx, err := h.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return out, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	payments := h.Payments.WithTx(tx)
	orders := h.Orders.WithTx(tx)

	payment, err := payments.GetPaymentForUpdate(ctx, paymentID)
	if err != nil {
		return out, err
	}
	out.payment = payment

	newStatus := repo.PaymentStatus(result.Status)
	out.newStatus = newStatus
	if newStatus == payment.Status {
		out.accepted = true
		out.reason = "already processed"
		out.metric = "duplicate"
		return out, nil
	}
	if !CanTransition(payment.Status, newStatus) {
		out.reason = fmt.Sprintf("transition %s -> %s not allowed", payment.Status, newStatus)
		out.metric = "illegal_transition"
		return out, nil
	}
	if result.Amount > 0 && result.Amount != payment.Amount {
		out.reason = "amount mismatch"
		out.metric = "amount_mismatch"
		return out, nil
	}

	if err := payments.UpdatePaymentStatus(ctx, repo.UpdatePaymentStatusParams{
		ID:              payment.ID,
		Status:          newStatus,
		ProviderTxID:    pgtype.Text{String: result.ProviderTx, Valid: result.ProviderTx != ""},
		ProviderPayload: result.ProviderPayload,
	}); err != nil {
		return out, err
	}
	if err := payments.InsertPaymentEvent(ctx, payment.ID, newStatus, result.ProviderPayload); err != nil {
		return out, err
	}

	order, err := orders.GetOrderForUpdate(ctx, payment.OrderID)
	if err != nil {
		return out, err
	}
	switch newStatus {
	case repo.PaymentStatusPaid:
		if err := h.settle(ctx, tx, orders, &order); err != nil {
			return out, err
		}
	case repo.PaymentStatusFailed, repo.PaymentStatusCancelled:
		if order.Status == repo.OrderStatusPending {
			if err := orders.UpdateOrderStatus(ctx, order.ID, repo.OrderStatusFailed); err != nil {
				return out, err
			}
			order.Status = repo.OrderStatusFailed
			out.cancelled = true
		}
	case repo.PaymentStatusRefunded:
		if err := orders.UpdateOrderStatus(ctx, order.ID, repo.OrderStatusRefunded); err != nil {
			return out, err
		}
		if err := orders.UpdateSellerOrderStatus(ctx, order.ID, repo.OrderStatusRefunded); err != nil {
			return out, err
		}
		order.Status = repo.OrderStatusRefunded
	}
	out.order = order

	if err := tx.Commit(ctx); err != nil {
		return out, err
	}
	out.accepted = true
	out.changed = true
	out.metric = "processed"
	return out, nil
}

// settle marks the order and its seller orders paid and records coupon usage.
func (h Webhook) settle(ctx context.Context, tx pgx.Tx, orders repo.Orders, order *repo.Order) error {
	if err := orders.UpdateOrderStatus(ctx, order.ID, repo.OrderStatusPaid); err != nil {
		return err
	}
	if err := orders.UpdateSellerOrderStatus(ctx, order.ID, repo.OrderStatusPaid); err != nil {
		return err
	}
	order.Status = repo.OrderStatusPaid
	if h.Settler != nil && order.AppliedCouponCode.Valid {
		code := strings.TrimSpace(order.AppliedCouponCode.String)
		if code != "" {
			amount := order.PricingCouponDiscount
			if amount < 0 {
				amount = 0
			}
			if err := h.Settler.Settle(ctx, h.Coupons.WithTx(tx), code, order.ID, order.UserID, amount); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h Webhook) emit(ctx context.Context, out webhookOutcome) {
	if h.Events == nil {
		return
	}
	payload := map[string]any{
		"orderId":     repo.UUIDString(out.order.ID),
		"orderNumber": out.order.OrderNumber,
		"paymentId":   repo.UUIDString(out.payment.ID),
		"status":      string(out.newStatus),
	}
	if out.order.UserID.Valid {
		payload["userId"] = repo.UUIDString(out.order.UserID)
	}
	switch out.newStatus {
	case repo.PaymentStatusPaid:
		_, _ = h.Events.Emit(ctx, events.TopicOrderPaid, out.order.ID, payload)
	case repo.PaymentStatusFailed, repo.PaymentStatusCancelled:
		_, _ = h.Events.Emit(ctx, events.TopicPaymentFailed, out.order.ID, payload)
		if out.cancelled {
			_, _ = h.Events.Emit(ctx, events.TopicOrderCancelled, out.order.ID, payload)
		}
	case repo.PaymentStatusRefunded:
		_, _ = h.Events.Emit(ctx, events.TopicPaymentRefunded, out.order.ID, payload)
	}
}

func (h Webhook) ack(w http.ResponseWriter, provider string, accepted bool, reason, metric string) {
	if obs.PaymentWebhookTotal != nil && metric != "" {
		obs.PaymentWebhookTotal.WithLabelValues(provider, metric).Inc()
	}
	body := map[string]any{"accepted": accepted}
	if reason != "" && !accepted {
		body["reason"] = reason
	}
	common.JSON(w, http.StatusOK, body)
}

// releaseReplayClaim frees the replay slot when a delivery ended without a
// definitive outcome, so the provider's retry of the same body is processed
// instead of being swallowed as a duplicate. The SetNX-before-processing
// order stays: claiming after would let two concurrent deliveries both pass.
func (h Webhook) releaseReplayClaim(ctx context.Context, key string) {
	if key == "" || h.Replay == nil {
		return
	}
	if err := h.Replay.Del(ctx, key).Err(); err != nil {
		h.Log.Warn().Err(err).Str("key", key).Msg("webhook replay claim not released")
	}
}

func (h Webhook) lockTTL() time.Duration {
	if h.LockTTL > 0 {
		return h.LockTTL
	}
	return 30 * time.Second
}
