package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kevinvillajim/bcommerce-core/internal/common"
	"github.com/kevinvillajim/bcommerce-core/internal/obs"
	"github.com/kevinvillajim/bcommerce-core/internal/repo"
	"github.com/kevinvillajim/bcommerce-core/internal/resilience"
)

// OrderQuerier is the order access required by the payment service.
type OrderQuerier interface {
	GetOrderByID(ctx context.Context, id pgtype.UUID) (repo.Order, error)
}

// PaymentQuerier is the payment persistence required by the payment service.
type PaymentQuerier interface {
	GetLatestPaymentByOrder(ctx context.Context, orderID pgtype.UUID) (repo.Payment, error)
	CreatePayment(ctx context.Context, arg repo.CreatePaymentParams) (repo.Payment, error)
	InsertPaymentEvent(ctx context.Context, paymentID pgtype.UUID, status repo.PaymentStatus, payload []byte) error
}

// Service coordinates payment intents and status retrieval. Calls to the
// upstream gateway run behind a circuit breaker with a bounded timeout so a
// slow provider cannot hold checkout requests indefinitely.
type Service struct {
	Orders          OrderQuerier
	Payments        PaymentQuerier
	Provider        Provider
	Breaker         *resilience.Breaker
	IntentTTL       time.Duration
	Timeout         time.Duration
	CallbackBaseURL string
}

// ErrProviderUnavailable is returned when the breaker refuses gateway calls.
var ErrProviderUnavailable = common.NewAppError(common.CodePaymentProvider,
	"payment provider temporarily unavailable", http.StatusServiceUnavailable, resilience.ErrOpenCircuit)

// CreateIntent creates, or reuses, a payment intent for the provided order.
func (s *Service) CreateIntent(ctx context.Context, orderID string) (repo.Payment, error) {
	var zero repo.Payment
	if s == nil || s.Orders == nil || s.Payments == nil || s.Provider == nil {
		return zero, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreateIntent")
	defer span.End()

	providerName := s.Provider.Name()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.provider", providerName),
			attribute.String("payment.intent.result", result),
		)
		if obs.PaymentIntentTotal != nil {
			obs.PaymentIntentTotal.WithLabelValues(providerName, result).Inc()
		}
	}()

	orderUUID, err := repo.ToUUID(orderID)
	if err != nil {
		return zero, common.ValidationError("invalid order id", err)
	}
	span.SetAttributes(attribute.String("order.id", orderID))
	order, err := s.Orders.GetOrderByID(ctx, orderUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, common.NewAppError(common.CodeNotFound, "order not found", http.StatusNotFound, err)
		}
		return zero, common.PersistenceError(err)
	}
	if order.Status != repo.OrderStatusPending {
		return zero, common.NewAppError(common.CodeConflict,
			fmt.Sprintf("order status %s does not allow new intents", order.Status), http.StatusConflict, nil)
	}

	existing, err := s.Payments.GetLatestPaymentByOrder(ctx, orderUUID)
	if err == nil {
		if existing.Status == repo.PaymentStatusPaid {
			return zero, common.NewAppError(common.CodeConflict, "order already paid", http.StatusConflict, nil)
		}
		if existing.Status == repo.PaymentStatusPending &&
			(!existing.ExpiresAt.Valid || existing.ExpiresAt.Time.After(time.Now())) {
			result = "reused"
			return existing, nil
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return zero, common.PersistenceError(err)
	}

	ttl := s.IntentTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	req := IntentRequest{
		OrderNumber:     order.OrderNumber,
		Amount:          order.PricingTotal,
		Currency:        order.Currency,
		CallbackBaseURL: s.CallbackBaseURL,
		ExpiresAtSec:    int(ttl.Seconds()),
	}
	resp, err := s.callProvider(ctx, req)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, resilience.ErrOpenCircuit) {
			result = "rejected"
			return zero, ErrProviderUnavailable
		}
		return zero, common.NewAppError(common.CodePaymentProvider, "payment intent creation failed",
			http.StatusBadGateway, err)
	}
	result = "success"

	payload, _ := json.Marshal(map[string]any{"request": req, "response": resp})
	expiresAt := pgtype.Timestamptz{Time: time.Now().Add(ttl), Valid: true}
	if resp.ExpiresAt > 0 {
		expiresAt.Time = time.Unix(resp.ExpiresAt, 0)
	}
	created, err := s.Payments.CreatePayment(ctx, repo.CreatePaymentParams{
		OrderID:         orderUUID,
		Provider:        pgtype.Text{String: providerName, Valid: true},
		Status:          repo.PaymentStatusPending,
		Amount:          order.PricingTotal,
		IntentToken:     pgtype.Text{String: resp.Token, Valid: strings.TrimSpace(resp.Token) != ""},
		RedirectURL:     pgtype.Text{String: resp.RedirectURL, Valid: strings.TrimSpace(resp.RedirectURL) != ""},
		ProviderTxID:    pgtype.Text{String: resp.ProviderTx, Valid: strings.TrimSpace(resp.ProviderTx) != ""},
		ProviderPayload: payload,
		ExpiresAt:       expiresAt,
	})
	if err != nil {
		return zero, common.PersistenceError(err)
	}
	_ = s.Payments.InsertPaymentEvent(ctx, created.ID, repo.PaymentStatusPending, payload)
	return created, nil
}

// callProvider runs the gateway call behind the breaker with a bounded timeout.
func (s *Service) callProvider(ctx context.Context, req IntentRequest) (IntentResponse, error) {
	if s.Breaker != nil && !s.Breaker.Allow(ctx) {
		return IntentResponse{}, resilience.ErrOpenCircuit
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := s.Provider.CreateIntent(callCtx, req)
	if s.Breaker != nil {
		s.Breaker.Report(ctx, err == nil)
	}
	return resp, err
}

// ConsolidatedStatus returns the best-known payment status for an order.
func (s *Service) ConsolidatedStatus(ctx context.Context, orderID string) (string, error) {
	if s == nil || s.Orders == nil || s.Payments == nil {
		return "", errors.New("payment service not configured")
	}
	orderUUID, err := repo.ToUUID(orderID)
	if err != nil {
		return "", common.ValidationError("invalid order id", err)
	}
	p, err := s.Payments.GetLatestPaymentByOrder(ctx, orderUUID)
	if err == nil {
		return string(p.Status), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", common.PersistenceError(err)
	}
	order, err := s.Orders.GetOrderByID(ctx, orderUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", common.NewAppError(common.CodeNotFound, "order not found", http.StatusNotFound, err)
		}
		return "", common.PersistenceError(err)
	}
	switch order.Status {
	case repo.OrderStatusPaid:
		return string(repo.PaymentStatusPaid), nil
	case repo.OrderStatusFailed, repo.OrderStatusCancelled:
		return string(repo.PaymentStatusFailed), nil
	default:
		return string(repo.PaymentStatusPending), nil
	}
}
