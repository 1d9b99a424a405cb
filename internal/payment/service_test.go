package payment

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/kevinvillajim/bcommerce-core/internal/common"
	"github.com/kevinvillajim/bcommerce-core/internal/repo"
	"github.com/kevinvillajim/bcommerce-core/internal/resilience"
)

type stubOrders struct {
	order repo.Order
	err   error
}

func (s *stubOrders) GetOrderByID(ctx context.Context, id pgtype.UUID) (repo.Order, error) {
	return s.order, s.err
}

type stubPayments struct {
	latest    repo.Payment
	latestErr error
	created   *repo.CreatePaymentParams
	events    int
}

func (s *stubPayments) GetLatestPaymentByOrder(ctx context.Context, orderID pgtype.UUID) (repo.Payment, error) {
	return s.latest, s.latestErr
}

func (s *stubPayments) CreatePayment(ctx context.Context, arg repo.CreatePaymentParams) (repo.Payment, error) {
	s.created = &arg
	return repo.Payment{
		ID:      repo.NewUUID(),
		OrderID: arg.OrderID,
		Status:  arg.Status,
		Amount:  arg.Amount,
	}, nil
}

func (s *stubPayments) InsertPaymentEvent(ctx context.Context, paymentID pgtype.UUID, status repo.PaymentStatus, payload []byte) error {
	s.events++
	return nil
}

func pendingOrder() repo.Order {
	return repo.Order{
		ID:           repo.NewUUID(),
		OrderNumber:  "ORD-20260901-0001",
		Status:       repo.OrderStatusPending,
		Currency:     "USD",
		PricingTotal: 49_163,
	}
}

func TestCreateIntentCreatesPendingPayment(t *testing.T) {
	order := pendingOrder()
	payments := &stubPayments{latestErr: pgx.ErrNoRows}
	svc := &Service{
		Orders:   &stubOrders{order: order},
		Payments: payments,
		Provider: Datafast{ServerKey: "secret", Sandbox: true},
	}
	created, err := svc.CreateIntent(context.Background(), repo.UUIDString(order.ID))
	require.NoError(t, err)
	require.Equal(t, repo.PaymentStatusPending, created.Status)
	require.Equal(t, order.PricingTotal, created.Amount)
	require.NotNil(t, payments.created)
	require.Equal(t, "datafast", payments.created.Provider.String)
	require.True(t, payments.created.ExpiresAt.Valid)
	require.Equal(t, 1, payments.events)
}

func TestCreateIntentReusesUnexpiredPendingIntent(t *testing.T) {
	order := pendingOrder()
	existing := repo.Payment{
		ID:        repo.NewUUID(),
		OrderID:   order.ID,
		Status:    repo.PaymentStatusPending,
		Amount:    order.PricingTotal,
		ExpiresAt: pgtype.Timestamptz{Time: time.Now().Add(10 * time.Minute), Valid: true},
	}
	payments := &stubPayments{latest: existing}
	svc := &Service{
		Orders:   &stubOrders{order: order},
		Payments: payments,
		Provider: Datafast{ServerKey: "secret"},
	}
	got, err := svc.CreateIntent(context.Background(), repo.UUIDString(order.ID))
	require.NoError(t, err)
	require.Equal(t, existing.ID, got.ID)
	require.Nil(t, payments.created, "no new payment row expected")
}

func TestCreateIntentRejectsNonPendingOrder(t *testing.T) {
	order := pendingOrder()
	order.Status = repo.OrderStatusPaid
	svc := &Service{
		Orders:   &stubOrders{order: order},
		Payments: &stubPayments{latestErr: pgx.ErrNoRows},
		Provider: Datafast{ServerKey: "secret"},
	}
	_, err := svc.CreateIntent(context.Background(), repo.UUIDString(order.ID))
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeConflict, appErr.Code)
}

func TestCreateIntentRejectedWhileBreakerOpen(t *testing.T) {
	breaker := resilience.NewBreaker(1, 0.5, time.Hour)
	breaker.Report(context.Background(), false)

	order := pendingOrder()
	svc := &Service{
		Orders:   &stubOrders{order: order},
		Payments: &stubPayments{latestErr: pgx.ErrNoRows},
		Provider: Datafast{ServerKey: "secret"},
		Breaker:  breaker,
	}
	_, err := svc.CreateIntent(context.Background(), repo.UUIDString(order.ID))
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodePaymentProvider, appErr.Code)
	require.Equal(t, http.StatusServiceUnavailable, appErr.HTTPStatus)
}

func TestConsolidatedStatusFallsBackToOrder(t *testing.T) {
	order := pendingOrder()
	order.Status = repo.OrderStatusPaid
	svc := &Service{
		Orders:   &stubOrders{order: order},
		Payments: &stubPayments{latestErr: pgx.ErrNoRows},
	}
	status, err := svc.ConsolidatedStatus(context.Background(), repo.UUIDString(order.ID))
	require.NoError(t, err)
	require.Equal(t, "PAID", status)
}

func TestConsolidatedStatusInvalidID(t *testing.T) {
	svc := &Service{Orders: &stubOrders{}, Payments: &stubPayments{latestErr: errors.New("unused")}}
	_, err := svc.ConsolidatedStatus(context.Background(), "not-a-uuid")
	require.Error(t, err)
}
