package checkout

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kevinvillajim/bcommerce-core/internal/common"
	"github.com/kevinvillajim/bcommerce-core/internal/payment"
	"github.com/kevinvillajim/bcommerce-core/internal/pricing"
	"github.com/kevinvillajim/bcommerce-core/internal/repo"
)

func TestPartitionBySellerPreservesFirstSeenOrder(t *testing.T) {
	sellerA, sellerB := repo.NewUUID(), repo.NewUUID()
	priced := []pricing.PricedItem{
		pricing.PriceItem(pricing.Item{SellerID: sellerA, Qty: 1, UnitPrice: 1_000}, 0, ""),
		pricing.PriceItem(pricing.Item{SellerID: sellerB, Qty: 2, UnitPrice: 500}, 0, ""),
		pricing.PriceItem(pricing.Item{SellerID: sellerA, Qty: 1, UnitPrice: 3_000}, 0, ""),
	}
	parts := partitionBySeller(priced)
	require.Len(t, parts, 2)
	require.True(t, repo.UUIDEqual(parts[0].sellerID, sellerA))
	require.True(t, repo.UUIDEqual(parts[1].sellerID, sellerB))
	require.Len(t, parts[0].items, 2)
	require.Equal(t, int64(4_000), parts[0].total)
	require.Equal(t, int64(1_000), parts[1].total)
}

func TestSelectProvider(t *testing.T) {
	svc := &Service{
		Providers: map[string]payment.Provider{
			"datafast": payment.Datafast{ServerKey: "k"},
			"deuna":    payment.DeUna{SecretKey: "k"},
		},
		DefaultProvider: "datafast",
	}

	provider, sync, err := svc.selectProvider(Input{})
	require.NoError(t, err)
	require.Equal(t, "datafast", provider.Name())
	require.Nil(t, sync, "hosted-page provider must not be synchronous")

	provider, sync, err = svc.selectProvider(Input{PaymentMethod: "DeUna"})
	require.NoError(t, err)
	require.Equal(t, "deuna", provider.Name())
	require.NotNil(t, sync)

	_, _, err = svc.selectProvider(Input{PaymentMethod: "stripe"})
	require.Error(t, err)
}

func TestOrderNumberFormat(t *testing.T) {
	svc := &Service{Now: func() time.Time { return time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC) }}
	pattern := regexp.MustCompile(`^ORD-20260901-[0-9A-F]{8}$`)

	first := svc.orderNumber()
	second := svc.orderNumber()
	require.Regexp(t, pattern, first)
	require.Regexp(t, pattern, second)
	require.NotEqual(t, first, second)
}

// paymentRow scans a canned payment in the column order the repository selects.
type paymentRow struct{ p repo.Payment }

func (r paymentRow) Scan(dest ...any) error {
	*dest[0].(*pgtype.UUID) = r.p.ID
	*dest[1].(*pgtype.UUID) = r.p.OrderID
	*dest[2].(*pgtype.Text) = r.p.Provider
	*dest[3].(*repo.PaymentStatus) = r.p.Status
	*dest[4].(*int64) = r.p.Amount
	*dest[5].(*pgtype.Text) = r.p.IntentToken
	*dest[6].(*pgtype.Text) = r.p.RedirectURL
	*dest[7].(*pgtype.Text) = r.p.ProviderTxID
	*dest[8].(*[]byte) = r.p.ProviderPayload
	*dest[9].(*pgtype.Timestamptz) = r.p.ExpiresAt
	*dest[10].(*pgtype.Timestamptz) = r.p.CreatedAt
	*dest[11].(*pgtype.Timestamptz) = r.p.UpdatedAt
	return nil
}

// paymentCaptureDB records the status of every payment row inserted through it.
type paymentCaptureDB struct {
	statuses []repo.PaymentStatus
}

func (db *paymentCaptureDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 1"), nil
}

func (db *paymentCaptureDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (db *paymentCaptureDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	status := repo.PaymentStatusPending
	if len(args) >= 3 {
		if st, ok := args[2].(repo.PaymentStatus); ok {
			status = st
		}
	}
	db.statuses = append(db.statuses, status)
	return paymentRow{p: repo.Payment{ID: repo.NewUUID(), Status: status}}
}

type stubSyncProvider struct {
	confirm func(ctx context.Context, req payment.ConfirmRequest) (payment.ConfirmResult, error)
}

func (stubSyncProvider) Name() string { return "deuna" }

func (stubSyncProvider) CreateIntent(context.Context, payment.IntentRequest) (payment.IntentResponse, error) {
	return payment.IntentResponse{}, errors.New("not a hosted-page provider")
}

func (stubSyncProvider) VerifyWebhook(*http.Request, []byte) (payment.WebhookVerifyResult, error) {
	return payment.WebhookVerifyResult{}, nil
}

func (p stubSyncProvider) Confirm(ctx context.Context, req payment.ConfirmRequest) (payment.ConfirmResult, error) {
	return p.confirm(ctx, req)
}

func pendingOrder() repo.Order {
	return repo.Order{
		ID:           repo.NewUUID(),
		OrderNumber:  "ORD-20260901-0AF3C2D1",
		UserID:       repo.NewUUID(),
		Status:       repo.OrderStatusPending,
		Currency:     "USD",
		PricingTotal: 11_500,
	}
}

func TestConfirmSyncTimeoutKeepsOrderPending(t *testing.T) {
	db := &paymentCaptureDB{}
	svc := &Service{PaymentTimeout: 5 * time.Millisecond, Log: zerolog.Nop()}
	sync := stubSyncProvider{confirm: func(ctx context.Context, _ payment.ConfirmRequest) (payment.ConfirmResult, error) {
		<-ctx.Done()
		return payment.ConfirmResult{}, ctx.Err()
	}}

	order := pendingOrder()
	var out Output
	paid, err := svc.confirmSync(context.Background(), nil, repo.Orders{DB: db},
		repo.Payments{DB: db}, &order, sync, "tok_visa", &out)

	require.NoError(t, err, "an unresolved charge must not abort the checkout")
	require.False(t, paid)
	require.Equal(t, repo.OrderStatusPending, order.Status)
	require.Equal(t, []repo.PaymentStatus{repo.PaymentStatusPending}, db.statuses,
		"the unresolved charge must be recorded as a pending payment")
	require.Equal(t, string(repo.PaymentStatusPending), out.Payment.Status)
	require.Equal(t, "deuna", out.Payment.Provider)
}

func TestConfirmSyncProviderErrorFailsCheckout(t *testing.T) {
	db := &paymentCaptureDB{}
	svc := &Service{PaymentTimeout: time.Second, Log: zerolog.Nop()}
	sync := stubSyncProvider{confirm: func(context.Context, payment.ConfirmRequest) (payment.ConfirmResult, error) {
		return payment.ConfirmResult{}, errors.New("malformed provider response")
	}}

	order := pendingOrder()
	var out Output
	_, err := svc.confirmSync(context.Background(), nil, repo.Orders{DB: db},
		repo.Payments{DB: db}, &order, sync, "tok_visa", &out)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodePaymentProvider, appErr.Code)
	require.Empty(t, db.statuses, "a definite failure records nothing before rollback")
}

func TestConfirmSyncDeclineRecordsFailedPayment(t *testing.T) {
	db := &paymentCaptureDB{}
	svc := &Service{PaymentTimeout: time.Second, Log: zerolog.Nop()}
	sync := stubSyncProvider{confirm: func(context.Context, payment.ConfirmRequest) (payment.ConfirmResult, error) {
		return payment.ConfirmResult{ProviderTx: "DU-1", Status: "FAILED"}, nil
	}}

	order := pendingOrder()
	var out Output
	paid, err := svc.confirmSync(context.Background(), nil, repo.Orders{DB: db},
		repo.Payments{DB: db}, &order, sync, "tok_visa", &out)

	require.NoError(t, err)
	require.False(t, paid)
	require.Equal(t, repo.OrderStatusPending, order.Status)
	require.Equal(t, []repo.PaymentStatus{repo.PaymentStatusFailed}, db.statuses)
	require.Equal(t, string(repo.PaymentStatusFailed), out.Payment.Status)
}
