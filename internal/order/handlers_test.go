package order

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/kevinvillajim/bcommerce-core/internal/common"
	"github.com/kevinvillajim/bcommerce-core/internal/repo"
)

// orderRow scans a canned order in the column order the repository selects.
type orderRow struct{ o repo.Order }

func (r orderRow) Scan(dest ...any) error {
	*dest[0].(*pgtype.UUID) = r.o.ID
	*dest[1].(*string) = r.o.OrderNumber
	*dest[2].(*pgtype.UUID) = r.o.UserID
	*dest[3].(*repo.OrderStatus) = r.o.Status
	*dest[4].(*string) = r.o.Currency
	*dest[5].(*int64) = r.o.PricingSubtotal
	*dest[6].(*int64) = r.o.PricingSellerDiscount
	*dest[7].(*int64) = r.o.PricingVolumeDiscount
	*dest[8].(*int64) = r.o.PricingCouponDiscount
	*dest[9].(*int64) = r.o.PricingTax
	*dest[10].(*int64) = r.o.PricingShipping
	*dest[11].(*int64) = r.o.PricingTotal
	*dest[12].(*[]byte) = r.o.PricingSnapshot
	*dest[13].(*[]byte) = r.o.ShippingAddress
	*dest[14].(*[]byte) = r.o.BillingAddress
	*dest[15].(*pgtype.Text) = r.o.AppliedCouponCode
	*dest[16].(*pgtype.Timestamptz) = r.o.CreatedAt
	*dest[17].(*pgtype.Timestamptz) = r.o.UpdatedAt
	return nil
}

type missingRow struct{}

func (missingRow) Scan(...any) error { return pgx.ErrNoRows }

// singleOrderDB serves one canned order for every lookup.
type singleOrderDB struct {
	o     repo.Order
	execs int
}

func (db *singleOrderDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	db.execs++
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (db *singleOrderDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (db *singleOrderDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return orderRow{o: db.o}
}

type emptyDB struct{}

func (emptyDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (emptyDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}
func (emptyDB) QueryRow(context.Context, string, ...any) pgx.Row { return missingRow{} }

func cannedOrder(userID pgtype.UUID, status repo.OrderStatus) repo.Order {
	return repo.Order{
		ID:              repo.NewUUID(),
		OrderNumber:     "ORD-20260901-0AF3C2D1",
		UserID:          userID,
		Status:          status,
		Currency:        "USD",
		PricingSubtotal: 10_000,
		PricingTax:      1_500,
		PricingTotal:    11_500,
	}
}

func orderRequest(method, target, orderID, userID string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := req.Context()
	if userID != "" {
		ctx = common.WithUserID(ctx, userID)
	}
	if orderID != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("orderID", orderID)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func TestListRequiresAuthentication(t *testing.T) {
	h := &Handler{Orders: repo.Orders{DB: emptyDB{}}}
	rec := httptest.NewRecorder()
	h.List(rec, orderRequest(http.MethodGet, "/orders", "", ""))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetRejectsMalformedOrderID(t *testing.T) {
	h := &Handler{Orders: repo.Orders{DB: emptyDB{}}}
	rec := httptest.NewRecorder()
	h.Get(rec, orderRequest(http.MethodGet, "/orders/nope", "nope", repo.UUIDString(repo.NewUUID())))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnknownOrderIs404(t *testing.T) {
	h := &Handler{Orders: repo.Orders{DB: emptyDB{}}}
	orderID := repo.UUIDString(repo.NewUUID())
	rec := httptest.NewRecorder()
	h.Get(rec, orderRequest(http.MethodGet, "/orders/"+orderID, orderID, repo.UUIDString(repo.NewUUID())))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetHidesForeignOrdersBehind404(t *testing.T) {
	owner := repo.NewUUID()
	db := &singleOrderDB{o: cannedOrder(owner, repo.OrderStatusPending)}
	h := &Handler{Orders: repo.Orders{DB: db}}

	orderID := repo.UUIDString(db.o.ID)
	rec := httptest.NewRecorder()
	h.Get(rec, orderRequest(http.MethodGet, "/orders/"+orderID, orderID, repo.UUIDString(repo.NewUUID())))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelPendingOrder(t *testing.T) {
	owner := repo.NewUUID()
	db := &singleOrderDB{o: cannedOrder(owner, repo.OrderStatusPending)}
	h := &Handler{Orders: repo.Orders{DB: db}}

	orderID := repo.UUIDString(db.o.ID)
	rec := httptest.NewRecorder()
	h.Cancel(rec, orderRequest(http.MethodPost, "/orders/"+orderID+"/cancel", orderID, repo.UUIDString(owner)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, db.execs, "order and seller orders must both be updated")
	require.Contains(t, rec.Body.String(), `"CANCELLED"`)
}

func TestCancelPaidOrderConflicts(t *testing.T) {
	owner := repo.NewUUID()
	db := &singleOrderDB{o: cannedOrder(owner, repo.OrderStatusPaid)}
	h := &Handler{Orders: repo.Orders{DB: db}}

	orderID := repo.UUIDString(db.o.ID)
	rec := httptest.NewRecorder()
	h.Cancel(rec, orderRequest(http.MethodPost, "/orders/"+orderID+"/cancel", orderID, repo.UUIDString(owner)))

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Zero(t, db.execs)
}
