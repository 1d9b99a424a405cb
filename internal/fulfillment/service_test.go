package fulfillment

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/kevinvillajim/bcommerce-core/internal/repo"
)

type stubQuerier struct {
	byID       repo.SellerOrder
	byTracking repo.SellerOrder
	missing    bool
	updates    []repo.UpdateSellerOrderDeliveryParams
}

func (s *stubQuerier) GetSellerOrderByID(ctx context.Context, id pgtype.UUID) (repo.SellerOrder, error) {
	if s.missing {
		return repo.SellerOrder{}, pgx.ErrNoRows
	}
	return s.byID, nil
}

func (s *stubQuerier) GetSellerOrderByTracking(ctx context.Context, trackingNumber string) (repo.SellerOrder, error) {
	if s.missing {
		return repo.SellerOrder{}, pgx.ErrNoRows
	}
	return s.byTracking, nil
}

func (s *stubQuerier) UpdateSellerOrderDelivery(ctx context.Context, arg repo.UpdateSellerOrderDeliveryParams) error {
	s.updates = append(s.updates, arg)
	return nil
}

func paidSellerOrder(delivery repo.DeliveryStatus) repo.SellerOrder {
	return repo.SellerOrder{
		ID:             repo.NewUUID(),
		OrderID:        repo.NewUUID(),
		SellerID:       repo.NewUUID(),
		Status:         repo.OrderStatusPaid,
		DeliveryStatus: delivery,
	}
}

func TestShipRequiresPaidOrder(t *testing.T) {
	so := paidSellerOrder(repo.DeliveryStatusProcessing)
	so.Status = repo.OrderStatusPending
	svc := &Service{Q: &stubQuerier{byID: so}}

	_, err := svc.Ship(context.Background(), so.ID, "dhl", "TRK1")
	require.ErrorIs(t, err, ErrNotEligible)
}

func TestShipRecordsCourierAndTracking(t *testing.T) {
	q := &stubQuerier{byID: paidSellerOrder(repo.DeliveryStatusProcessing)}
	svc := &Service{Q: q}

	so, err := svc.Ship(context.Background(), q.byID.ID, "dhl", "TRK1")
	require.NoError(t, err)
	require.Equal(t, repo.DeliveryStatusShipped, so.DeliveryStatus)
	require.Len(t, q.updates, 1)
	require.Equal(t, "dhl", q.updates[0].Courier.String)
	require.Equal(t, "TRK1", q.updates[0].TrackingNumber.String)
}

func TestShipRejectsAlreadyShipped(t *testing.T) {
	q := &stubQuerier{byID: paidSellerOrder(repo.DeliveryStatusShipped)}
	svc := &Service{Q: q}

	_, err := svc.Ship(context.Background(), q.byID.ID, "dhl", "TRK1")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdvanceForwardOnly(t *testing.T) {
	q := &stubQuerier{}
	svc := &Service{Q: q}

	so, err := svc.Advance(context.Background(), paidSellerOrder(repo.DeliveryStatusShipped), repo.DeliveryStatusDelivered)
	require.NoError(t, err, "skipping intermediate scans is allowed")
	require.Equal(t, repo.DeliveryStatusDelivered, so.DeliveryStatus)

	_, err = svc.Advance(context.Background(), paidSellerOrder(repo.DeliveryStatusDelivered), repo.DeliveryStatusShipped)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Advance(context.Background(), paidSellerOrder(repo.DeliveryStatusShipped), repo.DeliveryStatusShipped)
	require.ErrorIs(t, err, ErrInvalidTransition, "duplicate scans are rejected")
}

func TestMapExternalToStatus(t *testing.T) {
	cases := map[string]repo.DeliveryStatus{
		"shipped":          repo.DeliveryStatusShipped,
		"in_transit":       repo.DeliveryStatusShipped,
		"out-for-delivery": repo.DeliveryStatusOutForDelivery,
		"DELIVERED":        repo.DeliveryStatusDelivered,
		"mystery":          "",
	}
	for raw, want := range cases {
		require.Equal(t, want, MapExternalToStatus(raw), raw)
	}
}
