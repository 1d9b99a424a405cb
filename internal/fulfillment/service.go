package fulfillment

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/kevinvillajim/bcommerce-core/internal/events"
	"github.com/kevinvillajim/bcommerce-core/internal/repo"
)

var (
	// ErrNotEligible is returned when the seller order cannot be shipped yet.
	ErrNotEligible = errors.New("seller order is not paid")
	// ErrInvalidTransition is returned when a delivery status change would move backwards.
	ErrInvalidTransition = errors.New("invalid delivery status transition")
)

// Querier is the persistence surface required by the fulfillment service.
type Querier interface {
	GetSellerOrderByID(ctx context.Context, id pgtype.UUID) (repo.SellerOrder, error)
	GetSellerOrderByTracking(ctx context.Context, trackingNumber string) (repo.SellerOrder, error)
	UpdateSellerOrderDelivery(ctx context.Context, arg repo.UpdateSellerOrderDeliveryParams) error
}

// Service coordinates per-seller delivery state and notifications.
type Service struct {
	Q      Querier
	Events *events.Bus
	Log    zerolog.Logger
}

// Ship marks a paid seller order shipped and records courier metadata.
func (s *Service) Ship(ctx context.Context, sellerOrderID pgtype.UUID, courier, tracking string) (repo.SellerOrder, error) {
	if s == nil || s.Q == nil {
		return repo.SellerOrder{}, errors.New("fulfillment service not configured")
	}
	so, err := s.Q.GetSellerOrderByID(ctx, sellerOrderID)
	if err != nil {
		return repo.SellerOrder{}, err
	}
	if so.Status != repo.OrderStatusPaid {
		return repo.SellerOrder{}, ErrNotEligible
	}
	if !allowedDeliveryTransition(so.DeliveryStatus, repo.DeliveryStatusShipped) {
		return repo.SellerOrder{}, ErrInvalidTransition
	}
	if err := s.Q.UpdateSellerOrderDelivery(ctx, repo.UpdateSellerOrderDeliveryParams{
		ID:             so.ID,
		DeliveryStatus: repo.DeliveryStatusShipped,
		Courier:        optionalText(courier),
		TrackingNumber: optionalText(tracking),
	}); err != nil {
		return repo.SellerOrder{}, err
	}
	so.DeliveryStatus = repo.DeliveryStatusShipped
	if courier != "" {
		so.Courier = pgtype.Text{String: courier, Valid: true}
	}
	if tracking != "" {
		so.TrackingNumber = pgtype.Text{String: tracking, Valid: true}
	}
	s.emit(ctx, so)
	return so, nil
}

// Advance applies a courier-reported delivery status to the seller order.
func (s *Service) Advance(ctx context.Context, so repo.SellerOrder, status repo.DeliveryStatus) (repo.SellerOrder, error) {
	if s == nil || s.Q == nil {
		return repo.SellerOrder{}, errors.New("fulfillment service not configured")
	}
	if !allowedDeliveryTransition(so.DeliveryStatus, status) {
		return repo.SellerOrder{}, ErrInvalidTransition
	}
	if err := s.Q.UpdateSellerOrderDelivery(ctx, repo.UpdateSellerOrderDeliveryParams{
		ID:             so.ID,
		DeliveryStatus: status,
	}); err != nil {
		return repo.SellerOrder{}, err
	}
	so.DeliveryStatus = status
	s.emit(ctx, so)
	return so, nil
}

// AdvanceByTracking locates the seller order by tracking number and advances it.
func (s *Service) AdvanceByTracking(ctx context.Context, trackingNumber string, status repo.DeliveryStatus) (repo.SellerOrder, error) {
	if s == nil || s.Q == nil {
		return repo.SellerOrder{}, errors.New("fulfillment service not configured")
	}
	so, err := s.Q.GetSellerOrderByTracking(ctx, strings.TrimSpace(trackingNumber))
	if err != nil {
		return repo.SellerOrder{}, err
	}
	return s.Advance(ctx, so, status)
}

func (s *Service) emit(ctx context.Context, so repo.SellerOrder) {
	if s.Events == nil {
		return
	}
	topic := ""
	switch so.DeliveryStatus {
	case repo.DeliveryStatusShipped:
		topic = events.TopicShipmentShipped
	case repo.DeliveryStatusOutForDelivery:
		topic = events.TopicShipmentOutForDelivery
	case repo.DeliveryStatusDelivered:
		topic = events.TopicShipmentDelivered
	default:
		return
	}
	payload := map[string]any{
		"sellerOrderId":  repo.UUIDString(so.ID),
		"orderId":        repo.UUIDString(so.OrderID),
		"sellerId":       repo.UUIDString(so.SellerID),
		"deliveryStatus": string(so.DeliveryStatus),
	}
	if so.TrackingNumber.Valid {
		payload["trackingNumber"] = so.TrackingNumber.String
	}
	if _, err := s.Events.Emit(ctx, topic, so.OrderID, payload); err != nil {
		s.Log.Warn().Err(err).Str("topic", topic).Msg("fulfillment event emission failed")
	}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
