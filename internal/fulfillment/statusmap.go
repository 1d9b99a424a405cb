package fulfillment

import (
	"strings"

	"github.com/kevinvillajim/bcommerce-core/internal/repo"
)

// MapExternalToStatus converts courier status labels into internal delivery
// statuses. Unrecognised labels map to the empty string.
func MapExternalToStatus(external string) repo.DeliveryStatus {
	switch strings.ToLower(strings.TrimSpace(external)) {
	case "shipped", "in_transit", "in-transit", "picked_up":
		return repo.DeliveryStatusShipped
	case "out_for_delivery", "out-for-delivery":
		return repo.DeliveryStatusOutForDelivery
	case "delivered":
		return repo.DeliveryStatusDelivered
	}
	return ""
}

var deliveryRank = map[repo.DeliveryStatus]int{
	repo.DeliveryStatusProcessing:     0,
	repo.DeliveryStatusShipped:        1,
	repo.DeliveryStatusOutForDelivery: 2,
	repo.DeliveryStatusDelivered:      3,
}

// allowedDeliveryTransition permits forward moves only. Couriers sometimes
// skip intermediate scans, so jumping ahead is legal; moving backwards is not.
func allowedDeliveryTransition(from, to repo.DeliveryStatus) bool {
	fromRank, ok := deliveryRank[from]
	if !ok {
		return false
	}
	toRank, ok := deliveryRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}
