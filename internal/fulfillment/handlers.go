package fulfillment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/kevinvillajim/bcommerce-core/internal/common"
	"github.com/kevinvillajim/bcommerce-core/internal/repo"
)

// Handler exposes seller-facing fulfillment operations.
type Handler struct {
	Svc *Service
}

type shipRequest struct {
	Courier        string `json:"courier"`
	TrackingNumber string `json:"trackingNumber"`
}

type sellerOrderPayload struct {
	ID             string `json:"id"`
	OrderID        string `json:"orderId"`
	SellerID       string `json:"sellerId"`
	Status         string `json:"status"`
	DeliveryStatus string `json:"deliveryStatus"`
	Courier        string `json:"courier,omitempty"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
}

// SellerOrderPayload shapes a seller order for JSON responses.
func SellerOrderPayload(so repo.SellerOrder) any {
	out := sellerOrderPayload{
		ID:             repo.UUIDString(so.ID),
		OrderID:        repo.UUIDString(so.OrderID),
		SellerID:       repo.UUIDString(so.SellerID),
		Status:         string(so.Status),
		DeliveryStatus: string(so.DeliveryStatus),
	}
	if so.Courier.Valid {
		out.Courier = so.Courier.String
	}
	if so.TrackingNumber.Valid {
		out.TrackingNumber = so.TrackingNumber.String
	}
	return out
}

// Ship marks a paid seller order shipped.
func (h *Handler) Ship(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "fulfillment service not configured", nil)
		return
	}
	id, err := repo.ToUUID(chi.URLParam(r, "sellerOrderID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid seller order id", nil)
		return
	}
	var payload shipRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid payload", nil)
		return
	}
	so, err := h.Svc.Ship(r.Context(), id, payload.Courier, payload.TrackingNumber)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotEligible), errors.Is(err, ErrInvalidTransition):
			common.JSONError(w, http.StatusConflict, common.CodeConflict, err.Error(), nil)
		case errors.Is(err, pgx.ErrNoRows):
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "seller order not found", nil)
		default:
			common.WriteError(w, common.PersistenceError(err))
		}
		return
	}
	common.JSONData(w, http.StatusOK, SellerOrderPayload(so))
}
