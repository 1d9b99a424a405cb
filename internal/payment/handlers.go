package payment

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kevinvillajim/bcommerce-core/internal/common"
	"github.com/kevinvillajim/bcommerce-core/internal/repo"
)

// Handler exposes payment intent creation and status lookup.
type Handler struct {
	Svc *Service
}

type paymentPayload struct {
	ID          string `json:"id"`
	OrderID     string `json:"orderId"`
	Provider    string `json:"provider,omitempty"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	IntentToken string `json:"intentToken,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	ExpiresAt   string `json:"expiresAt,omitempty"`
}

func toPayload(p repo.Payment) paymentPayload {
	out := paymentPayload{
		ID:      repo.UUIDString(p.ID),
		OrderID: repo.UUIDString(p.OrderID),
		Status:  string(p.Status),
		Amount:  p.Amount,
	}
	if p.Provider.Valid {
		out.Provider = p.Provider.String
	}
	if p.IntentToken.Valid {
		out.IntentToken = p.IntentToken.String
	}
	if p.RedirectURL.Valid {
		out.RedirectURL = p.RedirectURL.String
	}
	if p.ExpiresAt.Valid {
		out.ExpiresAt = p.ExpiresAt.Time.Format(time.RFC3339)
	}
	return out
}

// CreateIntent opens (or reuses) a payment intent for a pending order.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "payment service not configured", nil)
		return
	}
	payment, err := h.Svc.CreateIntent(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, toPayload(payment))
}

// Status returns the consolidated payment status for an order.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "payment service not configured", nil)
		return
	}
	status, err := h.Svc.ConsolidatedStatus(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, map[string]string{"status": status})
}
