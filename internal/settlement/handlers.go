package settlement

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kevinvillajim/bcommerce-core/internal/common"
	"github.com/kevinvillajim/bcommerce-core/internal/repo"
)

// Handler exposes settlement reports.
type Handler struct {
	Earnings *EarningsService
}

// SellerEarnings serves the cached earnings report for one seller.
func (h *Handler) SellerEarnings(w http.ResponseWriter, r *http.Request) {
	if h.Earnings == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "earnings service not configured", nil)
		return
	}
	sellerID, err := repo.ToUUID(chi.URLParam(r, "sellerID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid seller id", nil)
		return
	}
	report, err := h.Earnings.Report(r.Context(), sellerID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, report)
}
