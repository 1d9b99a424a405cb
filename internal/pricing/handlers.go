package pricing

import (
	"context"
	"encoding/json"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kevinvillajim/bcommerce-core/internal/common"
	"github.com/kevinvillajim/bcommerce-core/internal/repo"
)

// ItemPayload is one cart line in a quote or checkout request.
type ItemPayload struct {
	ProductID         string            `json:"productId" validate:"required,uuid4"`
	SellerID          string            `json:"sellerId" validate:"required,uuid4"`
	Qty               int               `json:"qty" validate:"required,min=1"`
	UnitPrice         int64             `json:"unitPrice" validate:"required,min=0"`
	SellerDiscountBps int               `json:"sellerDiscountBps" validate:"min=0,max=10000"`
	Attributes        map[string]string `json:"attributes,omitempty"`
}

// QuoteRequest asks for a full totals breakdown of the submitted items.
type QuoteRequest struct {
	Items          []ItemPayload   `json:"items" validate:"required,min=1,dive"`
	CouponCode     string          `json:"couponCode,omitempty"`
	DeclaredTotals *DeclaredTotals `json:"declaredTotals,omitempty"`
}

// ToItems converts validated payloads into pricing items.
func ToItems(payloads []ItemPayload) ([]Item, error) {
	items := make([]Item, 0, len(payloads))
	for _, p := range payloads {
		productID, err := repo.ToUUID(p.ProductID)
		if err != nil {
			return nil, common.ValidationError("invalid product id", err)
		}
		sellerID, err := repo.ToUUID(p.SellerID)
		if err != nil {
			return nil, common.ValidationError("invalid seller id", err)
		}
		items = append(items, Item{
			ProductID:         productID,
			SellerID:          sellerID,
			Qty:               p.Qty,
			UnitPrice:         p.UnitPrice,
			SellerDiscountBps: p.SellerDiscountBps,
			Attributes:        p.Attributes,
		})
	}
	return items, nil
}

// Handler serves pricing quotes.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type pricedItemPayload struct {
	ProductID       string `json:"productId"`
	SellerID        string `json:"sellerId"`
	Qty             int    `json:"qty"`
	UnitPrice       int64  `json:"unitPrice"`
	UnitAfterSeller int64  `json:"unitAfterSeller"`
	FinalUnitPrice  int64  `json:"finalUnitPrice"`
	LineSubtotal    int64  `json:"lineSubtotal"`
	Savings         int64  `json:"savings"`
	VolumeBps       int    `json:"volumeBps"`
	TierLabel       string `json:"tierLabel,omitempty"`
}

// PricedItemsPayload shapes priced lines for JSON responses.
func PricedItemsPayload(priced []PricedItem) []pricedItemPayload {
	out := make([]pricedItemPayload, 0, len(priced))
	for _, it := range priced {
		out = append(out, pricedItemPayload{
			ProductID:       repo.UUIDString(it.ProductID),
			SellerID:        repo.UUIDString(it.SellerID),
			Qty:             it.Qty,
			UnitPrice:       it.UnitPrice,
			UnitAfterSeller: it.UnitAfterSeller,
			FinalUnitPrice:  it.FinalUnitPrice,
			LineSubtotal:    it.LineSubtotal,
			Savings:         it.Savings,
			VolumeBps:       it.VolumeBps,
			TierLabel:       it.TierLabel,
		})
	}
	return out
}

// Quote computes a totals breakdown for the submitted cart without persisting
// anything. Authentication is optional; a user id improves coupon checks.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "pricing service not configured", nil)
		return
	}
	var payload QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
			return
		}
	}
	items, err := ToItems(payload.Items)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	userID, _ := common.UserID(r.Context())
	totals, priced := h.Svc.Quote(r.Context(), userID, items, payload.CouponCode)

	body := map[string]any{
		"totals": totals,
		"items":  PricedItemsPayload(priced),
	}
	if payload.DeclaredTotals != nil {
		body["reconciliation"] = Reconcile(totals, *payload.DeclaredTotals, DefaultTolerance)
	}
	common.JSONData(w, http.StatusOK, body)
}

// RepoTierSource adapts the tiers repository to the TierSource interface.
type RepoTierSource struct {
	Tiers repo.Tiers
}

// TiersForProduct loads and normalises product tier overrides.
func (s RepoTierSource) TiersForProduct(ctx context.Context, productID pgtype.UUID) (TierSet, error) {
	rows, err := s.Tiers.ListTiersForProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	entries := make([]Tier, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Tier{MinQty: int(row.MinQty), PercentBps: int(row.PercentBps), Label: row.Label})
	}
	return NormalizeTiers(entries), nil
}
