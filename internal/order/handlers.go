package order

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kevinvillajim/bcommerce-core/internal/common"
	"github.com/kevinvillajim/bcommerce-core/internal/repo"
)

// Handler serves the buyer-facing order surface.
type Handler struct {
	Orders repo.Orders
}

func orderSummary(o repo.Order) map[string]any {
	return map[string]any{
		"id":             repo.UUIDString(o.ID),
		"orderNumber":    o.OrderNumber,
		"status":         o.Status,
		"currency":       o.Currency,
		"subtotal":       o.PricingSubtotal,
		"sellerDiscount": o.PricingSellerDiscount,
		"volumeDiscount": o.PricingVolumeDiscount,
		"couponDiscount": o.PricingCouponDiscount,
		"tax":            o.PricingTax,
		"shipping":       o.PricingShipping,
		"total":          o.PricingTotal,
		"createdAt":      o.CreatedAt,
	}
}

// List returns a page of the authenticated buyer's orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	uid, err := repo.ToUUID(userID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid user id", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	total, err := h.Orders.CountOrdersByUser(r.Context(), uid)
	if err != nil {
		common.WriteError(w, common.PersistenceError(err))
		return
	}
	orders, err := h.Orders.ListOrdersByUser(r.Context(), uid, int32(perPage), int32(common.Offset(page, perPage)))
	if err != nil {
		common.WriteError(w, common.PersistenceError(err))
		return
	}
	response := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		response = append(response, orderSummary(o))
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": response,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: int(total),
		},
	})
}

// Get returns one order with its lines, seller orders and the frozen pricing
// snapshot captured at checkout.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOwnOrder(w, r)
	if !ok {
		return
	}
	items, err := h.Orders.ListOrderItems(r.Context(), o.ID)
	if err != nil {
		common.WriteError(w, common.PersistenceError(err))
		return
	}
	sellerOrders, err := h.Orders.ListSellerOrdersByOrder(r.Context(), o.ID)
	if err != nil {
		common.WriteError(w, common.PersistenceError(err))
		return
	}

	responseItems := make([]map[string]any, 0, len(items))
	for _, it := range items {
		line := map[string]any{
			"id":                repo.UUIDString(it.ID),
			"productId":         repo.UUIDString(it.ProductID),
			"sellerId":          repo.UUIDString(it.SellerID),
			"qty":               it.Qty,
			"unitPrice":         it.UnitPrice,
			"finalUnitPrice":    it.FinalUnitPrice,
			"lineSubtotal":      it.LineSubtotal,
			"savings":           it.Savings,
			"sellerDiscountBps": it.SellerDiscountBps,
			"volumeBps":         it.VolumeBps,
		}
		if it.TierLabel.Valid {
			line["tierLabel"] = it.TierLabel.String
		}
		responseItems = append(responseItems, line)
	}
	responseSellers := make([]map[string]any, 0, len(sellerOrders))
	for _, so := range sellerOrders {
		entry := map[string]any{
			"id":             repo.UUIDString(so.ID),
			"sellerId":       repo.UUIDString(so.SellerID),
			"total":          so.Total,
			"shippingShare":  so.ShippingShare,
			"status":         so.Status,
			"deliveryStatus": so.DeliveryStatus,
		}
		if so.Courier.Valid {
			entry["courier"] = so.Courier.String
		}
		if so.TrackingNumber.Valid {
			entry["trackingNumber"] = so.TrackingNumber.String
		}
		responseSellers = append(responseSellers, entry)
	}

	detail := orderSummary(o)
	detail["items"] = responseItems
	detail["sellerOrders"] = responseSellers
	if len(o.PricingSnapshot) > 0 {
		detail["pricingSnapshot"] = json.RawMessage(o.PricingSnapshot)
	}
	if len(o.ShippingAddress) > 0 {
		detail["shippingAddress"] = json.RawMessage(o.ShippingAddress)
	}
	if o.AppliedCouponCode.Valid {
		detail["couponCode"] = o.AppliedCouponCode.String
	}
	common.JSONData(w, http.StatusOK, detail)
}

// Cancel aborts an order that has not been paid yet.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOwnOrder(w, r)
	if !ok {
		return
	}
	if o.Status != repo.OrderStatusPending {
		common.JSONError(w, http.StatusConflict, common.CodeConflict,
			"only pending orders can be cancelled", nil)
		return
	}
	if err := h.Orders.UpdateOrderStatus(r.Context(), o.ID, repo.OrderStatusCancelled); err != nil {
		common.WriteError(w, common.PersistenceError(err))
		return
	}
	if err := h.Orders.UpdateSellerOrderStatus(r.Context(), o.ID, repo.OrderStatusCancelled); err != nil {
		common.WriteError(w, common.PersistenceError(err))
		return
	}
	o.Status = repo.OrderStatusCancelled
	common.JSONData(w, http.StatusOK, orderSummary(o))
}

func (h *Handler) loadOwnOrder(w http.ResponseWriter, r *http.Request) (repo.Order, bool) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return repo.Order{}, false
	}
	oid, err := repo.ToUUID(chi.URLParam(r, "orderID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid order id", nil)
		return repo.Order{}, false
	}
	uid, err := repo.ToUUID(userID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid user id", nil)
		return repo.Order{}, false
	}
	o, err := h.Orders.GetOrderByID(r.Context(), oid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "order not found", nil)
			return repo.Order{}, false
		}
		common.WriteError(w, common.PersistenceError(err))
		return repo.Order{}, false
	}
	if !ownsOrder(o, uid) {
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "order not found", nil)
		return repo.Order{}, false
	}
	return o, true
}

// ownsOrder hides other buyers' orders behind a 404 instead of a 403.
func ownsOrder(o repo.Order, userID pgtype.UUID) bool {
	return repo.UUIDEqual(o.UserID, userID)
}
