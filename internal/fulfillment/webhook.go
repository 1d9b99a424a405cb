package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kevinvillajim/bcommerce-core/internal/common"
	"github.com/kevinvillajim/bcommerce-core/internal/obs"
)

type replayStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Webhook handles courier callbacks and synchronises delivery state.
type Webhook struct {
	Svc       *Service
	Replay    replayStore
	ReplayTTL time.Duration
}

type webhookPayload struct {
	TrackingNumber string `json:"trackingNumber"`
	ExternalStatus string `json:"externalStatus"`
}

// Handle processes a delivery update from the courier named in the URL.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Svc.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "fulfillment service not configured", nil)
		return
	}
	if h.Replay == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "replay protection not configured", nil)
		return
	}
	ctx, span := otel.Tracer("fulfillment.Webhook").Start(r.Context(), "FulfillmentWebhook.Handle")
	defer span.End()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		span.RecordError(err)
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "unable to read payload", nil)
		return
	}
	courier := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "courier")))
	span.SetAttributes(attribute.String("fulfillment.webhook.courier", courier))
	outcome := "error"
	defer func() {
		if obs.FulfillmentWebhookTotal != nil {
			obs.FulfillmentWebhookTotal.WithLabelValues(courier, outcome).Inc()
		}
	}()

	key := fmt.Sprintf("shwh:%s:%s", courier, common.Sha256Hex(body))
	fresh, err := h.Replay.SetNX(ctx, key, "1", h.ReplayTTL).Result()
	if err != nil {
		span.RecordError(err)
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "replay protection failed", nil)
		return
	}
	if !fresh {
		outcome = "replay"
		common.JSONError(w, http.StatusConflict, common.CodeConflict, "duplicate webhook payload", nil)
		return
	}

	payload, err := decodeWebhookPayload(body, r)
	if err != nil {
		span.RecordError(err)
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
		return
	}
	status := MapExternalToStatus(payload.ExternalStatus)
	if status == "" {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "unrecognised external status", nil)
		return
	}
	span.SetAttributes(attribute.String("fulfillment.webhook.status", string(status)))

	if _, err := h.Svc.AdvanceByTracking(ctx, payload.TrackingNumber, status); err != nil {
		switch {
		case errors.Is(err, ErrInvalidTransition):
			outcome = "invalid_transition"
			common.JSONError(w, http.StatusConflict, common.CodeConflict, err.Error(), nil)
		case errors.Is(err, pgx.ErrNoRows):
			outcome = "unknown_tracking"
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "unknown tracking number", nil)
		default:
			span.RecordError(err)
			common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "failed to record delivery update", nil)
		}
		return
	}
	outcome = "success"
	w.WriteHeader(http.StatusNoContent)
}

func decodeWebhookPayload(body []byte, r *http.Request) (webhookPayload, error) {
	var payload webhookPayload
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			payload = webhookPayload{}
		}
	}
	if payload.TrackingNumber == "" {
		payload.TrackingNumber = r.URL.Query().Get("tracking")
	}
	if payload.ExternalStatus == "" {
		payload.ExternalStatus = r.URL.Query().Get("status")
	}
	if payload.TrackingNumber == "" {
		return webhookPayload{}, errors.New("tracking number is required")
	}
	if payload.ExternalStatus == "" {
		return webhookPayload{}, errors.New("status is required")
	}
	return payload, nil
}
