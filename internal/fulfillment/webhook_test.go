package fulfillment

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kevinvillajim/bcommerce-core/internal/repo"
)

func newWebhook(t *testing.T, q Querier) Webhook {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return Webhook{
		Svc:       &Service{Q: q},
		Replay:    client,
		ReplayTTL: time.Minute,
	}
}

func deliver(h Webhook, courier string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/shipping/"+courier, bytes.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("courier", courier)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestWebhookAdvancesDelivery(t *testing.T) {
	so := paidSellerOrder(repo.DeliveryStatusShipped)
	q := &stubQuerier{byTracking: so}
	h := newWebhook(t, q)

	rec := deliver(h, "dhl", []byte(`{"trackingNumber":"TRK1","externalStatus":"delivered"}`))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, q.updates, 1)
	require.Equal(t, repo.DeliveryStatusDelivered, q.updates[0].DeliveryStatus)
}

func TestWebhookReplayRejected(t *testing.T) {
	q := &stubQuerier{byTracking: paidSellerOrder(repo.DeliveryStatusShipped)}
	h := newWebhook(t, q)
	body := []byte(`{"trackingNumber":"TRK1","externalStatus":"delivered"}`)

	first := deliver(h, "dhl", body)
	require.Equal(t, http.StatusNoContent, first.Code)

	second := deliver(h, "dhl", body)
	require.Equal(t, http.StatusConflict, second.Code)
}

func TestWebhookUnknownTracking(t *testing.T) {
	h := newWebhook(t, &stubQuerier{missing: true})
	rec := deliver(h, "dhl", []byte(`{"trackingNumber":"NOPE","externalStatus":"delivered"}`))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookUnrecognisedStatus(t *testing.T) {
	h := newWebhook(t, &stubQuerier{byTracking: paidSellerOrder(repo.DeliveryStatusShipped)})
	rec := deliver(h, "dhl", []byte(`{"trackingNumber":"TRK1","externalStatus":"mystery"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookBackwardTransitionRejected(t *testing.T) {
	h := newWebhook(t, &stubQuerier{byTracking: paidSellerOrder(repo.DeliveryStatusDelivered)})
	rec := deliver(h, "dhl", []byte(`{"trackingNumber":"TRK1","externalStatus":"shipped"}`))
	require.Equal(t, http.StatusConflict, rec.Code)
}
