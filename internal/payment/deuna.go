package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeUna implements the Provider interface for a synchronous wallet charge.
// The charge is confirmed during checkout; webhooks only carry later status
// changes such as refunds.
type DeUna struct {
	SecretKey string
	BaseURL   string
}

// Name returns the provider label used in metrics and payment rows.
func (d DeUna) Name() string { return "deuna" }

// CreateIntent returns a deterministic transaction reference. DeUna has no
// hosted page, so the redirect URL points back at the merchant confirmation
// endpoint.
func (d DeUna) CreateIntent(_ context.Context, req IntentRequest) (IntentResponse, error) {
	if strings.TrimSpace(req.OrderNumber) == "" {
		return IntentResponse{}, errors.New("order number is required")
	}
	tx := fmt.Sprintf("DU-%s-%s", req.OrderNumber, uuid.NewString()[:8])
	expiresAt := time.Now().Add(time.Duration(req.ExpiresAtSec) * time.Second)
	return IntentResponse{
		Provider:   d.Name(),
		Token:      tx,
		ProviderTx: tx,
		ExpiresAt:  expiresAt.Unix(),
	}, nil
}

// Confirm performs the synchronous charge. The stub approves any request with
// a card token; the production client calls the DeUna API behind the same
// interface.
func (d DeUna) Confirm(_ context.Context, req ConfirmRequest) (ConfirmResult, error) {
	if strings.TrimSpace(req.OrderNumber) == "" {
		return ConfirmResult{}, errors.New("order number is required")
	}
	if strings.TrimSpace(req.CardToken) == "" {
		return ConfirmResult{}, errors.New("card token is required")
	}
	tx := fmt.Sprintf("DU-%s-%s", req.OrderNumber, uuid.NewString()[:8])
	payload, _ := json.Marshal(map[string]any{
		"transaction_id": tx,
		"status":         "approved",
		"amount":         req.Amount,
		"currency":       req.Currency,
	})
	return ConfirmResult{ProviderTx: tx, Status: "PAID", Payload: payload}, nil
}

// VerifyWebhook validates the body signature and normalises the payload. The
// signature header carries an HMAC-SHA256 of the raw body.
func (d DeUna) VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error) {
	expected := d.computeSignature(body)
	provided := strings.TrimSpace(r.Header.Get("x-deuna-signature"))
	if expected == "" || provided == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
		return WebhookVerifyResult{Valid: false, Err: errors.New("invalid signature")}, nil
	}
	var payload struct {
		TransactionID string      `json:"transaction_id"`
		Amount        json.Number `json:"amount"`
		Status        string      `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookVerifyResult{Valid: false, Err: err}, nil
	}
	if payload.TransactionID == "" {
		return WebhookVerifyResult{Valid: false, Err: errors.New("missing transaction id")}, nil
	}
	amount, _ := payload.Amount.Int64()
	return WebhookVerifyResult{
		Valid:           true,
		ProviderTx:      payload.TransactionID,
		Amount:          amount,
		Status:          normaliseDeUnaStatus(payload.Status),
		ProviderPayload: body,
	}, nil
}

func (d DeUna) computeSignature(body []byte) string {
	key := strings.TrimSpace(d.SecretKey)
	if key == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func normaliseDeUnaStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved", "paid", "success":
		return "PAID"
	case "pending":
		return "PENDING"
	case "rejected", "failed":
		return "FAILED"
	case "cancelled", "canceled", "voided":
		return "CANCELLED"
	case "refunded", "reversed":
		return "REFUNDED"
	default:
		return "PENDING"
	}
}
