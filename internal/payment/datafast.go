package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Datafast implements the Provider interface for a hosted-payment-page
// integration. CreateIntent synthesises a deterministic checkout id without a
// network call so the rest of the flow can be driven in tests; the production
// build swaps in the real API client behind the same interface.
type Datafast struct {
	ServerKey string
	BaseURL   string
	Sandbox   bool
}

// Name returns the provider label used in metrics and payment rows.
func (d Datafast) Name() string { return "datafast" }

// CreateIntent opens a hosted checkout session for the order.
func (d Datafast) CreateIntent(_ context.Context, req IntentRequest) (IntentResponse, error) {
	if strings.TrimSpace(req.OrderNumber) == "" {
		return IntentResponse{}, errors.New("order number is required")
	}
	checkoutID := fmt.Sprintf("DF-%s-%s", req.OrderNumber, uuid.NewString()[:8])
	expiresAt := time.Now().Add(time.Duration(req.ExpiresAtSec) * time.Second)
	return IntentResponse{
		Provider:    d.Name(),
		Token:       checkoutID,
		ProviderTx:  checkoutID,
		RedirectURL: fmt.Sprintf("%s/v1/checkouts/%s/payment", strings.TrimRight(d.host(), "/"), checkoutID),
		ExpiresAt:   expiresAt.Unix(),
	}, nil
}

func (d Datafast) host() string {
	host := strings.TrimSpace(d.BaseURL)
	if host == "" {
		if d.Sandbox {
			return "https://test.oppwa.com"
		}
		return "https://oppwa.com"
	}
	return host
}

// VerifyWebhook validates the notification signature and normalises the
// payload. The signature is an HMAC-SHA512 over transaction id, status and
// amount, in that order.
func (d Datafast) VerifyWebhook(_ *http.Request, body []byte) (WebhookVerifyResult, error) {
	var payload struct {
		TransactionID string      `json:"transaction_id"`
		Status        string      `json:"status"`
		Amount        json.Number `json:"amount"`
		Signature     string      `json:"signature"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookVerifyResult{Valid: false, Err: err}, nil
	}
	if payload.TransactionID == "" {
		return WebhookVerifyResult{Valid: false, Err: errors.New("missing transaction id")}, nil
	}
	expected := d.computeSignature(payload.TransactionID, payload.Status, payload.Amount.String())
	provided := strings.TrimSpace(payload.Signature)
	if expected == "" || provided == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
		return WebhookVerifyResult{Valid: false, Err: errors.New("invalid signature")}, nil
	}
	amount, _ := payload.Amount.Int64()
	return WebhookVerifyResult{
		Valid:           true,
		ProviderTx:      payload.TransactionID,
		Amount:          amount,
		Status:          normaliseDatafastStatus(payload.Status),
		ProviderPayload: body,
	}, nil
}

func (d Datafast) computeSignature(txID, status, amount string) string {
	key := strings.TrimSpace(d.ServerKey)
	if key == "" {
		return ""
	}
	mac := hmac.New(sha512.New, []byte(key))
	mac.Write([]byte(txID))
	mac.Write([]byte(status))
	mac.Write([]byte(amount))
	return hex.EncodeToString(mac.Sum(nil))
}

func normaliseDatafastStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "processed", "paid":
		return "PAID"
	case "pending", "in_process":
		return "PENDING"
	case "failed", "rejected", "declined":
		return "FAILED"
	case "cancelled", "canceled":
		return "CANCELLED"
	case "refunded":
		return "REFUNDED"
	default:
		return "PENDING"
	}
}
