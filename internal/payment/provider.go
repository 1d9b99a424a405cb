package payment

import (
	"context"
	"net/http"
)

// IntentRequest captures the information required to open a payment intent
// with a provider.
type IntentRequest struct {
	OrderNumber     string
	Amount          int64
	Currency        string
	CallbackBaseURL string
	ExpiresAtSec    int
}

// IntentResponse is the minimal information returned by a provider when an
// intent is created.
type IntentResponse struct {
	Provider    string
	Token       string
	RedirectURL string
	ProviderTx  string
	ExpiresAt   int64
}

// WebhookVerifyResult contains the normalised data extracted from a webhook
// notification after signature verification.
type WebhookVerifyResult struct {
	Valid           bool
	ProviderTx      string
	Amount          int64
	Status          string
	ProviderPayload []byte
	Err             error
}

// Provider abstracts the operations required from an upstream payment gateway.
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error)
	VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error)
}

// ConfirmRequest carries the card token for a synchronous charge.
type ConfirmRequest struct {
	OrderNumber string
	Amount      int64
	Currency    string
	CardToken   string
}

// ConfirmResult is the immediate outcome of a synchronous charge.
type ConfirmResult struct {
	ProviderTx string
	Status     string
	Payload    []byte
}

// SyncProvider is implemented by gateways that confirm the charge during
// checkout instead of redirecting the buyer to a hosted page.
type SyncProvider interface {
	Provider
	Confirm(ctx context.Context, req ConfirmRequest) (ConfirmResult, error)
}
