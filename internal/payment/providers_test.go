package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func datafastBody(t *testing.T, d Datafast, txID, status, amount string, tamperSignature bool) []byte {
	t.Helper()
	sig := d.computeSignature(txID, status, amount)
	if tamperSignature {
		sig = "deadbeef" + sig[8:]
	}
	body, err := json.Marshal(map[string]any{
		"transaction_id": txID,
		"status":         status,
		"amount":         json.Number(amount),
		"signature":      sig,
	})
	require.NoError(t, err)
	return body
}

func TestDatafastVerifyWebhook(t *testing.T) {
	d := Datafast{ServerKey: "secret"}
	body := datafastBody(t, d, "DF-123", "success", "49163", false)

	res, err := d.VerifyWebhook(nil, body)
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, "DF-123", res.ProviderTx)
	require.Equal(t, int64(49_163), res.Amount)
	require.Equal(t, "PAID", res.Status)
}

func TestDatafastRejectsTamperedSignature(t *testing.T) {
	d := Datafast{ServerKey: "secret"}
	body := datafastBody(t, d, "DF-123", "success", "49163", true)

	res, err := d.VerifyWebhook(nil, body)
	require.NoError(t, err)
	require.False(t, res.Valid)
}

func TestDatafastRejectsWithoutServerKey(t *testing.T) {
	keyed := Datafast{ServerKey: "secret"}
	body := datafastBody(t, keyed, "DF-123", "success", "100", false)

	res, err := Datafast{}.VerifyWebhook(nil, body)
	require.NoError(t, err)
	require.False(t, res.Valid)
}

func TestDatafastStatusMapping(t *testing.T) {
	cases := map[string]string{
		"success":   "PAID",
		"processed": "PAID",
		"rejected":  "FAILED",
		"cancelled": "CANCELLED",
		"refunded":  "REFUNDED",
		"whatever":  "PENDING",
	}
	for raw, want := range cases {
		if got := normaliseDatafastStatus(raw); got != want {
			t.Errorf("normaliseDatafastStatus(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestDeUnaVerifyWebhook(t *testing.T) {
	d := DeUna{SecretKey: "secret"}
	body, err := json.Marshal(map[string]any{
		"transaction_id": "DU-9",
		"amount":         json.Number("2500"),
		"status":         "refunded",
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/webhooks/deuna", bytes.NewReader(body))
	req.Header.Set("x-deuna-signature", d.computeSignature(body))

	res, err := d.VerifyWebhook(req, body)
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, "DU-9", res.ProviderTx)
	require.Equal(t, "REFUNDED", res.Status)

	req.Header.Set("x-deuna-signature", "bogus")
	res, err = d.VerifyWebhook(req, body)
	require.NoError(t, err)
	require.False(t, res.Valid)
}

func TestDeUnaConfirmRequiresCardToken(t *testing.T) {
	d := DeUna{SecretKey: "secret"}
	_, err := d.Confirm(context.Background(), ConfirmRequest{OrderNumber: "ORD-1", Amount: 100})
	require.Error(t, err)

	res, err := d.Confirm(context.Background(), ConfirmRequest{OrderNumber: "ORD-1", Amount: 100, CardToken: "tok"})
	require.NoError(t, err)
	require.Equal(t, "PAID", res.Status)
	require.NotEmpty(t, res.ProviderTx)
}
