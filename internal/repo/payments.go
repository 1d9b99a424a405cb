package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Payments provides persistence for payment records and their event trail.
type Payments struct {
	DB DBTX
}

// WithTx returns a copy of the repository bound to the provided transaction.
func (r Payments) WithTx(tx pgx.Tx) Payments {
	return Payments{DB: tx}
}

const paymentColumns = `id, order_id, provider, status, amount, intent_token,
	redirect_url, provider_tx_id, provider_payload, expires_at, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Provider, &p.Status, &p.Amount, &p.IntentToken,
		&p.RedirectURL, &p.ProviderTxID, &p.ProviderPayload, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreatePaymentParams describes a new payment attempt.
type CreatePaymentParams struct {
	OrderID         pgtype.UUID
	Provider        pgtype.Text
	Status          PaymentStatus
	Amount          int64
	IntentToken     pgtype.Text
	RedirectURL     pgtype.Text
	ProviderTxID    pgtype.Text
	ProviderPayload []byte
	ExpiresAt       pgtype.Timestamptz
}

// CreatePayment inserts a payment row and returns it.
func (r Payments) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := r.DB.QueryRow(ctx, `INSERT INTO payments (
		order_id, provider, status, amount, intent_token, redirect_url,
		provider_tx_id, provider_payload, expires_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	RETURNING `+paymentColumns,
		arg.OrderID, arg.Provider, arg.Status, arg.Amount, arg.IntentToken, arg.RedirectURL,
		arg.ProviderTxID, arg.ProviderPayload, arg.ExpiresAt)
	return scanPayment(row)
}

// GetLatestPaymentByOrder returns the most recent payment for an order.
func (r Payments) GetLatestPaymentByOrder(ctx context.Context, orderID pgtype.UUID) (Payment, error) {
	return scanPayment(r.DB.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1`, orderID))
}

// GetPaymentByProviderTx locates a payment by the provider's transaction identifier.
func (r Payments) GetPaymentByProviderTx(ctx context.Context, providerTxID string) (Payment, error) {
	return scanPayment(r.DB.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE provider_tx_id = $1`, providerTxID))
}

// GetPaymentForUpdate loads a payment acquiring a row-level lock so concurrent
// webhook deliveries for the same payment serialise.
func (r Payments) GetPaymentForUpdate(ctx context.Context, id pgtype.UUID) (Payment, error) {
	return scanPayment(r.DB.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE id = $1 FOR UPDATE`, id))
}

// UpdatePaymentStatusParams carries a status transition with provider evidence.
type UpdatePaymentStatusParams struct {
	ID              pgtype.UUID
	Status          PaymentStatus
	ProviderTxID    pgtype.Text
	ProviderPayload []byte
}

// UpdatePaymentStatus transitions the payment and stores the provider payload.
func (r Payments) UpdatePaymentStatus(ctx context.Context, arg UpdatePaymentStatusParams) error {
	_, err := r.DB.Exec(ctx, `UPDATE payments SET status = $2,
		provider_tx_id = COALESCE(NULLIF($3, ''), provider_tx_id),
		provider_payload = COALESCE($4, provider_payload),
		updated_at = now() WHERE id = $1`,
		arg.ID, arg.Status, arg.ProviderTxID.String, arg.ProviderPayload)
	return err
}

// InsertPaymentEvent appends a row to the payment audit trail.
func (r Payments) InsertPaymentEvent(ctx context.Context, paymentID pgtype.UUID, status PaymentStatus, payload []byte) error {
	_, err := r.DB.Exec(ctx, `INSERT INTO payment_events (payment_id, status, payload)
		VALUES ($1,$2,$3)`, paymentID, status, payload)
	return err
}
