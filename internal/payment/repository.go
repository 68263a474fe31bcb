package payment

import (
	"context"
	"database/sql"
	"encoding/json"
)

// Repository records inbound webhook deliveries for dedup and audit.
type Repository interface {
	// SaveWebhook upserts the delivery keyed on (provider, event_id) and
	// reports whether the event was already processed to completion. A
	// redelivery of an event whose earlier attempt failed comes back with
	// alreadyProcessed=false and the original row id, so the handler runs
	// it again instead of swallowing the retry.
	SaveWebhook(
		ctx context.Context,
		provider string,
		eventID string,
		eventType string,
		referenceID string,
		payload json.RawMessage,
		signatureValid bool,
	) (webhookID int64, alreadyProcessed bool, err error)

	MarkWebhookProcessed(ctx context.Context, webhookID int64) error
	MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) SaveWebhook(
	ctx context.Context,
	provider string,
	eventID string,
	eventType string,
	referenceID string,
	payload json.RawMessage,
	signatureValid bool,
) (int64, bool, error) {

	// The no-op conflict update lets RETURNING see the existing row.
	const q = `
	INSERT INTO payment_webhooks (
		provider,
		event_type,
		event_id,
		reference_id,
		signature_valid,
		payload
	)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (provider, event_id)
	DO UPDATE SET payload = EXCLUDED.payload
	RETURNING id, processed_at IS NOT NULL;
	`

	var (
		id        int64
		processed bool
	)
	err := r.db.QueryRowContext(
		ctx,
		q,
		provider,
		eventType,
		eventID,
		referenceID,
		signatureValid,
		payload,
	).Scan(&id, &processed)
	if err != nil {
		return 0, false, err
	}

	return id, processed, nil
}

func (r *repository) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	const q = `
	UPDATE payment_webhooks
	SET processed_at = now(), process_error = NULL
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID)
	return err
}

func (r *repository) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	const q = `
	UPDATE payment_webhooks
	SET process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID, reason)
	return err
}
