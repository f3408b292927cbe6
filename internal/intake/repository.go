// Package intake is the webhook ingestion bounded context: it receives raw
// call-completion deliveries, persists them idempotently, and runs the async
// pipeline that turns them into call records and leads.
package intake

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrEventNotFound = errors.New("webhook event not found")

// Webhook event types.
const (
	EventTypePostCall      = "post_call"
	EventTypePostCallError = "post_call_error"
	EventTypeReconciled    = "reconciled"
)

// Processing statuses.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusError   = "error"
)

// WebhookEvent is one raw delivery (or synthetic reconciliation entry),
// keyed by the external conversation id.
type WebhookEvent struct {
	ID                 uuid.UUID
	ConversationID     string
	EventType          string
	RawPayload         []byte
	ReceivedAt         time.Time
	ProcessedAt        *time.Time
	ProcessingStatus   string
	ProcessingAttempts int
	LastAttemptAt      *time.Time
	LastError          *string
}

// EventRepository provides data access for webhook events.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new webhook event repository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Upsert stores a delivery, merging with any earlier row for the same
// conversation id. Re-delivery refreshes the payload but keeps the original
// received_at and whatever processing state the row already reached.
func (r *EventRepository) Upsert(ctx context.Context, conversationID, eventType string, rawPayload []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	err := r.pool.QueryRow(ctx, `
		INSERT INTO webhook_events (conversation_id, event_type, raw_payload, processing_status)
		VALUES ($1, $2, $3, 'pending')
		ON CONFLICT (conversation_id) DO UPDATE
		SET event_type = EXCLUDED.event_type, raw_payload = EXCLUDED.raw_payload
		RETURNING id, conversation_id, event_type, raw_payload, received_at,
		          processed_at, processing_status, processing_attempts, last_attempt_at, last_error
	`, conversationID, eventType, rawPayload).Scan(
		&ev.ID, &ev.ConversationID, &ev.EventType, &ev.RawPayload, &ev.ReceivedAt,
		&ev.ProcessedAt, &ev.ProcessingStatus, &ev.ProcessingAttempts, &ev.LastAttemptAt, &ev.LastError,
	)
	return ev, err
}

// GetByConversationID returns the stored event for a conversation.
func (r *EventRepository) GetByConversationID(ctx context.Context, conversationID string) (WebhookEvent, error) {
	var ev WebhookEvent
	err := r.pool.QueryRow(ctx, `
		SELECT id, conversation_id, event_type, raw_payload, received_at,
		       processed_at, processing_status, processing_attempts, last_attempt_at, last_error
		FROM webhook_events
		WHERE conversation_id = $1
	`, conversationID).Scan(
		&ev.ID, &ev.ConversationID, &ev.EventType, &ev.RawPayload, &ev.ReceivedAt,
		&ev.ProcessedAt, &ev.ProcessingStatus, &ev.ProcessingAttempts, &ev.LastAttemptAt, &ev.LastError,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return WebhookEvent{}, ErrEventNotFound
	}
	return ev, err
}

// Exists reports whether any event row exists for a conversation.
func (r *EventRepository) Exists(ctx context.Context, conversationID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM webhook_events WHERE conversation_id = $1)
	`, conversationID).Scan(&exists)
	return exists, err
}

// MarkOutcome records one processing attempt. processed_at is set only on
// terminal outcomes (success or error); failed rows stay eligible for the
// reconciliation sweep. last_error is only ever replaced, never cleared, so
// the reconciliation trail survives a later success.
func (r *EventRepository) MarkOutcome(ctx context.Context, conversationID, status string, processErr error) error {
	var lastError *string
	if processErr != nil {
		msg := processErr.Error()
		lastError = &msg
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_events
		SET processing_status = $2,
		    processing_attempts = processing_attempts + 1,
		    last_attempt_at = now(),
		    last_error = COALESCE($3, last_error),
		    processed_at = CASE WHEN $2 IN ('success', 'error') THEN now() ELSE processed_at END
		WHERE conversation_id = $1
	`, conversationID, status, lastError)
	return err
}

// AnnotateError appends a note to an event's last_error without touching its
// processing bookkeeping. Used by the reconciliation sweep to leave a trail.
func (r *EventRepository) AnnotateError(ctx context.Context, conversationID, note string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_events
		SET last_error = COALESCE(last_error || ' | ', '') || $2
		WHERE conversation_id = $1
	`, conversationID, note)
	return err
}
