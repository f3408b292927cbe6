// Package calls persists finalized call records derived from webhook
// deliveries and reconciliation fetches.
package calls

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrCallRecordNotFound = errors.New("call record not found")

// Call record sources.
const (
	SourceWebhook        = "webhook"
	SourceReconciliation = "reconciliation"
)

// Webhook delivery statuses.
const (
	DeliverySuccess = "success"
	DeliveryMissed  = "missed"
)

// CallRecord is the finalized record of one completed voice-agent call.
type CallRecord struct {
	ID                    uuid.UUID
	ConversationID        string
	CallerNumber          string
	ReceiverNumber        string
	Direction             string
	StartedAt             *time.Time
	EndedAt               *time.Time
	DurationSeconds       int
	Status                string
	CostCents             int
	Summary               *string
	Source                string
	WebhookDeliveryStatus string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Repository provides data access for call records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new call record repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a new call record.
func (r *Repository) Insert(ctx context.Context, rec CallRecord) (CallRecord, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO call_records (
			conversation_id, caller_number, receiver_number, direction,
			started_at, ended_at, duration_seconds, status, cost_cents,
			summary, source, webhook_delivery_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`, rec.ConversationID, rec.CallerNumber, rec.ReceiverNumber, rec.Direction,
		rec.StartedAt, rec.EndedAt, rec.DurationSeconds, rec.Status, rec.CostCents,
		rec.Summary, rec.Source, rec.WebhookDeliveryStatus,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

// GetByConversationID returns the most recent call record for a conversation.
func (r *Repository) GetByConversationID(ctx context.Context, conversationID string) (CallRecord, error) {
	var rec CallRecord
	err := r.pool.QueryRow(ctx, `
		SELECT id, conversation_id, caller_number, receiver_number, direction,
		       started_at, ended_at, duration_seconds, status, cost_cents,
		       summary, source, webhook_delivery_status, created_at, updated_at
		FROM call_records
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, conversationID).Scan(
		&rec.ID, &rec.ConversationID, &rec.CallerNumber, &rec.ReceiverNumber,
		&rec.Direction, &rec.StartedAt, &rec.EndedAt, &rec.DurationSeconds,
		&rec.Status, &rec.CostCents, &rec.Summary, &rec.Source,
		&rec.WebhookDeliveryStatus, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return CallRecord{}, ErrCallRecordNotFound
	}
	return rec, err
}

// BackfillSummary sets the summary on a call record only when it is still
// null. Populated summaries are never overwritten.
func (r *Repository) BackfillSummary(ctx context.Context, id uuid.UUID, summary string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE call_records
		SET summary = $2, updated_at = now()
		WHERE id = $1 AND summary IS NULL
	`, id, summary)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
