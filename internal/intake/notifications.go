package intake

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotificationNotFound = errors.New("lead notification not found")

// Lead notification statuses.
const (
	NotificationPending   = "pending"
	NotificationProcessed = "processed"
)

// LeadNotification is the "a human should look at this call" record created
// at ingestion time, before the async pipeline has run.
type LeadNotification struct {
	ID             uuid.UUID
	ConversationID string
	CallerNumber   string
	ReceiverNumber string
	Summary        string
	Transcript     string
	TenantID       uuid.UUID
	Status         string
	LeadID         *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NotificationRepository provides data access for lead notifications.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates a new lead notification repository.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Upsert stores a notification, merging by conversation id. Re-delivery
// refreshes the call details but never un-processes a processed row.
func (r *NotificationRepository) Upsert(ctx context.Context, n LeadNotification) (LeadNotification, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO lead_notifications (conversation_id, caller_number, receiver_number, summary, transcript, tenant_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		ON CONFLICT (conversation_id) DO UPDATE
		SET caller_number = EXCLUDED.caller_number,
		    receiver_number = EXCLUDED.receiver_number,
		    summary = EXCLUDED.summary,
		    transcript = EXCLUDED.transcript,
		    updated_at = now()
		RETURNING id, conversation_id, caller_number, receiver_number, summary, transcript,
		          tenant_id, status, lead_id, created_at, updated_at
	`, n.ConversationID, n.CallerNumber, n.ReceiverNumber, n.Summary, n.Transcript, n.TenantID).Scan(
		&n.ID, &n.ConversationID, &n.CallerNumber, &n.ReceiverNumber, &n.Summary, &n.Transcript,
		&n.TenantID, &n.Status, &n.LeadID, &n.CreatedAt, &n.UpdatedAt,
	)
	return n, err
}

// GetByConversationID returns the notification for a conversation.
func (r *NotificationRepository) GetByConversationID(ctx context.Context, conversationID string) (LeadNotification, error) {
	var n LeadNotification
	err := r.pool.QueryRow(ctx, `
		SELECT id, conversation_id, caller_number, receiver_number, summary, transcript,
		       tenant_id, status, lead_id, created_at, updated_at
		FROM lead_notifications
		WHERE conversation_id = $1
	`, conversationID).Scan(
		&n.ID, &n.ConversationID, &n.CallerNumber, &n.ReceiverNumber, &n.Summary, &n.Transcript,
		&n.TenantID, &n.Status, &n.LeadID, &n.CreatedAt, &n.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return LeadNotification{}, ErrNotificationNotFound
	}
	return n, err
}

// Complete links a notification to its lead and marks it processed.
func (r *NotificationRepository) Complete(ctx context.Context, conversationID string, leadID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE lead_notifications
		SET lead_id = $2, status = 'processed', updated_at = now()
		WHERE conversation_id = $1
	`, conversationID, leadID)
	return err
}
