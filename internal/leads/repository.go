// Package leads holds booking-intent detection and the lead records that
// positive calls produce.
package leads

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrLeadNotFound = errors.New("lead not found")

// Lead sources.
const (
	SourceVoiceAgent           = "voice_agent"
	SourceVoiceAgentReconciled = "voice_agent_reconciled"
)

// Lead is a caller that expressed booking intent and should be followed up.
type Lead struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	Phone            string
	Company          *string
	Status           string
	Source           string
	Notes            string
	RequiresCallback bool
	CallRecordID     uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Repository provides data access for leads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new leads repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a new lead.
func (r *Repository) Insert(ctx context.Context, lead Lead) (Lead, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO leads (tenant_id, phone, company, status, source, notes, requires_callback, call_record_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, lead.TenantID, lead.Phone, lead.Company, lead.Status, lead.Source,
		lead.Notes, lead.RequiresCallback, lead.CallRecordID,
	).Scan(&lead.ID, &lead.CreatedAt, &lead.UpdatedAt)
	return lead, err
}

// FindByCallRecord returns the lead linked to a call record, if any.
func (r *Repository) FindByCallRecord(ctx context.Context, callRecordID uuid.UUID) (Lead, error) {
	var lead Lead
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, phone, company, status, source, notes, requires_callback, call_record_id, created_at, updated_at
		FROM leads
		WHERE call_record_id = $1
	`, callRecordID).Scan(
		&lead.ID, &lead.TenantID, &lead.Phone, &lead.Company, &lead.Status,
		&lead.Source, &lead.Notes, &lead.RequiresCallback, &lead.CallRecordID,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrLeadNotFound
	}
	return lead, err
}
