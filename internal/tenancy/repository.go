// Package tenancy maps receiver phone numbers to tenants so that inbound
// call activity lands in the right account.
package tenancy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrMappingNotFound = errors.New("tenant phone mapping not found")

// PhoneMapping routes one receiver number to a tenant.
type PhoneMapping struct {
	ID        uuid.UUID
	Phone     string
	TenantID  uuid.UUID
	Label     string
	CreatedAt time.Time
}

// Repository provides data access for tenant phone mappings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new tenancy repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Lookup returns the tenant mapped to a normalized phone number.
func (r *Repository) Lookup(ctx context.Context, phone string) (uuid.UUID, error) {
	var tenantID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT tenant_id FROM tenant_phone_mappings WHERE phone = $1
	`, phone).Scan(&tenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrMappingNotFound
	}
	return tenantID, err
}

// Upsert registers or re-points a phone mapping. The first writer for a
// phone number wins the unique constraint; later writes move the mapping.
func (r *Repository) Upsert(ctx context.Context, phone string, tenantID uuid.UUID, label string) (PhoneMapping, error) {
	var m PhoneMapping
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tenant_phone_mappings (phone, tenant_id, label)
		VALUES ($1, $2, $3)
		ON CONFLICT (phone) DO UPDATE SET tenant_id = EXCLUDED.tenant_id, label = EXCLUDED.label
		RETURNING id, phone, tenant_id, label, created_at
	`, phone, tenantID, label).Scan(&m.ID, &m.Phone, &m.TenantID, &m.Label, &m.CreatedAt)
	return m, err
}
