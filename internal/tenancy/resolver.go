package tenancy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"loadline_backend/platform/logger"
	"loadline_backend/platform/phone"
)

const (
	cacheKeyPrefix  = "tenancy:phone:"
	defaultCacheTTL = 15 * time.Minute
)

// MappingStore is the lookup surface the resolver needs. Satisfied by
// *Repository; tests substitute an in-memory map.
type MappingStore interface {
	Lookup(ctx context.Context, phone string) (uuid.UUID, error)
}

// Resolver resolves a receiver phone number to a tenant id, with an
// optional Redis cache in front of the mapping store and a configured
// default tenant when no mapping exists.
type Resolver struct {
	store           MappingStore
	cache           *redis.Client
	cacheTTL        time.Duration
	defaultTenantID uuid.UUID
	log             *logger.Logger
}

// NewResolver creates a resolver. cache may be nil, in which case every
// lookup goes straight to the store. A non-positive cacheTTL falls back to
// the default.
func NewResolver(store MappingStore, cache *redis.Client, cacheTTL time.Duration, defaultTenantID uuid.UUID, log *logger.Logger) *Resolver {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Resolver{
		store:           store,
		cache:           cache,
		cacheTTL:        cacheTTL,
		defaultTenantID: defaultTenantID,
		log:             log,
	}
}

// Resolve maps a receiver number to a tenant id. The number is normalized
// to E.164 before lookup. A missing mapping falls back to the default
// tenant; cache failures degrade to a direct store lookup.
func (r *Resolver) Resolve(ctx context.Context, receiverNumber string) uuid.UUID {
	normalized := phone.NormalizeE164(receiverNumber)
	if normalized == "" {
		return r.defaultTenantID
	}

	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, cacheKeyPrefix+normalized).Result(); err == nil {
			if id, parseErr := uuid.Parse(cached); parseErr == nil {
				return id
			}
		} else if !errors.Is(err, redis.Nil) {
			r.log.Warn("tenant cache read failed", "phone", normalized, "error", err)
		}
	}

	tenantID, err := r.store.Lookup(ctx, normalized)
	if errors.Is(err, ErrMappingNotFound) {
		return r.defaultTenantID
	}
	if err != nil {
		r.log.Warn("tenant mapping lookup failed, using default tenant", "phone", normalized, "error", err)
		return r.defaultTenantID
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, cacheKeyPrefix+normalized, tenantID.String(), r.cacheTTL).Err(); err != nil {
			r.log.Warn("tenant cache write failed", "phone", normalized, "error", err)
		}
	}
	return tenantID
}
