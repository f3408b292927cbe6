// Package intake module wiring: builds the repositories, the ingestion
// service, and the processor, and mounts the webhook route.
package intake

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"loadline_backend/internal/calls"
	"loadline_backend/internal/events"
	apphttp "loadline_backend/internal/http"
	"loadline_backend/internal/leads"
	"loadline_backend/platform/logger"
)

// Module is the intake bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

// NewModule creates and initializes the intake module with all its
// dependencies. archiver may be nil when object storage is not configured.
func NewModule(
	pool *pgxpool.Pool,
	tenants TenantResolver,
	dispatcher Dispatcher,
	archiver Archiver,
	bus events.Bus,
	log *logger.Logger,
) *Module {
	publish := func(ctx context.Context, leadID, tenantID, callRecordID uuid.UUID, conversationID, phone, source string, requiresCallback bool) {
		bus.Publish(ctx, events.LeadCreated{
			BaseEvent:        events.NewBaseEvent(),
			LeadID:           leadID,
			TenantID:         tenantID,
			CallRecordID:     callRecordID,
			ConversationID:   conversationID,
			Phone:            phone,
			Source:           source,
			RequiresCallback: requiresCallback,
		})
	}

	service := NewService(
		NewEventRepository(pool),
		NewNotificationRepository(pool),
		calls.NewRepository(pool),
		leads.NewRepository(pool),
		tenants,
		dispatcher,
		archiver,
		publish,
		log,
	)

	return &Module{
		handler: NewHandler(service),
		service: service,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "intake"
}

// Service exposes the ingestion service so the scheduler worker can run the
// completion pipeline for dispatched tasks.
func (m *Module) Service() *Service {
	return m.service
}

// SetDispatcher injects the background dispatcher after construction,
// breaking the circular dependency with the in-process fallback pool.
func (m *Module) SetDispatcher(d Dispatcher) {
	m.service.SetDispatcher(d)
}

// RegisterRoutes mounts the webhook route. Unauthenticated by contract with
// the external platform.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.POST("/webhook/call-completion", m.handler.HandleCallCompletion)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
