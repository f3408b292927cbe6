// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"loadline_backend/platform/events"
	"loadline_backend/platform/logger"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Lead Domain Events
// =============================================================================

// LeadCreated is published when booking intent on a call produces a lead,
// whether during live processing or a reconciliation sweep.
type LeadCreated struct {
	BaseEvent
	LeadID           uuid.UUID `json:"leadId"`
	TenantID         uuid.UUID `json:"tenantId"`
	CallRecordID     uuid.UUID `json:"callRecordId"`
	ConversationID   string    `json:"conversationId"`
	Phone            string    `json:"phone"`
	Source           string    `json:"source"`
	RequiresCallback bool      `json:"requiresCallback"`
}

func (e LeadCreated) EventName() string { return "leads.created" }
