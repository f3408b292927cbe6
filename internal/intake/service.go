package intake

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"loadline_backend/internal/calls"
	"loadline_backend/internal/leads"
	"loadline_backend/internal/voiceagent"
	"loadline_backend/platform/logger"
)

const archiveTimeout = 10 * time.Second

// EventStore persists webhook events. Satisfied by *EventRepository.
type EventStore interface {
	Upsert(ctx context.Context, conversationID, eventType string, rawPayload []byte) (WebhookEvent, error)
	GetByConversationID(ctx context.Context, conversationID string) (WebhookEvent, error)
	Exists(ctx context.Context, conversationID string) (bool, error)
	MarkOutcome(ctx context.Context, conversationID, status string, processErr error) error
	AnnotateError(ctx context.Context, conversationID, note string) error
}

// NotificationStore persists lead notifications. Satisfied by
// *NotificationRepository.
type NotificationStore interface {
	Upsert(ctx context.Context, n LeadNotification) (LeadNotification, error)
	GetByConversationID(ctx context.Context, conversationID string) (LeadNotification, error)
	Complete(ctx context.Context, conversationID string, leadID uuid.UUID) error
}

// CallStore persists call records. Satisfied by *calls.Repository.
type CallStore interface {
	GetByConversationID(ctx context.Context, conversationID string) (calls.CallRecord, error)
	Insert(ctx context.Context, rec calls.CallRecord) (calls.CallRecord, error)
	BackfillSummary(ctx context.Context, id uuid.UUID, summary string) (bool, error)
}

// LeadStore persists leads. Satisfied by *leads.Repository.
type LeadStore interface {
	Insert(ctx context.Context, lead leads.Lead) (leads.Lead, error)
	FindByCallRecord(ctx context.Context, callRecordID uuid.UUID) (leads.Lead, error)
}

// TenantResolver maps a receiver phone number to the owning tenant.
type TenantResolver interface {
	Resolve(ctx context.Context, receiverNumber string) uuid.UUID
}

// Dispatcher hands a stored event to the background processor. The endpoint
// never waits on processing; dispatch failures are logged only.
type Dispatcher interface {
	Dispatch(ctx context.Context, conversationID string) error
}

// Archiver copies raw payloads to object storage for replay. Optional.
type Archiver interface {
	Archive(ctx context.Context, conversationID string, payload []byte) error
}

// IngestResult is the synchronous response body of the ingestion endpoint.
type IngestResult struct {
	Received           bool       `json:"received"`
	Stored             bool       `json:"stored"`
	ConversationID     string     `json:"conversationId"`
	LeadNotificationID *uuid.UUID `json:"leadNotificationId,omitempty"`
	Error              string     `json:"error,omitempty"`
}

// Service implements the ingestion flow and the completion pipeline.
type Service struct {
	events        EventStore
	notifications NotificationStore
	callRecords   CallStore
	leadStore     LeadStore
	tenants       TenantResolver
	dispatcher    Dispatcher
	archiver      Archiver
	publish       func(ctx context.Context, leadID, tenantID, callRecordID uuid.UUID, conversationID, phone, source string, requiresCallback bool)
	log           *logger.Logger
}

// NewService wires the ingestion service. archiver may be nil; publish may
// be nil when no event bus is attached.
func NewService(
	events EventStore,
	notifications NotificationStore,
	callRecords CallStore,
	leadStore LeadStore,
	tenants TenantResolver,
	dispatcher Dispatcher,
	archiver Archiver,
	publish func(ctx context.Context, leadID, tenantID, callRecordID uuid.UUID, conversationID, phone, source string, requiresCallback bool),
	log *logger.Logger,
) *Service {
	return &Service{
		events:        events,
		notifications: notifications,
		callRecords:   callRecords,
		leadStore:     leadStore,
		tenants:       tenants,
		dispatcher:    dispatcher,
		archiver:      archiver,
		publish:       publish,
		log:           log,
	}
}

// classifyEventType inspects the delivery's declared type. Anything the
// platform flags as an error delivery is recorded as post_call_error.
func classifyEventType(payload map[string]any) string {
	for _, key := range []string{"type", "event_type"} {
		if t, ok := payload[key].(string); ok && strings.Contains(strings.ToLower(t), "error") {
			return EventTypePostCallError
		}
	}
	return EventTypePostCall
}

// Ingest runs the synchronous half of webhook handling. It never returns an
// error: every failure is folded into the result so the HTTP layer can keep
// its always-200 contract.
func (s *Service) Ingest(ctx context.Context, body []byte) IngestResult {
	raw := body
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		// raw_payload is a jsonb column; a non-JSON body must be wrapped
		// as a JSON string or the row would never land.
		s.log.Warn("webhook payload is not valid JSON, storing as JSON string", "error", err)
		payload = map[string]any{}
		raw, _ = json.Marshal(string(body))
	}

	conversationID := voiceagent.ExtractConversationID(payload)
	if conversationID == "" {
		conversationID = voiceagent.FallbackConversationID()
		s.log.Warn("webhook delivery had no conversation id, synthesized fallback",
			"conversation_id", conversationID)
	}
	log := s.log.WithConversationID(conversationID)

	eventType := classifyEventType(payload)
	result := IngestResult{Received: true, ConversationID: conversationID}

	if _, err := s.events.Upsert(ctx, conversationID, eventType, raw); err != nil {
		log.Error("failed to store webhook event", "error", err)
		result.Error = "event storage failed"
	} else {
		result.Stored = true
	}
	log.WebhookReceived(conversationID, eventType, result.Stored)

	comp := voiceagent.ExtractCompletion(payload)
	if comp.CallerNumber != "" && eventType != EventTypePostCallError {
		tenantID := s.tenants.Resolve(ctx, comp.ReceiverNumber)
		notification, err := s.notifications.Upsert(ctx, LeadNotification{
			ConversationID: conversationID,
			CallerNumber:   comp.CallerNumber,
			ReceiverNumber: comp.ReceiverNumber,
			Summary:        comp.Summary,
			Transcript:     truncate(comp.Transcript, 8000),
			TenantID:       tenantID,
		})
		if err != nil {
			log.Error("failed to store lead notification", "error", err)
		} else {
			result.LeadNotificationID = &notification.ID
		}
	}

	if s.archiver != nil && result.Stored {
		go func(id string, raw []byte) {
			archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
			defer cancel()
			if err := s.archiver.Archive(archiveCtx, id, raw); err != nil {
				s.log.Warn("payload archive failed", "conversation_id", id, "error", err)
			}
		}(conversationID, body)
	}

	return result
}

// SetDispatcher injects the background dispatcher. The in-process fallback
// pool wraps this service's own processor, so it can only be built after the
// service exists.
func (s *Service) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// DispatchProcessing hands the stored event to the background processor.
// Called after the HTTP response is written; failures are logged only.
func (s *Service) DispatchProcessing(ctx context.Context, conversationID string) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, conversationID); err != nil {
		s.log.Error("failed to dispatch completion processing",
			"conversation_id", conversationID, "error", err)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
