package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"loadline_backend/internal/calls"
	"loadline_backend/internal/leads"
	"loadline_backend/internal/voiceagent"
	"loadline_backend/platform/phone"
)

// ProcessCompletion is the async half of webhook handling: it turns a stored
// event into a call record and, when booking intent fires, a lead. All
// outcomes land in the event row; the caller never sees pipeline errors.
// Failed events are not retried here; only the reconciliation sweep revisits
// them.
func (s *Service) ProcessCompletion(ctx context.Context, conversationID string) error {
	log := s.log.WithConversationID(conversationID)

	ev, err := s.events.GetByConversationID(ctx, conversationID)
	if err != nil {
		log.Error("completion processing could not load event", "error", err)
		return nil
	}

	if ev.EventType == EventTypePostCallError {
		markErr := s.events.MarkOutcome(ctx, conversationID, StatusError,
			errors.New("platform reported post-call error, no call data available"))
		if markErr != nil {
			log.DatabaseError("mark event error", markErr)
		}
		log.ProcessingOutcome(conversationID, StatusError, nil)
		return nil
	}

	if procErr := s.processEvent(ctx, ev); procErr != nil {
		if markErr := s.events.MarkOutcome(ctx, conversationID, StatusFailed, procErr); markErr != nil {
			log.DatabaseError("mark event failed", markErr)
		}
		log.ProcessingOutcome(conversationID, StatusFailed, procErr)
		return nil
	}

	if markErr := s.events.MarkOutcome(ctx, conversationID, StatusSuccess, nil); markErr != nil {
		log.DatabaseError("mark event success", markErr)
	}
	log.ProcessingOutcome(conversationID, StatusSuccess, nil)
	return nil
}

func (s *Service) processEvent(ctx context.Context, ev WebhookEvent) error {
	var payload map[string]any
	if err := json.Unmarshal(ev.RawPayload, &payload); err != nil {
		return fmt.Errorf("parse stored payload: %w", err)
	}
	comp := voiceagent.ExtractCompletion(payload)

	rec, err := s.ensureCallRecord(ctx, ev.ConversationID, comp)
	if err != nil {
		return err
	}

	lead, err := s.ensureLead(ctx, ev.ConversationID, rec, comp)
	if err != nil {
		return err
	}

	if lead != nil {
		if err := s.completeNotification(ctx, ev.ConversationID, lead.ID); err != nil {
			return err
		}
	}
	return nil
}

// ensureCallRecord inserts the call record for a conversation, or backfills
// only the summary when a record (for example one created by reconciliation)
// already exists without one. Populated fields are never overwritten.
func (s *Service) ensureCallRecord(ctx context.Context, conversationID string, comp voiceagent.Completion) (calls.CallRecord, error) {
	existing, err := s.callRecords.GetByConversationID(ctx, conversationID)
	if err == nil {
		if existing.Summary == nil && comp.Summary != "" {
			if _, bfErr := s.callRecords.BackfillSummary(ctx, existing.ID, comp.Summary); bfErr != nil {
				return calls.CallRecord{}, fmt.Errorf("backfill summary: %w", bfErr)
			}
			summary := comp.Summary
			existing.Summary = &summary
		}
		return existing, nil
	}
	if !errors.Is(err, calls.ErrCallRecordNotFound) {
		return calls.CallRecord{}, fmt.Errorf("load call record: %w", err)
	}

	rec := calls.CallRecord{
		ConversationID:        conversationID,
		CallerNumber:          phone.NormalizeE164(comp.CallerNumber),
		ReceiverNumber:        phone.NormalizeE164(comp.ReceiverNumber),
		Direction:             comp.Direction,
		StartedAt:             comp.StartedAt,
		EndedAt:               comp.EndedAt,
		DurationSeconds:       comp.DurationSeconds,
		Status:                comp.Status,
		CostCents:             comp.CostCents,
		Source:                calls.SourceWebhook,
		WebhookDeliveryStatus: calls.DeliverySuccess,
	}
	if comp.Summary != "" {
		summary := comp.Summary
		rec.Summary = &summary
	}

	rec, err = s.callRecords.Insert(ctx, rec)
	if err != nil {
		return calls.CallRecord{}, fmt.Errorf("insert call record: %w", err)
	}
	return rec, nil
}

// ensureLead creates a lead when booking intent fires, at most once per call
// record. Returns the lead if one exists after the call, new or not, so the
// notification can be linked either way.
func (s *Service) ensureLead(ctx context.Context, conversationID string, rec calls.CallRecord, comp voiceagent.Completion) (*leads.Lead, error) {
	existing, err := s.leadStore.FindByCallRecord(ctx, rec.ID)
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, leads.ErrLeadNotFound) {
		return nil, fmt.Errorf("load lead: %w", err)
	}

	if !leads.DetectBookingIntent(comp.IntentText()) {
		return nil, nil
	}

	tenantID := s.tenants.Resolve(ctx, comp.ReceiverNumber)
	notes := "Created from voice agent call."
	if comp.Summary != "" {
		notes = comp.Summary
	}

	lead, err := s.leadStore.Insert(ctx, leads.Lead{
		TenantID:     tenantID,
		Phone:        phone.NormalizeE164(comp.CallerNumber),
		Status:       "new",
		Source:       leads.SourceVoiceAgent,
		Notes:        notes,
		CallRecordID: rec.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("insert lead: %w", err)
	}

	if s.publish != nil {
		s.publish(ctx, lead.ID, lead.TenantID, rec.ID, conversationID, lead.Phone, lead.Source, lead.RequiresCallback)
	}
	return &lead, nil
}

// completeNotification links the conversation's notification to its lead.
// A conversation without a notification (no caller number at ingest time) is
// not an error.
func (s *Service) completeNotification(ctx context.Context, conversationID string, leadID uuid.UUID) error {
	_, err := s.notifications.GetByConversationID(ctx, conversationID)
	if errors.Is(err, ErrNotificationNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load lead notification: %w", err)
	}
	if err := s.notifications.Complete(ctx, conversationID, leadID); err != nil {
		return fmt.Errorf("complete lead notification: %w", err)
	}
	return nil
}
