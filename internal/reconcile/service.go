// Package reconcile implements the periodic sweep that diffs the external
// platform's call history against local state and repairs missed webhook
// deliveries.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"loadline_backend/internal/calls"
	"loadline_backend/internal/intake"
	"loadline_backend/internal/leads"
	"loadline_backend/internal/voiceagent"
	"loadline_backend/platform/logger"
	"loadline_backend/platform/phone"
)

const reconcileAnnotation = "recovered via reconciliation: webhook delivery was missed"

// EventStore is the webhook event surface the sweeper needs.
type EventStore interface {
	Exists(ctx context.Context, conversationID string) (bool, error)
	Upsert(ctx context.Context, conversationID, eventType string, rawPayload []byte) (intake.WebhookEvent, error)
	MarkOutcome(ctx context.Context, conversationID, status string, processErr error) error
	AnnotateError(ctx context.Context, conversationID, note string) error
}

// CallStore is the call record surface the sweeper needs.
type CallStore interface {
	GetByConversationID(ctx context.Context, conversationID string) (calls.CallRecord, error)
	Insert(ctx context.Context, rec calls.CallRecord) (calls.CallRecord, error)
	BackfillSummary(ctx context.Context, id uuid.UUID, summary string) (bool, error)
}

// LeadStore is the lead surface the sweeper needs.
type LeadStore interface {
	Insert(ctx context.Context, lead leads.Lead) (leads.Lead, error)
	FindByCallRecord(ctx context.Context, callRecordID uuid.UUID) (leads.Lead, error)
}

// TenantResolver maps a receiver number to the owning tenant.
type TenantResolver interface {
	Resolve(ctx context.Context, receiverNumber string) uuid.UUID
}

// PlatformClient lists and fetches conversations from the voice platform.
// Satisfied by *voiceagent.Client.
type PlatformClient interface {
	ListConversations(ctx context.Context, since time.Time) ([]voiceagent.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (voiceagent.Detail, error)
}

// Report aggregates one sweep. Counts only, no call content.
type Report struct {
	HoursBack           int           `json:"hoursBack"`
	Checked             int           `json:"checked"`
	SummariesBackfilled int           `json:"summariesBackfilled"`
	Reconciled          int           `json:"reconciled"`
	CallRecordsCreated  int           `json:"callRecordsCreated"`
	LeadsCreated        int           `json:"leadsCreated"`
	Skipped             int           `json:"skipped"`
	Duration            time.Duration `json:"-"`
	DurationMs          int64         `json:"durationMs"`
}

// Service runs reconciliation sweeps.
type Service struct {
	client    PlatformClient
	events    EventStore
	records   CallStore
	leadStore LeadStore
	tenants   TenantResolver
	publish   func(ctx context.Context, leadID, tenantID, callRecordID uuid.UUID, conversationID, phoneNumber, source string, requiresCallback bool)
	pause     time.Duration
	log       *logger.Logger
}

// NewService wires the sweeper. publish may be nil.
func NewService(
	client PlatformClient,
	events EventStore,
	records CallStore,
	leadStore LeadStore,
	tenants TenantResolver,
	publish func(ctx context.Context, leadID, tenantID, callRecordID uuid.UUID, conversationID, phoneNumber, source string, requiresCallback bool),
	log *logger.Logger,
) *Service {
	return &Service{
		client:    client,
		events:    events,
		records:   records,
		leadStore: leadStore,
		tenants:   tenants,
		publish:   publish,
		pause:     200 * time.Millisecond,
		log:       log,
	}
}

// Run sweeps all conversations started within the last hoursBack hours.
// Conversations are handled in sequence; a failure on one is counted and
// skipped, never fatal to the sweep. Safe to re-run over overlapping
// windows.
func (s *Service) Run(ctx context.Context, hoursBack int) (Report, error) {
	started := time.Now()
	report := Report{HoursBack: hoursBack}

	since := started.Add(-time.Duration(hoursBack) * time.Hour)
	conversations, err := s.client.ListConversations(ctx, since)
	if err != nil {
		return report, fmt.Errorf("list conversations: %w", err)
	}

	for i, conv := range conversations {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && s.pause > 0 {
			time.Sleep(s.pause)
		}

		report.Checked++
		if err := s.reconcileOne(ctx, conv.ID, &report); err != nil {
			report.Skipped++
			s.log.Warn("reconcile skipped conversation", "conversation_id", conv.ID, "error", err)
		}
	}

	report.Duration = time.Since(started)
	report.DurationMs = report.Duration.Milliseconds()
	s.log.ReconcileReport(report.Checked, report.Reconciled, report.CallRecordsCreated,
		report.LeadsCreated, report.SummariesBackfilled, report.Skipped)
	return report, nil
}

func (s *Service) reconcileOne(ctx context.Context, conversationID string, report *Report) error {
	rec, recErr := s.records.GetByConversationID(ctx, conversationID)
	haveRecord := recErr == nil
	if recErr != nil && !errors.Is(recErr, calls.ErrCallRecordNotFound) {
		return fmt.Errorf("load call record: %w", recErr)
	}

	// Branch a: record exists but has no summary yet. Fetch the detail and
	// backfill only that field.
	if haveRecord && rec.Summary == nil {
		detail, err := s.client.GetConversation(ctx, conversationID)
		if err != nil {
			return fmt.Errorf("fetch detail: %w", err)
		}
		summary := detail.Completion().Summary
		if summary == "" {
			return nil
		}
		updated, err := s.records.BackfillSummary(ctx, rec.ID, summary)
		if err != nil {
			return fmt.Errorf("backfill summary: %w", err)
		}
		if updated {
			report.SummariesBackfilled++
		}
		return nil
	}

	exists, err := s.events.Exists(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("check event: %w", err)
	}
	if exists {
		// Branch c: already delivered and complete.
		return nil
	}

	// Branch b: missed delivery.
	return s.healMissedDelivery(ctx, conversationID, rec, haveRecord, report)
}

func (s *Service) healMissedDelivery(ctx context.Context, conversationID string, rec calls.CallRecord, haveRecord bool, report *Report) error {
	detail, err := s.client.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("fetch detail: %w", err)
	}
	comp := detail.Completion()

	raw, err := json.Marshal(detail.Raw)
	if err != nil {
		return fmt.Errorf("marshal detail: %w", err)
	}
	if _, err := s.events.Upsert(ctx, conversationID, intake.EventTypeReconciled, raw); err != nil {
		return fmt.Errorf("store synthetic event: %w", err)
	}
	report.Reconciled++

	if !haveRecord {
		summary := comp.Summary
		newRec := calls.CallRecord{
			ConversationID:        conversationID,
			CallerNumber:          phone.NormalizeE164(comp.CallerNumber),
			ReceiverNumber:        phone.NormalizeE164(comp.ReceiverNumber),
			Direction:             comp.Direction,
			StartedAt:             comp.StartedAt,
			EndedAt:               comp.EndedAt,
			DurationSeconds:       comp.DurationSeconds,
			Status:                comp.Status,
			CostCents:             comp.CostCents,
			Source:                calls.SourceReconciliation,
			WebhookDeliveryStatus: calls.DeliveryMissed,
		}
		if summary != "" {
			newRec.Summary = &summary
		}
		rec, err = s.records.Insert(ctx, newRec)
		if err != nil {
			return fmt.Errorf("insert call record: %w", err)
		}
		report.CallRecordsCreated++
	}

	if err := s.events.AnnotateError(ctx, conversationID, reconcileAnnotation); err != nil {
		return fmt.Errorf("annotate event: %w", err)
	}

	if leads.DetectBookingIntent(comp.IntentText()) && comp.CallerNumber != "" {
		if err := s.createReconciledLead(ctx, conversationID, rec, comp, report); err != nil {
			return err
		}
	}

	if err := s.events.MarkOutcome(ctx, conversationID, intake.StatusSuccess, nil); err != nil {
		return fmt.Errorf("mark synthetic event: %w", err)
	}
	return nil
}

func (s *Service) createReconciledLead(ctx context.Context, conversationID string, rec calls.CallRecord, comp voiceagent.Completion, report *Report) error {
	if _, err := s.leadStore.FindByCallRecord(ctx, rec.ID); err == nil {
		return nil
	} else if !errors.Is(err, leads.ErrLeadNotFound) {
		return fmt.Errorf("load lead: %w", err)
	}

	notes := "Recovered via reconciliation sweep; the webhook delivery was missed. Needs manual follow-up."
	if comp.Summary != "" {
		notes += " Call summary: " + comp.Summary
	}
	lead, err := s.leadStore.Insert(ctx, leads.Lead{
		TenantID:         s.tenants.Resolve(ctx, comp.ReceiverNumber),
		Phone:            phone.NormalizeE164(comp.CallerNumber),
		Status:           "new",
		Source:           leads.SourceVoiceAgentReconciled,
		Notes:            notes,
		RequiresCallback: true,
		CallRecordID:     rec.ID,
	})
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	report.LeadsCreated++

	if s.publish != nil {
		s.publish(ctx, lead.ID, lead.TenantID, rec.ID, conversationID, lead.Phone, lead.Source, true)
	}
	return nil
}
