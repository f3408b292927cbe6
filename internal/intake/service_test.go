package intake

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"loadline_backend/internal/calls"
	"loadline_backend/internal/leads"
	"loadline_backend/platform/logger"
)

// ---- in-memory fakes ----

type fakeEventStore struct {
	events     map[string]*WebhookEvent
	failUpsert bool
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: map[string]*WebhookEvent{}}
}

func (f *fakeEventStore) Upsert(_ context.Context, conversationID, eventType string, rawPayload []byte) (WebhookEvent, error) {
	if f.failUpsert {
		return WebhookEvent{}, errors.New("storage down")
	}
	if existing, ok := f.events[conversationID]; ok {
		existing.EventType = eventType
		existing.RawPayload = rawPayload
		return *existing, nil
	}
	ev := &WebhookEvent{
		ID:               uuid.New(),
		ConversationID:   conversationID,
		EventType:        eventType,
		RawPayload:       rawPayload,
		ReceivedAt:       time.Now(),
		ProcessingStatus: StatusPending,
	}
	f.events[conversationID] = ev
	return *ev, nil
}

func (f *fakeEventStore) GetByConversationID(_ context.Context, conversationID string) (WebhookEvent, error) {
	ev, ok := f.events[conversationID]
	if !ok {
		return WebhookEvent{}, ErrEventNotFound
	}
	return *ev, nil
}

func (f *fakeEventStore) Exists(_ context.Context, conversationID string) (bool, error) {
	_, ok := f.events[conversationID]
	return ok, nil
}

func (f *fakeEventStore) MarkOutcome(_ context.Context, conversationID, status string, processErr error) error {
	ev, ok := f.events[conversationID]
	if !ok {
		return ErrEventNotFound
	}
	ev.ProcessingStatus = status
	ev.ProcessingAttempts++
	now := time.Now()
	ev.LastAttemptAt = &now
	if processErr != nil {
		msg := processErr.Error()
		ev.LastError = &msg
	}
	if status == StatusSuccess || status == StatusError {
		ev.ProcessedAt = &now
	}
	return nil
}

func (f *fakeEventStore) AnnotateError(_ context.Context, conversationID, note string) error {
	ev, ok := f.events[conversationID]
	if !ok {
		return ErrEventNotFound
	}
	if ev.LastError != nil {
		note = *ev.LastError + " | " + note
	}
	ev.LastError = &note
	return nil
}

type fakeNotificationStore struct {
	notifications map[string]*LeadNotification
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{notifications: map[string]*LeadNotification{}}
}

func (f *fakeNotificationStore) Upsert(_ context.Context, n LeadNotification) (LeadNotification, error) {
	if existing, ok := f.notifications[n.ConversationID]; ok {
		existing.CallerNumber = n.CallerNumber
		existing.ReceiverNumber = n.ReceiverNumber
		existing.Summary = n.Summary
		existing.Transcript = n.Transcript
		return *existing, nil
	}
	n.ID = uuid.New()
	n.Status = NotificationPending
	stored := n
	f.notifications[n.ConversationID] = &stored
	return stored, nil
}

func (f *fakeNotificationStore) GetByConversationID(_ context.Context, conversationID string) (LeadNotification, error) {
	n, ok := f.notifications[conversationID]
	if !ok {
		return LeadNotification{}, ErrNotificationNotFound
	}
	return *n, nil
}

func (f *fakeNotificationStore) Complete(_ context.Context, conversationID string, leadID uuid.UUID) error {
	n, ok := f.notifications[conversationID]
	if !ok {
		return ErrNotificationNotFound
	}
	n.LeadID = &leadID
	n.Status = NotificationProcessed
	return nil
}

type fakeCallStore struct {
	records map[string]*calls.CallRecord
}

func newFakeCallStore() *fakeCallStore {
	return &fakeCallStore{records: map[string]*calls.CallRecord{}}
}

func (f *fakeCallStore) GetByConversationID(_ context.Context, conversationID string) (calls.CallRecord, error) {
	rec, ok := f.records[conversationID]
	if !ok {
		return calls.CallRecord{}, calls.ErrCallRecordNotFound
	}
	return *rec, nil
}

func (f *fakeCallStore) Insert(_ context.Context, rec calls.CallRecord) (calls.CallRecord, error) {
	rec.ID = uuid.New()
	stored := rec
	f.records[rec.ConversationID] = &stored
	return stored, nil
}

func (f *fakeCallStore) BackfillSummary(_ context.Context, id uuid.UUID, summary string) (bool, error) {
	for _, rec := range f.records {
		if rec.ID == id {
			if rec.Summary != nil {
				return false, nil
			}
			rec.Summary = &summary
			return true, nil
		}
	}
	return false, nil
}

type fakeLeadStore struct {
	leads map[uuid.UUID]*leads.Lead
}

func newFakeLeadStore() *fakeLeadStore {
	return &fakeLeadStore{leads: map[uuid.UUID]*leads.Lead{}}
}

func (f *fakeLeadStore) Insert(_ context.Context, lead leads.Lead) (leads.Lead, error) {
	lead.ID = uuid.New()
	stored := lead
	f.leads[lead.CallRecordID] = &stored
	return stored, nil
}

func (f *fakeLeadStore) FindByCallRecord(_ context.Context, callRecordID uuid.UUID) (leads.Lead, error) {
	lead, ok := f.leads[callRecordID]
	if !ok {
		return leads.Lead{}, leads.ErrLeadNotFound
	}
	return *lead, nil
}

type fakeResolver struct {
	tenantID uuid.UUID
}

func (f fakeResolver) Resolve(context.Context, string) uuid.UUID { return f.tenantID }

type noopDispatcher struct{ dispatched []string }

func (d *noopDispatcher) Dispatch(_ context.Context, conversationID string) error {
	d.dispatched = append(d.dispatched, conversationID)
	return nil
}

type testEnv struct {
	service       *Service
	events        *fakeEventStore
	notifications *fakeNotificationStore
	callRecords   *fakeCallStore
	leadStore     *fakeLeadStore
	dispatcher    *noopDispatcher
	tenantID      uuid.UUID
	leadEvents    int
}

func newTestEnv() *testEnv {
	env := &testEnv{
		events:        newFakeEventStore(),
		notifications: newFakeNotificationStore(),
		callRecords:   newFakeCallStore(),
		leadStore:     newFakeLeadStore(),
		dispatcher:    &noopDispatcher{},
		tenantID:      uuid.New(),
	}
	env.service = NewService(
		env.events, env.notifications, env.callRecords, env.leadStore,
		fakeResolver{tenantID: env.tenantID}, env.dispatcher, nil,
		func(context.Context, uuid.UUID, uuid.UUID, uuid.UUID, string, string, string, bool) {
			env.leadEvents++
		},
		logger.New("development"),
	)
	return env
}

// ---- tests ----

const bookingPayload = `{
	"conversation_id": "c1",
	"caller_number": "+15551234567",
	"receiver_number": "+13125550100",
	"transcript": "caller: the rate works for me, sounds good, let's book it",
	"analysis": {"transcript_summary": "Carrier agreed to book the load."}
}`

func TestIngestThenProcessEndToEnd(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	result := env.service.Ingest(ctx, []byte(bookingPayload))
	if !result.Received || !result.Stored {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.ConversationID != "c1" {
		t.Fatalf("conversation id = %q", result.ConversationID)
	}
	if result.LeadNotificationID == nil {
		t.Fatal("expected a lead notification")
	}

	if err := env.service.ProcessCompletion(ctx, "c1"); err != nil {
		t.Fatalf("ProcessCompletion: %v", err)
	}

	ev := env.events.events["c1"]
	if ev.ProcessingStatus != StatusSuccess {
		t.Fatalf("event status = %q, lastError = %v", ev.ProcessingStatus, ev.LastError)
	}
	if ev.ProcessedAt == nil || ev.ProcessingAttempts != 1 {
		t.Fatalf("event bookkeeping: processedAt=%v attempts=%d", ev.ProcessedAt, ev.ProcessingAttempts)
	}

	rec, ok := env.callRecords.records["c1"]
	if !ok {
		t.Fatal("expected a call record")
	}
	if rec.Summary == nil || *rec.Summary != "Carrier agreed to book the load." {
		t.Fatalf("call record summary = %v", rec.Summary)
	}
	if rec.Source != calls.SourceWebhook || rec.WebhookDeliveryStatus != calls.DeliverySuccess {
		t.Fatalf("call record provenance: %q/%q", rec.Source, rec.WebhookDeliveryStatus)
	}

	lead, err := env.leadStore.FindByCallRecord(ctx, rec.ID)
	if err != nil {
		t.Fatalf("expected a lead: %v", err)
	}
	if lead.Source != leads.SourceVoiceAgent {
		t.Fatalf("lead source = %q", lead.Source)
	}
	if lead.TenantID != env.tenantID {
		t.Fatalf("lead tenant = %s, want %s", lead.TenantID, env.tenantID)
	}

	n := env.notifications.notifications["c1"]
	if n.Status != NotificationProcessed || n.LeadID == nil || *n.LeadID != lead.ID {
		t.Fatalf("notification not completed: %+v", n)
	}
	if env.leadEvents != 1 {
		t.Fatalf("expected 1 lead event, got %d", env.leadEvents)
	}
}

func TestIngestIsIdempotentPerConversation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.service.Ingest(ctx, []byte(bookingPayload))
	env.service.Ingest(ctx, []byte(bookingPayload))

	if len(env.events.events) != 1 {
		t.Fatalf("expected 1 event row, got %d", len(env.events.events))
	}
	if len(env.notifications.notifications) != 1 {
		t.Fatalf("expected 1 notification row, got %d", len(env.notifications.notifications))
	}

	if err := env.service.ProcessCompletion(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if err := env.service.ProcessCompletion(ctx, "c1"); err != nil {
		t.Fatal(err)
	}

	if len(env.callRecords.records) != 1 {
		t.Fatalf("expected 1 call record, got %d", len(env.callRecords.records))
	}
	if len(env.leadStore.leads) != 1 {
		t.Fatalf("expected 1 lead, got %d", len(env.leadStore.leads))
	}
	if env.leadEvents != 1 {
		t.Fatalf("expected 1 lead event, got %d", env.leadEvents)
	}
}

func TestIngestWithoutConversationIDSynthesizesFallback(t *testing.T) {
	env := newTestEnv()

	result := env.service.Ingest(context.Background(), []byte(`{"transcript": "hello"}`))
	if !result.Received || !result.Stored {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.ConversationID == "" || !strings.HasPrefix(result.ConversationID, "unknown_") {
		t.Fatalf("expected synthesized id, got %q", result.ConversationID)
	}
	if _, ok := env.events.events[result.ConversationID]; !ok {
		t.Fatal("synthesized event not stored")
	}
}

func TestIngestWithoutCallerPhoneCreatesNoNotification(t *testing.T) {
	env := newTestEnv()

	result := env.service.Ingest(context.Background(),
		[]byte(`{"conversation_id": "c9", "transcript": "no numbers here"}`))
	if !result.Stored {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.LeadNotificationID != nil {
		t.Fatal("expected no notification id in result")
	}
	if len(env.notifications.notifications) != 0 {
		t.Fatalf("expected 0 notifications, got %d", len(env.notifications.notifications))
	}
}

func TestIngestStorageFailureStillReportsReceived(t *testing.T) {
	env := newTestEnv()
	env.events.failUpsert = true

	result := env.service.Ingest(context.Background(), []byte(bookingPayload))
	if !result.Received {
		t.Fatal("expected received=true")
	}
	if result.Stored {
		t.Fatal("expected stored=false")
	}
	if result.Error == "" {
		t.Fatal("expected an error marker in the result")
	}
}

func TestIngestNonJSONBodyStoredAsJSONString(t *testing.T) {
	env := newTestEnv()

	body := []byte("multipart garbage, definitely not JSON {{")
	result := env.service.Ingest(context.Background(), body)
	if !result.Received || !result.Stored {
		t.Fatalf("unexpected result %+v", result)
	}
	if !strings.HasPrefix(result.ConversationID, "unknown_") {
		t.Fatalf("expected synthesized id, got %q", result.ConversationID)
	}

	ev := env.events.events[result.ConversationID]
	if ev == nil {
		t.Fatal("event not stored")
	}
	// raw_payload is a jsonb column, so the stored bytes must always be
	// valid JSON that round-trips back to the original body.
	if !json.Valid(ev.RawPayload) {
		t.Fatalf("stored payload is not valid JSON: %q", ev.RawPayload)
	}
	var original string
	if err := json.Unmarshal(ev.RawPayload, &original); err != nil {
		t.Fatalf("expected a JSON string wrapper: %v", err)
	}
	if original != string(body) {
		t.Fatalf("stored %q, want %q", original, body)
	}
}

func TestProcessNoIntentCreatesNoLead(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	payload := `{
		"conversation_id": "c2",
		"caller_number": "+15551234567",
		"transcript": "caller: the rate is too low, not interested at that price",
		"analysis": {"transcript_summary": "Carrier declined the rate."}
	}`
	env.service.Ingest(ctx, []byte(payload))
	if err := env.service.ProcessCompletion(ctx, "c2"); err != nil {
		t.Fatal(err)
	}

	if env.events.events["c2"].ProcessingStatus != StatusSuccess {
		t.Fatalf("event status = %q", env.events.events["c2"].ProcessingStatus)
	}
	if len(env.leadStore.leads) != 0 {
		t.Fatalf("expected 0 leads, got %d", len(env.leadStore.leads))
	}
	// The notification stays pending until a lead exists.
	if env.notifications.notifications["c2"].Status != NotificationPending {
		t.Fatalf("notification status = %q", env.notifications.notifications["c2"].Status)
	}
}

func TestProcessErrorEventShortCircuits(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	payload := `{"type": "post_call_error", "conversation_id": "c3", "caller_number": "+15551234567"}`
	result := env.service.Ingest(ctx, []byte(payload))
	if !result.Stored {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(env.notifications.notifications) != 0 {
		t.Fatal("error deliveries must not create notifications")
	}

	if err := env.service.ProcessCompletion(ctx, "c3"); err != nil {
		t.Fatal(err)
	}

	ev := env.events.events["c3"]
	if ev.ProcessingStatus != StatusError {
		t.Fatalf("event status = %q", ev.ProcessingStatus)
	}
	if len(env.callRecords.records) != 0 || len(env.leadStore.leads) != 0 {
		t.Fatal("error events must not produce call records or leads")
	}
}

func TestProcessBackfillsSummaryOnlyWhenNull(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// A reconciliation-created record without a summary.
	env.callRecords.Insert(ctx, calls.CallRecord{
		ConversationID:        "c4",
		Source:                calls.SourceReconciliation,
		WebhookDeliveryStatus: calls.DeliveryMissed,
	})

	payload := `{
		"conversation_id": "c4",
		"caller_number": "+15551234567",
		"analysis": {"transcript_summary": "Late delivery of the webhook."}
	}`
	env.service.Ingest(ctx, []byte(payload))
	if err := env.service.ProcessCompletion(ctx, "c4"); err != nil {
		t.Fatal(err)
	}

	rec := env.callRecords.records["c4"]
	if rec.Summary == nil || *rec.Summary != "Late delivery of the webhook." {
		t.Fatalf("summary = %v", rec.Summary)
	}
	// All other fields of the existing record stay untouched.
	if rec.Source != calls.SourceReconciliation || rec.WebhookDeliveryStatus != calls.DeliveryMissed {
		t.Fatalf("record provenance changed: %q/%q", rec.Source, rec.WebhookDeliveryStatus)
	}
	if len(env.callRecords.records) != 1 {
		t.Fatalf("expected 1 call record, got %d", len(env.callRecords.records))
	}

	// Re-processing with a different summary must not replace it.
	payload2 := `{
		"conversation_id": "c4",
		"caller_number": "+15551234567",
		"analysis": {"transcript_summary": "A different summary."}
	}`
	env.service.Ingest(ctx, []byte(payload2))
	if err := env.service.ProcessCompletion(ctx, "c4"); err != nil {
		t.Fatal(err)
	}
	if *env.callRecords.records["c4"].Summary != "Late delivery of the webhook." {
		t.Fatalf("summary overwritten: %q", *env.callRecords.records["c4"].Summary)
	}
}

func TestClassifyEventType(t *testing.T) {
	if got := classifyEventType(map[string]any{"type": "post_call_transcription"}); got != EventTypePostCall {
		t.Fatalf("got %q", got)
	}
	if got := classifyEventType(map[string]any{"type": "post_call_error"}); got != EventTypePostCallError {
		t.Fatalf("got %q", got)
	}
	if got := classifyEventType(map[string]any{}); got != EventTypePostCall {
		t.Fatalf("got %q", got)
	}
}
