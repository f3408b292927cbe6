package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"loadline_backend/internal/calls"
	"loadline_backend/internal/intake"
	"loadline_backend/internal/leads"
	"loadline_backend/internal/voiceagent"
	"loadline_backend/platform/logger"
)

// ---- fakes ----

type fakePlatform struct {
	listing     []voiceagent.Conversation
	details     map[string]map[string]any
	listErr     error
	detailErrs  map[string]error
	detailCalls int
}

func (f *fakePlatform) ListConversations(context.Context, time.Time) ([]voiceagent.Conversation, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listing, nil
}

func (f *fakePlatform) GetConversation(_ context.Context, conversationID string) (voiceagent.Detail, error) {
	f.detailCalls++
	if err := f.detailErrs[conversationID]; err != nil {
		return voiceagent.Detail{}, err
	}
	raw, ok := f.details[conversationID]
	if !ok {
		return voiceagent.Detail{}, errors.New("conversation not found upstream")
	}
	return voiceagent.Detail{Raw: raw}, nil
}

type fakeEvents struct {
	rows map[string]*intake.WebhookEvent
}

func newFakeEvents() *fakeEvents { return &fakeEvents{rows: map[string]*intake.WebhookEvent{}} }

func (f *fakeEvents) Exists(_ context.Context, id string) (bool, error) {
	_, ok := f.rows[id]
	return ok, nil
}

func (f *fakeEvents) Upsert(_ context.Context, id, eventType string, raw []byte) (intake.WebhookEvent, error) {
	if existing, ok := f.rows[id]; ok {
		existing.EventType = eventType
		existing.RawPayload = raw
		return *existing, nil
	}
	ev := &intake.WebhookEvent{
		ID:               uuid.New(),
		ConversationID:   id,
		EventType:        eventType,
		RawPayload:       raw,
		ProcessingStatus: intake.StatusPending,
	}
	f.rows[id] = ev
	return *ev, nil
}

func (f *fakeEvents) MarkOutcome(_ context.Context, id, status string, processErr error) error {
	ev, ok := f.rows[id]
	if !ok {
		return intake.ErrEventNotFound
	}
	ev.ProcessingStatus = status
	ev.ProcessingAttempts++
	if processErr != nil {
		msg := processErr.Error()
		ev.LastError = &msg
	}
	return nil
}

func (f *fakeEvents) AnnotateError(_ context.Context, id, note string) error {
	ev, ok := f.rows[id]
	if !ok {
		return intake.ErrEventNotFound
	}
	if ev.LastError != nil {
		note = *ev.LastError + " | " + note
	}
	ev.LastError = &note
	return nil
}

type fakeRecords struct {
	rows    map[string]*calls.CallRecord
	inserts int
}

func newFakeRecords() *fakeRecords { return &fakeRecords{rows: map[string]*calls.CallRecord{}} }

func (f *fakeRecords) GetByConversationID(_ context.Context, id string) (calls.CallRecord, error) {
	rec, ok := f.rows[id]
	if !ok {
		return calls.CallRecord{}, calls.ErrCallRecordNotFound
	}
	return *rec, nil
}

func (f *fakeRecords) Insert(_ context.Context, rec calls.CallRecord) (calls.CallRecord, error) {
	rec.ID = uuid.New()
	stored := rec
	f.rows[rec.ConversationID] = &stored
	f.inserts++
	return stored, nil
}

func (f *fakeRecords) BackfillSummary(_ context.Context, id uuid.UUID, summary string) (bool, error) {
	for _, rec := range f.rows {
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

type fakeLeads struct {
	rows    map[uuid.UUID]*leads.Lead
	inserts int
}

func newFakeLeads() *fakeLeads { return &fakeLeads{rows: map[uuid.UUID]*leads.Lead{}} }

func (f *fakeLeads) Insert(_ context.Context, lead leads.Lead) (leads.Lead, error) {
	lead.ID = uuid.New()
	stored := lead
	f.rows[lead.CallRecordID] = &stored
	f.inserts++
	return stored, nil
}

func (f *fakeLeads) FindByCallRecord(_ context.Context, callRecordID uuid.UUID) (leads.Lead, error) {
	lead, ok := f.rows[callRecordID]
	if !ok {
		return leads.Lead{}, leads.ErrLeadNotFound
	}
	return *lead, nil
}

type staticResolver struct{ tenantID uuid.UUID }

func (r staticResolver) Resolve(context.Context, string) uuid.UUID { return r.tenantID }

type sweepEnv struct {
	service  *Service
	platform *fakePlatform
	events   *fakeEvents
	records  *fakeRecords
	leadRepo *fakeLeads
	tenantID uuid.UUID
}

func newSweepEnv() *sweepEnv {
	env := &sweepEnv{
		platform: &fakePlatform{details: map[string]map[string]any{}, detailErrs: map[string]error{}},
		events:   newFakeEvents(),
		records:  newFakeRecords(),
		leadRepo: newFakeLeads(),
		tenantID: uuid.New(),
	}
	env.service = NewService(env.platform, env.events, env.records, env.leadRepo,
		staticResolver{tenantID: env.tenantID}, nil, logger.New("development"))
	env.service.pause = 0
	return env
}

// ---- tests ----

func TestSweepHealsMissedDelivery(t *testing.T) {
	env := newSweepEnv()
	env.platform.listing = []voiceagent.Conversation{{ID: "c2"}}
	env.platform.details["c2"] = map[string]any{
		"conversation_id": "c2",
		"caller_number":   "+12128675309",
		"transcript":      "caller: interested in the load, have dispatch call me",
		"analysis":        map[string]any{"transcript_summary": "Carrier wants a callback about the load."},
	}

	report, err := env.service.Run(context.Background(), 24)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Checked != 1 || report.Reconciled != 1 || report.CallRecordsCreated != 1 || report.LeadsCreated != 1 {
		t.Fatalf("report = %+v", report)
	}

	ev := env.events.rows["c2"]
	if ev == nil || ev.EventType != intake.EventTypeReconciled {
		t.Fatalf("synthetic event = %+v", ev)
	}
	if ev.ProcessingStatus != intake.StatusSuccess {
		t.Fatalf("event status = %q", ev.ProcessingStatus)
	}
	if ev.LastError == nil || *ev.LastError != reconcileAnnotation {
		t.Fatalf("annotation = %v", ev.LastError)
	}

	rec := env.records.rows["c2"]
	if rec.Source != calls.SourceReconciliation || rec.WebhookDeliveryStatus != calls.DeliveryMissed {
		t.Fatalf("record provenance = %q/%q", rec.Source, rec.WebhookDeliveryStatus)
	}

	lead, err := env.leadRepo.FindByCallRecord(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("expected a lead: %v", err)
	}
	if lead.Source != leads.SourceVoiceAgentReconciled || !lead.RequiresCallback {
		t.Fatalf("lead = %+v", lead)
	}
	if lead.TenantID != env.tenantID {
		t.Fatalf("lead tenant = %s", lead.TenantID)
	}
}

func TestSweepIsIdempotentAcrossRuns(t *testing.T) {
	env := newSweepEnv()
	env.platform.listing = []voiceagent.Conversation{{ID: "c2"}}
	env.platform.details["c2"] = map[string]any{
		"conversation_id": "c2",
		"caller_number":   "+12128675309",
		"transcript":      "caller: sounds good, book it",
		"analysis":        map[string]any{"transcript_summary": "Booked."},
	}

	if _, err := env.service.Run(context.Background(), 24); err != nil {
		t.Fatal(err)
	}
	second, err := env.service.Run(context.Background(), 24)
	if err != nil {
		t.Fatal(err)
	}

	if second.Reconciled != 0 || second.CallRecordsCreated != 0 || second.LeadsCreated != 0 {
		t.Fatalf("second run created rows: %+v", second)
	}
	if len(env.events.rows) != 1 || env.records.inserts != 1 || env.leadRepo.inserts != 1 {
		t.Fatalf("duplicate rows after re-run: events=%d recordInserts=%d leadInserts=%d",
			len(env.events.rows), env.records.inserts, env.leadRepo.inserts)
	}
}

func TestSweepBackfillsSummaryOnceAndNeverOverwrites(t *testing.T) {
	env := newSweepEnv()
	ctx := context.Background()

	env.events.Upsert(ctx, "c5", intake.EventTypePostCall, []byte(`{}`))
	env.records.Insert(ctx, calls.CallRecord{ConversationID: "c5", Source: calls.SourceWebhook})

	env.platform.listing = []voiceagent.Conversation{{ID: "c5"}}
	env.platform.details["c5"] = map[string]any{
		"analysis": map[string]any{"transcript_summary": "First fetched summary."},
	}

	report, err := env.service.Run(ctx, 24)
	if err != nil {
		t.Fatal(err)
	}
	if report.SummariesBackfilled != 1 {
		t.Fatalf("report = %+v", report)
	}
	if *env.records.rows["c5"].Summary != "First fetched summary." {
		t.Fatalf("summary = %q", *env.records.rows["c5"].Summary)
	}

	// A later run fetching a different summary must not change the record.
	env.platform.details["c5"] = map[string]any{
		"analysis": map[string]any{"transcript_summary": "A different summary."},
	}
	report, err = env.service.Run(ctx, 24)
	if err != nil {
		t.Fatal(err)
	}
	if report.SummariesBackfilled != 0 {
		t.Fatalf("second report = %+v", report)
	}
	if *env.records.rows["c5"].Summary != "First fetched summary." {
		t.Fatalf("summary overwritten: %q", *env.records.rows["c5"].Summary)
	}
}

func TestSweepSkipsFailedConversationAndContinues(t *testing.T) {
	env := newSweepEnv()
	env.platform.listing = []voiceagent.Conversation{{ID: "bad"}, {ID: "good"}}
	env.platform.detailErrs["bad"] = errors.New("upstream timeout")
	env.platform.details["good"] = map[string]any{
		"caller_number": "+12128675309",
		"transcript":    "nothing of note",
	}

	report, err := env.service.Run(context.Background(), 24)
	if err != nil {
		t.Fatal(err)
	}
	if report.Checked != 2 || report.Skipped != 1 || report.Reconciled != 1 {
		t.Fatalf("report = %+v", report)
	}
	if _, ok := env.events.rows["good"]; !ok {
		t.Fatal("healthy conversation was not reconciled")
	}
}

func TestSweepListingFailureIsFatal(t *testing.T) {
	env := newSweepEnv()
	env.platform.listErr = errors.New("listing down")

	if _, err := env.service.Run(context.Background(), 24); err == nil {
		t.Fatal("expected an error when the listing API is unavailable")
	}
}
