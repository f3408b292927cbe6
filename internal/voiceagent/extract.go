package voiceagent

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Completion holds the structured fields extracted from a raw call payload,
// whether it arrived as a webhook delivery or was fetched during reconciliation.
type Completion struct {
	CallerNumber    string
	ReceiverNumber  string
	Direction       string
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationSeconds int
	Status          string
	CostCents       int
	Transcript      string
	Summary         string
}

// IntentText returns the text the booking-intent detector runs over.
func (c Completion) IntentText() string {
	return strings.ToLower(strings.TrimSpace(c.Transcript + " " + c.Summary))
}

// stringExtractor pulls one candidate value out of a raw payload.
// Extractors are tried in priority order; the first non-empty result wins.
type stringExtractor func(map[string]any) string

func firstNonEmpty(payload map[string]any, extractors ...stringExtractor) string {
	for _, extract := range extractors {
		if v := strings.TrimSpace(extract(payload)); v != "" {
			return v
		}
	}
	return ""
}

func at(path ...string) stringExtractor {
	return func(payload map[string]any) string {
		return nestedString(payload, path...)
	}
}

// ExtractConversationID finds the external conversation id in any of the
// payload locations the platform has been observed to use.
func ExtractConversationID(payload map[string]any) string {
	return firstNonEmpty(payload,
		at("conversation_id"),
		at("conversationId"),
		at("parameters", "conversation_id"),
		at("call", "conversation_id"),
		at("data", "conversation_id"),
	)
}

// FallbackConversationID synthesizes a locally unique id so that deliveries
// without any identifiable conversation id are never silently dropped.
func FallbackConversationID() string {
	return fmt.Sprintf("unknown_%d_%s", time.Now().Unix(), uuid.NewString()[:8])
}

// ExtractSummary resolves the call summary with a fixed priority order:
// explicit summary fields first, then a sentence synthesized from the
// platform's structured analysis, then empty.
func ExtractSummary(payload map[string]any) string {
	if s := firstNonEmpty(payload,
		at("analysis", "transcript_summary"),
		at("analysis", "summary"),
		at("summary"),
		at("call_summary"),
		at("data", "analysis", "transcript_summary"),
	); s != "" {
		return s
	}
	return synthesizeOutcomeSummary(payload)
}

// synthesizeOutcomeSummary builds a minimal summary from the analysis block
// when no textual summary exists. Returns "" when the analysis is absent too.
func synthesizeOutcomeSummary(payload map[string]any) string {
	analysis, ok := nestedMap(payload, "analysis")
	if !ok {
		return ""
	}

	outcome := strings.TrimSpace(nestedString(analysis, "call_successful"))
	if outcome == "" {
		return ""
	}

	duration := extractDurationSeconds(payload)
	switch strings.ToLower(outcome) {
	case "success", "true":
		if duration > 0 {
			return fmt.Sprintf("Call completed successfully after %d seconds.", duration)
		}
		return "Call completed successfully."
	default:
		if duration > 0 {
			return fmt.Sprintf("Call did not complete successfully (%d seconds).", duration)
		}
		return "Call did not complete successfully."
	}
}

// ExtractCompletion pulls every structured field the processor needs out of a
// raw payload. Missing fields stay zero-valued; nothing here fails.
func ExtractCompletion(payload map[string]any) Completion {
	comp := Completion{
		CallerNumber: firstNonEmpty(payload,
			at("caller_number"),
			at("from_number"),
			at("caller_id"),
			at("metadata", "phone_call", "external_number"),
			at("call", "from_number"),
			at("parameters", "caller_number"),
		),
		ReceiverNumber: firstNonEmpty(payload,
			at("receiver_number"),
			at("to_number"),
			at("called_number"),
			at("metadata", "phone_call", "agent_number"),
			at("call", "to_number"),
			at("parameters", "receiver_number"),
		),
		Direction: firstNonEmpty(payload,
			at("direction"),
			at("metadata", "phone_call", "direction"),
			at("call", "direction"),
		),
		Status: firstNonEmpty(payload,
			at("status"),
			at("call_status"),
			at("call", "status"),
		),
		Transcript:      extractTranscript(payload),
		Summary:         ExtractSummary(payload),
		DurationSeconds: extractDurationSeconds(payload),
		CostCents:       extractCostCents(payload),
	}

	if comp.Direction == "" {
		comp.Direction = "inbound"
	}
	if comp.Status == "" {
		comp.Status = "completed"
	}

	if started := extractUnixTime(payload,
		[]string{"start_time_unix_secs"},
		[]string{"metadata", "start_time_unix_secs"},
		[]string{"event_timestamp"},
	); started != nil {
		comp.StartedAt = started
		if comp.DurationSeconds > 0 {
			ended := started.Add(time.Duration(comp.DurationSeconds) * time.Second)
			comp.EndedAt = &ended
		}
	}

	return comp
}

// extractTranscript accepts both a flat transcript string and the platform's
// turn-by-turn array form.
func extractTranscript(payload map[string]any) string {
	if s := firstNonEmpty(payload, at("transcript_text"), at("call", "transcript")); s != "" {
		return s
	}

	raw, ok := payload["transcript"]
	if !ok {
		if data, dok := nestedMap(payload, "data"); dok {
			raw, ok = data["transcript"]
		}
	}

	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		var parts []string
		for _, turn := range v {
			m, mok := turn.(map[string]any)
			if !mok {
				continue
			}
			text := firstNonEmpty(m, at("message"), at("text"))
			if text == "" {
				continue
			}
			if role := nestedString(m, "role"); role != "" {
				parts = append(parts, role+": "+text)
			} else {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func extractDurationSeconds(payload map[string]any) int {
	for _, path := range [][]string{
		{"call_duration_secs"},
		{"duration_seconds"},
		{"metadata", "call_duration_secs"},
	} {
		if n, ok := nestedNumber(payload, path...); ok && n > 0 {
			return int(n)
		}
	}
	return 0
}

func extractCostCents(payload map[string]any) int {
	if n, ok := nestedNumber(payload, "cost_cents"); ok {
		return int(n)
	}
	if n, ok := nestedNumber(payload, "metadata", "cost"); ok {
		return int(n * 100)
	}
	return 0
}

func extractUnixTime(payload map[string]any, paths ...[]string) *time.Time {
	for _, path := range paths {
		if n, ok := nestedNumber(payload, path...); ok && n > 0 {
			t := time.Unix(int64(n), 0).UTC()
			return &t
		}
	}
	return nil
}

// ---- nested payload access ----

func nestedString(payload map[string]any, path ...string) string {
	v, ok := nestedValue(payload, path...)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

func nestedNumber(payload map[string]any, path ...string) (float64, bool) {
	v, ok := nestedValue(payload, path...)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func nestedMap(payload map[string]any, path ...string) (map[string]any, bool) {
	v, ok := nestedValue(payload, path...)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func nestedValue(payload map[string]any, path ...string) (any, bool) {
	if payload == nil || len(path) == 0 {
		return nil, false
	}
	current := payload
	for i, key := range path {
		v, ok := current[key]
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}
