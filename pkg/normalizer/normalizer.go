// Package normalizer converts raw heterogeneous server payloads into
// normalized events. Payload shapes vary across backend generations; the
// normalizer is tolerant of missing fields and never fails on unknown ones.
package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shintairiku/marketing-automation-sub003/pkg/events"
	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

// ErrUnparseablePayload reports a message body that is not valid JSON. The
// caller records it and ignores the payload; it must never tear down the
// connection or the reducer.
var ErrUnparseablePayload = errors.New("unparseable payload")

// Normalize parses a raw message body and applies the normalization rules.
// A socket envelope ({type: "server_event", payload: ...}) is unwrapped
// first; a bare payload is handled as-is.
func Normalize(processID string, data []byte) ([]events.Event, error) {
	var envelope events.ServerEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseablePayload, err)
	}

	body := data
	if envelope.Type == events.EnvelopeServerEvent && len(envelope.Payload) > 0 {
		body = envelope.Payload
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseablePayload, err)
	}

	return NormalizeMap(processID, raw, ""), nil
}

// NormalizeRecord normalizes one row of the authoritative event log,
// stamping the record's id, sequence and timestamp onto every emitted event
// so downstream dedup and ordering work across overlapping fetch windows.
func NormalizeRecord(processID string, rec models.EventRecord) ([]events.Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(rec.Payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseablePayload, err)
	}

	return normalize(processID, raw, rec.ID, rec.Sequence, rec.CreatedAt), nil
}

// NormalizeMap applies the normalization rules in priority order. The rules
// are independently applicable: a single payload may yield several events.
// A heartbeat yields none. eventID, when non-empty, overrides the generated
// event id (log-record path).
func NormalizeMap(processID string, raw map[string]any, eventID string) []events.Event {
	return normalize(processID, raw, eventID, 0, time.Time{})
}

func normalize(processID string, raw map[string]any, eventID string, sequence int64, at time.Time) []events.Event {
	if isHeartbeat(raw) {
		return nil
	}

	var out []events.Event

	base := func(t events.EventType) events.BaseEvent {
		b := events.NewBaseEvent(t, processID)
		if eventID != "" {
			b.ID = eventID
		}

		b.Sequence = sequence
		if !at.IsZero() {
			b.Timestamp = at
		}

		return b
	}

	step, hasStep := stringField(raw, "step")
	message, _ := stringField(raw, "message")
	errMsg, hasErr := stringField(raw, "error_message")

	if hasStep && models.StepID(step) != models.StepFinished {
		out = append(out, events.StepChanged{
			BaseEvent: base(events.StepChangedEvent),
			Step:      models.StepID(step),
			Message:   message,
		})
	}

	if input, ok := inputRequired(raw, base); ok {
		out = append(out, input)
	}

	if chunk, ok := stringField(raw, "html_content_chunk"); ok {
		ev := events.ContentChunk{
			BaseEvent: base(events.ContentChunkEvent),
			Chunk:     chunk,
		}
		if idx, ok := intField(raw, "section_index"); ok {
			ev.SectionIndex = &idx
		}

		ev.Heading, _ = stringField(raw, "heading")
		out = append(out, ev)
	}

	if final, ok := stringField(raw, "final_html_content"); ok {
		title, _ := stringField(raw, "title")
		out = append(out, events.ArticleFinalized{
			BaseEvent: base(events.ArticleFinalizedEvent),
			Title:     title,
			Content:   final,
		})
	}

	if hasErr {
		failed := events.GenerationFailed{
			BaseEvent: base(events.GenerationFailedEvent),
			Message:   errMsg,
		}
		if models.StepIndex(models.StepID(step)) >= 0 {
			failed.Step = models.StepID(step)
		}

		out = append(out, failed)
	}

	if hasStep && models.StepID(step) == models.StepFinished {
		out = append(out, events.GenerationFinished{
			BaseEvent: base(events.GenerationFinishedEvent),
			Error:     errMsg,
		})
	}

	if idx, ok := intField(raw, "query_index"); ok {
		total, _ := intField(raw, "total_queries")
		query, _ := stringField(raw, "query")
		out = append(out, events.ResearchProgressed{
			BaseEvent:    base(events.ResearchProgressedEvent),
			QueryIndex:   idx,
			TotalQueries: total,
			Query:        query,
		})
	}

	if articleID, ok := stringField(raw, "article_id"); ok && articleID != "" {
		out = append(out, events.ArticleIDAssigned{
			BaseEvent: base(events.ArticleIDAssignedEvent),
			ArticleID: articleID,
		})
	}

	if activity, ok := activityEvents(raw, base, eventID); ok {
		out = append(out, activity...)
	}

	if run, ok := runStateChanged(raw, base); ok {
		out = append(out, run)
	}

	return out
}

// inputRequired handles both envelopes of rule 3 and rule 4: the modern
// request_type+data pair and the legacy direct artifact fields.
func inputRequired(raw map[string]any, base func(events.EventType) events.BaseEvent) (events.Event, bool) {
	data := raw

	requestType, hasRequest := stringField(raw, "request_type")
	if hasRequest {
		if nested, ok := raw["data"].(map[string]any); ok {
			data = nested
		}
	}

	ev := events.InputRequired{BaseEvent: base(events.InputRequiredEvent)}
	ev.AgentMessage, _ = stringField(raw, "agent_message")

	switch {
	case hasField(data, "personas"):
		ev.InputType = models.InputSelectPersona
		decodeField(data, "personas", &ev.Personas)
	case hasField(data, "themes"):
		ev.InputType = models.InputSelectTheme
		decodeField(data, "themes", &ev.Themes)
	case hasField(data, "plan"):
		ev.InputType = models.InputApprovePlan
		decodeField(data, "plan", &ev.ResearchPlan)
	case hasField(data, "outline"):
		ev.InputType = models.InputApproveOutline
		decodeField(data, "outline", &ev.Outline)
	default:
		// An explicit request_type with no recognized artifact slot is still
		// a checkpoint: pause and carry the raw type to the dispatcher.
		if !hasRequest {
			return nil, false
		}
	}

	// An explicit request_type wins over the inferred one so unknown future
	// checkpoints still round-trip to the dispatcher.
	if hasRequest {
		ev.InputType = models.InputType(requestType)
	}

	return ev, true
}

// activityEvents derives activity feed entries from event_type payloads.
func activityEvents(raw map[string]any, base func(events.EventType) events.BaseEvent, eventID string) ([]events.Event, bool) {
	eventType, ok := stringField(raw, "event_type")
	if !ok {
		return nil, false
	}

	message, _ := stringField(raw, "message")
	phase, _ := stringField(raw, "step")

	switch eventType {
	case "tool_call_completed":
		isErr, _ := boolField(raw, "is_error")

		return []events.Event{events.ToolCallCompleted{
			BaseEvent: base(events.ToolCallCompletedEvent),
			Message:   message,
			IsError:   isErr,
		}}, true
	case "tool_call_started", "thinking", "system":
		entryType := models.ActivitySystem
		status := models.ActivityDone

		switch eventType {
		case "tool_call_started":
			entryType = models.ActivityTool
			status = models.ActivityRunning
		case "thinking":
			entryType = models.ActivityThinking
		}

		b := base(events.ActivityRecordedEvent)
		entryID := eventID
		if entryID == "" {
			entryID = b.ID
		}

		return []events.Event{events.ActivityRecorded{
			BaseEvent: b,
			Entry: models.ActivityEntry{
				ID:        entryID,
				Type:      entryType,
				Message:   message,
				Phase:     models.StepID(phase),
				Status:    status,
				Timestamp: b.Timestamp,
				Sequence:  b.Sequence,
			},
		}}, true
	default:
		return nil, false
	}
}

// runStateChanged handles the chat variant's run update shape.
func runStateChanged(raw map[string]any, base func(events.EventType) events.BaseEvent) (events.Event, bool) {
	runID, ok := stringField(raw, "run_id")
	if !ok {
		return nil, false
	}

	status, _ := stringField(raw, "run_status")
	if status == "" {
		status, _ = stringField(raw, "status")
	}

	ev := events.RunStateChanged{
		BaseEvent: base(events.RunStateChangedEvent),
		RunID:     runID,
		Status:    models.AgentRunStatus(status),
	}
	ev.Error, _ = stringField(raw, "error")
	decodeField(raw, "events", &ev.RunEvents)

	return ev, true
}

func isHeartbeat(raw map[string]any) bool {
	if _, ok := raw["heartbeat"]; ok {
		return true
	}

	t, _ := stringField(raw, "type")

	return t == "ping" || t == "pong" || t == "heartbeat"
}

func hasField(raw map[string]any, key string) bool {
	v, ok := raw[key]

	return ok && v != nil
}

func stringField(raw map[string]any, key string) (string, bool) {
	v, ok := raw[key].(string)

	return v, ok
}

func boolField(raw map[string]any, key string) (bool, bool) {
	v, ok := raw[key].(bool)

	return v, ok
}

// intField accepts both JSON numbers (float64 after Unmarshal) and ints.
func intField(raw map[string]any, key string) (int, bool) {
	switch v := raw[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// decodeField round-trips a loosely typed sub-value into a typed target,
// ignoring fields that do not fit.
func decodeField(raw map[string]any, key string, target any) {
	v, ok := raw[key]
	if !ok || v == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	_ = json.Unmarshal(data, target)
}
