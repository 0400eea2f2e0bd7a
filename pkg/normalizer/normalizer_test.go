package normalizer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shintairiku/marketing-automation-sub003/pkg/events"
	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

// Heartbeat handling

func TestNormalize_HeartbeatYieldsNothing(t *testing.T) {
	for _, payload := range []string{
		`{"type":"ping"}`,
		`{"type":"pong"}`,
		`{"type":"heartbeat"}`,
		`{"heartbeat":true}`,
	} {
		out, err := Normalize("proc-1", []byte(payload))
		require.NoError(t, err, payload)
		assert.Empty(t, out, payload)
	}
}

func TestNormalize_InvalidJSONReturnsUnparseable(t *testing.T) {
	_, err := Normalize("proc-1", []byte("not json{"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnparseablePayload)
}

// Envelope unwrapping

func TestNormalize_UnwrapsServerEventEnvelope(t *testing.T) {
	data := []byte(`{"type":"server_event","payload":{"step":"researching","message":"Running queries"}}`)

	out, err := Normalize("proc-1", data)
	require.NoError(t, err)
	require.Len(t, out, 1)

	changed, ok := out[0].(events.StepChanged)
	require.True(t, ok)
	assert.Equal(t, models.StepResearching, changed.Step)
	assert.Equal(t, "Running queries", changed.Message)
	assert.Equal(t, "proc-1", changed.ProcessID)
}

func TestNormalize_BarePayloadHandledAsIs(t *testing.T) {
	out, err := Normalize("proc-1", []byte(`{"step":"editing"}`))
	require.NoError(t, err)
	require.Len(t, out, 1)

	changed, ok := out[0].(events.StepChanged)
	require.True(t, ok)
	assert.Equal(t, models.StepEditing, changed.Step)
}

// Step rules

func TestNormalizeMap_FinishedSentinelIsNotStepChange(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{"step": "finished"}, "")
	require.Len(t, out, 1)

	finished, ok := out[0].(events.GenerationFinished)
	require.True(t, ok)
	assert.Empty(t, finished.Error)
}

func TestNormalizeMap_FinishedWithErrorCarriesIt(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{
		"step":          "finished",
		"error_message": "model quota exceeded",
	}, "")

	var finished *events.GenerationFinished

	var failed *events.GenerationFailed

	for _, ev := range out {
		switch e := ev.(type) {
		case events.GenerationFinished:
			finished = &e
		case events.GenerationFailed:
			failed = &e
		}
	}

	require.NotNil(t, finished)
	assert.Equal(t, "model quota exceeded", finished.Error)

	// The error field also produces its own failure event.
	require.NotNil(t, failed)
	assert.Equal(t, "model quota exceeded", failed.Message)
}

// Input-required rules

func TestNormalizeMap_ModernInputRequiredShape(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{
		"request_type":  "select_persona",
		"agent_message": "Pick one",
		"data": map[string]any{
			"personas": []any{
				map[string]any{"id": float64(1), "description": "Busy founder"},
				map[string]any{"id": float64(2), "description": "Hobbyist"},
			},
		},
	}, "")
	require.Len(t, out, 1)

	input, ok := out[0].(events.InputRequired)
	require.True(t, ok)
	assert.Equal(t, models.InputSelectPersona, input.InputType)
	assert.Equal(t, "Pick one", input.AgentMessage)
	require.Len(t, input.Personas, 2)
	assert.Equal(t, "Busy founder", input.Personas[0].Description)
}

func TestNormalizeMap_LegacyDirectArtifactField(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{
		"themes": []any{
			map[string]any{"id": float64(1), "title": "Remote onboarding"},
		},
	}, "")
	require.Len(t, out, 1)

	input, ok := out[0].(events.InputRequired)
	require.True(t, ok)
	assert.Equal(t, models.InputSelectTheme, input.InputType)
	require.Len(t, input.Themes, 1)
	assert.Equal(t, "Remote onboarding", input.Themes[0].Title)
}

func TestNormalizeMap_ExplicitRequestTypeWinsOverInferred(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{
		"request_type": "confirm_expansion",
		"data": map[string]any{
			"outline": map[string]any{
				"title":    "Draft",
				"sections": []any{map[string]any{"heading": "Intro"}},
			},
		},
	}, "")
	require.Len(t, out, 1)

	input, ok := out[0].(events.InputRequired)
	require.True(t, ok)
	assert.Equal(t, models.InputType("confirm_expansion"), input.InputType)
	require.NotNil(t, input.Outline)
	assert.Equal(t, "Draft", input.Outline.Title)
}

func TestNormalizeMap_UnknownRequestTypeStillPauses(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{
		"request_type":  "choose_banner",
		"agent_message": "Pick a banner",
		"data": map[string]any{
			"banners": []any{map[string]any{"id": float64(1)}},
		},
	}, "")
	require.Len(t, out, 1)

	input, ok := out[0].(events.InputRequired)
	require.True(t, ok)
	assert.Equal(t, models.InputType("choose_banner"), input.InputType)
	assert.Equal(t, "Pick a banner", input.AgentMessage)
	assert.Nil(t, input.Personas)
	assert.Nil(t, input.Themes)
}

func TestNormalizeMap_PlanAndOutlineDecode(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{
		"plan": map[string]any{
			"topic": "SEO",
			"queries": []any{
				map[string]any{"query": "seo basics 2026"},
			},
		},
	}, "")
	require.Len(t, out, 1)

	input, ok := out[0].(events.InputRequired)
	require.True(t, ok)
	assert.Equal(t, models.InputApprovePlan, input.InputType)
	require.NotNil(t, input.ResearchPlan)
	require.Len(t, input.ResearchPlan.Queries, 1)
	assert.Equal(t, "seo basics 2026", input.ResearchPlan.Queries[0].Query)
}

// Content rules

func TestNormalizeMap_ContentChunkWithSectionIndex(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{
		"html_content_chunk": "<p>Hello</p>",
		"section_index":      float64(2),
		"heading":            "Benefits",
	}, "")
	require.Len(t, out, 1)

	chunk, ok := out[0].(events.ContentChunk)
	require.True(t, ok)
	assert.Equal(t, "<p>Hello</p>", chunk.Chunk)
	require.NotNil(t, chunk.SectionIndex)
	assert.Equal(t, 2, *chunk.SectionIndex)
	assert.Equal(t, "Benefits", chunk.Heading)
}

func TestNormalizeMap_FinalContent(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{
		"final_html_content": "<article>done</article>",
		"title":              "Finished Piece",
	}, "")
	require.Len(t, out, 1)

	finalized, ok := out[0].(events.ArticleFinalized)
	require.True(t, ok)
	assert.Equal(t, "Finished Piece", finalized.Title)
	assert.Equal(t, "<article>done</article>", finalized.Content)
}

// Error rule

func TestNormalizeMap_ErrorMessageWithCatalogueStep(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{
		"step":          "editing",
		"error_message": "editor crashed",
	}, "")

	var failed *events.GenerationFailed

	for _, ev := range out {
		if e, ok := ev.(events.GenerationFailed); ok {
			failed = &e
		}
	}

	require.NotNil(t, failed)
	assert.Equal(t, "editor crashed", failed.Message)
	assert.Equal(t, models.StepEditing, failed.Step)
}

func TestNormalizeMap_ErrorMessageWithoutCatalogueStep(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{"error_message": "boom"}, "")
	require.Len(t, out, 1)

	failed, ok := out[0].(events.GenerationFailed)
	require.True(t, ok)
	assert.Empty(t, failed.Step)
}

// Progress and metadata rules

func TestNormalizeMap_ResearchProgress(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{
		"query_index":   float64(3),
		"total_queries": float64(8),
		"query":         "competitor pricing",
	}, "")
	require.Len(t, out, 1)

	progress, ok := out[0].(events.ResearchProgressed)
	require.True(t, ok)
	assert.Equal(t, 3, progress.QueryIndex)
	assert.Equal(t, 8, progress.TotalQueries)
	assert.Equal(t, "competitor pricing", progress.Query)
}

func TestNormalizeMap_ArticleIDAssigned(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{"article_id": "art-42"}, "")
	require.Len(t, out, 1)

	assigned, ok := out[0].(events.ArticleIDAssigned)
	require.True(t, ok)
	assert.Equal(t, "art-42", assigned.ArticleID)
}

func TestNormalizeMap_EmptyArticleIDIgnored(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{"article_id": ""}, "")
	assert.Empty(t, out)
}

// Activity rules

func TestNormalizeMap_ToolCallStarted(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{
		"event_type": "tool_call_started",
		"message":    "web_search(competitor pricing)",
		"step":       "researching",
	}, "")
	require.Len(t, out, 1)

	recorded, ok := out[0].(events.ActivityRecorded)
	require.True(t, ok)
	assert.Equal(t, models.ActivityTool, recorded.Entry.Type)
	assert.Equal(t, models.ActivityRunning, recorded.Entry.Status)
	assert.Equal(t, models.StepResearching, recorded.Entry.Phase)
	assert.NotEmpty(t, recorded.Entry.ID)
}

func TestNormalizeMap_ThinkingAndSystemEntries(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{
		"event_type": "thinking",
		"message":    "Weighing persona options",
	}, "")
	require.Len(t, out, 1)

	recorded, ok := out[0].(events.ActivityRecorded)
	require.True(t, ok)
	assert.Equal(t, models.ActivityThinking, recorded.Entry.Type)
	assert.Equal(t, models.ActivityDone, recorded.Entry.Status)

	out = NormalizeMap("proc-1", map[string]any{
		"event_type": "system",
		"message":    "Process resumed",
	}, "")
	require.Len(t, out, 1)

	recorded, ok = out[0].(events.ActivityRecorded)
	require.True(t, ok)
	assert.Equal(t, models.ActivitySystem, recorded.Entry.Type)
}

func TestNormalizeMap_ToolCallCompleted(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{
		"event_type": "tool_call_completed",
		"message":    "12 results",
		"is_error":   false,
	}, "")
	require.Len(t, out, 1)

	completed, ok := out[0].(events.ToolCallCompleted)
	require.True(t, ok)
	assert.Equal(t, "12 results", completed.Message)
	assert.False(t, completed.IsError)
}

func TestNormalizeMap_UnknownEventTypeIgnored(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{"event_type": "telemetry"}, "")
	assert.Empty(t, out)
}

// Run state rule

func TestNormalizeMap_RunStateChanged(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{
		"run_id":     "run-7",
		"run_status": "running",
		"events": []any{
			map[string]any{"event_id": "ev-1", "sequence": float64(1), "message": "thinking"},
		},
	}, "")
	require.Len(t, out, 1)

	run, ok := out[0].(events.RunStateChanged)
	require.True(t, ok)
	assert.Equal(t, "run-7", run.RunID)
	assert.Equal(t, models.RunRunning, run.Status)
	require.Len(t, run.RunEvents, 1)
	assert.Equal(t, "ev-1", run.RunEvents[0].EventID)
}

func TestNormalizeMap_RunStatusFallsBackToStatusField(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{
		"run_id": "run-8",
		"status": "completed",
	}, "")
	require.Len(t, out, 1)

	run, ok := out[0].(events.RunStateChanged)
	require.True(t, ok)
	assert.Equal(t, models.RunCompleted, run.Status)
}

// Compound payloads

func TestNormalizeMap_SinglePayloadYieldsMultipleEvents(t *testing.T) {
	out := NormalizeMap("proc-1", map[string]any{
		"step":               "writing_sections",
		"html_content_chunk": "<p>body</p>",
	}, "")
	require.Len(t, out, 2)
	assert.IsType(t, events.StepChanged{}, out[0])
	assert.IsType(t, events.ContentChunk{}, out[1])
}

// Event log records

func TestNormalizeRecord_StampsIdentityAndOrdering(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	rec := models.EventRecord{
		ID:        "rec-99",
		Sequence:  42,
		CreatedAt: at,
		Payload:   json.RawMessage(`{"event_type":"thinking","message":"mulling"}`),
	}

	out, err := NormalizeRecord("proc-1", rec)
	require.NoError(t, err)
	require.Len(t, out, 1)

	recorded, ok := out[0].(events.ActivityRecorded)
	require.True(t, ok)
	assert.Equal(t, "rec-99", recorded.ID)
	assert.Equal(t, int64(42), recorded.Sequence)
	assert.Equal(t, at, recorded.Timestamp)
	assert.Equal(t, "rec-99", recorded.Entry.ID)
	assert.Equal(t, int64(42), recorded.Entry.Sequence)
}

func TestNormalizeRecord_InvalidPayload(t *testing.T) {
	_, err := NormalizeRecord("proc-1", models.EventRecord{
		ID:      "rec-1",
		Payload: json.RawMessage(`{broken`),
	})
	assert.ErrorIs(t, err, ErrUnparseablePayload)
}
