package simulator

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

// respondToCheckpoints feeds a scripted answer to every checkpoint request so
// the pipeline never blocks.
func respondToCheckpoints(t *testing.T, proc *Process, done <-chan struct{}) {
	t.Helper()

	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(time.Millisecond):
			}

			snap := proc.Snapshot()
			if snap.Process.Status == models.ProcessStatusUserInputRequired {
				select {
				case proc.Responses <- ClientInput{ResponseType: "proceed"}:
				default:
				}
			}
		}
	}()
}

func TestPipeline_RunsToCompletion(t *testing.T) {
	store := NewStore(nil)
	proc := store.Create(models.StartGenerationRequest{UserPrompt: "write about onboarding"})

	var emitted []map[string]any

	emit := func(payload map[string]any) {
		emitted = append(emitted, payload)
	}

	done := make(chan struct{})
	respondToCheckpoints(t, proc, done)

	pipeline := NewPipeline(store, proc, emit, slog.Default(), time.Millisecond)
	pipeline.Run(t.Context())
	close(done)

	snap := proc.Snapshot()
	assert.Equal(t, models.ProcessStatusCompleted, snap.Process.Status)
	assert.Equal(t, string(models.StepFinished), snap.Process.CurrentStepName)
	assert.Equal(t, 100, snap.Process.ProgressPercentage)

	// Every emitted payload is also in the event log, in order.
	records := proc.Events(0)
	require.Len(t, records, len(emitted))

	for i, rec := range records {
		assert.Equal(t, int64(i+1), rec.Sequence)
	}

	// The script walks the whole catalogue and ends with the sentinel.
	var steps []string

	var checkpoints []string

	var sawFinal bool

	for _, rec := range records {
		var payload map[string]any

		require.NoError(t, json.Unmarshal(rec.Payload, &payload))

		if step, ok := payload["step"].(string); ok {
			steps = append(steps, step)
		}

		if rt, ok := payload["request_type"].(string); ok {
			checkpoints = append(checkpoints, rt)
		}

		if _, ok := payload["final_html_content"]; ok {
			sawFinal = true
		}
	}

	for _, id := range models.StepCatalogue {
		assert.Contains(t, steps, string(id))
	}

	assert.Equal(t, string(models.StepFinished), steps[len(steps)-1])
	assert.Equal(t, []string{"select_persona", "select_theme", "approve_plan", "approve_outline"}, checkpoints)
	assert.True(t, sawFinal)
}

func TestPipeline_RegenerateRepeatsCheckpoint(t *testing.T) {
	store := NewStore(nil)
	proc := store.Create(models.StartGenerationRequest{UserPrompt: "prompt"})

	pipeline := NewPipeline(store, proc, nil, slog.Default(), time.Millisecond)

	finished := make(chan struct{})

	go func() {
		defer close(finished)
		pipeline.checkpoint(t.Context(), "select_persona", map[string]any{"personas": samplePersonas()}, models.StepMarkerPersonaGenerated)
	}()

	proc.Responses <- ClientInput{ResponseType: "regenerate"}
	proc.Responses <- ClientInput{ResponseType: "proceed"}

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("checkpoint did not resume")
	}

	// The request was re-emitted once.
	records := proc.Events(0)

	var requests int

	for _, rec := range records {
		var payload map[string]any

		require.NoError(t, json.Unmarshal(rec.Payload, &payload))

		if payload["request_type"] == "select_persona" {
			requests++
		}
	}

	assert.Equal(t, 2, requests)
	assert.Equal(t, models.ProcessStatusInProgress, proc.Snapshot().Process.Status)
}

func TestPipeline_ContextCancellationStopsScript(t *testing.T) {
	store := NewStore(nil)
	proc := store.Create(models.StartGenerationRequest{UserPrompt: "prompt"})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	pipeline := NewPipeline(store, proc, nil, slog.Default(), time.Millisecond)
	pipeline.Run(ctx)

	assert.NotEqual(t, models.ProcessStatusCompleted, proc.Snapshot().Process.Status)
}
