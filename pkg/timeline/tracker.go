// Package timeline attributes streamed agent run updates to the timeline
// entry they belong to. Entries are created with a local correlation id
// before the server has assigned a run id; a reverse index routes updates
// that arrive keyed only by run id.
package timeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shintairiku/marketing-automation-sub003/pkg/events"
	"github.com/shintairiku/marketing-automation-sub003/pkg/generation"
	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

// Tracker maintains the run timeline for one chat session. Only one entry
// may be active (unclosed) at a time.
type Tracker struct {
	mu sync.Mutex

	entries  []models.AgentRunTimelineEntry
	byRunID  map[string]string // runId -> local id
	activeID string
}

func NewTracker() *Tracker {
	return &Tracker{
		byRunID: make(map[string]string),
	}
}

// BeginRun creates a timeline entry for a just-sent user message and marks
// it active. The server has not assigned a run id yet; the returned local id
// is the correlation key used for rollback.
func (t *Tracker) BeginRun(userMessage string, triggerMessageIndex int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := models.AgentRunTimelineEntry{
		ID:                  uuid.New().String(),
		TriggerMessageIndex: triggerMessageIndex,
		UserMessage:         userMessage,
		RunState:            models.AgentRunState{Status: models.RunIdle},
		CreatedAt:           time.Now().UTC(),
	}

	t.entries = append(t.entries, entry)
	t.activeID = entry.ID

	return entry.ID
}

// Apply routes a run-state update to its entry: by the runId reverse index
// when the run is already known, else to the currently active entry. The
// reverse index is updated as soon as a run id becomes known. Returns the
// local id of the updated entry, or false when no entry could be resolved.
func (t *Tracker) Apply(update events.RunStateChanged) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	localID, known := t.byRunID[update.RunID]
	if !known {
		if t.activeID == "" {
			return "", false
		}

		localID = t.activeID
	}

	entry := t.find(localID)
	if entry == nil {
		return "", false
	}

	if update.RunID != "" {
		entry.RunID = update.RunID
		t.byRunID[update.RunID] = localID
	}

	entry.RunState.RunID = update.RunID
	if update.Status != "" {
		entry.RunState.Status = update.Status
	}

	if update.Error != "" {
		entry.RunState.Error = update.Error
	}

	now := update.Timestamp
	if entry.RunState.StartedAt == nil && update.Status == models.RunRunning {
		entry.RunState.StartedAt = &now
	}

	entry.RunState.Events = generation.MergeStreamEvents(entry.RunState.Events, update.RunEvents)

	if entry.RunState.Status.IsClosed() {
		if entry.RunState.CompletedAt == nil {
			entry.RunState.CompletedAt = &now
		}

		if t.activeID == localID {
			t.activeID = ""
		}
	}

	return localID, true
}

// Rollback removes a just-created entry after the send itself failed before
// any server acknowledgment, and clears the active pointer.
func (t *Tracker) Rollback(localID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if t.entries[i].ID == localID {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)

			break
		}
	}

	if runID := t.runIDFor(localID); runID != "" {
		delete(t.byRunID, runID)
	}

	if t.activeID == localID {
		t.activeID = ""
	}
}

// Deactivate clears the active pointer without touching entries (explicit
// reset signal from the caller).
func (t *Tracker) Deactivate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.activeID = ""
}

// Seed rebuilds the timeline on session (re)activation: at most one entry
// from the authoritative run state when it is non-idle, anchored to the last
// user message in history. A still-running run stays active so future
// updates keep routing.
func (t *Tracker) Seed(session models.ChatSession) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = nil
	t.byRunID = make(map[string]string)
	t.activeID = ""

	run := session.ActiveRun
	if run == nil || run.Status == models.RunIdle || run.Status == "" {
		return
	}

	idx, message := lastUserMessage(session.Messages)
	if idx < 0 {
		return
	}

	entry := models.AgentRunTimelineEntry{
		ID:                  uuid.New().String(),
		TriggerMessageIndex: idx,
		UserMessage:         message,
		RunID:               run.RunID,
		RunState:            *run,
		CreatedAt:           time.Now().UTC(),
	}

	t.entries = append(t.entries, entry)
	if run.RunID != "" {
		t.byRunID[run.RunID] = entry.ID
	}

	if run.Status == models.RunRunning {
		t.activeID = entry.ID
	}
}

// Entries returns a copy of the timeline for the view layer.
func (t *Tracker) Entries() []models.AgentRunTimelineEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.AgentRunTimelineEntry, len(t.entries))
	copy(out, t.entries)

	return out
}

// ActiveID returns the local id of the active entry, empty when none.
func (t *Tracker) ActiveID() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.activeID
}

// LocalIDFor resolves a server run id to its local entry id.
func (t *Tracker) LocalIDFor(runID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	localID, ok := t.byRunID[runID]

	return localID, ok
}

func (t *Tracker) find(localID string) *models.AgentRunTimelineEntry {
	for i := range t.entries {
		if t.entries[i].ID == localID {
			return &t.entries[i]
		}
	}

	return nil
}

func (t *Tracker) runIDFor(localID string) string {
	for runID, id := range t.byRunID {
		if id == localID {
			return runID
		}
	}

	return ""
}

func lastUserMessage(messages []models.ChatMessage) (int, string) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return i, messages[i].Content
		}
	}

	return -1, ""
}
