// Package chat manages one agent chat session: the optimistic message list,
// the run timeline and the bounded wait for assistant responses.
package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shintairiku/marketing-automation-sub003/pkg/client"
	"github.com/shintairiku/marketing-automation-sub003/pkg/events"
	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
	"github.com/shintairiku/marketing-automation-sub003/pkg/timeline"
)

const (
	defaultRunPollInterval = 2 * time.Second
	defaultResponseTimeout = 120 * time.Second
)

// Session is the client-side state of one chat session. The message list is
// server-authoritative: a user entry is appended optimistically on send and
// replaced when the canonical history is fetched.
type Session struct {
	api     *client.API
	tracker *timeline.Tracker
	logger  *slog.Logger

	pollInterval    time.Duration
	responseTimeout time.Duration

	mu        sync.Mutex
	sessionID string
	messages  []models.ChatMessage
}

func NewSession(api *client.API, logger *slog.Logger) *Session {
	return &Session{
		api:             api,
		tracker:         timeline.NewTracker(),
		logger:          logger.With("module", "chat.session"),
		pollInterval:    defaultRunPollInterval,
		responseTimeout: defaultResponseTimeout,
	}
}

// Activate loads a session from the backend (page reload, session switch):
// canonical history replaces the message list and the timeline is seeded
// from the authoritative run state.
func (s *Session) Activate(ctx context.Context, sessionID string) error {
	session, err := s.api.ActivateSession(ctx, sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sessionID = session.ID
	s.messages = session.Messages
	s.mu.Unlock()

	s.tracker.Seed(*session)

	return nil
}

// SendMessage appends the optimistic user entry, creates the timeline entry
// and posts the message. A failure of the send itself rolls everything back:
// the message list equals its pre-call snapshot, no orphaned timeline entry
// remains and the error is surfaced. On success the acknowledged run state
// (carrying the run id) is applied and the local entry id returned.
func (s *Session) SendMessage(ctx context.Context, content string) (string, error) {
	s.mu.Lock()
	sessionID := s.sessionID

	s.messages = append(s.messages, models.ChatMessage{
		Role:      models.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	triggerIndex := len(s.messages) - 1
	s.mu.Unlock()

	localID := s.tracker.BeginRun(content, triggerIndex)

	run, err := s.api.PostChatMessage(ctx, sessionID, content)
	if err != nil {
		s.rollback(localID, triggerIndex)

		return "", err
	}

	s.applyRun(*run)

	return localID, nil
}

// AwaitCompletion polls the run state until the run closes. No progress
// within the bounded wait is a protocol timeout: fatal for this send only,
// the optimistic message is rolled back and ErrResponseTimeout returned.
// On completion the canonical history replaces the optimistic list.
func (s *Session) AwaitCompletion(ctx context.Context, localID string) error {
	entry, ok := s.entryByID(localID)
	if !ok {
		return client.ErrNotFound
	}

	deadline := time.Now().Add(s.responseTimeout)
	ticker := time.NewTicker(s.pollInterval)

	defer ticker.Stop()

	lastEventCount := len(entry.RunState.Events)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		entry, ok = s.entryByID(localID)
		if !ok || entry.RunID == "" {
			continue
		}

		run, err := s.api.GetRunState(ctx, s.currentSessionID(), entry.RunID)
		if err != nil {
			// Poll errors are local to the tick.
			s.logger.DebugContext(ctx, "Run state poll failed", "error", err)
		} else {
			s.applyRun(*run)
		}

		entry, ok = s.entryByID(localID)
		if !ok {
			return client.ErrNotFound
		}

		if entry.RunState.Status.IsClosed() {
			return s.refreshHistory(ctx)
		}

		// New content resets the bounded wait.
		if len(entry.RunState.Events) > lastEventCount {
			lastEventCount = len(entry.RunState.Events)
			deadline = time.Now().Add(s.responseTimeout)
		}

		if time.Now().After(deadline) {
			s.rollback(localID, entry.TriggerMessageIndex)

			return client.ErrResponseTimeout
		}
	}
}

// ApplyRunUpdate routes an externally delivered run update (realtime push)
// through the timeline tracker.
func (s *Session) ApplyRunUpdate(ev events.RunStateChanged) (string, bool) {
	return s.tracker.Apply(ev)
}

// Messages returns a copy of the message list.
func (s *Session) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ChatMessage, len(s.messages))
	copy(out, s.messages)

	return out
}

// Timeline returns the run timeline entries.
func (s *Session) Timeline() []models.AgentRunTimelineEntry {
	return s.tracker.Entries()
}

// Reset clears the active-run pointer (explicit reset signal).
func (s *Session) Reset() {
	s.tracker.Deactivate()
}

// Close closes the session on the backend.
func (s *Session) Close(ctx context.Context) error {
	return s.api.CloseSession(ctx, s.currentSessionID())
}

func (s *Session) applyRun(run models.AgentRunState) {
	_, routed := s.tracker.Apply(events.RunStateChanged{
		BaseEvent: events.NewBaseEvent(events.RunStateChangedEvent, ""),
		RunID:     run.RunID,
		Status:    run.Status,
		Error:     run.Error,
		RunEvents: run.Events,
	})
	if !routed {
		s.logger.Warn("Run update could not be routed", "run_id", run.RunID)
	}
}

func (s *Session) rollback(localID string, messageIndex int) {
	s.mu.Lock()
	if messageIndex >= 0 && messageIndex < len(s.messages) && s.messages[messageIndex].Role == models.RoleUser {
		s.messages = append(s.messages[:messageIndex], s.messages[messageIndex+1:]...)
	}
	s.mu.Unlock()

	s.tracker.Rollback(localID)
}

func (s *Session) refreshHistory(ctx context.Context) error {
	history, err := s.api.GetHistory(ctx, s.currentSessionID())
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.messages = history
	s.mu.Unlock()

	return nil
}

func (s *Session) entryByID(localID string) (models.AgentRunTimelineEntry, bool) {
	for _, entry := range s.tracker.Entries() {
		if entry.ID == localID {
			return entry, true
		}
	}

	return models.AgentRunTimelineEntry{}, false
}

func (s *Session) currentSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessionID
}
