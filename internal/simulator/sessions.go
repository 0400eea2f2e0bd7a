package simulator

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

// SessionStore keeps simulated chat sessions in memory. Each posted message
// starts a short scripted run that streams a couple of events and closes.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.ChatSession
	runs     map[string]*models.AgentRunState
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.ChatSession),
		runs:     make(map[string]*models.AgentRunState),
	}
}

func (s *Server) createSession(c fiber.Ctx) error {
	var body struct {
		Title string `json:"title"`
	}

	_ = c.Bind().JSON(&body)

	session := &models.ChatSession{
		ID:        "session-" + uuid.New().String()[:8],
		Title:     body.Title,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	s.sessions.mu.Lock()
	s.sessions.sessions[session.ID] = session
	s.sessions.mu.Unlock()

	return c.Status(fiber.StatusCreated).JSON(session)
}

func (s *Server) listSessions(c fiber.Ctx) error {
	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()

	out := make([]models.ChatSession, 0, len(s.sessions.sessions))
	for _, session := range s.sessions.sessions {
		out = append(out, *session)
	}

	return c.JSON(out)
}

func (s *Server) activateSession(c fiber.Ctx) error {
	session, ok := s.lookupSession(c.Params("id"))
	if !ok {
		return notFound(c, "session not found")
	}

	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()

	return c.JSON(session)
}

func (s *Server) closeSession(c fiber.Ctx) error {
	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()

	if _, ok := s.sessions.sessions[c.Params("id")]; !ok {
		return notFound(c, "session not found")
	}

	delete(s.sessions.sessions, c.Params("id"))

	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) getHistory(c fiber.Ctx) error {
	session, ok := s.lookupSession(c.Params("id"))
	if !ok {
		return notFound(c, "session not found")
	}

	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()

	return c.JSON(session.Messages)
}

// postMessage appends the user message, starts a scripted run and returns
// the acknowledged run state carrying the server-assigned run id.
func (s *Server) postMessage(c fiber.Ctx) error {
	var body struct {
		Content string `json:"content" validate:"required"`
	}

	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := s.validate.Struct(body); err != nil {
		return badRequest(c, err.Error())
	}

	session, ok := s.lookupSession(c.Params("id"))
	if !ok {
		return notFound(c, "session not found")
	}

	now := time.Now().UTC()
	run := &models.AgentRunState{
		RunID:     "run-" + uuid.New().String()[:8],
		Status:    models.RunRunning,
		StartedAt: &now,
		Events: []models.AgentStreamEvent{{
			EventID:   "revt-" + uuid.New().String()[:8],
			Sequence:  1,
			EventType: "run_started",
			Message:   "Processing message",
			CreatedAt: now,
		}},
	}

	s.sessions.mu.Lock()
	session.Messages = append(session.Messages, models.ChatMessage{
		Role:      models.RoleUser,
		Content:   body.Content,
		CreatedAt: now,
	})
	session.ActiveRun = run
	s.sessions.runs[run.RunID] = run

	// completeRun mutates the run under the lock; marshal a copy so the
	// response body never races with it.
	accepted := *run
	accepted.Events = append([]models.AgentStreamEvent(nil), run.Events...)
	s.sessions.mu.Unlock()

	go s.completeRun(session, run, body.Content)

	return c.Status(fiber.StatusAccepted).JSON(accepted)
}

func (s *Server) getRunState(c fiber.Ctx) error {
	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()

	run, ok := s.sessions.runs[c.Params("runId")]
	if !ok {
		return notFound(c, "run not found")
	}

	return c.JSON(run)
}

// completeRun finishes the scripted run after a short delay: one assistant
// reply appended to history, the run closed.
func (s *Server) completeRun(session *models.ChatSession, run *models.AgentRunState, userContent string) {
	time.Sleep(s.stepLag)

	now := time.Now().UTC()

	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()

	run.Events = append(run.Events, models.AgentStreamEvent{
		EventID:   "revt-" + uuid.New().String()[:8],
		Sequence:  2,
		EventType: "assistant_message",
		Message:   "Reply ready",
		CreatedAt: now,
	})
	run.Status = models.RunCompleted
	run.CompletedAt = &now

	session.Messages = append(session.Messages, models.ChatMessage{
		Role:      models.RoleAssistant,
		Content:   fmt.Sprintf("Echo: %s", userContent),
		CreatedAt: now,
	})
	session.ActiveRun = nil
	session.UpdatedAt = now
}

func (s *Server) lookupSession(id string) (*models.ChatSession, bool) {
	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()

	session, ok := s.sessions.sessions[id]

	return session, ok
}
