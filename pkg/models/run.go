package models

import "time"

// MessageRole distinguishes chat message authors.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage is one entry of the server-authoritative conversation history.
// The client appends an optimistic user entry on send and reconciles it once
// the canonical history is fetched.
type ChatMessage struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at,omitempty"`
}

// AgentRunStatus is the lifecycle state of one agent run.
type AgentRunStatus string

const (
	RunIdle      AgentRunStatus = "idle"
	RunRunning   AgentRunStatus = "running"
	RunCompleted AgentRunStatus = "completed"
	RunFailed    AgentRunStatus = "failed"
)

// IsClosed reports whether the run can no longer receive updates.
func (s AgentRunStatus) IsClosed() bool {
	return s == RunCompleted || s == RunFailed
}

// AgentStreamEvent is one streamed event within an agent run. EventID is the
// dedup key; Sequence orders events within the run.
type AgentStreamEvent struct {
	EventID   string         `json:"event_id"`
	Sequence  int64          `json:"sequence"`
	EventType string         `json:"event_type"`
	Message   string         `json:"message"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// AgentRunState is the full state of one agent run.
type AgentRunState struct {
	RunID       string             `json:"run_id"`
	Status      AgentRunStatus     `json:"status"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	Error       string             `json:"error,omitempty"`
	Events      []AgentStreamEvent `json:"events"`
}

// AgentRunTimelineEntry anchors one run to the chat history. ID is a locally
// generated correlation id and the primary key; RunID is assigned by the
// server after the entry already exists.
type AgentRunTimelineEntry struct {
	ID                  string        `json:"id"`
	TriggerMessageIndex int           `json:"trigger_message_index"`
	UserMessage         string        `json:"user_message"`
	RunID               string        `json:"run_id,omitempty"`
	RunState            AgentRunState `json:"run_state"`
	CreatedAt           time.Time     `json:"created_at"`
}

// ChatSession is one agent chat session as reported by the backend.
type ChatSession struct {
	ID        string         `json:"id"`
	Title     string         `json:"title,omitempty"`
	Messages  []ChatMessage  `json:"messages"`
	ActiveRun *AgentRunState `json:"active_run,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
