// Package models defines the core domain models for the article generation client.
package models

import "time"

// ProcessStatus represents the lifecycle state of a generation process.
type ProcessStatus string

const (
	ProcessStatusPending           ProcessStatus = "pending"
	ProcessStatusInProgress        ProcessStatus = "in_progress"
	ProcessStatusCompleted         ProcessStatus = "completed"
	ProcessStatusError             ProcessStatus = "error"
	ProcessStatusUserInputRequired ProcessStatus = "user_input_required"
	ProcessStatusCancelled         ProcessStatus = "cancelled"
)

// IsActive reports whether the backend may still emit events for a process
// in this status. Polling runs only while a process is active.
func (s ProcessStatus) IsActive() bool {
	return s == ProcessStatusPending || s == ProcessStatusInProgress
}

// IsTerminal reports whether the process reached a final state.
func (s ProcessStatus) IsTerminal() bool {
	return s == ProcessStatusCompleted || s == ProcessStatusError || s == ProcessStatusCancelled
}

// BlogContext is the mutable bag of interaction data attached to a process.
type BlogContext struct {
	AIQuestions  []AIQuestion   `json:"ai_questions,omitempty"`
	UserAnswers  map[string]any `json:"user_answers,omitempty"`
	AgentMessage string         `json:"agent_message,omitempty"`
}

// AIQuestion describes one pending-input request raised by the backend.
type AIQuestion struct {
	Key      string `json:"key"`
	Question string `json:"question"`
	Type     string `json:"type,omitempty"`
}

// GenerationProcess mirrors one in-flight or completed generation job. It is
// a durable server-side record; the client mutates its local copy exclusively
// from inbound events (realtime push or poll) and never deletes it.
type GenerationProcess struct {
	ID                 string        `json:"id"`
	Status             ProcessStatus `json:"status"`
	CurrentStepName    string        `json:"current_step_name"`
	ProgressPercentage int           `json:"progress_percentage"`
	BlogContext        BlogContext   `json:"blog_context"`

	// Input parameters, immutable after creation.
	UserPrompt     string   `json:"user_prompt"`
	ReferenceURL   string   `json:"reference_url,omitempty"`
	UploadedImages []string `json:"uploaded_images,omitempty"`

	// Populated only on successful completion.
	DraftPostID     string `json:"draft_post_id,omitempty"`
	DraftPreviewURL string `json:"draft_preview_url,omitempty"`
	DraftEditURL    string `json:"draft_edit_url,omitempty"`

	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StartGenerationRequest carries the user-supplied parameters that create a
// new generation process.
type StartGenerationRequest struct {
	UserPrompt     string   `json:"user_prompt"      validate:"required,min=1"`
	ReferenceURL   string   `json:"reference_url"    validate:"omitempty,url"`
	UploadedImages []string `json:"uploaded_images"  validate:"dive,required"`
	TargetLength   int      `json:"target_length"    validate:"omitempty,gt=0"`
}
