package models

import (
	"encoding/json"
	"time"
)

// StepHistoryEntry is one row of the server-provided step history list.
type StepHistoryEntry struct {
	StepName   StepID     `json:"step_name"`
	Status     StepStatus `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ProcessSnapshot is the server-held state of a generation process used by
// recovery. Artifacts come from the snapshot rather than from replaying the
// historical event log.
type ProcessSnapshot struct {
	Process          GenerationProcess  `json:"process"`
	StepHistory      []StepHistoryEntry `json:"step_history,omitempty"`
	IsWaitingInput   *bool              `json:"is_waiting_for_input,omitempty"`
	InputType        InputType          `json:"input_type,omitempty"`
	Personas         []Persona          `json:"personas,omitempty"`
	Themes           []Theme            `json:"themes,omitempty"`
	ResearchPlan     *ResearchPlan      `json:"research_plan,omitempty"`
	Outline          *Outline           `json:"outline,omitempty"`
	GeneratedContent string             `json:"generated_content,omitempty"`
	FinalArticle     *FinalArticle      `json:"final_article,omitempty"`
	ArticleID        string             `json:"article_id,omitempty"`
}

// EventRecord is one row of the authoritative event log. Payload keeps the
// raw shape for the normalizer; ID and Sequence drive dedup and ordering.
type EventRecord struct {
	ID        string          `json:"id"`
	Sequence  int64           `json:"sequence"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}
