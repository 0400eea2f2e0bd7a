// Package events defines the normalized event types produced by the payload
// normalizer and folded into generation state.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

type EventType string

// Event bus topics.
const Topic = "genflow.generation.events"
const RunTopic = "genflow.agent.runs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	StepChangedEvent        EventType = "generation.step.changed"
	InputRequiredEvent      EventType = "generation.input.required"
	ContentChunkEvent       EventType = "generation.content.chunk"
	ArticleFinalizedEvent   EventType = "generation.article.finalized"
	GenerationFailedEvent   EventType = "generation.failed"
	GenerationFinishedEvent EventType = "generation.finished"
	ResearchProgressedEvent EventType = "generation.research.progressed"
	ArticleIDAssignedEvent  EventType = "generation.article.id"
	ActivityRecordedEvent   EventType = "generation.activity.recorded"
	ToolCallCompletedEvent  EventType = "generation.activity.tool.completed"
	RunStateChangedEvent    EventType = "agent.run.state.changed"
)

// Event is any normalized event.
type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	ProcessID string    `json:"process_id,omitempty"`

	// Sequence is the server-issued ordering key, zero when the transport
	// did not carry one (in-order socket delivery).
	Sequence int64 `json:"sequence,omitempty"`
}

func NewBaseEvent(eventType EventType, processID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		ProcessID: processID,
	}
}

// StepChanged moves the pipeline pointer. Step may also name a cosmetic
// sub-phase (research_synthesizing) or the terminal sentinel (finished),
// which the reducer treats specially.
type StepChanged struct {
	BaseEvent

	Step    models.StepID `json:"step"`
	Message string        `json:"message,omitempty"`
}

func (e StepChanged) GetType() EventType { return StepChangedEvent }

// InputRequired pauses the pipeline at a user checkpoint and carries the
// artifact the user must review. Exactly one artifact field is set per
// input type.
type InputRequired struct {
	BaseEvent

	InputType    models.InputType     `json:"input_type"`
	Personas     []models.Persona     `json:"personas,omitempty"`
	Themes       []models.Theme       `json:"themes,omitempty"`
	ResearchPlan *models.ResearchPlan `json:"research_plan,omitempty"`
	Outline      *models.Outline      `json:"outline,omitempty"`
	AgentMessage string               `json:"agent_message,omitempty"`
}

func (e InputRequired) GetType() EventType { return InputRequiredEvent }

// ContentChunk appends streamed article HTML to the accumulating buffer.
type ContentChunk struct {
	BaseEvent

	Chunk        string `json:"chunk"`
	SectionIndex *int   `json:"section_index,omitempty"`
	Heading      string `json:"heading,omitempty"`
}

func (e ContentChunk) GetType() EventType { return ContentChunkEvent }

// ArticleFinalized carries the completed article. It is terminal.
type ArticleFinalized struct {
	BaseEvent

	Title   string `json:"title"`
	Content string `json:"content"`
}

func (e ArticleFinalized) GetType() EventType { return ArticleFinalizedEvent }

// GenerationFailed reports a server-side business error. Step names the
// failing pipeline step when the backend identified one.
type GenerationFailed struct {
	BaseEvent

	Message string        `json:"message"`
	Step    models.StepID `json:"step,omitempty"`
}

func (e GenerationFailed) GetType() EventType { return GenerationFailedEvent }

// GenerationFinished is the terminal sentinel: "maybe completed". The reducer
// synthesizes a completed state only when content already exists and no error
// accompanies it.
type GenerationFinished struct {
	BaseEvent

	Error string `json:"error,omitempty"`
}

func (e GenerationFinished) GetType() EventType { return GenerationFinishedEvent }

// ResearchProgressed updates the research query counter.
type ResearchProgressed struct {
	BaseEvent

	QueryIndex   int    `json:"query_index"`
	TotalQueries int    `json:"total_queries"`
	Query        string `json:"query,omitempty"`
}

func (e ResearchProgressed) GetType() EventType { return ResearchProgressedEvent }

// ArticleIDAssigned captures the persistent article id, last-write-wins.
type ArticleIDAssigned struct {
	BaseEvent

	ArticleID string `json:"article_id"`
}

func (e ArticleIDAssigned) GetType() EventType { return ArticleIDAssignedEvent }

// ActivityRecorded adds one entry to the activity feed.
type ActivityRecorded struct {
	BaseEvent

	Entry models.ActivityEntry `json:"entry"`
}

func (e ActivityRecorded) GetType() EventType { return ActivityRecordedEvent }

// ToolCallCompleted closes the most recent running tool entry in the feed.
type ToolCallCompleted struct {
	BaseEvent

	Message string `json:"message,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

func (e ToolCallCompleted) GetType() EventType { return ToolCallCompletedEvent }

// RunStateChanged carries an agent run update for the timeline tracker.
type RunStateChanged struct {
	BaseEvent

	RunID     string                    `json:"run_id"`
	Status    models.AgentRunStatus     `json:"status"`
	Error     string                    `json:"error,omitempty"`
	RunEvents []models.AgentStreamEvent `json:"run_events,omitempty"`
}

func (e RunStateChanged) GetType() EventType { return RunStateChangedEvent }
