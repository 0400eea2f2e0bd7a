package models

// StepID identifies one phase of the fixed generation pipeline.
type StepID string

const (
	StepKeywordAnalyzing  StepID = "keyword_analyzing"
	StepPersonaGenerating StepID = "persona_generating"
	StepThemeGenerating   StepID = "theme_generating"
	StepResearchPlanning  StepID = "research_planning"
	StepResearching       StepID = "researching"
	StepOutlineGenerating StepID = "outline_generating"
	StepWritingSections   StepID = "writing_sections"
	StepEditing           StepID = "editing"
)

// StepCatalogue is the fixed ordered pipeline. Step statuses are recomputed
// by index comparison against the current step.
var StepCatalogue = []StepID{
	StepKeywordAnalyzing,
	StepPersonaGenerating,
	StepThemeGenerating,
	StepResearchPlanning,
	StepResearching,
	StepOutlineGenerating,
	StepWritingSections,
	StepEditing,
}

// StepIndex returns the position of id in the catalogue, or -1 when the id
// is not a pipeline step (cosmetic sub-phases, sentinels).
func StepIndex(id StepID) int {
	for i, s := range StepCatalogue {
		if s == id {
			return i
		}
	}

	return -1
}

// StepStatus represents the state of one pipeline step.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusError      StepStatus = "error"

	// StepStatusSkipped marks a step the backend bypassed, e.g. editing when
	// the final article was synthesized from already-written content.
	StepStatusSkipped StepStatus = "skipped"
)

// GenerationStep is the client-side view of one pipeline step.
type GenerationStep struct {
	ID      StepID     `json:"id"`
	Status  StepStatus `json:"status"`
	Message string     `json:"message,omitempty"`
}

// Cosmetic and sentinel step markers that never move the step pointer.
const (
	// SubStepResearchSynthesizing is a cosmetic sub-phase of researching: it
	// only updates the researching step's message.
	SubStepResearchSynthesizing StepID = "research_synthesizing"

	// StepFinished is the terminal sentinel emitted by the backend.
	StepFinished StepID = "finished"
)

// Checkpoint markers used as CurrentStepName once a step has produced input
// to review. Recovery treats a process whose step name matches one of these
// as awaiting input.
const (
	StepMarkerPersonaGenerated StepID = "persona_generated"
	StepMarkerThemeProposed    StepID = "theme_proposed"
	StepMarkerResearchPlanned  StepID = "research_plan_generated"
	StepMarkerOutlineGenerated StepID = "outline_generated"
)
