// Package generation holds the client-side state of one article generation
// process and the pure reducer that folds normalized events into it.
package generation

import (
	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

// UntitledArticle is the placeholder title used when the backend finalizes
// an article without one.
const UntitledArticle = "Untitled Article"

// State is the full derived state of one generation process. Reduce never
// mutates a State in place: every transition returns a value whose changed
// slices are freshly allocated, so a view layer can detect changes by
// identity.
type State struct {
	ProcessID          string                  `json:"process_id"`
	Status             models.ProcessStatus    `json:"status"`
	CurrentStep        models.StepID           `json:"current_step"`
	Steps              []models.GenerationStep `json:"steps"`
	ProgressPercentage int                     `json:"progress_percentage"`

	IsWaitingForInput bool             `json:"is_waiting_for_input"`
	InputType         models.InputType `json:"input_type,omitempty"`
	AgentMessage      string           `json:"agent_message,omitempty"`

	Personas     []models.Persona     `json:"personas,omitempty"`
	Themes       []models.Theme       `json:"themes,omitempty"`
	ResearchPlan *models.ResearchPlan `json:"research_plan,omitempty"`
	Outline      *models.Outline      `json:"outline,omitempty"`

	GeneratedContent string                  `json:"generated_content,omitempty"`
	SectionsProgress models.SectionsProgress `json:"sections_progress"`
	ResearchProgress models.ResearchProgress `json:"research_progress"`

	FinalArticle *models.FinalArticle `json:"final_article,omitempty"`
	ArticleID    string               `json:"article_id,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`

	Activities []models.ActivityEntry `json:"activities,omitempty"`
}

// NewState returns the documented initial state: all steps pending, no
// artifacts, no pending input. Starting a new generation resets to this
// state before the first event arrives, so nothing leaks from a previous
// run shown in the same session.
func NewState(processID string) State {
	steps := make([]models.GenerationStep, len(models.StepCatalogue))
	for i, id := range models.StepCatalogue {
		steps[i] = models.GenerationStep{ID: id, Status: models.StepStatusPending}
	}

	return State{
		ProcessID: processID,
		Status:    models.ProcessStatusPending,
		Steps:     steps,
	}
}

// StepByID returns the step with the given id, or nil.
func (s State) StepByID(id models.StepID) *models.GenerationStep {
	for i := range s.Steps {
		if s.Steps[i].ID == id {
			return &s.Steps[i]
		}
	}

	return nil
}

// cloneSteps returns a fresh copy of the step slice for immutable updates.
func cloneSteps(steps []models.GenerationStep) []models.GenerationStep {
	out := make([]models.GenerationStep, len(steps))
	copy(out, steps)

	return out
}

// stepsAt recomputes the step slice for current step index k: earlier steps
// completed, step k in progress, later steps pending.
func stepsAt(k int, message string) []models.GenerationStep {
	steps := make([]models.GenerationStep, len(models.StepCatalogue))
	for i, id := range models.StepCatalogue {
		steps[i] = models.GenerationStep{ID: id, Status: models.StepStatusPending}

		switch {
		case i < k:
			steps[i].Status = models.StepStatusCompleted
		case i == k:
			steps[i].Status = models.StepStatusInProgress
			steps[i].Message = message
		}
	}

	return steps
}

// stepsAllCompleted marks every step completed; lastStatus overrides the
// editing step when the backend skipped it.
func stepsAllCompleted(lastStatus models.StepStatus) []models.GenerationStep {
	steps := make([]models.GenerationStep, len(models.StepCatalogue))
	for i, id := range models.StepCatalogue {
		steps[i] = models.GenerationStep{ID: id, Status: models.StepStatusCompleted}
	}

	if lastStatus != "" {
		steps[len(steps)-1].Status = lastStatus
	}

	return steps
}

// progressFor derives the coarse progress percentage from the step index.
func progressFor(k int) int {
	if k < 0 {
		return 0
	}

	return k * 100 / len(models.StepCatalogue)
}
