package generation

import (
	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

// Recover rebuilds state from the server-held snapshot instead of replaying
// every historical event. Step statuses come from the step history when the
// backend provides one, else from index comparison against the current step.
// Pending input comes from the explicit flag when present, else is inferred
// from the current step name matching a checkpoint marker.
func Recover(snapshot models.ProcessSnapshot) State {
	proc := snapshot.Process

	state := NewState(proc.ID)
	state.Status = proc.Status
	state.CurrentStep = models.StepID(proc.CurrentStepName)
	state.ProgressPercentage = proc.ProgressPercentage
	state.ErrorMessage = proc.ErrorMessage
	state.AgentMessage = proc.BlogContext.AgentMessage

	state.Personas = snapshot.Personas
	state.Themes = snapshot.Themes
	state.ResearchPlan = snapshot.ResearchPlan
	state.Outline = snapshot.Outline
	state.GeneratedContent = snapshot.GeneratedContent
	state.FinalArticle = snapshot.FinalArticle
	state.ArticleID = snapshot.ArticleID

	state.Steps = recoverSteps(snapshot)

	state.IsWaitingForInput, state.InputType = recoverPendingInput(snapshot)
	if state.IsWaitingForInput {
		state.Status = models.ProcessStatusUserInputRequired
	}

	if proc.Status == models.ProcessStatusCompleted {
		state.Steps = stepsAllCompleted("")
		state.ProgressPercentage = 100
	}

	return state
}

func recoverSteps(snapshot models.ProcessSnapshot) []models.GenerationStep {
	if len(snapshot.StepHistory) > 0 {
		steps := NewState("").Steps
		for _, entry := range snapshot.StepHistory {
			if k := models.StepIndex(entry.StepName); k >= 0 {
				steps[k].Status = entry.Status
			}
		}

		return steps
	}

	current := models.StepID(snapshot.Process.CurrentStepName)
	if k := models.StepIndex(current); k >= 0 {
		return stepsAt(k, "")
	}

	// Checkpoint markers sit between steps: the producing step completed,
	// the next one not yet started.
	if step, _, ok := markerStep(current); ok {
		k := models.StepIndex(step)

		steps := stepsAt(k, "")
		steps[k].Status = models.StepStatusCompleted

		return steps
	}

	return NewState("").Steps
}

// markerStep resolves a checkpoint marker back to the pipeline step that
// produced it.
func markerStep(marker models.StepID) (models.StepID, models.InputType, bool) {
	for _, t := range []models.InputType{
		models.InputSelectPersona,
		models.InputSelectTheme,
		models.InputApprovePlan,
		models.InputApproveOutline,
	} {
		if step, m, ok := models.StepForInput(t); ok && m == marker {
			return step, t, true
		}
	}

	return "", "", false
}

func recoverPendingInput(snapshot models.ProcessSnapshot) (bool, models.InputType) {
	if snapshot.IsWaitingInput != nil {
		if !*snapshot.IsWaitingInput {
			return false, ""
		}

		if snapshot.InputType != "" {
			return true, snapshot.InputType
		}
	}

	current := models.StepID(snapshot.Process.CurrentStepName)
	if _, inputType, ok := markerStep(current); ok {
		return true, inputType
	}

	if snapshot.IsWaitingInput != nil && *snapshot.IsWaitingInput {
		return true, snapshot.InputType
	}

	return false, ""
}
