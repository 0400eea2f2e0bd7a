package generation

import (
	"fmt"

	"github.com/shintairiku/marketing-automation-sub003/pkg/events"
	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

// Reduce folds one normalized event into the state. It is a pure function:
// prev is never mutated, and callers are responsible for applying events in
// order (the transport layer sorts by sequence where delivery order is not
// guaranteed).
func Reduce(prev State, ev events.Event) State {
	// Terminal guard: once the article is finalized, stale non-error
	// events from an overlapping poll window must not regress the state.
	if prev.Status == models.ProcessStatusCompleted && !survivesTerminal(ev) {
		return prev
	}

	switch e := ev.(type) {
	case events.StepChanged:
		return reduceStepChanged(prev, e)
	case events.InputRequired:
		return reduceInputRequired(prev, e)
	case events.ContentChunk:
		return reduceContentChunk(prev, e)
	case events.ArticleFinalized:
		return reduceArticleFinalized(prev, e)
	case events.GenerationFailed:
		return reduceGenerationFailed(prev, e)
	case events.GenerationFinished:
		return reduceGenerationFinished(prev, e)
	case events.ResearchProgressed:
		return reduceResearchProgressed(prev, e)
	case events.ArticleIDAssigned:
		next := prev
		next.ArticleID = e.ArticleID

		return next
	case events.ActivityRecorded:
		next := prev
		next.Activities = MergeActivities(prev.Activities, []models.ActivityEntry{e.Entry})

		return next
	case events.ToolCallCompleted:
		return reduceToolCallCompleted(prev, e)
	default:
		return prev
	}
}

// survivesTerminal lists the event kinds still applied after completion:
// errors, metadata and activity feed updates.
func survivesTerminal(ev events.Event) bool {
	switch ev.(type) {
	case events.GenerationFailed, events.ArticleIDAssigned,
		events.ActivityRecorded, events.ToolCallCompleted:
		return true
	default:
		return false
	}
}

func reduceStepChanged(prev State, e events.StepChanged) State {
	next := prev

	// research_synthesizing is a cosmetic sub-phase of researching: update
	// the message, clear the query counter, leave the pointer alone.
	if e.Step == models.SubStepResearchSynthesizing {
		next.Steps = cloneSteps(prev.Steps)
		if step := next.StepByID(models.StepResearching); step != nil {
			step.Message = e.Message
			if step.Message == "" {
				step.Message = "Synthesizing research results"
			}
		}

		next.ResearchProgress = models.ResearchProgress{}

		return next
	}

	k := models.StepIndex(e.Step)
	if k < 0 {
		// Free-text step label outside the catalogue: move the pointer only.
		next.CurrentStep = e.Step

		return next
	}

	next.CurrentStep = e.Step
	next.Steps = stepsAt(k, e.Message)
	next.ProgressPercentage = progressFor(k)
	next.IsWaitingForInput = false
	next.InputType = ""

	if next.Status == models.ProcessStatusPending || next.Status == models.ProcessStatusUserInputRequired {
		next.Status = models.ProcessStatusInProgress
	}

	return next
}

func reduceInputRequired(prev State, e events.InputRequired) State {
	next := prev
	next.IsWaitingForInput = true
	next.InputType = e.InputType
	next.Status = models.ProcessStatusUserInputRequired

	if e.AgentMessage != "" {
		next.AgentMessage = e.AgentMessage
	}

	switch e.InputType {
	case models.InputSelectPersona:
		next.Personas = e.Personas
	case models.InputSelectTheme:
		next.Themes = e.Themes
	case models.InputApprovePlan:
		next.ResearchPlan = e.ResearchPlan
	case models.InputApproveOutline:
		next.Outline = e.Outline
	}

	if step, marker, ok := models.StepForInput(e.InputType); ok {
		next.CurrentStep = marker
		next.Steps = cloneSteps(prev.Steps)

		if s := next.StepByID(step); s != nil {
			s.Status = models.StepStatusCompleted
		}
	}

	return next
}

func reduceContentChunk(prev State, e events.ContentChunk) State {
	next := prev
	next.GeneratedContent = prev.GeneratedContent + e.Chunk

	if e.SectionIndex != nil {
		next.SectionsProgress = models.SectionsProgress{
			Current: *e.SectionIndex + 1,
			Heading: e.Heading,
			Total:   prev.SectionsProgress.Total,
		}

		if prev.CurrentStep == models.StepWritingSections && prev.Outline != nil {
			next.SectionsProgress.Total = len(prev.Outline.Sections)
		}
	}

	return next
}

func reduceArticleFinalized(prev State, e events.ArticleFinalized) State {
	title := e.Title
	if title == "" {
		title = UntitledArticle
	}

	next := prev
	next.FinalArticle = &models.FinalArticle{Title: title, Content: e.Content}
	next.Status = models.ProcessStatusCompleted
	next.CurrentStep = models.StepFinished
	next.Steps = stepsAllCompleted("")
	next.ProgressPercentage = 100
	next.IsWaitingForInput = false
	next.InputType = ""

	return next
}

func reduceGenerationFailed(prev State, e events.GenerationFailed) State {
	// Editing fallback: an editing failure with recoverable written content
	// is not an error. The accumulated buffer becomes the article and the
	// editing step is marked skipped so the distinction survives for the UI.
	if e.Step == models.StepEditing && prev.GeneratedContent != "" {
		return synthesizeCompleted(prev)
	}

	next := prev
	next.Status = models.ProcessStatusError
	next.ErrorMessage = e.Message
	next.IsWaitingForInput = false
	next.InputType = ""

	if k := models.StepIndex(e.Step); k >= 0 {
		next.Steps = cloneSteps(prev.Steps)
		next.Steps[k].Status = models.StepStatusError
		next.Steps[k].Message = e.Message
	}

	return next
}

func reduceGenerationFinished(prev State, e events.GenerationFinished) State {
	// The sentinel is "maybe completed": an accompanying error means the
	// failure path already handled it.
	if e.Error != "" {
		return prev
	}

	if prev.FinalArticle != nil {
		return prev
	}

	if prev.GeneratedContent == "" {
		return prev
	}

	return synthesizeCompleted(prev)
}

// synthesizeCompleted closes out a process from the accumulated content
// buffer when no explicit final article arrived.
func synthesizeCompleted(prev State) State {
	title := UntitledArticle
	if prev.Outline != nil && prev.Outline.Title != "" {
		title = prev.Outline.Title
	}

	next := prev
	next.FinalArticle = &models.FinalArticle{Title: title, Content: prev.GeneratedContent}
	next.Status = models.ProcessStatusCompleted
	next.CurrentStep = models.StepFinished
	next.Steps = stepsAllCompleted(models.StepStatusSkipped)
	next.ProgressPercentage = 100
	next.IsWaitingForInput = false
	next.InputType = ""
	next.ErrorMessage = ""

	return next
}

func reduceResearchProgressed(prev State, e events.ResearchProgressed) State {
	next := prev
	next.ResearchProgress = models.ResearchProgress{
		QueryIndex:   e.QueryIndex,
		TotalQueries: e.TotalQueries,
		Query:        e.Query,
	}

	// Reaching the last query does not close the phase; the next step
	// transition does.
	if prev.CurrentStep == models.StepResearching {
		next.Steps = cloneSteps(prev.Steps)
		if step := next.StepByID(models.StepResearching); step != nil {
			step.Message = fmt.Sprintf("Researching query %d/%d: %s", e.QueryIndex+1, e.TotalQueries, e.Query)
		}
	}

	return next
}

// reduceToolCallCompleted closes the most recent running tool entry. The
// completion payload carries no entry id, so the match is LIFO.
func reduceToolCallCompleted(prev State, e events.ToolCallCompleted) State {
	idx := -1

	for i := len(prev.Activities) - 1; i >= 0; i-- {
		if prev.Activities[i].Type == models.ActivityTool && prev.Activities[i].Status == models.ActivityRunning {
			idx = i

			break
		}
	}

	if idx < 0 {
		return prev
	}

	next := prev
	next.Activities = make([]models.ActivityEntry, len(prev.Activities))
	copy(next.Activities, prev.Activities)

	next.Activities[idx].Status = models.ActivityDone
	if e.IsError {
		next.Activities[idx].Status = models.ActivityError
	}

	if e.Message != "" {
		next.Activities[idx].Message = e.Message
	}

	return next
}
