package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

// Pipeline drives one simulated generation run through the 8-step script,
// pausing at the persona and theme checkpoints and at plan/outline approval.
type Pipeline struct {
	store   *Store
	proc    *Process
	emit    func(payload map[string]any)
	logger  *slog.Logger
	stepLag time.Duration
}

// NewPipeline wires a script to a process. emit delivers each payload to the
// connected socket (when any) in addition to the event log.
func NewPipeline(store *Store, proc *Process, emit func(map[string]any), logger *slog.Logger, stepLag time.Duration) *Pipeline {
	if stepLag <= 0 {
		stepLag = 300 * time.Millisecond
	}

	return &Pipeline{
		store:   store,
		proc:    proc,
		emit:    emit,
		logger:  logger.With("module", "simulator.pipeline"),
		stepLag: stepLag,
	}
}

// Run executes the script until completion or context cancellation.
func (p *Pipeline) Run(ctx context.Context) {
	processID := p.proc.Snapshot().Process.ID
	p.logger.InfoContext(ctx, "Pipeline started", "process_id", processID)

	p.setStatus(models.ProcessStatusInProgress)

	p.step(ctx, models.StepKeywordAnalyzing, "Analyzing target keywords")
	p.step(ctx, models.StepPersonaGenerating, "Generating personas")

	personas := samplePersonas()
	p.checkpoint(ctx, "select_persona", map[string]any{"personas": personas}, models.StepMarkerPersonaGenerated)

	if ctx.Err() != nil {
		return
	}

	p.step(ctx, models.StepThemeGenerating, "Proposing themes")
	p.checkpoint(ctx, "select_theme", map[string]any{"themes": sampleThemes()}, models.StepMarkerThemeProposed)

	if ctx.Err() != nil {
		return
	}

	p.step(ctx, models.StepResearchPlanning, "Planning research")
	plan := samplePlan()
	p.checkpoint(ctx, "approve_plan", map[string]any{"plan": plan}, models.StepMarkerResearchPlanned)

	if ctx.Err() != nil {
		return
	}

	p.step(ctx, models.StepResearching, "Running research queries")

	for i, q := range plan["queries"].([]map[string]any) {
		p.send(map[string]any{
			"query_index":   i,
			"total_queries": len(plan["queries"].([]map[string]any)),
			"query":         q["query"],
		})
		p.pause(ctx)
	}

	p.send(map[string]any{"step": string(models.SubStepResearchSynthesizing)})
	p.pause(ctx)

	p.step(ctx, models.StepOutlineGenerating, "Drafting outline")
	outline := sampleOutline()
	p.checkpoint(ctx, "approve_outline", map[string]any{"outline": outline}, models.StepMarkerOutlineGenerated)

	if ctx.Err() != nil {
		return
	}

	p.step(ctx, models.StepWritingSections, "Writing sections")

	sections := outline["sections"].([]map[string]any)
	for i, section := range sections {
		p.send(map[string]any{
			"html_content_chunk": fmt.Sprintf("<h2>%s</h2><p>Section %d body.</p>", section["heading"], i+1),
			"section_index":      i,
			"heading":            section["heading"],
		})
		p.pause(ctx)
	}

	p.step(ctx, models.StepEditing, "Editing draft")
	p.pause(ctx)

	final := fmt.Sprintf("<article><h1>%s</h1><p>Edited final copy.</p></article>", outline["title"])
	p.send(map[string]any{
		"final_html_content": final,
		"title":              outline["title"],
		"article_id":         "article-" + processID,
	})

	p.setStatus(models.ProcessStatusCompleted)
	p.proc.Update(func(snap *models.ProcessSnapshot) {
		snap.Process.CurrentStepName = string(models.StepFinished)
		snap.Process.ProgressPercentage = 100
	})

	p.send(map[string]any{"step": string(models.StepFinished)})
	p.logger.InfoContext(ctx, "Pipeline finished", "process_id", processID)
}

// step advances the pipeline pointer and records the transition.
func (p *Pipeline) step(ctx context.Context, id models.StepID, message string) {
	if ctx.Err() != nil {
		return
	}

	p.proc.Update(func(snap *models.ProcessSnapshot) {
		snap.Process.CurrentStepName = string(id)
		snap.Process.Status = models.ProcessStatusInProgress

		if k := models.StepIndex(id); k >= 0 {
			snap.Process.ProgressPercentage = k * 100 / len(models.StepCatalogue)
		}
	})

	p.send(map[string]any{"step": string(id), "message": message})
	p.pause(ctx)
}

// checkpoint emits a request_type payload and blocks until the client
// responds (select, approve or regenerate) or the context ends.
func (p *Pipeline) checkpoint(ctx context.Context, requestType string, data map[string]any, marker models.StepID) {
	p.proc.Update(func(snap *models.ProcessSnapshot) {
		snap.Process.Status = models.ProcessStatusUserInputRequired
		snap.Process.CurrentStepName = string(marker)
	})

	p.send(map[string]any{"request_type": requestType, "data": data})

	for {
		select {
		case <-ctx.Done():
			return
		case input := <-p.proc.Responses:
			if input.ResponseType == "regenerate" {
				p.send(map[string]any{"request_type": requestType, "data": data})

				continue
			}

			p.setStatus(models.ProcessStatusInProgress)

			return
		}
	}
}

// send records the payload in the event log, forwards it to the socket and
// publishes the row-change signal.
func (p *Pipeline) send(payload map[string]any) {
	p.proc.Append(payload)

	if p.emit != nil {
		p.emit(payload)
	}

	p.store.NotifyChange(context.Background(), p.proc.Snapshot().Process.ID)
}

func (p *Pipeline) setStatus(status models.ProcessStatus) {
	p.proc.Update(func(snap *models.ProcessSnapshot) {
		snap.Process.Status = status
	})
}

func (p *Pipeline) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.stepLag):
	}
}

func samplePersonas() []map[string]any {
	return []map[string]any{
		{"id": 1, "name": "The Practitioner", "description": "Hands-on marketer looking for tactics"},
		{"id": 2, "name": "The Executive", "description": "Decision maker scanning for outcomes"},
	}
}

func sampleThemes() []map[string]any {
	return []map[string]any{
		{"id": 1, "title": "Automating content pipelines", "keywords": []string{"automation", "seo"}},
		{"id": 2, "title": "Measuring content ROI", "keywords": []string{"analytics"}},
	}
}

func samplePlan() map[string]any {
	return map[string]any{
		"topic": "content automation",
		"queries": []map[string]any{
			{"query": "content automation tools 2026", "purpose": "landscape"},
			{"query": "seo pipeline case studies", "purpose": "evidence"},
		},
	}
}

func sampleOutline() map[string]any {
	return map[string]any{
		"title": "Automating Your Content Pipeline",
		"sections": []map[string]any{
			{"heading": "Why automate"},
			{"heading": "Architecture of a pipeline"},
			{"heading": "Measuring results"},
		},
	}
}
