package models

// InputType names the kind of user input the backend is waiting for.
type InputType string

const (
	InputSelectPersona  InputType = "select_persona"
	InputSelectTheme    InputType = "select_theme"
	InputApprovePlan    InputType = "approve_plan"
	InputApproveOutline InputType = "approve_outline"
)

// StepForInput maps a pending-input type to the pipeline step that produced
// it, and the checkpoint marker recorded as the current step name.
func StepForInput(t InputType) (step StepID, marker StepID, ok bool) {
	switch t {
	case InputSelectPersona:
		return StepPersonaGenerating, StepMarkerPersonaGenerated, true
	case InputSelectTheme:
		return StepThemeGenerating, StepMarkerThemeProposed, true
	case InputApprovePlan:
		return StepResearchPlanning, StepMarkerResearchPlanned, true
	case InputApproveOutline:
		return StepOutlineGenerating, StepMarkerOutlineGenerated, true
	default:
		return "", "", false
	}
}

// Persona is one generated writing persona candidate.
type Persona struct {
	ID          int    `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description"`
}

// Theme is one proposed article theme.
type Theme struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// ResearchQuery is one planned or executed research query.
type ResearchQuery struct {
	Query   string `json:"query"`
	Purpose string `json:"purpose,omitempty"`
}

// ResearchPlan groups the queries the backend intends to run.
type ResearchPlan struct {
	Topic   string          `json:"topic,omitempty"`
	Queries []ResearchQuery `json:"queries"`
}

// OutlineSection is one section of the proposed article outline.
type OutlineSection struct {
	Heading     string   `json:"heading"`
	Description string   `json:"description,omitempty"`
	Subheadings []string `json:"subheadings,omitempty"`
}

// Outline is the proposed article structure.
type Outline struct {
	Title    string           `json:"title"`
	Sections []OutlineSection `json:"sections"`
}

// FinalArticle is the completed article produced by the pipeline.
type FinalArticle struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// SectionsProgress tracks writing progress across outline sections.
type SectionsProgress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Heading string `json:"heading,omitempty"`
}

// ResearchProgress tracks execution progress across planned queries.
type ResearchProgress struct {
	QueryIndex   int    `json:"query_index"`
	TotalQueries int    `json:"total_queries"`
	Query        string `json:"query,omitempty"`
}
