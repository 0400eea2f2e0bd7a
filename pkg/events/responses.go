package events

import "encoding/json"

// Wire envelope types for the legacy socket flow.
const (
	EnvelopeServerEvent    = "server_event"
	EnvelopeClientResponse = "client_response"
)

// ServerEnvelope wraps a raw server payload on the socket.
type ServerEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ResponseType names an allowed user response at a checkpoint.
type ResponseType string

const (
	ResponseSelectPersona  ResponseType = "select_persona"
	ResponseSelectTheme    ResponseType = "select_theme"
	ResponseApprovePlan    ResponseType = "approve_plan"
	ResponseApproveOutline ResponseType = "approve_outline"
	ResponseRegenerate     ResponseType = "regenerate"
	ResponseEditPersona    ResponseType = "edit_persona"
	ResponseEditTheme      ResponseType = "edit_theme"
	ResponseEditPlan       ResponseType = "edit_plan"
	ResponseEditOutline    ResponseType = "edit_outline"
)

// ClientResponse is the typed envelope a user action sends back over the
// transport.
type ClientResponse struct {
	Type         string       `json:"type"`
	ResponseType ResponseType `json:"response_type"`
	ProcessID    string       `json:"process_id,omitempty"`
	Payload      any          `json:"payload,omitempty"`
}

// NewClientResponse builds the wire envelope for one user response.
func NewClientResponse(processID string, rt ResponseType, payload any) ClientResponse {
	return ClientResponse{
		Type:         EnvelopeClientResponse,
		ResponseType: rt,
		ProcessID:    processID,
		Payload:      payload,
	}
}

// SelectionPayload carries the chosen candidate id for select_* responses.
type SelectionPayload struct {
	ID int `json:"id" validate:"gte=0"`
}

// ApprovalPayload carries an approve/reject decision.
type ApprovalPayload struct {
	Approved bool `json:"approved"`
}

// EditPayload carries user-edited artifact content for edit_* responses.
type EditPayload struct {
	Content map[string]any `json:"content" validate:"required"`
}
