package client

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/shintairiku/marketing-automation-sub003/pkg/events"
)

// ResponseSender is the transport surface the dispatcher needs: sends never
// return an error, failures are recorded on the transport.
type ResponseSender interface {
	SendResponse(resp events.ClientResponse)
	LastError() string
}

// Dispatcher sends typed client responses over the transport. Each dispatch
// optimistically clears the pending-input flag via onDispatched; the server
// either proceeds or re-requests input with a fresh event. There is no
// retry: a failed send is only visible through the transport's recorded
// error.
type Dispatcher struct {
	processID    string
	sender       ResponseSender
	validate     *validator.Validate
	onDispatched func()
	logger       *slog.Logger
}

func NewDispatcher(processID string, sender ResponseSender, onDispatched func(), logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		processID:    processID,
		sender:       sender,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		onDispatched: onDispatched,
		logger:       logger.With("module", "client.dispatcher", "process_id", processID),
	}
}

// SelectPersona answers a select_persona checkpoint.
func (d *Dispatcher) SelectPersona(personaID int) error {
	return d.dispatch(events.ResponseSelectPersona, events.SelectionPayload{ID: personaID})
}

// SelectTheme answers a select_theme checkpoint.
func (d *Dispatcher) SelectTheme(themeID int) error {
	return d.dispatch(events.ResponseSelectTheme, events.SelectionPayload{ID: themeID})
}

// ApprovePlan approves the research plan.
func (d *Dispatcher) ApprovePlan() error {
	return d.dispatch(events.ResponseApprovePlan, events.ApprovalPayload{Approved: true})
}

// ApproveOutline approves the proposed outline.
func (d *Dispatcher) ApproveOutline() error {
	return d.dispatch(events.ResponseApproveOutline, events.ApprovalPayload{Approved: true})
}

// Regenerate asks the backend to redo the artifact at the current checkpoint.
func (d *Dispatcher) Regenerate() error {
	return d.dispatch(events.ResponseRegenerate, nil)
}

// EditAndProceed sends a user-edited artifact. responseType selects which
// artifact is being edited (edit_persona, edit_theme, edit_plan,
// edit_outline).
func (d *Dispatcher) EditAndProceed(responseType events.ResponseType, content map[string]any) error {
	return d.dispatch(responseType, events.EditPayload{Content: content})
}

func (d *Dispatcher) dispatch(rt events.ResponseType, payload any) error {
	if payload != nil {
		if err := d.validate.Struct(payload); err != nil {
			return err
		}
	}

	d.sender.SendResponse(events.NewClientResponse(d.processID, rt, payload))

	if transportErr := d.sender.LastError(); transportErr != "" {
		d.logger.Warn("Dispatch recorded transport error",
			"response_type", string(rt), "error", transportErr)
	}

	if d.onDispatched != nil {
		d.onDispatched()
	}

	return nil
}
