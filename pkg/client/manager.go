package client

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shintairiku/marketing-automation-sub003/pkg/eventbus"
	"github.com/shintairiku/marketing-automation-sub003/pkg/events"
	"github.com/shintairiku/marketing-automation-sub003/pkg/generation"
	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
	"github.com/shintairiku/marketing-automation-sub003/pkg/normalizer"
	"github.com/shintairiku/marketing-automation-sub003/pkg/transport/realtime"
	"github.com/shintairiku/marketing-automation-sub003/pkg/transport/websocket"
)

// ManagerOptions configure a ProcessManager. Exactly one transport variant
// is used per process: the socket endpoint for the legacy flow, or the
// notifier + poller pair for the realtime flow. Both may be configured; the
// reconcile routine is shared.
type ManagerOptions struct {
	ProcessID      string
	UserID         string
	SocketEndpoint string
	API            *API
	Bus            eventbus.EventBus
	Notifier       *realtime.Notifier
	PollInterval   time.Duration
	Logger         *slog.Logger
}

// ProcessManager owns the reactive generation state for one process. It is
// the single writer: events arrive from the transports, are normalized,
// published on the in-process bus and folded into state; the view layer
// reads Snapshot and subscribes to changes.
type ProcessManager struct {
	opts   ManagerOptions
	logger *slog.Logger

	socket     *websocket.Client
	poller     *realtime.Poller
	dispatcher *Dispatcher
	validate   *validator.Validate

	runCtx       context.Context
	stopNotifier func()

	mu           sync.Mutex
	state        generation.State
	seenRecords  map[string]struct{}
	lastSequence int64
	parseError   string
	subscribers  map[int]func(generation.State)
	nextSubID    int
}

func NewProcessManager(opts ManagerOptions) *ProcessManager {
	logger := opts.Logger.With("module", "client.manager", "process_id", opts.ProcessID)

	m := &ProcessManager{
		opts:        opts,
		logger:      logger,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		state:       generation.NewState(opts.ProcessID),
		seenRecords: make(map[string]struct{}),
		subscribers: make(map[int]func(generation.State)),
	}

	m.socket = websocket.NewClient(opts.SocketEndpoint, websocket.Callbacks{
		OnMessage: m.handleRawMessage,
		OnError: func(err error) {
			logger.Warn("Transport error", "error", err)
		},
	}, logger)

	m.dispatcher = NewDispatcher(opts.ProcessID, m.socket, m.clearPendingInput, logger)
	m.poller = realtime.NewPoller(opts.PollInterval, m.Reconcile, logger)

	return m
}

// Start registers the bus handlers and begins consuming. It does not open
// the socket; Connect does.
func (m *ProcessManager) Start(ctx context.Context) error {
	m.runCtx = ctx

	for _, eventType := range []events.EventType{
		events.StepChangedEvent,
		events.InputRequiredEvent,
		events.ContentChunkEvent,
		events.ArticleFinalizedEvent,
		events.GenerationFailedEvent,
		events.GenerationFinishedEvent,
		events.ResearchProgressedEvent,
		events.ArticleIDAssignedEvent,
		events.ActivityRecordedEvent,
		events.ToolCallCompletedEvent,
	} {
		if err := m.opts.Bus.Handle(eventType, m.handleBusEvent); err != nil {
			return err
		}
	}

	if err := m.opts.Bus.Subscribe(ctx); err != nil {
		return err
	}

	if m.opts.Notifier != nil {
		stop, err := m.opts.Notifier.Subscribe(ctx, m.opts.ProcessID, func(ctx context.Context) {
			if _, err := m.Reconcile(ctx); err != nil {
				m.logger.WarnContext(ctx, "Reconcile after change signal failed", "error", err)
			}
		})
		if err != nil {
			return err
		}

		m.stopNotifier = stop
	}

	return nil
}

// Connect opens the socket channel; idempotent.
func (m *ProcessManager) Connect(ctx context.Context) error {
	return m.socket.Connect(ctx, websocket.Params{
		ProcessID: m.opts.ProcessID,
		UserID:    m.opts.UserID,
	})
}

// Disconnect sends a normal closure; safe when already disconnected.
func (m *ProcessManager) Disconnect() {
	m.socket.Disconnect()
}

// Close tears down everything the manager owns: socket, notifier
// subscription and poll timer. Reconciles and sends after Close are
// impossible by construction.
func (m *ProcessManager) Close() {
	m.socket.Disconnect()
	m.poller.Stop()

	if m.stopNotifier != nil {
		m.stopNotifier()
	}
}

// IsConnected reports the socket state for the view layer.
func (m *ProcessManager) IsConnected() bool { return m.socket.IsConnected() }

// TransportError returns the last recorded transport error string.
func (m *ProcessManager) TransportError() string { return m.socket.LastError() }

// StartArticleGeneration fully resets the derived state, then sends the
// start envelope. The reset runs before the first event of the new run can
// arrive, so no artifact of a previous run leaks into the new one.
func (m *ProcessManager) StartArticleGeneration(req models.StartGenerationRequest) error {
	if err := m.validate.Struct(req); err != nil {
		return err
	}

	m.ResetState()
	m.socket.StartGeneration(m.opts.ProcessID, req)

	return nil
}

// ResetState restores the documented initial state.
func (m *ProcessManager) ResetState() {
	m.mu.Lock()
	m.state = generation.NewState(m.opts.ProcessID)
	m.seenRecords = make(map[string]struct{})
	m.lastSequence = 0
	m.parseError = ""
	m.mu.Unlock()

	m.notify()
}

// User checkpoint actions. Selections and approvals require a pending input;
// Regenerate is allowed whenever the backend is at a checkpoint, so it is
// not guarded.

func (m *ProcessManager) SelectPersona(personaID int) error {
	if err := m.requirePendingInput(); err != nil {
		return err
	}

	return m.dispatcher.SelectPersona(personaID)
}

func (m *ProcessManager) SelectTheme(themeID int) error {
	if err := m.requirePendingInput(); err != nil {
		return err
	}

	return m.dispatcher.SelectTheme(themeID)
}

func (m *ProcessManager) ApprovePlan() error {
	if err := m.requirePendingInput(); err != nil {
		return err
	}

	return m.dispatcher.ApprovePlan()
}

func (m *ProcessManager) ApproveOutline() error {
	if err := m.requirePendingInput(); err != nil {
		return err
	}

	return m.dispatcher.ApproveOutline()
}

func (m *ProcessManager) Regenerate() error {
	return m.dispatcher.Regenerate()
}

func (m *ProcessManager) EditAndProceed(responseType events.ResponseType, content map[string]any) error {
	if err := m.requirePendingInput(); err != nil {
		return err
	}

	return m.dispatcher.EditAndProceed(responseType, content)
}

// LoadProcessState performs recovery: fetch authoritative state and event
// log, reconcile, and start the polling fallback while the process is
// active.
func (m *ProcessManager) LoadProcessState(ctx context.Context) error {
	status, err := m.Reconcile(ctx)
	if err != nil {
		return err
	}

	if status.IsActive() {
		m.poller.Start(ctx)
	}

	return nil
}

// Reconcile is the shared pull routine for the realtime signal, the poll
// tick and explicit reloads: two parallel fetches (snapshot, event log),
// then a rebuild that merges rather than replaces the activity feed.
func (m *ProcessManager) Reconcile(ctx context.Context) (models.ProcessStatus, error) {
	var (
		snap    *models.ProcessSnapshot
		records []models.EventRecord
		snapErr error
		recErr  error
		wg      sync.WaitGroup
	)

	m.mu.Lock()
	since := m.lastSequence
	m.mu.Unlock()

	wg.Add(2)

	go func() {
		defer wg.Done()

		snap, snapErr = m.opts.API.GetProcess(ctx, m.opts.ProcessID)
	}()

	go func() {
		defer wg.Done()

		records, recErr = m.opts.API.GetEvents(ctx, m.opts.ProcessID, since)
	}()

	wg.Wait()

	if snapErr != nil {
		return m.Snapshot().Status, snapErr
	}

	if recErr != nil {
		return m.Snapshot().Status, recErr
	}

	m.mu.Lock()

	next := generation.Recover(*snap)
	next.Activities = m.state.Activities

	fresh := make([]models.EventRecord, 0, len(records))

	for _, rec := range records {
		if rec.Sequence > m.lastSequence {
			m.lastSequence = rec.Sequence
		}

		if _, seen := m.seenRecords[rec.ID]; seen {
			continue
		}

		m.seenRecords[rec.ID] = struct{}{}
		fresh = append(fresh, rec)
	}

	// The backend does not guarantee row order; fold in sequence order so a
	// completion never lands before the entry it closes.
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].Sequence < fresh[j].Sequence })

	for _, rec := range fresh {
		evs, err := normalizer.NormalizeRecord(m.opts.ProcessID, rec)
		if err != nil {
			m.parseError = err.Error()

			continue
		}

		for _, ev := range evs {
			// The snapshot is authoritative for pipeline state; the log
			// only feeds the activity stream.
			switch ev.(type) {
			case events.ActivityRecorded, events.ToolCallCompleted:
				next = generation.Reduce(next, ev)
			}
		}
	}

	m.state = next
	status := next.Status
	m.mu.Unlock()

	m.notify()

	return status, nil
}

// Snapshot returns a copy of the current state for the view layer.
func (m *ProcessManager) Snapshot() generation.State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// ParseError returns the last recorded payload parse error, empty when none.
func (m *ProcessManager) ParseError() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.parseError
}

// SubscribeState registers a state-change observer; the returned function
// unsubscribes it.
func (m *ProcessManager) SubscribeState(fn func(generation.State)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// handleRawMessage is the socket OnMessage callback: normalize, publish to
// the bus. Malformed payloads are recorded and otherwise ignored.
func (m *ProcessManager) handleRawMessage(data []byte) {
	ctx := m.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	evs, err := normalizer.Normalize(m.opts.ProcessID, data)
	if err != nil {
		if errors.Is(err, normalizer.ErrUnparseablePayload) {
			m.mu.Lock()
			m.parseError = err.Error()
			m.mu.Unlock()
			m.logger.Warn("Dropped unparseable payload", "error", err)

			return
		}

		m.logger.Warn("Normalize failed", "error", err)

		return
	}

	for _, ev := range evs {
		if err := m.opts.Bus.Publish(ctx, m.opts.ProcessID, ev); err != nil {
			m.logger.WarnContext(ctx, "Failed to publish event", "error", err)
		}
	}
}

// handleBusEvent folds one normalized event into state.
func (m *ProcessManager) handleBusEvent(ctx context.Context, event any) error {
	ev, ok := derefEvent(event)
	if !ok {
		m.logger.WarnContext(ctx, "Unexpected event type on bus")

		return nil
	}

	m.mu.Lock()
	m.state = generation.Reduce(m.state, ev)
	m.mu.Unlock()

	m.notify()

	return nil
}

func (m *ProcessManager) requirePendingInput() error {
	m.mu.Lock()
	waiting := m.state.IsWaitingForInput
	m.mu.Unlock()

	if !waiting {
		return ErrNoPendingInput
	}

	return nil
}

// clearPendingInput is the dispatcher's optimistic local update.
func (m *ProcessManager) clearPendingInput() {
	m.mu.Lock()
	m.state.IsWaitingForInput = false
	m.state.InputType = ""
	m.mu.Unlock()

	m.notify()
}

func (m *ProcessManager) notify() {
	m.mu.Lock()
	state := m.state

	fns := make([]func(generation.State), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// derefEvent unwraps the pointer types the bus decodes into.
func derefEvent(event any) (events.Event, bool) {
	switch e := event.(type) {
	case *events.StepChanged:
		return *e, true
	case *events.InputRequired:
		return *e, true
	case *events.ContentChunk:
		return *e, true
	case *events.ArticleFinalized:
		return *e, true
	case *events.GenerationFailed:
		return *e, true
	case *events.GenerationFinished:
		return *e, true
	case *events.ResearchProgressed:
		return *e, true
	case *events.ArticleIDAssigned:
		return *e, true
	case *events.ActivityRecorded:
		return *e, true
	case *events.ToolCallCompleted:
		return *e, true
	case *events.RunStateChanged:
		return *e, true
	case events.Event:
		return e, true
	default:
		return nil, false
	}
}
