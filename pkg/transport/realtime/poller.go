package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

// DefaultPollInterval is the fixed fallback polling interval.
const DefaultPollInterval = 5 * time.Second

// ReconcileFunc re-fetches authoritative state and returns the process
// status after reconciliation. Polling continues only while the status is
// active (pending or in_progress).
type ReconcileFunc func(ctx context.Context) (models.ProcessStatus, error)

// Poller runs the polling fallback. It is torn down when the process leaves
// an active status, when the context is cancelled, or on Stop, whichever
// comes first. No reconcile runs after the owner is gone.
type Poller struct {
	interval  time.Duration
	reconcile ReconcileFunc
	logger    *slog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	running bool
}

func NewPoller(interval time.Duration, reconcile ReconcileFunc, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Poller{
		interval:  interval,
		reconcile: reconcile,
		logger:    logger.With("module", "transport.poller"),
	}
}

// Start begins polling. A second call while running is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()

		return
	}

	p.running = true
	p.stop = make(chan struct{})
	stop := p.stop
	p.mu.Unlock()

	go p.loop(ctx, stop)
}

// Stop tears the poller down. Safe to call when not running.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.running = false
	close(p.stop)
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.running
}

func (p *Poller) loop(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Stop()

			return
		case <-stop:
			return
		case <-ticker.C:
			status, err := p.reconcile(ctx)
			if err != nil {
				// Poll errors are local to the tick; the next tick retries.
				p.logger.DebugContext(ctx, "Poll reconcile failed", "error", err)

				continue
			}

			if !status.IsActive() {
				p.logger.DebugContext(ctx, "Process left active status, stopping poll",
					"status", string(status))
				p.Stop()

				return
			}
		}
	}
}
