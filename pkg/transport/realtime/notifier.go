// Package realtime implements the second transport variant: row-change
// notifications for a single process record plus a fixed-interval polling
// fallback. The notification only says "state changed", so both paths
// converge on one reconcile routine that re-fetches the authoritative
// state and event log.
package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ChannelFor returns the pub/sub channel carrying row-change signals for one
// process record.
func ChannelFor(processID string) string {
	return "generation:process:" + processID
}

// Notifier subscribes to row-change notifications, filtered by process id.
type Notifier struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewNotifier(rdb *redis.Client, logger *slog.Logger) *Notifier {
	return &Notifier{
		rdb:    rdb,
		logger: logger.With("module", "transport.realtime"),
	}
}

// Subscribe starts listening for change signals on the process channel and
// invokes onChange for every one (pull-on-push: the handler re-fetches, the
// signal carries no event data). The returned stop function tears the
// subscription down; it is safe to call more than once.
func (n *Notifier) Subscribe(ctx context.Context, processID string, onChange func(context.Context)) (func(), error) {
	sub := n.rdb.Subscribe(ctx, ChannelFor(processID))

	// Force the subscription to be established before returning.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()

		return nil, err
	}

	done := make(chan struct{})

	go func() {
		ch := sub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				n.logger.DebugContext(ctx, "Process change signal received",
					"process_id", processID, "payload", msg.Payload)
				onChange(ctx)
			}
		}
	}()

	var stopOnce sync.Once

	stop := func() {
		stopOnce.Do(func() {
			close(done)

			if err := sub.Close(); err != nil {
				n.logger.Debug("Failed to close subscription", "error", err)
			}
		})
	}

	return stop, nil
}
