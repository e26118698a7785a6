package sync

import (
	"context"
	"sync"
	"time"

	"github.com/floatnote/floatnote/internal/logging"
)

// ChangeSource is one subscription to the remote change feed. WaitForChange
// blocks until an event arrives, the context is cancelled, or the feed
// breaks; once it returns a non-context error the source is dead and must
// be Closed.
type ChangeSource interface {
	WaitForChange(ctx context.Context) error
	Close(ctx context.Context) error
}

// stopTimeout bounds how long Stop waits for the watch goroutine to join.
const stopTimeout = 2 * time.Second

// Notifier watches a ChangeSource from a single background goroutine and
// fires a zero-argument callback for every observed event. Rapid events may
// coalesce downstream; the notifier itself delivers them one by one, in
// order, never concurrently.
//
// A feed error ends watching: the error is logged and the notifier goes
// idle. There is no automatic reconnection; restarting is an explicit
// caller decision.
type Notifier struct {
	source ChangeSource
	logger logging.Logger

	mu       sync.Mutex
	watching bool
	stopped  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewNotifier wraps a change source. The notifier starts idle.
func NewNotifier(source ChangeSource, logger logging.Logger) *Notifier {
	return &Notifier{
		source: source,
		logger: logger.With("component", "notifier"),
	}
}

// Watching reports whether the watch goroutine is live.
func (n *Notifier) Watching() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.watching
}

// Start transitions Idle -> Watching and begins delivering onChange per
// event. Starting an already-watching notifier stops the old goroutine
// first.
func (n *Notifier) Start(onChange func()) {
	n.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	n.mu.Lock()
	n.watching = true
	n.stopped = false
	n.cancel = cancel
	n.done = done
	n.mu.Unlock()

	go n.watch(ctx, done, onChange)
}

func (n *Notifier) watch(ctx context.Context, done chan struct{}, onChange func()) {
	defer close(done)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := n.source.Close(closeCtx); err != nil {
			n.logger.Warn(closeCtx, "closing change source", "error", err)
		}

		n.mu.Lock()
		n.watching = false
		n.mu.Unlock()
	}()

	for {
		if err := n.source.WaitForChange(ctx); err != nil {
			if ctx.Err() != nil {
				n.logger.Debug(ctx, "watch cancelled")
				return
			}
			n.logger.Error(ctx, "change feed failed, watching ended", "error", err)
			return
		}

		// The stopped flag and the callback run under the same lock, so no
		// new delivery can begin once Stop has been requested.
		n.mu.Lock()
		if n.stopped {
			n.mu.Unlock()
			return
		}
		onChange()
		n.mu.Unlock()
	}
}

// Stop requests cancellation and joins the watch goroutine, waiting at most
// stopTimeout. Safe to call when idle or when the goroutine already died on
// its own.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if n.cancel == nil {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	cancel := n.cancel
	done := n.done
	n.cancel = nil
	n.done = nil
	n.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		n.logger.Warn(context.Background(), "watch goroutine did not stop in time")
	}
}
