package sync

import (
	"context"
	"sync"

	"github.com/floatnote/floatnote/internal/logging"
)

// Coordinator owns the process-wide session invariant: at most one
// (username, notifier) pair is live at any time. Begin for a new user tears
// the previous session down completely before the new one starts.
type Coordinator struct {
	logger logging.Logger

	mu     sync.Mutex
	active *session
}

type session struct {
	username string
	notifier *Notifier
	cancel   context.CancelFunc
	kicks    chan struct{}
	done     chan struct{}
}

// NewCoordinator returns an empty coordinator.
func NewCoordinator(logger logging.Logger) *Coordinator {
	return &Coordinator{logger: logger.With("component", "session")}
}

// Begin starts a session for username: a notifier over source whose events
// trigger resync. Change bursts coalesce: events arriving while a resync is
// already queued collapse into a single additional run. A prior session, if
// any, is ended first.
//
// source may be nil (guest or degraded session); then no notifier runs and
// resync only happens when the caller invokes it directly.
func (c *Coordinator) Begin(username string, source ChangeSource, resync func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// teardown and start happen under one lock so two racing Begins cannot
	// both pass teardown and leak the loser's session
	c.endLocked()

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		username: username,
		cancel:   cancel,
		kicks:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.kicks:
				resync(ctx)
			}
		}
	}()

	if source != nil {
		s.notifier = NewNotifier(source, c.logger)
		s.notifier.Start(func() {
			select {
			case s.kicks <- struct{}{}:
			default:
				// a resync is already queued; this event rides along
			}
		})
	}

	c.active = s
	c.logger.Info(ctx, "session started", "user", username)
}

// End stops the active session: notifier first, then the resync worker.
// Safe to call with no active session.
func (c *Coordinator) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLocked()
}

// endLocked tears the active session down. Caller holds c.mu; the resync
// worker never touches the coordinator, so waiting for it under the lock
// cannot deadlock.
func (c *Coordinator) endLocked() {
	s := c.active
	if s == nil {
		return
	}
	c.active = nil

	if s.notifier != nil {
		s.notifier.Stop()
	}
	s.cancel()
	<-s.done
	c.logger.Info(context.Background(), "session ended", "user", s.username)
}

// ActiveUser returns the username of the live session, or "" when idle.
func (c *Coordinator) ActiveUser() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.username
}

// Watching reports whether the live session's notifier is watching the
// change feed.
func (c *Coordinator) Watching() bool {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	return s != nil && s.notifier != nil && s.notifier.Watching()
}
