// Package sync drives the offline-first cycle that keeps a user's local
// snapshot and the shared remote store convergent: load local, fetch what
// remote lets the user see, merge deterministically, write local first,
// then push back only the documents that actually changed.
//
// The package also owns the change notifier (one goroutine watching the
// remote feed) and the session coordinator that guarantees at most one
// active (username, notifier) pair per process.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/floatnote/floatnote/internal/common"
	"github.com/floatnote/floatnote/internal/logging"
	"github.com/floatnote/floatnote/internal/merge"
	"github.com/floatnote/floatnote/internal/model"
)

// LocalStore is the per-user snapshot the engine reads and rewrites every
// cycle.
type LocalStore interface {
	Load(ctx context.Context, username string) ([]model.Collection, error)
	Save(ctx context.Context, username string, cols []model.Collection) error
}

// RemoteStore is the shared multi-writer store. A nil RemoteStore (guest
// mode, or remote unreachable at startup) turns every cycle into a
// local-only one.
type RemoteStore interface {
	FetchVisible(ctx context.Context, username string) ([]model.Collection, error)
	Upsert(ctx context.Context, col model.Collection, actingUsername string) error
}

// Status classifies the outcome of one sync cycle.
type Status string

const (
	// StatusSynced: remote was reached and every differing document was
	// pushed (permission denials excepted, see Result.Denied).
	StatusSynced Status = "synced"
	// StatusLocalOnly: the cycle completed against the local snapshot only,
	// either because the session has no remote or because remote was
	// unavailable mid-cycle.
	StatusLocalOnly Status = "local-only"
	// StatusFailed: the local snapshot itself could not be read or written.
	StatusFailed Status = "failed"
)

// Result reports one cycle. Denied lists the ids of collections the remote
// refused on permission grounds; those writes are terminal for this cycle
// but never abort the rest of the batch.
type Result struct {
	Status Status
	Denied []string
	Err    error
}

// Engine runs sync cycles for a single user. Cycles are serialized by an
// internal mutex, so a burst of change notifications degrades to
// back-to-back cycles rather than interleaved ones.
type Engine struct {
	username string
	local    LocalStore
	remote   RemoteStore
	logger   logging.Logger

	// onRefresh, when set, is invoked after every completed cycle so a
	// presentation layer can re-render from the fresh snapshot. It is called
	// outside the cycle lock.
	onRefresh func()

	mu       sync.RWMutex
	snapshot []model.Collection
}

// NewEngine wires an engine for username. remote may be nil for guest or
// degraded sessions; onRefresh may be nil.
func NewEngine(username string, local LocalStore, remote RemoteStore, logger logging.Logger, onRefresh func()) *Engine {
	return &Engine{
		username:  username,
		local:     local,
		remote:    remote,
		logger:    logger.With("component", "syncengine", "user", username),
		onRefresh: onRefresh,
	}
}

// Username returns the user the engine syncs for.
func (e *Engine) Username() string {
	return e.username
}

// Sync runs one full cycle and returns its outcome. Store failures never
// escape as panics or unclassified errors; they are folded into the Result.
func (e *Engine) Sync(ctx context.Context) Result {
	e.mu.Lock()
	res := e.cycle(ctx)
	e.mu.Unlock()

	if e.onRefresh != nil {
		e.onRefresh()
	}
	return res
}

func (e *Engine) cycle(ctx context.Context) Result {
	local, err := e.local.Load(ctx, e.username)
	if err != nil {
		e.logger.Error(ctx, "load local snapshot", "error", err)
		return Result{Status: StatusFailed, Err: fmt.Errorf("load local: %w", err)}
	}

	var (
		fetched      []model.Collection
		remoteOnline bool
	)
	if e.remote != nil {
		fetched, err = e.remote.FetchVisible(ctx, e.username)
		switch {
		case errors.Is(err, common.ErrRemoteUnavailable):
			e.logger.Warn(ctx, "remote unavailable, syncing locally")
		case err != nil:
			e.logger.Error(ctx, "fetch remote", "error", err)
		default:
			remoteOnline = true
		}
	}

	merged := merge.Collections(local, fetched)

	// Local first: even if every remote write below fails, the device keeps
	// the merged view.
	if err := e.local.Save(ctx, e.username, merged); err != nil {
		e.logger.Error(ctx, "save local snapshot", "error", err)
		return Result{Status: StatusFailed, Err: fmt.Errorf("save local: %w", err)}
	}
	e.snapshot = merged

	if !remoteOnline {
		return Result{Status: StatusLocalOnly}
	}

	remoteByID := make(map[string]model.Collection, len(fetched))
	for _, c := range fetched {
		remoteByID[c.ID] = c
	}

	var denied []string
	for _, col := range merged {
		if prev, ok := remoteByID[col.ID]; ok && col.ContentEquals(prev) {
			continue
		}
		err := e.remote.Upsert(ctx, col, e.username)
		switch {
		case errors.Is(err, common.ErrPermissionDenied):
			e.logger.Warn(ctx, "remote rejected write", "collection", col.ID)
			denied = append(denied, col.ID)
		case errors.Is(err, common.ErrRemoteUnavailable):
			e.logger.Warn(ctx, "remote lost mid-cycle", "collection", col.ID)
			return Result{Status: StatusLocalOnly, Denied: denied}
		case err != nil:
			e.logger.Error(ctx, "upsert collection", "collection", col.ID, "error", err)
			return Result{Status: StatusLocalOnly, Denied: denied, Err: err}
		}
	}

	return Result{Status: StatusSynced, Denied: denied}
}

// Snapshot returns a deep copy of the merged collections from the last
// completed cycle, tombstones included.
func (e *Engine) Snapshot() []model.Collection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.Collection, 0, len(e.snapshot))
	for _, c := range e.snapshot {
		out = append(out, c.Clone())
	}
	return out
}

// Visible returns the collections the session user currently sees, sorted
// by title, from the last snapshot.
func (e *Engine) Visible() []model.Collection {
	cols := model.VisibleCollections(e.Snapshot(), e.username)
	model.SortByTitle(cols)
	return cols
}

// ActiveItems returns the non-deleted items of the given collection in
// creation order, or common.ErrNotFound if the collection is not in the
// snapshot or not visible to the user.
func (e *Engine) ActiveItems(collectionID string) ([]model.Item, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, c := range e.snapshot {
		if c.ID == collectionID {
			if !c.VisibleTo(e.username) {
				return nil, common.ErrNotFound
			}
			return c.ActiveItems(), nil
		}
	}
	return nil, common.ErrNotFound
}

// Mutate applies fn to the snapshot copy, saves it locally, and runs a
// cycle to push the change. fn receives the current visible-or-not full
// snapshot and returns the replacement list. Errors from fn abort without
// touching the stores.
func (e *Engine) Mutate(ctx context.Context, fn func(cols []model.Collection) ([]model.Collection, error)) (Result, error) {
	e.mu.Lock()
	cols := make([]model.Collection, 0, len(e.snapshot))
	for _, c := range e.snapshot {
		cols = append(cols, c.Clone())
	}
	next, err := fn(cols)
	if err != nil {
		e.mu.Unlock()
		return Result{}, err
	}
	if err := e.local.Save(ctx, e.username, next); err != nil {
		e.mu.Unlock()
		return Result{Status: StatusFailed, Err: err}, err
	}
	e.snapshot = next
	res := e.cycle(ctx)
	e.mu.Unlock()

	if e.onRefresh != nil {
		e.onRefresh()
	}
	return res, nil
}
