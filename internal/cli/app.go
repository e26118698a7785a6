// Package cli is the terminal front end of the FloatNote sync core: a small
// REPL over the session coordinator, sync engine and the supporting
// services. It stands in for the desktop GUI the core was built for.
package cli

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/floatnote/floatnote/internal/auth"
	"github.com/floatnote/floatnote/internal/common"
	"github.com/floatnote/floatnote/internal/config"
	"github.com/floatnote/floatnote/internal/filex"
	"github.com/floatnote/floatnote/internal/friends"
	"github.com/floatnote/floatnote/internal/logging"
	"github.com/floatnote/floatnote/internal/model"
	"github.com/floatnote/floatnote/internal/settings"
	"github.com/floatnote/floatnote/internal/share"
	"github.com/floatnote/floatnote/internal/store/local"
	"github.com/floatnote/floatnote/internal/store/remote"
	floatsync "github.com/floatnote/floatnote/internal/sync"
)

// Mode tracks remote reachability for the prompt and the status command.
type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
	ModeGuest   Mode = "guest"
)

const guestUsername = "guest"

// remoteBackend is what the app needs from the shared store. *remote.Store
// satisfies it; tests substitute fakes.
type remoteBackend interface {
	floatsync.RemoteStore
	Ping(ctx context.Context) error
	DSN() string
	DB() *sql.DB
	Close() error
}

type authService interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) error
}

type friendService interface {
	Send(ctx context.Context, sender, recipient string) error
	Pending(ctx context.Context, username string) ([]friends.Request, error)
	Accept(ctx context.Context, requestID, actingUsername string) error
	Decline(ctx context.Context, requestID, actingUsername string) error
	Friends(ctx context.Context, username string) ([]string, error)
}

type shareService interface {
	SetRecipients(ctx context.Context, col model.Collection, recipients []string, actingUsername string) (model.Collection, error)
}

// seams for wiring tests
var (
	openRemote      = func(ctx context.Context, dsn string, logger logging.Logger) (remoteBackend, error) { return remote.Open(ctx, dsn, logger) }
	newChangeSource = func(dsn string, logger logging.Logger) floatsync.ChangeSource { return remote.NewListener(dsn, logger) }
)

// App owns the interactive session: stores, services, the coordinator and
// the current user.
type App struct {
	config   *config.Config
	logger   logging.Logger
	local    *local.Store
	settings *settings.Store
	remote   remoteBackend
	auth     authService
	friendsS friendService
	shareS   shareService
	coord    *floatsync.Coordinator

	engine   *floatsync.Engine
	username string
	Mode     Mode

	reader *bufio.Reader
	out    io.Writer
}

// NewApp wires the application from config. An unreachable remote is not an
// error: the app starts in offline mode and every session runs local-only
// until connectivity returns at the next start.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	dataDir := c.DataDir
	if dataDir == "" {
		var err error
		dataDir, err = filex.AppDataDir()
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	a := &App{
		config:   c,
		logger:   logger,
		local:    local.NewStore(dataDir, logger),
		settings: settings.NewStore(dataDir, logger),
		coord:    floatsync.NewCoordinator(logger),
		Mode:     ModeOffline,
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
	}

	if c.RemoteDSN != "" {
		connectCtx, cancel := context.WithTimeout(ctx, c.ConnectTimeout)
		defer cancel()
		r, err := openRemote(connectCtx, c.RemoteDSN, logger)
		switch {
		case errors.Is(err, common.ErrRemoteUnavailable):
			logger.Warn(ctx, "remote unreachable, starting offline")
		case err != nil:
			return nil, err
		default:
			a.remote = r
			a.auth = auth.NewService(r.DB(), logger)
			a.friendsS = friends.NewService(r.DB(), logger)
			a.shareS = share.NewService(a.friendsS, r, logger)
			a.Mode = ModeOnline
		}
	}

	return a, nil
}

// Run starts the REPL and blocks until the user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	if a.remote != nil {
		go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
	}

	printlnFn("FloatNote (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.promptStatus, scanner)
}

// Close ends the active session and releases the remote pool.
func (a *App) Close() {
	a.coord.End()
	if a.remote != nil {
		_ = a.remote.Close()
	}
}

func (a *App) isLoggedIn() bool {
	return a.engine != nil
}

func (a *App) promptStatus() string {
	if !a.isLoggedIn() {
		return string(a.Mode)
	}
	return fmt.Sprintf("%s:%s", a.username, a.Mode)
}

func (a *App) setMode(mode Mode) {
	if a.Mode != mode {
		a.Mode = mode
		a.logger.Info(context.Background(), "connectivity changed", "mode", string(mode))
	}
}

// StartOnlineStatusWatcher probes the remote every interval and flips the
// mode between online and offline. Guest sessions are left alone.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if a.Mode == ModeGuest {
				continue
			}
			pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := a.remote.Ping(pingCtx)
			cancel()

			if err != nil {
				a.setMode(ModeOffline)
			} else {
				a.setMode(ModeOnline)
			}

		case <-ctx.Done():
			return
		}
	}
}

// beginSession builds the engine and, for authenticated online sessions,
// wires the change feed to automatic re-syncs. Any previous session is torn
// down first.
func (a *App) beginSession(ctx context.Context, username string, guest bool) {
	a.coord.End()

	var (
		engineRemote floatsync.RemoteStore
		source       floatsync.ChangeSource
	)
	if !guest && a.remote != nil {
		engineRemote = a.remote
		source = newChangeSource(a.remote.DSN(), a.logger)
	}

	a.username = username
	a.engine = floatsync.NewEngine(username, a.local, engineRemote, a.logger, nil)
	if guest {
		a.Mode = ModeGuest
	}

	engine := a.engine
	a.coord.Begin(username, source, func(ctx context.Context) {
		res := engine.Sync(ctx)
		a.logger.Debug(ctx, "change-triggered sync", "status", string(res.Status))
	})

	res := a.engine.Sync(ctx)
	a.report(res)
}

func (a *App) endSession() {
	a.coord.End()
	a.engine = nil
	a.username = ""
	if a.Mode == ModeGuest {
		a.Mode = ModeOffline
		if a.remote != nil {
			a.Mode = ModeOnline
		}
	}
}

// report prints the outcome of a sync cycle.
func (a *App) report(res floatsync.Result) {
	switch res.Status {
	case floatsync.StatusSynced:
		printlnFn("Synced.")
	case floatsync.StatusLocalOnly:
		printlnFn("Saved locally; remote not reached.")
	case floatsync.StatusFailed:
		printlnFn("Sync failed:", res.Err)
	}
	for _, id := range res.Denied {
		printlnFn("Not permitted to update collection", id)
	}
}

// activeCollection resolves the collection selected with "use".
func (a *App) activeCollection(ctx context.Context) (model.Collection, error) {
	st := a.settings.Load(ctx, a.username)
	if st.ActiveCollectionID == "" {
		return model.Collection{}, errors.New("no active collection, run 'use' first")
	}
	for _, c := range a.engine.Visible() {
		if c.ID == st.ActiveCollectionID {
			return c, nil
		}
	}
	return model.Collection{}, errors.New("active collection is gone, run 'use' again")
}

// renderCollections formats the numbered collection list.
func renderCollections(cols []model.Collection, username string) string {
	var buf bytes.Buffer
	for i, c := range cols {
		fmt.Fprintf(&buf, "%d. %s", i+1, c.Title)
		if c.OwnerUsername != username {
			fmt.Fprintf(&buf, " (shared by %s)", c.OwnerUsername)
		} else if len(c.SharedWith) > 0 {
			fmt.Fprintf(&buf, " (shared with %d)", len(c.SharedWith))
		}
		fmt.Fprintf(&buf, " [%d reminders]\n", len(c.ActiveItems()))
	}
	return buf.String()
}
