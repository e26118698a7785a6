package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/floatnote/floatnote/internal/common"
	"github.com/floatnote/floatnote/internal/config"
	"github.com/floatnote/floatnote/internal/logging"
	"github.com/floatnote/floatnote/internal/settings"
	"github.com/floatnote/floatnote/internal/store/local"
	floatsync "github.com/floatnote/floatnote/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuth struct {
	registerErr error
	loginErr    error
	lastUser    string
}

func (s *stubAuth) Register(_ context.Context, username, _ string) error {
	s.lastUser = username
	return s.registerErr
}

func (s *stubAuth) Login(_ context.Context, username, _ string) error {
	s.lastUser = username
	return s.loginErr
}

// newTestApp builds an app with a real local store in a temp dir, no remote,
// and scripted terminal input. Output lines are captured.
func newTestApp(t *testing.T, input string) (*App, *[]string) {
	t.Helper()

	var lines []string
	origPrint := printlnFn
	printlnFn = func(args ...any) (int, error) {
		lines = append(lines, fmt.Sprintln(args...))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = origPrint })

	origRead := readPassword
	readPassword = func(int) ([]byte, error) { return []byte("pw"), nil }
	t.Cleanup(func() { readPassword = origRead })

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	dir := t.TempDir()

	a := &App{
		config:   &config.Config{},
		logger:   logger,
		local:    local.NewStore(dir, logger),
		settings: settings.NewStore(dir, logger),
		coord:    floatsync.NewCoordinator(logger),
		Mode:     ModeOffline,
		reader:   bufio.NewReader(strings.NewReader(input)),
		out:      io.Discard,
	}
	t.Cleanup(a.coord.End)
	return a, &lines
}

func output(lines *[]string) string {
	return strings.Join(*lines, "")
}

func TestGuestSession_EndToEnd(t *testing.T) {
	// scripted input: collection title, pick #1, reminder text + seconds,
	// delete reminder #1
	a, lines := newTestApp(t, strings.Join([]string{
		"Chores",
		"1",
		"water the plants",
		"5",
		"1",
	}, "\n")+"\n")
	ctx := context.Background()

	require.NoError(t, a.Guest(ctx))
	require.True(t, a.isLoggedIn())
	assert.Equal(t, ModeGuest, a.Mode)

	require.NoError(t, a.AddCollection(ctx))
	require.NoError(t, a.Use(ctx))
	require.NoError(t, a.AddReminder(ctx))

	require.NoError(t, a.Items(ctx))
	assert.Contains(t, output(lines), "water the plants")

	require.NoError(t, a.DeleteReminder(ctx))
	*lines = nil
	require.NoError(t, a.Items(ctx))
	assert.NotContains(t, output(lines), "water the plants")
}

func TestCommandsRequireSession(t *testing.T) {
	a, _ := newTestApp(t, "")

	assert.ErrorIs(t, a.List(context.Background()), errNoSession)
	assert.ErrorIs(t, a.Sync(context.Background()), errNoSession)
	assert.ErrorIs(t, a.Share(context.Background()), errNoSession)
}

func TestRegisterAndLoginNeedOnlineMode(t *testing.T) {
	a, lines := newTestApp(t, "alice\n")

	assert.ErrorIs(t, a.Register(context.Background()), errNotOnline)
	assert.ErrorIs(t, a.Login(context.Background()), errNotOnline)
	assert.Contains(t, output(lines), "guest or offline")
}

func TestLogin_StartsSessionOnSuccess(t *testing.T) {
	a, _ := newTestApp(t, "alice\n")
	a.auth = &stubAuth{}
	a.Mode = ModeOnline

	require.NoError(t, a.Login(context.Background()))

	assert.True(t, a.isLoggedIn())
	assert.Equal(t, "alice", a.username)
	assert.Equal(t, "alice", a.coord.ActiveUser())
}

func TestLogin_InvalidCredentialsKeepsSessionOut(t *testing.T) {
	a, lines := newTestApp(t, "alice\n")
	a.auth = &stubAuth{loginErr: common.ErrInvalidCredentials}
	a.Mode = ModeOnline

	assert.ErrorIs(t, a.Login(context.Background()), common.ErrInvalidCredentials)
	assert.False(t, a.isLoggedIn())
	assert.Contains(t, output(lines), "Invalid username or password")
}

func TestRegister_TakenUsername(t *testing.T) {
	a, lines := newTestApp(t, "alice\n")
	a.auth = &stubAuth{registerErr: common.ErrUsernameTaken}
	a.Mode = ModeOnline

	assert.ErrorIs(t, a.Register(context.Background()), common.ErrUsernameTaken)
	assert.False(t, a.isLoggedIn())
	assert.Contains(t, output(lines), "taken")
}

func TestShare_BlockedInGuestMode(t *testing.T) {
	a, _ := newTestApp(t, "")
	require.NoError(t, a.Guest(context.Background()))

	assert.ErrorIs(t, a.Share(context.Background()), errNotOnline)
}

func TestLogout_EndsSession(t *testing.T) {
	a, _ := newTestApp(t, "")
	require.NoError(t, a.Guest(context.Background()))
	require.True(t, a.isLoggedIn())

	require.NoError(t, a.Logout(context.Background()))
	assert.False(t, a.isLoggedIn())
	assert.Equal(t, "", a.coord.ActiveUser())
	assert.Equal(t, ModeOffline, a.Mode)
}

func TestGuestDataPersistsAcrossSessions(t *testing.T) {
	a, lines := newTestApp(t, "Chores\n")
	ctx := context.Background()

	require.NoError(t, a.Guest(ctx))
	require.NoError(t, a.AddCollection(ctx))
	require.NoError(t, a.Logout(ctx))

	require.NoError(t, a.Guest(ctx))
	*lines = nil
	require.NoError(t, a.List(ctx))
	assert.Contains(t, output(lines), "Chores")
}
