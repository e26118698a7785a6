// Package settings stores per-user display preferences in a local JSON
// file, one file per username. Like the snapshot store it is forgiving:
// a missing or corrupt file loads as the defaults, never as an error.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/floatnote/floatnote/internal/logging"
)

// Settings is the per-user preferences blob.
type Settings struct {
	// ActiveCollectionID remembers which collection the reminder loop was
	// last running on.
	ActiveCollectionID string `json:"activeCollectionId"`

	// StartFontSize is the initial font size of a displayed reminder.
	StartFontSize int `json:"startFontSize"`

	// GlowEnabled toggles the glow effect on displayed reminders.
	GlowEnabled bool `json:"glowEnabled"`
}

// Defaults returns the out-of-the-box preferences.
func Defaults() Settings {
	return Settings{StartFontSize: 60, GlowEnabled: true}
}

// Store reads and writes per-user settings under dir.
type Store struct {
	dir    string
	logger logging.Logger
	mu     sync.Mutex
}

func NewStore(dir string, logger logging.Logger) *Store {
	return &Store{dir: dir, logger: logger.With("component", "settings")}
}

func (s *Store) path(username string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.':
			return '_'
		}
		return r
	}, username)
	return filepath.Join(s.dir, "settings_"+safe+".json")
}

// Load returns username's settings, falling back to Defaults when the file
// is absent or undecodable. Fields missing from the file keep their default
// values.
func (s *Store) Load(ctx context.Context, username string) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Defaults()
	data, err := os.ReadFile(s.path(username))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn(ctx, "settings unreadable, using defaults", "user", username, "error", err)
		}
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.Warn(ctx, "settings corrupt, using defaults", "user", username, "error", err)
		return Defaults()
	}
	return out
}

// Save replaces username's settings file, temp file plus rename.
func (s *Store) Save(ctx context.Context, username string, settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	final := s.path(username)
	tmp := final + ".tmp"

	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace settings: %w", err)
	}

	s.logger.Debug(ctx, "settings saved", "user", username)
	return nil
}
