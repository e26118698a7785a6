// Package local persists the authoritative local snapshot of a user's
// reminder collections to a JSON file, one file per username, and reloads
// it at startup.
//
// The store is deliberately forgiving: a missing or corrupt file loads as
// an empty snapshot, never as an error the caller has to handle — sync is
// additive, so an empty local state merges harmlessly with remote. Saves
// replace the whole file; concurrent writers within the process are
// serialized by an internal mutex.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/floatnote/floatnote/internal/logging"
	"github.com/floatnote/floatnote/internal/model"
)

// Store reads and writes per-user collection snapshots under dir.
type Store struct {
	dir    string
	logger logging.Logger
	mu     sync.Mutex
}

// NewStore creates a store rooted at dir. The directory must exist.
func NewStore(dir string, logger logging.Logger) *Store {
	return &Store{dir: dir, logger: logger.With("component", "localstore")}
}

// path returns the snapshot file for username. The username is flattened to
// a safe file name; usernames are already validated at registration, this
// just keeps a hostile name from escaping dir.
func (s *Store) path(username string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.':
			return '_'
		}
		return r
	}, username)
	return filepath.Join(s.dir, "collections_"+safe+".json")
}

// Load returns the saved snapshot for username. A missing file or
// undecodable content yields an empty list and a nil error; only I/O
// failures other than non-existence are reported.
func (s *Store) Load(ctx context.Context, username string) ([]model.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(username))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read local snapshot: %w", err)
	}

	var cols []model.Collection
	if err := json.Unmarshal(data, &cols); err != nil {
		s.logger.Warn(ctx, "local snapshot is corrupt, starting empty", "user", username, "error", err)
		return nil, nil
	}

	return cols, nil
}

// Save atomically replaces the snapshot for username with cols. The file is
// written next to its final location and renamed into place so a crash
// mid-write never leaves a truncated snapshot.
func (s *Store) Save(ctx context.Context, username string, cols []model.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(cols, "", "  ")
	if err != nil {
		return fmt.Errorf("encode local snapshot: %w", err)
	}

	final := s.path(username)
	tmp := final + ".tmp"

	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write local snapshot: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace local snapshot: %w", err)
	}

	s.logger.Debug(ctx, "local snapshot saved", "user", username, "collections", len(cols))
	return nil
}
