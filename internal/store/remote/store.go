// Package remote persists reminder collections in the shared multi-tenant
// PostgreSQL store, scoped by the ownership/sharing rules, and exposes the
// LISTEN/NOTIFY change feed other devices' writes arrive on.
//
// Each collection is one row; the item list travels inside the row as a
// JSON document, so a replace-or-insert of a single collection is atomic at
// the document level. There is no cross-collection transaction, matching
// the merge engine's per-document write-back.
package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/floatnote/floatnote/internal/common"
	"github.com/floatnote/floatnote/internal/dbx"
	"github.com/floatnote/floatnote/internal/logging"
	"github.com/floatnote/floatnote/internal/model"
	"github.com/floatnote/floatnote/internal/store/remote/migrations"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
)

// NotifyChannel is the LISTEN/NOTIFY channel the change-feed trigger
// publishes collection mutations on.
const NotifyChannel = "floatnote_collections"

// Store implements the remote half of the sync engine over PostgreSQL.
type Store struct {
	db     *sql.DB
	dsn    string
	logger logging.Logger
}

// gooseUpContext is a seam for testing migration failures.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Open connects to the shared store, probes connectivity with a bounded
// exponential backoff, and applies pending schema migrations. An
// unreachable endpoint returns common.ErrRemoteUnavailable so the caller
// can degrade to local-only mode instead of crashing.
func Open(ctx context.Context, dsn string, logger logging.Logger) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open remote store: %w", err)
	}

	s := &Store{db: db, dsn: dsn, logger: logger.With("component", "remotestore")}

	if err := s.probe(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := s.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return s, nil
}

// probe pings the backing service, retrying transient failures with
// exponential backoff before declaring the remote unavailable.
func (s *Store) probe(ctx context.Context) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(300*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := s.db.PingContext(pingCtx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn(ctx, "remote store unreachable", "error", err)
		return common.ErrRemoteUnavailable
	}
	return nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, s.db, ".")
}

// Ping probes connectivity once, without retries. Used by the online
// status watcher.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return common.ErrRemoteUnavailable
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DSN returns the connection string the store was opened with; the change
// feed listener dials its own dedicated connection from it.
func (s *Store) DSN() string {
	return s.dsn
}

// DB exposes the connection pool for the services sharing this store's
// schema (auth, friends).
func (s *Store) DB() *sql.DB {
	return s.db
}

const collectionColumns = `id, title, owner_username, shared_with, items, created_at, last_modified, is_deleted`

func scanCollection(scan func(dest ...any) error) (model.Collection, error) {
	var (
		c          model.Collection
		sharedJSON []byte
		itemsJSON  []byte
	)
	if err := scan(&c.ID, &c.Title, &c.OwnerUsername, &sharedJSON, &itemsJSON,
		&c.CreatedAt, &c.LastModified, &c.IsDeleted); err != nil {
		return model.Collection{}, err
	}
	if err := json.Unmarshal(sharedJSON, &c.SharedWith); err != nil {
		return model.Collection{}, fmt.Errorf("decode shared_with: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &c.Items); err != nil {
		return model.Collection{}, fmt.Errorf("decode items: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.LastModified = c.LastModified.UTC()
	return c, nil
}

// FetchVisible returns every collection in username's scope: rows where the
// user is the owner or appears in the share list. Tombstoned rows are
// included so a deletion made on another device participates in the merge
// and propagates; read-side views filter them out via model.VisibleTo.
func (s *Store) FetchVisible(ctx context.Context, username string) ([]model.Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections
		WHERE (owner_username = $1 OR shared_with @> to_jsonb($1::text))
		ORDER BY title`

	rows, err := s.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	var result []model.Collection
	for rows.Next() {
		c, err := scanCollection(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError(err)
	}
	return result, nil
}

// Upsert performs an idempotent replace-or-insert of one collection keyed
// by its id, after checking that actingUsername may write it. A user with
// neither ownership nor share access gets common.ErrPermissionDenied and
// no write happens. The check and the replace run in one transaction, so a
// concurrent share revocation cannot race the write. Ownership is fixed at
// creation: the owner column is written on first insert only and never
// touched by updates, whatever the payload claims.
func (s *Store) Upsert(ctx context.Context, col model.Collection, actingUsername string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var (
			owner      string
			sharedJSON []byte
		)
		err := tx.QueryRowContext(ctx,
			`SELECT owner_username, shared_with FROM collections WHERE id = $1 FOR UPDATE`,
			col.ID).Scan(&owner, &sharedJSON)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			// First push of this document: the acting user must satisfy the
			// write rule of the document it is sending.
			if !col.CanWrite(actingUsername) {
				return common.ErrPermissionDenied
			}
		case err != nil:
			return err
		default:
			var shared []string
			if err := json.Unmarshal(sharedJSON, &shared); err != nil {
				return fmt.Errorf("decode shared_with: %w", err)
			}
			stored := model.Collection{OwnerUsername: owner, SharedWith: shared}
			if !stored.CanWrite(actingUsername) {
				return common.ErrPermissionDenied
			}
		}

		sharedJSON, err = json.Marshal(sharedOrEmpty(col.SharedWith))
		if err != nil {
			return err
		}
		itemsJSON, err := json.Marshal(itemsOrEmpty(col.Items))
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO collections (id, title, owner_username, shared_with, items, created_at, last_modified, is_deleted)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id)
			DO UPDATE SET
				title = EXCLUDED.title,
				shared_with = EXCLUDED.shared_with,
				items = EXCLUDED.items,
				last_modified = EXCLUDED.last_modified,
				is_deleted = EXCLUDED.is_deleted`,
			col.ID, col.Title, col.OwnerUsername, sharedJSON, itemsJSON,
			col.CreatedAt, col.LastModified, col.IsDeleted)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n != 1 {
			return fmt.Errorf("unexpected rows affected: %d", n)
		}
		return nil
	})
	if err != nil {
		return s.mapError(err)
	}
	return nil
}

// sharedOrEmpty keeps JSON columns as [] rather than null.
func sharedOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func itemsOrEmpty(items []model.Item) []model.Item {
	if items == nil {
		return []model.Item{}
	}
	return items
}

// mapError classifies driver failures: connectivity problems become
// common.ErrRemoteUnavailable (callers skip the cycle), permission and
// other sentinel errors pass through, anything else is wrapped.
func (s *Store) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrPermissionDenied) || errors.Is(err, common.ErrNotFound) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return common.ErrRemoteUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return common.ErrRemoteUnavailable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "08") {
		// SQLSTATE class 08: connection exceptions
		return common.ErrRemoteUnavailable
	}

	return fmt.Errorf("remote store: %w", err)
}
