// Package friends manages friendship requests in the shared store: send,
// list pending, accept, decline. An accepted friendship is recorded on both
// user rows, and only friends can be offered as sharing recipients.
package friends

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/floatnote/floatnote/internal/common"
	"github.com/floatnote/floatnote/internal/dbx"
	"github.com/floatnote/floatnote/internal/logging"
	"github.com/google/uuid"
)

// Request statuses as stored in friend_requests.status.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
)

// Request is one friendship request.
type Request struct {
	ID        string
	Sender    string
	Recipient string
	Status    string
	SentAt    time.Time
}

// Service performs friendship operations over the shared store.
type Service struct {
	db     *sql.DB
	logger logging.Logger
}

func NewService(db *sql.DB, logger logging.Logger) *Service {
	return &Service{db: db, logger: logger.With("component", "friends")}
}

// Send creates a pending request from sender to recipient. Rejected when
// the recipient is the sender (case-insensitive), does not exist, or a
// pending/accepted request already links the two users in either direction.
func (s *Service) Send(ctx context.Context, sender, recipient string) error {
	recipient = strings.TrimSpace(recipient)
	if strings.EqualFold(sender, recipient) {
		return fmt.Errorf("%w: cannot befriend yourself", common.ErrRequestExists)
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`,
		recipient).Scan(&exists)
	if err != nil {
		return fmt.Errorf("lookup recipient: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: no such user %q", common.ErrNotFound, recipient)
	}

	var duplicate bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM friend_requests
			WHERE status IN ('pending', 'accepted')
			AND ((sender_username = $1 AND recipient_username = $2)
			  OR (sender_username = $2 AND recipient_username = $1))
		)`, sender, recipient).Scan(&duplicate)
	if err != nil {
		return fmt.Errorf("check duplicates: %w", err)
	}
	if duplicate {
		return common.ErrRequestExists
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO friend_requests (id, sender_username, recipient_username, status, sent_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), sender, recipient, StatusPending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}

	s.logger.Info(ctx, "friend request sent", "from", sender, "to", recipient)
	return nil
}

// Pending lists the pending requests addressed to username, oldest first.
func (s *Service) Pending(ctx context.Context, username string) ([]Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_username, recipient_username, status, sent_at
		FROM friend_requests
		WHERE recipient_username = $1 AND status = 'pending'
		ORDER BY sent_at`, username)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var result []Request
	for rows.Next() {
		var r Request
		if err := rows.Scan(&r.ID, &r.Sender, &r.Recipient, &r.Status, &r.SentAt); err != nil {
			return nil, err
		}
		r.SentAt = r.SentAt.UTC()
		result = append(result, r)
	}
	return result, rows.Err()
}

// Accept marks the request accepted and records the friendship on both user
// rows, all in one transaction. Only the recipient of a pending request may
// accept it.
func (s *Service) Accept(ctx context.Context, requestID, actingUsername string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var sender, recipient string
		err := tx.QueryRowContext(ctx, `
			SELECT sender_username, recipient_username FROM friend_requests
			WHERE id = $1 AND status = 'pending' FOR UPDATE`,
			requestID).Scan(&sender, &recipient)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return common.ErrNotFound
		case err != nil:
			return err
		}
		if recipient != actingUsername {
			return common.ErrPermissionDenied
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE friend_requests SET status = 'accepted' WHERE id = $1`,
			requestID); err != nil {
			return err
		}

		if err := addFriend(ctx, tx, sender, recipient); err != nil {
			return err
		}
		if err := addFriend(ctx, tx, recipient, sender); err != nil {
			return err
		}

		s.logger.Info(ctx, "friend request accepted", "from", sender, "to", recipient)
		return nil
	})
}

// addFriend appends friend to username's friend list, skipping duplicates.
func addFriend(ctx context.Context, tx dbx.DBTX, username, friend string) error {
	var listJSON []byte
	err := tx.QueryRowContext(ctx,
		`SELECT friend_usernames FROM users WHERE username = $1 FOR UPDATE`,
		username).Scan(&listJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: no such user %q", common.ErrNotFound, username)
	}
	if err != nil {
		return err
	}

	var list []string
	if err := json.Unmarshal(listJSON, &list); err != nil {
		return fmt.Errorf("decode friend list: %w", err)
	}
	if slices.Contains(list, friend) {
		return nil
	}
	list = append(list, friend)

	updated, err := json.Marshal(list)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE users SET friend_usernames = $1 WHERE username = $2`,
		updated, username)
	return err
}

// Decline removes a pending request. Only the recipient may decline.
func (s *Service) Decline(ctx context.Context, requestID, actingUsername string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM friend_requests
		WHERE id = $1 AND recipient_username = $2 AND status = 'pending'`,
		requestID, actingUsername)
	if err != nil {
		return fmt.Errorf("decline request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// Friends returns username's accepted friends, sorted.
func (s *Service) Friends(ctx context.Context, username string) ([]string, error) {
	var listJSON []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT friend_usernames FROM users WHERE username = $1`,
		username).Scan(&listJSON)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%w: no such user %q", common.ErrNotFound, username)
	case err != nil:
		return nil, err
	}

	var list []string
	if err := json.Unmarshal(listJSON, &list); err != nil {
		return nil, fmt.Errorf("decode friend list: %w", err)
	}
	slices.Sort(list)
	return list, nil
}
