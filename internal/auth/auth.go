// Package auth registers and verifies user credentials against the shared
// store's users table. Passwords are stored as bcrypt hashes; login failures
// are reported uniformly so an attacker cannot distinguish an unknown
// username from a wrong password.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/floatnote/floatnote/internal/common"
	"github.com/floatnote/floatnote/internal/dbx"
	"github.com/floatnote/floatnote/internal/logging"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

// uniqueViolation is the SQLSTATE for a unique constraint breach.
const uniqueViolation = "23505"

// generateFromPassword is a seam so tests can force hashing failures.
var generateFromPassword = bcrypt.GenerateFromPassword

// Service performs credential operations over the shared store.
type Service struct {
	db     dbx.DBTX
	logger logging.Logger
}

func NewService(db dbx.DBTX, logger logging.Logger) *Service {
	return &Service{db: db, logger: logger.With("component", "auth")}
}

// Register creates a new user row. A username already in use returns
// common.ErrUsernameTaken.
func (s *Service) Register(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return fmt.Errorf("%w: empty username or password", common.ErrInvalidCredentials)
	}

	hash, err := generateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, friend_usernames) VALUES ($1, $2, '[]')`,
		username, string(hash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrUsernameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user", username)
	return nil
}

// Login verifies the credentials. Unknown usernames and wrong passwords
// both return common.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)

	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE username = $1`,
		username).Scan(&hash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return common.ErrInvalidCredentials
	case err != nil:
		return fmt.Errorf("lookup user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return common.ErrInvalidCredentials
	}

	s.logger.Info(ctx, "user logged in", "user", username)
	return nil
}
