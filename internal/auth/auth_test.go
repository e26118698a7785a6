package auth

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/floatnote/floatnote/internal/common"
	"github.com/floatnote/floatnote/internal/logging"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newServiceWithMock(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewService(db, logger), mock
}

const insertUser = `INSERT INTO users \(username, password_hash, friend_usernames\) VALUES \(\$1, \$2, '\[\]'\)`
const selectHash = `SELECT password_hash FROM users WHERE username = \$1`

func TestRegister_InsertsHashedPassword(t *testing.T) {
	s, mock := newServiceWithMock(t)

	mock.ExpectExec(insertUser).
		WithArgs("alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Register(context.Background(), "alice", "s3cret"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_DuplicateUsername(t *testing.T) {
	s, mock := newServiceWithMock(t)

	mock.ExpectExec(insertUser).
		WithArgs("alice", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.Register(context.Background(), "alice", "s3cret")
	assert.ErrorIs(t, err, common.ErrUsernameTaken)
}

func TestRegister_RejectsEmptyInput(t *testing.T) {
	s, _ := newServiceWithMock(t)

	assert.ErrorIs(t, s.Register(context.Background(), "  ", "pw"), common.ErrInvalidCredentials)
	assert.ErrorIs(t, s.Register(context.Background(), "alice", ""), common.ErrInvalidCredentials)
}

func TestLogin_AcceptsMatchingPassword(t *testing.T) {
	s, mock := newServiceWithMock(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery(selectHash).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(string(hash)))

	require.NoError(t, s.Login(context.Background(), "alice", "s3cret"))
}

func TestLogin_UniformFailureForUnknownUserAndBadPassword(t *testing.T) {
	s, mock := newServiceWithMock(t)

	mock.ExpectQuery(selectHash).WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	assert.ErrorIs(t, s.Login(context.Background(), "ghost", "pw"), common.ErrInvalidCredentials)

	hash, err := bcrypt.GenerateFromPassword([]byte("right"), bcrypt.MinCost)
	require.NoError(t, err)
	mock.ExpectQuery(selectHash).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(string(hash)))
	assert.ErrorIs(t, s.Login(context.Background(), "alice", "wrong"), common.ErrInvalidCredentials)
}
