// Package common defines shared constants and sentinel errors used across
// the FloatNote sync core. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Remote store errors. ErrRemoteUnavailable means the backing service
	// could not be reached; callers skip the sync cycle instead of failing.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrPermissionDenied means the acting user may not write the document.
	// Terminal for that write; never retried.
	ErrPermissionDenied = errors.New("permission denied")

	// Auth errors.
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")

	// Friend request errors. ErrRequestExists covers a pending or already
	// accepted request in either direction.
	ErrRequestExists = errors.New("friend request already exists")

	// Notifier lifecycle errors.
	ErrNotifierStopped = errors.New("notifier stopped")
)
