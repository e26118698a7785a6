// Package share maintains a collection's recipient list. Only the owner may
// change who a collection is shared with, and only accepted friends are
// valid recipients; the change is applied locally and pushed through the
// remote store in one step.
package share

import (
	"context"
	"fmt"
	"slices"

	"github.com/floatnote/floatnote/internal/common"
	"github.com/floatnote/floatnote/internal/logging"
	"github.com/floatnote/floatnote/internal/model"
)

// FriendLister supplies the accepted-friend list used to validate
// recipients.
type FriendLister interface {
	Friends(ctx context.Context, username string) ([]string, error)
}

// Pusher writes one collection to the shared store.
type Pusher interface {
	Upsert(ctx context.Context, col model.Collection, actingUsername string) error
}

// Service applies share-list changes.
type Service struct {
	friends FriendLister
	remote  Pusher
	logger  logging.Logger
}

func NewService(friends FriendLister, remote Pusher, logger logging.Logger) *Service {
	return &Service{friends: friends, remote: remote, logger: logger.With("component", "share")}
}

// SetRecipients replaces col's share list on behalf of actingUsername and
// pushes the updated document. Non-owners are rejected locally before any
// network write; recipients outside the acting user's friend list are
// rejected as well. The updated collection is returned on success.
func (s *Service) SetRecipients(ctx context.Context, col model.Collection, recipients []string, actingUsername string) (model.Collection, error) {
	if !col.IsOwner(actingUsername) {
		return model.Collection{}, common.ErrPermissionDenied
	}

	friendList, err := s.friends.Friends(ctx, actingUsername)
	if err != nil {
		return model.Collection{}, fmt.Errorf("load friends: %w", err)
	}
	for _, r := range recipients {
		if !slices.Contains(friendList, r) {
			return model.Collection{}, fmt.Errorf("%w: %q is not a friend", common.ErrPermissionDenied, r)
		}
	}

	updated := col.Clone()
	if err := updated.SetSharedWith(recipients, actingUsername); err != nil {
		return model.Collection{}, err
	}

	if err := s.remote.Upsert(ctx, updated, actingUsername); err != nil {
		return model.Collection{}, err
	}

	s.logger.Info(ctx, "share list updated",
		"collection", updated.ID, "recipients", len(recipients))
	return updated, nil
}
