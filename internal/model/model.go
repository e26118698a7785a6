// Package model defines the reminder entities shared by the local cache,
// the remote store and the merge engine: Item (a single reminder message)
// and Collection (a named set of items, the unit of sharing and sync).
//
// Records are never physically removed by this subsystem; deletions flip
// the IsDeleted tombstone so the deletion itself can propagate through
// merges. Every logical mutation must call Touch exactly once on the
// mutated record, and additionally on the owning Collection when an Item
// inside it changes.
package model

import (
	"slices"
	"strings"
	"time"

	"github.com/floatnote/floatnote/internal/common"
	"github.com/google/uuid"
)

// now is a clock seam so tests can freeze timestamps.
var now = func() time.Time { return time.Now().UTC() }

// Item is a single reminder message.
type Item struct {
	// ID is a globally unique identifier, immutable, assigned at creation.
	ID string `json:"id"`

	// Message is the reminder text.
	Message string `json:"message"`

	// DurationSeconds is the positive display duration.
	DurationSeconds int `json:"durationSeconds"`

	// OwnerUsername identifies the creator (authorization anchor).
	OwnerUsername string `json:"ownerUsername"`

	// CreatedAt and LastModified are UTC; LastModified >= CreatedAt always.
	CreatedAt    time.Time `json:"createdAt"`
	LastModified time.Time `json:"lastModified"`

	// IsDeleted marks the item as a tombstone.
	IsDeleted bool `json:"isDeleted"`
}

// NewItem creates an item owned by owner with a fresh identity and UTC
// timestamps.
func NewItem(owner, message string, durationSeconds int) Item {
	ts := now()
	return Item{
		ID:              uuid.NewString(),
		Message:         message,
		DurationSeconds: durationSeconds,
		OwnerUsername:   owner,
		CreatedAt:       ts,
		LastModified:    ts,
	}
}

// Touch bumps LastModified to the current UTC time.
func (i *Item) Touch() {
	i.LastModified = now()
}

// Equal reports identity equality: two items are the same record iff their
// IDs match.
func (i Item) Equal(other Item) bool {
	return i.ID == other.ID
}

// Collection is a named, ordered set of Items, the unit of sharing and sync.
type Collection struct {
	// ID is a globally unique identifier, immutable.
	ID string `json:"id"`

	// Title is the display name.
	Title string `json:"title"`

	// OwnerUsername is the user who may delete the collection, rename it,
	// or change SharedWith.
	OwnerUsername string `json:"ownerUsername"`

	// SharedWith lists usernames granted read/append access.
	SharedWith []string `json:"sharedWithUsernames"`

	// Items holds the contained reminders, unique by ID.
	Items []Item `json:"items"`

	// CreatedAt and LastModified are UTC; any mutation to the title,
	// membership, or any contained Item bumps LastModified.
	CreatedAt    time.Time `json:"createdAt"`
	LastModified time.Time `json:"lastModified"`

	// IsDeleted marks the collection as a tombstone.
	IsDeleted bool `json:"isDeleted"`
}

// NewCollection creates an empty collection owned by owner.
func NewCollection(owner, title string) Collection {
	ts := now()
	return Collection{
		ID:            uuid.NewString(),
		Title:         title,
		OwnerUsername: owner,
		CreatedAt:     ts,
		LastModified:  ts,
	}
}

// Touch bumps LastModified to the current UTC time.
func (c *Collection) Touch() {
	c.LastModified = now()
}

// Equal reports identity equality by ID.
func (c Collection) Equal(other Collection) bool {
	return c.ID == other.ID
}

// CanRead reports whether username may read or append to the collection:
// the owner plus everyone in SharedWith.
func (c Collection) CanRead(username string) bool {
	if c.OwnerUsername == username {
		return true
	}
	return slices.Contains(c.SharedWith, username)
}

// CanWrite reports whether username may write the collection document.
// The write set equals the read set; finer-grained rules (rename, delete,
// share) are enforced by the mutating methods below.
func (c Collection) CanWrite(username string) bool {
	return c.CanRead(username)
}

// IsOwner reports whether username owns the collection.
func (c Collection) IsOwner(username string) bool {
	return c.OwnerUsername == username
}

// VisibleTo reports whether username sees the collection in read-side
// views: members only, tombstones filtered out.
func (c Collection) VisibleTo(username string) bool {
	return c.CanRead(username) && !c.IsDeleted
}

// AddItem appends a new item on behalf of actingUsername. Any member may
// append. The collection is touched once.
func (c *Collection) AddItem(item Item, actingUsername string) error {
	if !c.CanRead(actingUsername) {
		return common.ErrPermissionDenied
	}
	c.Items = append(c.Items, item)
	c.Touch()
	return nil
}

// DeleteItem tombstones the item with the given id. The item's owner or the
// collection's owner may delete; both the item and the collection are
// touched.
func (c *Collection) DeleteItem(itemID, actingUsername string) error {
	idx := slices.IndexFunc(c.Items, func(i Item) bool { return i.ID == itemID })
	if idx < 0 {
		return common.ErrNotFound
	}
	it := &c.Items[idx]
	if it.OwnerUsername != actingUsername && c.OwnerUsername != actingUsername {
		return common.ErrPermissionDenied
	}
	it.IsDeleted = true
	it.Touch()
	c.Touch()
	return nil
}

// Rename changes the title. Owner only.
func (c *Collection) Rename(title, actingUsername string) error {
	if !c.IsOwner(actingUsername) {
		return common.ErrPermissionDenied
	}
	c.Title = title
	c.Touch()
	return nil
}

// SetSharedWith replaces the share list. Owner only.
func (c *Collection) SetSharedWith(usernames []string, actingUsername string) error {
	if !c.IsOwner(actingUsername) {
		return common.ErrPermissionDenied
	}
	c.SharedWith = slices.Clone(usernames)
	c.Touch()
	return nil
}

// Delete tombstones the whole collection. Owner only.
func (c *Collection) Delete(actingUsername string) error {
	if !c.IsOwner(actingUsername) {
		return common.ErrPermissionDenied
	}
	c.IsDeleted = true
	c.Touch()
	return nil
}

// ActiveItems returns the non-deleted items ordered by creation time.
func (c Collection) ActiveItems() []Item {
	result := make([]Item, 0, len(c.Items))
	for _, it := range c.Items {
		if !it.IsDeleted {
			result = append(result, it)
		}
	}
	slices.SortStableFunc(result, func(a, b Item) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result
}

// FindItem returns the item with the given id, deleted or not.
func (c Collection) FindItem(itemID string) (Item, bool) {
	for _, it := range c.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return Item{}, false
}

// Clone returns a deep copy: mutating the copy's items or share list never
// aliases the original.
func (c Collection) Clone() Collection {
	out := c
	out.SharedWith = slices.Clone(c.SharedWith)
	out.Items = slices.Clone(c.Items)
	return out
}

// ContentEquals reports whether two collections carry identical content:
// every field including timestamps (compared with time.Equal, so wall-clock
// representation differences after a JSON round trip do not matter) and the
// full item list in order. Used to skip redundant remote writes.
func (c Collection) ContentEquals(other Collection) bool {
	if c.ID != other.ID ||
		c.Title != other.Title ||
		c.OwnerUsername != other.OwnerUsername ||
		c.IsDeleted != other.IsDeleted ||
		!c.CreatedAt.Equal(other.CreatedAt) ||
		!c.LastModified.Equal(other.LastModified) ||
		!slices.Equal(c.SharedWith, other.SharedWith) ||
		len(c.Items) != len(other.Items) {
		return false
	}
	for i := range c.Items {
		a, b := c.Items[i], other.Items[i]
		if a.ID != b.ID ||
			a.Message != b.Message ||
			a.DurationSeconds != b.DurationSeconds ||
			a.OwnerUsername != b.OwnerUsername ||
			a.IsDeleted != b.IsDeleted ||
			!a.CreatedAt.Equal(b.CreatedAt) ||
			!a.LastModified.Equal(b.LastModified) {
			return false
		}
	}
	return true
}

// SortByTitle orders collections by title (case-insensitive) for
// deterministic downstream presentation.
func SortByTitle(cols []Collection) {
	slices.SortStableFunc(cols, func(a, b Collection) int {
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	})
}

// VisibleCollections filters cols down to what username may see.
func VisibleCollections(cols []Collection, username string) []Collection {
	result := make([]Collection, 0, len(cols))
	for _, c := range cols {
		if c.VisibleTo(username) {
			result = append(result, c)
		}
	}
	return result
}
