package merge

import (
	"testing"
	"time"

	"github.com/floatnote/floatnote/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(1 * time.Hour)
	t2 = t0.Add(30 * time.Minute) // t0 < t2 < t1
)

func col(id, title string, lm time.Time, items ...model.Item) model.Collection {
	return model.Collection{
		ID:            id,
		Title:         title,
		OwnerUsername: "alice",
		Items:         items,
		CreatedAt:     t0,
		LastModified:  lm,
	}
}

func item(id, msg string, lm time.Time) model.Item {
	return model.Item{
		ID:              id,
		Message:         msg,
		DurationSeconds: 5,
		OwnerUsername:   "alice",
		CreatedAt:       t0,
		LastModified:    lm,
	}
}

func TestCollections_Idempotent(t *testing.T) {
	x := []model.Collection{
		col("c1", "Alpha", t1, item("i1", "a", t0), item("i2", "b", t1)),
		col("c2", "Beta", t0),
	}

	got := Collections(x, x)
	require.Equal(t, x, got, "merging (X, X) must yield X with no timestamp bumps")
}

func TestCollections_OneSidedRecordsPassThrough(t *testing.T) {
	localOnly := col("c1", "Local", t0)
	remoteOnly := col("c2", "Remote", t1)

	got := Collections([]model.Collection{localOnly}, []model.Collection{remoteOnly})
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, "c2", got[1].ID)
}

func TestCollections_LastWriterWins(t *testing.T) {
	localNewer := col("c1", "Local title", t1)
	remoteOlder := col("c1", "Remote title", t0)

	got := Collections([]model.Collection{localNewer}, []model.Collection{remoteOlder})
	require.Len(t, got, 1)
	assert.Equal(t, "Local title", got[0].Title)

	got = Collections([]model.Collection{remoteOlder}, []model.Collection{localNewer})
	require.Len(t, got, 1)
	assert.Equal(t, "Local title", got[0].Title)
}

func TestCollections_TiePrefersRemote(t *testing.T) {
	local := col("c1", "Local title", t1)
	remote := col("c1", "Remote title", t1)

	got := Collections([]model.Collection{local}, []model.Collection{remote})
	require.Len(t, got, 1)
	assert.Equal(t, "Remote title", got[0].Title, "exact tie must prefer the remote record")
}

func TestCollections_ItemsMergeEvenWhenLocalCollectionWins(t *testing.T) {
	// local collection metadata is newer, but remote holds a newer edit of i1
	local := col("c1", "Work", t1, item("i1", "old text", t0))
	remote := col("c1", "Work (stale)", t0, item("i1", "new text", t2))

	got := Collections([]model.Collection{local}, []model.Collection{remote})
	require.Len(t, got, 1)
	assert.Equal(t, "Work", got[0].Title)
	require.Len(t, got[0].Items, 1)
	assert.Equal(t, "new text", got[0].Items[0].Message, "item merge is independent of the collection winner")
}

func TestCollections_ItemTiePrefersRemote(t *testing.T) {
	local := col("c1", "Work", t0, item("i1", "local", t1))
	remote := col("c1", "Work", t0, item("i1", "remote", t1))

	got := Collections([]model.Collection{local}, []model.Collection{remote})
	require.Len(t, got[0].Items, 1)
	assert.Equal(t, "remote", got[0].Items[0].Message)
}

func TestCollections_TombstonePropagates(t *testing.T) {
	dead := item("i1", "bye", t1)
	dead.IsDeleted = true
	local := col("c1", "Work", t1, dead)
	remote := col("c1", "Work", t0, item("i1", "bye", t0))

	got := Collections([]model.Collection{local}, []model.Collection{remote})
	require.Len(t, got[0].Items, 1)
	assert.True(t, got[0].Items[0].IsDeleted, "a newer tombstone beats an older live record")
	assert.Empty(t, got[0].ActiveItems())
}

func TestCollections_DeletedCollectionPropagates(t *testing.T) {
	deadRemote := col("c1", "Work", t1)
	deadRemote.IsDeleted = true
	liveLocal := col("c1", "Work", t0)

	got := Collections([]model.Collection{liveLocal}, []model.Collection{deadRemote})
	require.Len(t, got, 1)
	assert.True(t, got[0].IsDeleted)
}

func TestCollections_TwoDeviceScenario(t *testing.T) {
	// Both devices started from c1@T0. Device A added i1 at T1 and synced;
	// device B, offline since T0, added i2 at T2 (T0 < T2 < T1) and syncs
	// after A. B's local view merges with A's remote state.
	remoteAfterA := col("c1", "Work", t1, item("i1", "Call Bob", t1))
	localOnB := col("c1", "Work", t2, item("i2", "Buy milk", t2))

	merged := Collections([]model.Collection{localOnB}, []model.Collection{remoteAfterA})
	require.Len(t, merged, 1)
	c := merged[0]

	require.Len(t, c.Items, 2)
	ids := map[string]string{}
	for _, it := range c.Items {
		ids[it.ID] = it.Message
	}
	assert.Equal(t, map[string]string{"i1": "Call Bob", "i2": "Buy milk"}, ids)
	assert.Equal(t, t1, c.LastModified, "collection LastModified = max(T1, T2)")

	// device A then re-merges against the converged remote: same result
	again := Collections([]model.Collection{remoteAfterA}, merged)
	require.Equal(t, merged, again)
}

func TestCollections_ResultSortedByTitle(t *testing.T) {
	got := Collections(
		[]model.Collection{col("c1", "zeta", t0)},
		[]model.Collection{col("c2", "alpha", t0), col("c3", "Midway", t0)},
	)
	titles := []string{got[0].Title, got[1].Title, got[2].Title}
	assert.Equal(t, []string{"alpha", "Midway", "zeta"}, titles)
}

func TestCollections_DoesNotAliasInputs(t *testing.T) {
	local := []model.Collection{col("c1", "Work", t1, item("i1", "x", t1))}
	remote := []model.Collection{col("c1", "Work", t0, item("i1", "x", t0))}

	got := Collections(local, remote)
	got[0].Items[0].Message = "mutated"

	assert.Equal(t, "x", local[0].Items[0].Message)
	assert.Equal(t, "x", remote[0].Items[0].Message)
}
