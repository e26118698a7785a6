// Package merge reconciles a local and a remote snapshot of reminder
// collections into one deterministic result.
//
// The policy is last-writer-wins on LastModified, applied at two levels:
// first per collection, then per item inside each collection present on
// both sides. Items get their own pass because item edits bump
// Item.LastModified without necessarily moving every replica's
// Collection.LastModified in lockstep. On an exact timestamp tie the
// remote record wins: remote is the convergence point other devices read.
//
// Tombstones participate like any other record, so a deletion with a newer
// timestamp beats an older live record and propagates. Merging never
// touches timestamps; merging a snapshot with itself returns it unchanged.
package merge

import (
	"slices"
	"strings"

	"github.com/floatnote/floatnote/internal/model"
)

// Collections merges the local and remote snapshots. Records present on one
// side only pass through unchanged; records present on both sides resolve
// per the package policy. The result is sorted by title.
func Collections(local, remote []model.Collection) []model.Collection {
	remoteByID := make(map[string]model.Collection, len(remote))
	for _, rc := range remote {
		remoteByID[rc.ID] = rc
	}

	seen := make(map[string]struct{}, len(local))
	merged := make([]model.Collection, 0, len(local)+len(remote))

	for _, lc := range local {
		seen[lc.ID] = struct{}{}
		rc, ok := remoteByID[lc.ID]
		if !ok {
			merged = append(merged, lc.Clone())
			continue
		}
		merged = append(merged, collection(lc, rc))
	}

	for _, rc := range remote {
		if _, ok := seen[rc.ID]; ok {
			continue
		}
		merged = append(merged, rc.Clone())
	}

	model.SortByTitle(merged)
	return merged
}

// collection resolves one id present on both sides. The winner supplies the
// collection-level fields; the item list is always the merge of both
// candidates' items.
func collection(local, remote model.Collection) model.Collection {
	var winner model.Collection
	if local.LastModified.After(remote.LastModified) {
		winner = local.Clone()
	} else {
		// covers remote strictly newer and the exact tie
		winner = remote.Clone()
	}
	winner.Items = items(local.Items, remote.Items)
	return winner
}

// items merges the item lists of two candidate collections by id. The
// result is ordered by (CreatedAt, ID) so replicas converge on identical
// snapshots regardless of which side contributed which record.
func items(local, remote []model.Item) []model.Item {
	remoteByID := make(map[string]model.Item, len(remote))
	for _, ri := range remote {
		remoteByID[ri.ID] = ri
	}

	seen := make(map[string]struct{}, len(local))
	merged := make([]model.Item, 0, len(local)+len(remote))

	for _, li := range local {
		seen[li.ID] = struct{}{}
		ri, ok := remoteByID[li.ID]
		if !ok {
			merged = append(merged, li)
			continue
		}
		if li.LastModified.After(ri.LastModified) {
			merged = append(merged, li)
		} else {
			merged = append(merged, ri)
		}
	}

	for _, ri := range remote {
		if _, ok := seen[ri.ID]; ok {
			continue
		}
		merged = append(merged, ri)
	}

	if len(merged) == 0 {
		return nil
	}

	slices.SortStableFunc(merged, func(a, b model.Item) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	return merged
}
