package catalogs

import (
	"context"

	"github.com/agentstation/utc"
)

// Snapshot is the catalog state for one run. A Snapshot only exists if the
// catalog was read without a connectivity error; a failed read yields no
// Snapshot at all, which is what keeps orphan reconciliation from ever
// operating on a poisoned view of the library.
type Snapshot struct {
	Libraries []Library
	Items     []Item
	FetchedAt utc.Time
}

// NewSnapshot creates a snapshot for the given libraries and items.
func NewSnapshot(libraries []Library, items []Item) *Snapshot {
	return &Snapshot{
		Libraries: libraries,
		Items:     items,
		FetchedAt: utc.Now(),
	}
}

// Empty reports whether the snapshot holds no items.
func (s *Snapshot) Empty() bool {
	return len(s.Items) == 0
}

// Identities returns the set of cache identities present in the snapshot,
// including per-season identities for TV items.
func (s *Snapshot) Identities() map[string]struct{} {
	ids := make(map[string]struct{}, len(s.Items))
	for _, item := range s.Items {
		ids[item.Key()] = struct{}{}
		for season := range item.Seasons {
			ids[item.SeasonKey(season)] = struct{}{}
		}
	}
	return ids
}

// Titles returns the set of "Title (Year)" output record keys in the snapshot.
func (s *Snapshot) Titles() map[string]struct{} {
	titles := make(map[string]struct{}, len(s.Items))
	for _, item := range s.Items {
		titles[item.FullTitle()] = struct{}{}
	}
	return titles
}

// MediaDirs returns the set of media directory names in the snapshot,
// keyed by library. Asset files under other directories are orphan
// candidates.
func (s *Snapshot) MediaDirs() map[string]map[string]struct{} {
	dirs := make(map[string]map[string]struct{})
	for _, item := range s.Items {
		if item.MediaDir == "" {
			continue
		}
		if dirs[item.Library] == nil {
			dirs[item.Library] = make(map[string]struct{})
		}
		dirs[item.Library][item.MediaDir] = struct{}{}
	}
	return dirs
}

// ItemsByLibrary groups the snapshot's items by library name.
func (s *Snapshot) ItemsByLibrary() map[string][]Item {
	grouped := make(map[string][]Item)
	for _, item := range s.Items {
		grouped[item.Library] = append(grouped[item.Library], item)
	}
	return grouped
}

// Source supplies catalog snapshots from a media server. Implementations
// must return an error distinct from an empty snapshot when the server
// cannot be reached, so callers can tell "library genuinely empty" from
// "catalog unavailable".
type Source interface {
	// Snapshot reads the current catalog state for the named libraries.
	// An empty libraries slice means all libraries.
	Snapshot(ctx context.Context, libraries []string) (*Snapshot, error)
}
