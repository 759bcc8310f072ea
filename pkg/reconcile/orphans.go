package reconcile

import (
	"errors"

	"github.com/metafusion/metafusion/pkg/catalogs"
)

// ErrUnsafeSnapshot is returned when orphan computation is refused because
// the snapshot is missing or empty. A transient catalog read failure must
// never cause a healthy library's artifacts to be treated as orphans.
var ErrUnsafeSnapshot = errors.New("refusing orphan reconciliation: catalog snapshot is missing or empty")

// Asset locates one asset file in local storage.
type Asset struct {
	// Path is the storage path, e.g. "Movies/Heat (1995)/poster.jpg".
	Path string
	// Library and Dir are the parsed path components used to match the
	// asset against the snapshot's media directories.
	Library string
	Dir     string
}

// Inventory is everything currently held locally: cache identities, output
// record titles per library, and asset files.
type Inventory struct {
	CacheKeys    []string
	FailedKeys   []string
	OutputTitles map[string][]string
	Assets       []Asset

	// EntryLookup resolves a cache key to its entry so surviving entries
	// can veto asset deletion. Optional; when nil no assets are vetoed.
	EntryLookup func(key string) (*Entry, bool, error)
}

// OrphanSet is the per-run set difference between local inventory and the
// current catalog snapshot. It is computed fresh each run and never stored.
type OrphanSet struct {
	CacheKeys    []string
	FailedKeys   []string
	OutputTitles map[string][]string
	AssetPaths   []string
}

// Empty reports whether nothing was orphaned.
func (o *OrphanSet) Empty() bool {
	return o.Count() == 0
}

// Count returns the total number of orphaned artifacts.
func (o *OrphanSet) Count() int {
	n := len(o.CacheKeys) + len(o.FailedKeys) + len(o.AssetPaths)
	for _, titles := range o.OutputTitles {
		n += len(titles)
	}
	return n
}

// Orphans computes the orphan set for the current snapshot.
//
// Safety checks, applied before anything else:
//   - a nil or empty snapshot aborts with ErrUnsafeSnapshot (the caller
//     must already have refused to get here on a catalog read error);
//   - an asset file survives if any cache entry that itself survives the
//     snapshot still references its path, which protects assets belonging
//     to items whose media directory could not be resolved this run.
func Orphans(snap *catalogs.Snapshot, inv Inventory) (*OrphanSet, error) {
	if snap == nil || snap.Empty() {
		return nil, ErrUnsafeSnapshot
	}

	identities := snap.Identities()
	titles := snap.Titles()
	mediaDirs := snap.MediaDirs()

	orphans := &OrphanSet{OutputTitles: make(map[string][]string)}

	// Cache entries for items no longer in the catalog.
	surviving := make(map[string]struct{}, len(inv.CacheKeys))
	for _, key := range inv.CacheKeys {
		if _, ok := identities[key]; ok {
			surviving[key] = struct{}{}
			continue
		}
		orphans.CacheKeys = append(orphans.CacheKeys, key)
	}

	// Failed-lookup marks for items no longer in the catalog; keeping
	// them would shadow a future item with the same identity.
	for _, key := range inv.FailedKeys {
		if _, ok := identities[key]; !ok {
			orphans.FailedKeys = append(orphans.FailedKeys, key)
		}
	}

	// Output records whose "Title (Year)" key left the catalog.
	for library, recorded := range inv.OutputTitles {
		for _, title := range recorded {
			if _, ok := titles[title]; !ok {
				orphans.OutputTitles[library] = append(orphans.OutputTitles[library], title)
			}
		}
	}

	// Asset files under media directories the catalog no longer lists.
	referenced := referencedAssetPaths(inv, surviving)
	for _, asset := range inv.Assets {
		if dirs, ok := mediaDirs[asset.Library]; ok {
			if _, ok := dirs[asset.Dir]; ok {
				continue
			}
		}
		if _, ok := referenced[asset.Path]; ok {
			continue
		}
		orphans.AssetPaths = append(orphans.AssetPaths, asset.Path)
	}

	return orphans, nil
}

// referencedAssetPaths collects the asset paths still referenced by cache
// entries that survive the snapshot.
func referencedAssetPaths(inv Inventory, surviving map[string]struct{}) map[string]struct{} {
	referenced := make(map[string]struct{})
	if inv.EntryLookup == nil {
		return referenced
	}
	for key := range surviving {
		entry, ok, err := inv.EntryLookup(key)
		if err != nil || !ok {
			continue
		}
		for _, ref := range entry.Assets {
			referenced[ref.Path] = struct{}{}
		}
	}
	return referenced
}
