// Package reconcile decides, for every catalog item, whether provider data
// has meaningfully changed since the last run, and computes which local
// artifacts have been orphaned by the current catalog snapshot.
package reconcile

import (
	"github.com/agentstation/utc"

	"github.com/metafusion/metafusion/pkg/fingerprint"
)

// Outcome classifies one item after comparing fresh provider data against
// the cached fingerprint.
type Outcome string

const (
	// OutcomeNew means no cache entry existed for the item.
	OutcomeNew Outcome = "new"
	// OutcomeChanged means the fresh fingerprint differs from the cached one.
	OutcomeChanged Outcome = "changed"
	// OutcomeUnchanged means fingerprints match; no write, no asset
	// re-evaluation.
	OutcomeUnchanged Outcome = "unchanged"
)

// AssetRef records the winning image selected for one asset role. Losing
// candidates are never persisted.
type AssetRef struct {
	Path        string  `json:"path"`
	VoteAverage float64 `json:"vote_average"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
}

// Entry is the cached state for one catalog item: the fingerprint of the
// last successfully written record, when it was fetched, and the asset
// references selected for it. Entries are mutated only after a successful
// output write (write-then-commit ordering).
type Entry struct {
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	FetchedAt   utc.Time                `json:"fetched_at"`
	ProviderID  int                     `json:"provider_id"`

	// Assets maps role keys ("poster", "background", "season01", ...)
	// to the selected asset reference.
	Assets map[string]AssetRef `json:"assets,omitempty"`
}

// Store persists cache entries between runs. Implementations must allow
// concurrent Put calls for distinct keys; the orchestrator guarantees a
// single writer per key.
type Store interface {
	// Get returns the entry for a cache identity, or ok=false.
	Get(key string) (*Entry, bool, error)

	// Put upserts the entry for a cache identity.
	Put(key string, entry *Entry) error

	// Delete removes the entry for a cache identity.
	Delete(key string) error

	// Keys lists every cache identity currently stored.
	Keys() ([]string, error)

	// MarkFailed remembers an identity whose provider resolution failed,
	// so later runs skip it until the catalog entry changes.
	MarkFailed(key string) error

	// Failed reports whether an identity is on the failed-lookup list.
	Failed(key string) (bool, error)

	// FailedKeys lists every identity on the failed-lookup list.
	FailedKeys() ([]string, error)

	// ClearFailed removes an identity from the failed-lookup list.
	ClearFailed(key string) error
}

// Classify compares a fresh fingerprint against the cached entry for the
// item. A nil entry means the item was never seen. In dry-run mode callers
// still classify; they just skip the write and commit that would follow.
func Classify(entry *Entry, fp fingerprint.Fingerprint) Outcome {
	if entry == nil {
		return OutcomeNew
	}
	if entry.Fingerprint == fp {
		return OutcomeUnchanged
	}
	return OutcomeChanged
}

// NewEntry builds the entry to commit after a successful write.
func NewEntry(fp fingerprint.Fingerprint, providerID int, assets map[string]AssetRef) *Entry {
	return &Entry{
		Fingerprint: fp,
		FetchedAt:   utc.Now(),
		ProviderID:  providerID,
		Assets:      assets,
	}
}
