package sync

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentstation/utc"

	"github.com/metafusion/metafusion/pkg/reconcile"
)

// Result is the summary of one reconciliation run. Counter methods are
// safe for concurrent use by the worker pool.
type Result struct {
	RunID      string
	DryRun     bool
	StartedAt  utc.Time
	FinishedAt utc.Time

	mu sync.Mutex

	// Item outcomes.
	New       int
	Changed   int
	Unchanged int
	Failed    int
	Skipped   int

	// Asset and cleanup activity.
	AssetsSelected  int
	AssetsRemoved   int
	EntriesRemoved  int
	RecordsRemoved  int
	BytesDownloaded int64

	Libraries map[string]*LibraryResult
	Errors    []error
}

// LibraryResult is the per-library slice of the summary.
type LibraryResult struct {
	Name      string
	Items     int
	New       int
	Changed   int
	Unchanged int
	Failed    int
	Skipped   int
}

// NewResult creates a result for a starting run.
func NewResult(runID string, dryRun bool) *Result {
	return &Result{
		RunID:     runID,
		DryRun:    dryRun,
		StartedAt: utc.Now(),
		Libraries: make(map[string]*LibraryResult),
	}
}

// Finish stamps the end of the run.
func (r *Result) Finish() {
	r.FinishedAt = utc.Now()
}

// Duration returns the wall-clock duration of the run.
func (r *Result) Duration() time.Duration {
	end := r.FinishedAt
	if end.IsZero() {
		end = utc.Now()
	}
	return end.Sub(r.StartedAt)
}

// RecordOutcome counts one classified item for its library.
func (r *Result) RecordOutcome(library string, outcome reconcile.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lib := r.library(library)
	lib.Items++
	switch outcome {
	case reconcile.OutcomeNew:
		r.New++
		lib.New++
	case reconcile.OutcomeChanged:
		r.Changed++
		lib.Changed++
	case reconcile.OutcomeUnchanged:
		r.Unchanged++
		lib.Unchanged++
	}
}

// RecordFailure counts one failed item and keeps its error.
func (r *Result) RecordFailure(library string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lib := r.library(library)
	lib.Items++
	lib.Failed++
	r.Failed++
	r.Errors = append(r.Errors, err)
}

// RecordSkip counts one skipped item.
func (r *Result) RecordSkip(library string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lib := r.library(library)
	lib.Items++
	lib.Skipped++
	r.Skipped++
}

// RecordAsset counts one selected asset and its downloaded size. A zero
// size means the stored copy was already current.
func (r *Result) RecordAsset(bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.AssetsSelected++
	r.BytesDownloaded += bytes
}

// RecordCleanup counts the orphan pass activity.
func (r *Result) RecordCleanup(entries, records, assets int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EntriesRemoved += entries
	r.RecordsRemoved += records
	r.AssetsRemoved += assets
}

// RecordError keeps a run-level error that is not tied to one item.
func (r *Result) RecordError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err)
}

// Items returns the total number of items considered.
func (r *Result) Items() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.New + r.Changed + r.Unchanged + r.Failed + r.Skipped
}

// HasFailures reports whether any item failed.
func (r *Result) HasFailures() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Failed > 0
}

// Summary returns a one-line human-readable summary.
func (r *Result) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	parts := []string{
		fmt.Sprintf("%d new", r.New),
		fmt.Sprintf("%d changed", r.Changed),
		fmt.Sprintf("%d unchanged", r.Unchanged),
	}
	if r.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.Failed))
	}
	if r.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", r.Skipped))
	}
	if r.AssetsSelected > 0 {
		parts = append(parts, fmt.Sprintf("%d assets (%s)", r.AssetsSelected, HumanBytes(r.BytesDownloaded)))
	}
	if removed := r.EntriesRemoved + r.RecordsRemoved + r.AssetsRemoved; removed > 0 {
		parts = append(parts, fmt.Sprintf("%d orphans removed", removed))
	}

	summary := strings.Join(parts, ", ")
	if r.DryRun {
		summary += " (dry run)"
	}
	return summary
}

func (r *Result) library(name string) *LibraryResult {
	lib, ok := r.Libraries[name]
	if !ok {
		lib = &LibraryResult{Name: name}
		r.Libraries[name] = lib
	}
	return lib
}

// HumanBytes formats a byte count for log output, e.g. "1.4 MB".
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for target := n / unit; target >= unit; target /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
