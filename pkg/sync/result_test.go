package sync

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/metafusion/metafusion/pkg/reconcile"
)

func TestOptionsDefaults(t *testing.T) {
	opts := Defaults()
	assert.NoError(t, opts.Validate())
	assert.Equal(t, 5, opts.MaxWorkers)
	assert.True(t, opts.Posters)
	assert.True(t, opts.Orphans)
	assert.False(t, opts.DryRun)
}

func TestOptionsApply(t *testing.T) {
	opts := Defaults().Apply(
		WithDryRun(),
		WithLibraries("Movies"),
		WithMaxWorkers(2),
		WithoutOrphans(),
		WithBasicMetadata(),
	)

	assert.True(t, opts.DryRun)
	assert.Equal(t, []string{"Movies"}, opts.Libraries)
	assert.Equal(t, 2, opts.MaxWorkers)
	assert.False(t, opts.Orphans)
	assert.False(t, opts.EnhancedMetadata)
}

func TestOptionsValidate(t *testing.T) {
	opts := Defaults().Apply(WithMaxWorkers(0))
	assert.Error(t, opts.Validate())

	opts = Defaults().Apply(WithTimeout(-1))
	assert.Error(t, opts.Validate())
}

func TestResultCounters(t *testing.T) {
	result := NewResult("run-1", false)

	result.RecordOutcome("Movies", reconcile.OutcomeNew)
	result.RecordOutcome("Movies", reconcile.OutcomeChanged)
	result.RecordOutcome("Movies", reconcile.OutcomeUnchanged)
	result.RecordFailure("Movies", errors.New("boom"))
	result.RecordSkip("TV Shows")
	result.RecordAsset(2048)
	result.RecordCleanup(1, 2, 3)

	assert.Equal(t, 1, result.New)
	assert.Equal(t, 1, result.Changed)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 5, result.Items())
	assert.True(t, result.HasFailures())
	assert.Len(t, result.Errors, 1)

	movies := result.Libraries["Movies"]
	assert.Equal(t, 4, movies.Items)
	assert.Equal(t, 1, movies.Failed)
	assert.Equal(t, 1, result.Libraries["TV Shows"].Skipped)

	assert.Equal(t, 1, result.AssetsSelected)
	assert.Equal(t, int64(2048), result.BytesDownloaded)
	assert.Equal(t, 3, result.AssetsRemoved)
}

func TestResultDuration(t *testing.T) {
	result := NewResult("run-1", false)

	// Unfinished runs measure against the clock.
	assert.GreaterOrEqual(t, result.Duration(), time.Duration(0))

	time.Sleep(time.Millisecond)
	result.Finish()
	fixed := result.Duration()
	assert.Greater(t, fixed, time.Duration(0))

	// Finished runs report a fixed duration.
	time.Sleep(time.Millisecond)
	assert.Equal(t, fixed, result.Duration())
}

func TestResultConcurrentCounters(t *testing.T) {
	result := NewResult("run-1", false)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.RecordOutcome("Movies", reconcile.OutcomeNew)
			result.RecordAsset(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, result.New)
	assert.Equal(t, int64(50), result.BytesDownloaded)
}

func TestResultSummary(t *testing.T) {
	result := NewResult("run-1", true)
	result.RecordOutcome("Movies", reconcile.OutcomeNew)
	result.RecordAsset(1536)

	summary := result.Summary()
	assert.Contains(t, summary, "1 new")
	assert.Contains(t, summary, "1 assets (1.5 KB)")
	assert.Contains(t, summary, "(dry run)")
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", HumanBytes(512))
	assert.Equal(t, "1.5 KB", HumanBytes(1536))
	assert.Equal(t, "2.0 MB", HumanBytes(2*1024*1024))
	assert.Equal(t, "3.0 GB", HumanBytes(3*1024*1024*1024))
}
