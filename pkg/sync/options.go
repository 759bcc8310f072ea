// Package sync provides options and result types for library
// reconciliation runs.
package sync

import (
	"time"

	"github.com/metafusion/metafusion/pkg/errors"
)

// Options controls one reconciliation run.
type Options struct {
	// DryRun classifies every item and reports what would change, but
	// writes nothing: no output, no assets, no cache mutation.
	DryRun bool

	// Libraries restricts the run to the named libraries. Empty means
	// every movie and show library on the server.
	Libraries []string

	// MaxWorkers bounds the number of items processed concurrently.
	MaxWorkers int

	// Timeout bounds the whole run. Zero means no timeout.
	Timeout time.Duration

	// Asset roles to select and download.
	Posters     bool
	SeasonArt   bool
	Backgrounds bool

	// EnhancedMetadata adds people fields, collections, and per-episode
	// blocks to the output. Basic metadata is always written.
	EnhancedMetadata bool

	// Orphans enables the cleanup pass after item processing.
	Orphans bool

	// RetryFailed reprocesses identities on the failed-lookup list
	// instead of skipping them.
	RetryFailed bool
}

// Defaults returns the default run options.
func Defaults() *Options {
	return &Options{
		MaxWorkers:       5,
		Posters:          true,
		SeasonArt:        true,
		Backgrounds:      true,
		EnhancedMetadata: true,
		Orphans:          true,
	}
}

// Option configures run Options.
type Option func(*Options)

// Apply applies the given options.
func (o *Options) Apply(opts ...Option) *Options {
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Validate checks the options for consistency.
func (o *Options) Validate() error {
	if o.MaxWorkers < 1 {
		return errors.NewValidationError("MaxWorkers", o.MaxWorkers, "must be at least 1")
	}
	if o.Timeout < 0 {
		return errors.NewValidationError("Timeout", o.Timeout, "must be non-negative")
	}
	return nil
}

// WithDryRun classifies without writing.
func WithDryRun() Option {
	return func(o *Options) { o.DryRun = true }
}

// WithLibraries restricts the run to the named libraries.
func WithLibraries(libraries ...string) Option {
	return func(o *Options) { o.Libraries = libraries }
}

// WithMaxWorkers bounds item concurrency.
func WithMaxWorkers(n int) Option {
	return func(o *Options) { o.MaxWorkers = n }
}

// WithTimeout bounds the whole run.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithoutOrphans skips the cleanup pass.
func WithoutOrphans() Option {
	return func(o *Options) { o.Orphans = false }
}

// WithAssetRoles selects which asset roles to process.
func WithAssetRoles(posters, seasonArt, backgrounds bool) Option {
	return func(o *Options) {
		o.Posters = posters
		o.SeasonArt = seasonArt
		o.Backgrounds = backgrounds
	}
}

// WithBasicMetadata drops the enhanced metadata tier.
func WithBasicMetadata() Option {
	return func(o *Options) { o.EnhancedMetadata = false }
}

// WithRetryFailed reprocesses identities whose lookups failed before.
func WithRetryFailed() Option {
	return func(o *Options) { o.RetryFailed = true }
}
