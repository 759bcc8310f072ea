package app

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/metafusion/metafusion/pkg/sync"
)

// syncFlags holds the sync command's flag values.
type syncFlags struct {
	dryRun       bool
	libraries    []string
	workers      int
	timeout      time.Duration
	noPosters    bool
	noSeasonArt  bool
	noBackground bool
	basic        bool
	noOrphans    bool
	retryFailed  bool
}

// syncOptions translates flags into run options. Unset numeric flags fall
// back to the configured values, so config-file tuning applies unless a
// flag overrides it.
func (a *App) syncOptions(f syncFlags) []sync.Option {
	workers := f.workers
	if workers == 0 {
		workers = a.config.MaxWorkers
	}
	timeout := f.timeout
	if timeout == 0 {
		timeout = a.config.Timeout
	}

	opts := []sync.Option{
		sync.WithLibraries(f.libraries...),
		sync.WithAssetRoles(!f.noPosters, !f.noSeasonArt, !f.noBackground),
	}
	if f.dryRun {
		opts = append(opts, sync.WithDryRun())
	}
	if workers > 0 {
		opts = append(opts, sync.WithMaxWorkers(workers))
	}
	if timeout > 0 {
		opts = append(opts, sync.WithTimeout(timeout))
	}
	if f.basic {
		opts = append(opts, sync.WithBasicMetadata())
	}
	if f.noOrphans {
		opts = append(opts, sync.WithoutOrphans())
	}
	if f.retryFailed {
		opts = append(opts, sync.WithRetryFailed())
	}
	return opts
}

// NewSyncCommand creates the sync command, the main reconciliation run.
func (a *App) NewSyncCommand() *cobra.Command {
	var flags syncFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the library against the metadata provider",
		Long: `Sync snapshots the media server library, fetches metadata and artwork
for new and changed items, writes per-library YAML metadata files, and
removes records for items no longer in the library.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			unlock, err := a.acquireRunLock()
			if err != nil {
				return err
			}
			defer unlock()

			engine, err := a.Engine(ctx)
			if err != nil {
				return err
			}

			result, err := engine.Sync(ctx, a.syncOptions(flags)...)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Summary())
			if result.HasFailures() {
				return fmt.Errorf("%d of %d items failed", result.Failed, result.Items())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "report what would change without writing anything")
	cmd.Flags().StringSliceVarP(&flags.libraries, "library", "l", nil, "library to sync (repeatable; default all)")
	cmd.Flags().IntVarP(&flags.workers, "workers", "w", 0, "concurrent items (default from config)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "abort the run after this duration (default from config)")
	cmd.Flags().BoolVar(&flags.noPosters, "no-posters", false, "skip poster selection")
	cmd.Flags().BoolVar(&flags.noSeasonArt, "no-season-art", false, "skip season poster selection")
	cmd.Flags().BoolVar(&flags.noBackground, "no-backgrounds", false, "skip background selection")
	cmd.Flags().BoolVar(&flags.basic, "basic", false, "write basic metadata only (no cast, crew, or seasons)")
	cmd.Flags().BoolVar(&flags.noOrphans, "no-orphans", false, "skip the orphan cleanup pass")
	cmd.Flags().BoolVar(&flags.retryFailed, "retry-failed", false, "reattempt items whose provider lookup previously failed")

	return cmd
}

// NewCleanupCommand creates the cleanup command, the standalone orphan pass.
func (a *App) NewCleanupCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove cache entries, records, and assets for departed items",
		Long: `Cleanup snapshots the media server library and removes everything the
engine tracks for items no longer present: cache entries, output
records, and stored artwork. It refuses to act on an empty snapshot,
so a misconfigured or half-up server never triggers mass deletion.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			unlock, err := a.acquireRunLock()
			if err != nil {
				return err
			}
			defer unlock()

			engine, err := a.Engine(ctx)
			if err != nil {
				return err
			}

			opts := []sync.Option{}
			if dryRun {
				opts = append(opts, sync.WithDryRun())
			}

			result, err := engine.Cleanup(ctx, opts...)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Summary())
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be removed without deleting anything")

	return cmd
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "metafusion %s (commit %s, built %s)\n", a.version, a.commit, a.date)
			return nil
		},
	}
}

// acquireRunLock takes the exclusive run lock so overlapping runs never
// race on the cache and output files. The returned func releases it.
func (a *App) acquireRunLock() (func(), error) {
	lockPath := a.config.LockFile
	if dir := filepath.Dir(lockPath); dir != "." {
		if err := ensureDir(dir); err != nil {
			return nil, fmt.Errorf("prepare lock directory: %w", err)
		}
	}

	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another run holds the lock at %s", lockPath)
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			a.logger.Warn().Err(err).Str("path", lockPath).Msg("Failed to release run lock")
		}
	}, nil
}
