package metafusion

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/metafusion/metafusion/pkg/catalogs"
	"github.com/metafusion/metafusion/pkg/logging"
	"github.com/metafusion/metafusion/pkg/reconcile"
	"github.com/metafusion/metafusion/pkg/sync"
)

// Cleanup runs only the orphan pass: snapshot the catalog and remove
// cache entries, output records, and asset files for items that left the
// library. A catalog read failure aborts before anything is touched.
func (m *Metafusion) Cleanup(ctx context.Context, opts ...sync.Option) (*sync.Result, error) {
	options := sync.Defaults().Apply(opts...)
	if err := options.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	result := sync.NewResult(runID, options.DryRun)

	snap, err := m.source.Snapshot(ctx, options.Libraries)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	m.reconcileOrphans(ctx, snap, options.DryRun, result)
	result.Finish()
	logging.Ctx(ctx).Info().Msg(result.Summary())
	return result, nil
}

// reconcileOrphans computes the orphan set against the snapshot and
// removes each orphaned artifact. Individual delete failures are logged
// and skipped; an unsafe snapshot aborts the pass with nothing removed.
func (m *Metafusion) reconcileOrphans(ctx context.Context, snap *catalogs.Snapshot, dryRun bool, result *sync.Result) {
	log := logging.Ctx(ctx)

	inventory, err := m.inventory(ctx, snap.Libraries)
	if err != nil {
		log.Error().Err(err).Msg("Failed to take local inventory; skipping cleanup")
		result.RecordError(err)
		return
	}

	orphans, err := reconcile.Orphans(snap, *inventory)
	if err != nil {
		log.Warn().Err(err).Msg("Cleanup aborted")
		result.RecordError(err)
		return
	}
	if orphans.Empty() {
		log.Debug().Msg("No orphans found")
		return
	}

	recordCount := 0
	for _, titles := range orphans.OutputTitles {
		recordCount += len(titles)
	}
	log.Info().
		Int("cache_entries", len(orphans.CacheKeys)).
		Int("failed_lookups", len(orphans.FailedKeys)).
		Int("output_records", recordCount).
		Int("asset_files", len(orphans.AssetPaths)).
		Bool("dry_run", dryRun).
		Msg("Orphans found")

	if dryRun {
		result.RecordCleanup(len(orphans.CacheKeys)+len(orphans.FailedKeys), recordCount, len(orphans.AssetPaths))
		return
	}

	entries := 0
	for _, key := range orphans.CacheKeys {
		if err := m.store.Delete(key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to delete cache entry")
			continue
		}
		entries++
	}
	for _, key := range orphans.FailedKeys {
		if err := m.store.ClearFailed(key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to clear lookup failure")
			continue
		}
		entries++
	}

	records := 0
	for library, titles := range orphans.OutputTitles {
		for _, title := range titles {
			removed, err := m.writer.Remove(library, title)
			if err != nil {
				log.Warn().Err(err).Str("title", title).Msg("Failed to remove output record")
				continue
			}
			if removed {
				records++
			}
		}
	}

	assets := 0
	for _, path := range orphans.AssetPaths {
		if err := m.assets.Delete(ctx, path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to delete asset file")
			continue
		}
		assets++
	}

	result.RecordCleanup(entries, records, assets)
	log.Info().
		Int("cache_entries", entries).
		Int("output_records", records).
		Int("asset_files", assets).
		Msg("Cleanup complete")
}

// inventory collects everything held locally for the snapshot's libraries.
func (m *Metafusion) inventory(ctx context.Context, libraries []catalogs.Library) (*reconcile.Inventory, error) {
	keys, err := m.store.Keys()
	if err != nil {
		return nil, err
	}
	failedKeys, err := m.store.FailedKeys()
	if err != nil {
		return nil, err
	}

	titles := make(map[string][]string, len(libraries))
	for _, library := range libraries {
		libraryTitles, err := m.writer.Titles(library.Name)
		if err != nil {
			return nil, err
		}
		titles[library.Name] = libraryTitles
	}

	var assets []reconcile.Asset
	for _, library := range libraries {
		paths, err := m.assets.List(ctx, library.Name)
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			asset, ok := parseAssetPath(path)
			if !ok {
				continue
			}
			assets = append(assets, asset)
		}
	}

	return &reconcile.Inventory{
		CacheKeys:    keys,
		FailedKeys:   failedKeys,
		OutputTitles: titles,
		Assets:       assets,
		EntryLookup:  m.store.Get,
	}, nil
}

// parseAssetPath splits "<library>/<media dir>/<file>" into its
// components. Paths with a different shape are left alone.
func parseAssetPath(path string) (reconcile.Asset, bool) {
	parts := strings.Split(path, "/")
	if len(parts) != 3 {
		return reconcile.Asset{}, false
	}
	return reconcile.Asset{
		Path:    path,
		Library: parts[0],
		Dir:     parts[1],
	}, true
}
