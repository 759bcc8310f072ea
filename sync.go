package metafusion

import (
	"context"
	"fmt"
	stdsync "sync"

	"github.com/google/uuid"

	"github.com/metafusion/metafusion/internal/output"
	"github.com/metafusion/metafusion/pkg/catalogs"
	"github.com/metafusion/metafusion/pkg/errors"
	"github.com/metafusion/metafusion/pkg/fingerprint"
	"github.com/metafusion/metafusion/pkg/logging"
	"github.com/metafusion/metafusion/pkg/provider"
	"github.com/metafusion/metafusion/pkg/reconcile"
	"github.com/metafusion/metafusion/pkg/selector"
	"github.com/metafusion/metafusion/pkg/sync"
)

// Sync runs one reconciliation pass: snapshot the catalog, process every
// item through a bounded worker pool, then reconcile orphans. A catalog
// read failure aborts the whole run; per-item failures are isolated into
// the result.
func (m *Metafusion) Sync(ctx context.Context, opts ...sync.Option) (*sync.Result, error) {
	options := sync.Defaults().Apply(opts...)
	if err := options.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	result := sync.NewResult(runID, options.DryRun)
	log := logging.Ctx(ctx)
	log.Info().
		Bool("dry_run", options.DryRun).
		Int("max_workers", options.MaxWorkers).
		Strs("libraries", options.Libraries).
		Msg("Starting sync")

	snap, err := m.source.Snapshot(ctx, options.Libraries)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	log.Info().
		Int("libraries", len(snap.Libraries)).
		Int("items", len(snap.Items)).
		Msg("Catalog snapshot complete")

	m.processAll(ctx, snap.Items, options, result)

	// The orphan pass runs once, only against a snapshot read without
	// error, and never after cancellation cut processing short.
	if options.Orphans && ctx.Err() == nil {
		m.reconcileOrphans(ctx, snap, options.DryRun, result)
	}

	if ctx.Err() != nil {
		result.RecordError(errors.ErrCanceled)
	}

	result.Finish()
	log.Info().
		Dur("duration", result.Duration()).
		Msg(result.Summary())
	return result, nil
}

// processAll fans the snapshot's items out to MaxWorkers goroutines.
// Cancellation is cooperative: in-flight items finish, queued items are
// abandoned.
func (m *Metafusion) processAll(ctx context.Context, items []catalogs.Item, options *sync.Options, result *sync.Result) {
	jobs := make(chan catalogs.Item)
	var wg stdsync.WaitGroup

	for i := 0; i < options.MaxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				if ctx.Err() != nil {
					result.RecordSkip(item.Library)
					continue
				}
				m.processItem(ctx, item, options, result)
			}
		}()
	}

	// Items abandoned after the stop signal still count in the summary
	// as skips, on either side of the channel.
feed:
	for i, item := range items {
		select {
		case jobs <- item:
		case <-ctx.Done():
			for _, abandoned := range items[i:] {
				result.RecordSkip(abandoned.Library)
			}
			break feed
		}
	}
	close(jobs)
	wg.Wait()
}

// processItem runs the per-item pipeline: fetch, classify, select assets,
// write output, commit cache. A panic in any stage is contained to the
// item.
func (m *Metafusion) processItem(ctx context.Context, item catalogs.Item, options *sync.Options, result *sync.Result) {
	ctx = logging.WithLibrary(ctx, item.Library)
	ctx = logging.WithItem(ctx, item.FullTitle())
	log := logging.Ctx(ctx)

	defer func() {
		if r := recover(); r != nil {
			err := errors.WrapItem(item.Library, item.FullTitle(), "process", fmt.Errorf("panic: %v", r))
			log.Error().Err(err).Msg("Item processing panicked")
			result.RecordFailure(item.Library, err)
		}
	}()

	key := item.Key()

	if !options.RetryFailed {
		failed, err := m.store.Failed(key)
		if err != nil {
			result.RecordFailure(item.Library, errors.WrapItem(item.Library, item.FullTitle(), "cache", err))
			return
		}
		if failed {
			log.Debug().Msg("Skipping previously failed lookup")
			result.RecordSkip(item.Library)
			return
		}
	}

	entry, found, err := m.store.Get(key)
	if err != nil {
		result.RecordFailure(item.Library, errors.WrapItem(item.Library, item.FullTitle(), "cache", err))
		return
	}
	if !found {
		entry = nil
	}

	ref := provider.Ref{
		Type:  string(item.Type),
		ID:    item.TMDBID,
		Title: item.Title,
		Year:  item.Year,
	}
	record, err := m.provider.Fetch(ctx, ref, item.SeasonNumbers())
	if err != nil {
		if errors.IsNotFound(err) {
			log.Warn().Msg("Provider has no match for item")
			if !options.DryRun {
				if markErr := m.store.MarkFailed(key); markErr != nil {
					log.Error().Err(markErr).Msg("Failed to record lookup failure")
				}
			}
			result.RecordSkip(item.Library)
			return
		}
		result.RecordFailure(item.Library, errors.WrapItem(item.Library, item.FullTitle(), "fetch", err))
		return
	}

	fp := fingerprint.Compute(record)
	outcome := reconcile.Classify(entry, fp)
	result.RecordOutcome(item.Library, outcome)
	log.Debug().Str("outcome", string(outcome)).Msg("Item classified")

	if options.DryRun {
		return
	}

	if outcome == reconcile.OutcomeUnchanged {
		m.heal(ctx, item, record, entry, options, result)
		return
	}

	assets := m.selectAssets(ctx, item, record, entry, options, result)

	entryOut := output.BuildEntry(item, record, options.EnhancedMetadata)
	if err := m.writer.Commit(item.Library, item.FullTitle(), entryOut); err != nil {
		result.RecordFailure(item.Library, errors.WrapItem(item.Library, item.FullTitle(), "write", err))
		return
	}

	// Commit strictly after the output write so a failure between the
	// two re-processes the item next run instead of losing it.
	if err := m.store.Put(key, reconcile.NewEntry(fp, record.ID, assets)); err != nil {
		result.RecordFailure(item.Library, errors.WrapItem(item.Library, item.FullTitle(), "commit", err))
		return
	}
	if err := m.store.ClearFailed(key); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to clear lookup failure")
	}
}

// selectAssets runs the quality cascade for each enabled role, downloads
// the winners, and returns the asset references to commit. A role with no
// qualifying candidate is a normal empty outcome. Download or store
// failures are logged per artifact and skipped; surviving prior
// references are carried forward so the asset is retried next run.
func (m *Metafusion) selectAssets(ctx context.Context, item catalogs.Item, record *provider.Record, prior *reconcile.Entry, options *sync.Options, result *sync.Result) map[string]reconcile.AssetRef {
	if item.MediaDir == "" {
		logging.Ctx(ctx).Debug().Msg("No media directory resolved; skipping assets")
		return nil
	}

	assets := make(map[string]reconcile.AssetRef)

	if options.Posters {
		m.selectOne(ctx, assetRole{
			key:        string(selector.RolePoster),
			file:       "poster.jpg",
			candidates: record.Images.Posters,
			policy:     m.posterPolicy,
		}, item, prior, assets, result)
	}
	if options.Backgrounds {
		m.selectOne(ctx, assetRole{
			key:        string(selector.RoleBackground),
			file:       "fanart.jpg",
			candidates: record.Images.Backdrops,
			policy:     m.backgroundPolicy,
		}, item, prior, assets, result)
	}
	if options.SeasonArt && item.Type == catalogs.MediaTypeTV {
		for _, season := range record.Seasons {
			m.selectOne(ctx, assetRole{
				key:        seasonRoleKey(season.Number),
				file:       fmt.Sprintf("Season%02d.jpg", season.Number),
				candidates: season.Posters,
				policy:     m.posterPolicy,
			}, item, prior, assets, result)
		}
	}

	if len(assets) == 0 {
		return nil
	}
	return assets
}

type assetRole struct {
	key        string
	file       string
	candidates []provider.ImageCandidate
	policy     selector.Policy
}

func (m *Metafusion) selectOne(ctx context.Context, role assetRole, item catalogs.Item, prior *reconcile.Entry, assets map[string]reconcile.AssetRef, result *sync.Result) {
	log := logging.Ctx(ctx)

	winner, ok := selector.Select(role.candidates, role.policy)
	if !ok {
		log.Debug().Str("role", role.key).Msg("No qualifying image candidate")
		m.carryForward(role.key, prior, assets)
		return
	}

	path := assetPath(item, role.file)

	// An unchanged winner that is already stored needs no download.
	if prior != nil {
		if ref, ok := prior.Assets[role.key]; ok && ref.Path == path &&
			ref.Width == winner.Width && ref.Height == winner.Height &&
			ref.VoteAverage == winner.VoteAverage {
			if exists, err := m.assets.Exists(ctx, path); err == nil && exists {
				assets[role.key] = ref
				result.RecordAsset(0)
				return
			}
		}
	}

	data, err := m.provider.Download(ctx, winner.Path)
	if err != nil {
		log.Warn().Err(err).Str("role", role.key).Msg("Image download failed; skipping asset")
		m.carryForward(role.key, prior, assets)
		return
	}
	wrote, err := m.assets.Put(ctx, path, data)
	if err != nil {
		log.Warn().Err(err).Str("role", role.key).Str("path", path).Msg("Asset write failed; skipping asset")
		m.carryForward(role.key, prior, assets)
		return
	}

	assets[role.key] = reconcile.AssetRef{
		Path:        path,
		VoteAverage: winner.VoteAverage,
		Width:       winner.Width,
		Height:      winner.Height,
	}
	if wrote {
		result.RecordAsset(int64(len(data)))
	} else {
		result.RecordAsset(0)
	}
}

// carryForward keeps a prior asset reference when this run produced no
// replacement, so the cleanup pass never treats the stored file as
// orphaned.
func (m *Metafusion) carryForward(key string, prior *reconcile.Entry, assets map[string]reconcile.AssetRef) {
	if prior == nil {
		return
	}
	if ref, ok := prior.Assets[key]; ok {
		assets[key] = ref
	}
}

// heal re-downloads cached winning assets that went missing from storage
// and restores a missing output record, without re-running selection.
func (m *Metafusion) heal(ctx context.Context, item catalogs.Item, record *provider.Record, entry *reconcile.Entry, options *sync.Options, result *sync.Result) {
	log := logging.Ctx(ctx)

	if _, ok, err := m.writer.Entry(item.Library, item.FullTitle()); err == nil && !ok {
		log.Info().Msg("Output record missing; rewriting")
		entryOut := output.BuildEntry(item, record, options.EnhancedMetadata)
		if err := m.writer.Commit(item.Library, item.FullTitle(), entryOut); err != nil {
			log.Error().Err(err).Msg("Failed to restore output record")
		}
	}

	for role, ref := range entry.Assets {
		exists, err := m.assets.Exists(ctx, ref.Path)
		if err != nil {
			log.Warn().Err(err).Str("role", role).Msg("Asset check failed")
			continue
		}
		if exists {
			continue
		}

		log.Info().Str("role", role).Str("path", ref.Path).Msg("Stored asset missing; re-downloading")
		source, ok := sourceForRole(record, role)
		if !ok {
			log.Warn().Str("role", role).Msg("No provider candidate matches cached asset")
			continue
		}
		data, err := m.provider.Download(ctx, source)
		if err != nil {
			log.Warn().Err(err).Str("role", role).Msg("Asset re-download failed")
			continue
		}
		if _, err := m.assets.Put(ctx, ref.Path, data); err != nil {
			log.Warn().Err(err).Str("role", role).Msg("Asset restore failed")
			continue
		}
		result.RecordAsset(int64(len(data)))
	}
}

// seasonRoleKey is the per-season asset role key, e.g. "season01".
func seasonRoleKey(number int) string {
	return fmt.Sprintf("%s%02d", selector.RoleSeason, number)
}

// sourceForRole re-runs selection for one role to find the provider path
// backing a cached asset.
func sourceForRole(record *provider.Record, role string) (string, bool) {
	var candidates []provider.ImageCandidate
	switch {
	case role == string(selector.RolePoster):
		candidates = record.Images.Posters
	case role == string(selector.RoleBackground):
		candidates = record.Images.Backdrops
	default:
		var number int
		if _, err := fmt.Sscanf(role, string(selector.RoleSeason)+"%02d", &number); err != nil {
			return "", false
		}
		for _, season := range record.Seasons {
			if season.Number == number {
				candidates = season.Posters
				break
			}
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	// The highest-voted candidate stands in for the original winner.
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.VoteAverage > best.VoteAverage {
			best = c
		}
	}
	return best.Path, true
}

// assetPath is the storage path for one of an item's asset files.
func assetPath(item catalogs.Item, file string) string {
	return item.Library + "/" + item.MediaDir + "/" + file
}
