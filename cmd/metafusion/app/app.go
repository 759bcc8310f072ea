// Package app provides the application context and dependency management
// for the metafusion CLI. It centralizes configuration, logging, and the
// construction of the reconciliation engine from configured components.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/metafusion/metafusion"
	"github.com/metafusion/metafusion/internal/cache"
	"github.com/metafusion/metafusion/internal/output"
	"github.com/metafusion/metafusion/internal/plex"
	"github.com/metafusion/metafusion/internal/storage"
	"github.com/metafusion/metafusion/internal/tmdb"
	"github.com/metafusion/metafusion/pkg/provider"
)

// App represents the metafusion application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string

	// Configuration
	config *Config

	// Logger
	logger *zerolog.Logger

	// Engine and its closable resources (lazy-initialized, singleton)
	mu     sync.Mutex
	engine *metafusion.Metafusion
	store  *cache.Store
}

// New creates a new App instance with the given version information.
func New(version, commit, date string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Option configures an App during construction.
type Option func(*App) error

// WithLogger overrides the configured logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// Version returns the version string.
func (a *App) Version() string {
	return a.version
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// Engine returns the reconciliation engine, creating it lazily from the
// configured Plex server, TMDB credentials, cache, and storage backend.
// Thread-safe; only one instance is ever created.
func (a *App) Engine(ctx context.Context) (*metafusion.Metafusion, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.engine != nil {
		return a.engine, nil
	}

	if err := a.config.ValidateRun(); err != nil {
		return nil, err
	}

	source, err := plex.New(plex.Config{
		URL:   a.config.PlexURL,
		Token: a.config.PlexToken,
	})
	if err != nil {
		return nil, err
	}

	client, err := tmdb.New(tmdb.Config{
		APIKey:   a.config.TMDBAPIKey,
		Language: a.config.TMDBLanguage,
		Region:   a.config.TMDBRegion,
		Retry: provider.RetryPolicy{
			MaxAttempts:   a.config.MaxRetries,
			BackoffFactor: a.config.BackoffFactor,
			InitialDelay:  time.Second,
			MaxDelay:      30 * time.Second,
		},
	})
	if err != nil {
		return nil, err
	}

	store, err := cache.Open(a.config.CacheDir)
	if err != nil {
		return nil, err
	}

	assets, err := a.buildAssetBackend(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}

	writer, err := output.NewWriter(a.config.MetadataDir)
	if err != nil {
		store.Close()
		return nil, err
	}

	engineOpts := []metafusion.Option{
		metafusion.WithCatalogSource(source),
		metafusion.WithProviderClient(client),
		metafusion.WithStore(store),
		metafusion.WithAssetStorage(assets),
		metafusion.WithOutputWriter(writer),
	}
	if !a.config.PosterPolicy.IsZero() {
		engineOpts = append(engineOpts, metafusion.WithPosterPolicy(a.config.PosterPolicy))
	}
	if !a.config.BackgroundPolicy.IsZero() {
		engineOpts = append(engineOpts, metafusion.WithBackgroundPolicy(a.config.BackgroundPolicy))
	}

	engine, err := metafusion.New(engineOpts...)
	if err != nil {
		store.Close()
		return nil, err
	}

	a.engine = engine
	a.store = store
	return engine, nil
}

// buildAssetBackend picks S3 when an endpoint is configured, local disk
// otherwise.
func (a *App) buildAssetBackend(ctx context.Context) (storage.Backend, error) {
	if a.config.S3Endpoint != "" {
		return storage.NewS3(ctx, storage.S3Config{
			Endpoint:  a.config.S3Endpoint,
			AccessKey: a.config.S3AccessKey,
			SecretKey: a.config.S3SecretKey,
			Bucket:    a.config.S3Bucket,
			Region:    a.config.S3Region,
			UseSSL:    a.config.S3UseSSL,
		})
	}
	return storage.NewLocal(a.config.AssetsDir)
}

// Shutdown releases the engine's resources. Safe to call multiple times
// and before the engine was ever built.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	a.engine = nil
	return err
}
