// Package metafusion reconciles a media server's library against a
// third-party metadata provider: it detects which items changed since the
// last run, rewrites their output metadata, selects and downloads artwork
// under a tiered quality policy, and cleans up artifacts for items that
// left the library.
package metafusion

import (
	"fmt"

	"github.com/metafusion/metafusion/internal/output"
	"github.com/metafusion/metafusion/internal/storage"
	"github.com/metafusion/metafusion/pkg/catalogs"
	"github.com/metafusion/metafusion/pkg/errors"
	"github.com/metafusion/metafusion/pkg/provider"
	"github.com/metafusion/metafusion/pkg/reconcile"
	"github.com/metafusion/metafusion/pkg/selector"
)

// Metafusion is the reconciliation engine. Construct it with New and the
// required components, then call Sync.
type Metafusion struct {
	source   catalogs.Source
	provider provider.Client
	store    reconcile.Store
	assets   storage.Backend
	writer   *output.Writer

	posterPolicy     selector.Policy
	backgroundPolicy selector.Policy
}

// New creates an engine. A catalog source, provider client, cache store,
// asset storage backend, and output writer are all required.
func New(opts ...Option) (*Metafusion, error) {
	m := &Metafusion{
		posterPolicy:     selector.DefaultPosterPolicy(),
		backgroundPolicy: selector.DefaultBackgroundPolicy(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	switch {
	case m.source == nil:
		return nil, errors.NewValidationError("source", nil, "catalog source is required")
	case m.provider == nil:
		return nil, errors.NewValidationError("provider", nil, "provider client is required")
	case m.store == nil:
		return nil, errors.NewValidationError("store", nil, "cache store is required")
	case m.assets == nil:
		return nil, errors.NewValidationError("assets", nil, "asset storage is required")
	case m.writer == nil:
		return nil, errors.NewValidationError("writer", nil, "output writer is required")
	}

	if err := m.posterPolicy.Validate(); err != nil {
		return nil, err
	}
	if err := m.backgroundPolicy.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Option configures a Metafusion instance.
type Option func(*Metafusion) error

// WithCatalogSource sets the media server catalog source.
func WithCatalogSource(source catalogs.Source) Option {
	return func(m *Metafusion) error {
		m.source = source
		return nil
	}
}

// WithProviderClient sets the metadata provider client.
func WithProviderClient(client provider.Client) Option {
	return func(m *Metafusion) error {
		m.provider = client
		return nil
	}
}

// WithStore sets the reconciliation cache store.
func WithStore(store reconcile.Store) Option {
	return func(m *Metafusion) error {
		m.store = store
		return nil
	}
}

// WithAssetStorage sets the backend that holds downloaded artwork.
func WithAssetStorage(backend storage.Backend) Option {
	return func(m *Metafusion) error {
		m.assets = backend
		return nil
	}
}

// WithOutputWriter sets the metadata output writer.
func WithOutputWriter(writer *output.Writer) Option {
	return func(m *Metafusion) error {
		m.writer = writer
		return nil
	}
}

// WithPosterPolicy overrides the quality cascade for posters and season art.
func WithPosterPolicy(policy selector.Policy) Option {
	return func(m *Metafusion) error {
		m.posterPolicy = policy
		return nil
	}
}

// WithBackgroundPolicy overrides the quality cascade for backdrops.
func WithBackgroundPolicy(policy selector.Policy) Option {
	return func(m *Metafusion) error {
		m.backgroundPolicy = policy
		return nil
	}
}
