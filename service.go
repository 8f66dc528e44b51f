// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package docvec ties the ingestion pipeline together: configuration,
// storage, the document source, the embedding provider, the orchestrator
// and search.
package docvec

import (
	"context"
	"log/slog"

	"github.com/poiesic/docvec/ai"
	"github.com/poiesic/docvec/ai/openai"
	"github.com/poiesic/docvec/config"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/govern"
	"github.com/poiesic/docvec/ingest"
	"github.com/poiesic/docvec/search"
	"github.com/poiesic/docvec/source"
	"github.com/poiesic/docvec/source/googledrive"
	"github.com/poiesic/docvec/storage"
	"github.com/poiesic/docvec/storage/badger"
)

// Service is the top-level handle over one docvec instance.
type Service struct {
	cfg      *config.Store
	backend  *badger.Backend
	tracker  storage.TrackerRepository
	vectors  storage.VectorRepository
	embedder ai.Embedder
	orch     *ingest.Orchestrator
	searcher *search.Searcher
	logger   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	embedder ai.Embedder
	src      source.Source
	inMemory bool
	orchOpts []ingest.Option
}

// WithEmbedder overrides the embedding provider, e.g. with a test double.
func WithEmbedder(embedder ai.Embedder) ServiceOption {
	return func(o *serviceOptions) {
		o.embedder = embedder
	}
}

// WithSource overrides the document source. The default is a Google Drive
// client built from the configured credentials.
func WithSource(src source.Source) ServiceOption {
	return func(o *serviceOptions) {
		o.src = src
	}
}

// WithInMemoryStorage keeps all state in memory, used by tests.
func WithInMemoryStorage() ServiceOption {
	return func(o *serviceOptions) {
		o.inMemory = true
	}
}

// WithOrchestratorOptions passes options through to the orchestrator.
func WithOrchestratorOptions(opts ...ingest.Option) ServiceOption {
	return func(o *serviceOptions) {
		o.orchOpts = append(o.orchOpts, opts...)
	}
}

// NewService builds a service from the TOML config at configPath, creating
// the file with defaults if it does not exist.
func NewService(ctx context.Context, configPath string, opts ...ServiceOption) (*Service, error) {
	options := &serviceOptions{}
	for _, opt := range opts {
		opt(options)
	}

	cfg, err := config.NewStore(configPath)
	if err != nil {
		return nil, err
	}
	settings := cfg.Current()

	backend, err := badger.OpenBackend(settings.Storage.Path, options.inMemory)
	if err != nil {
		return nil, err
	}

	tracker, err := badger.NewTrackerRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	vectors, err := badger.NewVectorRepository(backend, settings.Embedding.Dimensions)
	if err != nil {
		tracker.Close()
		backend.Close()
		return nil, err
	}

	embedder := options.embedder
	if embedder == nil {
		embedder, err = openai.NewEmbedder(ai.NewConfig(
			ai.WithHost(settings.Embedding.Host),
			ai.WithModel(settings.Embedding.Model),
			ai.WithAPIKey(settings.Embedding.APIKey),
			ai.WithDimensions(settings.Embedding.Dimensions),
			ai.WithCostPerMillionTokens(settings.Embedding.CostPerMillionTokens),
		))
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	src := options.src
	if src == nil {
		client, err := googledrive.NewClient(ctx,
			googledrive.WithCredentialsFile(settings.Source.CredentialsFile))
		if err != nil {
			backend.Close()
			return nil, err
		}
		src = client
	}
	cached := source.NewListingCache(src, settings.ListingCacheTTL())

	orch, err := ingest.NewOrchestrator(cfg, cached, tracker, vectors, embedder, options.orchOpts...)
	if err != nil {
		backend.Close()
		return nil, err
	}

	searcher, err := search.NewSearcher(vectors, embedder)
	if err != nil {
		orch.Release()
		backend.Close()
		return nil, err
	}

	return &Service{
		cfg:      cfg,
		backend:  backend,
		tracker:  tracker,
		vectors:  vectors,
		embedder: embedder,
		orch:     orch,
		searcher: searcher,
		logger:   slog.Default(),
	}, nil
}

// Run starts the polling loop and the config file watcher, blocking until
// the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.cfg.Watch(ctx); err != nil {
		s.logger.Warn("config watcher unavailable, settings re-read per cycle only", "err", err)
	}
	return s.orch.Run(ctx)
}

// SyncOnce runs a single processing cycle and returns its stats.
func (s *Service) SyncOnce(ctx context.Context) (ingest.CycleStats, error) {
	return s.orch.RunCycle(ctx)
}

// Search returns up to maxHits chunks ranked by similarity to the query.
func (s *Service) Search(ctx context.Context, query string, maxHits int) ([]*core.SearchResult, error) {
	return s.searcher.FindSimilar(ctx, query, maxHits)
}

// Stats returns lifetime orchestrator totals.
func (s *Service) Stats() ingest.Totals {
	return s.orch.Stats()
}

// GovernorUsage returns the governor's current window usage.
func (s *Service) GovernorUsage() govern.Snapshot {
	return s.orch.GovernorUsage()
}

// Tracker exposes the tracker repository, e.g. for stats reporting.
func (s *Service) Tracker() storage.TrackerRepository {
	return s.tracker
}

// Vectors exposes the vector repository.
func (s *Service) Vectors() storage.VectorRepository {
	return s.vectors
}

// Config exposes the settings store.
func (s *Service) Config() *config.Store {
	return s.cfg
}

// Close releases the orchestrator and closes storage.
func (s *Service) Close() error {
	s.orch.Release()

	if err := s.vectors.Close(); err != nil {
		s.logger.Error("error closing vector repository", "err", err)
		return err
	}
	if err := s.tracker.Close(); err != nil {
		s.logger.Error("error closing tracker repository", "err", err)
		return err
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}
