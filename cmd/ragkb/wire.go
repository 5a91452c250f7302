package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/custodia-labs/ragkb/internal/adapters/driven/ai"
	"github.com/custodia-labs/ragkb/internal/adapters/driven/config/env"
	"github.com/custodia-labs/ragkb/internal/adapters/driven/config/file"
	memstore "github.com/custodia-labs/ragkb/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragkb/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/ragkb/internal/adapters/driven/storage/sqlite"
	memindex "github.com/custodia-labs/ragkb/internal/adapters/driven/vectorindex/memory"
	"github.com/custodia-labs/ragkb/internal/adapters/driven/vectorindex/pgvector"
	"github.com/custodia-labs/ragkb/internal/adapters/driven/vectorindex/qdrant"
	"github.com/custodia-labs/ragkb/internal/adapters/driving/cli"
	"github.com/custodia-labs/ragkb/internal/connectors/filesystem"
	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
	"github.com/custodia-labs/ragkb/internal/core/services"
	"github.com/custodia-labs/ragkb/internal/logger"
	"github.com/custodia-labs/ragkb/internal/normalisers"
	"github.com/custodia-labs/ragkb/internal/normalisers/html"
	"github.com/custodia-labs/ragkb/internal/normalisers/markdown"
	"github.com/custodia-labs/ragkb/internal/normalisers/pdf"
	"github.com/custodia-labs/ragkb/internal/normalisers/plaintext"
	"github.com/custodia-labs/ragkb/internal/postprocessors/chunker"
)

// Process settings that are not part of the stored configuration.
const (
	configDirEnv = "RAGKB_CONFIG_DIR"
	dotEnvFile   = ".env"
)

// embedRetryDelay is the first backoff delay when the embedding backend
// rate limits.
const embedRetryDelay = time.Second

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c *closers) add(fn func() error) {
	*c = append(*c, fn)
}

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// boot builds the services a command needs. It implements cli.Bootstrap.
func boot(ctx context.Context, scope cli.Scope) (*cli.Services, func() error, error) {
	settingsSvc, err := newSettingsService()
	if err != nil {
		return nil, nil, err
	}
	svcs := &cli.Services{Settings: settingsSvc}
	if scope != cli.ScopeFull {
		return svcs, nil, nil
	}

	settings := settingsSvc.Get()
	if err := settings.Validate(); err != nil {
		// Missing LLM credentials only matter once a question is asked.
		logger.Debug("Configuration incomplete: %v", err)
	}

	var cs closers
	fail := func(err error) (*cli.Services, func() error, error) {
		if cerr := cs.close(); cerr != nil {
			logger.Warn("Releasing resources: %v", cerr)
		}
		return nil, nil, err
	}

	chunks, err := chunker.FromSettings(settings.Chunking)
	if err != nil {
		return fail(err)
	}

	store, logs, pg, err := openStore(ctx, settings.Storage)
	if err != nil {
		return fail(err)
	}
	cs.add(store.Close)

	index, err := openIndex(ctx, settings, pg)
	if err != nil {
		return fail(err)
	}
	cs.add(index.Close)

	if err := index.EnsureCollection(ctx, settings.Embedding.Dimensions); err != nil {
		logger.Warn("Vector collection %s not ready: %v", settings.VectorIndex.Collection, err)
	}

	embedSettings := settings.Embedding
	embedder := services.NewEmbedder(func() (driven.EmbeddingService, error) {
		return ai.CreateEmbeddingService(embedSettings)
	}, services.EmbedderOptions{
		Dimensions: embedSettings.Dimensions,
		BatchSize:  embedSettings.BatchSize,
		CacheSize:  embedSettings.CacheSize,
		Timeout:    embedSettings.Timeout,
		Retry: services.RetryPolicy{
			MaxAttempts: embedSettings.MaxRetries,
			BaseDelay:   embedRetryDelay,
		},
	})
	cs.add(embedder.Close)

	llm := ai.NewLazyLLMService(settings.LLM)
	cs.add(llm.Close)

	prompts, err := file.NewPromptStore(settings.PromptDir)
	if err != nil {
		return fail(err)
	}

	registry := normalisers.NewRegistry(
		plaintext.New(),
		markdown.New(),
		html.New(),
		pdf.New(),
	)

	retriever := services.NewRetriever(embedder, index, store)
	retriever.SetIndexTimeout(settings.VectorIndex.Timeout)

	ingestion := services.NewIngestionService(store, index, embedder, chunks)
	ingestion.SetIndexTimeout(settings.VectorIndex.Timeout)

	svcs.Answer = services.NewAnswerService(retriever, llm, prompts, logs, settings.LLM)
	svcs.Ingestion = ingestion
	svcs.Search = retriever
	svcs.Stats = services.NewStatsService(store, logs, index, settings.Embedding.Dimensions)
	svcs.Sync = services.NewSyncOrchestrator(ingestion, store, registry,
		func(root string) (driven.Connector, error) {
			return filesystem.New(root), nil
		},
		services.WithFileReader(func(path string) (domain.RawDocument, error) {
			return filesystem.ReadFile(path, filesystem.DefaultMaxFileSize)
		}),
	)

	return svcs, cs.close, nil
}

func newSettingsService() (*services.SettingsService, error) {
	configStore, err := file.NewConfigStore(os.Getenv(configDirEnv))
	if err != nil {
		return nil, fmt.Errorf("%w: loading config: %w", domain.ErrConfiguration, err)
	}

	lookup, err := env.WithDotEnv(dotEnvFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", domain.ErrConfiguration, dotEnvFile, err)
	}

	return services.NewSettingsService(configStore,
		services.WithOverlay(env.Overlay(lookup)),
		services.WithFactories(ai.CreateEmbeddingService, ai.CreateLLMService),
	), nil
}

// documentStore is what the services need from a relational backend.
type documentStore interface {
	driven.DocumentStore
	driven.QueryLogStore
}

// openStore opens the configured relational store. The Postgres store is
// also returned on its own so pgvector can share its pool.
func openStore(
	ctx context.Context, cfg domain.StorageSettings,
) (driven.DocumentStore, driven.QueryLogStore, *postgres.Store, error) {
	var (
		store documentStore
		pg    *postgres.Store
		err   error
	)
	switch cfg.Backend {
	case domain.StorageBackendSQLite:
		store, err = sqlite.NewStore(cfg.DataDir)
	case domain.StorageBackendPostgres:
		pg, err = postgres.Open(ctx, cfg.DatabaseURL)
		store = pg
	case domain.StorageBackendMemory:
		store = memstore.NewDocumentStore()
	default:
		return nil, nil, nil, fmt.Errorf("%w: storage backend %q", domain.ErrUnsupportedType, cfg.Backend)
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening %s store: %w", cfg.Backend, err)
	}
	logger.Debug("Storage: %s", cfg.Backend)
	return store, store, pg, nil
}

func openIndex(ctx context.Context, settings domain.Settings, pg *postgres.Store) (driven.VectorIndex, error) {
	cfg := settings.VectorIndex
	logger.Debug("Vector index: %s (%s)", cfg.Backend, cfg.Collection)

	switch cfg.Backend {
	case domain.VectorBackendQdrant:
		return qdrant.New(qdrant.Config{
			URL:        cfg.URL,
			APIKey:     cfg.APIKey,
			Collection: cfg.Collection,
			Timeout:    cfg.Timeout,
		}), nil
	case domain.VectorBackendPGVector:
		if pg != nil {
			return pgvector.New(pg.DB(), cfg.Collection), nil
		}
		if settings.Storage.DatabaseURL == "" {
			return nil, fmt.Errorf("%w: pgvector requires a database URL", domain.ErrConfiguration)
		}
		return pgvector.Open(ctx, settings.Storage.DatabaseURL, cfg.Collection)
	case domain.VectorBackendMemory:
		return memindex.New(cfg.Collection), nil
	default:
		return nil, fmt.Errorf("%w: vector backend %q", domain.ErrUnsupportedType, cfg.Backend)
	}
}
