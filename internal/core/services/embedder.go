package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
	"github.com/custodia-labs/ragkb/internal/logger"
)

// Embedder defaults.
const (
	DefaultEmbedBatchSize = 32
	DefaultEmbedCacheSize = 512
	DefaultEmbedTimeout   = 30 * time.Second
)

// EmbeddingBuilder constructs the embedding backend.
type EmbeddingBuilder func() (driven.EmbeddingService, error)

// EmbedderOptions configures an Embedder.
type EmbedderOptions struct {
	// Dimensions is the vector size D every result must have.
	Dimensions int

	// BatchSize bounds the texts sent per backend call.
	BatchSize int

	// CacheSize is the number of single-text embeddings cached.
	// Negative disables the cache.
	CacheSize int

	// Timeout bounds each backend call.
	Timeout time.Duration

	// Retry is applied to throttled backend calls. Its predicate defaults
	// to IsRateLimited.
	Retry RetryPolicy
}

// Embedder is the process-wide embedding handle. The backend is built on
// first use, at most once; a failed build is remembered and reported on
// every later call.
type Embedder struct {
	build EmbeddingBuilder
	opts  EmbedderOptions

	once    sync.Once
	backend driven.EmbeddingService
	initErr error
	ready   atomic.Bool

	cache *lru.Cache[string, []float32]
}

// NewEmbedder creates a lazily-initialised embedder.
func NewEmbedder(build EmbeddingBuilder, opts EmbedderOptions) *Embedder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultEmbedBatchSize
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = DefaultEmbedCacheSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultEmbedTimeout
	}
	if opts.Retry.Name == "" {
		opts.Retry.Name = "embedding"
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = IsRateLimited
	}

	e := &Embedder{build: build, opts: opts}
	if opts.CacheSize > 0 {
		// Only fails for a non-positive size.
		e.cache, _ = lru.New[string, []float32](opts.CacheSize)
	}
	return e
}

// NewEmbedderFor wraps an already constructed backend.
func NewEmbedderFor(svc driven.EmbeddingService, opts EmbedderOptions) *Embedder {
	return NewEmbedder(func() (driven.EmbeddingService, error) { return svc, nil }, opts)
}

func (e *Embedder) service() (driven.EmbeddingService, error) {
	e.once.Do(func() {
		if e.build == nil {
			e.initErr = fmt.Errorf("%w: no embedding backend configured", domain.ErrEmbeddingUnavailable)
			return
		}
		svc, err := e.build()
		switch {
		case err != nil:
			e.initErr = fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
		case svc == nil:
			e.initErr = fmt.Errorf("%w: backend builder returned nil", domain.ErrEmbeddingUnavailable)
		default:
			e.backend = svc
			e.ready.Store(true)
			logger.Debug("Embedding backend ready: %s (%d dimensions)", svc.ModelName(), e.Dimensions())
		}
	})
	return e.backend, e.initErr
}

// Dimensions returns the configured vector size, or the backend's when
// none was configured.
func (e *Embedder) Dimensions() int {
	if e.opts.Dimensions > 0 {
		return e.opts.Dimensions
	}
	if e.ready.Load() {
		return e.backend.Dimensions()
	}
	return 0
}

// ModelName returns the backend model name, or "" before initialisation.
func (e *Embedder) ModelName() string {
	if !e.ready.Load() {
		return ""
	}
	return e.backend.ModelName()
}

// EmbedOne embeds a single text. Results are cached by text.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if e.cache != nil {
		if v, ok := e.cache.Get(text); ok {
			return v, nil
		}
	}

	svc, err := e.service()
	if err != nil {
		return nil, err
	}

	vec, err := Retry(ctx, e.opts.Retry, func(ctx context.Context) ([]float32, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
		return svc.Embed(callCtx, text)
	})
	if err != nil {
		return nil, classifyEmbedError(ctx, err)
	}
	if err := e.checkDimensions(vec); err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.Add(text, vec)
	}
	return vec, nil
}

// EmbedMany embeds texts in batches. The result has the same length and
// order as texts.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	svc, err := e.service()
	if err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.opts.BatchSize {
		end := min(start+e.opts.BatchSize, len(texts))
		batch := texts[start:end]

		vecs, err := Retry(ctx, e.opts.Retry, func(ctx context.Context) ([][]float32, error) {
			callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
			defer cancel()
			return svc.EmbedBatch(callCtx, batch)
		})
		if err != nil {
			return nil, classifyEmbedError(ctx, err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("%w: backend returned %d vectors for %d texts",
				domain.ErrEmbeddingUnavailable, len(vecs), len(batch))
		}
		for _, v := range vecs {
			if err := e.checkDimensions(v); err != nil {
				return nil, err
			}
		}
		out = append(out, vecs...)
		logger.Debug("Embedded batch %d-%d of %d", start, end, len(texts))
	}

	return out, nil
}

// Ping initialises the backend if needed and checks it is reachable.
func (e *Embedder) Ping(ctx context.Context) error {
	svc, err := e.service()
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()
	if err := svc.Ping(callCtx); err != nil {
		return classifyEmbedError(ctx, err)
	}
	return nil
}

// Close releases the backend if it was built.
func (e *Embedder) Close() error {
	if !e.ready.Load() {
		return nil
	}
	return e.backend.Close()
}

func (e *Embedder) checkDimensions(vec []float32) error {
	if want := e.Dimensions(); want > 0 && len(vec) != want {
		return fmt.Errorf("%w: embedding has dimension %d, expected %d",
			domain.ErrConfiguration, len(vec), want)
	}
	return nil
}

// classifyEmbedError keeps categorised errors and caller cancellation,
// and reports anything else (including call timeouts) as unavailable.
func classifyEmbedError(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return err
	case errors.Is(err, domain.ErrBackendUnavailable),
		errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, domain.ErrConfiguration),
		errors.Is(err, domain.ErrInvalidInput):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
}
