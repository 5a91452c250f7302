package driven

import "context"

// EmbeddingService generates vector embeddings from text.
// It is the raw backend; the core wraps it in a lazily-initialised
// Embedder handle that adds caching, batching and dimension checks.
//
// Implementations:
//   - OpenAI-compatible /embeddings (OpenAI, Mistral)
//   - Ollama /api/embed (all-minilm, nomic-embed-text)
//
// Implementations must report an unreachable or misconfigured backend as
// domain.ErrEmbeddingUnavailable and throttling as domain.ErrRateLimited.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	// The result has the same length and order as texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
