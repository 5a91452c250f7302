package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an embedding or completion service provider.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is the OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderOpenRouter is the OpenRouter gateway (OpenAI-compatible).
	AIProviderOpenRouter AIProvider = "openrouter"

	// AIProviderMistral is the Mistral cloud API (OpenAI-compatible).
	AIProviderMistral AIProvider = "mistral"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderOpenRouter, AIProviderMistral:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p != AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderOpenRouter:
		return "OpenRouter (cloud gateway)"
	case AIProviderMistral:
		return "Mistral (cloud)"
	default:
		return unknownDescription
	}
}

// DefaultBaseURL returns the API root used when none is configured.
func (p AIProvider) DefaultBaseURL() string {
	switch p {
	case AIProviderOllama:
		return "http://localhost:11434"
	case AIProviderOpenAI:
		return "https://api.openai.com/v1"
	case AIProviderOpenRouter:
		return "https://openrouter.ai/api/v1"
	case AIProviderMistral:
		return "https://api.mistral.ai/v1"
	default:
		return ""
	}
}

// EmbeddingSettings holds embedding backend configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint. Empty means the provider default.
	BaseURL string

	// APIKey is the API key for cloud providers.
	APIKey string

	// Dimensions is the fixed vector size D agreed with the vector index.
	Dimensions int

	// BatchSize bounds the number of texts sent per request.
	BatchSize int

	// RequestsPerSecond throttles outbound calls. Zero disables throttling.
	RequestsPerSecond float64

	// CacheSize is the number of query embeddings kept in memory.
	CacheSize int

	// MaxRetries is the attempt budget when the backend rate limits.
	// One means a single attempt.
	MaxRetries int

	// Timeout bounds each backend call.
	Timeout time.Duration
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return e.Dimensions > 0
}

// LLMSettings holds completion service configuration.
type LLMSettings struct {
	// Provider is the completion service provider.
	Provider AIProvider

	// Model is the model identifier.
	Model string

	// BaseURL is the API endpoint. Empty means the provider default.
	BaseURL string

	// APIKey is the API key for cloud providers.
	APIKey string

	// Temperature is the sampling temperature.
	Temperature float64

	// MaxTokens caps the generated answer length.
	MaxTokens int

	// Timeout bounds each completion call.
	Timeout time.Duration

	// MaxRetries is the attempt budget when the service rate limits.
	MaxRetries int

	// RetryBaseDelay is the first backoff delay. Each retry doubles it.
	RetryBaseDelay time.Duration
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return l.Model != ""
}

// ChunkingSettings holds chunker configuration.
type ChunkingSettings struct {
	// Size is the target chunk size in characters.
	Size int

	// Overlap is the number of characters repeated between character-split chunks.
	Overlap int
}

// VectorBackend selects the vector index implementation.
type VectorBackend string

// Available vector index backends.
const (
	VectorBackendQdrant   VectorBackend = "qdrant"
	VectorBackendPGVector VectorBackend = "pgvector"
	VectorBackendMemory   VectorBackend = "memory"
)

// VectorIndexSettings holds vector index configuration.
type VectorIndexSettings struct {
	// Backend selects the implementation.
	Backend VectorBackend

	// URL is the Qdrant endpoint.
	URL string

	// APIKey is the optional Qdrant API key.
	APIKey string

	// Collection is the collection (or table) holding chunk vectors.
	Collection string

	// Timeout bounds each index call.
	Timeout time.Duration
}

// StorageBackend selects the relational store implementation.
type StorageBackend string

// Available storage backends.
const (
	StorageBackendSQLite   StorageBackend = "sqlite"
	StorageBackendPostgres StorageBackend = "postgres"
	StorageBackendMemory   StorageBackend = "memory"
)

// StorageSettings holds relational store configuration.
type StorageSettings struct {
	// Backend selects the implementation.
	Backend StorageBackend

	// DataDir holds the sqlite database file.
	DataDir string

	// DatabaseURL is the Postgres connection string.
	DatabaseURL string
}

// ServerSettings holds HTTP server configuration.
type ServerSettings struct {
	// Addr is the listen address.
	Addr string
}

// Settings holds all application settings.
type Settings struct {
	Embedding   EmbeddingSettings
	LLM         LLMSettings
	Chunking    ChunkingSettings
	VectorIndex VectorIndexSettings
	Storage     StorageSettings
	Server      ServerSettings

	// PromptDir overrides the directory holding prompt templates.
	PromptDir string
}

// DefaultSettings returns settings with the documented defaults.
// Credentials are left empty.
func DefaultSettings() Settings {
	return Settings{
		Embedding: EmbeddingSettings{
			Provider:   AIProviderOllama,
			Model:      "all-minilm",
			Dimensions: 384,
			BatchSize:  32,
			CacheSize:  512,
			MaxRetries: 5,
			Timeout:    30 * time.Second,
		},
		LLM: LLMSettings{
			Provider:       AIProviderOpenRouter,
			Model:          "meta-llama/llama-3.1-8b-instruct:free",
			Temperature:    0.7,
			MaxTokens:      1000,
			Timeout:        60 * time.Second,
			MaxRetries:     5,
			RetryBaseDelay: 5 * time.Second,
		},
		Chunking: ChunkingSettings{
			Size:    500,
			Overlap: 50,
		},
		VectorIndex: VectorIndexSettings{
			Backend:    VectorBackendQdrant,
			URL:        "http://localhost:6333",
			Collection: "ragkb_chunks",
			Timeout:    30 * time.Second,
		},
		Storage: StorageSettings{
			Backend: StorageBackendSQLite,
		},
		Server: ServerSettings{
			Addr: ":8000",
		},
	}
}

// Validate reports missing credentials, endpoints and inconsistent values
// as ErrConfiguration.
func (s Settings) Validate() error {
	if !s.Embedding.Provider.IsValid() {
		return fmt.Errorf("%w: unknown embedding provider %q", ErrConfiguration, s.Embedding.Provider)
	}
	if s.Embedding.Provider.RequiresAPIKey() && s.Embedding.APIKey == "" {
		return fmt.Errorf("%w: embedding provider %s requires an API key", ErrConfiguration, s.Embedding.Provider)
	}
	if s.Embedding.Dimensions <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", ErrConfiguration)
	}
	if !s.LLM.Provider.IsValid() {
		return fmt.Errorf("%w: unknown LLM provider %q", ErrConfiguration, s.LLM.Provider)
	}
	if s.LLM.Provider.RequiresAPIKey() && s.LLM.APIKey == "" {
		return fmt.Errorf("%w: LLM provider %s requires an API key", ErrConfiguration, s.LLM.Provider)
	}
	if s.LLM.Model == "" {
		return fmt.Errorf("%w: LLM model is required", ErrConfiguration)
	}
	if s.LLM.MaxRetries < 1 {
		return fmt.Errorf("%w: LLM max retries must be at least 1", ErrConfiguration)
	}
	if s.Chunking.Size <= 0 || s.Chunking.Overlap < 0 || s.Chunking.Overlap >= s.Chunking.Size {
		return fmt.Errorf("%w: chunk overlap must be in [0, size)", ErrConfiguration)
	}
	switch s.VectorIndex.Backend {
	case VectorBackendQdrant:
		if s.VectorIndex.URL == "" {
			return fmt.Errorf("%w: qdrant URL is required", ErrConfiguration)
		}
	case VectorBackendPGVector:
		if s.Storage.DatabaseURL == "" {
			return fmt.Errorf("%w: pgvector requires a database URL", ErrConfiguration)
		}
	case VectorBackendMemory:
	default:
		return fmt.Errorf("%w: unknown vector backend %q", ErrConfiguration, s.VectorIndex.Backend)
	}
	if s.VectorIndex.Collection == "" {
		return fmt.Errorf("%w: vector collection name is required", ErrConfiguration)
	}
	switch s.Storage.Backend {
	case StorageBackendSQLite, StorageBackendMemory:
	case StorageBackendPostgres:
		if s.Storage.DatabaseURL == "" {
			return fmt.Errorf("%w: postgres storage requires a database URL", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrConfiguration, s.Storage.Backend)
	}
	return nil
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{AIProviderOllama, AIProviderOpenAI, AIProviderMistral}
}

// AllLLMProviders returns providers that support completions.
func AllLLMProviders() []AIProvider {
	return []AIProvider{AIProviderOllama, AIProviderOpenAI, AIProviderOpenRouter, AIProviderMistral}
}
