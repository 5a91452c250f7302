// Package env overlays settings from a .env file and the process
// environment. It is the highest-precedence configuration layer.
package env

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/logger"
)

// Lookup returns the value of an environment variable.
type Lookup func(key string) (string, bool)

// Variables read by Overlay.
//
//nolint:gosec // G101: variable names, not credentials.
const (
	EmbeddingProvider = "EMBEDDING_PROVIDER"
	EmbeddingModel    = "EMBEDDING_MODEL"
	EmbeddingBaseURL  = "EMBEDDING_BASE_URL"
	EmbeddingAPIKey   = "EMBEDDING_API_KEY"
	VectorSize        = "VECTOR_SIZE"
	ChunkSize         = "CHUNK_SIZE"
	ChunkOverlap      = "CHUNK_OVERLAP"
	QdrantURL         = "QDRANT_URL"
	QdrantAPIKey      = "QDRANT_API_KEY"
	QdrantCollection  = "QDRANT_COLLECTION"
	VectorBackend     = "VECTOR_BACKEND"
	LLMProvider       = "LLM_PROVIDER"
	LLMModel          = "LLM_MODEL"
	LLMBaseURL        = "LLM_BASE_URL"
	LLMAPIKey         = "LLM_API_KEY"
	LLMTemperature    = "LLM_TEMPERATURE"
	LLMMaxTokens      = "LLM_MAX_TOKENS"
	LLMMaxRetries     = "LLM_MAX_RETRIES"
	LLMRetryBaseDelay = "LLM_RETRY_BASE_DELAY"
	OpenAIAPIKey      = "OPENAI_API_KEY"
	OpenRouterAPIKey  = "OPENROUTER_API_KEY"
	MistralAPIKey     = "MISTRAL_API_KEY"
	DatabaseURL       = "DATABASE_URL"
	StorageBackend    = "STORAGE_BACKEND"
	DataDir           = "DATA_DIR"
	HTTPAddr          = "HTTP_ADDR"
	PromptDir         = "PROMPT_DIR"
)

// providerKeys maps a provider to the variable holding its API key.
var providerKeys = map[domain.AIProvider]string{
	domain.AIProviderOpenAI:     OpenAIAPIKey,
	domain.AIProviderOpenRouter: OpenRouterAPIKey,
	domain.AIProviderMistral:    MistralAPIKey,
}

// Process looks variables up in the process environment.
func Process() Lookup {
	return os.LookupEnv
}

// WithDotEnv reads a .env file and returns a Lookup in which the process
// environment wins over the file. A missing file is not an error.
func WithDotEnv(path string) (Lookup, error) {
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Process(), nil
	}
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	}, nil
}

// Overlay returns a function that applies every set variable to settings.
// Unparseable numbers and durations are logged and ignored.
func Overlay(lookup Lookup) func(*domain.Settings) {
	return func(s *domain.Settings) {
		o := overlay{lookup: lookup}

		o.provider(EmbeddingProvider, &s.Embedding.Provider)
		o.str(EmbeddingModel, &s.Embedding.Model)
		o.str(EmbeddingBaseURL, &s.Embedding.BaseURL)
		o.str(EmbeddingAPIKey, &s.Embedding.APIKey)
		o.integer(VectorSize, &s.Embedding.Dimensions)

		o.integer(ChunkSize, &s.Chunking.Size)
		o.integer(ChunkOverlap, &s.Chunking.Overlap)

		if v, ok := o.get(VectorBackend); ok {
			s.VectorIndex.Backend = domain.VectorBackend(strings.ToLower(v))
		}
		o.str(QdrantURL, &s.VectorIndex.URL)
		o.str(QdrantAPIKey, &s.VectorIndex.APIKey)
		o.str(QdrantCollection, &s.VectorIndex.Collection)

		o.provider(LLMProvider, &s.LLM.Provider)
		o.str(LLMModel, &s.LLM.Model)
		o.str(LLMBaseURL, &s.LLM.BaseURL)
		o.str(LLMAPIKey, &s.LLM.APIKey)
		o.float(LLMTemperature, &s.LLM.Temperature)
		o.integer(LLMMaxTokens, &s.LLM.MaxTokens)
		o.integer(LLMMaxRetries, &s.LLM.MaxRetries)
		o.duration(LLMRetryBaseDelay, &s.LLM.RetryBaseDelay)

		// Provider keys fill in only what is still missing.
		o.providerKey(s.Embedding.Provider, &s.Embedding.APIKey)
		o.providerKey(s.LLM.Provider, &s.LLM.APIKey)

		if v, ok := o.get(StorageBackend); ok {
			s.Storage.Backend = domain.StorageBackend(strings.ToLower(v))
		}
		o.str(DatabaseURL, &s.Storage.DatabaseURL)
		o.str(DataDir, &s.Storage.DataDir)

		o.str(HTTPAddr, &s.Server.Addr)
		o.str(PromptDir, &s.PromptDir)
	}
}

type overlay struct {
	lookup Lookup
}

// get returns a trimmed, non-empty value.
func (o overlay) get(key string) (string, bool) {
	v, ok := o.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (o overlay) str(key string, dst *string) {
	if v, ok := o.get(key); ok {
		*dst = v
	}
}

func (o overlay) integer(key string, dst *int) {
	v, ok := o.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn("Ignoring %s=%q: not an integer", key, v)
		return
	}
	*dst = n
}

func (o overlay) float(key string, dst *float64) {
	v, ok := o.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warn("Ignoring %s=%q: not a number", key, v)
		return
	}
	*dst = f
}

// duration accepts a Go duration ("5s") or a number of seconds ("5", "0.5").
func (o overlay) duration(key string, dst *time.Duration) {
	v, ok := o.get(key)
	if !ok {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		logger.Warn("Ignoring %s=%q: not a duration", key, v)
		return
	}
	*dst = time.Duration(secs * float64(time.Second))
}

func (o overlay) provider(key string, dst *domain.AIProvider) {
	v, ok := o.get(key)
	if !ok {
		return
	}
	p := domain.AIProvider(strings.ToLower(v))
	if !p.IsValid() {
		logger.Warn("Ignoring %s=%q: unknown provider", key, v)
		return
	}
	*dst = p
}

func (o overlay) providerKey(p domain.AIProvider, dst *string) {
	if *dst != "" {
		return
	}
	if name, ok := providerKeys[p]; ok {
		o.str(name, dst)
	}
}
