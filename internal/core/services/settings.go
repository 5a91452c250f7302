package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
	"github.com/custodia-labs/ragkb/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	KeyEmbedProvider   = "embedding.provider"
	KeyEmbedModel      = "embedding.model"
	KeyEmbedBaseURL    = "embedding.base_url"
	KeyEmbedAPIKey     = "embedding.api_key"
	KeyEmbedDims       = "embedding.dimensions"
	KeyEmbedBatchSize  = "embedding.batch_size"
	KeyEmbedRPS        = "embedding.requests_per_second"
	KeyEmbedCacheSize  = "embedding.cache_size"
	KeyEmbedRetries    = "embedding.max_retries"
	KeyEmbedTimeout    = "embedding.timeout"
	KeyLLMProvider     = "llm.provider"
	KeyLLMModel        = "llm.model"
	KeyLLMBaseURL      = "llm.base_url"
	KeyLLMAPIKey       = "llm.api_key"
	KeyLLMTemperature  = "llm.temperature"
	KeyLLMMaxTokens    = "llm.max_tokens"
	KeyLLMTimeout      = "llm.timeout"
	KeyLLMRetries      = "llm.max_retries"
	KeyLLMRetryDelay   = "llm.retry_base_delay"
	KeyChunkSize       = "chunking.size"
	KeyChunkOverlap    = "chunking.overlap"
	KeyVectorBackend   = "vector_index.backend"
	KeyVectorURL       = "vector_index.url"
	KeyVectorAPIKey    = "vector_index.api_key"
	KeyVectorColl      = "vector_index.collection"
	KeyVectorTimeout   = "vector_index.timeout"
	KeyStorageBackend  = "storage.backend"
	KeyStorageDataDir  = "storage.data_dir"
	KeyStorageDatabase = "storage.database_url"
	KeyServerAddr      = "server.addr"
	KeyPromptDir       = "prompts.dir"
)

// knownKeys lists every key Set accepts.
var knownKeys = []string{
	KeyEmbedProvider, KeyEmbedModel, KeyEmbedBaseURL, KeyEmbedAPIKey, KeyEmbedDims,
	KeyEmbedBatchSize, KeyEmbedRPS, KeyEmbedCacheSize, KeyEmbedRetries, KeyEmbedTimeout,
	KeyLLMProvider, KeyLLMModel, KeyLLMBaseURL, KeyLLMAPIKey, KeyLLMTemperature,
	KeyLLMMaxTokens, KeyLLMTimeout, KeyLLMRetries, KeyLLMRetryDelay,
	KeyChunkSize, KeyChunkOverlap,
	KeyVectorBackend, KeyVectorURL, KeyVectorAPIKey, KeyVectorColl, KeyVectorTimeout,
	KeyStorageBackend, KeyStorageDataDir, KeyStorageDatabase,
	KeyServerAddr, KeyPromptDir,
}

// KnownKeys returns the configuration keys understood by the settings service.
func KnownKeys() []string {
	return slices.Clone(knownKeys)
}

// EmbeddingFactory builds an embedding backend from settings.
type EmbeddingFactory func(domain.EmbeddingSettings) (driven.EmbeddingService, error)

// LLMFactory builds a completion backend from settings.
type LLMFactory func(domain.LLMSettings) (driven.LLMService, error)

// SettingsOption configures a SettingsService.
type SettingsOption func(*SettingsService)

// WithOverlay applies a final layer (usually the environment) on top of
// the stored values.
func WithOverlay(overlay func(*domain.Settings)) SettingsOption {
	return func(s *SettingsService) {
		s.overlay = overlay
	}
}

// WithFactories sets the backend builders used by the Validate*Config calls.
func WithFactories(embed EmbeddingFactory, llm LLMFactory) SettingsOption {
	return func(s *SettingsService) {
		s.embedFactory = embed
		s.llmFactory = llm
	}
}

// SettingsService resolves settings from defaults, the config store and an
// optional overlay, in that order of precedence.
type SettingsService struct {
	configStore  driven.ConfigStore
	overlay      func(*domain.Settings)
	embedFactory EmbeddingFactory
	llmFactory   LLMFactory
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, opts ...SettingsOption) *SettingsService {
	s := &SettingsService{configStore: configStore}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves current application settings.
func (s *SettingsService) Get() domain.Settings {
	settings := domain.DefaultSettings()

	e := &settings.Embedding
	e.Provider = s.getProvider(KeyEmbedProvider, e.Provider)
	e.Model = s.getString(KeyEmbedModel, e.Model)
	e.BaseURL = s.getString(KeyEmbedBaseURL, e.BaseURL)
	e.APIKey = s.getString(KeyEmbedAPIKey, e.APIKey)
	e.Dimensions = s.getInt(KeyEmbedDims, e.Dimensions)
	e.BatchSize = s.getInt(KeyEmbedBatchSize, e.BatchSize)
	e.RequestsPerSecond = s.getFloat(KeyEmbedRPS, e.RequestsPerSecond)
	e.CacheSize = s.getInt(KeyEmbedCacheSize, e.CacheSize)
	e.MaxRetries = s.getInt(KeyEmbedRetries, e.MaxRetries)
	e.Timeout = s.getDuration(KeyEmbedTimeout, e.Timeout)

	l := &settings.LLM
	l.Provider = s.getProvider(KeyLLMProvider, l.Provider)
	l.Model = s.getString(KeyLLMModel, l.Model)
	l.BaseURL = s.getString(KeyLLMBaseURL, l.BaseURL)
	l.APIKey = s.getString(KeyLLMAPIKey, l.APIKey)
	l.Temperature = s.getFloat(KeyLLMTemperature, l.Temperature)
	l.MaxTokens = s.getInt(KeyLLMMaxTokens, l.MaxTokens)
	l.Timeout = s.getDuration(KeyLLMTimeout, l.Timeout)
	l.MaxRetries = s.getInt(KeyLLMRetries, l.MaxRetries)
	l.RetryBaseDelay = s.getDuration(KeyLLMRetryDelay, l.RetryBaseDelay)

	settings.Chunking.Size = s.getInt(KeyChunkSize, settings.Chunking.Size)
	if _, ok := s.configStore.Get(KeyChunkOverlap); ok {
		settings.Chunking.Overlap = s.configStore.GetInt(KeyChunkOverlap)
	}

	v := &settings.VectorIndex
	v.Backend = domain.VectorBackend(s.getString(KeyVectorBackend, string(v.Backend)))
	v.URL = s.getString(KeyVectorURL, v.URL)
	v.APIKey = s.getString(KeyVectorAPIKey, v.APIKey)
	v.Collection = s.getString(KeyVectorColl, v.Collection)
	v.Timeout = s.getDuration(KeyVectorTimeout, v.Timeout)

	st := &settings.Storage
	st.Backend = domain.StorageBackend(s.getString(KeyStorageBackend, string(st.Backend)))
	st.DataDir = s.getString(KeyStorageDataDir, st.DataDir)
	st.DatabaseURL = s.getString(KeyStorageDatabase, st.DatabaseURL)

	settings.Server.Addr = s.getString(KeyServerAddr, settings.Server.Addr)
	settings.PromptDir = s.getString(KeyPromptDir, settings.PromptDir)

	if s.overlay != nil {
		s.overlay(&settings)
	}
	return settings
}

// Set persists a single configuration key.
func (s *SettingsService) Set(key string, value any) error {
	if !slices.Contains(knownKeys, key) {
		return domain.NewValidationError("key", fmt.Sprintf("unknown setting %q", key))
	}
	if err := s.configStore.Set(key, value); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Validate checks the resolved settings.
func (s *SettingsService) Validate() error {
	return s.Get().Validate()
}

// ValidateEmbeddingConfig builds the configured embedding backend and pings it.
func (s *SettingsService) ValidateEmbeddingConfig(ctx context.Context) error {
	if s.embedFactory == nil {
		return nil
	}
	svc, err := s.embedFactory(s.Get().Embedding)
	if err != nil {
		return err
	}
	defer svc.Close()
	return svc.Ping(ctx)
}

// ValidateLLMConfig builds the configured completion backend and pings it.
func (s *SettingsService) ValidateLLMConfig(ctx context.Context) error {
	if s.llmFactory == nil {
		return nil
	}
	svc, err := s.llmFactory(s.Get().LLM)
	if err != nil {
		return err
	}
	defer svc.Close()
	return svc.Ping(ctx)
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetDuration(key)
	if val <= 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}
