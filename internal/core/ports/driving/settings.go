package driving

import (
	"context"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

// SettingsService exposes the resolved application settings.
type SettingsService interface {
	// Get returns the current settings.
	Get() domain.Settings

	// Set persists a single dotted configuration key.
	Set(key string, value any) error

	// Validate checks settings for missing credentials and bad values.
	Validate() error

	// ValidateEmbeddingConfig pings the configured embedding provider.
	ValidateEmbeddingConfig(ctx context.Context) error

	// ValidateLLMConfig pings the configured completion provider.
	ValidateLLMConfig(ctx context.Context) error
}
