// Package ai provides factory functions for creating AI service adapters
// from settings. The factories match services.EmbeddingFactory and
// services.LLMFactory.
package ai

import (
	"context"
	"fmt"
	"time"

	ollamaembed "github.com/custodia-labs/ragkb/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/ragkb/internal/adapters/driven/embedding/openai"
	ollamallm "github.com/custodia-labs/ragkb/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/ragkb/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// OpenRouter attribution headers.
const (
	openRouterReferer = "http://localhost:8000"
	openRouterTitle   = "ragkb"
)

// CreateEmbeddingService creates the embedding backend named by settings.
// An incomplete configuration is reported as ErrConfiguration.
func CreateEmbeddingService(settings domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if !settings.IsConfigured() {
		return nil, fmt.Errorf("%w: embedding provider %q is not configured", domain.ErrConfiguration, settings.Provider)
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:           baseURL(settings.Provider, settings.BaseURL),
			Model:             settings.Model,
			Timeout:           settings.Timeout,
			Dimensions:        settings.Dimensions,
			RequestsPerSecond: settings.RequestsPerSecond,
		}), nil

	case domain.AIProviderOpenAI, domain.AIProviderMistral, domain.AIProviderOpenRouter:
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:            settings.APIKey,
			BaseURL:           baseURL(settings.Provider, settings.BaseURL),
			Model:             settings.Model,
			Timeout:           settings.Timeout,
			Dimensions:        settings.Dimensions,
			RequestsPerSecond: settings.RequestsPerSecond,
		})

	default:
		return nil, fmt.Errorf("%w: embedding provider %s", domain.ErrUnsupportedType, settings.Provider)
	}
}

// CreateLLMService creates the completion backend named by settings.
// An incomplete configuration is reported as ErrConfiguration.
func CreateLLMService(settings domain.LLMSettings) (driven.LLMService, error) {
	if !settings.IsConfigured() {
		return nil, fmt.Errorf("%w: LLM provider %q is not configured", domain.ErrConfiguration, settings.Provider)
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL: baseURL(settings.Provider, settings.BaseURL),
			Model:   settings.Model,
			Timeout: settings.Timeout,
		}), nil

	case domain.AIProviderOpenAI, domain.AIProviderMistral:
		return openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  settings.APIKey,
			BaseURL: baseURL(settings.Provider, settings.BaseURL),
			Model:   settings.Model,
			Timeout: settings.Timeout,
		})

	case domain.AIProviderOpenRouter:
		return openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  settings.APIKey,
			BaseURL: baseURL(settings.Provider, settings.BaseURL),
			Model:   settings.Model,
			Timeout: settings.Timeout,
			Referer: openRouterReferer,
			Title:   openRouterTitle,
		})

	default:
		return nil, fmt.Errorf("%w: LLM provider %s", domain.ErrUnsupportedType, settings.Provider)
	}
}

// CreateAndValidateLLMService creates a completion backend and checks it
// answers within pingTimeout.
func CreateAndValidateLLMService(ctx context.Context, settings domain.LLMSettings) (driven.LLMService, error) {
	svc, err := CreateLLMService(settings)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(pingCtx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w). Check 'ragkb config show'",
			domain.ErrLLMUnavailable, err)
	}
	return svc, nil
}

func baseURL(provider domain.AIProvider, configured string) string {
	if configured != "" {
		return configured
	}
	return provider.DefaultBaseURL()
}
