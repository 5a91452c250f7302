package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ollamaembed "github.com/custodia-labs/ragkb/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/ragkb/internal/adapters/driven/embedding/openai"
	ollamallm "github.com/custodia-labs/ragkb/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/ragkb/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/ragkb/internal/core/domain"
)

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name     string
		settings domain.EmbeddingSettings
		wantType any
		wantErr  error
	}{
		{
			name:     "unconfigured settings",
			settings: domain.EmbeddingSettings{},
			wantErr:  domain.ErrConfiguration,
		},
		{
			name:     "missing key for cloud provider",
			settings: domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI, Dimensions: 1536},
			wantErr:  domain.ErrConfiguration,
		},
		{
			name: "ollama provider creates service",
			settings: domain.EmbeddingSettings{
				Provider:   domain.AIProviderOllama,
				Model:      "all-minilm",
				Dimensions: 384,
			},
			wantType: &ollamaembed.EmbeddingService{},
		},
		{
			name: "openai provider creates service",
			settings: domain.EmbeddingSettings{
				Provider:   domain.AIProviderOpenAI,
				APIKey:     "test-key",
				Model:      "text-embedding-3-small",
				Dimensions: 1536,
			},
			wantType: &openaiembed.EmbeddingService{},
		},
		{
			name: "mistral uses the compatible adapter",
			settings: domain.EmbeddingSettings{
				Provider:   domain.AIProviderMistral,
				APIKey:     "test-key",
				Model:      "mistral-embed",
				Dimensions: 1024,
			},
			wantType: &openaiembed.EmbeddingService{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(tt.settings)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, svc)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, svc)
			assert.Equal(t, tt.settings.Dimensions, svc.Dimensions())
			assert.Equal(t, tt.settings.Model, svc.ModelName())
		})
	}
}

func TestCreateLLMService(t *testing.T) {
	tests := []struct {
		name     string
		settings domain.LLMSettings
		wantType any
		wantErr  error
	}{
		{
			name:     "unconfigured settings",
			settings: domain.LLMSettings{Provider: domain.AIProviderOllama},
			wantErr:  domain.ErrConfiguration,
		},
		{
			name:     "openrouter without key",
			settings: domain.LLMSettings{Provider: domain.AIProviderOpenRouter, Model: "m"},
			wantErr:  domain.ErrConfiguration,
		},
		{
			name:     "ollama",
			settings: domain.LLMSettings{Provider: domain.AIProviderOllama, Model: "llama3.2"},
			wantType: &ollamallm.LLMService{},
		},
		{
			name:     "openrouter",
			settings: domain.LLMSettings{Provider: domain.AIProviderOpenRouter, Model: "m", APIKey: "k"},
			wantType: &openaillm.LLMService{},
		},
		{
			name:     "mistral",
			settings: domain.LLMSettings{Provider: domain.AIProviderMistral, Model: "mistral-small", APIKey: "k"},
			wantType: &openaillm.LLMService{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateLLMService(tt.settings)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, svc)
			assert.Equal(t, tt.settings.Model, svc.ModelName())
		})
	}
}

func TestCreateLLMService_OpenRouterHeaders(t *testing.T) {
	seen := make(chan http.Header, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc, err := CreateLLMService(domain.LLMSettings{
		Provider: domain.AIProviderOpenRouter,
		Model:    "m",
		APIKey:   "k",
		BaseURL:  server.URL,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Ping(context.Background()))

	headers := <-seen
	assert.Equal(t, openRouterReferer, headers.Get("HTTP-Referer"))
	assert.Equal(t, openRouterTitle, headers.Get("X-Title"))
}

func TestCreateAndValidateLLMService(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	svc, err := CreateAndValidateLLMService(context.Background(), domain.LLMSettings{
		Provider: domain.AIProviderOllama, Model: "llama3.2", BaseURL: up.URL,
	})
	require.NoError(t, err)
	assert.NotNil(t, svc)

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()

	_, err = CreateAndValidateLLMService(context.Background(), domain.LLMSettings{
		Provider: domain.AIProviderOllama, Model: "llama3.2", BaseURL: down.URL,
	})
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "http://x", baseURL(domain.AIProviderOpenAI, "http://x"))
	assert.Equal(t, "https://api.mistral.ai/v1", baseURL(domain.AIProviderMistral, ""))
	assert.Equal(t, "https://openrouter.ai/api/v1", baseURL(domain.AIProviderOpenRouter, ""))
}
