package driven

import "context"

// LLMService is the external text-completion service used to generate answers.
//
// Implementations:
//   - OpenAI-compatible /chat/completions (OpenRouter, OpenAI, Mistral)
//   - Ollama /api/chat (local models)
//
// Throttling must be reported as domain.ErrRateLimited so the caller can
// back off; every other failure is final for the request.
type LLMService interface {
	// Chat sends a conversation and returns the assistant reply.
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (*ChatResponse, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// ChatOptions configures chat behaviour.
type ChatOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64
}

// ChatResponse is a completed assistant reply.
type ChatResponse struct {
	// Content is the reply text.
	Content string

	// Model is the model that produced the reply, as reported by the service.
	Model string

	// TokensUsed is the total token usage when reported, else zero.
	TokensUsed int
}
