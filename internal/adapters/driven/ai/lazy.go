package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
)

// Ensure LazyLLMService implements the interface.
var _ driven.LLMService = (*LazyLLMService)(nil)

// LazyLLMService builds the completion backend on first use, so commands
// that never generate an answer start without LLM credentials. A failed
// build is remembered and reported as ErrLLMUnavailable on every call.
type LazyLLMService struct {
	settings domain.LLMSettings
	create   func(domain.LLMSettings) (driven.LLMService, error)

	once    sync.Once
	svc     driven.LLMService
	initErr error
}

// NewLazyLLMService defers CreateLLMService until the first call.
func NewLazyLLMService(settings domain.LLMSettings) *LazyLLMService {
	return &LazyLLMService{settings: settings, create: CreateLLMService}
}

func (l *LazyLLMService) service() (driven.LLMService, error) {
	l.once.Do(func() {
		svc, err := l.create(l.settings)
		if err != nil {
			l.initErr = fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err)
			return
		}
		l.svc = svc
	})
	return l.svc, l.initErr
}

// Chat builds the backend if needed and forwards the conversation.
func (l *LazyLLMService) Chat(
	ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions,
) (*driven.ChatResponse, error) {
	svc, err := l.service()
	if err != nil {
		return nil, err
	}
	return svc.Chat(ctx, messages, opts)
}

// ModelName returns the configured model without building the backend.
func (l *LazyLLMService) ModelName() string {
	return l.settings.Model
}

// Ping builds the backend if needed and pings it.
func (l *LazyLLMService) Ping(ctx context.Context) error {
	svc, err := l.service()
	if err != nil {
		return err
	}
	return svc.Ping(ctx)
}

// Close releases the backend if it was built.
func (l *LazyLLMService) Close() error {
	if l.svc == nil {
		return nil
	}
	return l.svc.Close()
}
