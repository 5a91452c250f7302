package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
	"github.com/custodia-labs/ragkb/internal/core/ports/driving"
	"github.com/custodia-labs/ragkb/internal/logger"
)

// Ensure AnswerService implements the interface.
var _ driving.AnswerService = (*AnswerService)(nil)

// DefaultCompletionTimeout bounds each completion call.
const DefaultCompletionTimeout = 60 * time.Second

const queryLogTimeout = 5 * time.Second

// AnswerService ties retrieval to answer generation. Each question walks
// RETRIEVING, CONTEXT_BUILT or NO_CONTEXT, GENERATING, ANSWERED or
// GENERATION_FAILED, and finally LOGGED.
type AnswerService struct {
	retriever *Retriever
	llm       driven.LLMService
	prompts   driven.PromptStore
	logs      driven.QueryLogStore
	settings  domain.LLMSettings

	timer backoff.Timer
	now   func() time.Time
}

// AnswerOption configures an AnswerService.
type AnswerOption func(*AnswerService)

// WithRetryTimer replaces the timer used between completion retries.
func WithRetryTimer(t backoff.Timer) AnswerOption {
	return func(s *AnswerService) {
		s.timer = t
	}
}

// WithClock replaces the clock used for response times and log stamps.
func WithClock(now func() time.Time) AnswerOption {
	return func(s *AnswerService) {
		s.now = now
	}
}

// NewAnswerService creates a new answer service.
// logs may be nil, in which case queries are not recorded.
func NewAnswerService(
	retriever *Retriever,
	llm driven.LLMService,
	prompts driven.PromptStore,
	logs driven.QueryLogStore,
	settings domain.LLMSettings,
	opts ...AnswerOption,
) *AnswerService {
	s := &AnswerService{
		retriever: retriever,
		llm:       llm,
		prompts:   prompts,
		logs:      logs,
		settings:  settings,
		now:       time.Now,
	}
	if s.settings.Timeout <= 0 {
		s.settings.Timeout = DefaultCompletionTimeout
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer retrieves context for the question, asks the completion service
// and records a query log.
func (s *AnswerService) Answer(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	opts := req.Options()
	if err := domain.ValidateQuestion(req.Question, opts); err != nil {
		return nil, err
	}

	logger.Section("Answer")
	start := s.now()
	ans := &domain.Answer{Question: req.Question, Model: s.llm.ModelName()}

	s.enter(ans, domain.StateRetrieving)
	hits, err := s.retriever.Retrieve(ctx, req.Question, opts.TopK, opts.ScoreThreshold)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	hits = Deduplicate(hits)
	ans.ChunksRetrieved = len(hits)
	ans.AvgSimilarity = averageScore(hits)
	ans.ChunksUsed = chunksUsed(hits)

	contextText := ""
	if opts.UseContext {
		contextText = FormatContext(hits)
	}
	if contextText != "" {
		s.enter(ans, domain.StateContextBuilt)
	} else {
		s.enter(ans, domain.StateNoContext)
	}

	messages, err := s.messages(req.Question, contextText)
	if err != nil {
		return nil, err
	}

	s.enter(ans, domain.StateGenerating)
	resp, err := Retry(ctx, s.retryPolicy(), func(ctx context.Context) (*driven.ChatResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
		defer cancel()
		return s.llm.Chat(callCtx, messages, driven.ChatOptions{
			MaxTokens:   s.settings.MaxTokens,
			Temperature: s.settings.Temperature,
		})
	})
	if err != nil {
		s.enter(ans, domain.StateGenerationFailed)
		ans.ResponseTime = s.now().Sub(start)
		s.record(ctx, ans, nil)
		s.enter(ans, domain.StateLogged)
		return nil, fmt.Errorf("generate answer: %w", classifyLLMError(ctx, err))
	}

	ans.Answer = resp.Content
	ans.TokensUsed = resp.TokensUsed
	if resp.Model != "" {
		ans.Model = resp.Model
	}
	s.enter(ans, domain.StateAnswered)

	ans.ResponseTime = s.now().Sub(start)
	s.record(ctx, ans, &ans.Answer)
	s.enter(ans, domain.StateLogged)

	logger.Info("Answered in %s with %d chunks (avg %.2f)", ans.ResponseTime, ans.ChunksRetrieved, ans.AvgSimilarity)
	return ans, nil
}

func (s *AnswerService) enter(ans *domain.Answer, state domain.AnswerState) {
	ans.States = append(ans.States, state)
	logger.Debug("Answer state: %s", state)
}

// messages builds the system and user instructions. The grounding
// directive is only present when there is context.
func (s *AnswerService) messages(question, contextText string) ([]driven.ChatMessage, error) {
	if contextText == "" {
		system, err := s.prompt(driven.PromptSystemPlain)
		if err != nil {
			return nil, err
		}
		return []driven.ChatMessage{
			{Role: driven.RoleSystem, Content: system},
			{Role: driven.RoleUser, Content: question},
		}, nil
	}

	system, err := s.prompt(driven.PromptSystemGrounded)
	if err != nil {
		return nil, err
	}
	user, err := s.prompt(driven.PromptUserGrounded)
	if err != nil {
		return nil, err
	}
	return []driven.ChatMessage{
		{Role: driven.RoleSystem, Content: system},
		{Role: driven.RoleUser, Content: fmt.Sprintf(user, contextText, question)},
	}, nil
}

func (s *AnswerService) prompt(name string) (string, error) {
	if s.prompts == nil {
		return "", fmt.Errorf("%w: no prompt store", domain.ErrConfiguration)
	}
	p, err := s.prompts.Load(name)
	if err != nil {
		return "", fmt.Errorf("%w: load prompt %s: %w", domain.ErrConfiguration, name, err)
	}
	return p, nil
}

func (s *AnswerService) retryPolicy() RetryPolicy {
	return RetryPolicy{
		Name:        "completion",
		MaxAttempts: s.settings.MaxRetries,
		BaseDelay:   s.settings.RetryBaseDelay,
		Retryable:   IsRateLimited,
		Timer:       s.timer,
	}
}

// record writes the query log. Failures are logged, never returned.
func (s *AnswerService) record(ctx context.Context, ans *domain.Answer, answer *string) {
	if s.logs == nil {
		return
	}

	entry := domain.QueryLog{
		ID:              uuid.New().String(),
		Question:        ans.Question,
		Answer:          answer,
		ChunksRetrieved: ans.ChunksRetrieved,
		ResponseTime:    ans.ResponseTime,
		CreatedAt:       s.now().UTC(),
	}
	if ans.ChunksRetrieved > 0 {
		avg := ans.AvgSimilarity
		entry.AvgScore = &avg
	}

	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), queryLogTimeout)
	defer cancel()
	if err := s.logs.SaveQueryLog(logCtx, entry); err != nil {
		logger.Warn("Failed to record query log: %v", err)
	}
}

func averageScore(hits []domain.ScoredChunk) float64 {
	if len(hits) == 0 {
		return 0
	}
	var sum float64
	for _, h := range hits {
		sum += h.Score
	}
	return sum / float64(len(hits))
}

func chunksUsed(hits []domain.ScoredChunk) []domain.ChunkUsed {
	used := make([]domain.ChunkUsed, len(hits))
	for i, h := range hits {
		used[i] = domain.ChunkUsed{
			ID:            h.Chunk.ID,
			DocumentID:    h.Chunk.DocumentID,
			DocumentTitle: h.DocumentTitle,
			Text:          h.Chunk.Text,
			ChunkIndex:    h.Chunk.Index,
			Score:         h.Score,
		}
	}
	return used
}

// classifyLLMError keeps categorised errors and caller cancellation, and
// reports anything else as a completion failure.
func classifyLLMError(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil,
		errors.Is(err, domain.ErrRetriesExhausted),
		errors.Is(err, domain.ErrLLMUnavailable),
		errors.Is(err, domain.ErrConfiguration):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err)
	}
}
