package driving

import (
	"context"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

// AnswerService answers questions grounded in the knowledge base.
type AnswerService interface {
	// Answer retrieves context, calls the completion service and logs the query.
	Answer(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error)
}
