package driving

import (
	"context"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

// StatsService summarises the knowledge base.
type StatsService interface {
	// Stats returns document, chunk and query totals.
	Stats(ctx context.Context) (*domain.Stats, error)
}
