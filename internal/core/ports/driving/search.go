package driving

import (
	"context"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

// SearchService provides retrieval without generation.
type SearchService interface {
	// Search returns chunks similar to the query, score descending.
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error)

	// SearchWithNeighbours returns each hit with the surrounding chunks of
	// its document (chunk index +/- window).
	SearchWithNeighbours(ctx context.Context, req domain.SearchRequest, window int) ([]domain.NeighbourChunks, error)

	// TextSearch performs a case-insensitive substring search over chunk text.
	TextSearch(ctx context.Context, text string, limit int) ([]domain.Chunk, error)
}
