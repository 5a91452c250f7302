package driven

import (
	"context"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

// Chunker splits a document's content into ordered chunks.
// Chunk IDs, DocumentID, Index and Size are set by the implementation.
type Chunker interface {
	// Name returns the chunker name for logging.
	Name() string

	// Process returns the chunks for doc. Empty content yields no chunks.
	Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error)
}
