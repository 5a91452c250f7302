package driven

import (
	"context"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

// VectorIndex is the gateway to the external nearest-neighbour store.
// Vectors are keyed by chunk ID and carry a typed payload.
//
// Errors are surfaced, never dropped; an unreachable index is reported as
// domain.ErrVectorIndexUnavailable. The core does not retry the index.
type VectorIndex interface {
	// EnsureCollection creates the collection for vectors of the given
	// dimension if it does not exist.
	EnsureCollection(ctx context.Context, dimensions int) error

	// Upsert inserts or replaces points.
	Upsert(ctx context.Context, points []domain.VectorPoint) error

	// Search returns at most limit hits with score >= threshold,
	// ordered by score descending.
	Search(ctx context.Context, query []float32, limit int, threshold float64) ([]domain.VectorHit, error)

	// DeleteByDocument removes every vector whose payload references documentID.
	DeleteByDocument(ctx context.Context, documentID string) error

	// DeletePoints removes vectors by chunk ID. Missing IDs are ignored.
	DeletePoints(ctx context.Context, ids []string) error

	// Count returns the number of stored vectors.
	Count(ctx context.Context) (int, error)

	// Name returns the collection name.
	Name() string

	// Close releases resources.
	Close() error
}
