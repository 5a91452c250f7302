// Package memory provides a brute-force in-process vector index for
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Index stores points in a map and scores them with cosine similarity.
type Index struct {
	mu         sync.RWMutex
	name       string
	dimensions int
	points     map[string]domain.VectorPoint
}

// New creates an empty index with the given collection name.
func New(name string) *Index {
	return &Index{
		name:   name,
		points: make(map[string]domain.VectorPoint),
	}
}

// EnsureCollection records the dimension. Calling it again with a
// different dimension is an error.
func (i *Index) EnsureCollection(_ context.Context, dimensions int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.dimensions != 0 && i.dimensions != dimensions {
		return fmt.Errorf("%w: collection %s has dimension %d, not %d",
			domain.ErrConfiguration, i.name, i.dimensions, dimensions)
	}
	i.dimensions = dimensions
	return nil
}

// Upsert inserts or replaces points.
func (i *Index) Upsert(_ context.Context, points []domain.VectorPoint) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, p := range points {
		if i.dimensions != 0 && len(p.Vector) != i.dimensions {
			return fmt.Errorf("%w: point %s has dimension %d, want %d",
				domain.ErrInvalidInput, p.ID, len(p.Vector), i.dimensions)
		}
		p.Vector = append([]float32(nil), p.Vector...)
		i.points[p.ID] = p
	}
	return nil
}

// Search scores every point and returns the best limit hits at or above threshold.
func (i *Index) Search(_ context.Context, query []float32, limit int, threshold float64) ([]domain.VectorHit, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	hits := make([]domain.VectorHit, 0)
	for id, p := range i.points {
		score := domain.CosineSimilarity(query, p.Vector)
		if score < threshold {
			continue
		}
		payload := p.Payload
		hits = append(hits, domain.VectorHit{ID: id, Score: score, Payload: &payload})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score == hits[b].Score {
			return hits[a].ID < hits[b].ID
		}
		return hits[a].Score > hits[b].Score
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// DeleteByDocument removes all points whose payload references documentID.
func (i *Index) DeleteByDocument(_ context.Context, documentID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for id, p := range i.points {
		if p.Payload.DocumentID == documentID {
			delete(i.points, id)
		}
	}
	return nil
}

// DeletePoints removes points by ID.
func (i *Index) DeletePoints(_ context.Context, ids []string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, id := range ids {
		delete(i.points, id)
	}
	return nil
}

// Count returns the number of stored points.
func (i *Index) Count(_ context.Context) (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.points), nil
}

// Point returns a stored point by ID.
func (i *Index) Point(id string) (domain.VectorPoint, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	p, ok := i.points[id]
	return p, ok
}

// Name returns the collection name.
func (i *Index) Name() string {
	return i.name
}

// Close is a no-op.
func (i *Index) Close() error {
	return nil
}
