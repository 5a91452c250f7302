package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
	"github.com/custodia-labs/ragkb/internal/core/ports/driving"
	"github.com/custodia-labs/ragkb/internal/logger"
)

// Ensure StatsService implements the interface.
var _ driving.StatsService = (*StatsService)(nil)

// StatsService summarises stored documents, query logs and the vector index.
type StatsService struct {
	store      driven.DocumentStore
	logs       driven.QueryLogStore
	index      driven.VectorIndex
	dimensions int
}

// NewStatsService creates a new stats service.
func NewStatsService(store driven.DocumentStore, logs driven.QueryLogStore, index driven.VectorIndex, dimensions int) *StatsService {
	return &StatsService{
		store:      store,
		logs:       logs,
		index:      index,
		dimensions: dimensions,
	}
}

// Stats returns document, chunk and query totals. An unreachable vector
// index leaves IndexedVectors at zero rather than failing the call.
func (s *StatsService) Stats(ctx context.Context) (*domain.Stats, error) {
	docs, chunks, err := s.store.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	stats := &domain.Stats{
		TotalDocuments: docs,
		TotalChunks:    chunks,
		CollectionName: s.index.Name(),
		VectorSize:     s.dimensions,
	}
	if docs > 0 {
		stats.AvgChunksPerDoc = float64(chunks) / float64(docs)
	}

	if s.logs != nil {
		qs, err := s.logs.QueryStats(ctx)
		if err != nil {
			return nil, fmt.Errorf("query stats: %w", err)
		}
		stats.TotalQueries = qs.Count
		stats.AvgResponseTime = qs.AvgResponseTime.Seconds()
	}

	n, err := s.index.Count(ctx)
	if err != nil {
		logger.Warn("Vector count unavailable: %v", err)
	} else {
		stats.IndexedVectors = n
	}

	return stats, nil
}
