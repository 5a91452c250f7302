package mcp

import (
	"context"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driving"
)

// mockAnswerService is a mock implementation of driving.AnswerService.
type mockAnswerService struct {
	answer  *domain.Answer
	err     error
	lastReq domain.QueryRequest
}

func (m *mockAnswerService) Answer(_ context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	m.lastReq = req
	return m.answer, m.err
}

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	response *domain.SearchResponse
	err      error
	lastReq  domain.SearchRequest
}

func (m *mockSearchService) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	if m.response == nil {
		return &domain.SearchResponse{Query: req.Query, Results: []domain.ScoredChunk{}}, nil
	}
	return m.response, nil
}

func (m *mockSearchService) SearchWithNeighbours(
	_ context.Context,
	_ domain.SearchRequest,
	_ int,
) ([]domain.NeighbourChunks, error) {
	return nil, m.err
}

func (m *mockSearchService) TextSearch(_ context.Context, _ string, _ int) ([]domain.Chunk, error) {
	return nil, m.err
}

// mockIngestionService is a mock implementation of driving.IngestionService.
// Only the read methods used by the resources return data.
type mockIngestionService struct {
	documents []domain.Document
	document  *domain.Document
	err       error
	lastOpts  domain.ListOptions
}

func (m *mockIngestionService) Ingest(_ context.Context, _ domain.IngestRequest) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockIngestionService) Reindex(_ context.Context, _ string) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockIngestionService) Update(_ context.Context, _ string, _ domain.IngestRequest) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockIngestionService) Delete(_ context.Context, _ string) error {
	return m.err
}

func (m *mockIngestionService) Get(_ context.Context, _ string) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockIngestionService) List(_ context.Context, opts domain.ListOptions) ([]domain.Document, error) {
	m.lastOpts = opts
	return m.documents, m.err
}

func (m *mockIngestionService) Chunks(_ context.Context, _ string) ([]domain.Chunk, error) {
	return nil, m.err
}

func (m *mockIngestionService) IngestManifest(_ context.Context, _ string) (*driving.ManifestResult, error) {
	return nil, m.err
}
