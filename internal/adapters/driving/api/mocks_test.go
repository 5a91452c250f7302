package api

import (
	"context"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driving"
)

type mockAnswerService struct {
	answer *domain.Answer
	err    error
	calls  int
}

func (m *mockAnswerService) Answer(_ context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.answer != nil {
		return m.answer, nil
	}
	return &domain.Answer{Question: req.Question, Answer: "ok", ChunksUsed: []domain.ChunkUsed{}}, nil
}

type mockIngestionService struct {
	document  *domain.Document
	documents []domain.Document
	chunks    []domain.Chunk
	err       error

	lastReq  domain.IngestRequest
	lastID   string
	lastOpts domain.ListOptions
	calls    int
}

func (m *mockIngestionService) Ingest(_ context.Context, req domain.IngestRequest) (*domain.Document, error) {
	m.calls++
	m.lastReq = req
	return m.document, m.err
}

func (m *mockIngestionService) Reindex(_ context.Context, id string) (*domain.Document, error) {
	m.calls++
	m.lastID = id
	return m.document, m.err
}

func (m *mockIngestionService) Update(_ context.Context, id string, req domain.IngestRequest) (*domain.Document, error) {
	m.calls++
	m.lastID = id
	m.lastReq = req
	return m.document, m.err
}

func (m *mockIngestionService) Delete(_ context.Context, id string) error {
	m.calls++
	m.lastID = id
	return m.err
}

func (m *mockIngestionService) Get(_ context.Context, id string) (*domain.Document, error) {
	m.calls++
	m.lastID = id
	return m.document, m.err
}

func (m *mockIngestionService) List(_ context.Context, opts domain.ListOptions) ([]domain.Document, error) {
	m.calls++
	m.lastOpts = opts
	return m.documents, m.err
}

func (m *mockIngestionService) Chunks(_ context.Context, id string) ([]domain.Chunk, error) {
	m.calls++
	m.lastID = id
	return m.chunks, m.err
}

func (m *mockIngestionService) IngestManifest(_ context.Context, _ string) (*driving.ManifestResult, error) {
	return nil, m.err
}

type mockSearchService struct {
	response   *domain.SearchResponse
	neighbours []domain.NeighbourChunks
	err        error
	lastReq    domain.SearchRequest
	lastWindow int
}

func (m *mockSearchService) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	if m.response != nil {
		return m.response, nil
	}
	return &domain.SearchResponse{Query: req.Query}, nil
}

func (m *mockSearchService) SearchWithNeighbours(
	_ context.Context,
	req domain.SearchRequest,
	window int,
) ([]domain.NeighbourChunks, error) {
	m.lastReq = req
	m.lastWindow = window
	return m.neighbours, m.err
}

func (m *mockSearchService) TextSearch(_ context.Context, _ string, _ int) ([]domain.Chunk, error) {
	return nil, m.err
}

type mockStatsService struct {
	stats *domain.Stats
	err   error
}

func (m *mockStatsService) Stats(_ context.Context) (*domain.Stats, error) {
	return m.stats, m.err
}
