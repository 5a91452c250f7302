package services

import (
	"context"
	"sync"

	"github.com/custodia-labs/ragkb/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
)

// --- Mock implementations ---

// mockEmbeddingService implements driven.EmbeddingService for testing.
// Texts listed in vectors get that vector; others get a unit vector on
// the first axis.
type mockEmbeddingService struct {
	mu         sync.Mutex
	dims       int
	vectors    map[string][]float32
	errs       []error
	embedErr   error
	pingErr    error
	calls      int
	batchSizes []int
	closed     bool
}

func newMockEmbedding(dims int) *mockEmbeddingService {
	return &mockEmbeddingService{dims: dims, vectors: make(map[string][]float32)}
}

func (m *mockEmbeddingService) vector(text string) []float32 {
	if v, ok := m.vectors[text]; ok {
		return v
	}
	v := make([]float32, m.dims)
	v[0] = 1
	return v
}

func (m *mockEmbeddingService) nextErr() error {
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return err
	}
	return m.embedErr
}

func (m *mockEmbeddingService) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.nextErr(); err != nil {
		return nil, err
	}
	return m.vector(text), nil
}

func (m *mockEmbeddingService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.batchSizes = append(m.batchSizes, len(texts))
	if err := m.nextErr(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *mockEmbeddingService) Dimensions() int   { return m.dims }
func (m *mockEmbeddingService) ModelName() string { return "mock-embed" }

func (m *mockEmbeddingService) Ping(_ context.Context) error {
	return m.pingErr
}

func (m *mockEmbeddingService) Close() error {
	m.closed = true
	return nil
}

func (m *mockEmbeddingService) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockLLM implements driven.LLMService for testing.
type mockLLM struct {
	mu       sync.Mutex
	reply    string
	tokens   int
	errs     []error
	err      error
	calls    int
	messages []driven.ChatMessage
	opts     driven.ChatOptions
}

func (m *mockLLM) Chat(_ context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (*driven.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.messages = messages
	m.opts = opts
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &driven.ChatResponse{Content: m.reply, Model: "mock-model", TokensUsed: m.tokens}, nil
}

func (m *mockLLM) ModelName() string            { return "mock-model" }
func (m *mockLLM) Ping(_ context.Context) error { return nil }
func (m *mockLLM) Close() error                 { return nil }

// recordingIndex wraps a driven.VectorIndex with call recording and
// error injection.
type recordingIndex struct {
	driven.VectorIndex

	mu           sync.Mutex
	upsertErr    error
	deleteErr    error
	searchErr    error
	upserts      int
	deletedDocs  []string
	searchLimits []int
}

func (r *recordingIndex) Upsert(ctx context.Context, points []domain.VectorPoint) error {
	r.mu.Lock()
	r.upserts++
	err := r.upsertErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.VectorIndex.Upsert(ctx, points)
}

func (r *recordingIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	r.mu.Lock()
	r.deletedDocs = append(r.deletedDocs, documentID)
	err := r.deleteErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.VectorIndex.DeleteByDocument(ctx, documentID)
}

func (r *recordingIndex) Search(ctx context.Context, q []float32, limit int, threshold float64) ([]domain.VectorHit, error) {
	r.mu.Lock()
	r.searchLimits = append(r.searchLimits, limit)
	err := r.searchErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.VectorIndex.Search(ctx, q, limit, threshold)
}

// faultyStore wraps the memory store and injects transaction failures.
type faultyStore struct {
	*memory.DocumentStore

	saveChunksErr     error
	deleteDocumentErr error
	saveLogErr        error
}

func (s *faultyStore) WithTx(ctx context.Context, fn func(tx driven.DocumentTx) error) error {
	return s.DocumentStore.WithTx(ctx, func(tx driven.DocumentTx) error {
		return fn(&faultyTx{DocumentTx: tx, store: s})
	})
}

func (s *faultyStore) SaveQueryLog(ctx context.Context, log domain.QueryLog) error {
	if s.saveLogErr != nil {
		return s.saveLogErr
	}
	return s.DocumentStore.SaveQueryLog(ctx, log)
}

type faultyTx struct {
	driven.DocumentTx
	store *faultyStore
}

func (t *faultyTx) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	if t.store.saveChunksErr != nil {
		return t.store.saveChunksErr
	}
	return t.DocumentTx.SaveChunks(ctx, chunks)
}

func (t *faultyTx) DeleteDocument(ctx context.Context, id string) error {
	if t.store.deleteDocumentErr != nil {
		return t.store.deleteDocumentErr
	}
	return t.DocumentTx.DeleteDocument(ctx, id)
}

// mapPromptStore serves prompts from a map.
type mapPromptStore map[string]string

func (m mapPromptStore) Load(name string) (string, error) {
	p, ok := m[name]
	if !ok {
		return "", domain.ErrNotFound
	}
	return p, nil
}

func (m mapPromptStore) Reload() {}
