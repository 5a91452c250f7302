package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interfaces.
var (
	_ driven.DocumentStore = (*DocumentStore)(nil)
	_ driven.QueryLogStore = (*DocumentStore)(nil)
)

// DocumentStore is an in-memory implementation of driven.DocumentStore
// and driven.QueryLogStore. Transactions operate on a copy of the state
// that replaces the live state on commit.
type DocumentStore struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state *state
	logs  []domain.QueryLog
}

type state struct {
	documents map[string]domain.Document
	chunks    map[string][]domain.Chunk
}

func (s *state) clone() *state {
	c := &state{
		documents: make(map[string]domain.Document, len(s.documents)),
		chunks:    make(map[string][]domain.Chunk, len(s.chunks)),
	}
	for id, doc := range s.documents {
		c.documents[id] = doc
	}
	for id, chunks := range s.chunks {
		c.chunks[id] = append([]domain.Chunk(nil), chunks...)
	}
	return c
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		state: &state{
			documents: make(map[string]domain.Document),
			chunks:    make(map[string][]domain.Chunk),
		},
	}
}

// WithTx runs fn against a private copy and publishes it if fn succeeds.
// Transactions are serialised.
func (s *DocumentStore) WithTx(ctx context.Context, fn func(tx driven.DocumentTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	if err := fn(&tx{state: working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.state.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc.ChunkCount = len(s.state.chunks[id])
	return &doc, nil
}

// FindDocumentBySource returns the most recently created document with source.
func (s *DocumentStore) FindDocumentBySource(_ context.Context, source string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *domain.Document
	for id := range s.state.documents {
		doc := s.state.documents[id]
		if doc.Source != source {
			continue
		}
		if found == nil || doc.CreatedAt.After(found.CreatedAt) {
			doc.ChunkCount = len(s.state.chunks[id])
			found = &doc
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	return found, nil
}

// ListDocuments returns documents ordered by creation time, newest first.
func (s *DocumentStore) ListDocuments(_ context.Context, opts domain.ListOptions) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]domain.Document, 0, len(s.state.documents))
	for id := range s.state.documents {
		doc := s.state.documents[id]
		doc.Content = ""
		doc.ChunkCount = len(s.state.chunks[id])
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})

	if opts.Offset >= len(docs) {
		return []domain.Document{}, nil
	}
	docs = docs[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(docs) {
		docs = docs[:opts.Limit]
	}
	return docs, nil
}

// GetChunks retrieves all chunks for a document.
func (s *DocumentStore) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Chunk(nil), s.state.chunks[documentID]...), nil
}

// GetChunk retrieves a specific chunk by ID.
func (s *DocumentStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, chunks := range s.state.chunks {
		for i := range chunks {
			if chunks[i].ID == id {
				c := chunks[i]
				return &c, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

// GetChunkRange returns chunks with index in [from, to].
func (s *DocumentStore) GetChunkRange(_ context.Context, documentID string, from, to int) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Chunk
	for _, c := range s.state.chunks[documentID] {
		if c.Index >= from && c.Index <= to {
			result = append(result, c)
		}
	}
	return result, nil
}

// SearchChunks returns chunks containing text, case-insensitively.
func (s *DocumentStore) SearchChunks(_ context.Context, text string, limit int) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(text)
	ids := make([]string, 0, len(s.state.chunks))
	for id := range s.state.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var result []domain.Chunk
	for _, id := range ids {
		for _, c := range s.state.chunks[id] {
			if !strings.Contains(strings.ToLower(c.Text), needle) {
				continue
			}
			result = append(result, c)
			if limit > 0 && len(result) == limit {
				return result, nil
			}
		}
	}
	return result, nil
}

// Counts returns the number of documents and chunks.
func (s *DocumentStore) Counts(_ context.Context) (documents, chunks int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.state.chunks {
		chunks += len(c)
	}
	return len(s.state.documents), chunks, nil
}

// SaveQueryLog appends a query log.
func (s *DocumentStore) SaveQueryLog(_ context.Context, log domain.QueryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
	return nil
}

// QueryStats returns the count and mean latency of logged queries.
func (s *DocumentStore) QueryStats(_ context.Context) (domain.QueryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := domain.QueryStats{Count: len(s.logs)}
	if stats.Count == 0 {
		return stats, nil
	}
	var total time.Duration
	for _, l := range s.logs {
		total += l.ResponseTime
	}
	stats.AvgResponseTime = total / time.Duration(stats.Count)
	return stats, nil
}

// QueryLogs returns a copy of the stored query logs.
func (s *DocumentStore) QueryLogs() []domain.QueryLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.QueryLog(nil), s.logs...)
}

// Close is a no-op.
func (s *DocumentStore) Close() error {
	return nil
}

// tx mutates a private copy of the store state.
type tx struct {
	state *state
}

func (t *tx) SaveDocument(_ context.Context, doc *domain.Document) error {
	stored := *doc
	stored.ChunkCount = 0
	t.state.documents[doc.ID] = stored
	return nil
}

func (t *tx) SaveChunks(_ context.Context, chunks []domain.Chunk) error {
	touched := make(map[string]bool)
	for _, c := range chunks {
		if _, ok := t.state.documents[c.DocumentID]; !ok {
			return domain.ErrNotFound
		}
		t.state.chunks[c.DocumentID] = append(t.state.chunks[c.DocumentID], c)
		touched[c.DocumentID] = true
	}
	for id := range touched {
		list := t.state.chunks[id]
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Index < list[j].Index
		})
	}
	return nil
}

func (t *tx) DeleteChunks(_ context.Context, documentID string) error {
	delete(t.state.chunks, documentID)
	return nil
}

func (t *tx) DeleteDocument(_ context.Context, id string) error {
	if _, ok := t.state.documents[id]; !ok {
		return domain.ErrNotFound
	}
	delete(t.state.documents, id)
	delete(t.state.chunks, id)
	return nil
}
