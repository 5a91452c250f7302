package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
	"github.com/custodia-labs/ragkb/internal/core/ports/driving"
	"github.com/custodia-labs/ragkb/internal/logger"
)

// Ensure Retriever implements the interface.
var _ driving.SearchService = (*Retriever)(nil)

// DefaultIndexTimeout bounds each vector index call.
const DefaultIndexTimeout = 30 * time.Second

// contextHeader opens the context block handed to the completion service.
const contextHeader = "Contexte pertinent trouvé dans la base de connaissances:\n"

// Retriever resolves a query to scored chunks: embed, search the index,
// then load the chunk records.
type Retriever struct {
	embedder     *Embedder
	index        driven.VectorIndex
	store        driven.DocumentStore
	indexTimeout time.Duration
}

// NewRetriever creates a new retriever.
func NewRetriever(embedder *Embedder, index driven.VectorIndex, store driven.DocumentStore) *Retriever {
	return &Retriever{
		embedder:     embedder,
		index:        index,
		store:        store,
		indexTimeout: DefaultIndexTimeout,
	}
}

// SetIndexTimeout overrides the per-call index timeout.
func (r *Retriever) SetIndexTimeout(d time.Duration) {
	if d > 0 {
		r.indexTimeout = d
	}
}

// Retrieve returns up to topK chunks scoring at least threshold, score
// descending. Hits whose chunk is missing from the store are skipped.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, threshold float64) ([]domain.ScoredChunk, error) {
	logger.Debug("Retrieve: query=%q top_k=%d threshold=%.2f", query, topK, threshold)

	vec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.indexTimeout)
	hits, err := r.index.Search(searchCtx, vec, topK, threshold)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	logger.Debug("Vector search: %d hits", len(hits))

	// The index contract already orders and filters; this keeps the
	// guarantee when an index does not.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	titles := make(map[string]string)
	results := make([]domain.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < threshold {
			continue
		}

		chunk, err := r.store.GetChunk(ctx, hit.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				logger.Debug("Skipping hit %s: chunk not in store", hit.ID)
				continue
			}
			return nil, fmt.Errorf("get chunk %s: %w", hit.ID, err)
		}

		results = append(results, domain.ScoredChunk{
			Chunk:         *chunk,
			Score:         hit.Score,
			DocumentTitle: r.title(ctx, hit, chunk.DocumentID, titles),
		})
		if len(results) == topK {
			break
		}
	}

	return results, nil
}

// title prefers the stored document title, falling back to the payload.
func (r *Retriever) title(ctx context.Context, hit domain.VectorHit, documentID string, cache map[string]string) string {
	if t, ok := cache[documentID]; ok {
		return t
	}
	t := ""
	if doc, err := r.store.GetDocument(ctx, documentID); err == nil {
		t = doc.Title
	} else if hit.Payload != nil {
		t = hit.Payload.Title
	}
	cache[documentID] = t
	return t
}

// Search runs a search-only query with search defaults.
func (r *Retriever) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	topK, threshold := req.Resolve()
	if strings.TrimSpace(req.Query) == "" {
		return nil, domain.NewValidationError("query", "is required")
	}
	if err := domain.ValidateSearch(topK, threshold); err != nil {
		return nil, err
	}

	results, err := r.Retrieve(ctx, req.Query, topK, threshold)
	if err != nil {
		return nil, err
	}

	return &domain.SearchResponse{
		Query:      req.Query,
		Results:    results,
		TotalFound: len(results),
	}, nil
}

// SearchWithNeighbours returns each deduplicated hit with the chunks at
// index +/- window of the same document.
func (r *Retriever) SearchWithNeighbours(ctx context.Context, req domain.SearchRequest, window int) ([]domain.NeighbourChunks, error) {
	resp, err := r.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	if window < 0 {
		window = 0
	}

	out := make([]domain.NeighbourChunks, 0, len(resp.Results))
	for _, sc := range Deduplicate(resp.Results) {
		from := max(sc.Chunk.Index-window, 0)
		neighbours, err := r.store.GetChunkRange(ctx, sc.Chunk.DocumentID, from, sc.Chunk.Index+window)
		if err != nil {
			return nil, fmt.Errorf("get neighbours of %s: %w", sc.Chunk.ID, err)
		}
		out = append(out, domain.NeighbourChunks{ScoredChunk: sc, Context: neighbours})
	}
	return out, nil
}

// TextSearch performs a case-insensitive substring search over chunk text.
func (r *Retriever) TextSearch(ctx context.Context, text string, limit int) ([]domain.Chunk, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []domain.Chunk{}, nil
	}
	if limit <= 0 {
		limit = domain.DefaultTopK
	}
	chunks, err := r.store.SearchChunks(ctx, text, limit)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	return chunks, nil
}

// Deduplicate drops entries whose (document, chunk index) pair was already
// seen, keeping the first occurrence and the input order.
func Deduplicate(in []domain.ScoredChunk) []domain.ScoredChunk {
	type key struct {
		doc   string
		index int
	}
	seen := make(map[key]bool, len(in))
	out := make([]domain.ScoredChunk, 0, len(in))
	for _, sc := range in {
		k := key{sc.Chunk.DocumentID, sc.Chunk.Index}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, sc)
	}
	return out
}

// FormatContext renders retrieved chunks as the prompt context block:
// a header, then for each chunk its rank, score and source title
// followed by the chunk text. Empty input yields "".
func FormatContext(chunks []domain.ScoredChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	parts := make([]string, 0, len(chunks)+1)
	parts = append(parts, contextHeader)
	for i, sc := range chunks {
		var b strings.Builder
		fmt.Fprintf(&b, "\n--- Extrait %d (Pertinence: %.2f)", i+1, sc.Score)
		if sc.DocumentTitle != "" {
			fmt.Fprintf(&b, " [Source: %s]", sc.DocumentTitle)
		}
		b.WriteString(" ---\n")
		b.WriteString(sc.Chunk.Text)
		b.WriteString("\n---\n")
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n")
}
