package driven

import (
	"context"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

// DocumentStore persists documents and chunks.
// Writes go through WithTx so an ingestion, reindex or delete is atomic.
type DocumentStore interface {
	// WithTx runs fn in a single transaction. A non-nil error from fn
	// rolls the transaction back and is returned unchanged.
	WithTx(ctx context.Context, fn func(tx DocumentTx) error) error

	// GetDocument retrieves a document by ID with ChunkCount populated.
	// Returns domain.ErrNotFound if absent.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// FindDocumentBySource returns the most recent document with the given
	// source reference. Returns domain.ErrNotFound if none.
	FindDocumentBySource(ctx context.Context, source string) (*domain.Document, error)

	// ListDocuments pages through documents ordered by creation time.
	// Content is omitted.
	ListDocuments(ctx context.Context, opts domain.ListOptions) ([]domain.Document, error)

	// GetChunks retrieves all chunks for a document ordered by index.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// GetChunk retrieves a chunk by ID. Returns domain.ErrNotFound if absent.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// GetChunkRange returns a document's chunks with index in [from, to].
	GetChunkRange(ctx context.Context, documentID string, from, to int) ([]domain.Chunk, error)

	// SearchChunks returns chunks whose text contains text, case-insensitively.
	SearchChunks(ctx context.Context, text string, limit int) ([]domain.Chunk, error)

	// Counts returns the number of documents and chunks.
	Counts(ctx context.Context) (documents, chunks int, err error)

	// Close releases resources.
	Close() error
}

// DocumentTx is the write side of DocumentStore, valid inside WithTx.
type DocumentTx interface {
	// SaveDocument inserts or updates a document row.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// SaveChunks inserts chunk rows.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// DeleteChunks removes every chunk of a document.
	DeleteChunks(ctx context.Context, documentID string) error

	// DeleteDocument removes a document and its chunks.
	// Returns domain.ErrNotFound if absent.
	DeleteDocument(ctx context.Context, id string) error
}

// QueryLogStore is the append-only audit log of answered questions.
type QueryLogStore interface {
	// SaveQueryLog appends an immutable record.
	SaveQueryLog(ctx context.Context, log domain.QueryLog) error

	// QueryStats returns the number of logged queries and their mean latency.
	QueryStats(ctx context.Context) (domain.QueryStats, error)
}
