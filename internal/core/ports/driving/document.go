package driving

import (
	"context"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

// IngestionService manages the document lifecycle: ingest, reindex, delete.
type IngestionService interface {
	// Ingest chunks, embeds and stores a new document.
	// The returned descriptor carries the derived chunk count.
	Ingest(ctx context.Context, req domain.IngestRequest) (*domain.Document, error)

	// Reindex replaces all chunks and vectors of a document, keeping its ID.
	Reindex(ctx context.Context, documentID string) (*domain.Document, error)

	// Update replaces a document's title, content and metadata, then reindexes.
	Update(ctx context.Context, documentID string, req domain.IngestRequest) (*domain.Document, error)

	// Delete removes a document's vectors, then its rows.
	Delete(ctx context.Context, documentID string) error

	// Get retrieves a document by ID.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	// List pages through documents.
	List(ctx context.Context, opts domain.ListOptions) ([]domain.Document, error)

	// Chunks returns a document's chunks ordered by index.
	Chunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// IngestManifest ingests every entry of a YAML manifest file.
	IngestManifest(ctx context.Context, path string) (*ManifestResult, error)
}

// ManifestResult summarises a bulk ingestion.
type ManifestResult struct {
	// Documents are the successfully ingested documents, in manifest order.
	Documents []domain.Document

	// Failures lists the entries that could not be ingested.
	Failures []ManifestFailure
}

// ManifestFailure is one manifest entry that failed.
type ManifestFailure struct {
	// Index is the zero-based position in the manifest.
	Index int

	// Title is the entry title, if any.
	Title string

	// Err is the ingestion error.
	Err error
}
