package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
	"github.com/custodia-labs/ragkb/internal/core/ports/driving"
	"github.com/custodia-labs/ragkb/internal/logger"
)

// Ensure IngestionService implements the interface.
var _ driving.IngestionService = (*IngestionService)(nil)

// Document listing bounds.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

const compensationTimeout = 30 * time.Second

// IngestionService keeps the relational store and the vector index in step.
// Rows and vectors for one document are written inside a store transaction;
// vectors issued before a failed commit are removed again.
type IngestionService struct {
	store    driven.DocumentStore
	index    driven.VectorIndex
	embedder *Embedder
	chunker  driven.Chunker
	now      func() time.Time

	indexTimeout time.Duration
}

// NewIngestionService creates a new ingestion service.
func NewIngestionService(
	store driven.DocumentStore,
	index driven.VectorIndex,
	embedder *Embedder,
	chunker driven.Chunker,
) *IngestionService {
	return &IngestionService{
		store:    store,
		index:    index,
		embedder: embedder,
		chunker:  chunker,
		now:      time.Now,

		indexTimeout: DefaultIndexTimeout,
	}
}

// SetIndexTimeout overrides the per-call index timeout.
func (s *IngestionService) SetIndexTimeout(d time.Duration) {
	if d > 0 {
		s.indexTimeout = d
	}
}

func (s *IngestionService) upsert(ctx context.Context, points []domain.VectorPoint) error {
	ctx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	defer cancel()
	return s.index.Upsert(ctx, points)
}

func (s *IngestionService) deleteDocumentVectors(ctx context.Context, documentID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	defer cancel()
	return s.index.DeleteByDocument(ctx, documentID)
}

func (s *IngestionService) deletePoints(ctx context.Context, ids []string) error {
	ctx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	defer cancel()
	return s.index.DeletePoints(ctx, ids)
}

// Ingest chunks, embeds and stores a new document.
func (s *IngestionService) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.Document, error) {
	req.Normalise()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	doc := &domain.Document{
		ID:        uuid.New().String(),
		Title:     req.Title,
		Content:   req.Content,
		Source:    req.Source,
		DocType:   req.DocType,
		CreatedAt: now,
		UpdatedAt: now,
	}

	chunks, points, err := s.prepare(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("ingest %q: %w", doc.Title, err)
	}

	issued := false
	err = s.store.WithTx(ctx, func(tx driven.DocumentTx) error {
		if err := tx.SaveDocument(ctx, doc); err != nil {
			return err
		}
		if len(chunks) > 0 {
			if err := tx.SaveChunks(ctx, chunks); err != nil {
				return err
			}
		}
		if len(points) == 0 {
			return nil
		}
		issued = true
		return s.upsert(ctx, points)
	})
	if err != nil {
		if issued {
			s.compensate(ctx, "ingest", func(ctx context.Context) error {
				return s.deleteDocumentVectors(ctx, doc.ID)
			})
		}
		return nil, fmt.Errorf("ingest %q: %w", doc.Title, err)
	}

	doc.ChunkCount = len(chunks)
	logger.Info("Ingested document %s (%q) with %d chunks", doc.ID, doc.Title, doc.ChunkCount)
	return doc, nil
}

// Reindex rebuilds chunks and vectors of a stored document.
func (s *IngestionService) Reindex(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return s.replace(ctx, doc)
}

// Update replaces the document content and metadata, then reindexes it.
func (s *IngestionService) Update(ctx context.Context, documentID string, req domain.IngestRequest) (*domain.Document, error) {
	req.Normalise()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	doc.Title = req.Title
	doc.Content = req.Content
	doc.Source = req.Source
	doc.DocType = req.DocType
	return s.replace(ctx, doc)
}

// replace swaps doc's chunk rows and vectors for freshly computed ones.
// New vectors carry new chunk IDs, so the old ones stay searchable until
// the transaction commits.
func (s *IngestionService) replace(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	old, err := s.store.GetChunks(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	doc.UpdatedAt = s.now().UTC()
	chunks, points, err := s.prepare(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("reindex %s: %w", doc.ID, err)
	}

	issued := false
	err = s.store.WithTx(ctx, func(tx driven.DocumentTx) error {
		if err := tx.SaveDocument(ctx, doc); err != nil {
			return err
		}
		if err := tx.DeleteChunks(ctx, doc.ID); err != nil {
			return err
		}
		if len(chunks) > 0 {
			if err := tx.SaveChunks(ctx, chunks); err != nil {
				return err
			}
		}
		if len(points) == 0 {
			return nil
		}
		issued = true
		return s.upsert(ctx, points)
	})
	if err != nil {
		if issued {
			s.compensate(ctx, "reindex", func(ctx context.Context) error {
				return s.deletePoints(ctx, chunkIDs(chunks))
			})
		}
		return nil, fmt.Errorf("reindex %s: %w", doc.ID, err)
	}

	if len(old) > 0 {
		if err := s.deletePoints(ctx, chunkIDs(old)); err != nil {
			logger.Warn("Reindex %s: %d stale vectors left in index: %v", doc.ID, len(old), err)
		}
	}

	doc.ChunkCount = len(chunks)
	logger.Info("Reindexed document %s with %d chunks", doc.ID, doc.ChunkCount)
	return doc, nil
}

// Delete removes the document's vectors, then its rows. If the rows cannot
// be removed the vectors are rebuilt from the surviving chunks.
func (s *IngestionService) Delete(ctx context.Context, documentID string) error {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	chunks, err := s.store.GetChunks(ctx, documentID)
	if err != nil {
		return err
	}

	if err := s.deleteDocumentVectors(ctx, documentID); err != nil {
		return fmt.Errorf("delete %s: %w", documentID, err)
	}

	err = s.store.WithTx(ctx, func(tx driven.DocumentTx) error {
		return tx.DeleteDocument(ctx, documentID)
	})
	if err != nil {
		if len(chunks) > 0 {
			s.compensate(ctx, "delete", func(ctx context.Context) error {
				return s.restore(ctx, doc, chunks)
			})
		}
		return fmt.Errorf("delete %s: %w", documentID, err)
	}

	logger.Info("Deleted document %s (%d chunks)", documentID, len(chunks))
	return nil
}

// restore re-embeds chunks and writes their vectors back.
func (s *IngestionService) restore(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	vectors, err := s.embedder.EmbedMany(ctx, chunkTexts(chunks))
	if err != nil {
		return err
	}
	return s.upsert(ctx, buildPoints(doc, chunks, vectors))
}

// Get retrieves a document by ID.
func (s *IngestionService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.store.GetDocument(ctx, documentID)
}

// List pages through documents, newest first.
func (s *IngestionService) List(ctx context.Context, opts domain.ListOptions) ([]domain.Document, error) {
	if opts.Limit == 0 {
		opts.Limit = DefaultListLimit
	}
	if opts.Offset < 0 {
		return nil, domain.NewValidationError("skip", "must not be negative")
	}
	if opts.Limit < 1 || opts.Limit > MaxListLimit {
		return nil, domain.NewValidationError("limit", "must be between 1 and 100")
	}
	return s.store.ListDocuments(ctx, opts)
}

// Chunks returns a document's chunks ordered by index.
func (s *IngestionService) Chunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.GetChunks(ctx, documentID)
}

// manifest is the on-disk bulk ingestion format.
type manifest struct {
	Documents []manifestEntry `yaml:"documents"`
}

type manifestEntry struct {
	domain.IngestRequest `yaml:",inline"`

	// File is read as the content when Content is empty. Relative paths
	// are resolved against the manifest directory.
	File string `yaml:"file"`
}

// IngestManifest ingests every entry of a YAML manifest file. Entry
// failures are collected; only an unreadable manifest is an error.
func (s *IngestionService) IngestManifest(ctx context.Context, path string) (*driving.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parse manifest %s: %w", domain.ErrInvalidInput, path, err)
	}

	logger.Section("Manifest")
	logger.Info("Ingesting %d documents from %s", len(m.Documents), path)

	base := filepath.Dir(path)
	result := &driving.ManifestResult{}
	for i, entry := range m.Documents {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		req, err := entry.request(base)
		if err == nil {
			var doc *domain.Document
			doc, err = s.Ingest(ctx, req)
			if err == nil {
				result.Documents = append(result.Documents, *doc)
				continue
			}
		}
		logger.Warn("Manifest entry %d (%q) failed: %v", i, entry.Title, err)
		result.Failures = append(result.Failures, driving.ManifestFailure{Index: i, Title: entry.Title, Err: err})
	}
	return result, nil
}

func (e manifestEntry) request(base string) (domain.IngestRequest, error) {
	req := e.IngestRequest
	if req.Content != "" || e.File == "" {
		return req, nil
	}

	path := e.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read %s: %w", e.File, err)
	}
	req.Content = string(data)
	if req.Source == "" {
		req.Source = path
	}
	return req, nil
}

// prepare chunks and embeds doc. No store or index call is made.
func (s *IngestionService) prepare(ctx context.Context, doc *domain.Document) ([]domain.Chunk, []domain.VectorPoint, error) {
	chunks, err := s.chunker.Process(ctx, doc)
	if err != nil {
		return nil, nil, fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		logger.Warn("Document %s produced no chunks", doc.ID)
		return nil, nil, nil
	}

	vectors, err := s.embedder.EmbedMany(ctx, chunkTexts(chunks))
	if err != nil {
		return nil, nil, err
	}
	return chunks, buildPoints(doc, chunks, vectors), nil
}

// compensate runs undo detached from the caller's cancellation. Failures
// are logged; the original error is what the caller sees.
func (s *IngestionService) compensate(ctx context.Context, op string, undo func(ctx context.Context) error) {
	undoCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	if err := undo(undoCtx); err != nil {
		logger.Error("Compensation after failed %s did not complete: %v", op, err)
	}
}

func buildPoints(doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) []domain.VectorPoint {
	points := make([]domain.VectorPoint, len(chunks))
	for i, c := range chunks {
		points[i] = domain.VectorPoint{
			ID:      c.ID,
			Vector:  vectors[i],
			Payload: domain.NewVectorPayload(*doc, c),
		}
	}
	return points
}

func chunkTexts(chunks []domain.Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}

func chunkIDs(chunks []domain.Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids
}
