package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
	"github.com/custodia-labs/ragkb/internal/core/ports/driving"
	"github.com/custodia-labs/ragkb/internal/logger"
)

// Ensure SyncOrchestrator implements the interface.
var _ driving.SyncService = (*SyncOrchestrator)(nil)

// ConnectorBuilder opens a connector rooted at a directory.
type ConnectorBuilder func(root string) (driven.Connector, error)

// FileReader loads a single file as a raw document.
type FileReader func(path string) (domain.RawDocument, error)

// SyncOption configures a SyncOrchestrator.
type SyncOption func(*SyncOrchestrator)

// WithFileReader enables IngestFile.
func WithFileReader(read FileReader) SyncOption {
	return func(o *SyncOrchestrator) { o.readFile = read }
}

const listPageSize = 100

// SyncOrchestrator keeps stored documents in step with a directory.
// Files are matched to documents by source path.
type SyncOrchestrator struct {
	ingestion driving.IngestionService
	store     driven.DocumentStore
	registry  driven.NormaliserRegistry
	connect   ConnectorBuilder
	readFile  FileReader

	mu     sync.RWMutex
	status driving.SyncStatus
}

// NewSyncOrchestrator creates a new sync orchestrator.
func NewSyncOrchestrator(
	ingestion driving.IngestionService,
	store driven.DocumentStore,
	registry driven.NormaliserRegistry,
	connect ConnectorBuilder,
	opts ...SyncOption,
) *SyncOrchestrator {
	o := &SyncOrchestrator{
		ingestion: ingestion,
		store:     store,
		registry:  registry,
		connect:   connect,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sync walks root once. New files are ingested, changed files reindexed
// and documents whose file has gone are deleted.
func (o *SyncOrchestrator) Sync(ctx context.Context, root string) (*driving.SyncStatus, error) {
	connector, err := o.open(ctx, root)
	if err != nil {
		return nil, err
	}
	defer connector.Close()

	if err := o.begin(root); err != nil {
		return nil, err
	}
	defer o.end()

	logger.Info("Starting sync of %s", root)
	if err := o.fullSync(ctx, root, connector); err != nil {
		return nil, err
	}
	o.end()

	status := o.Status()
	logger.Info("Sync complete: %d ingested, %d reindexed, %d deleted, %d unchanged, %d skipped, %d errors",
		status.Ingested, status.Reindexed, status.Deleted, status.Unchanged, status.Skipped, status.ErrorCount)
	return &status, nil
}

// Watch syncs root, then applies file changes until ctx is cancelled.
// Cancellation is a clean shutdown and returns nil.
func (o *SyncOrchestrator) Watch(ctx context.Context, root string) error {
	connector, err := o.open(ctx, root)
	if err != nil {
		return err
	}
	defer connector.Close()

	if err := o.begin(root); err != nil {
		return err
	}
	defer o.end()

	if err := o.fullSync(ctx, root, connector); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	changes, err := connector.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	logger.Info("Watching %s for changes", root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			o.applyChange(ctx, change)
		}
	}
}

// Status returns the counters of the last or current run.
func (o *SyncOrchestrator) Status() driving.SyncStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

func (o *SyncOrchestrator) open(ctx context.Context, root string) (driven.Connector, error) {
	if o.connect == nil {
		return nil, fmt.Errorf("%w: connector builder not configured", domain.ErrConfiguration)
	}
	connector, err := o.connect(root)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", root, err)
	}
	if err := connector.Validate(ctx); err != nil {
		connector.Close()
		return nil, fmt.Errorf("validate %s: %w", root, err)
	}
	return connector, nil
}

func (o *SyncOrchestrator) begin(root string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status.Running {
		return fmt.Errorf("sync of %s already running", o.status.Root)
	}
	o.status = driving.SyncStatus{Root: root, Running: true}
	return nil
}

func (o *SyncOrchestrator) end() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.Running = false
}

func (o *SyncOrchestrator) count(fn func(s *driving.SyncStatus)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.status)
}

// fullSync processes every document from the connector, then prunes
// documents under root whose file was not seen.
func (o *SyncOrchestrator) fullSync(ctx context.Context, root string, connector driven.Connector) error {
	docsCh, errsCh := connector.FullSync(ctx)
	seen := make(map[string]bool)

	for docsCh != nil || errsCh != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err, ok := <-errsCh:
			if !ok {
				errsCh = nil
				continue
			}
			if err != nil {
				return fmt.Errorf("connector error: %w", err)
			}

		case raw, ok := <-docsCh:
			if !ok {
				docsCh = nil
				continue
			}
			seen[raw.URI] = true
			logger.Debug("Processing: %s", raw.URI)
			o.process(ctx, &raw)
		}
	}

	return o.prune(ctx, root, seen)
}

func (o *SyncOrchestrator) applyChange(ctx context.Context, change domain.RawDocumentChange) {
	uri := change.Document.URI
	switch change.Type {
	case domain.ChangeCreated, domain.ChangeUpdated:
		logger.Debug("Processing %s: %s", change.Type, uri)
		o.process(ctx, &change.Document)

	case domain.ChangeDeleted:
		logger.Debug("Deleting: %s", uri)
		if err := o.deleteBySource(ctx, uri); err != nil {
			o.count(func(s *driving.SyncStatus) { s.ErrorCount++ })
			logger.Warn("Failed to delete %s: %v", uri, err)
		}
	}
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeSkipped
	outcomeIngested
	outcomeReindexed
	outcomeUnchanged
)

var errNoText = errors.New("no extractable text")

// process normalises raw and ingests or updates the matching document.
// Failures are counted and logged; they never stop the run.
func (o *SyncOrchestrator) process(ctx context.Context, raw *domain.RawDocument) {
	_, result, err := o.upsert(ctx, raw)
	switch result {
	case outcomeSkipped:
		o.count(func(s *driving.SyncStatus) { s.Skipped++ })
		logger.Debug("Skipping %s: %v", raw.URI, err)
	case outcomeFailed:
		o.count(func(s *driving.SyncStatus) { s.ErrorCount++ })
		logger.Warn("Failed to sync %s: %v", raw.URI, err)
	case outcomeIngested:
		o.count(func(s *driving.SyncStatus) { s.Ingested++ })
	case outcomeReindexed:
		o.count(func(s *driving.SyncStatus) { s.Reindexed++ })
	case outcomeUnchanged:
		o.count(func(s *driving.SyncStatus) { s.Unchanged++ })
	}
}

// upsert stores raw as a new document, or updates the document with the
// same source when its title or content changed.
func (o *SyncOrchestrator) upsert(ctx context.Context, raw *domain.RawDocument) (*domain.Document, outcome, error) {
	result, err := o.registry.Normalise(ctx, raw)
	if errors.Is(err, domain.ErrUnsupportedType) {
		return nil, outcomeSkipped, err
	}
	if err != nil {
		return nil, outcomeFailed, fmt.Errorf("normalise: %w", err)
	}
	if strings.TrimSpace(result.Content) == "" {
		return nil, outcomeSkipped, errNoText
	}

	req := domain.IngestRequest{
		Title:   result.Title,
		Content: result.Content,
		Source:  raw.URI,
		DocType: result.DocType,
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = filepath.Base(raw.URI)
	}

	existing, err := o.store.FindDocumentBySource(ctx, raw.URI)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		doc, err := o.ingestion.Ingest(ctx, req)
		if err != nil {
			return nil, outcomeFailed, fmt.Errorf("ingest: %w", err)
		}
		return doc, outcomeIngested, nil

	case err != nil:
		return nil, outcomeFailed, fmt.Errorf("look up: %w", err)

	case existing.Content == req.Content && existing.Title == req.Title:
		return existing, outcomeUnchanged, nil

	default:
		doc, err := o.ingestion.Update(ctx, existing.ID, req)
		if err != nil {
			return nil, outcomeFailed, fmt.Errorf("reindex: %w", err)
		}
		return doc, outcomeReindexed, nil
	}
}

// IngestFile reads one file and stores it the way Sync would: a file
// already stored under the same path is updated in place.
func (o *SyncOrchestrator) IngestFile(ctx context.Context, path string) (*domain.Document, error) {
	if o.readFile == nil {
		return nil, fmt.Errorf("%w: file reader not configured", domain.ErrConfiguration)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	raw, err := o.readFile(abs)
	if err != nil {
		return nil, err
	}

	doc, _, err := o.upsert(ctx, &raw)
	switch {
	case errors.Is(err, errNoText):
		return nil, domain.NewValidationError("content", fmt.Sprintf("%s has no extractable text", path))
	case err != nil:
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func (o *SyncOrchestrator) deleteBySource(ctx context.Context, uri string) error {
	doc, err := o.store.FindDocumentBySource(ctx, uri)
	if errors.Is(err, domain.ErrNotFound) {
		// Never ingested, or already gone.
		return nil
	}
	if err != nil {
		return err
	}
	if err := o.ingestion.Delete(ctx, doc.ID); err != nil {
		return err
	}
	o.count(func(s *driving.SyncStatus) { s.Deleted++ })
	return nil
}

// prune deletes documents sourced under root that were not seen.
func (o *SyncOrchestrator) prune(ctx context.Context, root string, seen map[string]bool) error {
	prefix := filepath.Clean(root) + string(filepath.Separator)

	var stale []string
	for offset := 0; ; offset += listPageSize {
		docs, err := o.store.ListDocuments(ctx, domain.ListOptions{Offset: offset, Limit: listPageSize})
		if err != nil {
			return fmt.Errorf("list documents: %w", err)
		}
		for _, doc := range docs {
			if strings.HasPrefix(doc.Source, prefix) && !seen[doc.Source] {
				stale = append(stale, doc.ID)
			}
		}
		if len(docs) < listPageSize {
			break
		}
	}

	for _, id := range stale {
		if err := o.ingestion.Delete(ctx, id); err != nil {
			o.count(func(s *driving.SyncStatus) { s.ErrorCount++ })
			logger.Warn("Failed to delete stale document %s: %v", id, err)
			continue
		}
		o.count(func(s *driving.SyncStatus) { s.Deleted++ })
	}
	return nil
}
