package driving

import (
	"context"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

// SyncService keeps the knowledge base in step with a directory of files.
type SyncService interface {
	// Sync walks root once, ingesting new files and reindexing changed ones.
	Sync(ctx context.Context, root string) (*SyncStatus, error)

	// Watch syncs root, then applies file changes until ctx is cancelled.
	Watch(ctx context.Context, root string) error

	// IngestFile normalises one file and ingests it, or updates the
	// document already stored for the same path.
	IngestFile(ctx context.Context, path string) (*domain.Document, error)

	// Status returns the counters of the last or current run.
	Status() SyncStatus
}

// SyncStatus represents the current state of a sync operation.
type SyncStatus struct {
	// Root is the directory being synchronised.
	Root string

	// Running indicates if sync is currently in progress.
	Running bool

	// Ingested is the count of new documents.
	Ingested int

	// Reindexed is the count of changed documents.
	Reindexed int

	// Deleted is the count of removed documents.
	Deleted int

	// Unchanged is the count of files whose text matched the stored document.
	Unchanged int

	// Skipped is the count of files with no matching normaliser or no text.
	Skipped int

	// ErrorCount is the number of errors encountered.
	ErrorCount int
}
