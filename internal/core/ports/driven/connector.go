package driven

import (
	"context"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

// Connector reads documents from an origin such as a local directory.
type Connector interface {
	// Validate checks the origin exists and is readable.
	Validate(ctx context.Context) error

	// FullSync streams every document. The error channel carries at most
	// one fatal error; both channels are closed when the walk ends.
	FullSync(ctx context.Context) (<-chan domain.RawDocument, <-chan error)

	// Watch streams changes until ctx is cancelled.
	Watch(ctx context.Context) (<-chan domain.RawDocumentChange, error)

	// Close releases resources.
	Close() error
}
