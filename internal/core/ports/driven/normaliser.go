package driven

import (
	"context"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

// Normaliser extracts plain text from a raw document.
// Each normaliser handles specific MIME types (e.g., PDF, Markdown).
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific normalisers return 50-89, fallbacks 1-9.
	Priority() int

	// Normalise extracts the title and text of a raw document.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)
}

// NormaliseResult is the output of normalisation, ready for ingestion.
type NormaliseResult struct {
	// Title is the extracted or derived title.
	Title string

	// Content is the extracted text.
	Content string

	// DocType is the document type tag (text, markdown, html, pdf).
	DocType string
}
