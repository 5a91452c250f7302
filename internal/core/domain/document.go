package domain

import (
	"strings"
	"time"
)

// DefaultDocType is the type tag given to documents ingested without one.
const DefaultDocType = "text"

// Document represents an ingested document in the knowledge base.
// A Document owns zero or more Chunks; deleting it invalidates all of its
// Chunks and their vectors.
type Document struct {
	// ID is the opaque unique identifier for the document.
	ID string `json:"id"`

	// Title is the human-readable title.
	Title string `json:"title"`

	// Content is the full text content before chunking.
	Content string `json:"content,omitempty"`

	// Source is an optional reference to where the content came from
	// (URL, file path, ...). Empty when unknown.
	Source string `json:"source,omitempty"`

	// DocType is a free-form type tag such as "text", "pdf" or "html".
	DocType string `json:"doc_type"`

	// ChunkCount is derived from the stored chunks. It is not persisted.
	ChunkCount int `json:"chunk_count"`

	// CreatedAt is when the document was first ingested.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the document was last ingested or reindexed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Chunk is a bounded contiguous slice of a document's text.
// Its vector lives in the vector index keyed by the chunk ID.
type Chunk struct {
	// ID is the unique identifier for the chunk and its vector.
	ID string `json:"id"`

	// DocumentID links to the owning Document.
	DocumentID string `json:"document_id"`

	// Text is the chunk text.
	Text string `json:"chunk_text"`

	// Index is the zero-based position within the document.
	// Indexes for one document are contiguous and follow reading order.
	Index int `json:"chunk_index"`

	// Size is the character length of Text.
	Size int `json:"chunk_size"`

	// CreatedAt is when the chunk was stored.
	CreatedAt time.Time `json:"created_at"`
}

// IngestRequest is the input for adding a document to the knowledge base.
type IngestRequest struct {
	Title   string `json:"title" yaml:"title" validate:"required,max=500"`
	Content string `json:"content" yaml:"content" validate:"required"`
	Source  string `json:"source,omitempty" yaml:"source" validate:"max=1000"`
	DocType string `json:"doc_type,omitempty" yaml:"doc_type" validate:"max=50"`
}

// Normalise applies defaults.
func (r *IngestRequest) Normalise() {
	if r.DocType == "" {
		r.DocType = DefaultDocType
	}
}

// Validate checks the request before any external call is made.
func (r IngestRequest) Validate() error {
	if isBlank(r.Title) {
		return NewValidationError("title", "is required")
	}
	if isBlank(r.Content) {
		return NewValidationError("content", "must not be empty")
	}
	return nil
}

// ListOptions pages through stored documents.
type ListOptions struct {
	// Offset is the number of documents to skip.
	Offset int

	// Limit is the maximum number of documents to return.
	Limit int
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
