// Package chunker splits document text into bounded, overlapping chunks
// using a paragraph, sentence, word, character fallback cascade.
package chunker

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 500

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 50

const paragraphSeparator = "\n\n"

// boundaryMarkers are tried in order when a window must be cut early.
var boundaryMarkers = [][]rune{
	[]rune(". "),
	[]rune("! "),
	[]rune("? "),
	[]rune("\n\n"),
	[]rune("\n"),
}

// Ensure Processor implements the interface.
var _ driven.Chunker = (*Processor)(nil)

// Processor splits document content into chunks.
// Sizes are counted in characters (runes), not bytes.
type Processor struct {
	chunkSize int
	overlap   int
	now       func() time.Time
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between character-split chunks.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Overlap must leave room for progress.
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// FromSettings builds a processor from chunking settings, rejecting
// values New would otherwise clamp.
func FromSettings(s domain.ChunkingSettings) (*Processor, error) {
	if err := Validate(s.Size, s.Overlap); err != nil {
		return nil, err
	}
	return New(WithChunkSize(s.Size), WithOverlap(s.Overlap)), nil
}

// Validate checks size > 0 and 0 <= overlap < size.
func Validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfiguration, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", domain.ErrConfiguration, size, overlap)
	}
	return nil
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkSize returns the target chunk size.
func (p *Processor) ChunkSize() int {
	return p.chunkSize
}

// Overlap returns the configured overlap.
func (p *Processor) Overlap() int {
	return p.overlap
}

// Process splits the document content into ordered chunk records.
func (p *Processor) Process(_ context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}

	texts := p.Split(doc.Content)
	if len(texts) == 0 {
		return nil, nil
	}

	created := p.now().UTC()
	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, domain.Chunk{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Text:       text,
			Index:      i,
			Size:       utf8.RuneCountInString(text),
			CreatedAt:  created,
		})
	}

	return chunks, nil
}

// Split packs blank-line separated paragraphs into chunks of at most
// chunkSize characters. A paragraph longer than chunkSize is cut with
// the character window; its last piece stays open so that following
// short paragraphs can still be packed onto it.
func (p *Processor) Split(text string) []string {
	var chunks []string
	current := ""

	for _, raw := range strings.Split(text, paragraphSeparator) {
		para := strings.TrimSpace(raw)
		if para == "" {
			continue
		}

		if runeLen(current)+runeLen(para)+len(paragraphSeparator) <= p.chunkSize {
			if current != "" {
				current += paragraphSeparator + para
			} else {
				current = para
			}
			continue
		}

		if current != "" {
			chunks = append(chunks, current)
		}
		current = para

		if runeLen(para) > p.chunkSize {
			pieces := p.SplitWindow(para)
			current = ""
			if n := len(pieces); n > 0 {
				chunks = append(chunks, pieces[:n-1]...)
				current = pieces[n-1]
			}
		}
	}

	if current != "" {
		chunks = append(chunks, current)
	}

	return chunks
}

// SplitWindow cuts text with a sliding window of chunkSize characters.
// Each window not reaching the end of text is cut after the last
// sentence or line marker, else at the last space, else hard. The next
// window starts overlap characters before the cut.
func (p *Processor) SplitWindow(text string) []string {
	r := []rune(text)
	n := len(r)

	var pieces []string
	start := 0
	for start < n {
		end := start + p.chunkSize
		if end < n {
			end = cutPoint(r, start, end)
		} else {
			end = n
		}

		if piece := strings.TrimSpace(string(r[start:end])); piece != "" {
			pieces = append(pieces, piece)
		}

		if end >= n {
			break
		}

		next := end - p.overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return pieces
}

// cutPoint returns the end offset for the window r[start:end].
// The result is always greater than start.
func cutPoint(r []rune, start, end int) int {
	for _, marker := range boundaryMarkers {
		if i := lastIndex(r, marker, start, end); i >= 0 {
			return i + len(marker)
		}
	}

	// A space at start would produce an empty window.
	for i := end - 1; i > start; i-- {
		if r[i] == ' ' {
			return i
		}
	}

	return end
}

// lastIndex finds the last occurrence of sub lying entirely in r[start:end].
func lastIndex(r, sub []rune, start, end int) int {
	for i := end - len(sub); i >= start; i-- {
		match := true
		for j, c := range sub {
			if r[i+j] != c {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
