package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreview(t *testing.T) {
	assert.Equal(t, "", Preview("abc", 0))
	assert.Equal(t, "ab", Preview("abc", 2))
	assert.Equal(t, "abc", Preview("abc", 10))
	// Runes, not bytes.
	assert.Equal(t, "éé", Preview("ééé", 2))
}

func TestNewVectorPayload(t *testing.T) {
	doc := Document{ID: "doc-1", Title: "Licence DSI", Source: "dsi.pdf", DocType: "pdf"}
	chunk := Chunk{ID: "c-1", DocumentID: "doc-1", Index: 2, Text: strings.Repeat("a", 700)}

	p := NewVectorPayload(doc, chunk)

	assert.Equal(t, "doc-1", p.DocumentID)
	assert.Equal(t, 2, p.ChunkIndex)
	assert.Len(t, p.Preview, PreviewLength)
	assert.Equal(t, "Licence DSI", p.Title)
	assert.Equal(t, "dsi.pdf", p.Source)
	assert.Equal(t, "pdf", p.DocType)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{1, 2}, []float32{0, 0}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
		{"known angle", []float32{1, 1}, []float32{1, 0}, 0.7071067811865475},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}
