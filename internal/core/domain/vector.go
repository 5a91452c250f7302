package domain

import "math"

// PreviewLength is the maximum number of characters of chunk text copied
// into a vector payload.
const PreviewLength = 500

// VectorPayload is the metadata stored next to each vector in the index.
// It mirrors the owning chunk so that index hits are meaningful even when
// the relational store has drifted.
type VectorPayload struct {
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Preview    string `json:"chunk_text"`
	Title      string `json:"title"`
	Source     string `json:"source,omitempty"`
	DocType    string `json:"doc_type"`
}

// NewVectorPayload builds the payload for chunk c of document doc.
func NewVectorPayload(doc Document, c Chunk) VectorPayload {
	return VectorPayload{
		DocumentID: doc.ID,
		ChunkIndex: c.Index,
		Preview:    Preview(c.Text, PreviewLength),
		Title:      doc.Title,
		Source:     doc.Source,
		DocType:    doc.DocType,
	}
}

// VectorPoint is one record written to the vector index.
type VectorPoint struct {
	// ID is the chunk ID.
	ID string

	// Vector has exactly the configured dimension.
	Vector []float32

	// Payload describes the chunk.
	Payload VectorPayload
}

// VectorHit is one nearest-neighbour result.
type VectorHit struct {
	// ID is the chunk ID.
	ID string

	// Score is the cosine similarity in [-1, 1].
	Score float64

	// Payload is the stored payload, when the index returns it.
	Payload *VectorPayload
}

// Preview truncates s to at most n runes.
func Preview(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. It returns 0 when either vector has zero magnitude or the
// lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim))
}
