// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The query path is Embedder -> Retriever -> AnswerService; the ingest
// path is chunker -> Embedder -> DocumentStore + VectorIndex, owned by
// IngestionService.
package services
