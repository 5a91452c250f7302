// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - EmbeddingService: Maps text to fixed-dimension vectors (OpenAI, Mistral, Ollama)
//   - LLMService: Black-box text completion (OpenRouter, OpenAI, Ollama)
//   - VectorIndex: Nearest-neighbour store keyed by chunk ID (Qdrant, pgvector)
//   - DocumentStore: Transactional Document and Chunk persistence (SQLite, Postgres)
//   - QueryLogStore: Append-only query audit log
//   - ConfigStore: Application configuration
//   - PromptStore: Prompt templates for answer generation
//
// # Optional Interfaces
//
//   - Normaliser / NormaliserRegistry: Text extraction for file ingestion
//   - Connector: Directory walk and watch for file ingestion
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or normaliser package
package driven
