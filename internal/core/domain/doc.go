// Package domain defines the core business entities for ragkb.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An ingested document
//   - Chunk: A bounded slice of a document paired with one vector
//   - VectorPayload: The typed metadata stored next to each vector
//   - QueryLog: The immutable audit record of an answered question
//   - Answer: The structured result of the answer state machine
//   - Settings: Layered application configuration
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
