// Package domain defines the core business entities for Lectern.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Material: An uploaded learning document owned by a tenant
//   - Chunk: A bounded fragment of a material, the unit of retrieval
//   - VectorRecord: The indexed projection of a chunk and its embedding
//   - ProcessingRecord: Ingestion progress of a material
//   - Conversation and Message: A grounded chat over a material
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
