package driven

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// ChunkProcessor processes material text to produce chunks.
// Processors are chained in a pipeline (e.g., chunking, annotation).
type ChunkProcessor interface {
	// Name returns the processor name for logging and configuration.
	Name() string

	// Process takes a material and its text and returns chunks.
	// If the processor creates chunks (e.g., chunker), it receives nil and returns new chunks.
	// If the processor annotates chunks, it receives and returns chunks.
	Process(ctx context.Context, material *domain.Material, text string, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// ChunkPipeline chains multiple ChunkProcessors.
type ChunkPipeline interface {
	// Process runs the material text through all processors in order.
	// Returns the final chunks with indexes assigned.
	Process(ctx context.Context, material *domain.Material, text string) ([]domain.Chunk, error)
}
