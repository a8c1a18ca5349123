// Package postprocessors provides material text processing implementations.
package postprocessors

import (
	"context"
	"fmt"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/postprocessors/chunker"
)

// Ensure Pipeline implements the interface.
var _ driven.ChunkPipeline = (*Pipeline)(nil)

// Pipeline chains multiple ChunkProcessors and runs them in order.
// It implements the ChunkPipeline interface.
type Pipeline struct {
	processors []driven.ChunkProcessor
}

// NewPipeline creates a new processing pipeline with the given processors.
// Processors are executed in the order provided.
func NewPipeline(processors ...driven.ChunkProcessor) *Pipeline {
	return &Pipeline{
		processors: processors,
	}
}

// Process runs the material text through all processors in order.
// The first processor receives nil chunks and should create them.
// Subsequent processors receive and may modify the chunks.
//
// The returned chunks are renumbered 0..n-1 in order, with IDs derived
// from the material and index, and carry the material's isolation tags.
func (p *Pipeline) Process(ctx context.Context, material *domain.Material, text string) ([]domain.Chunk, error) {
	if err := material.Validate(); err != nil {
		return nil, err
	}

	var chunks []domain.Chunk

	for _, processor := range p.processors {
		var err error
		chunks, err = processor.Process(ctx, material, text, chunks)
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", processor.Name(), err)
		}
	}

	for i := range chunks {
		chunks[i].Index = i
		chunks[i].ID = chunker.ChunkID(material.ID, i)
		chunks[i].MaterialID = material.ID
		chunks[i].TenantID = material.TenantID
	}

	return chunks, nil
}

// Add appends a processor to the pipeline.
func (p *Pipeline) Add(processor driven.ChunkProcessor) {
	p.processors = append(p.processors, processor)
}

// Len returns the number of processors in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.processors)
}
