// Package annotator classifies chunks and fills in their size metadata.
package annotator

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/postprocessors/chunker"
)

// Processor assigns Type, TokenCount and CharCount to every chunk.
// It implements the ChunkProcessor interface.
type Processor struct{}

// New creates an annotator.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "annotator"
}

// Process annotates chunks in place and returns them.
func (p *Processor) Process(_ context.Context, _ *domain.Material, _ string, chunks []domain.Chunk) ([]domain.Chunk, error) {
	for i := range chunks {
		c := &chunks[i]
		c.Type = Classify(c.Content, c.SectionTitle)
		c.CharCount = utf8.RuneCountInString(c.Content)
		c.TokenCount = domain.EstimateTokens(c.Content)
	}
	return chunks, nil
}

// Classify returns the structural type of content. A chunk whose whole
// content is its section title is a heading; a chunk where most lines are
// pipe or tab separated is a table; one where most lines are bullets or
// ordinals is a list.
func Classify(content, sectionTitle string) domain.ChunkType {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return domain.ChunkTypeParagraph
	}
	if sectionTitle != "" && strings.TrimSpace(strings.TrimLeft(trimmed, "#")) == sectionTitle {
		return domain.ChunkTypeHeading
	}

	var lines, table, list int
	for _, line := range strings.Split(trimmed, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines++
		if strings.Count(line, "|") >= 2 || strings.Contains(line, "\t") {
			table++
		}
		if chunker.IsListItem(line) {
			list++
		}
	}

	switch {
	case lines >= 2 && table*2 > lines:
		return domain.ChunkTypeTable
	case list*2 > lines:
		return domain.ChunkTypeList
	default:
		return domain.ChunkTypeParagraph
	}
}
