package postprocessors

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/postprocessors/annotator"
	"github.com/custodia-labs/lectern/internal/postprocessors/chunker"
)

// DefaultProcessors is the processor order used when none is configured.
var DefaultProcessors = []string{"chunker", "annotator"}

// RegisterDefaults registers all built-in processors with the registry.
// Call this during application initialisation to enable standard processors.
func RegisterDefaults(r *Registry) {
	r.Register("chunker", buildChunker)
	r.Register("annotator", buildAnnotator)
}

// DefaultPipeline returns the chunker followed by the annotator.
func DefaultPipeline(chunkSize, overlap int) *Pipeline {
	return NewPipeline(
		chunker.New(chunker.WithChunkSize(chunkSize), chunker.WithOverlap(overlap)),
		annotator.New(),
	)
}

// FromSettings builds the processors named in s, in order, from the
// built-in set. An empty list means DefaultProcessors.
func FromSettings(s domain.ChunkingSettings) (*Pipeline, error) {
	r := NewRegistry()
	RegisterDefaults(r)

	names := s.Processors
	if len(names) == 0 {
		names = DefaultProcessors
	}
	for _, name := range names {
		if !r.Has(name) {
			return nil, fmt.Errorf("%w: unknown chunking processor %q (available: %s)",
				domain.ErrValidation, name, strings.Join(r.Names(), ", "))
		}
	}

	return r.BuildPipeline(names, map[string]map[string]any{
		"chunker": {"chunk_size": s.ChunkSize, "overlap": s.Overlap},
	})
}

// buildChunker creates a chunker processor from generic config.
// Supported config keys:
//   - chunk_size (int): Characters per chunk (default: 1000)
//   - overlap (int): Overlapping characters between windows (default: 200)
func buildChunker(cfg map[string]any) (driven.ChunkProcessor, error) {
	var opts []chunker.Option

	if cfg != nil {
		if size := getIntFromConfig(cfg, "chunk_size"); size > 0 {
			opts = append(opts, chunker.WithChunkSize(size))
		}
		if _, ok := cfg["overlap"]; ok {
			opts = append(opts, chunker.WithOverlap(getIntFromConfig(cfg, "overlap")))
		}
	}

	return chunker.New(opts...), nil
}

func buildAnnotator(_ map[string]any) (driven.ChunkProcessor, error) {
	return annotator.New(), nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) int {
	val, ok := cfg[key]
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
