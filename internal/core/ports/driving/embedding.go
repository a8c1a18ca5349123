package driving

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// EmbeddingService turns text into fixed-dimension vectors.
type EmbeddingService interface {
	// Embed embeds a single text after truncating it to the request budget.
	Embed(ctx context.Context, text string) (*domain.EmbeddingResult, error)

	// EmbedBatch embeds texts in fixed-size sub-batches. A sub-batch that
	// fails is recorded in the result and never aborts its siblings.
	EmbedBatch(ctx context.Context, texts []string) (*domain.BatchEmbeddingResult, error)

	// Truncate cuts text to the character budget, appending an ellipsis
	// when it was shortened.
	Truncate(text string) string

	// Similarity returns the cosine similarity of a and b.
	Similarity(a, b []float32) (float64, error)

	// TopK ranks candidates by similarity to query, highest first.
	TopK(query []float32, candidates []domain.Candidate, k int) ([]domain.ScoredCandidate, error)

	// Validate checks a vector against the configured dimension.
	Validate(vector []float32) domain.ValidationReport

	// Dimension returns the configured vector dimension.
	Dimension() int

	// ModelName returns the embedding model identifier.
	ModelName() string
}
