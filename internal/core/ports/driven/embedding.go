// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EmbeddingProvider generates vector embeddings from text.
//
// Note: This is separate from VectorStoreProvider which stores and searches vectors.
// Callers must truncate input to the provider's maximum size beforehand.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - OpenAI-compatible inference servers
type EmbeddingProvider interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) (*ProviderEmbedding, error)

	// EmbedBatch generates embeddings for multiple texts in one request.
	// Vectors are returned in input order.
	EmbedBatch(ctx context.Context, texts []string) (*ProviderBatchEmbedding, error)

	// Dimensions returns the embedding vector size (e.g., 1536, 3072).
	// This is determined by the model and must match the vector collection.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ProviderEmbedding is the provider payload for a single text.
type ProviderEmbedding struct {
	Vector     []float32
	TokensUsed int
}

// ProviderBatchEmbedding is the provider payload for a batch.
// Usage is reported for the whole request, not per item.
type ProviderBatchEmbedding struct {
	Vectors         [][]float32
	TotalTokensUsed int
}

// RateLimitedError is returned by providers that answered 429.
// RetryAfter is zero when the provider gave no hint.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

// IsRateLimited returns the RateLimitedError in err's chain, if any.
func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
