// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// Generator produces the answer for a chat turn. It is a black box to the
// core: the quality of the answer is not the core's concern.
//
// Implementations may include:
//   - OpenAI chat completions (gpt-4o-mini)
//   - OpenAI-compatible inference servers
type Generator interface {
	// Generate answers the user's turn grounded on the assembled context.
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Close releases resources.
	Close() error
}

// GenerationRequest carries everything the generator consumes.
type GenerationRequest struct {
	// UserText is the current user turn.
	UserText string

	// Context is the bounded set of retrieved chunks.
	Context domain.ContextWindow

	// History is prior messages, oldest first.
	History []domain.Message

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64
}

// GenerationResult is the generator's answer.
type GenerationResult struct {
	Text       string
	TokensUsed int
}
