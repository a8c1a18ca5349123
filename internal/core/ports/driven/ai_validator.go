package driven

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// AIConfigValidator validates AI provider configurations.
// Implementations verify that configurations are valid by testing connectivity
// to the underlying AI services.
type AIConfigValidator interface {
	// ValidateEmbedding checks the embedding provider is reachable with the
	// configured key.
	ValidateEmbedding(ctx context.Context, settings domain.EmbeddingSettings) error

	// ValidateChat checks the chat provider is reachable. The chat key
	// falls back to fallbackKey when unset.
	ValidateChat(ctx context.Context, settings domain.ChatSettings, fallbackKey string) error
}
