package driving

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// RetrievalService finds the chunks of one material most relevant to a query.
type RetrievalService interface {
	// Retrieve embeds the query text and returns up to TopK chunks of the
	// query's material. No chunks is an empty result, not an error.
	Retrieve(ctx context.Context, query domain.RetrievalQuery) ([]domain.RetrievedChunk, error)

	// Search authorises the principal against the material and retrieves
	// within the principal's tenant.
	Search(ctx context.Context, principal domain.Principal, materialID, text string, topK int) ([]domain.RetrievedChunk, error)
}
