package driving

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// VectorIndexService is the tenant-scoped nearest-neighbour store.
// Every operation other than Initialize refuses to run unless the index
// is READY.
type VectorIndexService interface {
	// Initialize creates the collection if absent or verifies its
	// dimension. A mismatch moves the index to FATAL.
	Initialize(ctx context.Context) error

	// Upsert validates and stores records in batches.
	Upsert(ctx context.Context, records []domain.VectorRecord) (*domain.UpsertResult, error)

	// Query returns the closest records matching filter. The filter must
	// name a tenant.
	Query(ctx context.Context, vector []float32, filter domain.VectorFilter, topK int) ([]domain.VectorMatch, error)

	// DeleteByMaterial removes every record of a material.
	DeleteByMaterial(ctx context.Context, tenantID, materialID string) (int, error)

	// Stats reports record counts and index health.
	Stats(ctx context.Context) (*domain.IndexStats, error)

	// State returns the lifecycle state.
	State() domain.IndexState

	// Shutdown releases the provider connection.
	Shutdown(ctx context.Context) error
}
