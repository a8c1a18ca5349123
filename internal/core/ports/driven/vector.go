package driven

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// VectorStoreProvider is a nearest-neighbour collection store with
// equality metadata filtering. Collections are keyed by deployment
// environment name.
type VectorStoreProvider interface {
	// CreateCollection creates a collection. Returns domain.ErrAlreadyExists
	// if a collection with the same name exists.
	CreateCollection(ctx context.Context, spec CollectionSpec) error

	// DescribeCollection returns the declared shape of a collection.
	// Returns domain.ErrNotFound if it does not exist.
	DescribeCollection(ctx context.Context, name string) (*CollectionSpec, error)

	// Upsert inserts or replaces records by ID.
	Upsert(ctx context.Context, collection string, records []domain.VectorRecord) error

	// Query returns up to topK records matching filter, most similar first.
	Query(ctx context.Context, collection string, query VectorQuery) ([]domain.VectorMatch, error)

	// Delete removes every record matching filter and returns how many were removed.
	Delete(ctx context.Context, collection string, filter domain.VectorFilter) (int, error)

	// DescribeStats returns record counts for the collection.
	DescribeStats(ctx context.Context, collection string) (*domain.IndexStats, error)

	// Close releases the client handle.
	Close() error
}

// CollectionSpec declares a collection's shape.
type CollectionSpec struct {
	Name      string
	Dimension int
	Metric    domain.DistanceMetric
}

// VectorQuery is a filtered similarity query.
type VectorQuery struct {
	Vector []float32
	Filter domain.VectorFilter
	TopK   int
}
