package driving

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// ProcessingTracker owns the per-material ingestion counters.
type ProcessingTracker interface {
	// Start replaces any previous record with a PENDING one.
	Start(ctx context.Context, materialID string, totalChunks int, model string) (*domain.ProcessingRecord, error)

	// Begin moves the record to PROCESSING on first dispatch.
	Begin(ctx context.Context, materialID string) (*domain.ProcessingRecord, error)

	// Record adds one batch outcome. cause, if non-nil, is kept as the
	// record's last error.
	Record(ctx context.Context, materialID string, processed, failed int, cause error) (*domain.ProcessingRecord, error)

	// Get returns the record for a material.
	Get(ctx context.Context, materialID string) (*domain.ProcessingRecord, error)

	// Delete removes the record for a material.
	Delete(ctx context.Context, materialID string) error
}
