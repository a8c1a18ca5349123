package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

// Ensure ProcessingTracker implements the interface.
var _ driving.ProcessingTracker = (*ProcessingTracker)(nil)

// ProcessingTracker persists the ingestion state machine of each material.
// Transitions are read-modify-write against the store and serialised here.
type ProcessingTracker struct {
	store driven.ProcessingStore
	now   func() time.Time
	log   logger.Logger

	mu sync.Mutex
}

// NewProcessingTracker creates a tracker backed by store.
func NewProcessingTracker(store driven.ProcessingStore) *ProcessingTracker {
	return &ProcessingTracker{
		store: store,
		now:   time.Now,
		log:   logger.With("processing"),
	}
}

// Start replaces any previous record of the material with a PENDING one.
func (t *ProcessingTracker) Start(ctx context.Context, materialID string, totalChunks int, model string) (*domain.ProcessingRecord, error) {
	rec, err := domain.NewProcessingRecord(materialID, totalChunks, model, t.now())
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save processing record: %w", err)
	}
	t.log.Debug("material %s pending with %d chunks", materialID, totalChunks)
	return rec, nil
}

// Begin moves the record to PROCESSING. A material with no chunks settles
// to COMPLETED immediately.
func (t *ProcessingTracker) Begin(ctx context.Context, materialID string) (*domain.ProcessingRecord, error) {
	return t.update(ctx, materialID, func(rec *domain.ProcessingRecord, now time.Time) error {
		return rec.Begin(now)
	})
}

// Record adds one batch outcome and settles the record once every chunk
// has been attempted.
func (t *ProcessingTracker) Record(ctx context.Context, materialID string, processed, failed int, cause error) (*domain.ProcessingRecord, error) {
	return t.update(ctx, materialID, func(rec *domain.ProcessingRecord, now time.Time) error {
		if err := rec.Apply(processed, failed, now); err != nil {
			return err
		}
		if cause != nil {
			rec.LastError = cause.Error()
		}
		return nil
	})
}

func (t *ProcessingTracker) update(
	ctx context.Context,
	materialID string,
	mutate func(*domain.ProcessingRecord, time.Time) error,
) (*domain.ProcessingRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.store.Get(ctx, materialID)
	if err != nil {
		return nil, fmt.Errorf("get processing record: %w", err)
	}
	if err := mutate(rec, t.now()); err != nil {
		return nil, err
	}
	if err := t.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save processing record: %w", err)
	}
	if rec.Status.IsTerminal() {
		t.log.Info("material %s %s: %d processed, %d failed of %d",
			materialID, rec.Status, rec.ProcessedChunks, rec.FailedChunks, rec.TotalChunks)
	}
	return rec, nil
}

// Get returns the record of a material.
func (t *ProcessingTracker) Get(ctx context.Context, materialID string) (*domain.ProcessingRecord, error) {
	return t.store.Get(ctx, materialID)
}

// Delete removes the record of a material.
func (t *ProcessingTracker) Delete(ctx context.Context, materialID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Delete(ctx, materialID)
}
