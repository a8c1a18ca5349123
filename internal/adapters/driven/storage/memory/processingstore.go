package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure ProcessingStore implements the interface.
var _ driven.ProcessingStore = (*ProcessingStore)(nil)

// ProcessingStore is an in-memory implementation of driven.ProcessingStore.
type ProcessingStore struct {
	mu      sync.RWMutex
	records map[string]domain.ProcessingRecord
}

// NewProcessingStore creates a new in-memory processing store.
func NewProcessingStore() *ProcessingStore {
	return &ProcessingStore{
		records: make(map[string]domain.ProcessingRecord),
	}
}

// Save stores or updates a record.
func (s *ProcessingStore) Save(_ context.Context, record *domain.ProcessingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.MaterialID] = *record
	return nil
}

// Get retrieves the record of a material.
func (s *ProcessingStore) Get(_ context.Context, materialID string) (*domain.ProcessingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[materialID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

// Delete removes the record of a material.
func (s *ProcessingStore) Delete(_ context.Context, materialID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, materialID)
	return nil
}
