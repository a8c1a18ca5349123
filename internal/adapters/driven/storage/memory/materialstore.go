package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure MaterialStore implements the interface.
var _ driven.MaterialStore = (*MaterialStore)(nil)

// MaterialStore is an in-memory implementation of driven.MaterialStore.
type MaterialStore struct {
	mu        sync.RWMutex
	materials map[string]domain.Material
	chunks    map[string][]domain.Chunk
}

// NewMaterialStore creates a new in-memory material store.
func NewMaterialStore() *MaterialStore {
	return &MaterialStore{
		materials: make(map[string]domain.Material),
		chunks:    make(map[string][]domain.Chunk),
	}
}

// SaveMaterial stores or updates a material.
func (s *MaterialStore) SaveMaterial(_ context.Context, material *domain.Material) error {
	if err := material.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials[material.ID] = *material
	return nil
}

// SaveChunks replaces the chunks of a material.
func (s *MaterialStore) SaveChunks(_ context.Context, materialID string, chunks []domain.Chunk) error {
	sorted := append([]domain.Chunk(nil), chunks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.materials[materialID]; !ok {
		return domain.ErrNotFound
	}
	s.chunks[materialID] = sorted
	return nil
}

// GetMaterial retrieves a material by ID.
func (s *MaterialStore) GetMaterial(_ context.Context, id string) (*domain.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	material, ok := s.materials[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &material, nil
}

// GetChunks retrieves all chunks for a material ordered by index.
func (s *MaterialStore) GetChunks(_ context.Context, materialID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Chunk(nil), s.chunks[materialID]...), nil
}

// GetChunk retrieves a specific chunk by ID.
func (s *MaterialStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, chunks := range s.chunks {
		for _, chunk := range chunks {
			if chunk.ID == id {
				return &chunk, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

// DeleteMaterial removes a material and its chunks.
func (s *MaterialStore) DeleteMaterial(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.materials, id)
	delete(s.chunks, id)
	return nil
}

// ListMaterials returns the materials of a tenant, newest first.
func (s *MaterialStore) ListMaterials(_ context.Context, tenantID string) ([]domain.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Material, 0)
	for _, m := range s.materials {
		if m.TenantID == tenantID {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
