// Package memory provides an in-process vector store with exact
// (brute-force) cosine search. It is the default provider for a single
// process and the reference behaviour for the Redis provider.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.VectorStoreProvider = (*Store)(nil)

type collection struct {
	spec    driven.CollectionSpec
	records map[string]domain.VectorRecord
}

// Store is an in-memory implementation of driven.VectorStoreProvider.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	closed      bool
}

// New creates an empty store.
func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

// CreateCollection creates a collection.
func (s *Store) CreateCollection(_ context.Context, spec driven.CollectionSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, ok := s.collections[spec.Name]; ok {
		return fmt.Errorf("%w: collection %s", domain.ErrAlreadyExists, spec.Name)
	}
	s.collections[spec.Name] = &collection{spec: spec, records: make(map[string]domain.VectorRecord)}
	return nil
}

// DescribeCollection returns the declared shape of a collection.
func (s *Store) DescribeCollection(_ context.Context, name string) (*driven.CollectionSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s", domain.ErrNotFound, name)
	}
	spec := c.spec
	return &spec, nil
}

// Upsert inserts or replaces records by ID.
func (s *Store) Upsert(_ context.Context, name string, records []domain.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(name)
	if err != nil {
		return err
	}
	for _, r := range records {
		if len(r.Values) != c.spec.Dimension {
			return fmt.Errorf("record %s has dimension %d, collection has %d", r.ID, len(r.Values), c.spec.Dimension)
		}
	}
	for _, r := range records {
		r.Values = append([]float32(nil), r.Values...)
		c.records[r.ID] = r
	}
	return nil
}

// Query returns up to TopK records matching the filter, most similar first.
// Score is the cosine similarity.
func (s *Store) Query(_ context.Context, name string, q driven.VectorQuery) ([]domain.VectorMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(name)
	if err != nil {
		return nil, err
	}

	matches := make([]domain.VectorMatch, 0)
	for _, r := range c.records {
		if !q.Filter.Matches(r.Metadata) {
			continue
		}
		sim, err := domain.CosineSimilarity(q.Vector, r.Values)
		if err != nil {
			return nil, err
		}
		matches = append(matches, domain.VectorMatch{ID: r.ID, Score: sim, Metadata: r.Metadata})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
	if q.TopK > 0 && len(matches) > q.TopK {
		matches = matches[:q.TopK]
	}
	return matches, nil
}

// Delete removes every record matching filter. An empty filter is refused.
func (s *Store) Delete(_ context.Context, name string, filter domain.VectorFilter) (int, error) {
	if filter.IsEmpty() {
		return 0, fmt.Errorf("%w: refusing to delete with an empty filter", domain.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(name)
	if err != nil {
		return 0, err
	}
	n := 0
	for id, r := range c.records {
		if filter.Matches(r.Metadata) {
			delete(c.records, id)
			n++
		}
	}
	return n, nil
}

// DescribeStats returns record counts for the collection.
func (s *Store) DescribeStats(_ context.Context, name string) (*domain.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(name)
	if err != nil {
		return nil, err
	}
	return &domain.IndexStats{
		Collection:  name,
		Dimension:   c.spec.Dimension,
		Metric:      c.spec.Metric,
		RecordCount: int64(len(c.records)),
	}, nil
}

// Close marks the store closed. Data is discarded.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.collections = make(map[string]*collection)
	return nil
}

func (s *Store) checkOpen() error {
	if s.closed {
		return fmt.Errorf("vector store is closed")
	}
	return nil
}

// get returns a collection. Callers must hold s.mu.
func (s *Store) get(name string) (*collection, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s", domain.ErrNotFound, name)
	}
	return c, nil
}
