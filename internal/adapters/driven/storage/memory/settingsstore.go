package memory

import (
	"sync"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure SettingsStore implements the interface.
var _ driven.SettingsStore = (*SettingsStore)(nil)

// SettingsStore is an in-memory implementation of driven.SettingsStore for testing.
type SettingsStore struct {
	mu       sync.RWMutex
	settings domain.Settings
}

// NewSettingsStore creates a store holding the default settings.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{settings: domain.DefaultSettings()}
}

// Load returns a copy of the held settings.
func (s *SettingsStore) Load() (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	settings := s.settings
	return &settings, nil
}

// Save replaces the held settings.
func (s *SettingsStore) Save(settings *domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = *settings
	return nil
}

// Path returns an empty string; nothing is persisted.
func (s *SettingsStore) Path() string {
	return ""
}
