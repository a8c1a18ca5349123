package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// SettingsService manages application settings.
type SettingsService struct {
	store     driven.SettingsStore
	validator driven.AIConfigValidator
}

// SettingsOption configures a SettingsService.
type SettingsOption func(*SettingsService)

// WithValidator enables provider checks.
func WithValidator(v driven.AIConfigValidator) SettingsOption {
	return func(s *SettingsService) {
		s.validator = v
	}
}

// NewSettingsService creates a new settings service.
func NewSettingsService(store driven.SettingsStore, opts ...SettingsOption) *SettingsService {
	s := &SettingsService{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.Settings, error) {
	settings, err := s.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.Settings) error {
	if settings == nil {
		return fmt.Errorf("%w: settings are nil", domain.ErrValidation)
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	return s.store.Save(settings)
}

// Update loads the current settings, applies fn and saves the result.
// Nothing is written when the result is invalid.
func (s *SettingsService) Update(fn func(*domain.Settings)) (*domain.Settings, error) {
	settings, err := s.Get()
	if err != nil {
		return nil, err
	}
	fn(settings)
	if err := s.Save(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// GetDefaults returns the default settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

// Path returns the settings location.
func (s *SettingsService) Path() string {
	return s.store.Path()
}

// Check probes the embedding and chat providers. A failed probe is
// reported in its ProviderCheck; the returned error is for settings that
// cannot be loaded or a service without a validator.
func (s *SettingsService) Check(ctx context.Context) ([]driving.ProviderCheck, error) {
	if s.validator == nil {
		return nil, errors.New("provider validation is not available")
	}
	settings, err := s.Get()
	if err != nil {
		return nil, err
	}

	return []driving.ProviderCheck{
		{
			Provider: "embedding",
			Model:    settings.Embedding.Model,
			Err:      s.validator.ValidateEmbedding(ctx, settings.Embedding),
		},
		{
			Provider: "chat",
			Model:    settings.Chat.Model,
			Err:      s.validator.ValidateChat(ctx, settings.Chat, settings.Embedding.APIKey),
		},
	}, nil
}
