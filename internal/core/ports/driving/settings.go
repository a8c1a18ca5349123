package driving

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves the effective settings: file, then environment, over defaults.
	Get() (*domain.Settings, error)

	// Save validates and persists settings.
	Save(settings *domain.Settings) error

	// Update applies fn to the current settings and saves the result.
	Update(fn func(*domain.Settings)) (*domain.Settings, error)

	// GetDefaults returns the built-in settings.
	GetDefaults() domain.Settings

	// Path returns where settings are persisted.
	Path() string

	// Check probes each configured AI provider with the effective settings.
	Check(ctx context.Context) ([]ProviderCheck, error)
}

// ProviderCheck is the outcome of probing one AI provider.
type ProviderCheck struct {
	// Provider names the role: "embedding" or "chat".
	Provider string

	// Model is the configured model.
	Model string

	// Err is nil when the provider answered.
	Err error
}
