package driven

import "github.com/custodia-labs/lectern/internal/core/domain"

// SettingsStore provides access to application configuration.
// Implementations handle persistence (e.g., TOML files) and type conversion.
type SettingsStore interface {
	// Load reads configuration from storage on top of the defaults.
	// A missing file yields the defaults.
	Load() (*domain.Settings, error)

	// Save persists the given configuration.
	Save(settings *domain.Settings) error

	// Path returns the configuration file path.
	Path() string
}
