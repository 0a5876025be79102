package driving

import "github.com/custodia-labs/mahuta/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get returns the effective settings: stored values over the defaults.
	Get() (domain.Settings, error)

	// Save validates and persists settings, replacing the stored file.
	Save(settings domain.Settings) error

	// Value returns a stored value by dotted key, e.g. "storage.type".
	Value(key string) (any, bool)

	// Set stores a single value by dotted key.
	Set(key string, value any) error

	// Validate checks the stored settings decode and are usable.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.Settings

	// Path returns where settings are stored.
	Path() string
}
