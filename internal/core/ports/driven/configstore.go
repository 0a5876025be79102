package driven

import "github.com/custodia-labs/mahuta/internal/core/domain"

// ConfigStore provides access to application configuration.
// Implementations handle persistence (e.g., TOML files) and type conversion.
type ConfigStore interface {
	// Settings decodes the whole configuration over domain.DefaultSettings.
	Settings() (domain.Settings, error)

	// SaveSettings replaces the configuration file with settings.
	SaveSettings(settings domain.Settings) error

	// Get retrieves a configuration value by dotted key, e.g. "storage.type".
	// Returns the value and a boolean indicating if the key exists.
	Get(key string) (any, bool)

	// GetString retrieves a string configuration value.
	// Returns empty string if key doesn't exist or isn't a string.
	GetString(key string) string

	// Set stores a configuration value.
	// The value is persisted immediately.
	Set(key string, value any) error

	// Load reads configuration from storage.
	Load() error

	// Path returns the configuration file path.
	Path() string
}
