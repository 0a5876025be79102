package services

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
	"github.com/custodia-labs/mahuta/internal/core/ports/driving"
	"github.com/custodia-labs/mahuta/internal/logger"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// settingsSections are the top-level keys the configuration understands.
var settingsSections = map[string]bool{
	"data_dir": true,
	"storage":  true,
	"index":    true,
	"replicas": true,
	"pinning":  true,
	"cache":    true,
	"metrics":  true,
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get returns the effective settings.
func (s *SettingsService) Get() (domain.Settings, error) {
	return s.configStore.Settings()
}

// Save validates settings, then persists them.
func (s *SettingsService) Save(settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	return s.configStore.SaveSettings(settings)
}

// Value returns a stored value.
func (s *SettingsService) Value(key string) (any, bool) {
	return s.configStore.Get(key)
}

// Set stores a value under a known section. The result may not validate
// yet: settings are often changed one key at a time.
func (s *SettingsService) Set(key string, value any) error {
	section, _, _ := strings.Cut(key, ".")
	if !settingsSections[section] {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidArgument, key)
	}
	if err := s.configStore.Set(key, value); err != nil {
		return err
	}
	logger.Debug("Setting %s updated in %s", key, s.configStore.Path())
	return nil
}

// Validate checks the stored settings.
func (s *SettingsService) Validate() error {
	_, err := s.configStore.Settings()
	return err
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

// Path returns the configuration file path.
func (s *SettingsService) Path() string {
	return s.configStore.Path()
}
