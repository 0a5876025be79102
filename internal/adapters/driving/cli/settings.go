package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

var errSettingsNotConfigured = errors.New("settings service not configured")

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and change settings stored in config.toml.

Keys are dotted paths such as storage.type, index.type or pinning.async.`,
	Annotations: map[string]string{configOnly: "true"},
	RunE:        runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show effective settings",
	Annotations: map[string]string{configOnly: "true"},
	RunE:        runSettingsShow,
}

var settingsGetCmd = &cobra.Command{
	Use:         "get [key]",
	Short:       "Print a stored setting",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{configOnly: "true"},
	RunE:        runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Store a setting",
	Long: `Stores a setting. Values are typed: true, false and numbers are
recognised, and a comma separated value is stored as a list.`,
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{configOnly: "true"},
	RunE:        runSettingsSet,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if settings.Index.Password != "" {
		settings.Index.Password = maskAPIKey(settings.Index.Password)
	}
	for i := range settings.Replicas {
		r := &settings.Replicas[i]
		if r.APIKey != "" {
			r.APIKey = maskAPIKey(r.APIKey)
		}
		if r.SecretKey != "" {
			r.SecretKey = maskAPIKey(r.SecretKey)
		}
	}

	data, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to render settings: %w", err)
	}
	cmd.Printf("# %s\n", settingsService.Path())
	cmd.Print(string(data))
	return nil
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}

	value, ok := settingsService.Value(args[0])
	if !ok {
		return fmt.Errorf("setting %s is not set", args[0])
	}
	cmd.Println(value)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}

	if err := settingsService.Set(args[0], parseSetting(args[1])); err != nil {
		return fmt.Errorf("failed to save setting: %w", err)
	}
	cmd.Printf("Set %s\n", args[0])
	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: settings are not usable yet: %v\n", err)
	}
	return nil
}

// parseSetting types a value for the config file.
func parseSetting(s string) any {
	if strings.Contains(s, ",") {
		items := strings.Split(s, ",")
		list := make([]any, len(items))
		for i, item := range items {
			list[i] = parseSetting(strings.TrimSpace(item))
		}
		return list
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// maskAPIKey hides all but the ends of a secret.
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
