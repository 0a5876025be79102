// Package cli provides the mahuta command line interface.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/mahuta/internal/core/ports/driving"
	"github.com/custodia-labs/mahuta/internal/logger"
)

var version = "dev"

var (
	configDir string
	verbose   bool
)

// Services are the components commands operate on.
type Services struct {
	Mahuta    driving.MahutaService
	Settings  driving.SettingsService
	Scheduler driving.Scheduler

	// MetricsAddr is where watch serves health and metrics. Empty disables it.
	MetricsAddr string
}

// Loader builds Services from a configuration directory. The returned
// function releases them.
type Loader func(configDir string) (Services, func() error, error)

// ConfigLoader opens the settings alone.
type ConfigLoader func(configDir string) (driving.SettingsService, error)

// configOnly marks commands that need settings but not the
// storage and index backends, so they work while settings are invalid.
const configOnly = "config-only"

var (
	mahutaService    driving.MahutaService
	settingsService  driving.SettingsService
	pinningScheduler driving.Scheduler
	metricsAddr      string

	loader       Loader
	configLoader ConfigLoader
	release      func() error
	loadedBy     *cobra.Command
)

var rootCmd = &cobra.Command{
	Use:   "mahuta",
	Short: "Index and search metadata over content-addressed storage",
	Long: `Mahuta stores content in a content-addressed store, pins it on the
configured replicas and indexes its metadata for search.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "configuration directory (default $MAHUTA_HOME or ~/.mahuta)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
}

// SetServices injects the services used by commands.
func SetServices(s Services) {
	mahutaService = s.Mahuta
	settingsService = s.Settings
	pinningScheduler = s.Scheduler
	metricsAddr = s.MetricsAddr
}

// SetLoader registers the function used to build services on first use.
func SetLoader(l Loader) {
	loader = l
}

// SetConfigLoader registers the function used by configuration commands.
func SetConfigLoader(l ConfigLoader) {
	configLoader = l
}

// SetVersion sets the reported version.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command. Long running commands stop when ctx is
// cancelled.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if cmd.Annotations[configOnly] != "" {
		if settingsService != nil || configLoader == nil {
			return nil
		}
		settings, err := configLoader(configDir)
		if err != nil {
			return err
		}
		settingsService = settings
		return nil
	}
	if !needsServices(cmd) || mahutaService != nil || loader == nil {
		return nil
	}
	s, closeFn, err := loader(configDir)
	if err != nil {
		return err
	}
	SetServices(s)
	release = closeFn
	loadedBy = cmd
	return nil
}

// teardown releases loaded services once the command that loaded them
// finishes. Commands run from the shell reuse the shell's services.
func teardown(cmd *cobra.Command, _ []string) error {
	if cmd != loadedBy {
		return nil
	}
	return Close()
}

// Close releases services built by the loader.
func Close() error {
	if release == nil {
		return nil
	}
	err := release()
	release = nil
	loadedBy = nil
	SetServices(Services{})
	return err
}

// needsServices is false for commands that only print static output.
func needsServices(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help", "completion":
		return false
	}
	return true
}
