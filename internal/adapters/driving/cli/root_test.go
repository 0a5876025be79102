package cli

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mahuta/internal/adapters/driven/config/file"
	memindex "github.com/custodia-labs/mahuta/internal/adapters/driven/index/memory"
	mempin "github.com/custodia-labs/mahuta/internal/adapters/driven/pinning/memory"
	"github.com/custodia-labs/mahuta/internal/adapters/driven/storage/datastore"
	"github.com/custodia-labs/mahuta/internal/core/ports/driving"
	"github.com/custodia-labs/mahuta/internal/core/services"
)

var testMahuta *services.Mahuta

// setupTestServices wires in-memory backends and returns a cleanup func.
func setupTestServices() func() {
	dir, err := os.MkdirTemp("", "mahuta-cli-*")
	if err != nil {
		panic(err)
	}
	config, err := file.NewConfigStore(dir)
	if err != nil {
		panic(err)
	}
	index, err := memindex.NewIndex(memindex.Config{IndexNull: true})
	if err != nil {
		panic(err)
	}
	store := datastore.NewStore(nil)
	testMahuta = services.NewMahuta(store, index, services.NewReplicaSet(mempin.NewReplica("backup")))

	SetServices(Services{Mahuta: testMahuta, Settings: services.NewSettingsService(config)})
	return func() {
		SetServices(Services{})
		testMahuta = nil
		_ = index.Close()
		_ = store.Close()
		_ = os.RemoveAll(dir)
	}
}

// execute runs the root command with flags reset and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	target, _, err := rootCmd.Find(args)
	if err == nil {
		resetFlags(target.Flags())
	}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()

	err = rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "mahuta", rootCmd.Use)
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	flag := rootCmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, flag)
	assert.Equal(t, "v", flag.Shorthand)
}

func TestCommands_RequireServices(t *testing.T) {
	SetServices(Services{})
	tests := [][]string{
		{"indexes"},
		{"create-index", "a"},
		{"index", "a", "--text", "x"},
		{"get", "a", "1"},
		{"search"},
		{"count"},
		{"deindex", "a", "1"},
		{"read", "QmA"},
		{"pins"},
		{"watch", "."},
		{"shell"},
	}
	for _, args := range tests {
		t.Run(args[0], func(t *testing.T) {
			_, err := execute(t, args...)
			assert.ErrorIs(t, err, errServiceNotConfigured)
		})
	}
}

func TestSettingsCmd_RequiresConfig(t *testing.T) {
	SetServices(Services{})
	_, err := execute(t, "settings", "get", "storage.type")
	assert.ErrorIs(t, err, errSettingsNotConfigured)
}

func TestLoader_LoadsAndReleases(t *testing.T) {
	SetServices(Services{})
	released := 0
	var gotDir string
	SetLoader(func(dir string) (Services, func() error, error) {
		gotDir = dir
		cleanup := setupTestServices()
		return Services{Mahuta: testMahuta}, func() error {
			released++
			cleanup()
			return nil
		}, nil
	})
	defer SetLoader(nil)

	out, err := execute(t, "--config", "/tmp/mahuta-test", "indexes")
	require.NoError(t, err)
	assert.Contains(t, out, "No indexes.")
	assert.Equal(t, "/tmp/mahuta-test", gotDir)
	assert.Equal(t, 1, released)
	assert.Nil(t, mahutaService)
}

func TestLoader_SkippedForVersion(t *testing.T) {
	SetServices(Services{})
	SetLoader(func(string) (Services, func() error, error) {
		t.Fatal("loader should not run")
		return Services{}, nil, nil
	})
	defer SetLoader(nil)

	_, err := execute(t, "version")
	assert.NoError(t, err)
}

func TestConfigLoader_UsedBySettings(t *testing.T) {
	SetServices(Services{})
	dir := t.TempDir()
	SetLoader(func(string) (Services, func() error, error) {
		t.Fatal("service loader should not run")
		return Services{}, nil, nil
	})
	SetConfigLoader(func(d string) (driving.SettingsService, error) {
		store, err := file.NewConfigStore(d)
		if err != nil {
			return nil, err
		}
		return services.NewSettingsService(store), nil
	})
	defer func() {
		SetLoader(nil)
		SetConfigLoader(nil)
		SetServices(Services{})
	}()

	_, err := execute(t, "--config", dir, "settings", "set", "storage.type", "datastore")
	require.NoError(t, err)

	reopened, err := file.NewConfigStore(dir)
	require.NoError(t, err)
	assert.Equal(t, "datastore", reopened.GetString("storage.type"))
}
