package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mahuta/internal/core/domain"
)

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
}

func TestNewConfigStore_HomeEnv(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(HomeEnv, tmpDir)

	store, err := NewConfigStore("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
}

func TestDefaultDir_Home(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot determine home directory")
	}
	t.Setenv(HomeEnv, "")

	dir, err := DefaultDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".mahuta"), dir)
}

func TestConfigStore_SetAndGet(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("storage.type", "ipfs"))

	val, ok := store.Get("storage.type")
	assert.True(t, ok)
	assert.Equal(t, "ipfs", val)
	assert.Equal(t, "ipfs", store.GetString("storage.type"))
}

func TestConfigStore_GetString(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	// Non-existent key
	assert.Equal(t, "", store.GetString("nonexistent"))

	// Wrong type
	require.NoError(t, store.Set("storage.pool_size", 42))
	assert.Equal(t, "", store.GetString("storage.pool_size"))
}

func TestConfigStore_SetInvalidKey(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", ".storage", "storage."} {
		assert.ErrorIs(t, store.Set(key, "x"), domain.ErrInvalidArgument, key)
	}
}

func TestConfigStore_PersistsNestedTables(t *testing.T) {
	tmpDir := t.TempDir()
	store1, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store1.Set("storage.type", "ipfs"))
	require.NoError(t, store1.Set("storage.pool_size", 4))
	require.NoError(t, store1.Set("index.index_null_values", false))

	data, err := os.ReadFile(store1.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[storage]")
	assert.Contains(t, string(data), "[index]")

	store2, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "ipfs", store2.GetString("storage.type"))
	val, ok := store2.Get("storage.pool_size")
	assert.True(t, ok)
	assert.Equal(t, int64(4), val)
}

func TestConfigStore_SettingsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	settings, err := store.Settings()
	require.NoError(t, err)

	want := domain.DefaultSettings()
	want.DataDir = tmpDir
	assert.Equal(t, want, settings)
}

func TestConfigStore_SettingsOverrides(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("storage.type", "memory"))
	require.NoError(t, store.Set("storage.read_timeout", "5s"))
	require.NoError(t, store.Set("index.type", "memory"))
	require.NoError(t, store.Set("data_dir", "/var/lib/mahuta"))

	settings, err := store.Settings()
	require.NoError(t, err)
	assert.Equal(t, domain.StorageMemory, settings.Storage.Type)
	assert.Equal(t, domain.Duration(5*time.Second), settings.Storage.ReadTimeout)
	assert.Equal(t, domain.IndexMemory, settings.Index.Type)
	assert.Equal(t, "/var/lib/mahuta", settings.DataDir)
	assert.Equal(t, 10, settings.Storage.PoolSize)
}

func TestConfigStore_SettingsInvalid(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("storage.type", "floppy"))
	_, err = store.Settings()
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	require.NoError(t, store.Set("storage.type", "memory"))
	require.NoError(t, store.Set("storage.pool_size", "many"))
	_, err = store.Settings()
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestConfigStore_SaveSettings(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	settings := domain.DefaultSettings()
	settings.DataDir = tmpDir
	settings.Replicas = []domain.ReplicaSettings{{Type: domain.ReplicaMemory, Name: "backup"}}
	require.NoError(t, store.SaveSettings(settings))

	assert.Equal(t, "pebble", store.GetString("storage.type"))

	reloaded, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	got, err := reloaded.Settings()
	require.NoError(t, err)
	assert.Equal(t, settings, got)
}

func TestConfigStore_FilePermissions(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("storage.type", "memory"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfigStore_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte{}, 0600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	val, ok := store.Get("any_key")
	assert.False(t, ok)
	assert.Nil(t, val)
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			key := "test.key" + string(rune('0'+id))
			_ = store.Set(key, id)
			_ = store.GetString(key)
			_, _ = store.Get(key)
			_, _ = store.Settings()
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

// TestNewConfigStore_MkdirAllError tests error handling when directory creation fails
func TestNewConfigStore_MkdirAllError(t *testing.T) {
	store, err := NewConfigStore("/dev/null/cannot/create/dirs")

	assert.Error(t, err)
	assert.Nil(t, store)
}

// TestNewConfigStore_LoadCorruptedFile tests error handling when loading corrupted TOML
func TestNewConfigStore_LoadCorruptedFile(t *testing.T) {
	tmpDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("this is not valid TOML {{{[["), 0600)
	require.NoError(t, err)

	store, err := NewConfigStore(tmpDir)

	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Nil(t, store)
}

// TestConfigStore_Save_WriteFileError tests error handling when WriteFile fails
func TestConfigStore_Save_WriteFileError(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("test", "value"))

	// Replace the file with a directory to cause write error
	require.NoError(t, os.Remove(store.Path()))
	require.NoError(t, os.Mkdir(store.Path(), 0700))

	assert.Error(t, store.Set("another", "value"))
}

func TestUnflattenMap(t *testing.T) {
	got := unflattenMap(map[string]any{
		"a.b":   1,
		"a.c.d": "x",
		"e":     true,
	})
	assert.Equal(t, map[string]any{
		"a": map[string]any{"b": 1, "c": map[string]any{"d": "x"}},
		"e": true,
	}, got)
}
