package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// newTestStore creates a store that reads from env instead of the process environment.
func newTestStore(t *testing.T, env map[string]string) *SettingsStore {
	t.Helper()
	store, err := NewSettingsStore(t.TempDir())
	require.NoError(t, err)
	store.lookup = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return store
}

func writeConfig(t *testing.T, store *SettingsStore, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(store.Path(), []byte(content), 0600))
}

func TestNewSettingsStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewSettingsStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "lectern.toml"), store.Path())
}

func TestSettingsStore_Load_MissingFileYieldsDefaults(t *testing.T) {
	store := newTestStore(t, nil)

	settings, err := store.Load()

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), *settings)
}

func TestSettingsStore_Load_OverlaysFile(t *testing.T) {
	store := newTestStore(t, nil)
	writeConfig(t, store, `
[embedding]
batch_size = 50
concurrency = 2
timeout = "45s"

[index]
provider = "redis"
environment = "production"

[chat]
top_k = 8
heading_boost = 0.1

[chunking]
processors = ["chunker"]
`)

	settings, err := store.Load()

	require.NoError(t, err)
	assert.Equal(t, 50, settings.Embedding.BatchSize)
	assert.Equal(t, 2, settings.Embedding.Concurrency)
	assert.Equal(t, 45*time.Second, settings.Embedding.Timeout)
	assert.Equal(t, domain.VectorProviderRedis, settings.Index.Provider)
	assert.Equal(t, "lectern-production", settings.Index.CollectionName())
	assert.Equal(t, 8, settings.Chat.TopK)
	assert.InDelta(t, 0.1, settings.Chat.HeadingBoost, 1e-9)
	assert.Equal(t, []string{"chunker"}, settings.Chunking.Processors)

	// Untouched keys keep their defaults
	assert.Equal(t, "text-embedding-3-small", settings.Embedding.Model)
	assert.Equal(t, 1000, settings.Chunking.ChunkSize)
}

func TestSettingsStore_Load_EnvOverrides(t *testing.T) {
	store := newTestStore(t, map[string]string{
		"OPENAI_API_KEY":              "sk-test",
		"REDIS_ADDR":                  "redis:6380",
		"LECTERN_INDEX_PROVIDER":      "redis",
		"LECTERN_EMBEDDING_DIMENSION": "3072",
		"LECTERN_SERVER_ADDR":         ":9090",
	})
	writeConfig(t, store, `
[index]
redis_addr = "file:6379"
`)

	settings, err := store.Load()

	require.NoError(t, err)
	assert.Equal(t, "sk-test", settings.Embedding.APIKey)
	assert.Equal(t, "sk-test", settings.Chat.APIKey)
	assert.Equal(t, "redis:6380", settings.Index.RedisAddr)
	assert.Equal(t, domain.VectorProviderRedis, settings.Index.Provider)
	assert.Equal(t, 3072, settings.Embedding.Dimension)
	assert.Equal(t, ":9090", settings.Server.Addr)
}

func TestSettingsStore_Load_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{"malformed toml", "[embedding\nbatch_size = 1", nil},
		{"bad duration", "[chat]\ntimeout = \"soon\"", nil},
		{"invalid value", "[embedding]\nbatch_size = 0", nil},
		{"unknown provider", "[index]\nprovider = \"pinecone\"", nil},
		{"concurrency above burst", "[embedding]\nconcurrency = 9\nburst = 2", nil},
		{"chunker not first", "[chunking]\nprocessors = [\"annotator\"]", nil},
		{"bad env number", "", map[string]string{"LECTERN_CHAT_TOP_K": "many"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t, tt.env)
			writeConfig(t, store, tt.content)

			_, err := store.Load()

			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestSettingsStore_SaveAndLoad(t *testing.T) {
	store := newTestStore(t, nil)
	settings := domain.DefaultSettings()
	settings.Chat.TopK = 3
	settings.Chat.Timeout = 90 * time.Second
	settings.Index.Environment = "staging"
	settings.Embedding.APIKey = "sk-secret"

	require.NoError(t, store.Save(&settings))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")
	assert.Contains(t, string(data), "1m30s")

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Chat.TopK)
	assert.Equal(t, 90*time.Second, loaded.Chat.Timeout)
	assert.Equal(t, "staging", loaded.Index.Environment)
	assert.Empty(t, loaded.Embedding.APIKey)
}

func TestSettingsStore_Save_RejectsInvalid(t *testing.T) {
	store := newTestStore(t, nil)
	settings := domain.DefaultSettings()
	settings.Chat.TopK = 0

	err := store.Save(&settings)

	assert.ErrorIs(t, err, domain.ErrValidation)
	_, statErr := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LECTERN_TEST_DOTENV=loaded\n"), 0600))
	t.Setenv("LECTERN_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("LECTERN_TEST_DOTENV"))

	require.NoError(t, LoadEnvFile(path))

	assert.Equal(t, "loaded", os.Getenv("LECTERN_TEST_DOTENV"))
}

func TestLoadEnvFile_Missing(t *testing.T) {
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
}
