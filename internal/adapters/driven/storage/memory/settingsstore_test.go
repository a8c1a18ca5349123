package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

func TestSettingsStore_LoadReturnsDefaults(t *testing.T) {
	store := NewSettingsStore()

	settings, err := store.Load()

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), *settings)
	assert.Empty(t, store.Path())
}

func TestSettingsStore_SaveValidates(t *testing.T) {
	store := NewSettingsStore()
	settings := domain.DefaultSettings()
	settings.Embedding.Dimension = 0

	err := store.Save(&settings)

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSettingsStore_SaveReplaces(t *testing.T) {
	store := NewSettingsStore()
	settings := domain.DefaultSettings()
	settings.Chat.TopK = 9

	require.NoError(t, store.Save(&settings))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Chat.TopK)
}
