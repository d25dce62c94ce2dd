package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-qda/strata-cli/internal/core/domain"
)

func TestLoadPipelineSettingsDefaults(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	settings := LoadPipelineSettings(store)

	defaults := domain.DefaultPipelineSettings()
	assert.Equal(t, defaults.Provider, settings.Provider)
	assert.Equal(t, defaults.Models, settings.Models)
	assert.Equal(t, defaults.Concurrency, settings.Concurrency)
	assert.Equal(t, defaults.FilterBatchSize, settings.FilterBatchSize)
	assert.Equal(t, defaults.OutputDir, settings.OutputDir)
}

func TestLoadPipelineSettingsFromStore(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set(KeyProvider, "ollama"))
	require.NoError(t, store.Set(KeyBaseURL, "http://gpu-box:11434"))
	require.NoError(t, store.Set(KeyOpenModel, "llama3.2"))
	require.NoError(t, store.Set(KeyConcurrency, 4))
	require.NoError(t, store.Set(KeyFilterBatchSize, 30))
	require.NoError(t, store.Set(KeyRequestsPerSecond, 0.5))
	require.NoError(t, store.Set(KeyOutputDir, "analysis"))

	settings := LoadPipelineSettings(store)

	assert.Equal(t, domain.AIProviderOllama, settings.Provider)
	assert.Equal(t, "http://gpu-box:11434", settings.BaseURL)
	assert.Equal(t, "llama3.2", settings.Models.OpenCoding)
	// Unset stage models keep their defaults.
	assert.Equal(t, "deepseek-reasoner", settings.Models.Storyline)
	assert.Equal(t, 4, settings.Concurrency)
	assert.Equal(t, 30, settings.FilterBatchSize)
	assert.Equal(t, 0.5, settings.RequestsPerSecond)
	assert.Equal(t, "analysis", settings.OutputDir)
}

func TestLoadPipelineSettingsEnvOverridesStore(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set(KeyAPIKey, "from-store"))

	t.Setenv(domain.EnvAPIKey, "from-env")

	settings := LoadPipelineSettings(store)
	assert.Equal(t, "from-env", settings.APIKey)
}
