package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
)

func TestPromptStoreServesDefaults(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{
		driven.PromptOpenCoding,
		driven.PromptFiltering,
		driven.PromptAxialCoding,
		driven.PromptSelectiveCoding,
		driven.PromptStoryline,
	} {
		prompt, err := store.Load(name)
		require.NoError(t, err, "prompt %s", name)
		assert.NotEmpty(t, prompt)
		assert.Contains(t, prompt, "JSON")
		assert.Equal(t, defaultVersion, store.Version(name))
	}
}

func TestPromptStoreCreatesEditableFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	// Files appear lazily on first Load.
	_, statErr := os.Stat(filepath.Join(dir, "open_coding.txt"))
	assert.True(t, os.IsNotExist(statErr))

	_, err = store.Load(driven.PromptOpenCoding)
	require.NoError(t, err)

	for _, name := range []string{"open_coding", "filtering", "axial_coding", "selective_coding", "storyline"} {
		_, err := os.Stat(filepath.Join(dir, name+".txt"))
		assert.NoError(t, err, "prompt file %s", name)
	}
	_, err = os.Stat(filepath.Join(dir, "README.md"))
	assert.NoError(t, err)
}

func TestPromptStoreUserOverride(t *testing.T) {
	dir := t.TempDir()
	custom := "My own open coding instructions. Reply with JSON."
	require.NoError(t, os.WriteFile(filepath.Join(dir, "open_coding.txt"), []byte(custom), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptOpenCoding)
	require.NoError(t, err)
	assert.Equal(t, custom, prompt)

	// A customised prompt gets a content-hash version, not "default".
	version := store.Version(driven.PromptOpenCoding)
	assert.NotEqual(t, defaultVersion, version)
	assert.Len(t, version, 8)
}

func TestPromptStoreUnknownName(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("no_such_prompt")
	assert.Error(t, err)
}

func TestPromptStoreReload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	first, err := store.Load(driven.PromptFiltering)
	require.NoError(t, err)

	custom := "Edited filtering instructions. Reply with JSON."
	require.NoError(t, os.WriteFile(filepath.Join(dir, "filtering.txt"), []byte(custom), 0600))

	// Cached until Reload.
	cached, err := store.Load(driven.PromptFiltering)
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	store.Reload()
	fresh, err := store.Load(driven.PromptFiltering)
	require.NoError(t, err)
	assert.Equal(t, custom, fresh)
}
