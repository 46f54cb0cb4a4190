package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bricodata/retail-cli/internal/model"
)

type payload struct {
	Version int       `json:"version"`
	Names   []string  `json:"names"`
	Values  []float64 `json:"values"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "thing.json")

	in := payload{Version: 1, Names: []string{"a", "b"}, Values: []float64{1.5, -2.25}}
	require.NoError(t, Save(path, in))

	var out payload
	require.NoError(t, Load(path, &out))
	assert.Equal(t, in, out)
}

func TestLoadMissingArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	var out payload
	err := Load(path, &out)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrNotFound))
	assert.Contains(t, err.Error(), path)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thing.json")
	require.NoError(t, Save(path, payload{Version: 2}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "thing.json", entries[0].Name())
}

func TestSaveOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thing.json")
	require.NoError(t, Save(path, payload{Version: 1}))
	require.NoError(t, Save(path, payload{Version: 2}))

	var out payload
	require.NoError(t, Load(path, &out))
	assert.Equal(t, 2, out.Version)
}
