package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProjectRoot(t *testing.T) {
	root, err := GetProjectRoot()
	require.NoError(t, err)
	assert.True(t, FileExists(filepath.Join(root, "go.mod")))
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(filepath.Join(dir, "missing")))
}

func TestFileExists(t *testing.T) {
	assert.False(t, FileExists(filepath.Join(t.TempDir(), "nope.txt")))
}

func TestReadLineManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(manifest,
		[]byte(`[{"file":"line_01_0.png","text":"Hello","label":"0"},{"file":"line_01_180.png","text":"Hello","label":"180"}]`), 0o600))

	fixtures, err := ReadLineManifest(manifest)
	require.NoError(t, err)
	require.Len(t, fixtures, 2)
	assert.Equal(t, filepath.Join(dir, "line_01_0.png"), fixtures[0].File)
	assert.Equal(t, "180", fixtures[1].Label)

	require.NoError(t, os.WriteFile(manifest, []byte("{"), 0o600))
	_, err = ReadLineManifest(manifest)
	require.Error(t, err)

	_, err = ReadLineManifest(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}
