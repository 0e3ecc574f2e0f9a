package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// touch creates empty files below root and returns their full paths.
func touch(t *testing.T, root string, names ...string) []string {
	t.Helper()
	paths := make([]string, len(names))
	for i, n := range names {
		p := filepath.Join(root, filepath.FromSlash(n))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
		paths[i] = p
	}
	return paths
}

func TestDiscoverImageFiles_EmptyArgs(t *testing.T) {
	files, err := DiscoverImageFiles(nil, false, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDiscoverImageFiles_ExplicitFilesKeepOrder(t *testing.T) {
	dir := t.TempDir()
	p := touch(t, dir, "b.png", "a.jpg", "notes.txt")

	files, err := DiscoverImageFiles([]string{p[0], p[1], p[2]}, false, nil, nil)
	require.NoError(t, err)
	// explicit files are kept regardless of extension
	assert.Equal(t, []string{p[0], p[1], p[2]}, files)
}

func TestDiscoverImageFiles_Directory(t *testing.T) {
	dir := t.TempDir()
	p := touch(t, dir, "line2.png", "line1.jpeg", "readme.md", "sub/deep.png")

	files, err := DiscoverImageFiles([]string{dir}, false, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{p[1], p[0]}, files)
}

func TestDiscoverImageFiles_Recursive(t *testing.T) {
	dir := t.TempDir()
	p := touch(t, dir, "root.png", "sub/a.png", "sub/b.txt", ".cache/hidden.png")

	files, err := DiscoverImageFiles([]string{dir}, true, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{p[0], p[1]}, files)
}

func TestDiscoverImageFiles_Patterns(t *testing.T) {
	dir := t.TempDir()
	p := touch(t, dir, "keep_1.png", "keep_2.png", "tmp_1.png", "other.jpg", "sub/keep_3.png")

	tests := []struct {
		name    string
		include []string
		exclude []string
		want    []string
	}{
		{"include", []string{"keep_*"}, nil, []string{p[0], p[1], p[4]}},
		{"exclude", nil, []string{"tmp_*", "*.jpg"}, []string{p[0], p[1], p[4]}},
		{"exclude wins", []string{"*.png"}, []string{"keep_2.png"}, []string{p[0], p[4], p[2]}},
		{"relative path", []string{"sub/*"}, nil, []string{p[4]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := DiscoverImageFiles([]string{dir}, true, tt.include, tt.exclude)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, files)
		})
	}
}

func TestDiscoverImageFiles_ExplicitFileFiltered(t *testing.T) {
	dir := t.TempDir()
	p := touch(t, dir, "tmp_line.png")

	files, err := DiscoverImageFiles(p, false, nil, []string{"tmp_*"})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDiscoverImageFiles_Deduplicates(t *testing.T) {
	dir := t.TempDir()
	p := touch(t, dir, "a.png")

	files, err := DiscoverImageFiles([]string{p[0], dir, dir + string(filepath.Separator)}, false, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{p[0]}, files)
}

func TestDiscoverImageFiles_Errors(t *testing.T) {
	_, err := DiscoverImageFiles([]string{"/does/not/exist"}, false, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot access")

	_, err = DiscoverImageFiles([]string{t.TempDir()}, false, []string{"[bad"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pattern")
}

func TestFilterKeep(t *testing.T) {
	f, err := newFilter(nil, nil)
	require.NoError(t, err)
	assert.True(t, f.keep("anything.png"))

	f, err = newFilter([]string{"*.png"}, []string{"skip*"})
	require.NoError(t, err)
	assert.True(t, f.keep("a.png"))
	assert.False(t, f.keep("a.jpg"))
	assert.False(t, f.keep("skip.png"))
	assert.True(t, f.keep("x.bin", "a.png"))
	// globs do not cross separators
	assert.False(t, f.keep("dir/a.png"))
}
