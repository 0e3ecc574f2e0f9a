package testutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/MeKo-Tech/pogocls/internal/models"
)

// LinesFixtureDir is where cmd/generate-test-data writes text-line fixtures,
// relative to the project root.
const LinesFixtureDir = "testdata/lines"

// LineFixture is one entry of the fixture manifest.
type LineFixture struct {
	File  string `json:"file"`
	Text  string `json:"text"`
	Label string `json:"label"`
}

// GetProjectRoot locates the directory holding go.mod, starting from this
// source file so the result does not depend on the working directory.
func GetProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("failed to get caller information")
	}

	for dir := filepath.Dir(filename); ; {
		if FileExists(filepath.Join(dir, "go.mod")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no go.mod above %s", filepath.Dir(filename))
		}
		dir = parent
	}
}

// EnsureDir creates path and its parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// FileExists reports whether anything exists at path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DirExists reports whether path is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ClassifierModelPath returns the default classifier model path, skipping the
// test when the model has not been downloaded.
func ClassifierModelPath(t testing.TB) string {
	t.Helper()

	path := models.GetClassifierModelPath("", "")
	if !FileExists(path) {
		t.Skipf("classifier model not available at %s", path)
	}
	return path
}

// ReadLineManifest parses a manifest.json written by cmd/generate-test-data.
// File names are resolved against the manifest's directory.
func ReadLineManifest(path string) ([]LineFixture, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: test fixture path
	if err != nil {
		return nil, err
	}
	var fixtures []LineFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range fixtures {
		fixtures[i].File = filepath.Join(dir, fixtures[i].File)
	}
	return fixtures, nil
}

// LineFixtures loads the generated fixtures, skipping the test when they have
// not been generated.
func LineFixtures(t testing.TB) []LineFixture {
	t.Helper()

	root, err := GetProjectRoot()
	if err != nil {
		t.Fatalf("project root: %v", err)
	}
	manifest := filepath.Join(root, LinesFixtureDir, "manifest.json")
	if !FileExists(manifest) {
		t.Skipf("line fixtures not generated at %s (run cmd/generate-test-data)", manifest)
	}
	fixtures, err := ReadLineManifest(manifest)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	return fixtures
}
