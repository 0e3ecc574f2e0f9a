package support

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// TestContext holds the state for integration tests. One context lives for
// exactly one scenario.
type TestContext struct {
	// Command execution state
	LastCommand string
	LastOutput  string
	LastStderr  string
	LastError   error

	// Test environment
	TempDir     string
	ModelsDir   string
	originalDir string
	savedEnv    map[string]*string

	// HTTP state
	Server             *TestServer
	LastHTTPStatusCode int
	LastHTTPResponse   []byte
	LastHTTPHeaders    map[string]string
}

// NewTestContext creates a scenario context rooted in a fresh temporary
// directory. The process working directory and HOME are moved there so that
// configuration discovery never sees the developer's files.
func NewTestContext() (*TestContext, error) {
	originalDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "pogocls-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	ctx := &TestContext{
		TempDir:     tempDir,
		ModelsDir:   filepath.Join(tempDir, "models"),
		originalDir: originalDir,
		savedEnv:    map[string]*string{},
	}
	if err := os.MkdirAll(ctx.ModelsDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}
	if err := os.Chdir(tempDir); err != nil {
		return nil, fmt.Errorf("failed to enter temp directory: %w", err)
	}

	ctx.SetEnv("HOME", tempDir)
	ctx.SetEnv("XDG_CONFIG_HOME", tempDir)
	ctx.SetEnv("POGOCLS_MODELS_DIR", ctx.ModelsDir)
	return ctx, nil
}

// SetEnv sets an environment variable for the rest of the scenario. The
// previous value is restored by Cleanup.
func (testCtx *TestContext) SetEnv(name, value string) {
	if _, seen := testCtx.savedEnv[name]; !seen {
		if old, ok := os.LookupEnv(name); ok {
			testCtx.savedEnv[name] = &old
		} else {
			testCtx.savedEnv[name] = nil
		}
	}
	_ = os.Setenv(name, value)
}

// Path resolves name relative to the scenario directory.
func (testCtx *TestContext) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(testCtx.TempDir, name)
}

// Cleanup stops the server, restores the environment and removes all
// temporary files created during the scenario.
func (testCtx *TestContext) Cleanup() error {
	var errs []error

	if testCtx.Server != nil {
		if err := testCtx.Server.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop server: %w", err))
		}
		testCtx.Server = nil
	}

	for name, value := range testCtx.savedEnv {
		if value == nil {
			_ = os.Unsetenv(name)
		} else {
			_ = os.Setenv(name, *value)
		}
	}

	if err := os.Chdir(testCtx.originalDir); err != nil {
		errs = append(errs, fmt.Errorf("failed to restore working directory: %w", err))
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove temp directory: %w", err))
	}
	return errors.Join(errs...)
}
