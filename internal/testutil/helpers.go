// Package testutil provides test helpers shared by pluginhost packages.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TempConfigDir creates a temporary directory for host configuration files.
// The directory is removed when the test finishes.
func TempConfigDir(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "pluginhost-test-*")
	require.NoError(t, err, "failed to create temp directory")

	t.Cleanup(func() {
		if err := os.RemoveAll(dir); err != nil {
			t.Logf("warning: failed to clean up temp directory: %v", err)
		}
	})

	return dir
}

// WriteTempFile writes content to a file in the specified directory.
func WriteTempFile(t *testing.T, dir, filename, content string) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	err := os.WriteFile(path, []byte(content), 0o644)
	require.NoError(t, err, "failed to write temp file: %s", filename)

	return path
}
