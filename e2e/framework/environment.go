//go:build e2e

// Package framework provides the E2E test infrastructure for pluginhost.
package framework

import (
	"bytes"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
)

// Environment is an isolated directory holding host configuration files.
type Environment struct {
	t          *testing.T
	rootDir    string
	configDir  string
	binaryPath string
}

var (
	buildOnce  sync.Once
	binaryPath string
	buildErr   error
)

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// buildBinary builds the pluginhost binary once per test run. Setting
// PLUGINHOST_BINARY skips the build.
func buildBinary(t *testing.T) (string, error) {
	buildOnce.Do(func() {
		if path := os.Getenv("PLUGINHOST_BINARY"); path != "" {
			binaryPath = path
			return
		}

		root, err := findProjectRoot()
		if err != nil {
			buildErr = err
			return
		}

		binaryPath = filepath.Join(os.TempDir(), "pluginhost-e2e-test")
		cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/pluginhost")
		cmd.Dir = root

		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			buildErr = err
			t.Logf("Build stderr: %s", stderr.String())
		}
	})

	return binaryPath, buildErr
}

// NewEnvironment creates a new isolated test environment.
func NewEnvironment(t *testing.T) *Environment {
	t.Helper()

	binary, err := buildBinary(t)
	if err != nil {
		t.Fatalf("Failed to build binary: %v", err)
	}

	rootDir := t.TempDir()
	configDir := filepath.Join(rootDir, "config")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("Failed to create config directory: %v", err)
	}

	return &Environment{
		t:          t,
		rootDir:    rootDir,
		configDir:  configDir,
		binaryPath: binary,
	}
}

// ConfigDir returns the working directory commands run in.
func (e *Environment) ConfigDir() string {
	return e.configDir
}

// RootDir returns the path to the test root directory.
func (e *Environment) RootDir() string {
	return e.rootDir
}

// BinaryPath returns the path to the built binary.
func (e *Environment) BinaryPath() string {
	return e.binaryPath
}

// WriteConfig writes name into the config directory and returns its path.
func (e *Environment) WriteConfig(name, content string) string {
	e.t.Helper()

	path := filepath.Join(e.configDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		e.t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

// FreeAddr returns a loopback address that was free a moment ago.
func (e *Environment) FreeAddr() string {
	e.t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		e.t.Fatalf("Failed to reserve address: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}
