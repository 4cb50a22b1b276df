package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// findModuleRoot walks up from dir until it finds a directory holding go.mod
func findModuleRoot(dir string) (string, error) {
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found above %s", dir)
		}
		dir = parent
	}
}

// ProjectRoot returns the module root for tests that need to build or
// locate repository files. Tests run with the package directory as the
// working directory, so walking up from there finds the module.
func ProjectRoot(t testing.TB) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("get working directory: %v", err)
	}
	root, err := findModuleRoot(wd)
	if err != nil {
		t.Fatalf("find project root: %v", err)
	}
	return root
}
