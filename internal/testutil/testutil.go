// Package testutil carries the helpers shared by the end-to-end tests:
// repo-root discovery, building the tend binary, and running it with exit-code
// capture.
package testutil

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
)

func RepoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("unable to locate testutil source file")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
}

func BuildTendBinary(t *testing.T, root string) string {
	t.Helper()
	binDir := t.TempDir()
	binName := "tend"
	if runtime.GOOS == "windows" {
		binName = "tend.exe"
	}
	binPath := filepath.Join(binDir, binName)

	// #nosec G204 -- arguments are fixed and used only in test binaries.
	build := exec.Command("go", "build", "-o", binPath, "./cmd/tend")
	build.Dir = root
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("build tend binary: %v\n%s", err, string(out))
	}
	return binPath
}

// RunTend executes the built binary and returns its combined output and exit
// code. A failure that is not a plain non-zero exit fails the test.
func RunTend(t *testing.T, binPath, workDir string, args ...string) (string, int) {
	t.Helper()
	// #nosec G204 -- binary path and arguments are test-owned.
	cmd := exec.Command(binPath, args...)
	cmd.Dir = workDir
	out, err := cmd.CombinedOutput()
	if err == nil {
		return string(out), 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("run tend %v: %v\n%s", args, err, string(out))
	}
	return string(out), exitErr.ExitCode()
}

func WriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("create parent directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func MustReadFile(t *testing.T, path string) []byte {
	t.Helper()
	content, err := os.ReadFile(path) // #nosec G304 -- test helper for controlled paths.
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return content
}
