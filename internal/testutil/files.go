package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Minimal file bodies whose leading bytes sniff as the named type.
var (
	PDFBody  = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n")
	JPEGBody = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00fake-jpeg")
	PNGBody  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
)

// validateRelativePath checks that name is a relative path that stays within dir.
func validateRelativePath(dir, name string) error {
	if filepath.IsAbs(name) {
		return fmt.Errorf("absolute path not allowed: %s", name)
	}
	// filepath.Join(dir, "C:foo") ignores dir on Windows.
	if filepath.VolumeName(name) != "" {
		return fmt.Errorf("path with volume name not allowed: %s", name)
	}

	rel, err := filepath.Rel(dir, filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("cannot compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes directory: %s", name)
	}
	return nil
}

// WriteFile writes content to dir/name with owner-only permissions and
// returns the full path. name must stay inside dir.
func WriteFile(t testing.TB, dir, name string, content []byte) string {
	t.Helper()

	if err := validateRelativePath(dir, name); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	path := filepath.Join(dir, filepath.Clean(name))
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

// WriteUpload writes a file meant to be attached to an action in a fresh
// temporary directory.
func WriteUpload(t testing.TB, name string, content []byte) string {
	t.Helper()
	return WriteFile(t, t.TempDir(), name, content)
}

// ReadFile reads a file and fails the test on error.
func ReadFile(t testing.TB, path string) []byte {
	t.Helper()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file %s: %v", path, err)
	}
	return content
}

// AssertFileContent fails the test unless the file at path holds want.
func AssertFileContent(t testing.TB, path string, want []byte) {
	t.Helper()

	if got := ReadFile(t, path); !bytes.Equal(got, want) {
		t.Errorf("file content mismatch\nexpected: %q\ngot:      %q", want, got)
	}
}

// MustExist fails the test if the path does not exist or cannot be accessed.
func MustExist(t testing.TB, path string) {
	t.Helper()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}

// MustNotExist fails the test if the path exists or if there's an error
// other than "not exist" (e.g., permission denied).
func MustNotExist(t testing.TB, path string) {
	t.Helper()

	_, err := os.Stat(path)
	if err == nil {
		t.Fatalf("expected %s to not exist", path)
	}
	if !os.IsNotExist(err) {
		t.Fatalf("unexpected error checking %s: %v", path, err)
	}
}

// DirEntries returns the sorted names in dir, failing the test on error.
func DirEntries(t testing.TB, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
