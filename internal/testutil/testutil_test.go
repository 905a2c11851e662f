package testutil

import (
	"net/http"
	"path/filepath"
	"testing"
)

func TestWriteAndReadFile(t *testing.T) {
	dir := t.TempDir()
	path := WriteFile(t, dir, "test.txt", []byte("hello world"))
	AssertFileContent(t, path, []byte("hello world"))
}

func TestWriteFileSubdir(t *testing.T) {
	dir := t.TempDir()
	WriteFile(t, dir, "subdir/nested/test.txt", []byte("nested"))
	MustExist(t, filepath.Join(dir, "subdir", "nested", "test.txt"))
	MustNotExist(t, filepath.Join(dir, "does-not-exist.txt"))
}

func TestValidateRelativePath(t *testing.T) {
	dir := t.TempDir()
	absPath, err := filepath.Abs("/some/path.txt")
	if err != nil {
		t.Fatalf("failed to get absolute path: %v", err)
	}

	cases := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"absolute path", absPath, true},
		{"escape dot dot", "../escape.txt", true},
		{"escape dot dot nested", "subdir/../../escape.txt", true},
		{"escape just dot dot", "..", true},
		{"valid with dots", "file-with-dots.test.txt", false},
		{"valid current dir", "./current.txt", false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRelativePath(dir, tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateRelativePath() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBodiesSniffAsTheirType(t *testing.T) {
	cases := map[string][]byte{
		"application/pdf": PDFBody,
		"image/jpeg":      JPEGBody,
		"image/png":       PNGBody,
	}
	for want, body := range cases {
		if got := http.DetectContentType(body); got != want {
			t.Errorf("DetectContentType = %q, want %q", got, want)
		}
	}
}
