// Package upload validates files before they are attached to an action.
// Validation is local and never touches the network.
package upload

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/wesm/minutes/internal/apperr"
)

// MaxSize is the largest accepted upload.
const MaxSize = 5 << 20

// sniffLen is how many leading bytes content detection looks at.
const sniffLen = 512

var acceptedTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/jpg":       true,
}

var acceptedExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
}

// Rule identifies which check rejected a file.
type Rule string

const (
	RuleType      Rule = "type"
	RuleExtension Rule = "extension"
	RuleSize      Rule = "size"
	RuleEmpty     Rule = "empty"
)

// File describes a locally selected file.
type File struct {
	Name        string
	ContentType string
	Size        int64

	// Path locates the content on disk; empty for files described only by
	// metadata.
	Path string
}

// Open returns the file content.
func (f File) Open() (io.ReadCloser, error) {
	if f.Path == "" {
		return nil, fmt.Errorf("open %s: no content path", f.Name)
	}
	return os.Open(f.Path)
}

// ValidationError reports the first rule a file violated.
type ValidationError struct {
	Rule    Rule
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid file (%s): %s", e.Rule, e.Message)
}

// Is makes every ValidationError match apperr.ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == apperr.ErrValidation
}

// ValidationMessage returns the message meant for the user.
func (e *ValidationError) ValidationMessage() string {
	return e.Message
}

// Validate checks, in order, the declared content type, the filename
// extension, the size limit and non-emptiness, stopping at the first
// failure. It returns nil when the file is acceptable.
func Validate(f File) *ValidationError {
	if !acceptedTypes[normalizeType(f.ContentType)] {
		return &ValidationError{
			Rule:    RuleType,
			Message: "invalid file type; only PDF, JPG or JPEG files are allowed",
		}
	}

	if !acceptedExtensions[strings.ToLower(filepath.Ext(f.Name))] {
		return &ValidationError{
			Rule:    RuleExtension,
			Message: "invalid file extension; only .pdf, .jpg or .jpeg files are allowed",
		}
	}

	if f.Size > MaxSize {
		return &ValidationError{
			Rule:    RuleSize,
			Message: fmt.Sprintf("file is too large (%.2f MB); the maximum allowed size is 5 MB", float64(f.Size)/(1024*1024)),
		}
	}

	if f.Size <= 0 {
		return &ValidationError{
			Rule:    RuleEmpty,
			Message: "file is empty; please select a valid file",
		}
	}

	return nil
}

func normalizeType(ct string) string {
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// Open describes the file at path. The content type is detected from the
// leading bytes; an empty file falls back to the type registered for its
// extension.
func Open(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("open upload: %w", err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return File{}, fmt.Errorf("stat upload: %w", err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%w: %s is a directory", apperr.ErrValidation, path)
	}

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(fh, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return File{}, fmt.Errorf("read upload: %w", err)
	}

	var contentType string
	if n > 0 {
		contentType = http.DetectContentType(buf[:n])
	} else {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	}

	return File{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
		Path:        path,
	}, nil
}
