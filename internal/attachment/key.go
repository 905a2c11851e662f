// Package attachment retrieves protected record attachments, keeps them in
// short-lived local files and hands them to a viewer or the download
// directory.
package attachment

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/wesm/minutes/internal/apperr"
)

// DefaultMediaPrefix is the path under which the authority links media.
const DefaultMediaPrefix = "/media/"

// NormalizeKey reduces a server-relative or absolute attachment link to the
// bare relative key the media endpoint expects. Both
// "https://host/media/actas/a.pdf" and "/media/actas/a.pdf" become
// "actas/a.pdf". Keys that are empty or climb out of the media root are
// rejected.
func NormalizeKey(pathOrURL, mediaPrefix string) (string, error) {
	if mediaPrefix == "" {
		mediaPrefix = DefaultMediaPrefix
	}
	prefix := "/" + strings.Trim(mediaPrefix, "/") + "/"
	if prefix == "//" {
		prefix = "/"
	}

	s := strings.TrimSpace(pathOrURL)
	if s == "" {
		return "", fmt.Errorf("%w: attachment path is empty", apperr.ErrValidation)
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("%w: attachment URL %q: %v", apperr.ErrValidation, s, err)
		}
		s = u.Path
	} else {
		if i := strings.IndexAny(s, "?#"); i >= 0 {
			s = s[:i]
		}
		// Percent-decoded, matching u.Path above.
		dec, err := url.PathUnescape(s)
		if err != nil {
			return "", fmt.Errorf("%w: attachment path %q: %v", apperr.ErrValidation, pathOrURL, err)
		}
		s = dec
	}

	// Links may arrive with or without the leading slash.
	if !strings.HasPrefix(s, "/") && strings.HasPrefix("/"+s, prefix) {
		s = "/" + s
	}
	s = strings.TrimPrefix(s, prefix)
	s = strings.TrimLeft(s, "/")

	if s == "" {
		return "", fmt.Errorf("%w: attachment path %q has no file component", apperr.ErrValidation, pathOrURL)
	}
	for _, seg := range strings.Split(s, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: attachment path %q escapes the media root", apperr.ErrValidation, pathOrURL)
		}
	}
	return path.Clean(s), nil
}

// FileName returns the name a key is saved under: its final segment, or
// document.pdf when the key has none.
func FileName(key string) string {
	base := path.Base(strings.TrimRight(key, "/"))
	if base == "" || base == "." || base == "/" {
		return "document.pdf"
	}
	return base
}
