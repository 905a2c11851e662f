package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wesm/minutes/internal/fileutil"
)

// maxNameAttempts bounds the name_N.ext search in SaveFile.
const maxNameAttempts = 1000

// SaveFile writes src into dir under name. When the name is taken it tries
// name_2.ext, name_3.ext and so on; an existing file is never overwritten.
// The file is created owner-only. It returns the path written and the
// number of bytes copied. A partially written file is removed on error.
func SaveFile(dir, name string, src io.Reader) (string, int64, error) {
	filename := SanitizeFilename(filepath.Base(name))
	if filename == "" || filename == "." || filename == ".." {
		filename = "download"
	}

	if err := fileutil.SecureMkdirAll(dir, 0700); err != nil {
		return "", 0, fmt.Errorf("create download dir: %w", err)
	}
	if st, err := os.Stat(dir); err != nil {
		return "", 0, fmt.Errorf("stat download dir: %w", err)
	} else if !st.IsDir() {
		return "", 0, fmt.Errorf("download dir %q is not a directory", dir)
	}

	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	for i := 1; i <= maxNameAttempts; i++ {
		candidate := filename
		if i > 1 {
			candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		fullPath := filepath.Join(dir, candidate)

		f, err := fileutil.SecureOpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", 0, fmt.Errorf("create %s: %w", candidate, err)
		}

		n, err := io.Copy(f, src)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(fullPath)
			return "", 0, fmt.Errorf("write %s: %w", candidate, err)
		}
		return fullPath, n, nil
	}
	return "", 0, fmt.Errorf("no free file name for %s in %s", filename, dir)
}

// SaveCopy copies the file at srcPath into dir as SaveFile does. srcPath is
// opened without following a final symlink.
func SaveCopy(dir, name, srcPath string) (string, int64, error) {
	src, err := openNoFollow(srcPath)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()
	return SaveFile(dir, name, src)
}
