package attachment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync/atomic"
	"time"
)

// ErrAlreadyReleased is returned by a second Release of the same handle.
var ErrAlreadyReleased = errors.New("attachment handle already released")

// Handle owns one downloaded attachment on disk. The file is removed by
// Release, which succeeds exactly once.
type Handle struct {
	path        string
	contentType string
	size        int64
	createdAt   time.Time
	released    atomic.Bool
}

func newHandle(path, contentType string, size int64) *Handle {
	return &Handle{path: path, contentType: contentType, size: size, createdAt: time.Now()}
}

// Path returns the location of the local copy.
func (h *Handle) Path() string { return h.path }

// ContentType returns the type the authority reported.
func (h *Handle) ContentType() string { return h.contentType }

// Size returns the number of bytes fetched.
func (h *Handle) Size() int64 { return h.size }

// CreatedAt returns when the local copy was completed.
func (h *Handle) CreatedAt() time.Time { return h.createdAt }

// Released reports whether Release has run.
func (h *Handle) Released() bool { return h.released.Load() }

// Open opens the local copy for reading.
func (h *Handle) Open() (*os.File, error) {
	if h.released.Load() {
		return nil, ErrAlreadyReleased
	}
	return os.Open(h.path)
}

// Release deletes the local copy.
func (h *Handle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return ErrAlreadyReleased
	}
	if err := os.Remove(h.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", h.path, err)
	}
	return nil
}
