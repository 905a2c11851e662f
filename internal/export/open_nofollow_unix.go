//go:build unix

package export

import (
	"os"

	"golang.org/x/sys/unix"
)

// openNoFollow opens a file read-only without following symlinks.
// A transient attachment file swapped for a symlink is refused rather than
// copied into the download directory.
func openNoFollow(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDONLY|unix.O_NOFOLLOW, 0)
}
