//go:build !unix

package export

import "os"

// openNoFollow falls back to a plain open where O_NOFOLLOW is unavailable.
// On Windows this may follow reparse points; the transient files it reads
// sit in a per-user temp dir restricted by fileutil.
func openNoFollow(path string) (*os.File, error) {
	return os.Open(path)
}
