//go:build !windows

// Package fileutil provides cross-platform helpers for files that hold
// session credentials or fetched attachments.
// On Unix, Secure* helpers rely on mode bits only and do not protect
// against symlink traversal or TOCTOU races.
// On Windows, owner-only modes (perm & 0077 == 0) additionally set
// a DACL restricting access to the current user.
package fileutil

import "os"

// SecureMkdirAll creates a directory path and all parents that do not yet exist.
func SecureMkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// SecureChmod changes the mode of the named file.
func SecureChmod(path string, perm os.FileMode) error {
	return os.Chmod(path, perm)
}

// SecureOpenFile opens the named file with specified flag and permissions.
func SecureOpenFile(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}

// SecureCreateTemp creates a new temporary file readable only by the owner.
// os.CreateTemp already uses 0600 on Unix.
func SecureCreateTemp(dir, pattern string) (*os.File, error) {
	return os.CreateTemp(dir, pattern)
}
