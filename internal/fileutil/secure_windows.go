//go:build windows

package fileutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// isOwnerOnly returns true if the permission mode grants nothing to group or other.
func isOwnerOnly(perm os.FileMode) bool {
	return perm&0077 == 0
}

// restrictToCurrentUser grants GENERIC_ALL on path to the current user only
// and blocks inherited ACEs. Directories get CONTAINER_INHERIT_ACE and
// OBJECT_INHERIT_ACE so the session database and temp files created inside
// inherit the restriction.
func restrictToCurrentUser(path string) error {
	token := windows.GetCurrentProcessToken()

	user, err := token.GetTokenUser()
	if err != nil {
		return fmt.Errorf("fileutil: get current user SID for %s: %w", path, err)
	}

	trustee := windows.TrusteeValueFromSID(user.User.Sid)

	// For directories, enable inheritance so children get the same restriction.
	// For files, NO_INHERITANCE is correct (files don't have children).
	var inherit uint32 = windows.NO_INHERITANCE
	info, statErr := os.Stat(path)
	if statErr == nil && info.IsDir() {
		inherit = windows.CONTAINER_INHERIT_ACE | windows.OBJECT_INHERIT_ACE
	}

	ea := []windows.EXPLICIT_ACCESS{
		{
			AccessPermissions: windows.GENERIC_ALL,
			AccessMode:        windows.SET_ACCESS,
			Inheritance:       inherit,
			Trustee: windows.TRUSTEE{
				TrusteeForm:  windows.TRUSTEE_IS_SID,
				TrusteeType:  windows.TRUSTEE_IS_USER,
				TrusteeValue: trustee,
			},
		},
	}

	acl, err := windows.ACLFromEntries(ea, nil)
	if err != nil {
		return fmt.Errorf("fileutil: build ACL for %s: %w", path, err)
	}

	secInfo := windows.DACL_SECURITY_INFORMATION | windows.PROTECTED_DACL_SECURITY_INFORMATION
	err = windows.SetNamedSecurityInfo(
		path,
		windows.SE_FILE_OBJECT,
		windows.SECURITY_INFORMATION(secInfo),
		nil, // owner SID (unchanged)
		nil, // group SID (unchanged)
		acl, // DACL
		nil, // SACL (unchanged)
	)
	if err != nil {
		return fmt.Errorf("fileutil: set DACL on %s: %w", path, err)
	}
	return nil
}

// SecureMkdirAll creates a directory path and all parents that do not yet exist.
// For owner-only modes, a DACL restricting access to the current user is applied
// to the leaf directory and every intermediate directory that was created.
func SecureMkdirAll(path string, perm os.FileMode) error {
	// Determine which directories already exist before creating.
	var toSecure []string
	if isOwnerOnly(perm) {
		p := filepath.Clean(path)
		for p != "" && p != "." && p != string(filepath.Separator) {
			if _, err := os.Stat(p); err == nil {
				break
			}
			toSecure = append(toSecure, p)
			parent := filepath.Dir(p)
			if parent == p {
				break
			}
			p = parent
		}
	}

	if err := os.MkdirAll(path, perm); err != nil {
		return err
	}

	// Secure every directory this call created.
	for _, dir := range toSecure {
		if err := restrictToCurrentUser(dir); err != nil {
			slog.Warn("fileutil: best-effort DACL failed", "path", dir, "err", err)
		}
	}
	return nil
}

// SecureChmod changes the mode of the named file.
// For owner-only modes, a DACL restricting access to the current user is applied.
// DACL failures are logged as warnings but do not fail the chmod.
func SecureChmod(path string, perm os.FileMode) error {
	if err := os.Chmod(path, perm); err != nil {
		return err
	}
	if isOwnerOnly(perm) {
		if err := restrictToCurrentUser(path); err != nil {
			slog.Warn("fileutil: best-effort DACL failed", "path", path, "err", err)
		}
	}
	return nil
}

// SecureOpenFile opens the named file with specified flag and permissions.
// For owner-only modes when O_CREATE is set, a DACL restricting access to
// the current user is applied whether or not the file already existed.
// DACL failures are logged as warnings but do not fail the open.
func SecureOpenFile(path string, flag int, perm os.FileMode) (*os.File, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	if isOwnerOnly(perm) && (flag&os.O_CREATE != 0) {
		if err := restrictToCurrentUser(path); err != nil {
			slog.Warn("fileutil: best-effort DACL failed", "path", path, "err", err)
		}
	}
	return f, nil
}

// SecureCreateTemp creates a new temporary file and restricts it to the
// current user. Fetched attachments live in these files until released.
func SecureCreateTemp(dir, pattern string) (*os.File, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	if err := restrictToCurrentUser(f.Name()); err != nil {
		slog.Warn("fileutil: best-effort DACL failed", "path", f.Name(), "err", err)
	}
	return f, nil
}
