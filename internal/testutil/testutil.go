// Package testutil provides test helpers shared by minutes packages.
//
//   - files.go: upload fixtures and filesystem assertions
//   - security_data.go: path traversal vectors for media keys and filenames
//   - fakeauthority: an in-process fake of the records server
package testutil
