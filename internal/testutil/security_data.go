package testutil

// TraversalCase is a single path traversal test vector.
type TraversalCase struct{ Name, Path string }

// MediaKeyTraversalCases returns media paths and URLs that try to leave the
// media root. Every one must be rejected before a request is built.
func MediaKeyTraversalCases() []TraversalCase {
	return []TraversalCase{
		{"escape dot dot", "../escape.pdf"},
		{"escape dot dot nested", "actas/../../escape.pdf"},
		{"escape just dot dot", ".."},
		{"prefixed escape", "/media/../settings.py"},
		{"prefixed nested escape", "/media/actas/2024/../../../etc/passwd"},
		{"url escape", "http://localhost:8000/media/actas/../../secret.pdf"},
		{"encoded escape", "/media/%2e%2e/settings.py"},
		{"empty", ""},
		{"prefix only", "/media/"},
	}
}

// FilenameTraversalCases returns server-supplied names that must not steer a
// saved file outside its directory.
func FilenameTraversalCases() []TraversalCase {
	return []TraversalCase{
		{"escape dot dot", "../escape.pdf"},
		{"escape dot dot nested", "subdir/../../escape.pdf"},
		{"escape just dot dot", ".."},
		{"rooted path", "/etc/passwd"},
		{"backslash path", `..\..\windows\system32\evil.pdf`},
	}
}
