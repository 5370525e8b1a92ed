package jobfile

import "path/filepath"

// EnsureAbs resolves path against base unless it is already absolute.
// An empty path resolves to base itself.
func EnsureAbs(path, base string) string {
	if path == "" || !filepath.IsAbs(path) {
		return filepath.Join(base, path)
	}
	return filepath.Clean(path)
}
