package library

import (
	"os"
	"path/filepath"
)

// Resolve maps a unit identifier to an absolute path. Absolute identifiers
// are returned unchanged without touching the filesystem. Relative ones are
// joined with each base path in order and the first candidate that exists
// is returned.
func Resolve(id string, basePaths []string) (string, bool) {
	if filepath.IsAbs(id) {
		return id, true
	}

	for _, base := range basePaths {
		candidate := filepath.Join(base, id)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}

	return "", false
}
