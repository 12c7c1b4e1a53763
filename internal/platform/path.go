package platform

import (
	"path/filepath"
	"strings"
)

// IsChildPath reports whether path lies strictly below parent after both are
// made absolute and cleaned. parent itself is not a child.
func IsChildPath(parent, path string) bool {
	absParent, err := filepath.Abs(parent)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absParent, absPath)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}
