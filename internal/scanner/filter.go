// SPDX-License-Identifier: AGPL-3.0-or-later

package scanner

import (
	"path/filepath"
	"slices"
	"strings"
)

// FilterOptions controls which directories a Scanner descends into.
type FilterOptions struct {
	// ExcludeDirs are directory names matched against whole path segments:
	// "vendor" excludes "vendor/foo" and "pkg/vendor/bar" but not "vendor_stuff/foo".
	ExcludeDirs []string
}

// DefaultExcludeDirs returns the directories testloop never watches.
func DefaultExcludeDirs() []string {
	return []string{
		"node_modules",
		".git",
		"dist",
		"build",
		"out",
		"vendor",
		"target",
		".idea",
		".vscode",
		"testdata",
		".testloop",
	}
}

// Excluded reports whether any segment of path is one of excludes.
func Excluded(path string, excludes []string) bool {
	if len(excludes) == 0 {
		return false
	}
	for part := range strings.SplitSeq(filepath.ToSlash(path), "/") {
		if slices.Contains(excludes, part) {
			return true
		}
	}
	return false
}

// HasExtension reports whether path ends in one of extensions, ignoring
// case. An empty list matches everything.
func HasExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	return slices.ContainsFunc(extensions, func(want string) bool {
		return strings.EqualFold(ext, want)
	})
}

// Hidden reports whether the base name of path starts with a dot.
func Hidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
