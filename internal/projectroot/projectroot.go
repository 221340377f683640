// SPDX-License-Identifier: AGPL-3.0-or-later

// Package projectroot locates the Go module a command runs in.
package projectroot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when no go.mod exists at or above the start directory.
var ErrNotFound = errors.New("no go.mod found")

// Find walks up from start and returns the first directory containing go.mod.
func Find(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", start, err)
	}
	for {
		info, err := os.Stat(filepath.Join(dir, "go.mod"))
		if err == nil && !info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w above %s", ErrNotFound, start)
		}
		dir = parent
	}
}

// FindOr returns Find(start), or start itself made absolute when no module
// is found.
func FindOr(start string) string {
	if root, err := Find(start); err == nil {
		return root
	}
	if abs, err := filepath.Abs(start); err == nil {
		return abs
	}
	return start
}
