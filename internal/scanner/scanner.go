// SPDX-License-Identifier: AGPL-3.0-or-later

package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
)

// Scanner walks a source tree, skipping excluded and hidden directories.
type Scanner struct {
	root string
	opts FilterOptions
}

// New creates a new Scanner for the given root.
func New(root string, opts FilterOptions) *Scanner {
	return &Scanner{
		root: root,
		opts: opts,
	}
}

// Root returns the directory the scanner walks.
func (s *Scanner) Root() string {
	return s.root
}

// Skip reports whether a directory below the root should be ignored.
func (s *Scanner) Skip(dir string) bool {
	rel, err := filepath.Rel(s.root, dir)
	if err != nil || rel == "." {
		return false
	}
	return Hidden(dir) || Excluded(rel, s.opts.ExcludeDirs)
}

// Dirs returns the root and every directory beneath it that is not skipped.
// The walk is not cached: directories come and go between runs.
func (s *Scanner) Dirs(ctx context.Context) ([]string, error) {
	return s.DirsUnder(ctx, s.root)
}

// DirsUnder is Dirs rooted at start, which must live inside the scanner root.
func (s *Scanner) DirsUnder(ctx context.Context, start string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A directory vanishing mid-walk is routine while editors save.
			if path == start {
				return err
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() {
			return nil
		}
		if s.Skip(path) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", start, err)
	}
	return dirs, nil
}
