// SPDX-License-Identifier: AGPL-3.0-or-later

// Package golden compares test output against files under testdata/.
// Run tests with -update to rewrite the files from the current output.
package golden

import (
	"flag"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Update rewrites golden files instead of comparing against them.
var Update = flag.Bool("update", false, "update golden files")

// TestdataDir returns the testdata directory next to the calling test file.
func TestdataDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(1)
	require.True(t, ok, "cannot locate calling test file")
	return filepath.Join(filepath.Dir(file), "testdata")
}

// Path returns dir/<name>.golden. Names are plain file stems.
func Path(t *testing.T, dir, name string) string {
	t.Helper()
	require.False(t, name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`),
		"invalid golden name %q", name)
	return filepath.Join(dir, name+".golden")
}

// Assert compares got with the named golden file, rewriting it under -update.
// CRLF line endings are ignored on both sides.
func Assert(t *testing.T, dir, name, got string) {
	t.Helper()
	path := Path(t, dir, name)

	if *Update {
		require.NoError(t, os.MkdirAll(dir, 0o750))
		require.NoError(t, os.WriteFile(path, []byte(got), 0o600))
		return
	}

	want, err := os.ReadFile(path) //nolint:gosec // path is built from testdata
	if os.IsNotExist(err) {
		t.Fatalf("%s is missing; run the test with -update", path)
	}
	require.NoError(t, err)
	assert.Equal(t, lf(string(want)), lf(got), "output differs from %s", path)
}

func lf(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
