package projectroot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFind_WalksUp(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/m\n"), 0o644))
	deep := filepath.Join(root, "internal", "pkg", "sub")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	got, err := Find(deep)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	got, err = Find(root)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestFind_IgnoresGoModDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/m\n"), 0o644))
	inner := filepath.Join(root, "weird")
	require.NoError(t, os.MkdirAll(filepath.Join(inner, "go.mod"), 0o755))

	got, err := Find(inner)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestFind_ThisRepository(t *testing.T) {
	root, err := Find(".")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "go.mod"))
	assert.DirExists(t, filepath.Join(root, "internal", "projectroot"))
}

func TestFindOr_FallsBack(t *testing.T) {
	dir := t.TempDir()
	if _, err := Find(dir); err == nil {
		t.Skip("temp dir lives inside a Go module")
	}
	assert.Equal(t, dir, FindOr(dir))
}
