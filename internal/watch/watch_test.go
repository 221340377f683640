package watch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartekus/testloop/internal/change"
	"github.com/bartekus/testloop/internal/logging"
	"github.com/bartekus/testloop/internal/scanner"
)

func newWatcher(t *testing.T, root string, opts Options) *Watcher {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.ExcludeDirs == nil {
		opts.ExcludeDirs = scanner.DefaultExcludeDirs()
	}
	w, err := New(root, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func waitFor(t *testing.T, w *Watcher, path string, kind change.Kind) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events():
			require.True(t, ok, "event stream closed")
			if ev.Path == path && ev.Kind == kind {
				return
			}
		case <-timeout:
			t.Fatalf("no %s event for %s", kind, path)
		}
	}
}

func TestNew_RejectsMissingAndFiles(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.go")
	require.NoError(t, os.WriteFile(file, []byte("package f\n"), 0o644))

	_, err := New(filepath.Join(dir, "missing"), Options{})
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = New(file, Options{})
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestWatcher_ReportsWrites(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(file, []byte("package a\n"), 0o644))

	w := newWatcher(t, dir, Options{})
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(file, []byte("package a\n\n// edited\n"), 0o644))
	waitFor(t, w, file, change.KindModified)
}

func TestWatcher_SkipsExcludedDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg", "sub"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "x"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))

	w := newWatcher(t, dir, Options{})
	require.NoError(t, w.Start(context.Background()))

	watching := w.Watching()
	assert.Contains(t, watching, filepath.Join(dir, "pkg", "sub"))
	assert.NotContains(t, watching, filepath.Join(dir, "node_modules"))
	assert.NotContains(t, watching, filepath.Join(dir, "node_modules", "x"))
	assert.NotContains(t, watching, filepath.Join(dir, ".git"))
}

func TestWatcher_AddsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	w := newWatcher(t, dir, Options{})
	require.NoError(t, w.Start(context.Background()))

	sub := filepath.Join(dir, "newpkg")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool {
		return slices.Contains(w.Watching(), sub)
	}, 5*time.Second, 10*time.Millisecond)

	file := filepath.Join(sub, "b.go")
	require.NoError(t, os.WriteFile(file, []byte("package newpkg\n"), 0o644))
	waitFor(t, w, file, change.KindModified)
}

func TestWatcher_DropsWhenFull(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.go"), filepath.Join(dir, "b.go")

	w := newWatcher(t, dir, Options{Buffer: 1})
	require.NoError(t, w.Start(context.Background()))

	require.Eventually(t, func() bool {
		_ = os.WriteFile(a, []byte("a"), 0o644)
		_ = os.WriteFile(b, []byte("b"), 0o644)
		return w.Dropped() > 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_StopClosesStream(t *testing.T) {
	w := newWatcher(t, t.TempDir(), Options{})
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("event stream not closed")
	}
}

func TestWatcher_StopJoinsLoop(t *testing.T) {
	w := newWatcher(t, t.TempDir(), Options{})
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, w.Stop())

	// Both streams are closed by the loop on its way out, so they must
	// already be closed when Stop returns.
	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	default:
		t.Fatal("Stop returned before the event loop exited")
	}
	select {
	case _, ok := <-w.Errors():
		assert.False(t, ok)
	default:
		t.Fatal("Stop returned before the event loop exited")
	}
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	w := newWatcher(t, t.TempDir(), Options{})
	assert.NoError(t, w.Stop())
}

func TestWatcher_StartTwice(t *testing.T) {
	w := newWatcher(t, t.TempDir(), Options{})
	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		op   fsnotify.Op
		want change.Kind
	}{
		{fsnotify.Write, change.KindModified},
		{fsnotify.Create, change.KindCreated},
		{fsnotify.Create | fsnotify.Write, change.KindModified},
		{fsnotify.Remove, change.KindDeleted},
		{fsnotify.Rename, change.KindDeleted},
		{fsnotify.Chmod, change.KindOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, kindOf(tt.op), tt.op.String())
	}
}
