package gotest

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartekus/testloop/internal/logging"
	"github.com/bartekus/testloop/internal/progress"
	"github.com/bartekus/testloop/internal/suite"
)

func writeModule(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestEngine_RealToolchain(t *testing.T) {
	if testing.Short() {
		t.Skip("compiles a module")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go not on PATH")
	}

	dir := writeModule(t, map[string]string{
		"go.mod":  "module example.com/loop\n\ngo 1.21\n",
		"calc.go": "package calc\n\nfunc Add(a, b int) int { return a + b }\n",
		"calc_test.go": `package calc

import "testing"

func TestAdd(t *testing.T) {
	if Add(1, 2) != 3 {
		t.Fatal("broken")
	}
}

func TestBroken(t *testing.T) {
	t.Errorf("Add(2, 2) = %d, want 5", Add(2, 2))
}

func TestLater(t *testing.T) {
	t.Skip("not yet")
}
`,
	})

	e, err := New(Options{Dir: dir, Env: []string{"GOWORK=off", "GOFLAGS="}, Logger: logging.Discard()})
	require.NoError(t, err)
	defer func() { assert.NoError(t, e.Close()) }()

	ctx := context.Background()
	cases, err := e.Discover(ctx, suite.Query{Packages: []string{"./..."}})
	require.NoError(t, err)
	require.Len(t, cases, 3)
	assert.Equal(t, suite.TestID("example.com/loop.TestAdd"), cases[0].ID)

	result := suite.NewResult()
	state := suite.NewExecutor(e, progress.Discard, suite.Options{}).Run(ctx, "Testing", cases, result)

	assert.Equal(t, 3, state.Completed)
	assert.Equal(t, []suite.TestID{"example.com/loop.TestAdd"}, result.Passed)
	assert.Equal(t, []suite.TestID{"example.com/loop.TestLater"}, result.Skipped)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0].Diagnostic, "Add(2, 2) = 4, want 5")
	assert.Empty(t, result.Errors)

	entries, err := os.ReadDir(e.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "teardown removes the binary")

	require.NoError(t, e.Reload(ctx))
}

func TestEngine_RealToolchainCompileError(t *testing.T) {
	if testing.Short() {
		t.Skip("compiles a module")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go not on PATH")
	}

	dir := writeModule(t, map[string]string{
		"go.mod":       "module example.com/loop\n\ngo 1.21\n",
		"calc.go":      "package calc\n\nfunc Add(a, b int) int { return a + }\n",
		"calc_test.go": "package calc\n\nimport \"testing\"\n\nfunc TestAdd(t *testing.T) {}\n",
	})

	e, err := New(Options{Dir: dir, Env: []string{"GOWORK=off", "GOFLAGS="}, Logger: logging.Discard()})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	ctx := context.Background()
	cases, err := e.Discover(ctx, suite.Query{})
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, BuildTestName, cases[0].Name)

	result := suite.NewResult()
	suite.NewExecutor(e, nil, suite.Options{}).Run(ctx, "Testing", cases, result)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, suite.TestID("example.com/loop"), result.Errors[0].ID)
	assert.Contains(t, result.Errors[0].Diagnostic, "syntax error")

	assert.Error(t, e.Reload(ctx))
}
