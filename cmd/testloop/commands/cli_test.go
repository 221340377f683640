package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartekus/testloop/cmd/testloop/internal/clierr"
	"github.com/bartekus/testloop/internal/runner"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLIContract(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)

	for _, c := range []string{"run", "list", "report", "reset", "version", "help", "completion"} {
		assert.Contains(t, out, c, "expected top-level command %q in root help", c)
	}
}

func TestRunHelpListsFlags(t *testing.T) {
	out, err := execute(t, "run", "--help")
	require.NoError(t, err)

	for _, flag := range []string{"--watch", "--failed-only", "--fail-fast", "--watch-path", "--debounce", "--poll-interval", "--report-dir", "--metrics-addr", "--packages", "--run", "--tags"} {
		assert.Contains(t, out, flag)
	}
}

func TestVersion(t *testing.T) {
	t.Setenv("TESTLOOP_VERSION", "1.2.3")
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "testloop version 1.2.3\n", out)
}

func TestInvalidConfigIsUsageError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bogus_field: 1\n"), 0o644))

	_, err := execute(t, "--config", path, "run")
	require.Error(t, err)
	assert.Equal(t, clierr.ExitUsage, clierr.ExitCodeOf(err))
}

func TestMissingExplicitConfigIsUsageError(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "list")
	require.Error(t, err)
	assert.Equal(t, clierr.ExitUsage, clierr.ExitCodeOf(err))
}

func TestInvalidFlagValueIsUsageError(t *testing.T) {
	_, err := execute(t, "run", "--poll-interval", "0s")
	require.Error(t, err)
	assert.Equal(t, clierr.ExitUsage, clierr.ExitCodeOf(err))

	_, err = execute(t, "run", "--run", "(")
	require.Error(t, err)
	assert.Equal(t, clierr.ExitUsage, clierr.ExitCodeOf(err))
}

func TestWatchMissingDirectoryIsWatcherError(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	_, err := execute(t, "run", "--watch", "--watch-path", missing, "--report-dir", "")
	require.Error(t, err)
	assert.Equal(t, clierr.ExitWatcher, clierr.ExitCodeOf(err))
}

func TestReport(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "report", "--report-dir", dir)
	require.NoError(t, err)
	assert.Equal(t, "No run recorded yet.\n", out)

	store := runner.NewStateStore(dir)
	require.NoError(t, store.WriteLastRun(runner.LastRun{
		RunID:     "run-7",
		Status:    runner.StatusFail,
		Mode:      "failed-only",
		Narrow:    true,
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:  "1.5s",
		Total:     2,
		Completed: 2,
		Passed:    1,
		Errors:    []runner.TestResult{},
		Failures:  []runner.TestResult{{ID: "pkg.TestB", Diagnostic: "want 1, got 2"}},
		Failed:    []string{"pkg.TestB"},
	}))

	out, err = execute(t, "report", "--report-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-7: fail (failed-only, previously failed only)")
	assert.Contains(t, out, "Ran 2 of 2: 1 passed, 0 skipped, 0 errors, 1 failures")
	assert.Contains(t, out, "FAIL  pkg.TestB: want 1, got 2")

	out, err = execute(t, "report", "--report-dir", dir, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"run_id": "run-7"`)
	assert.Contains(t, out, `"failed": [`)
}

func TestReset(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	require.NoError(t, runner.NewStateStore(dir).WriteLastRun(runner.LastRun{RunID: "run-1", Status: runner.StatusPass}))

	out, err := execute(t, "reset", "--report-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed "+dir)

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
