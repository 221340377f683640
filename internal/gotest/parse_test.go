package gotest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePackages(t *testing.T) {
	out := `{
	"ImportPath": "example.com/m/calc",
	"Dir": "/src/m/calc",
	"Name": "calc",
	"GoFiles": ["calc.go"],
	"TestGoFiles": ["calc_test.go"]
}
{
	"ImportPath": "example.com/m/broken",
	"Dir": "/src/m/broken",
	"XTestGoFiles": ["broken_test.go"],
	"Error": {"Err": "syntax error"}
}
{
	"ImportPath": "example.com/m/cmd",
	"GoFiles": ["main.go"]
}
`
	pkgs, err := parsePackages(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, pkgs, 3)

	assert.True(t, pkgs[0].HasTests())
	assert.Equal(t, []string{"calc.go", "calc_test.go"}, pkgs[0].Files())
	assert.True(t, pkgs[1].HasTests())
	require.NotNil(t, pkgs[1].Error)
	assert.Equal(t, "syntax error", pkgs[1].Error.Err)
	assert.False(t, pkgs[2].HasTests())
}

func TestParsePackages_Garbage(t *testing.T) {
	_, err := parsePackages(strings.NewReader(`{"ImportPath": `))
	assert.Error(t, err)
}

func TestParseTestList(t *testing.T) {
	out := strings.Join([]string{
		`{"Action":"start","Package":"example.com/m/calc"}`,
		`{"Action":"output","Package":"example.com/m/calc","Output":"TestAdd\n"}`,
		`{"Action":"output","Package":"example.com/m/calc","Output":"TestSub_Negative\n"}`,
		`{"Action":"output","Package":"example.com/m/calc","Output":"ExampleAdd\n"}`,
		`{"Action":"output","Package":"example.com/m/calc","Output":"BenchmarkAdd\n"}`,
		`{"Action":"output","Package":"example.com/m/calc","Output":"FuzzAdd\n"}`,
		`not json`,
		``,
		`{"Action":"output","Package":"example.com/m/calc","Output":"ok  \texample.com/m/calc\t0.002s\n"}`,
		`{"Action":"pass","Package":"example.com/m/calc","Elapsed":0.002}`,
	}, "\n")

	assert.Equal(t, []string{"TestAdd", "TestSub_Negative", "ExampleAdd"}, parseTestList(strings.NewReader(out)))
}

func TestVerdict(t *testing.T) {
	tests := []struct {
		name   string
		output string
		exited bool
		want   Verdict
	}{
		{"pass", "=== RUN   TestAdd\n--- PASS: TestAdd (0.00s)\nPASS\n", true, VerdictPass},
		{"fail", "=== RUN   TestAdd\n    calc_test.go:9: want 3\n--- FAIL: TestAdd (0.00s)\nFAIL\n", false, VerdictFail},
		{"skip", "=== RUN   TestAdd\n    calc_test.go:9: later\n--- SKIP: TestAdd (0.00s)\nPASS\n", true, VerdictSkip},
		{"panic", "=== RUN   TestAdd\npanic: boom\n\ngoroutine 7 [running]:\n", false, VerdictError},
		{"missing", "testing: warning: no tests to run\nPASS\n", true, VerdictMissing},
		{"example", "=== RUN   ExampleAdd\n--- PASS: ExampleAdd (0.00s)\nPASS\n", true, VerdictPass},
		{"prefix is not a match", "--- FAIL: TestAddMore (0.00s)\n", false, VerdictError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, verdict(tt.output, "TestAdd", tt.exited))
		})
	}
}

func TestFailureDiagnostic(t *testing.T) {
	output := "=== RUN   TestAdd\n" +
		"=== RUN   TestAdd/zero\n" +
		"    calc_test.go:12: Add(0, 0) = 1, want 0\n" +
		"--- FAIL: TestAdd (0.00s)\n" +
		"    --- FAIL: TestAdd/zero (0.00s)\n" +
		"FAIL\n"

	diag := failureDiagnostic(output)
	assert.Equal(t, "calc_test.go:12: Add(0, 0) = 1, want 0\n--- FAIL: TestAdd (0.00s)\n    --- FAIL: TestAdd/zero (0.00s)", diag)
	assert.Equal(t, "Add(0, 0) = 1, want 0", failureReason("    calc_test.go:12: Add(0, 0) = 1, want 0\n--- FAIL: TestAdd (0.00s)"))
}

func TestFailureReason_Truncates(t *testing.T) {
	long := "    calc_test.go:1: " + strings.Repeat("x", 200)
	reason := failureReason(long)
	assert.Len(t, reason, 100)
	assert.True(t, strings.HasSuffix(reason, "..."))
	assert.Empty(t, failureReason("no location here"))
}
