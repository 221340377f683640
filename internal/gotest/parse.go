// SPDX-License-Identifier: AGPL-3.0-or-later

package gotest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Package is the subset of `go list -json` output the engine needs.
type Package struct {
	ImportPath   string
	Dir          string
	Name         string
	GoFiles      []string
	TestGoFiles  []string
	XTestGoFiles []string
	Error        *PackageError
}

// PackageError is the error `go list -e` attaches to a broken package.
type PackageError struct {
	Err string
}

// HasTests reports whether the package has any test files.
func (p Package) HasTests() bool {
	return len(p.TestGoFiles) > 0 || len(p.XTestGoFiles) > 0
}

// Files returns every Go file name of the package.
func (p Package) Files() []string {
	files := make([]string, 0, len(p.GoFiles)+len(p.TestGoFiles)+len(p.XTestGoFiles))
	files = append(files, p.GoFiles...)
	files = append(files, p.TestGoFiles...)
	return append(files, p.XTestGoFiles...)
}

// parsePackages decodes the concatenated JSON objects printed by `go list -json`.
func parsePackages(r io.Reader) ([]Package, error) {
	var pkgs []Package
	dec := json.NewDecoder(r)
	for {
		var p Package
		if err := dec.Decode(&p); err != nil {
			if errors.Is(err, io.EOF) {
				return pkgs, nil
			}
			return nil, fmt.Errorf("decode go list output: %w", err)
		}
		pkgs = append(pkgs, p)
	}
}

// testEvent is one line of test2json output.
type testEvent struct {
	Action  string
	Package string
	Test    string
	Output  string
}

var listedName = regexp.MustCompile(`^(Test|Example)[\p{L}\p{N}_]*$`)

// parseTestList extracts top-level test names from `go test -list -json`.
// Benchmarks and fuzz targets are not runnable as tests and are dropped.
func parseTestList(r io.Reader) []string {
	var names []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev testEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if ev.Action != "output" || ev.Test != "" {
			continue
		}
		name := strings.TrimSpace(ev.Output)
		if listedName.MatchString(name) {
			names = append(names, name)
		}
	}
	return names
}

// Verdict is the outcome read from a test binary's -test.v output.
type Verdict int

const (
	VerdictPass Verdict = iota
	VerdictFail
	VerdictSkip
	VerdictMissing
	VerdictError
)

// verdict classifies the output of `<binary> -test.run ^name$ -test.v`.
// exited reports whether the process exited zero.
func verdict(output, name string, exited bool) Verdict {
	switch {
	case hasResultLine(output, "FAIL", name):
		return VerdictFail
	case !exited:
		return VerdictError
	case hasResultLine(output, "SKIP", name):
		return VerdictSkip
	case hasResultLine(output, "PASS", name):
		return VerdictPass
	case strings.Contains(output, "no tests to run"):
		return VerdictMissing
	default:
		// Examples print "--- PASS" too; anything else that exited zero passed.
		return VerdictPass
	}
}

func hasResultLine(output, result, name string) bool {
	prefix := "--- " + result + ": " + name + " "
	for line := range strings.SplitSeq(output, "\n") {
		if strings.HasPrefix(line, prefix) || strings.TrimRight(line, "\r") == strings.TrimSpace(prefix) {
			return true
		}
	}
	return false
}

// failureDiagnostic keeps the log lines of a failed test and drops the
// framing the test binary adds around them.
func failureDiagnostic(output string) string {
	var kept []string
	for line := range strings.SplitSeq(output, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "=== "):
			continue
		case trimmed == "PASS" || trimmed == "FAIL":
			continue
		case strings.HasPrefix(trimmed, "testing: warning:"):
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

var fileLine = regexp.MustCompile(`^\s+\S+\.go:\d+: `)

// failureReason returns the first file:line message of a failure, the
// line a reader looks at first.
func failureReason(diagnostic string) string {
	for line := range strings.SplitSeq(diagnostic, "\n") {
		if loc := fileLine.FindStringIndex(line); loc != nil {
			reason := strings.TrimSpace(line[loc[1]:])
			const maxLen = 100
			if len(reason) > maxLen {
				reason = reason[:maxLen-3] + "..."
			}
			return reason
		}
	}
	return ""
}
