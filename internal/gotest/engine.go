// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gotest runs Go tests one at a time through compiled test binaries.
//
// A package is a class: its test binary is compiled on class setup, every
// top-level test runs in its own process, and the binary is removed on
// teardown. Discovery results are cached per package until the package is
// invalidated or the engine reloads.
package gotest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/bartekus/testloop/internal/logging"
	"github.com/bartekus/testloop/internal/suite"
)

// BuildTestName is the placeholder test of a package whose tests cannot be
// listed because the package does not compile.
const BuildTestName = "(build)"

// Options configures an Engine.
type Options struct {
	// Dir is the module directory go commands run in.
	Dir string
	// GoBin is the go command, "go" by default.
	GoBin string
	// WorkDir receives compiled test binaries. A temporary directory is
	// created, and removed by Close, when empty.
	WorkDir string
	// Env is appended to the process environment of every command.
	Env    []string
	Runner Runner
	Logger *logging.Logger
}

// Engine implements suite.Engine and suite.Reloader for the go toolchain.
type Engine struct {
	dir     string
	goBin   string
	env     []string
	runner  Runner
	logger  *logging.Logger
	workDir string
	ownWork bool

	mu       sync.Mutex
	query    suite.Query
	packages map[string]Package
	tests    map[string][]string
	binaries map[suite.ClassID]string
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	e := &Engine{
		dir:      opts.Dir,
		goBin:    opts.GoBin,
		env:      opts.Env,
		runner:   opts.Runner,
		logger:   logging.OrDefault(opts.Logger).WithComponent("gotest"),
		workDir:  opts.WorkDir,
		packages: make(map[string]Package),
		tests:    make(map[string][]string),
		binaries: make(map[suite.ClassID]string),
	}
	if e.goBin == "" {
		e.goBin = "go"
	}
	if e.runner == nil {
		e.runner = ExecRunner{}
	}
	if e.workDir == "" {
		dir, err := os.MkdirTemp("", "testloop-*")
		if err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}
		e.workDir, e.ownWork = dir, true
	}
	return e, nil
}

// Close removes compiled binaries and the temporary work directory.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for class, bin := range e.binaries {
		_ = os.Remove(bin)
		delete(e.binaries, class)
	}
	if e.ownWork {
		return os.RemoveAll(e.workDir)
	}
	return nil
}

func (e *Engine) command(dir string, args ...string) Command {
	return Command{Dir: dir, Name: e.goBin, Args: args, Env: e.env}
}

func tagsArgs(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	return []string{"-tags=" + strings.Join(tags, ",")}
}

// Discover lists the packages matching q and their top-level tests.
func (e *Engine) Discover(ctx context.Context, q suite.Query) ([]suite.TestCase, error) {
	patterns := q.Packages
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}

	args := append([]string{"list", "-e", "-json"}, tagsArgs(q.Tags)...)
	args = append(args, patterns...)
	stdout, stderr, err := e.runner.Run(ctx, e.command(e.dir, args...))
	if err != nil {
		return nil, fmt.Errorf("go list: %w\n%s", err, strings.TrimSpace(string(stderr)))
	}
	pkgs, err := parsePackages(bytes.NewReader(stdout))
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if !slices.Equal(e.query.Tags, q.Tags) || e.query.Run != q.Run {
		clear(e.tests)
	}
	e.query = q
	e.mu.Unlock()

	var cases []suite.TestCase
	for _, pkg := range pkgs {
		if !pkg.HasTests() {
			continue
		}
		names, err := e.listTests(ctx, pkg, q)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			cases = append(cases, suite.TestCase{
				ID:    suite.TestID(pkg.ImportPath + "." + name),
				Name:  name,
				Class: suite.ClassID(pkg.ImportPath),
				Seq:   len(cases),
			})
		}
	}
	e.logger.Debug("discovered tests", "packages", len(pkgs), "tests", len(cases))
	return cases, nil
}

// listTests returns the cached test names of pkg, listing them when the
// cache is cold. A package that does not build yields the placeholder test
// so class setup can report the compiler output.
func (e *Engine) listTests(ctx context.Context, pkg Package, q suite.Query) ([]string, error) {
	e.mu.Lock()
	e.packages[pkg.ImportPath] = pkg
	cached, ok := e.tests[pkg.ImportPath]
	e.mu.Unlock()
	if ok {
		return cached, nil
	}

	run := q.Run
	if run == "" {
		run = "."
	}
	args := append([]string{"test", "-list", run, "-json"}, tagsArgs(q.Tags)...)
	args = append(args, pkg.ImportPath)
	stdout, _, err := e.runner.Run(ctx, e.command(e.dir, args...))

	var names []string
	switch {
	case ctx.Err() != nil:
		return nil, context.Cause(ctx)
	case err != nil || pkg.Error != nil:
		e.logger.Debug("package does not build", "package", pkg.ImportPath, "error", err)
		names = []string{BuildTestName}
	default:
		names = parseTestList(bytes.NewReader(stdout))
	}

	e.mu.Lock()
	e.tests[pkg.ImportPath] = names
	e.mu.Unlock()
	return names, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// ClassSetup compiles the test binary of the package. Like RunOne, the
// compile is not tied to ctx cancellation, so a stale rerun never turns a
// killed compiler into a setup failure.
func (e *Engine) ClassSetup(ctx context.Context, class suite.ClassID) error {
	e.mu.Lock()
	pkg, ok := e.packages[string(class)]
	tags := e.query.Tags
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown package %s", class)
	}

	bin := filepath.Join(e.workDir, unsafeName.ReplaceAllString(string(class), "_")+".test")
	args := append([]string{"test", "-c", "-o", bin}, tagsArgs(tags)...)
	args = append(args, pkg.ImportPath)
	stdout, stderr, err := e.runner.Run(context.WithoutCancel(ctx), e.command(e.dir, args...))
	if err != nil {
		out := strings.TrimSpace(string(stdout) + string(stderr))
		return fmt.Errorf("compile %s: %w\n%s", class, err, out)
	}

	e.mu.Lock()
	e.binaries[class] = bin
	e.mu.Unlock()
	return nil
}

// ClassTeardown removes the package's test binary.
func (e *Engine) ClassTeardown(_ context.Context, class suite.ClassID) {
	e.mu.Lock()
	bin, ok := e.binaries[class]
	delete(e.binaries, class)
	e.mu.Unlock()
	if ok {
		if err := os.Remove(bin); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("remove test binary", "path", bin, "error", err)
		}
	}
}

// RunOne runs a single top-level test in its own process. The process is
// not tied to ctx cancellation: a started test always completes.
func (e *Engine) RunOne(ctx context.Context, tc suite.TestCase, result *suite.Result) {
	e.mu.Lock()
	bin, ok := e.binaries[tc.Class]
	pkg := e.packages[string(tc.Class)]
	e.mu.Unlock()
	if !ok {
		result.AddError(tc.ID, fmt.Sprintf("no test binary for %s", tc.Class))
		return
	}

	cmd := Command{
		Dir:  pkg.Dir,
		Name: bin,
		Args: []string{"-test.run", "^" + regexp.QuoteMeta(tc.Name) + "$", "-test.v"},
		Env:  e.env,
	}
	stdout, stderr, err := e.runner.Run(context.WithoutCancel(ctx), cmd)
	output := string(stdout) + string(stderr)

	switch verdict(output, tc.Name, err == nil) {
	case VerdictPass:
		result.AddSuccess(tc.ID)
	case VerdictSkip:
		result.AddSkip(tc.ID)
	case VerdictMissing:
		result.AddError(tc.ID, fmt.Sprintf("%s no longer exists in %s", tc.Name, tc.Class))
	case VerdictFail:
		diag := failureDiagnostic(output)
		e.logger.Debug("test failed", "test", tc.ID, "reason", failureReason(diag))
		result.AddFailure(tc.ID, diag)
	default:
		diag := failureDiagnostic(output)
		if diag == "" && err != nil {
			diag = err.Error()
		}
		result.AddError(tc.ID, diag)
	}
}

// Invalidate drops cached test lists of packages containing module.go.
// An unknown module drops every cache entry: the file may be new.
func (e *Engine) Invalidate(module string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	file := module + ".go"
	matched := false
	for path, pkg := range e.packages {
		if slices.Contains(pkg.Files(), file) {
			delete(e.tests, path)
			matched = true
		}
	}
	if !matched {
		clear(e.tests)
	}
}

// Reload builds the selected packages, reporting compile errors of
// non-test code, and drops every discovery cache.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	q := e.query
	clear(e.tests)
	clear(e.packages)
	e.mu.Unlock()

	patterns := q.Packages
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}
	args := append([]string{"build"}, tagsArgs(q.Tags)...)
	args = append(args, patterns...)
	stdout, stderr, err := e.runner.Run(ctx, e.command(e.dir, args...))
	if err != nil {
		return fmt.Errorf("reload: %w\n%s", err, strings.TrimSpace(string(stdout)+string(stderr)))
	}
	return nil
}

var (
	_ suite.Engine   = (*Engine)(nil)
	_ suite.Reloader = (*Engine)(nil)
)
