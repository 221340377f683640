// SPDX-License-Identifier: AGPL-3.0-or-later

// Package suitetest provides a scriptable in-memory suite.Engine for tests.
package suitetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/bartekus/testloop/internal/suite"
)

// Verdict is the scripted outcome of one test.
type Verdict int

const (
	Pass Verdict = iota
	Fail
	Error
)

// Engine is a fake suite.Engine. Tests are registered with Add; verdicts
// default to Pass. Every call is recorded in Calls.
type Engine struct {
	mu sync.Mutex

	cases       []suite.TestCase
	verdicts    map[suite.TestID]Verdict
	setupErrors map[suite.ClassID]error

	// DiscoverErr, when set, is returned by Discover.
	DiscoverErr error
	// ReloadErr, when set, is returned by Reload.
	ReloadErr error
	// OnRun is invoked before a test's verdict is recorded.
	OnRun func(ctx context.Context, tc suite.TestCase)
	// OnSetup is invoked by ClassSetup; a non-nil error is returned from it.
	OnSetup func(ctx context.Context, class suite.ClassID) error

	calls       []string
	queries     []suite.Query
	invalidated []string
	reloads     int
}

// New returns an empty fake engine.
func New() *Engine {
	return &Engine{
		verdicts:    make(map[suite.TestID]Verdict),
		setupErrors: make(map[suite.ClassID]error),
	}
}

// Add registers a test in class with the next sequence key.
func (e *Engine) Add(class, name string) suite.TestCase {
	e.mu.Lock()
	defer e.mu.Unlock()
	tc := suite.TestCase{
		ID:    suite.TestID(class + "." + name),
		Name:  name,
		Class: suite.ClassID(class),
		Seq:   len(e.cases),
	}
	e.cases = append(e.cases, tc)
	return tc
}

// Set scripts the verdict of a test.
func (e *Engine) Set(id suite.TestID, v Verdict) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.verdicts[id] = v
}

// FailSetup makes ClassSetup of class return err.
func (e *Engine) FailSetup(class string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setupErrors[suite.ClassID(class)] = err
}

// Discover returns every registered case whose class matches one of q.Packages
// (all of them when q.Packages is empty).
func (e *Engine) Discover(_ context.Context, q suite.Query) ([]suite.TestCase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queries = append(e.queries, q)
	if e.DiscoverErr != nil {
		return nil, e.DiscoverErr
	}
	var out []suite.TestCase
	for _, tc := range e.cases {
		if len(q.Packages) == 0 || slices.Contains(q.Packages, string(tc.Class)) {
			out = append(out, tc)
		}
	}
	return out, nil
}

// RunOne records the scripted verdict.
func (e *Engine) RunOne(ctx context.Context, tc suite.TestCase, result *suite.Result) {
	e.record("run:" + string(tc.ID))
	if e.OnRun != nil {
		e.OnRun(ctx, tc)
	}
	e.mu.Lock()
	v := e.verdicts[tc.ID]
	e.mu.Unlock()

	switch v {
	case Fail:
		result.AddFailure(tc.ID, fmt.Sprintf("%s failed", tc.Name))
	case Error:
		result.AddError(tc.ID, fmt.Sprintf("%s errored", tc.Name))
	default:
		result.AddSuccess(tc.ID)
	}
}

// ClassSetup returns the OnSetup or scripted setup error, if any.
func (e *Engine) ClassSetup(ctx context.Context, class suite.ClassID) error {
	e.record("setup:" + string(class))
	if e.OnSetup != nil {
		if err := e.OnSetup(ctx, class); err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setupErrors[class]
}

// ClassTeardown records the call.
func (e *Engine) ClassTeardown(_ context.Context, class suite.ClassID) {
	e.record("teardown:" + string(class))
}

// Invalidate records the module.
func (e *Engine) Invalidate(module string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidated = append(e.invalidated, module)
}

// Reload counts reloads and returns ReloadErr.
func (e *Engine) Reload(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reloads++
	return e.ReloadErr
}

// Calls returns the recorded setup/run/teardown calls in order.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.calls)
}

// Ran returns the IDs passed to RunOne, in order.
func (e *Engine) Ran() []suite.TestID {
	var ids []suite.TestID
	for _, c := range e.Calls() {
		if id, ok := strings.CutPrefix(c, "run:"); ok {
			ids = append(ids, suite.TestID(id))
		}
	}
	return ids
}

// Count returns how many times call (e.g. "teardown:pkg") was recorded.
func (e *Engine) Count(call string) int {
	n := 0
	for _, c := range e.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// Reloads returns how many times Reload was called.
func (e *Engine) Reloads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reloads
}

// Invalidated returns the modules passed to Invalidate.
func (e *Engine) Invalidated() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.invalidated)
}

// Queries returns the queries passed to Discover.
func (e *Engine) Queries() []suite.Query {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.queries)
}

// Reset forgets recorded calls but keeps tests and verdicts.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
	e.queries = nil
}

// ErrSetup is a ready-made class setup error.
var ErrSetup = errors.New("fixture unavailable")

func (e *Engine) record(call string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
}

var (
	_ suite.Engine   = (*Engine)(nil)
	_ suite.Reloader = (*Engine)(nil)
)
