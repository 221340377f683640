// SPDX-License-Identifier: AGPL-3.0-or-later

package suite

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/bartekus/testloop/internal/clock"
	"github.com/bartekus/testloop/internal/progress"
)

// Abort records why a run stopped before its last test.
type Abort int

const (
	AbortNone Abort = iota
	AbortFailFast
	AbortStaleRerun
	AbortInterrupted
)

func (a Abort) String() string {
	switch a {
	case AbortFailFast:
		return "fail-fast"
	case AbortStaleRerun:
		return "stale-rerun"
	case AbortInterrupted:
		return "interrupted"
	default:
		return ""
	}
}

// State is the bookkeeping of one executor run.
type State struct {
	Total     int
	Completed int
	Aborted   Abort
}

// Options configures an Executor.
type Options struct {
	FailFast bool
	Clock    clock.Clock
}

// Executor runs test cases in order with progress, cancellation and class lifecycle.
type Executor struct {
	engine   Engine
	sink     progress.Sink
	clock    clock.Clock
	failFast bool
}

// NewExecutor creates an Executor.
func NewExecutor(engine Engine, sink progress.Sink, opts Options) *Executor {
	if sink == nil {
		sink = progress.Discard
	}
	return &Executor{
		engine:   engine,
		sink:     sink,
		clock:    clock.OrReal(opts.Clock),
		failFast: opts.FailFast,
	}
}

// Run executes cases sorted by Seq, accumulating outcomes into result.
//
// ctx is consulted before every test. Its cancellation cause decides the
// Abort reason: ErrStaleRun maps to AbortStaleRerun, anything else to
// AbortInterrupted. A test that already started is never interrupted, and
// tests after the abort point are neither run nor recorded.
//
// Class setup runs to completion even when ctx is cancelled meanwhile; the
// run then aborts before the class's first test. The active class is always
// torn down before Run returns.
func (e *Executor) Run(ctx context.Context, name string, cases []TestCase, result *Result) State {
	tests := slices.Clone(cases)
	slices.SortStableFunc(tests, func(a, b TestCase) int { return cmp.Compare(a.Seq, b.Seq) })

	state := State{Total: len(tests)}
	start := e.clock.Now()
	e.sink.Emit(progress.TaskStarted{Name: name, Total: state.Total})

	var (
		active      ClassID
		hasActive   bool
		setupFailed bool
	)
	// Teardown must happen even when the run was cancelled.
	release := context.WithoutCancel(ctx)
	defer func() {
		if hasActive {
			e.engine.ClassTeardown(release, active)
		}
	}()

	for _, tc := range tests {
		if ctx.Err() != nil {
			state.Aborted = abortFor(ctx)
			break
		}

		if !hasActive || tc.Class != active {
			if hasActive {
				e.engine.ClassTeardown(release, active)
			}
			active, hasActive = tc.Class, true
			setupFailed = false
			err := e.engine.ClassSetup(release, tc.Class)
			// Setup is a boundary too: a run cancelled meanwhile records nothing,
			// not even a setup error the cancellation may have caused.
			if ctx.Err() != nil {
				state.Aborted = abortFor(ctx)
				break
			}
			if err != nil {
				setupFailed = true
				result.AddError(TestID(tc.Class), fmt.Sprintf("class setup failed: %v", err))
			}
		}

		e.sink.Emit(progress.Log{
			Line:  fmt.Sprintf("%s from %s", tc.Name, tc.Class),
			Test:  tc.Name,
			Class: string(tc.Class),
		})
		e.sink.Emit(progress.Progress{
			Completed: state.Completed,
			Total:     state.Total,
			Current:   string(tc.ID),
			Elapsed:   e.clock.Since(start),
		})

		if setupFailed {
			result.AddSkip(tc.ID)
		} else {
			e.engine.RunOne(ctx, tc, result)
		}

		state.Completed++
		e.sink.Emit(progress.Progress{
			Completed: state.Completed,
			Total:     state.Total,
			Elapsed:   e.clock.Since(start),
		})

		if e.failFast && !result.WasSuccessful() {
			state.Aborted = AbortFailFast
			break
		}
	}

	return state
}

func abortFor(ctx context.Context) Abort {
	if errors.Is(context.Cause(ctx), ErrStaleRun) {
		return AbortStaleRerun
	}
	return AbortInterrupted
}
