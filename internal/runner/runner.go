// SPDX-License-Identifier: AGPL-3.0-or-later

// Package runner executes one run cycle: reload, discovery, selection of
// the tests to run, execution, escalation and reporting.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bartekus/testloop/internal/clock"
	"github.com/bartekus/testloop/internal/failures"
	"github.com/bartekus/testloop/internal/logging"
	"github.com/bartekus/testloop/internal/metrics"
	"github.com/bartekus/testloop/internal/progress"
	"github.com/bartekus/testloop/internal/schedule"
	"github.com/bartekus/testloop/internal/suite"
)

// Outcome summarises a cycle for the caller.
type Outcome int

const (
	OutcomePassed Outcome = iota
	OutcomeFailed
	OutcomeAborted
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomePassed:
		return metrics.OutcomePassed
	case OutcomeFailed:
		return metrics.OutcomeFailed
	case OutcomeAborted:
		return metrics.OutcomeAborted
	default:
		return metrics.OutcomeError
	}
}

// Deps contains the collaborators of a Runner.
type Deps struct {
	Engine  suite.Engine
	Sink    progress.Sink
	Store   *StateStore
	Metrics *metrics.Registry
	Logger  *logging.Logger
	Clock   clock.Clock
	// NewID generates run identifiers; uuid.NewString by default.
	NewID func() string
}

// Options configures what a cycle runs.
type Options struct {
	Mode     failures.Mode
	FailFast bool
	Query    suite.Query
}

// Report is everything a cycle produced.
type Report struct {
	RunID     string
	Outcome   Outcome
	Selection failures.Selection
	Result    *suite.Result
	State     suite.State
	Escalated bool
	// Next is the failure set to pass to the following cycle.
	Next    failures.Set
	Elapsed time.Duration
}

// Runner runs cycles. It holds no state between cycles: the failure set is
// passed in and returned.
type Runner struct {
	deps     Deps
	opts     Options
	executor *suite.Executor
	logger   *logging.Logger
	clock    clock.Clock
}

// NewRunner creates a Runner.
func NewRunner(deps Deps, opts Options) *Runner {
	if deps.Sink == nil {
		deps.Sink = progress.Discard
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	clk := clock.OrReal(deps.Clock)
	return &Runner{
		deps:     deps,
		opts:     opts,
		executor: suite.NewExecutor(deps.Engine, deps.Sink, suite.Options{FailFast: opts.FailFast, Clock: clk}),
		logger:   logging.OrDefault(deps.Logger).WithComponent("runner"),
		clock:    clk,
	}
}

// Cycle runs one cycle and returns the next failure set. It has the shape
// of schedule.RunFunc so a Runner can drive a Scheduler directly.
//
// On error the previous set is returned unchanged.
func (r *Runner) Cycle(ctx context.Context, prev failures.Set, req schedule.Request) (failures.Set, error) {
	rep, err := r.Run(ctx, prev, req)
	if err != nil {
		return prev, err
	}
	return rep.Next, nil
}

// Run executes one cycle and returns its full report.
func (r *Runner) Run(ctx context.Context, prev failures.Set, req schedule.Request) (Report, error) {
	rep := Report{RunID: r.deps.NewID(), Next: prev}
	start := r.clock.Now()

	if err := r.prepare(ctx, rep.RunID, req); err != nil {
		return rep, r.abandon(ctx, rep, start, err)
	}

	cases, err := r.deps.Engine.Discover(ctx, r.opts.Query)
	if err != nil {
		return rep, r.abandon(ctx, rep, start, fmt.Errorf("discover tests: %w", err))
	}

	rep.Selection = failures.Select(r.opts.Mode, prev)
	name := "Testing"
	if rep.Selection.Narrow {
		name = "Testing previously failed"
		r.logger.Info("running previously failed tests", "count", rep.Selection.Targets.Len())
	}

	rep.Result = suite.NewResult()
	rep.State = r.executor.Run(ctx, name, rep.Selection.Filter(cases), rep.Result)

	if ctx.Err() == nil && rep.State.Aborted == suite.AbortNone && failures.Escalate(rep.Selection, rep.Result) {
		r.logger.Info("previously failed tests pass, confirming with the full suite")
		rep.Escalated = true
		rep.Result = suite.NewResult()
		rep.State = r.executor.Run(ctx, "Testing", cases, rep.Result)
	}

	rep.Next = failures.FromResult(rep.Result)
	rep.Elapsed = r.clock.Since(start)
	switch {
	case rep.State.Aborted == suite.AbortStaleRerun || rep.State.Aborted == suite.AbortInterrupted:
		rep.Outcome = OutcomeAborted
	case !rep.Result.WasSuccessful():
		rep.Outcome = OutcomeFailed
	default:
		rep.Outcome = OutcomePassed
	}

	r.deps.Sink.Emit(progress.RunFinished{
		RunID:     rep.RunID,
		Passed:    len(rep.Result.Passed),
		Skipped:   len(rep.Result.Skipped),
		Errors:    diagnostics(rep.Result.Errors),
		Failures:  diagnostics(rep.Result.Failures),
		Aborted:   rep.State.Aborted.String(),
		Escalated: rep.Escalated,
		Elapsed:   rep.Elapsed,
	})
	r.record(rep, start)

	r.logger.Info("run finished",
		"run_id", rep.RunID,
		"outcome", rep.Outcome.String(),
		"completed", rep.State.Completed,
		"total", rep.State.Total,
		"errors", len(rep.Result.Errors),
		"failures", len(rep.Result.Failures),
	)
	return rep, nil
}

// prepare forwards invalidations and performs a pending reload.
func (r *Runner) prepare(ctx context.Context, runID string, req schedule.Request) error {
	reloader, ok := r.deps.Engine.(suite.Reloader)
	if !ok {
		return nil
	}
	for _, module := range req.Invalidate {
		reloader.Invalidate(module)
	}
	if !req.Reload {
		return nil
	}

	r.deps.Sink.Emit(progress.TaskStarted{RunID: runID, Name: "Reloading"})
	if err := reloader.Reload(ctx); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

// abandon reports a cycle that could not execute tests. A cycle cancelled
// while reloading or discovering is not reported: the cause says why.
func (r *Runner) abandon(ctx context.Context, rep Report, start time.Time, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", context.Cause(ctx), err)
	}
	rep.Outcome = OutcomeError
	rep.Elapsed = r.clock.Since(start)
	r.deps.Sink.Emit(progress.RunFinished{
		RunID:   rep.RunID,
		Errors:  []progress.Diagnostic{{ID: "testloop", Text: err.Error()}},
		Elapsed: rep.Elapsed,
	})
	r.deps.Metrics.ObserveRun(rep.Outcome.String(), rep.Elapsed)
	r.writeReport(LastRun{
		RunID:     rep.RunID,
		Status:    StatusError,
		Mode:      r.opts.Mode.String(),
		StartedAt: start.UTC(),
		Duration:  rep.Elapsed.String(),
		Errors:    []TestResult{{ID: "testloop", Diagnostic: err.Error()}},
		Failures:  []TestResult{},
		Failed:    rep.Next.Strings(),
	})
	return err
}

func (r *Runner) record(rep Report, start time.Time) {
	res := rep.Result
	r.deps.Metrics.ObserveRun(rep.Outcome.String(), rep.Elapsed)
	r.deps.Metrics.ObserveTests(len(res.Passed), len(res.Failures), len(res.Errors), len(res.Skipped))
	r.deps.Metrics.SetFailureSetSize(rep.Next.Len())

	status := StatusPass
	switch rep.Outcome {
	case OutcomeFailed:
		status = StatusFail
	case OutcomeAborted:
		status = StatusAborted
	}
	r.writeReport(LastRun{
		RunID:     rep.RunID,
		Status:    status,
		Mode:      r.opts.Mode.String(),
		Narrow:    rep.Selection.Narrow,
		Escalated: rep.Escalated,
		Aborted:   rep.State.Aborted.String(),
		StartedAt: start.UTC(),
		Duration:  rep.Elapsed.String(),
		Total:     rep.State.Total,
		Completed: rep.State.Completed,
		Passed:    len(res.Passed),
		Skipped:   len(res.Skipped),
		Errors:    testResults(res.Errors),
		Failures:  testResults(res.Failures),
		Failed:    rep.Next.Strings(),
	})
}

func (r *Runner) writeReport(last LastRun) {
	if r.deps.Store == nil {
		return
	}
	if err := r.deps.Store.WriteLastRun(last); err != nil {
		r.logger.Warn("writing last run report", "error", err)
	}
}

func diagnostics(outcomes []suite.Outcome) []progress.Diagnostic {
	out := make([]progress.Diagnostic, len(outcomes))
	for i, o := range outcomes {
		out[i] = progress.Diagnostic{ID: string(o.ID), Text: o.Diagnostic}
	}
	return out
}

func testResults(outcomes []suite.Outcome) []TestResult {
	out := make([]TestResult, len(outcomes))
	for i, o := range outcomes {
		out[i] = TestResult{ID: string(o.ID), Diagnostic: o.Diagnostic}
	}
	return out
}
