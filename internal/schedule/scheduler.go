// SPDX-License-Identifier: AGPL-3.0-or-later

// Package schedule turns a stream of file changes into test runs.
//
// A single goroutine owns every piece of loop state: the debouncer, the
// pending flag, accumulated reload requirements and the value threaded from
// one run into the next. The watcher only sends events.
package schedule

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"github.com/bartekus/testloop/internal/change"
	"github.com/bartekus/testloop/internal/clock"
	"github.com/bartekus/testloop/internal/logging"
	"github.com/bartekus/testloop/internal/metrics"
	"github.com/bartekus/testloop/internal/suite"
)

// DefaultPollInterval is how often the pending flag is checked.
const DefaultPollInterval = time.Second

// State is the scheduler's lifecycle state.
type State int32

const (
	Idle State = iota
	Running
	AwaitingNextTick
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case AwaitingNextTick:
		return "awaiting-next-tick"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Source delivers file changes. The watcher implements it.
type Source interface {
	Events() <-chan change.Event
	Errors() <-chan error
	Stop() error
}

// Classifier maps an event to a decision.
type Classifier interface {
	Classify(ev change.Event) change.Decision
}

// Request carries what a run must do before executing tests.
type Request struct {
	// Reload is set when a non-test source or a markup file changed.
	Reload bool
	// Invalidate lists changed modules, in first-seen order.
	Invalidate []string
}

func (r *Request) merge(d change.Decision) {
	if d.Reload {
		r.Reload = true
	}
	if d.Module != "" && !slices.Contains(r.Invalidate, d.Module) {
		r.Invalidate = append(r.Invalidate, d.Module)
	}
}

// RunFunc executes one run. It receives the value returned by the previous
// successful run and returns the next one. ctx is cancelled with
// suite.ErrStaleRun or suite.ErrInterrupted as cause when the run should stop
// at the next test boundary.
type RunFunc[S any] func(ctx context.Context, prev S, req Request) (S, error)

// Config configures a Scheduler.
type Config struct {
	// Watch enables the change loop. When false the scheduler runs once.
	Watch         bool
	DebounceDelay time.Duration
	PollInterval  time.Duration
	Clock         clock.Clock
	Logger        *logging.Logger
	Metrics       *metrics.Registry
	// Ticks replaces the PollInterval ticker when set.
	Ticks <-chan time.Time
}

// Scheduler drives runs from file changes.
type Scheduler[S any] struct {
	cfg        Config
	source     Source
	classifier Classifier
	run        RunFunc[S]
	debouncer  *Debouncer
	logger     *logging.Logger
	state      atomic.Int32
}

// New creates a Scheduler. source and classifier may be nil when watching
// is disabled.
func New[S any](cfg Config, source Source, classifier Classifier, run RunFunc[S]) *Scheduler[S] {
	if cfg.DebounceDelay < 0 {
		cfg.DebounceDelay = 0
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Scheduler[S]{
		cfg:        cfg,
		source:     source,
		classifier: classifier,
		run:        run,
		debouncer:  NewDebouncer(cfg.DebounceDelay, cfg.Clock),
		logger:     logging.OrDefault(cfg.Logger).WithComponent("schedule"),
	}
}

// State returns the current lifecycle state.
func (s *Scheduler[S]) State() State {
	return State(s.state.Load())
}

func (s *Scheduler[S]) setState(st State) {
	s.state.Store(int32(st))
}

type runDone[S any] struct {
	next S
	req  Request
	err  error
}

// Run executes the baseline run and, when watching, keeps rerunning on
// changes until ctx is cancelled. It returns the value of the last
// successful run.
//
// Cancellation of ctx is an orderly stop: the run in flight is asked to
// stop at its next test boundary, awaited, the source is stopped and Run
// returns a nil error. Without watching, the error of the single run is
// returned.
func (s *Scheduler[S]) Run(ctx context.Context, initial S) (S, error) {
	defer s.setState(Stopped)

	if !s.cfg.Watch || s.source == nil {
		return s.runOnce(ctx, initial)
	}
	defer func() {
		if err := s.source.Stop(); err != nil {
			s.logger.Warn("stopping watcher", "error", err)
		}
	}()

	var (
		current  = initial
		req      Request
		pending  = true
		inflight chan runDone[S]
		cancel   context.CancelCauseFunc
	)

	start := func() {
		pending = false
		r := req
		req = Request{}
		s.setState(Running)

		var runCtx context.Context
		runCtx, cancel = context.WithCancelCause(context.WithoutCancel(ctx))
		inflight = make(chan runDone[S], 1)
		done, prev := inflight, current
		go func() {
			next, err := s.run(runCtx, prev, r)
			done <- runDone[S]{next: next, req: r, err: err}
		}()
	}

	finish := func(d runDone[S]) {
		inflight = nil
		cancel(nil)
		if d.err != nil {
			switch {
			case errors.Is(d.err, suite.ErrStaleRun):
				s.logger.Debug("run superseded by newer changes", "error", d.err)
			case errors.Is(d.err, suite.ErrInterrupted):
				s.logger.Debug("run interrupted", "error", d.err)
			default:
				s.logger.Error("run failed", "error", d.err)
			}
			// Requirements the failed run could not satisfy carry over.
			req.Reload = req.Reload || d.req.Reload
			for _, m := range d.req.Invalidate {
				req.merge(change.Decision{Module: m})
			}
			return
		}
		current = d.next
	}

	ticks := s.cfg.Ticks
	if ticks == nil {
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	events, errs := s.source.Events(), s.source.Errors()
	start()

	for {
		select {
		case <-ctx.Done():
			if inflight != nil {
				s.logger.Info("interrupt received, stopping after current test")
				cancel(suite.ErrInterrupted)
				finish(<-inflight)
			}
			return current, nil

		case ev, ok := <-events:
			if !ok {
				s.logger.Warn("watcher closed its event stream, no further changes will be seen")
				events = nil
				continue
			}
			if s.observe(ev, &req) {
				pending = true
				if inflight != nil {
					cancel(suite.ErrStaleRun)
				}
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("watcher error", "error", err)

		case d := <-inflight:
			finish(d)
			s.setState(AwaitingNextTick)

		case <-ticks:
			if inflight == nil && pending {
				start()
			}
		}
	}
}

func (s *Scheduler[S]) runOnce(ctx context.Context, initial S) (S, error) {
	s.setState(Running)
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	defer cancel(nil)
	stop := context.AfterFunc(ctx, func() { cancel(suite.ErrInterrupted) })
	defer stop()

	next, err := s.run(runCtx, initial, Request{})
	if err != nil {
		if errors.Is(context.Cause(runCtx), suite.ErrInterrupted) {
			return initial, nil
		}
		return initial, err
	}
	return next, nil
}

// observe folds one event into req and reports whether it is an accepted
// rerun trigger.
func (s *Scheduler[S]) observe(ev change.Event, req *Request) bool {
	d := s.classifier.Classify(ev)
	if !d.Relevant() {
		return false
	}
	req.merge(d)
	if !d.Rerun {
		s.logger.Debug("reload required", "path", ev.Path)
		return false
	}
	if !s.debouncer.Accept() {
		s.cfg.Metrics.EventDebounced()
		s.logger.Debug("change debounced", "path", ev.Path)
		return false
	}
	s.cfg.Metrics.RerunTriggered()
	s.logger.Info("change detected", "path", ev.Path, "module", d.Module)
	return true
}
