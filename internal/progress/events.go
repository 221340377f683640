// SPDX-License-Identifier: AGPL-3.0-or-later

// Package progress carries run progress from the executor to whatever renders it.
package progress

import (
	"sync"
	"time"
)

// Event is one of TaskStarted, Progress, Log or RunFinished.
type Event interface {
	event()
}

// TaskStarted opens a progress task (a suite pass, a reload).
type TaskStarted struct {
	RunID string
	Name  string
	Total int
}

// Progress reports the position inside the current task.
type Progress struct {
	Completed int
	Total     int
	Current   string
	Elapsed   time.Duration
}

// Log is a human-readable line shown above the progress bar.
type Log struct {
	Line string
	// Test and Class are set for "now running" lines so renderers can highlight them.
	Test  string
	Class string
}

// Diagnostic is one error or failure with its output.
type Diagnostic struct {
	ID   string
	Text string
}

// RunFinished closes a run cycle with its summary.
type RunFinished struct {
	RunID     string
	Passed    int
	Skipped   int
	Errors    []Diagnostic
	Failures  []Diagnostic
	Aborted   string
	Escalated bool
	Elapsed   time.Duration
}

// Successful reports whether the run recorded no errors and no failures.
func (r RunFinished) Successful() bool {
	return len(r.Errors) == 0 && len(r.Failures) == 0
}

func (TaskStarted) event() {}
func (Progress) event()    {}
func (Log) event()         {}
func (RunFinished) event() {}

// Sink receives progress events. Implementations must not block for long:
// Emit is called inline by the executor.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans events out to several sinks in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(e)
			}
		}
	})
}

// Recorder keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Logs returns the recorded Log lines.
func (r *Recorder) Logs() []string {
	var lines []string
	for _, e := range r.Events() {
		if l, ok := e.(Log); ok {
			lines = append(lines, l.Line)
		}
	}
	return lines
}

// Last returns the most recent event of type T, if any.
func Last[T Event](r *Recorder) (T, bool) {
	events := r.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if e, ok := events[i].(T); ok {
			return e, true
		}
	}
	var zero T
	return zero, false
}
