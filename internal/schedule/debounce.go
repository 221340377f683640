// SPDX-License-Identifier: AGPL-3.0-or-later

package schedule

import (
	"time"

	"github.com/bartekus/testloop/internal/clock"
)

// DefaultDebounceDelay is the window in which further triggers are ignored.
const DefaultDebounceDelay = 5 * time.Second

// Debouncer coalesces bursts of rerun triggers.
//
// The first trigger is always accepted. A later trigger at t is discarded
// when t - last <= delay, and a discarded trigger does not move last, so a
// steady stream of edits re-arms once per window rather than never.
//
// Debouncer is not safe for concurrent use; the scheduler goroutine owns it.
type Debouncer struct {
	delay time.Duration
	clock clock.Clock
	last  time.Time
	armed bool
}

// NewDebouncer creates a Debouncer. A nil clock uses the system clock.
func NewDebouncer(delay time.Duration, clk clock.Clock) *Debouncer {
	return &Debouncer{delay: delay, clock: clock.OrReal(clk)}
}

// Accept reports whether a trigger arriving now should set the rerun signal.
func (d *Debouncer) Accept() bool {
	return d.AcceptAt(d.clock.Now())
}

// AcceptAt is Accept with an explicit timestamp.
func (d *Debouncer) AcceptAt(t time.Time) bool {
	if d.armed && t.Sub(d.last) <= d.delay {
		return false
	}
	d.last = t
	d.armed = true
	return true
}

// Last returns the timestamp of the last accepted trigger.
func (d *Debouncer) Last() (time.Time, bool) {
	return d.last, d.armed
}
