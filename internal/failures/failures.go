// SPDX-License-Identifier: AGPL-3.0-or-later

// Package failures decides which tests the next run targets.
//
// Everything here is a pure function of the previous failure set, the run
// mode and the latest result: the caller threads the Set from one run into
// the next.
package failures

import (
	"slices"

	"github.com/bartekus/testloop/internal/suite"
)

// Mode selects how a run picks its tests.
type Mode int

const (
	// FailedOnly re-checks the previous failures first and falls back to a
	// full run once they pass (or when there are none).
	FailedOnly Mode = iota
	// Full always runs the whole selection.
	Full
)

func (m Mode) String() string {
	if m == Full {
		return "full"
	}
	return "failed-only"
}

// ModeFor maps the failed-only switch to a Mode.
func ModeFor(failedOnly bool) Mode {
	if failedOnly {
		return FailedOnly
	}
	return Full
}

// Set is an ordered, duplicate-free list of test identifiers.
// The zero value is an empty set.
type Set struct {
	ids  []suite.TestID
	seen map[suite.TestID]struct{}
}

// NewSet builds a Set keeping the first occurrence of each id.
func NewSet(ids ...suite.TestID) Set {
	s := Set{seen: make(map[suite.TestID]struct{}, len(ids))}
	for _, id := range ids {
		if _, ok := s.seen[id]; ok {
			continue
		}
		s.seen[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
	return s
}

// FromResult collects errors then failures, in accumulation order.
func FromResult(r *suite.Result) Set {
	ids := make([]suite.TestID, 0, len(r.Errors)+len(r.Failures))
	for _, o := range r.Errors {
		ids = append(ids, o.ID)
	}
	for _, o := range r.Failures {
		ids = append(ids, o.ID)
	}
	return NewSet(ids...)
}

// Len returns the number of identifiers.
func (s Set) Len() int { return len(s.ids) }

// Empty reports whether the set has no identifiers.
func (s Set) Empty() bool { return len(s.ids) == 0 }

// Contains reports whether id is in the set.
func (s Set) Contains(id suite.TestID) bool {
	_, ok := s.seen[id]
	return ok
}

// IDs returns a copy of the identifiers in insertion order.
func (s Set) IDs() []suite.TestID {
	return slices.Clone(s.ids)
}

// Strings returns the identifiers as strings.
func (s Set) Strings() []string {
	out := make([]string, len(s.ids))
	for i, id := range s.ids {
		out[i] = string(id)
	}
	return out
}

// Selection is the plan for one suite pass.
type Selection struct {
	// Narrow is true when only Targets should run.
	Narrow  bool
	Targets Set
}

// Select returns a full selection when mode is Full or prev is empty,
// otherwise a narrow selection over prev.
func Select(mode Mode, prev Set) Selection {
	if mode == Full || prev.Empty() {
		return Selection{}
	}
	return Selection{Narrow: true, Targets: prev}
}

// Filter keeps the cases a selection targets, in their original order.
// A class identifier in the targets (recorded when class setup failed)
// selects every member of that class.
func (s Selection) Filter(cases []suite.TestCase) []suite.TestCase {
	if !s.Narrow {
		return slices.Clone(cases)
	}
	var out []suite.TestCase
	for _, tc := range cases {
		if s.Targets.Contains(tc.ID) || s.Targets.Contains(suite.TestID(tc.Class)) {
			out = append(out, tc)
		}
	}
	return out
}

// Escalate reports whether a narrow pass came back clean, in which case a
// full confirmation pass must follow.
func Escalate(sel Selection, r *suite.Result) bool {
	return sel.Narrow && len(r.Errors) == 0 && len(r.Failures) == 0
}
