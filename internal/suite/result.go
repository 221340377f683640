// SPDX-License-Identifier: AGPL-3.0-or-later

package suite

// Outcome is one recorded error or failure.
type Outcome struct {
	ID         TestID
	Diagnostic string
}

// Result accumulates outcomes over a run. It is owned by a single run and
// is not safe for concurrent use.
type Result struct {
	// Errors are unexpected breakages: panics, build failures, class setup failures.
	Errors []Outcome
	// Failures are failed assertions.
	Failures []Outcome
	Passed   []TestID
	Skipped  []TestID
}

// NewResult returns an empty accumulator.
func NewResult() *Result {
	return &Result{}
}

// AddError records an error.
func (r *Result) AddError(id TestID, diagnostic string) {
	r.Errors = append(r.Errors, Outcome{ID: id, Diagnostic: diagnostic})
}

// AddFailure records a failure.
func (r *Result) AddFailure(id TestID, diagnostic string) {
	r.Failures = append(r.Failures, Outcome{ID: id, Diagnostic: diagnostic})
}

// AddSuccess records a pass.
func (r *Result) AddSuccess(id TestID) {
	r.Passed = append(r.Passed, id)
}

// AddSkip records a test that was not executed.
func (r *Result) AddSkip(id TestID) {
	r.Skipped = append(r.Skipped, id)
}

// WasSuccessful reports whether nothing errored or failed.
func (r *Result) WasSuccessful() bool {
	return len(r.Errors) == 0 && len(r.Failures) == 0
}
