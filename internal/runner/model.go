// SPDX-License-Identifier: AGPL-3.0-or-later

package runner

import "time"

// Status is the overall verdict of a run cycle.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusAborted Status = "aborted"
	StatusError   Status = "error"
)

// TestResult is one error or failure in the report.
type TestResult struct {
	ID         string `json:"id"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// LastRun is the summary of the most recent run cycle.
// Matches .testloop/last-run.json. It is written for people and tooling;
// the loop itself never reads it back.
type LastRun struct {
	RunID     string       `json:"run_id"`
	Status    Status       `json:"status"`
	Mode      string       `json:"mode"`
	Narrow    bool         `json:"narrow"`
	Escalated bool         `json:"escalated"`
	Aborted   string       `json:"aborted,omitempty"`
	StartedAt time.Time    `json:"started_at"`
	Duration  string       `json:"duration"`
	Total     int          `json:"total"`
	Completed int          `json:"completed"`
	Passed    int          `json:"passed"`
	Skipped   int          `json:"skipped"`
	Errors    []TestResult `json:"errors"`
	Failures  []TestResult `json:"failures"`
	// Failed is the failure set carried into the next run.
	Failed []string `json:"failed"`
}
