// SPDX-License-Identifier: AGPL-3.0-or-later

// Package clierr carries process exit codes through ordinary error values,
// so commands return errors and only main decides how the process ends.
package clierr

import (
	"errors"
	"fmt"
)

// Exit codes of the testloop binary.
const (
	ExitFailure = 1 // tests did not pass, or an unexpected error
	ExitUsage   = 2 // invalid flags or configuration
	ExitWatcher = 3 // the watch path could not be watched
)

// ExitCoder is implemented by errors that choose the process exit code.
type ExitCoder interface {
	error
	ExitCode() int
}

// ExitError pairs a message and an optional cause with an exit code.
type ExitError struct {
	Code  int
	Msg   string
	Cause error
}

func (e *ExitError) Error() string {
	if e.Cause == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Cause.Error()
}

func (e *ExitError) ExitCode() int { return e.Code }

func (e *ExitError) Unwrap() error { return e.Cause }

func newExitError(code int, msg string, cause error) *ExitError {
	if code <= 0 {
		code = ExitFailure
	}
	return &ExitError{Code: code, Msg: msg, Cause: cause}
}

// New returns an error exiting with code.
func New(code int, msg string) error {
	return newExitError(code, msg, nil)
}

// Newf is New with a format string.
func Newf(code int, format string, args ...any) error {
	return newExitError(code, fmt.Sprintf(format, args...), nil)
}

// Wrap attaches code to cause. A nil cause behaves like New.
func Wrap(code int, msg string, cause error) error {
	return newExitError(code, msg, cause)
}

// ExitCodeOf maps err to a process exit code. Errors without an ExitCoder
// in their chain exit with ExitFailure.
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var ec ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return ExitFailure
}
