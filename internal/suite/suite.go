// SPDX-License-Identifier: AGPL-3.0-or-later

// Package suite defines the contract with the test engine and executes an
// ordered list of test cases on top of it.
package suite

import (
	"context"
	"errors"
)

// TestID uniquely and stably identifies one test case within an engine.
type TestID string

// ClassID identifies a group of tests sharing setup and teardown.
type ClassID string

// TestCase is one discovered test.
type TestCase struct {
	ID    TestID
	Name  string
	Class ClassID
	// Seq is the engine's canonical ordering key. Tests of one class must
	// have adjacent keys.
	Seq int
}

// Query selects which tests discovery returns.
type Query struct {
	// Packages are the module selection (for Go, package patterns).
	Packages []string
	// Run filters test names by regular expression.
	Run string
	// Tags are engine-specific selection tags (for Go, build tags).
	Tags []string
}

// Engine discovers and runs tests.
type Engine interface {
	Discover(ctx context.Context, q Query) ([]TestCase, error)
	// RunOne executes tc and records its outcome in result.
	RunOne(ctx context.Context, tc TestCase, result *Result)
	// ClassSetup prepares a class; a non-nil error marks every member as not runnable.
	ClassSetup(ctx context.Context, class ClassID) error
	ClassTeardown(ctx context.Context, class ClassID)
}

// Reloader is implemented by engines that cache compiled or discovered state.
type Reloader interface {
	// Invalidate drops cached state derived from the named module.
	Invalidate(module string)
	// Reload brings the engine back in line with the source tree.
	Reload(ctx context.Context) error
}

var (
	// ErrStaleRun cancels a run because a newer change made it irrelevant.
	ErrStaleRun = errors.New("stale run: newer changes detected")
	// ErrInterrupted cancels a run because the user asked to stop.
	ErrInterrupted = errors.New("interrupted")
)
