// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bartekus/testloop/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a configuration and joins every problem found.
func (c Config) Validate() error {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if len(c.Packages) == 0 {
		fail("packages", "at least one package pattern is required")
	}
	for _, p := range c.Packages {
		if strings.TrimSpace(p) == "" {
			fail("packages", "empty package pattern")
		}
	}
	if c.Run != "" {
		if _, err := regexp.Compile(c.Run); err != nil {
			fail("run", "invalid regular expression: %v", err)
		}
	}
	if c.WatchPath == "" {
		fail("watch_path", "must not be empty")
	}
	if c.DebounceDelay < 0 {
		fail("debounce_delay", "must not be negative, got %s", c.DebounceDelay)
	}
	if c.PollInterval <= 0 {
		fail("poll_interval", "must be positive, got %s", c.PollInterval)
	}
	if len(c.SourceExtensions) == 0 {
		fail("source_extensions", "at least one extension is required")
	}
	for _, ext := range append(append([]string{}, c.SourceExtensions...), c.MarkupExtensions...) {
		if !strings.HasPrefix(ext, ".") {
			fail("extensions", "%q must start with a dot", ext)
		}
	}
	if c.TestPrefix == "" && c.TestSuffix == "" {
		fail("test_suffix", "one of test_prefix or test_suffix is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		fail("log_level", "%v", err)
	}

	return errors.Join(errs...)
}
