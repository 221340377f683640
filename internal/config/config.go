// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads testloop settings from .testloop.yaml.
//
// Precedence is defaults, then the file, then command-line flags; the CLI
// applies flags on top of the value returned by Load.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bartekus/testloop/internal/change"
	"github.com/bartekus/testloop/internal/failures"
	"github.com/bartekus/testloop/internal/scanner"
	"github.com/bartekus/testloop/internal/suite"
)

// DefaultFile is looked up in the project root when --config is not given.
const DefaultFile = ".testloop.yaml"

// Default configuration values.
const (
	DefaultDebounceDelay = 5 * time.Second
	DefaultPollInterval  = time.Second
	DefaultTestSuffix    = "_test"
	DefaultLogLevel      = "info"
	DefaultReportDir     = ".testloop"
)

// Config is the full testloop configuration.
type Config struct {
	// Packages selects the packages to test (go package patterns).
	Packages []string `yaml:"packages"`
	// Run filters top-level test names by regular expression.
	Run  string   `yaml:"run"`
	Tags []string `yaml:"tags"`

	WatchPath  string `yaml:"watch_path"`
	FailFast   bool   `yaml:"fail_fast"`
	Watch      bool   `yaml:"watch"`
	FailedOnly bool   `yaml:"failed_only"`

	DebounceDelay time.Duration `yaml:"debounce_delay"`
	PollInterval  time.Duration `yaml:"poll_interval"`

	ExcludeDirs      []string `yaml:"exclude_dirs"`
	SourceExtensions []string `yaml:"source_extensions"`
	MarkupExtensions []string `yaml:"markup_extensions"`
	TestPrefix       string   `yaml:"test_prefix"`
	TestSuffix       string   `yaml:"test_suffix"`

	ReportDir   string `yaml:"report_dir"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	rules := change.DefaultRules()
	return Config{
		Packages:         []string{"./..."},
		WatchPath:        ".",
		FailedOnly:       true,
		DebounceDelay:    DefaultDebounceDelay,
		PollInterval:     DefaultPollInterval,
		ExcludeDirs:      scanner.DefaultExcludeDirs(),
		SourceExtensions: rules.SourceExtensions,
		MarkupExtensions: rules.MarkupExtensions,
		TestSuffix:       DefaultTestSuffix,
		ReportDir:        DefaultReportDir,
		LogLevel:         DefaultLogLevel,
	}
}

// Load reads path over the defaults. A missing file is an error only when
// required is true.
func Load(path string, required bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Rules returns the change classification rules for this configuration.
func (c Config) Rules(root string) change.Rules {
	return change.Rules{
		SourceExtensions: c.SourceExtensions,
		MarkupExtensions: c.MarkupExtensions,
		ExcludeDirs:      c.ExcludeDirs,
		Root:             root,
		TestPrefix:       c.TestPrefix,
		TestSuffix:       c.TestSuffix,
	}
}

// Mode returns the run mode selected by FailedOnly.
func (c Config) Mode() failures.Mode {
	return failures.ModeFor(c.FailedOnly)
}

// Query returns the discovery query.
func (c Config) Query() suite.Query {
	return suite.Query{Packages: c.Packages, Run: c.Run, Tags: c.Tags}
}
