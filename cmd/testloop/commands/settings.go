// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bartekus/testloop/cmd/testloop/internal/clierr"
	"github.com/bartekus/testloop/internal/config"
	"github.com/bartekus/testloop/internal/logging"
	"github.com/bartekus/testloop/internal/projectroot"
)

// selectionFlags are the flags shared by every command that discovers tests.
type selectionFlags struct {
	packages []string
	run      string
	tags     []string
}

func (f *selectionFlags) register(fs *pflag.FlagSet) {
	fs.StringSliceVarP(&f.packages, "packages", "p", nil, "package patterns to test (default ./...)")
	fs.StringVar(&f.run, "run", "", "only run tests matching this regular expression")
	fs.StringSliceVar(&f.tags, "tags", nil, "build tags")
}

func (f *selectionFlags) apply(fs *pflag.FlagSet, args []string, cfg *config.Config) {
	if fs.Changed("packages") {
		cfg.Packages = f.packages
	}
	if len(args) > 0 {
		cfg.Packages = args
	}
	if fs.Changed("run") {
		cfg.Run = f.run
	}
	if fs.Changed("tags") {
		cfg.Tags = f.tags
	}
}

// settings is the resolved environment of a command.
type settings struct {
	root   string
	config config.Config
	logger *logging.Logger
}

// loadSettings finds the module root and loads the configuration file.
// apply layers command flags on top before validation.
func loadSettings(cmd *cobra.Command, apply func(*config.Config)) (*settings, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root := projectroot.FindOr(wd)

	path, _ := cmd.Flags().GetString("config")
	required := path != ""
	if !required {
		path = filepath.Join(root, config.DefaultFile)
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return nil, clierr.Wrap(clierr.ExitUsage, "invalid configuration", err)
	}
	if apply != nil {
		apply(&cfg)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, clierr.Wrap(clierr.ExitUsage, "invalid configuration", err)
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	jsonLogs, _ := cmd.Flags().GetBool("log-json")
	logger := logging.New(logging.Config{Level: level, Output: cmd.ErrOrStderr(), JSON: jsonLogs})
	logging.SetDefault(logger)

	return &settings{root: root, config: cfg, logger: logger}, nil
}

// resolve anchors a configured path at the module root.
func (s *settings) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, path)
}

func durationFlag(fs *pflag.FlagSet, name string, dst *time.Duration, value time.Duration) {
	if fs.Changed(name) {
		*dst = value
	}
}
