// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/bartekus/testloop/cmd/testloop/internal/clierr"
	"github.com/bartekus/testloop/internal/change"
	"github.com/bartekus/testloop/internal/config"
	"github.com/bartekus/testloop/internal/failures"
	"github.com/bartekus/testloop/internal/gotest"
	"github.com/bartekus/testloop/internal/metrics"
	"github.com/bartekus/testloop/internal/progress"
	"github.com/bartekus/testloop/internal/runner"
	"github.com/bartekus/testloop/internal/schedule"
	"github.com/bartekus/testloop/internal/watch"
)

type runFlags struct {
	selection     selectionFlags
	watch         bool
	failedOnly    bool
	failFast      bool
	watchPath     string
	debounceDelay time.Duration
	pollInterval  time.Duration
	reportDir     string
	metricsAddr   string
}

// NewRunCmd constructs the run command.
func NewRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [packages...]",
		Short: "Run tests, optionally rerunning them on every change",
		Long: `Run the module's tests once, or with --watch keep rerunning them as files change.

With --failed-only (the default) a run first re-checks the tests that failed
last time and confirms with the full suite once they pass.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, func(cfg *config.Config) { f.apply(cmd, args, cfg) })
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLoop(ctx, cmd.OutOrStdout(), s)
		},
	}

	fs := cmd.Flags()
	f.selection.register(fs)
	fs.BoolVarP(&f.watch, "watch", "w", false, "keep running and rerun tests on changes")
	fs.BoolVar(&f.failedOnly, "failed-only", true, "re-check previous failures before the full suite")
	fs.BoolVar(&f.failFast, "fail-fast", false, "stop a run at the first error or failure")
	fs.StringVar(&f.watchPath, "watch-path", ".", "directory to watch")
	fs.DurationVar(&f.debounceDelay, "debounce", config.DefaultDebounceDelay, "ignore further changes for this long after a trigger")
	fs.DurationVar(&f.pollInterval, "poll-interval", config.DefaultPollInterval, "how often pending reruns are checked")
	fs.StringVar(&f.reportDir, "report-dir", config.DefaultReportDir, "directory for last-run.json (empty disables)")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func (f *runFlags) apply(cmd *cobra.Command, args []string, cfg *config.Config) {
	fs := cmd.Flags()
	f.selection.apply(fs, args, cfg)
	if fs.Changed("watch") {
		cfg.Watch = f.watch
	}
	if fs.Changed("failed-only") {
		cfg.FailedOnly = f.failedOnly
	}
	if fs.Changed("fail-fast") {
		cfg.FailFast = f.failFast
	}
	if fs.Changed("watch-path") {
		cfg.WatchPath = f.watchPath
	}
	durationFlag(fs, "debounce", &cfg.DebounceDelay, f.debounceDelay)
	durationFlag(fs, "poll-interval", &cfg.PollInterval, f.pollInterval)
	if fs.Changed("report-dir") {
		cfg.ReportDir = f.reportDir
	}
	if fs.Changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
}

func runLoop(ctx context.Context, out io.Writer, s *settings) error {
	cfg := s.config
	logger := s.logger

	var reg *metrics.Registry
	if cfg.MetricsAddr != "" {
		reg = metrics.New()
		go func() {
			if err := reg.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	// The watcher is set up first so a bad watch path fails before any run.
	var (
		source     schedule.Source
		classifier schedule.Classifier
	)
	if cfg.Watch {
		w, err := watch.New(s.resolve(cfg.WatchPath), watch.Options{
			ExcludeDirs: cfg.ExcludeDirs,
			Logger:      logger,
			Metrics:     reg,
		})
		if err != nil {
			return clierr.Wrap(clierr.ExitWatcher, "cannot watch "+cfg.WatchPath, err)
		}
		if err := w.Start(ctx); err != nil {
			_ = w.Stop()
			return clierr.Wrap(clierr.ExitWatcher, "cannot watch "+cfg.WatchPath, err)
		}
		defer func() { _ = w.Stop() }()
		source = w
		classifier = change.NewClassifier(cfg.Rules(w.Root()))
	}

	engine, err := gotest.New(gotest.Options{Dir: s.root, Logger: logger})
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	var store *runner.StateStore
	if cfg.ReportDir != "" {
		store = runner.NewStateStore(s.resolve(cfg.ReportDir))
	}

	r := runner.NewRunner(runner.Deps{
		Engine:  engine,
		Sink:    progress.NewConsole(out, progress.ConsoleOptions{Live: isTerminal(out)}),
		Store:   store,
		Metrics: reg,
		Logger:  logger,
	}, runner.Options{
		Mode:     cfg.Mode(),
		FailFast: cfg.FailFast,
		Query:    cfg.Query(),
	})

	sched := schedule.New(schedule.Config{
		Watch:         cfg.Watch,
		DebounceDelay: cfg.DebounceDelay,
		PollInterval:  cfg.PollInterval,
		Logger:        logger,
		Metrics:       reg,
	}, source, classifier, r.Cycle)

	final, err := sched.Run(ctx, failures.Set{})
	if err != nil {
		return err
	}
	if !cfg.Watch && ctx.Err() == nil && !final.Empty() {
		return clierr.Newf(clierr.ExitFailure, "%d tests did not pass", final.Len())
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
