// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bartekus/testloop/internal/config"
	"github.com/bartekus/testloop/internal/runner"
)

// reportStore resolves the state directory from --report-dir or the config.
func reportStore(cmd *cobra.Command) (*runner.StateStore, error) {
	s, err := loadSettings(cmd, func(cfg *config.Config) {
		if cmd.Flags().Changed("report-dir") {
			cfg.ReportDir, _ = cmd.Flags().GetString("report-dir")
		}
	})
	if err != nil {
		return nil, err
	}
	if s.config.ReportDir == "" {
		return nil, fmt.Errorf("no report directory configured")
	}
	return runner.NewStateStore(s.resolve(s.config.ReportDir)), nil
}

// NewReportCmd constructs the report command.
func NewReportCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the summary of the last run",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := reportStore(cmd)
			if err != nil {
				return err
			}
			last, err := store.ReadLastRun()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if last == nil {
				_, _ = fmt.Fprintln(out, "No run recorded yet.")
				return nil
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(last)
			}
			printLastRun(out, last)
			return nil
		},
	}

	cmd.Flags().String("report-dir", config.DefaultReportDir, "directory holding last-run.json")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw report")

	return cmd
}

func printLastRun(w io.Writer, last *runner.LastRun) {
	_, _ = fmt.Fprintf(w, "Run %s: %s (%s", last.RunID, last.Status, last.Mode)
	if last.Narrow {
		_, _ = fmt.Fprint(w, ", previously failed only")
	}
	if last.Escalated {
		_, _ = fmt.Fprint(w, ", escalated to full suite")
	}
	_, _ = fmt.Fprintln(w, ")")
	_, _ = fmt.Fprintf(w, "Started %s, took %s\n", last.StartedAt.Format("2006-01-02 15:04:05"), last.Duration)
	if last.Aborted != "" {
		_, _ = fmt.Fprintf(w, "Aborted: %s\n", last.Aborted)
	}
	_, _ = fmt.Fprintf(w, "Ran %d of %d: %d passed, %d skipped, %d errors, %d failures\n",
		last.Completed, last.Total, last.Passed, last.Skipped, len(last.Errors), len(last.Failures))
	for _, e := range last.Errors {
		_, _ = fmt.Fprintf(w, "  ERROR %s: %s\n", e.ID, e.Diagnostic)
	}
	for _, f := range last.Failures {
		_, _ = fmt.Fprintf(w, "  FAIL  %s: %s\n", f.ID, f.Diagnostic)
	}
}

// NewResetCmd constructs the reset command.
func NewResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the recorded run state",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := reportStore(cmd)
			if err != nil {
				return err
			}
			if err := store.Reset(); err != nil {
				return fmt.Errorf("removing %s: %w", store.Dir(), err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", store.Dir())
			return nil
		},
	}

	cmd.Flags().String("report-dir", config.DefaultReportDir, "directory holding last-run.json")

	return cmd
}
