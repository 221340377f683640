// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Testloop - a watch-mode test runner for Go modules.
It reruns the tests affected by your edits, re-checks previous failures first,
and confirms with the full suite once they pass.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd constructs the testloop root Cobra command.
func NewRootCmd() *cobra.Command {
	version := os.Getenv("TESTLOOP_VERSION")
	if version == "" {
		version = "0.0.0-dev"
	}

	cmd := &cobra.Command{
		Use:           "testloop",
		Short:         "Testloop - rerun Go tests as you edit",
		Long:          "Testloop runs a module's tests, watches the source tree and reruns previously failing tests first on every change.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	cmd.PersistentFlags().String("config", "", "config file (default <module root>/.testloop.yaml)")
	cmd.PersistentFlags().Bool("log-json", false, "write diagnostic logs as JSON")
	cmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of testloop",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "testloop version %s\n", version)
		},
	})

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewReportCmd())
	cmd.AddCommand(NewResetCmd())

	return cmd
}
