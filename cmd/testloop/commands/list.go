// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bartekus/testloop/internal/config"
	"github.com/bartekus/testloop/internal/gotest"
)

type listedTest struct {
	ID    string `json:"id"`
	Class string `json:"class"`
	Name  string `json:"name"`
}

// NewListCmd constructs the list command.
func NewListCmd() *cobra.Command {
	var (
		selection selectionFlags
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "list [packages...]",
		Short: "List the tests a run would execute, in run order",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, func(cfg *config.Config) { selection.apply(cmd.Flags(), args, cfg) })
			if err != nil {
				return err
			}

			engine, err := gotest.New(gotest.Options{Dir: s.root, Logger: s.logger})
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			cases, err := engine.Discover(cmd.Context(), s.config.Query())
			if err != nil {
				return fmt.Errorf("discovering tests: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				listed := make([]listedTest, 0, len(cases))
				for _, tc := range cases {
					listed = append(listed, listedTest{ID: string(tc.ID), Class: string(tc.Class), Name: tc.Name})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(listed)
			}
			for _, tc := range cases {
				_, _ = fmt.Fprintln(out, tc.ID)
			}
			return nil
		},
	}

	selection.register(cmd.Flags())
	cmd.Flags().BoolVar(&asJSON, "json", false, "print tests as JSON")

	return cmd
}
