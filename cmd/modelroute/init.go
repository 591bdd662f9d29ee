// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/sigil-dev/modelroute/internal/config"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default config file",
		Long:  "Write the commented default config to path, or to ~/.config/modelroute/modelroute.yaml. An existing file is left untouched.",
		Args:  cobra.MaximumNArgs(1),
		// Skip the root config discovery so init never bootstraps a file itself.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				p, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = p
			}

			wrote, err := config.WriteDefaultConfig(path)
			if err != nil {
				return err
			}
			if !wrote {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "config already exists at %s\n", path)
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", path)
			return err
		},
	}
}
