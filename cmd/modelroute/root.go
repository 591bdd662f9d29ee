// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"

	"github.com/sigil-dev/modelroute/internal/config"
	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd creates the root modelroute command with all subcommands
// registered. Each root owns its own viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "modelroute",
		Short:         "Health-aware model routing",
		Long:          "modelroute tracks per-model call outcomes and routes tasks to the healthiest capable model.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd, v)
		},
	}

	// Global flags, mapped to viper keys in initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newInitCmd(),
		newHealthCmd(v),
		newRouteCmd(v),
		newRecordCmd(v),
		newFeedbackCmd(v),
		newVersionCmd(),
	)

	return root
}

// initViper applies defaults, env bindings, the config file and flag
// bindings so the precedence is flag > env > file > defaults.
func initViper(cmd *cobra.Command, v *viper.Viper) error {
	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		v.SetConfigName("modelroute")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/modelroute")
		v.AddConfigPath("/etc/modelroute")
		// A missing file is fine; parse or permission errors are not.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := config.BootstrapConfig(nil); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	if err := v.BindPFlag("data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	return nil
}
