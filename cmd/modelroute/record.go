// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/sigil-dev/modelroute/pkg/health"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRecordCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record <model>",
		Short: "Append a call outcome for a model",
		Long: "Append one metric for a model and write the snapshot. Useful for " +
			"backfilling history and smoke-testing routing decisions.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			modelID := strings.TrimSpace(args[0])
			if err := requireModel(modelID); err != nil {
				return err
			}

			latency, _ := cmd.Flags().GetDuration("latency")
			success, _ := cmd.Flags().GetBool("success")
			tokens, _ := cmd.Flags().GetInt("tokens")
			cost, _ := cmd.Flags().GetFloat64("cost")

			ctx := cmd.Context()
			app, err := WireApp(ctx, v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeApp(ctx, app, &err)

			metric := health.ModelMetric{
				LatencyMs: float64(latency) / float64(time.Millisecond),
				Success:   success,
				Tokens:    tokens,
				Cost:      cost,
			}
			if err := app.Profiler.RecordMetric(modelID, metric); err != nil {
				return err
			}

			outcome := "success"
			if !success {
				outcome = "failure"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "recorded %s for %s (%s)\n", outcome, modelID, latency)
			return err
		},
	}

	cmd.Flags().Duration("latency", 0, "call latency, e.g. 850ms")
	cmd.Flags().Bool("success", true, "whether the call succeeded")
	cmd.Flags().Int("tokens", 0, "tokens used")
	cmd.Flags().Float64("cost", 0, "call cost")

	return cmd
}
