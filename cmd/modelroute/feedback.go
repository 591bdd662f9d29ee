// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"github.com/sigil-dev/modelroute/pkg/health"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newFeedbackCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback <model> <score>",
		Short: "Attach a 1-5 feedback score to a model's latest call",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			modelID := strings.TrimSpace(args[0])
			if err := requireModel(modelID); err != nil {
				return err
			}
			score, convErr := strconv.Atoi(args[1])
			if convErr != nil {
				return sigilerr.New(sigilerr.CodeCLIInputInvalid,
					fmt.Sprintf("score must be an integer, got %q", args[1]),
					sigilerr.FieldModel(modelID),
				)
			}
			if score < health.MinFeedbackScore || score > health.MaxFeedbackScore {
				return sigilerr.New(sigilerr.CodeCLIInputInvalid,
					fmt.Sprintf("score must be between %d and %d, got %d", health.MinFeedbackScore, health.MaxFeedbackScore, score),
					sigilerr.FieldModel(modelID),
				)
			}

			var hallucination *bool
			if cmd.Flags().Changed("hallucination") {
				h, _ := cmd.Flags().GetBool("hallucination")
				hallucination = &h
			}

			ctx := cmd.Context()
			app, err := WireApp(ctx, v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeApp(ctx, app, &err)

			if len(app.Profiler.Metrics(modelID)) == 0 {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "no calls recorded for %s, feedback ignored\n", modelID)
				return err
			}
			if err := app.Profiler.RecordFeedback(modelID, score, hallucination); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "recorded feedback %d for %s\n", score, modelID)
			return err
		},
	}

	cmd.Flags().Bool("hallucination", false, "flag the latest call as a hallucination")

	return cmd
}
