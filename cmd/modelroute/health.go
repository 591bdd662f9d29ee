// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"time"

	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"github.com/sigil-dev/modelroute/pkg/health"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// healthRow is one model in the health report. Health is nil when the
// model has no metrics inside the retention window.
type healthRow struct {
	ModelID string              `json:"model_id" yaml:"model_id"`
	Healthy bool                `json:"healthy" yaml:"healthy"`
	Health  *health.ModelHealth `json:"health" yaml:"health"`
}

func newHealthCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health [model...]",
		Short: "Show model health derived from recorded metrics",
		Long: "Show the health of the given models, or of every model with " +
			"in-window metrics when none are given, sorted by health score.",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			output, _ := cmd.Flags().GetString("output")
			if err := validateOutput(output); err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := WireApp(ctx, v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeApp(ctx, app, &err)

			rows := healthRows(app, args)
			if output != outputTable {
				return writeStructured(cmd.OutOrStdout(), output, rows)
			}

			if len(rows) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no models tracked yet")
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderHealth(rows))
			return err
		},
	}

	cmd.Flags().StringP("output", "o", outputTable, "output format: table, json or yaml")

	return cmd
}

func healthRows(app *App, models []string) []healthRow {
	if len(models) == 0 {
		all := app.Profiler.AllModelHealth()
		rows := make([]healthRow, 0, len(all))
		for i := range all {
			h := all[i]
			rows = append(rows, healthRow{
				ModelID: h.ModelID,
				Healthy: app.Profiler.IsModelHealthy(h.ModelID),
				Health:  &h,
			})
		}
		return rows
	}

	rows := make([]healthRow, 0, len(models))
	for _, id := range models {
		rows = append(rows, healthRow{
			ModelID: id,
			Healthy: app.Profiler.IsModelHealthy(id),
			Health:  app.Profiler.ModelHealth(id),
		})
	}
	return rows
}

func renderHealth(rows []healthRow) string {
	headers := []string{"MODEL", "SCORE", "CALLS", "SUCCESS", "AVG MS", "P95 MS", "FEEDBACK", "HALLUC", "COST", "LAST USED"}
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		h := r.Health
		if h == nil {
			cells = append(cells, []string{r.ModelID, "-", "0", "-", "-", "-", "-", "-", "-", "no data"})
			continue
		}
		cells = append(cells, []string{
			r.ModelID,
			formatFloat(h.HealthScore),
			fmt.Sprintf("%d", h.TotalCalls),
			fmt.Sprintf("%.0f%%", h.SuccessRate*100),
			formatFloat(h.AvgLatencyMs),
			formatFloat(h.P95LatencyMs),
			fmt.Sprintf("%.2f", h.AvgFeedback),
			fmt.Sprintf("%.0f%%", h.HallucinationRate*100),
			fmt.Sprintf("%.4f", h.TotalCost),
			h.LastUsed.Format(time.RFC3339),
		})
	}
	return newTable(headers, cells, 1).Render()
}

// requireModel rejects blank model ids before the app is wired.
func requireModel(id string) error {
	if id == "" {
		return sigilerr.New(sigilerr.CodeCLIInputInvalid, "model id is required")
	}
	return nil
}
