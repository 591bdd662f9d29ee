// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/sigil-dev/modelroute/internal/router"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRouteCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route <task-type> <candidate>...",
		Short: "Rank candidate models for a task type",
		Long: "Score every candidate by capability match and health, then print " +
			"the primary, the fallback order and the full breakdown.",
		Args: cobra.MinimumNArgs(2),
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

			decision, err := app.Router.RouteTask(args[0], args[1:])
			if err != nil {
				return err
			}

			if output != outputTable {
				return writeStructured(cmd.OutOrStdout(), output, decision)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderDecision(decision))
			return err
		},
	}

	cmd.Flags().StringP("output", "o", outputTable, "output format: table, json or yaml")

	return cmd
}

func renderDecision(d *router.Decision) string {
	var b strings.Builder

	primary := d.Primary
	if d.LastResort {
		primary += " " + warnStyle.Render("(last resort: every candidate is below the health floor)")
	}
	fallbacks := "none"
	if len(d.Fallbacks) > 0 {
		fallbacks = strings.Join(d.Fallbacks, ", ")
	}

	fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("task:"), d.TaskType)
	fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("primary:"), primary)
	fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("fallbacks:"), fallbacks)

	headers := []string{"RANK", "MODEL", "SCORE", "MATCH", "CAPABILITY", "HEALTH", "AVG MS", "CALLS"}
	cells := make([][]string, 0, len(d.Ranked))
	for _, c := range d.Ranked {
		healthCell := formatFloat(c.HealthScore)
		if !c.HealthKnown {
			healthCell += " (neutral)"
		} else if c.BelowFloor {
			healthCell += " (floor)"
		}
		latency := "-"
		if c.AvgLatencyMs > 0 {
			latency = formatFloat(c.AvgLatencyMs)
		}
		cells = append(cells, []string{
			fmt.Sprintf("%d", c.Rank),
			c.ModelID,
			formatFloat(c.Score),
			fmt.Sprintf("%.2f", c.CapabilityMatch),
			formatFloat(c.CapabilityScore),
			healthCell,
			latency,
			fmt.Sprintf("%d", c.TotalCalls),
		})
	}
	b.WriteString(newTable(headers, cells, 5).Render())

	return b.String()
}
