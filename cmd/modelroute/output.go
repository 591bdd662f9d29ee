// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var outputFormats = []string{outputTable, outputJSON, outputYAML}

// --- lipgloss styles ---

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func validateOutput(format string) error {
	if !slices.Contains(outputFormats, format) {
		return sigilerr.New(sigilerr.CodeCLIInputInvalid,
			fmt.Sprintf("unknown output format %q (want table, json or yaml)", format),
			sigilerr.Field("output", format),
		)
	}
	return nil
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return sigilerr.Errorf(sigilerr.CodeInternalFailure, "encoding json: %w", err)
		}
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return sigilerr.Errorf(sigilerr.CodeInternalFailure, "encoding yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return sigilerr.Errorf(sigilerr.CodeInternalFailure, "encoding yaml: %w", err)
		}
	default:
		return validateOutput(format)
	}
	return nil
}

// newTable returns a bordered table with styled headers. scoreCol, when
// non-negative, colours that column by health band.
func newTable(headers []string, rows [][]string, scoreCol int) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			if col == scoreCol && row >= 0 && row < len(rows) {
				return bandStyle(rows[row][col]).Padding(0, 1)
			}
			return cellStyle
		})
}

// bandStyle colours a formatted health score: green at 70 and above,
// amber from 40, red below.
func bandStyle(cell string) lipgloss.Style {
	var score float64
	if _, err := fmt.Sscanf(cell, "%g", &score); err != nil {
		return dimStyle
	}
	switch {
	case score >= 70:
		return goodStyle
	case score >= 40:
		return warnStyle
	default:
		return badStyle
	}
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.1f", v)
}
