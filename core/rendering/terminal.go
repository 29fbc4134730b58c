/*
SPDX-License-Identifier: Apache-2.0

Copyright 2024 The Taxinomia Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package rendering

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/pivotengine/core/views"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
	totalStyle  = cellStyle.Bold(true)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#888888", Dark: "#5C5F77"})
)

// TerminalHeaders flattens the column bands into one header per output
// column, joining the band labels of each column with " / ".
func TerminalHeaders(vm views.TableViewModel) []string {
	headers := make([]string, 0, len(vm.RowHeaders)+len(vm.ColumnKeyIDs))
	for _, h := range vm.RowHeaders {
		headers = append(headers, h.Label)
	}
	parts := make([][]string, len(vm.ColumnKeyIDs))
	for _, band := range vm.ColumnBands {
		j := 0
		for _, cell := range band {
			for k := 0; k < cell.Span && j < len(parts); k++ {
				if cell.Label != "" {
					parts[j] = append(parts[j], cell.Label)
				}
				j++
			}
		}
	}
	for _, p := range parts {
		headers = append(headers, strings.Join(p, " / "))
	}
	return headers
}

// RenderTerminal writes the pivot table as a bordered text table.
func RenderTerminal(w io.Writer, vm views.TableViewModel) error {
	labels := len(vm.RowHeaders)
	rows := make([][]string, len(vm.Rows))
	totals := make([]bool, len(vm.Rows))
	for i, r := range vm.Rows {
		row := make([]string, 0, len(r.Labels)+len(r.Cells))
		row = append(row, r.Labels...)
		for _, c := range r.Cells {
			row = append(row, c.Text)
		}
		rows[i] = row
		totals[i] = r.IsTotal
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(TerminalHeaders(vm)...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col < labels:
				return labelStyle
			case row >= 0 && row < len(totals) && totals[row]:
				return totalStyle
			}
			return cellStyle
		})

	if vm.Title != "" {
		if _, err := fmt.Fprintln(w, headerStyle.Render(vm.Title)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
