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

// Package views turns an engine's output into display-ready models shared
// by the HTML, terminal and JSON renderers.
package views

import (
	"math"
	"strconv"

	"github.com/google/pivotengine/core/aggregates"
	"github.com/google/pivotengine/core/fields"
	"github.com/google/pivotengine/core/pivot"
	"github.com/google/pivotengine/core/query"
	"github.com/google/pivotengine/core/values"
	"github.com/google/safehtml"
)

const (
	TotalLabel      = "Total"
	GrandTotalLabel = "Grand Total"
)

// TableViewModel contains a built pivot table formatted for template consumption
type TableViewModel struct {
	Title      string       `json:"title"`
	State      string       `json:"state"`
	CurrentURL safehtml.URL `json:"-"`

	RowHeaders  []HeaderCell `json:"rowHeaders"`  // One per row field
	ColumnBands [][]BandCell `json:"columnBands"` // One per column field, then value fields
	Rows        []RowModel   `json:"rows"`

	Fields          []FieldInfo  `json:"fields"`
	ShowZeros       bool         `json:"showZeros"`
	ShowZerosURL    safehtml.URL `json:"-"`
	RowTotals       string       `json:"rowTotals"`
	ColumnTotals    string       `json:"columnTotals"`
	TotalsOptions   []TotalsLink `json:"-"`
	RecordCount     int          `json:"recordCount"`
	ViewDefined     bool         `json:"viewDefined"`
	ColumnKeyIDs    []string     `json:"columnIds"`
	ColumnSortLinks []HeaderCell `json:"-"`
}

// HeaderCell is a sortable header.
type HeaderCell struct {
	Label      string       `json:"label"`
	Sorted     bool         `json:"sorted,omitempty"`
	Descending bool         `json:"descending,omitempty"`
	SortURL    safehtml.URL `json:"-"`
}

// BandCell is one merged cell of a column header band.
type BandCell struct {
	Label   string `json:"label"`
	Span    int    `json:"span"`
	IsTotal bool   `json:"isTotal,omitempty"`
}

// RowModel is one output row.
type RowModel struct {
	Labels  []string    `json:"labels"`
	Level   int         `json:"level"` // -1 for detail rows, else the number of row fields grouped
	IsTotal bool        `json:"isTotal,omitempty"`
	Cells   []CellModel `json:"cells"`
}

// CellModel is one formatted cell.
type CellModel struct {
	Text     string `json:"text"`
	Value    any    `json:"value"`
	IsTotal  bool   `json:"isTotal,omitempty"`
	Negative bool   `json:"negative,omitempty"`
}

// FieldInfo describes a field and the links that move it between axes.
type FieldInfo struct {
	Header     string       `json:"header"`
	Binding    string       `json:"binding"`
	DataType   string       `json:"dataType"`
	Aggregate  string       `json:"aggregate"`
	ShowAs     string       `json:"showAs,omitempty"`
	IsRow      bool         `json:"isRow,omitempty"`
	IsColumn   bool         `json:"isColumn,omitempty"`
	IsValue    bool         `json:"isValue,omitempty"`
	IsFiltered bool         `json:"isFiltered,omitempty"`
	RowURL     safehtml.URL `json:"-"`
	ColumnURL  safehtml.URL `json:"-"`
	ValueURL   safehtml.URL `json:"-"`
}

// TotalsLink selects a pair of totals policies.
type TotalsLink struct {
	Label    string
	Selected bool
	URL      safehtml.URL
}

// LandingViewModel lists the data sources a server offers.
type LandingViewModel struct {
	Title   string
	Sources []SourceInfo
}

// SourceInfo is one entry of the landing page.
type SourceInfo struct {
	Name        string
	Description string
	URL         safehtml.URL
}

// BuildViewModel formats the engine's current output. q supplies the
// links; it is normally query.FromEngine or the request's query.
func BuildViewModel(e *pivot.Engine, title string, q *query.Query) TableViewModel {
	c := e.Culture()
	vm := TableViewModel{
		Title:        title,
		State:        e.State().String(),
		CurrentURL:   q.ToSafeURL(),
		ShowZeros:    e.ShowZeros(),
		ShowZerosURL: q.WithShowZerosToggled(),
		RowTotals:    e.ShowRowTotals().String(),
		ColumnTotals: e.ShowColumnTotals().String(),
		ViewDefined:  e.IsViewDefined(),
	}
	if src := e.ItemsSource(); src != nil {
		vm.RecordCount = src.Len()
	}

	for _, p := range []pivot.TotalsPolicy{pivot.TotalsNone, pivot.GrandTotals, pivot.Subtotals} {
		vm.TotalsOptions = append(vm.TotalsOptions, TotalsLink{
			Label:    p.String(),
			Selected: p == e.ShowRowTotals() && p == e.ShowColumnTotals(),
			URL:      q.WithTotals(p, p),
		})
	}

	for _, f := range e.Fields().Fields() {
		info := FieldInfo{
			Header:     f.Header(),
			Binding:    f.Binding(),
			DataType:   f.DataType().String(),
			Aggregate:  f.Aggregate().String(),
			IsRow:      e.RowFields().Contains(f),
			IsColumn:   e.ColumnFields().Contains(f),
			IsValue:    e.ValueFields().Contains(f),
			IsFiltered: f.IsFiltered(),
			RowURL:     q.WithRowToggled(f.Header()),
			ColumnURL:  q.WithColumnToggled(f.Header()),
			ValueURL:   q.WithValueToggled(f.Header()),
		}
		if f.ShowAs() != fields.ShowAsNone {
			info.ShowAs = f.ShowAs().String()
		}
		vm.Fields = append(vm.Fields, info)
	}

	sorts := e.View().SortDescriptions()
	sortState := func(binding string) (bool, bool) {
		if len(sorts) > 0 && sorts[0].Binding == binding {
			return true, !sorts[0].Ascending
		}
		return false, false
	}
	for _, f := range e.RowFields().Fields() {
		sorted, desc := sortState(f.Header())
		vm.RowHeaders = append(vm.RowHeaders, HeaderCell{
			Label:      f.Header(),
			Sorted:     sorted,
			Descending: desc,
			SortURL:    q.WithSortToggled(f.Header()),
		})
	}

	colKeys := e.ColumnKeys()
	vm.ColumnBands = columnBands(colKeys, e.ColumnFields().Len())
	for j, ck := range colKeys {
		vm.ColumnKeyIDs = append(vm.ColumnKeyIDs, ck.ID())
		sorted, desc := sortState(ck.ID())
		vm.ColumnSortLinks = append(vm.ColumnSortLinks, HeaderCell{
			Label:      valueLabel(ck),
			Sorted:     sorted,
			Descending: desc,
			SortURL:    q.WithSortToggled("@" + strconv.Itoa(j)),
		})
	}

	for _, r := range e.View().Items() {
		vm.Rows = append(vm.Rows, buildRow(r, colKeys, e.RowFields().Len(), c))
	}
	return vm
}

func buildRow(r *pivot.Row, colKeys []*pivot.Key, rowFieldCount int, c *values.Culture) RowModel {
	key := r.Key()
	rm := RowModel{
		Labels:  keyLabels(key, rowFieldCount),
		Level:   r.Level(),
		IsTotal: key.IsTotal(),
		Cells:   make([]CellModel, len(colKeys)),
	}
	for j, ck := range colKeys {
		v := r.Cell(j)
		f, _ := values.ToFloat(v)
		rm.Cells[j] = CellModel{
			Text:     FormatCell(v, ck, c),
			Value:    jsonSafe(v),
			IsTotal:  rm.IsTotal || ck.IsTotal(),
			Negative: f < 0,
		}
	}
	return rm
}

// keyLabels returns one label per field slot: the formatted values, then
// a total label at the first missing level and blanks after it.
func keyLabels(k *pivot.Key, slots int) []string {
	labels := make([]string, slots)
	vals := k.FormattedValues()
	for i := range labels {
		switch {
		case i < len(vals):
			labels[i] = vals[i]
		case i == len(vals) && i == 0:
			labels[i] = GrandTotalLabel
		case i == len(vals):
			labels[i] = TotalLabel
		}
	}
	return labels
}

// columnBands merges runs of adjacent column keys that share a label
// prefix into spanning header cells. The last band names the value field.
func columnBands(colKeys []*pivot.Key, levels int) [][]BandCell {
	bands := make([][]BandCell, levels+1)
	labels := make([][]string, len(colKeys))
	for j, ck := range colKeys {
		labels[j] = keyLabels(ck, levels)
	}
	for lvl := 0; lvl < levels; lvl++ {
		for j, ck := range colKeys {
			band := bands[lvl]
			if j > 0 && samePrefix(labels[j-1], labels[j], lvl) && len(band) > 0 {
				band[len(band)-1].Span++
				continue
			}
			bands[lvl] = append(band, BandCell{
				Label:   labels[j][lvl],
				Span:    1,
				IsTotal: ck.FieldCount() <= lvl,
			})
		}
	}
	for _, ck := range colKeys {
		bands[levels] = append(bands[levels], BandCell{Label: valueLabel(ck), Span: 1, IsTotal: ck.IsTotal()})
	}
	return bands
}

func samePrefix(a, b []string, lvl int) bool {
	for i := 0; i <= lvl; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// valueLabel names a column's value field with its aggregate, e.g.
// "Sum of Sales".
func valueLabel(ck *pivot.Key) string {
	vf := ck.ValueField()
	if vf == nil {
		return ""
	}
	return ck.Aggregate().String() + " of " + vf.Header()
}

// FormatCell formats a cell for display. Without an explicit field format,
// counts are integers and percentage differences are percents.
func FormatCell(v any, ck *pivot.Key, c *values.Culture) string {
	format := ""
	if vf := ck.ValueField(); vf != nil {
		format = vf.Format()
		if format == "" {
			switch {
			case vf.ShowAs().IsPct():
				format = "p1"
			case ck.Aggregate() == aggregates.Cnt:
				format = "n0"
			}
		}
	}
	return c.Format(v, format)
}

// jsonSafe replaces values JSON cannot carry. NaN and infinities become
// their display strings.
func jsonSafe(v any) any {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return v
}
