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

package pivot

import (
	"slices"
	"time"

	"github.com/google/pivotengine/core/metrics"
	"github.com/google/pivotengine/core/values"
)

// build turns the tallies into output rows and publishes them.
func (e *Engine) build(started time.Time, tallied int) {
	rowKeys := slices.Clone(e.rowKeys)
	colKeys := slices.Clone(e.colKeys)
	slices.SortStableFunc(rowKeys, (*Key).Compare)
	slices.SortStableFunc(colKeys, (*Key).Compare)

	index := make(map[string]int, len(colKeys))
	for j, ck := range colKeys {
		index[ck.ID()] = j
	}
	e.columnKeys = colKeys
	e.colIndex = index

	rows := make([]*Row, len(rowKeys))
	for i, rk := range rowKeys {
		cells := make([]any, len(colKeys))
		tallies := e.tallies[rk]
		for j, ck := range colKeys {
			t := tallies[ck]
			if t == nil {
				continue
			}
			v := t.Aggregate(ck.Aggregate())
			if !e.showZeros && isZero(v) {
				v = nil
			}
			cells[j] = v
		}
		rows[i] = &Row{key: rk, cells: cells, index: index}
	}
	e.applyShowAs(rows, colKeys)

	e.view.DeferUpdate(func() {
		e.view.SetSource(rows)
		e.view.ClearSort()
	})
	e.built = true
	metrics.RecordPass(metrics.StatusCompleted, tallied, time.Since(started))
	e.UpdatedView.Raise(struct{}{})
}

// ColumnKeys returns the sorted column keys of the current output.
func (e *Engine) ColumnKeys() []*Key { return e.columnKeys }

// ColumnIndex returns the position of the column with the given identity,
// or -1.
func (e *Engine) ColumnIndex(id string) int {
	if j, ok := e.colIndex[id]; ok && j >= 0 {
		return j
	}
	return -1
}

// RowKeys returns the row keys of the current output in structural order.
func (e *Engine) RowKeys() []*Key {
	src := e.view.Source()
	keys := make([]*Key, len(src))
	for i, r := range src {
		keys[i] = r.key
	}
	return keys
}

func isZero(v any) bool {
	if _, ok := v.(bool); ok {
		return false
	}
	f, ok := values.ToFloat(v)
	return ok && f == 0
}

// applyShowAs replaces the cells of value fields shown as differences.
// Cells are visited from the last row (or column) backwards so that every
// difference is taken against original aggregates.
func (e *Engine) applyShowAs(rows []*Row, cols []*Key) {
	for j := len(cols) - 1; j >= 0; j-- {
		vf := cols[j].ValueField()
		if vf == nil || !vf.ShowAs().IsRow() {
			continue
		}
		for i := len(rows) - 1; i >= 0; i-- {
			rows[i].cells[j] = e.rowDifference(rows, i, j, vf.ShowAs().IsPct())
		}
	}
	for j := len(cols) - 1; j >= 0; j-- {
		vf := cols[j].ValueField()
		if vf == nil || !vf.ShowAs().IsCol() {
			continue
		}
		for _, r := range rows {
			r.cells[j] = e.colDifference(r.cells, cols, j, vf.ShowAs().IsPct())
		}
	}
}

// rowDifference returns the difference between cell (i, j) and the same
// column of the nearest preceding row at the same level.
func (e *Engine) rowDifference(rows []*Row, i, j int, pct bool) any {
	k := rows[i].key
	for p := i - 1; p >= 0; p-- {
		pk := rows[p].key
		if pk.n == k.n {
			if !sameGroup(k, pk, e.rowTotals) {
				return nil
			}
			return e.difference(rows[i].cells[j], rows[p].cells[j], pct)
		}
		if pk.n < k.n {
			break
		}
	}
	return nil
}

// colDifference returns the difference between cells[j] and the nearest
// preceding column of the same value field and level.
func (e *Engine) colDifference(cells []any, cols []*Key, j int, pct bool) any {
	k := cols[j]
	for q := j - 1; q >= 0; q-- {
		qk := cols[q]
		if qk.vfIndex != k.vfIndex {
			continue
		}
		if qk.n == k.n {
			if !sameGroup(k, qk, e.colTotals) {
				return nil
			}
			return e.difference(cells[j], cells[q], pct)
		}
		if qk.n < k.n {
			break
		}
	}
	return nil
}

// sameGroup reports whether two keys of one level share their parent group.
// With subtotals shown the parent total separates the groups already.
func sameGroup(k, o *Key, policy TotalsPolicy) bool {
	if policy == Subtotals || k.n < 2 {
		return true
	}
	return k.FormattedValues()[k.n-2] == o.FormattedValues()[o.n-2]
}

func (e *Engine) difference(cur, prev any, pct bool) any {
	if _, ok := cur.(bool); ok {
		return nil
	}
	c, ok1 := values.ToFloat(cur)
	p, ok2 := values.ToFloat(prev)
	if !ok1 || !ok2 {
		return nil
	}
	d := c - p
	if pct {
		d /= p
	}
	if d == 0 && !e.showZeros {
		return nil
	}
	return d
}

// Detail returns the source records behind one output cell. An empty
// column identity selects every record of the row.
func (e *Engine) Detail(row *Row, columnID string) []any {
	if e.source == nil || row == nil {
		return nil
	}
	var ck *Key
	if columnID != "" {
		if j := e.ColumnIndex(columnID); j >= 0 {
			ck = e.columnKeys[j]
		} else {
			return nil
		}
	}
	var out []any
	for i := 0; i < e.source.Len(); i++ {
		item := e.source.Item(i)
		if !e.passesFilters(item) || !row.key.MatchesItem(item) {
			continue
		}
		if ck != nil && !ck.MatchesItem(item) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (e *Engine) passesFilters(item any) bool {
	for _, f := range e.fields.Fields() {
		if !f.Matches(item, e.cfg.Culture) {
			return false
		}
	}
	return true
}
