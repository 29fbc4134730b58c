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

	"github.com/google/pivotengine/core/tables"
)

// Row is one output row: a row key and one cell per column key.
type Row struct {
	key   *Key
	cells []any
	index map[string]int
}

// Key returns the row key.
func (r *Row) Key() *Key { return r.key }

// Cells returns the row's cells in column key order.
func (r *Row) Cells() []any { return r.cells }

// Cell returns the j-th cell.
func (r *Row) Cell(j int) any { return r.cells[j] }

// Get returns the cell of the column with the given identity, or the raw
// value of the row field with the given header. Unknown names yield nil.
func (r *Row) Get(name string) any {
	if j, ok := r.index[name]; ok && j >= 0 {
		return r.cells[j]
	}
	for i, f := range r.key.fields[:r.key.n] {
		if f.Header() == name {
			return r.key.Values()[i]
		}
	}
	return nil
}

// Level returns the row's subtotal level: the number of row fields in its
// key, or -1 for a fully detailed row.
func (r *Row) Level() int {
	if r.key.n == len(r.key.fields) {
		return -1
	}
	return r.key.n
}

// View is the engine's output collection. Sorting it only reorders runs of
// detail rows, so subtotal and grand total rows keep their positions.
type View struct {
	*tables.CollectionView[*Row]
}

func newView() *View {
	v := &View{CollectionView: tables.NewCollectionView[*Row](nil)}
	v.SetValueGetter(func(r *Row, binding string) any { return r.Get(binding) })
	v.SetSorter(sortDetailRuns)
	return v
}

// sortDetailRuns sorts every maximal run of detail rows in place.
func sortDetailRuns(rows []*Row, cmp func(a, b *Row) int) {
	for i := 0; i < len(rows); {
		if rows[i].Level() != -1 {
			i++
			continue
		}
		j := i
		for j < len(rows) && rows[j].Level() == -1 {
			j++
		}
		slices.SortStableFunc(rows[i:j], cmp)
		i = j
	}
}
