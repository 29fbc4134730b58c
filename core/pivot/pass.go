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
	"time"

	"github.com/google/pivotengine/core/aggregates"
	"github.com/google/pivotengine/core/fields"
	"github.com/google/pivotengine/core/metrics"
)

// pass is one summarization run over the items source. A pass belongs to
// one generation; bumping the engine's generation orphans it.
type pass struct {
	gen     uint64
	next    int
	root    *node
	ctx     *keyContext
	started time.Time
	tallied int

	rowFields []*fields.Field
	colFields []*fields.Field
	valFields []*fields.Field

	rowStart, rowStep int
	colStart, colStep int
}

// Refresh recomputes the output. While updates are suspended it does
// nothing unless force is set.
func (e *Engine) Refresh(force bool) {
	if e.updating > 0 && !force {
		return
	}
	if e.invalidateTimer != nil {
		e.invalidateTimer.Stop()
		e.invalidateTimer = nil
	}
	e.cancelPending()

	e.tallies = make(map[*Key]map[*Key]*aggregates.Tally)
	e.rowKeys = nil
	e.colKeys = nil
	e.colIndex = make(map[string]int)
	e.keys = newKeyTable()
	e.filtered = e.filtered[:0]
	for _, f := range e.fields.Fields() {
		if f.IsFiltered() {
			e.filtered = append(e.filtered, f)
		}
	}

	ctx := &keyContext{culture: e.cfg.Culture, totalsBeforeData: e.totalsBeforeData}
	if !e.IsViewDefined() || e.source == nil {
		e.build(time.Now(), 0)
		return
	}
	p := &pass{
		gen:       e.generation,
		root:      newNode(),
		ctx:       ctx,
		started:   time.Now(),
		rowFields: e.rowFields.Fields(),
		colFields: e.columnFields.Fields(),
		valFields: e.valueFields.Fields(),
	}
	p.rowStart, p.rowStep = e.rowTotals.levels(len(p.rowFields))
	p.colStart, p.colStep = e.colTotals.levels(len(p.colFields))
	e.pass = p
	e.tallyBatch(p)
}

// cancelPending drops the pass in progress, if any, and its scheduled
// continuation.
func (e *Engine) cancelPending() {
	e.generation++
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
	if p := e.pass; p != nil {
		e.pass = nil
		metrics.RecordPass(metrics.StatusCancelled, p.tallied, time.Since(p.started))
	}
}

// tallyBatch processes records from p.next until the source is exhausted
// or the batch budget is spent, in which case it schedules itself again.
func (e *Engine) tallyBatch(p *pass) {
	if p.gen != e.generation || e.pass != p {
		return
	}
	e.pending = nil
	n := e.source.Len()
	start, batchStart := p.next, time.Now()
	for i := start; i < n; i++ {
		if e.cfg.Async && e.cfg.Scheduler != nil && i-start >= e.cfg.BatchSize &&
			time.Since(batchStart) >= e.cfg.BatchDelay {
			p.next = i
			e.pending = e.cfg.Scheduler.AfterFunc(0, func() { e.tallyBatch(p) })
			metrics.RecordBatch()
			e.UpdatingView.Raise(i * 100 / n)
			return
		}
		if e.tallyItem(p, e.source.Item(i)) {
			p.tallied++
		}
	}
	p.next = n
	e.pass = nil
	e.build(p.started, p.tallied)
}

// tallyItem adds one record to every cell it contributes to. It reports
// whether the record passed the active filters.
func (e *Engine) tallyItem(p *pass, item any) bool {
	for _, f := range e.filtered {
		if !f.Matches(item, p.ctx.culture) {
			return false
		}
	}
	nr, nc := len(p.rowFields), len(p.colFields)
	for r := p.rowStart; r <= nr; r += p.rowStep {
		rnd := p.root.getNode(p.ctx, e.keys, p.rowFields, r, nil, -1, item)
		rk := rnd.key
		row := e.tallies[rk]
		if row == nil {
			row = make(map[*Key]*aggregates.Tally)
			e.tallies[rk] = row
			e.rowKeys = append(e.rowKeys, rk)
		}
		for c := p.colStart; c <= nc; c += p.colStep {
			for v, vf := range p.valFields {
				cnd := rnd.columns().getNode(p.ctx, e.keys, p.colFields, c, p.valFields, v, item)
				ck := cnd.key
				t := row[ck]
				if t == nil {
					t = aggregates.NewTally()
					row[ck] = t
					e.addColumnKey(ck)
				}
				var weight any
				if wf := vf.WeightField(); wf != nil {
					weight = wf.Value(item)
				}
				t.Add(vf.Value(item), weight)
			}
		}
	}
	return true
}

func (e *Engine) addColumnKey(k *Key) {
	if _, ok := e.colIndex[k.ID()]; ok {
		return
	}
	e.colIndex[k.ID()] = -1
	e.colKeys = append(e.colKeys, k)
}
