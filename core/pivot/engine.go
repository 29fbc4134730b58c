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

// Package pivot summarizes flat records into pivot tables.
//
// An Engine groups the records of an ItemsSource by its row and column
// fields, accumulates value fields into per-cell tallies and publishes the
// result as a View of Rows. Passes over large sources run in cooperative
// batches on a Scheduler and can be cancelled at any point.
//
// An Engine is not safe for concurrent use: all calls, and the callbacks of
// its Scheduler, must happen on one goroutine.
package pivot

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/pivotengine/core/aggregates"
	"github.com/google/pivotengine/core/fields"
	"github.com/google/pivotengine/core/tables"
	"github.com/google/pivotengine/core/values"
)

// ItemsSource is an ordered collection of records.
type ItemsSource interface {
	Len() int
	Item(i int) any
}

// Notifier is implemented by sources that report data changes.
type Notifier interface {
	OnCollectionChanged(fn func()) (cancel func())
}

// Slice adapts a slice of records to ItemsSource.
type Slice[T any] []T

// Len implements ItemsSource.
func (s Slice[T]) Len() int { return len(s) }

// Item implements ItemsSource.
func (s Slice[T]) Item(i int) any { return s[i] }

// TotalsPolicy selects which subtotal levels an axis materializes.
type TotalsPolicy int

const (
	TotalsNone  TotalsPolicy = iota // Detail keys only
	GrandTotals                     // Detail keys and the grand total
	Subtotals                       // Every level from the grand total to details
)

var totalsNames = [...]string{"None", "GrandTotals", "Subtotals"}

func (p TotalsPolicy) String() string {
	if p < 0 || int(p) >= len(totalsNames) {
		return fmt.Sprintf("TotalsPolicy(%d)", int(p))
	}
	return totalsNames[p]
}

// MarshalText implements encoding.TextMarshaler.
func (p TotalsPolicy) MarshalText() ([]byte, error) {
	if p < 0 || int(p) >= len(totalsNames) {
		return nil, fmt.Errorf("unknown totals policy %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *TotalsPolicy) UnmarshalText(b []byte) error {
	v, err := ParseTotalsPolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParseTotalsPolicy parses a policy name case-insensitively.
func ParseTotalsPolicy(s string) (TotalsPolicy, error) {
	for i, name := range totalsNames {
		if strings.EqualFold(s, name) {
			return TotalsPolicy(i), nil
		}
	}
	if s == "" {
		return TotalsNone, nil
	}
	return TotalsNone, fmt.Errorf("unknown totals policy %q", s)
}

// levels returns the first field count and the step between field counts
// tallied on an axis with n fields.
func (p TotalsPolicy) levels(n int) (start, step int) {
	switch p {
	case GrandTotals:
		return 0, max(1, n)
	case Subtotals:
		return 0, 1
	}
	return n, 1
}

// State is the engine's position in its update cycle.
type State int

const (
	Idle     State = iota // No output built yet
	Updating              // Inside BeginUpdate/EndUpdate
	Tallying              // A batched pass is in progress
	Built                 // The output is current
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Updating:
		return "Updating"
	case Tallying:
		return "Tallying"
	case Built:
		return "Built"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config holds engine options.
type Config struct {
	// Async splits passes into batches run on the Scheduler.
	Async bool
	// BatchSize is the minimum number of records per batch.
	BatchSize int
	// BatchDelay is the minimum wall time per batch.
	BatchDelay time.Duration
	// InvalidateDelay debounces Invalidate.
	InvalidateDelay time.Duration
	// Scheduler runs deferred work. Without one, passes run to completion
	// and Invalidate refreshes immediately.
	Scheduler Scheduler
	// Culture formats values for keys and display.
	Culture *values.Culture
	// AutoGenerateFields creates fields from the first record whenever the
	// items source changes.
	AutoGenerateFields bool
}

// DefaultConfig returns the default engine options. Callers set Scheduler
// to enable asynchronous passes.
func DefaultConfig() Config {
	return Config{
		Async:              true,
		BatchSize:          10000,
		BatchDelay:         100 * time.Millisecond,
		InvalidateDelay:    100 * time.Millisecond,
		Culture:            values.Invariant,
		AutoGenerateFields: true,
	}
}

// Engine is a pivot summarization engine.
type Engine struct {
	cfg Config

	source      ItemsSource
	unsubscribe func()

	fields       *fields.List
	rowFields    *fields.List
	columnFields *fields.List
	valueFields  *fields.List
	filterFields *fields.List

	showZeros        bool
	totalsBeforeData bool
	rowTotals        TotalsPolicy
	colTotals        TotalsPolicy

	updating   int
	defChanged bool
	notifying  int

	generation      uint64
	pass            *pass
	pending         Timer
	invalidateTimer Timer
	built           bool

	tallies  map[*Key]map[*Key]*aggregates.Tally
	rowKeys  []*Key
	colKeys  []*Key
	keys     *keyTable
	filtered []*fields.Field

	view       *View
	columnKeys []*Key
	colIndex   map[string]int

	// ItemsSourceChanged fires after SetItemsSource.
	ItemsSourceChanged tables.Event[struct{}]
	// ViewDefinitionChanged fires when fields, lists or totals settings
	// change. It is held back while updates are suspended.
	ViewDefinitionChanged tables.Event[struct{}]
	// UpdatingView reports pass progress as a percentage.
	UpdatingView tables.Event[int]
	// UpdatedView fires once per completed pass.
	UpdatedView tables.Event[struct{}]
}

// NewEngine creates an engine with no source and no fields.
func NewEngine(cfg Config) *Engine {
	if cfg.Culture == nil {
		cfg.Culture = values.Invariant
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	e := &Engine{
		cfg:       cfg,
		rowTotals: GrandTotals,
		colTotals: GrandTotals,
		keys:      newKeyTable(),
		colIndex:  map[string]int{},
	}
	e.fields = fields.NewList("fields", e)
	e.rowFields = fields.NewList("rowFields", e)
	e.columnFields = fields.NewList("columnFields", e)
	e.valueFields = fields.NewList("valueFields", e)
	e.filterFields = fields.NewList("filterFields", e)
	e.view = newView()
	return e
}

// Config returns the engine options.
func (e *Engine) Config() Config { return e.cfg }

// Culture returns the culture used to format keys.
func (e *Engine) Culture() *values.Culture { return e.cfg.Culture }

// Fields returns the master field list.
func (e *Engine) Fields() *fields.List { return e.fields }

// RowFields returns the fields that define rows.
func (e *Engine) RowFields() *fields.List { return e.rowFields }

// ColumnFields returns the fields that define columns.
func (e *Engine) ColumnFields() *fields.List { return e.columnFields }

// ValueFields returns the fields aggregated into cells.
func (e *Engine) ValueFields() *fields.List { return e.valueFields }

// FilterFields returns fields used only for filtering.
func (e *Engine) FilterFields() *fields.List { return e.filterFields }

// Field returns the field with the given header, or nil.
func (e *Engine) Field(header string) *fields.Field { return e.fields.ByHeader(header) }

// AddField creates a field, registers it and returns it.
func (e *Engine) AddField(binding, header string) *fields.Field {
	f := fields.New(binding, header)
	e.fields.Push(f)
	return f
}

// RemoveField removes a field from the engine and from every view list.
func (e *Engine) RemoveField(f *fields.Field) bool {
	return e.fields.Remove(f)
}

// View returns the output view.
func (e *Engine) View() *View { return e.view }

// ItemsSource returns the record source.
func (e *Engine) ItemsSource() ItemsSource { return e.source }

// SetItemsSource replaces the record source. Sources implementing Notifier
// invalidate the engine when they change.
func (e *Engine) SetItemsSource(src ItemsSource) {
	e.cancelPending()
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.source = src
	if n, ok := src.(Notifier); ok && src != nil {
		e.unsubscribe = n.OnCollectionChanged(e.Invalidate)
	}
	if e.cfg.AutoGenerateFields {
		e.AutoGenerateFields()
	}
	e.ItemsSourceChanged.Raise(struct{}{})
	e.Refresh(false)
}

// AutoGenerateFields replaces all fields with one field per top-level
// member of the first record.
func (e *Engine) AutoGenerateFields() {
	e.DeferUpdate(func() {
		e.clearLists()
		if e.source == nil || e.source.Len() == 0 {
			return
		}
		item := e.source.Item(0)
		for _, name := range values.Names(item) {
			v := values.Resolve(item, name)
			dt := values.TypeOf(v)
			if dt == values.Object && v != nil {
				continue
			}
			f := fields.New(name, "")
			if e.fields.ByHeader(f.Header()) != nil {
				continue
			}
			f.SetDataType(dt)
			switch dt {
			case values.Number:
				f.SetAggregate(aggregates.Sum)
			case values.Date:
				f.SetAggregate(aggregates.Cnt)
				f.SetFormat("d")
			default:
				f.SetAggregate(aggregates.Cnt)
			}
			e.fields.Push(f)
		}
	})
}

func (e *Engine) clearLists() {
	for _, l := range []*fields.List{e.rowFields, e.columnFields, e.valueFields, e.filterFields, e.fields} {
		l.Clear()
	}
}

// ShowZeros reports whether zero aggregates are shown instead of nil.
func (e *Engine) ShowZeros() bool { return e.showZeros }

// SetShowZeros sets whether zero aggregates are shown instead of nil.
func (e *Engine) SetShowZeros(v bool) {
	if v != e.showZeros {
		e.showZeros = v
		e.viewDefinitionChanged()
	}
}

// TotalsBeforeData reports whether totals sort before their details.
func (e *Engine) TotalsBeforeData() bool { return e.totalsBeforeData }

// SetTotalsBeforeData sets whether totals sort before their details.
func (e *Engine) SetTotalsBeforeData(v bool) {
	if v != e.totalsBeforeData {
		e.totalsBeforeData = v
		e.viewDefinitionChanged()
	}
}

// ShowRowTotals returns the row totals policy.
func (e *Engine) ShowRowTotals() TotalsPolicy { return e.rowTotals }

// SetShowRowTotals sets the row totals policy.
func (e *Engine) SetShowRowTotals(p TotalsPolicy) {
	if p != e.rowTotals {
		e.rowTotals = p
		e.viewDefinitionChanged()
	}
}

// ShowColumnTotals returns the column totals policy.
func (e *Engine) ShowColumnTotals() TotalsPolicy { return e.colTotals }

// SetShowColumnTotals sets the column totals policy.
func (e *Engine) SetShowColumnTotals(p TotalsPolicy) {
	if p != e.colTotals {
		e.colTotals = p
		e.viewDefinitionChanged()
	}
}

// Async reports whether passes run in batches.
func (e *Engine) Async() bool { return e.cfg.Async }

// SetAsync enables or disables batched passes. Disabling cancels a pass in
// progress and restarts it synchronously.
func (e *Engine) SetAsync(v bool) {
	if v == e.cfg.Async {
		return
	}
	e.cfg.Async = v
	if !v && e.pass != nil {
		e.cancelPending()
		e.Refresh(false)
	}
}

// IsViewDefined reports whether there is something to summarize: at least
// one value field and at least one row or column field.
func (e *Engine) IsViewDefined() bool {
	return e.valueFields.Len() > 0 && (e.rowFields.Len() > 0 || e.columnFields.Len() > 0)
}

// IsUpdating reports whether updates are suspended.
func (e *Engine) IsUpdating() bool { return e.updating > 0 }

// State returns the engine's current state.
func (e *Engine) State() State {
	switch {
	case e.updating > 0:
		return Updating
	case e.pass != nil:
		return Tallying
	case e.built:
		return Built
	}
	return Idle
}

// Settled reports whether the output is current: updates are not
// suspended and neither a pass nor a debounced refresh is outstanding.
// UpdatedView fires when an unsettled engine settles.
func (e *Engine) Settled() bool {
	return e.updating == 0 && e.pass == nil && e.invalidateTimer == nil
}

// BeginUpdate suspends refreshes and cancels a pass in progress.
func (e *Engine) BeginUpdate() {
	e.cancelPending()
	if e.invalidateTimer != nil {
		e.invalidateTimer.Stop()
		e.invalidateTimer = nil
	}
	e.updating++
}

// EndUpdate resumes refreshes. The outermost call raises
// ViewDefinitionChanged if the definition changed and refreshes.
func (e *Engine) EndUpdate() {
	if e.updating == 0 {
		return
	}
	e.updating--
	if e.updating > 0 {
		return
	}
	if e.defChanged {
		e.defChanged = false
		e.ViewDefinitionChanged.Raise(struct{}{})
	}
	e.Refresh(false)
}

// DeferUpdate runs fn with updates suspended.
func (e *Engine) DeferUpdate(fn func()) {
	e.BeginUpdate()
	defer e.EndUpdate()
	fn()
}

// Invalidate schedules a refresh after the configured delay. A new call
// replaces a pending one and cancels a pass in progress.
func (e *Engine) Invalidate() {
	if e.invalidateTimer != nil {
		e.invalidateTimer.Stop()
		e.invalidateTimer = nil
	}
	e.cancelPending()
	if e.updating > 0 {
		return
	}
	if e.cfg.Scheduler == nil {
		e.Refresh(false)
		return
	}
	e.invalidateTimer = e.cfg.Scheduler.AfterFunc(e.cfg.InvalidateDelay, func() {
		e.invalidateTimer = nil
		e.Refresh(false)
	})
}

// FieldChanged implements fields.Owner.
func (e *Engine) FieldChanged(f *fields.Field, prop string) {
	if !e.fields.Contains(f) {
		return
	}
	if prop == fields.PropWidth {
		// Display only: nothing to recompute.
		if e.updating > 0 {
			e.defChanged = true
		} else {
			e.ViewDefinitionChanged.Raise(struct{}{})
		}
		return
	}
	e.viewDefinitionChanged()
}

// HeaderInUse implements fields.Owner.
func (e *Engine) HeaderInUse(header string, except *fields.Field) bool {
	f := e.fields.ByHeader(header)
	return f != nil && f != except
}

// ListChanged implements fields.ListOwner. It keeps the lists consistent:
// fields in view lists are registered on the master list, a field is in at
// most one of the row, column and value lists, and removing a field from
// the master list removes it everywhere.
func (e *Engine) ListChanged(l *fields.List, f *fields.Field, added bool) {
	e.notifying++
	switch {
	case l == e.fields && added:
		f.SetOwner(e)
	case l == e.fields:
		for _, vl := range []*fields.List{e.rowFields, e.columnFields, e.valueFields, e.filterFields} {
			vl.Remove(f)
		}
		for _, other := range e.fields.Fields() {
			if other.WeightField() == f {
				other.SetWeightField(nil)
			}
		}
		f.SetOwner(nil)
	case added:
		if !e.fields.Contains(f) {
			e.fields.Push(f)
		}
		if l != e.filterFields {
			for _, vl := range []*fields.List{e.rowFields, e.columnFields, e.valueFields} {
				if vl != l {
					vl.Remove(f)
				}
			}
		}
	}
	e.notifying--
	e.viewDefinitionChanged()
}

func (e *Engine) viewDefinitionChanged() {
	if e.notifying > 0 {
		return
	}
	if e.updating > 0 {
		e.defChanged = true
		return
	}
	e.ViewDefinitionChanged.Raise(struct{}{})
	e.Invalidate()
}
