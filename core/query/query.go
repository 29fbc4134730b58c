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

// Package query keeps the state of a pivot view in a URL, e.g.
//
//	/pivot?rows=Region,Product&cols=Year&values=Amount:Sum:DiffRow&filter:Region=North|South&sort=-@0
//
// Fields are named by header. Sort entries name a row field header or a
// column position as "@n"; a leading '-' sorts descending.
package query

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/google/pivotengine/core/aggregates"
	"github.com/google/pivotengine/core/fields"
	"github.com/google/pivotengine/core/pivot"
	"github.com/google/pivotengine/core/tables"
	"github.com/google/safehtml"
)

// ErrUnknownField is returned when a query names a field the engine lacks.
var ErrUnknownField = errors.New("unknown field")

const filterSeparator = "|"

// ValueSpec is one entry of the values parameter: Field[:Aggregate[:ShowAs]].
type ValueSpec struct {
	Field     string
	Aggregate string
	ShowAs    string
}

func parseValueSpec(s string) ValueSpec {
	parts := strings.SplitN(s, ":", 3)
	v := ValueSpec{Field: parts[0]}
	if len(parts) > 1 {
		v.Aggregate = parts[1]
	}
	if len(parts) > 2 {
		v.ShowAs = parts[2]
	}
	return v
}

func (v ValueSpec) String() string {
	s := v.Field
	if v.Aggregate != "" || v.ShowAs != "" {
		s += ":" + v.Aggregate
	}
	if v.ShowAs != "" {
		s += ":" + v.ShowAs
	}
	return s
}

// Query represents the parsed state of a pivot view URL
type Query struct {
	// Base path (e.g., "/pivot")
	Path string

	Source    string              // Data source name, if the server offers several
	Rows      []string            // Row field headers, outermost first
	Columns   []string            // Column field headers, outermost first
	Values    []ValueSpec         // Value fields
	Filters   map[string][]string // Field header -> formatted values to keep
	Sort      []tables.SortDescription
	ShowZeros bool

	// Totals policies; nil leaves the engine's setting alone.
	RowTotals    *pivot.TotalsPolicy
	ColumnTotals *pivot.TotalsPolicy
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

// NewQuery creates a Query from a URL. Malformed optional parameters are
// ignored.
func NewQuery(u *url.URL) *Query {
	q := u.Query()
	state := &Query{
		Path:    u.Path,
		Source:  q.Get("source"),
		Rows:    splitList(q.Get("rows")),
		Columns: splitList(q.Get("cols")),
		Filters: make(map[string][]string),
	}

	for _, v := range splitList(q.Get("values")) {
		state.Values = append(state.Values, parseValueSpec(v))
	}

	for key, vals := range q {
		if strings.HasPrefix(key, "filter:") && len(vals) > 0 {
			state.Filters[strings.TrimPrefix(key, "filter:")] = strings.Split(vals[0], filterSeparator)
		}
	}

	if sds, err := tables.ParseSortDescriptions(q.Get("sort")); err == nil {
		state.Sort = sds
	}

	if p, err := pivot.ParseTotalsPolicy(q.Get("rowTotals")); err == nil && q.Has("rowTotals") {
		state.RowTotals = &p
	}
	if p, err := pivot.ParseTotalsPolicy(q.Get("colTotals")); err == nil && q.Has("colTotals") {
		state.ColumnTotals = &p
	}
	state.ShowZeros, _ = strconv.ParseBool(q.Get("zeros"))

	return state
}

// FromEngine captures an engine's layout as a Query.
func FromEngine(e *pivot.Engine, path string) *Query {
	state := &Query{
		Path:    path,
		Rows:    e.RowFields().Headers(),
		Columns: e.ColumnFields().Headers(),
		Filters: make(map[string][]string),
	}
	for _, sd := range e.View().SortDescriptions() {
		if j := e.ColumnIndex(sd.Binding); j >= 0 {
			sd.Binding = "@" + strconv.Itoa(j)
		}
		state.Sort = append(state.Sort, sd)
	}
	for _, f := range e.ValueFields().Fields() {
		v := ValueSpec{Field: f.Header(), Aggregate: f.Aggregate().String()}
		if f.ShowAs() != fields.ShowAsNone {
			v.ShowAs = f.ShowAs().String()
		}
		state.Values = append(state.Values, v)
	}
	for _, f := range e.Fields().Fields() {
		if vf, ok := f.Filter().(*fields.ValueFilter); ok && vf.ShowValues != nil {
			state.Filters[f.Header()] = slices.Sorted(maps.Keys(vf.ShowValues))
		}
	}
	rt, ct := e.ShowRowTotals(), e.ShowColumnTotals()
	state.RowTotals, state.ColumnTotals = &rt, &ct
	state.ShowZeros = e.ShowZeros()
	return state
}

// Clone creates a deep copy of the Query
func (s *Query) Clone() *Query {
	clone := *s
	clone.Rows = slices.Clone(s.Rows)
	clone.Columns = slices.Clone(s.Columns)
	clone.Values = slices.Clone(s.Values)
	clone.Sort = slices.Clone(s.Sort)
	clone.Filters = make(map[string][]string, len(s.Filters))
	for k, v := range s.Filters {
		clone.Filters[k] = slices.Clone(v)
	}
	if s.RowTotals != nil {
		p := *s.RowTotals
		clone.RowTotals = &p
	}
	if s.ColumnTotals != nil {
		p := *s.ColumnTotals
		clone.ColumnTotals = &p
	}
	return &clone
}

// ApplyTo lays the engine out as the query describes, replacing its row,
// column and value lists and every field's value filter. The engine is
// left untouched if a field is unknown.
func (s *Query) ApplyTo(e *pivot.Engine) error {
	lookup := func(header string) (*fields.Field, error) {
		if f := e.Field(header); f != nil {
			return f, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, header)
	}
	resolve := func(headers []string) ([]*fields.Field, error) {
		out := make([]*fields.Field, 0, len(headers))
		for _, h := range headers {
			f, err := lookup(h)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil
	}

	rows, err := resolve(s.Rows)
	if err != nil {
		return err
	}
	cols, err := resolve(s.Columns)
	if err != nil {
		return err
	}
	type valueSetting struct {
		f   *fields.Field
		agg aggregates.Aggregate
		sa  fields.ShowAs
	}
	var vals []valueSetting
	for _, v := range s.Values {
		f, err := lookup(v.Field)
		if err != nil {
			return err
		}
		vs := valueSetting{f: f, agg: f.Aggregate()}
		if v.Aggregate != "" {
			if vs.agg, err = aggregates.Parse(v.Aggregate); err != nil {
				return err
			}
		}
		if vs.sa, err = fields.ParseShowAs(v.ShowAs); err != nil {
			return err
		}
		vals = append(vals, vs)
	}
	for h := range s.Filters {
		if _, err := lookup(h); err != nil {
			return err
		}
	}

	e.DeferUpdate(func() {
		e.RowFields().Clear()
		e.ColumnFields().Clear()
		e.ValueFields().Clear()
		for _, f := range rows {
			e.RowFields().Push(f)
		}
		for _, f := range cols {
			e.ColumnFields().Push(f)
		}
		for _, v := range vals {
			v.f.SetAggregate(v.agg)
			v.f.SetShowAs(v.sa)
			e.ValueFields().Push(v.f)
		}
		for _, f := range e.Fields().Fields() {
			if show, ok := s.Filters[f.Header()]; ok {
				f.SetFilter(fields.NewValueFilter(show...))
			} else if _, ok := f.Filter().(*fields.ValueFilter); ok {
				f.SetFilter(nil)
			}
		}
		if s.RowTotals != nil {
			e.SetShowRowTotals(*s.RowTotals)
		}
		if s.ColumnTotals != nil {
			e.SetShowColumnTotals(*s.ColumnTotals)
		}
		e.SetShowZeros(s.ShowZeros)
	})
	return nil
}

// ApplySort sorts the engine's view. It must run after the engine has
// built the view, because every build resets the sort.
func (s *Query) ApplySort(e *pivot.Engine) error {
	sds := make([]tables.SortDescription, 0, len(s.Sort))
	for _, sd := range s.Sort {
		binding := sd.Binding
		if strings.HasPrefix(binding, "@") {
			j, err := strconv.Atoi(binding[1:])
			keys := e.ColumnKeys()
			if err != nil || j < 0 || j >= len(keys) {
				return fmt.Errorf("%w: column %q", ErrUnknownField, binding)
			}
			binding = keys[j].ID()
		} else if e.RowFields().ByHeader(binding) == nil {
			return fmt.Errorf("%w: %q is not a row field", ErrUnknownField, binding)
		}
		sds = append(sds, tables.SortDescription{Binding: binding, Ascending: sd.Ascending})
	}
	e.View().SetSortDescriptions(sds...)
	return nil
}

func toggled(list []string, item string) ([]string, bool) {
	if i := slices.Index(list, item); i >= 0 {
		return slices.Delete(slices.Clone(list), i, i+1), false
	}
	return append(slices.Clone(list), item), true
}

func without(list []string, item string) []string {
	return slices.DeleteFunc(slices.Clone(list), func(s string) bool { return s == item })
}

func (s *Query) withoutValue(field string) {
	s.Values = slices.DeleteFunc(s.Values, func(v ValueSpec) bool { return v.Field == field })
}

// WithRowToggled returns a URL with the field added to or removed from the
// rows. A field added to the rows leaves the columns and values.
func (s *Query) WithRowToggled(field string) safehtml.URL {
	n := s.Clone()
	var added bool
	if n.Rows, added = toggled(s.Rows, field); added {
		n.Columns = without(n.Columns, field)
		n.withoutValue(field)
	}
	return n.ToSafeURL()
}

// WithColumnToggled returns a URL with the field added to or removed from
// the columns. A field added to the columns leaves the rows and values.
func (s *Query) WithColumnToggled(field string) safehtml.URL {
	n := s.Clone()
	var added bool
	if n.Columns, added = toggled(s.Columns, field); added {
		n.Rows = without(n.Rows, field)
		n.withoutValue(field)
	}
	return n.ToSafeURL()
}

// WithValueToggled returns a URL with the field added to or removed from the
// values. A field added to the values leaves the rows and columns.
func (s *Query) WithValueToggled(field string) safehtml.URL {
	n := s.Clone()
	if s.IsValue(field) {
		n.withoutValue(field)
	} else {
		n.Values = append(n.Values, ValueSpec{Field: field})
		n.Rows = without(n.Rows, field)
		n.Columns = without(n.Columns, field)
	}
	return n.ToSafeURL()
}

// WithValueSettings returns a URL with a value field's aggregate and
// show-as replaced. Empty strings restore the field's defaults.
func (s *Query) WithValueSettings(field, aggregate, showAs string) safehtml.URL {
	n := s.Clone()
	for i, v := range n.Values {
		if v.Field == field {
			n.Values[i] = ValueSpec{Field: field, Aggregate: aggregate, ShowAs: showAs}
		}
	}
	return n.ToSafeURL()
}

// WithFilter returns a URL that keeps only the given formatted values of
// the field. No values removes the filter.
func (s *Query) WithFilter(field string, keep ...string) safehtml.URL {
	n := s.Clone()
	if len(keep) == 0 {
		delete(n.Filters, field)
	} else {
		n.Filters[field] = slices.Clone(keep)
	}
	return n.ToSafeURL()
}

// WithSortToggled returns a URL sorted by the binding, flipping its
// direction when it is already the primary sort.
func (s *Query) WithSortToggled(binding string) safehtml.URL {
	n := s.Clone()
	sd := tables.SortDescription{Binding: binding, Ascending: true}
	if len(s.Sort) > 0 && s.Sort[0].Binding == binding {
		sd.Ascending = !s.Sort[0].Ascending
	}
	n.Sort = []tables.SortDescription{sd}
	return n.ToSafeURL()
}

// WithTotals returns a URL with both totals policies replaced.
func (s *Query) WithTotals(rows, cols pivot.TotalsPolicy) safehtml.URL {
	n := s.Clone()
	n.RowTotals, n.ColumnTotals = &rows, &cols
	return n.ToSafeURL()
}

// WithShowZerosToggled returns a URL with zero cells shown or hidden.
func (s *Query) WithShowZerosToggled() safehtml.URL {
	n := s.Clone()
	n.ShowZeros = !s.ShowZeros
	return n.ToSafeURL()
}

// IsRow reports whether the field is a row field.
func (s *Query) IsRow(field string) bool { return slices.Contains(s.Rows, field) }

// IsColumn reports whether the field is a column field.
func (s *Query) IsColumn(field string) bool { return slices.Contains(s.Columns, field) }

// IsValue reports whether the field is a value field.
func (s *Query) IsValue(field string) bool {
	return slices.ContainsFunc(s.Values, func(v ValueSpec) bool { return v.Field == field })
}

// IsFiltered reports whether the query filters the field.
func (s *Query) IsFiltered(field string) bool {
	_, ok := s.Filters[field]
	return ok
}

// ToURL converts the Query back to a URL string
func (s *Query) ToURL() string {
	u := &url.URL{Path: s.Path}
	q := u.Query()

	if s.Source != "" {
		q.Set("source", s.Source)
	}
	if len(s.Rows) > 0 {
		q.Set("rows", strings.Join(s.Rows, ","))
	}
	if len(s.Columns) > 0 {
		q.Set("cols", strings.Join(s.Columns, ","))
	}
	if len(s.Values) > 0 {
		specs := make([]string, len(s.Values))
		for i, v := range s.Values {
			specs[i] = v.String()
		}
		q.Set("values", strings.Join(specs, ","))
	}

	headers := make([]string, 0, len(s.Filters))
	for h := range s.Filters {
		headers = append(headers, h)
	}
	sort.Strings(headers)
	for _, h := range headers {
		q.Set("filter:"+h, strings.Join(s.Filters[h], filterSeparator))
	}

	if len(s.Sort) > 0 {
		parts := make([]string, len(s.Sort))
		for i, sd := range s.Sort {
			parts[i] = sd.String()
		}
		q.Set("sort", strings.Join(parts, ","))
	}
	if s.RowTotals != nil {
		q.Set("rowTotals", s.RowTotals.String())
	}
	if s.ColumnTotals != nil {
		q.Set("colTotals", s.ColumnTotals.String())
	}
	if s.ShowZeros {
		q.Set("zeros", "1")
	}

	u.RawQuery = q.Encode()
	return u.String()
}

// ToSafeURL converts the Query to a safehtml.URL
func (s *Query) ToSafeURL() safehtml.URL {
	return safehtml.URLSanitized(s.ToURL())
}
