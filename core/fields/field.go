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

// Package fields defines the dimension and measure descriptors a pivot
// engine is configured with: fields, their filters, and the named field
// lists that hold them.
package fields

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/pivotengine/core/aggregates"
	"github.com/google/pivotengine/core/values"
)

// Owner is notified when a field property changes. The pivot engine
// implements it to invalidate its output.
type Owner interface {
	// FieldChanged is called after prop changed on f.
	FieldChanged(f *Field, prop string)
	// HeaderInUse reports whether another field than except uses header.
	HeaderInUse(header string, except *Field) bool
}

// Property names passed to Owner.FieldChanged.
const (
	PropBinding     = "binding"
	PropHeader      = "header"
	PropDataType    = "dataType"
	PropFormat      = "format"
	PropAggregate   = "aggregate"
	PropShowAs      = "showAs"
	PropDescending  = "descending"
	PropWidth       = "width"
	PropWeightField = "weightField"
	PropFilter      = "filter"
)

// Field describes how to read one named value out of a record and how to
// group, aggregate, format and filter it.
type Field struct {
	owner Owner

	binding     string
	path        values.Path
	header      string
	dataType    values.DataType
	format      string
	aggregate   aggregates.Aggregate
	showAs      ShowAs
	descending  bool
	width       int
	weightField *Field
	filter      Filter
}

// New creates a field for a dotted binding. An empty header is derived from
// the binding (see HeaderCase).
func New(binding, header string) *Field {
	if header == "" {
		header = HeaderCase(binding)
	}
	return &Field{
		binding: binding,
		path:    values.ParsePath(binding),
		header:  header,
	}
}

// SetOwner attaches the field to an owner. A field belongs to at most one
// owner; attaching it to a second one panics.
func (f *Field) SetOwner(o Owner) {
	if f.owner != nil && o != nil && f.owner != o {
		panic(fmt.Sprintf("fields: field %q already belongs to another engine", f.header))
	}
	f.owner = o
}

// Owner returns the field's owner, or nil.
func (f *Field) Owner() Owner { return f.owner }

func (f *Field) changed(prop string) {
	if f.owner != nil {
		f.owner.FieldChanged(f, prop)
	}
}

// Binding returns the dotted path the field reads.
func (f *Field) Binding() string { return f.binding }

// SetBinding changes the path the field reads.
func (f *Field) SetBinding(b string) {
	if b == f.binding {
		return
	}
	f.binding = b
	f.path = values.ParsePath(b)
	f.changed(PropBinding)
}

// Header returns the field's display name, which is also its identity.
func (f *Field) Header() string { return f.header }

// SetHeader renames the field. Reusing a header of another field of the same
// owner panics.
func (f *Field) SetHeader(h string) {
	if h == f.header {
		return
	}
	if h == "" {
		panic("fields: empty header")
	}
	if f.owner != nil && f.owner.HeaderInUse(h, f) {
		panic(fmt.Sprintf("fields: duplicate field header %q", h))
	}
	f.header = h
	f.changed(PropHeader)
}

// DataType returns the declared data type.
func (f *Field) DataType() values.DataType { return f.dataType }

// SetDataType sets the declared data type.
func (f *Field) SetDataType(t values.DataType) {
	if t == f.dataType {
		return
	}
	f.dataType = t
	f.changed(PropDataType)
}

// Format returns the display format.
func (f *Field) Format() string { return f.format }

// SetFormat sets the display format. Formats also drive grouping since keys
// are built from formatted values.
func (f *Field) SetFormat(format string) {
	if format == f.format {
		return
	}
	f.format = format
	f.changed(PropFormat)
}

// Aggregate returns the statistic used when the field is a value field.
func (f *Field) Aggregate() aggregates.Aggregate { return f.aggregate }

// SetAggregate sets the statistic used when the field is a value field.
func (f *Field) SetAggregate(a aggregates.Aggregate) {
	if !a.Valid() {
		panic(fmt.Sprintf("fields: unknown aggregate %d", int(a)))
	}
	if a == f.aggregate {
		return
	}
	f.aggregate = a
	f.changed(PropAggregate)
}

// ShowAs returns the post-aggregation transform for value fields.
func (f *Field) ShowAs() ShowAs { return f.showAs }

// SetShowAs sets the post-aggregation transform for value fields.
func (f *Field) SetShowAs(s ShowAs) {
	if !s.Valid() {
		panic(fmt.Sprintf("fields: unknown show-as %d", int(s)))
	}
	if s == f.showAs {
		return
	}
	f.showAs = s
	f.changed(PropShowAs)
}

// Descending reports whether the field's keys sort in descending order.
func (f *Field) Descending() bool { return f.descending }

// SetDescending sets the field's sort direction.
func (f *Field) SetDescending(d bool) {
	if d == f.descending {
		return
	}
	f.descending = d
	f.changed(PropDescending)
}

// Width is a display hint for renderers, 0 means automatic.
func (f *Field) Width() int { return f.width }

// SetWidth sets the display width hint.
func (f *Field) SetWidth(w int) {
	if w == f.width {
		return
	}
	f.width = w
	f.changed(PropWidth)
}

// WeightField returns the field whose value multiplies this field's values
// when aggregating, or nil.
func (f *Field) WeightField() *Field { return f.weightField }

// SetWeightField sets the weight field. A field cannot weigh itself.
func (f *Field) SetWeightField(w *Field) {
	if w == f {
		panic(fmt.Sprintf("fields: field %q cannot be its own weight", f.header))
	}
	if w == f.weightField {
		return
	}
	f.weightField = w
	f.changed(PropWeightField)
}

// Filter returns the field's filter, or nil.
func (f *Field) Filter() Filter { return f.filter }

// SetFilter replaces the field's filter.
func (f *Field) SetFilter(flt Filter) {
	f.filter = flt
	f.changed(PropFilter)
}

// IsFiltered reports whether the field has an active filter.
func (f *Field) IsFiltered() bool {
	return f.filter != nil && f.filter.IsActive()
}

// Matches applies the field's filter to a record.
func (f *Field) Matches(item any, c *values.Culture) bool {
	if !f.IsFiltered() {
		return true
	}
	v := f.Value(item)
	return f.filter.Apply(v, f.formatValue(v, c))
}

// Value reads the raw value from a record.
func (f *Field) Value(item any) any {
	return f.path.Get(item)
}

// FormattedValue reads the value and converts it to its display string.
// Strings are returned as-is.
func (f *Field) FormattedValue(item any, c *values.Culture) string {
	return f.formatValue(f.Value(item), c)
}

func (f *Field) formatValue(v any, c *values.Culture) string {
	if s, ok := v.(string); ok {
		return s
	}
	return c.Format(v, f.format)
}

// String returns the field header.
func (f *Field) String() string { return f.header }

// HeaderCase turns a binding into a display header:
// "unitPrice" becomes "Unit Price", "order.ship_date" becomes "Order Ship Date".
func HeaderCase(binding string) string {
	var b strings.Builder
	prev := ' '
	for _, r := range binding {
		switch {
		case r == '.' || r == '_' || r == '-' || r == ' ':
			if prev != ' ' {
				b.WriteRune(' ')
			}
			prev = ' '
			continue
		case prev == ' ':
			r = unicode.ToUpper(r)
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			b.WriteRune(' ')
		}
		b.WriteRune(r)
		prev = r
	}
	return strings.TrimSpace(b.String())
}
