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
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/google/pivotengine/core/aggregates"
	"github.com/google/pivotengine/core/fields"
	"github.com/google/pivotengine/core/values"
)

// ViewDefinition is the persisted form of an engine's configuration:
// totals settings, every field with its properties and filter, and the
// contents of the four view lists by header.
type ViewDefinition struct {
	ShowZeros        bool              `json:"showZeros,omitempty"`
	TotalsBeforeData bool              `json:"totalsBeforeData,omitempty"`
	ShowRowTotals    TotalsPolicy      `json:"showRowTotals"`
	ShowColumnTotals TotalsPolicy      `json:"showColumnTotals"`
	Fields           []FieldDefinition `json:"fields"`
	RowFields        ListDefinition    `json:"rowFields"`
	ColumnFields     ListDefinition    `json:"columnFields"`
	ValueFields      ListDefinition    `json:"valueFields"`
	FilterFields     ListDefinition    `json:"filterFields"`
}

// ListDefinition lists field headers and an optional capacity.
type ListDefinition struct {
	Items    []string `json:"items"`
	MaxItems int      `json:"maxItems,omitempty"`
}

// FieldDefinition holds the persisted properties of one field.
type FieldDefinition struct {
	Binding     string               `json:"binding"`
	Header      string               `json:"header"`
	DataType    values.DataType      `json:"dataType"`
	Format      string               `json:"format,omitempty"`
	Aggregate   aggregates.Aggregate `json:"aggregate"`
	ShowAs      fields.ShowAs        `json:"showAs"`
	Descending  bool                 `json:"descending,omitempty"`
	Width       int                  `json:"width,omitempty"`
	WeightField string               `json:"weightField,omitempty"`
	Filter      *FilterDefinition    `json:"filter,omitempty"`
}

// Filter types.
const (
	ConditionFilterType = "condition"
	ValueFilterType     = "value"
)

// FilterDefinition is a field filter, discriminated by Type.
type FilterDefinition struct {
	Type       string               `json:"type"`
	Condition1 *ConditionDefinition `json:"condition1,omitempty"`
	Condition2 *ConditionDefinition `json:"condition2,omitempty"`
	And        bool                 `json:"and,omitempty"`
	// ShowValues is nil when every value is shown.
	ShowValues []string `json:"showValues,omitempty"`
	FilterText string   `json:"filterText,omitempty"`
}

// ConditionDefinition is one condition of a condition filter.
type ConditionDefinition struct {
	Operator fields.Operator `json:"operator"`
	Value    any             `json:"value"`
}

// ViewDefinition returns the engine's current configuration.
func (e *Engine) ViewDefinition() ViewDefinition {
	def := ViewDefinition{
		ShowZeros:        e.showZeros,
		TotalsBeforeData: e.totalsBeforeData,
		ShowRowTotals:    e.rowTotals,
		ShowColumnTotals: e.colTotals,
		RowFields:        listDefinition(e.rowFields),
		ColumnFields:     listDefinition(e.columnFields),
		ValueFields:      listDefinition(e.valueFields),
		FilterFields:     listDefinition(e.filterFields),
	}
	for _, f := range e.fields.Fields() {
		fd := FieldDefinition{
			Binding:    f.Binding(),
			Header:     f.Header(),
			DataType:   f.DataType(),
			Format:     f.Format(),
			Aggregate:  f.Aggregate(),
			ShowAs:     f.ShowAs(),
			Descending: f.Descending(),
			Width:      f.Width(),
			Filter:     filterDefinition(f.Filter()),
		}
		if wf := f.WeightField(); wf != nil {
			fd.WeightField = wf.Header()
		}
		def.Fields = append(def.Fields, fd)
	}
	return def
}

func listDefinition(l *fields.List) ListDefinition {
	return ListDefinition{Items: l.Headers(), MaxItems: l.MaxItems()}
}

func filterDefinition(f fields.Filter) *FilterDefinition {
	switch f := f.(type) {
	case *fields.ConditionFilter:
		if !f.IsActive() {
			return nil
		}
		return &FilterDefinition{
			Type:       ConditionFilterType,
			Condition1: conditionDefinition(f.Condition1),
			Condition2: conditionDefinition(f.Condition2),
			And:        f.And,
		}
	case *fields.ValueFilter:
		if !f.IsActive() {
			return nil
		}
		fd := &FilterDefinition{Type: ValueFilterType, FilterText: f.FilterText}
		if f.ShowValues != nil {
			fd.ShowValues = []string{}
			for v, show := range f.ShowValues {
				if show {
					fd.ShowValues = append(fd.ShowValues, v)
				}
			}
			sort.Strings(fd.ShowValues)
		}
		return fd
	}
	return nil
}

func conditionDefinition(c fields.Condition) *ConditionDefinition {
	if !c.IsActive() {
		return nil
	}
	return &ConditionDefinition{Operator: c.Operator, Value: c.Value}
}

// Validate checks that the definition can be applied: headers are unique
// and non-empty, enumerations are known, weight fields exist, list items
// name defined fields, and no field is in more than one of the row,
// column and value lists.
func (def *ViewDefinition) Validate() error {
	headers := make(map[string]bool, len(def.Fields))
	for _, fd := range def.Fields {
		if fd.Header == "" && fd.Binding == "" {
			return fmt.Errorf("field has neither binding nor header")
		}
		h := fieldHeader(fd)
		if headers[h] {
			return fmt.Errorf("duplicate field header %q", h)
		}
		headers[h] = true
		if !fd.Aggregate.Valid() {
			return fmt.Errorf("field %q: unknown aggregate %d", h, int(fd.Aggregate))
		}
		if !fd.ShowAs.Valid() {
			return fmt.Errorf("field %q: unknown show-as %d", h, int(fd.ShowAs))
		}
		if fd.Filter != nil && fd.Filter.Type != ConditionFilterType && fd.Filter.Type != ValueFilterType {
			return fmt.Errorf("field %q: unknown filter type %q", h, fd.Filter.Type)
		}
	}
	for _, fd := range def.Fields {
		if fd.WeightField == "" {
			continue
		}
		if fd.WeightField == fieldHeader(fd) {
			return fmt.Errorf("field %q: cannot be its own weight", fd.WeightField)
		}
		if !headers[fd.WeightField] {
			return fmt.Errorf("field %q: unknown weight field %q", fieldHeader(fd), fd.WeightField)
		}
	}
	axis := make(map[string]string)
	for _, l := range []struct {
		name string
		def  ListDefinition
		axis bool
	}{
		{"rowFields", def.RowFields, true},
		{"columnFields", def.ColumnFields, true},
		{"valueFields", def.ValueFields, true},
		{"filterFields", def.FilterFields, false},
	} {
		if l.def.MaxItems > 0 && len(l.def.Items) > l.def.MaxItems {
			return fmt.Errorf("%s: %d items exceed the maximum of %d", l.name, len(l.def.Items), l.def.MaxItems)
		}
		seen := make(map[string]bool, len(l.def.Items))
		for _, h := range l.def.Items {
			if !headers[h] {
				return fmt.Errorf("%s: unknown field %q", l.name, h)
			}
			if seen[h] {
				return fmt.Errorf("%s: duplicate field %q", l.name, h)
			}
			seen[h] = true
			if !l.axis {
				continue
			}
			if other, ok := axis[h]; ok {
				return fmt.Errorf("field %q is in both %s and %s", h, other, l.name)
			}
			axis[h] = l.name
		}
	}
	return nil
}

func fieldHeader(fd FieldDefinition) string {
	if fd.Header != "" {
		return fd.Header
	}
	return fields.HeaderCase(fd.Binding)
}

// SetViewDefinition replaces the engine's fields and lists with def. The
// definition is validated first; on error the engine is unchanged.
func (e *Engine) SetViewDefinition(def ViewDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid view definition: %w", err)
	}
	e.DeferUpdate(func() {
		e.clearLists()
		e.showZeros = def.ShowZeros
		e.totalsBeforeData = def.TotalsBeforeData
		e.rowTotals = def.ShowRowTotals
		e.colTotals = def.ShowColumnTotals
		e.defChanged = true

		for _, fd := range def.Fields {
			f := fields.New(fd.Binding, fd.Header)
			f.SetDataType(fd.DataType)
			f.SetFormat(fd.Format)
			f.SetAggregate(fd.Aggregate)
			f.SetShowAs(fd.ShowAs)
			f.SetDescending(fd.Descending)
			f.SetWidth(fd.Width)
			if flt := newFilter(fd.Filter); flt != nil {
				f.SetFilter(flt)
			}
			e.fields.Push(f)
		}
		for _, fd := range def.Fields {
			if fd.WeightField != "" {
				e.fields.ByHeader(fieldHeader(fd)).SetWeightField(e.fields.ByHeader(fd.WeightField))
			}
		}
		for _, l := range []struct {
			list *fields.List
			def  ListDefinition
		}{
			{e.rowFields, def.RowFields},
			{e.columnFields, def.ColumnFields},
			{e.valueFields, def.ValueFields},
			{e.filterFields, def.FilterFields},
		} {
			l.list.SetMaxItems(l.def.MaxItems)
			for _, h := range l.def.Items {
				l.list.Push(e.fields.ByHeader(h))
			}
		}
	})
	return nil
}

func newFilter(fd *FilterDefinition) fields.Filter {
	if fd == nil {
		return nil
	}
	switch fd.Type {
	case ConditionFilterType:
		f := &fields.ConditionFilter{And: fd.And}
		if c := fd.Condition1; c != nil {
			f.Condition1 = fields.Condition{Operator: c.Operator, Value: c.Value}
		}
		if c := fd.Condition2; c != nil {
			f.Condition2 = fields.Condition{Operator: c.Operator, Value: c.Value}
		}
		return f
	case ValueFilterType:
		f := &fields.ValueFilter{FilterText: fd.FilterText}
		if fd.ShowValues != nil {
			f.ShowValues = make(map[string]bool, len(fd.ShowValues))
			for _, v := range fd.ShowValues {
				f.ShowValues[v] = true
			}
		}
		return f
	}
	return nil
}

// MarshalViewDefinition encodes def as indented JSON.
func MarshalViewDefinition(def ViewDefinition) ([]byte, error) {
	return json.MarshalIndent(def, "", "  ")
}

// ParseViewDefinition decodes a JSON view definition.
func ParseViewDefinition(data []byte) (ViewDefinition, error) {
	var def ViewDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return ViewDefinition{}, fmt.Errorf("parse view definition: %w", err)
	}
	return def, nil
}

// MarshalViewDefinitionText encodes def in protobuf text format, as a
// google.protobuf.Struct mirroring the JSON form.
func MarshalViewDefinitionText(def ViewDefinition) ([]byte, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("convert view definition: %w", err)
	}
	return prototext.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
}

// ParseViewDefinitionText decodes a view definition written by
// MarshalViewDefinitionText.
func ParseViewDefinitionText(data []byte) (ViewDefinition, error) {
	var s structpb.Struct
	if err := prototext.Unmarshal(data, &s); err != nil {
		return ViewDefinition{}, fmt.Errorf("parse view definition text: %w", err)
	}
	js, err := json.Marshal(s.AsMap())
	if err != nil {
		return ViewDefinition{}, err
	}
	return ParseViewDefinition(js)
}
