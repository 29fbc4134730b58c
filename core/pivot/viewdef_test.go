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
	"strings"
	"testing"
	"time"

	"github.com/google/pivotengine/core/aggregates"
	"github.com/google/pivotengine/core/fields"
)

func configuredEngine() *Engine {
	e := NewEngine(syncConfig())
	e.DeferUpdate(func() {
		e.SetShowZeros(true)
		e.SetShowRowTotals(Subtotals)
		e.SetShowColumnTotals(TotalsNone)

		region := e.AddField("Region", "")
		region.SetDescending(true)
		region.SetFilter(&fields.ConditionFilter{
			Condition1: fields.Condition{Operator: fields.OpNE, Value: "E"},
			Condition2: fields.Condition{Operator: fields.OpBW, Value: "N"},
			And:        true,
		})
		cat := e.AddField("Cat", "Category")
		cat.SetFilter(fields.NewValueFilter("B", "A"))
		year := e.AddField("Year", "")
		year.SetWidth(80)
		w := e.AddField("W", "Weight")
		sales := e.AddField("Sales", "")
		sales.SetFormat("n2")
		sales.SetShowAs(fields.DiffRowPct)
		sales.SetWeightField(w)
		avg := e.AddField("Sales", "Avg Sales")
		avg.SetAggregate(aggregates.Avg)

		e.RowFields().SetMaxItems(3)
		e.RowFields().Push(region)
		e.RowFields().Push(cat)
		e.ColumnFields().Push(year)
		e.ValueFields().Push(sales)
		e.ValueFields().Push(avg)
		e.FilterFields().Push(region)
	})
	return e
}

func TestViewDefinitionJSONRoundTrip(t *testing.T) {
	src := configuredEngine()
	data, err := MarshalViewDefinition(src.ViewDefinition())
	if err != nil {
		t.Fatalf("MarshalViewDefinition: %v", err)
	}
	def, err := ParseViewDefinition(data)
	if err != nil {
		t.Fatalf("ParseViewDefinition: %v", err)
	}
	dst := NewEngine(syncConfig())
	if err := dst.SetViewDefinition(def); err != nil {
		t.Fatalf("SetViewDefinition: %v", err)
	}
	again, err := MarshalViewDefinition(dst.ViewDefinition())
	if err != nil {
		t.Fatalf("MarshalViewDefinition: %v", err)
	}
	if string(again) != string(data) {
		t.Errorf("round trip changed the definition:\n%s\n---\n%s", data, again)
	}

	sales := dst.Field("Sales")
	if sales.WeightField() != dst.Field("Weight") {
		t.Error("weight field not reattached by header")
	}
	if _, ok := dst.Field("Region").Filter().(*fields.ConditionFilter); !ok {
		t.Error("condition filter not restored")
	}
	if vf, ok := dst.Field("Category").Filter().(*fields.ValueFilter); !ok || !vf.ShowValues["A"] || vf.ShowValues["C"] {
		t.Error("value filter not restored")
	}
	if !dst.FilterFields().Contains(dst.Field("Region")) || !dst.RowFields().Contains(dst.Field("Region")) {
		t.Error("Region should be on rows and filters")
	}
	for _, want := range []string{`"showRowTotals": "Subtotals"`, `"aggregate": "Avg"`, `"showAs": "DiffRowPct"`, `"operator": "BW"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("JSON missing %s:\n%s", want, data)
		}
	}
}

func TestViewDefinitionTextRoundTrip(t *testing.T) {
	def := configuredEngine().ViewDefinition()
	text, err := MarshalViewDefinitionText(def)
	if err != nil {
		t.Fatalf("MarshalViewDefinitionText: %v", err)
	}
	if !strings.Contains(string(text), "fields") {
		t.Errorf("text form lacks fields:\n%s", text)
	}
	parsed, err := ParseViewDefinitionText(text)
	if err != nil {
		t.Fatalf("ParseViewDefinitionText: %v", err)
	}
	want, _ := MarshalViewDefinition(def)
	got, _ := MarshalViewDefinition(parsed)
	if string(got) != string(want) {
		t.Errorf("text round trip changed the definition:\n%s\n---\n%s", want, got)
	}
}

func TestViewDefinitionValidate(t *testing.T) {
	base := func() ViewDefinition {
		return ViewDefinition{
			Fields: []FieldDefinition{
				{Binding: "Cat", Header: "Cat"},
				{Binding: "Sales", Header: "Sales"},
			},
			RowFields:   ListDefinition{Items: []string{"Cat"}},
			ValueFields: ListDefinition{Items: []string{"Sales"}},
		}
	}
	tests := []struct {
		name   string
		mutate func(*ViewDefinition)
		want   string
	}{
		{"valid", func(*ViewDefinition) {}, ""},
		{"duplicate header", func(d *ViewDefinition) {
			d.Fields = append(d.Fields, FieldDefinition{Binding: "x", Header: "Cat"})
		}, "duplicate field header"},
		{"unknown list field", func(d *ViewDefinition) {
			d.ColumnFields.Items = []string{"Nope"}
		}, "unknown field"},
		{"field on two axes", func(d *ViewDefinition) {
			d.ColumnFields.Items = []string{"Cat"}
		}, "both"},
		{"too many items", func(d *ViewDefinition) {
			d.RowFields.MaxItems = 1
			d.RowFields.Items = []string{"Cat", "Sales"}
			d.ValueFields.Items = nil
		}, "exceed"},
		{"unknown weight", func(d *ViewDefinition) {
			d.Fields[1].WeightField = "W"
		}, "unknown weight"},
		{"self weight", func(d *ViewDefinition) {
			d.Fields[1].WeightField = "Sales"
		}, "own weight"},
		{"bad aggregate", func(d *ViewDefinition) {
			d.Fields[1].Aggregate = aggregates.Aggregate(99)
		}, "unknown aggregate"},
		{"bad filter type", func(d *ViewDefinition) {
			d.Fields[0].Filter = &FilterDefinition{Type: "regex"}
		}, "unknown filter type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(&d)
			err := d.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestSetViewDefinitionLeavesEngineOnError(t *testing.T) {
	e, _, _ := newCatEngine(syncConfig(), catSales())
	before := e.Fields().Headers()
	err := e.SetViewDefinition(ViewDefinition{RowFields: ListDefinition{Items: []string{"Nope"}}})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := e.Fields().Headers(); len(got) != len(before) {
		t.Errorf("fields changed to %v", got)
	}
	if e.View().Len() != 3 {
		t.Errorf("view has %d rows, want 3", e.View().Len())
	}
}

func TestDateConditionSurvivesRoundTrip(t *testing.T) {
	month := func(m time.Month) time.Time { return time.Date(2024, m, 10, 0, 0, 0, 0, time.UTC) }
	src := Slice[map[string]any]{
		{"Day": month(time.January), "Cat": "A", "Sales": 1},
		{"Day": month(time.March), "Cat": "A", "Sales": 1},
		{"Day": month(time.September), "Cat": "A", "Sales": 1},
	}
	e, _, _ := newCatEngine(syncConfig(), src)
	e.DeferUpdate(func() {
		day := e.AddField("Day", "")
		day.SetFilter(&fields.ConditionFilter{
			Condition1: fields.Condition{Operator: fields.OpGT, Value: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		})
	})
	want := dump(e)
	if !strings.Contains(want, "[1]") {
		t.Fatalf("filter not applied before round trip:\n%s", want)
	}

	tests := []struct {
		name      string
		roundTrip func(ViewDefinition) (ViewDefinition, error)
	}{
		{"json", func(def ViewDefinition) (ViewDefinition, error) {
			data, err := MarshalViewDefinition(def)
			if err != nil {
				return ViewDefinition{}, err
			}
			return ParseViewDefinition(data)
		}},
		{"text", func(def ViewDefinition) (ViewDefinition, error) {
			data, err := MarshalViewDefinitionText(def)
			if err != nil {
				return ViewDefinition{}, err
			}
			return ParseViewDefinitionText(data)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := tt.roundTrip(e.ViewDefinition())
			if err != nil {
				t.Fatalf("round trip: %v", err)
			}
			dst := NewEngine(syncConfig())
			dst.SetItemsSource(src)
			if err := dst.SetViewDefinition(def); err != nil {
				t.Fatalf("SetViewDefinition: %v", err)
			}
			if got := dump(dst); got != want {
				t.Errorf("after round trip:\n%s\nwant:\n%s", got, want)
			}
		})
	}
}

