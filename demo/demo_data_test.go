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

package demo

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/pivotengine/core/aggregates"
	"github.com/google/pivotengine/core/pivot"
	"github.com/google/pivotengine/core/values"
	"github.com/google/pivotengine/datasources"
)

func TestSalesDeterministic(t *testing.T) {
	a, b := Sales(50, 7), Sales(50, 7)
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed produced different records")
	}
	if reflect.DeepEqual(a, Sales(50, 8)) {
		t.Error("different seeds produced identical records")
	}
}

func TestSalesRecords(t *testing.T) {
	for i, r := range Sales(200, DefaultSeed) {
		if len(r) != len(SalesColumns) {
			t.Fatalf("record %d has %d columns, want %d", i, len(r), len(SalesColumns))
		}
		d := r["Date"].(time.Time)
		if d.Year() != 2023 && d.Year() != 2024 {
			t.Errorf("record %d date %v out of range", i, d)
		}
		if units := r["Units"].(int64); units < 1 || units > 20 {
			t.Errorf("record %d units = %d", i, units)
		}
		if amt := r["Amount"].(float64); amt <= 0 {
			t.Errorf("record %d amount = %v", i, amt)
		}
		if r["Region"] == nil || r["Product"] == nil {
			t.Errorf("record %d missing reference values: %v", i, r)
		}
	}
}

func TestLoader(t *testing.T) {
	l := NewLoader()
	ds, err := l.Load(context.Background(), map[string]string{"rows": "25", "seed": "3"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.Len() != 25 {
		t.Errorf("Len = %d, want 25", ds.Len())
	}
	if c := ds.Column("Amount"); c == nil || c.Type != values.Number {
		t.Errorf("Amount column = %+v", c)
	}

	for _, cfg := range []map[string]string{{"rows": "many"}, {"rows": "-1"}, {"seed": "x"}} {
		if _, err := l.Load(context.Background(), cfg); err == nil {
			t.Errorf("Load(%v) succeeded", cfg)
		}
	}
}

func TestDemoPivot(t *testing.T) {
	ds := SalesDataset(300, DefaultSeed)
	e := pivot.NewEngine(pivot.Config{Culture: values.Invariant})
	datasources.ApplyColumns(e, ds)
	e.SetItemsSource(ds)
	e.DeferUpdate(func() {
		e.RowFields().Push(e.Field("Region"))
		e.ColumnFields().Push(e.Field("Year"))
		units := e.Field("Units")
		units.SetAggregate(aggregates.Cnt)
		e.ValueFields().Push(units)
	})

	rows := e.View().Items()
	grand := rows[len(rows)-1]
	if grand.Level() != 0 {
		t.Fatalf("last row level = %d", grand.Level())
	}
	last := len(e.ColumnKeys()) - 1
	if got := grand.Cell(last); got != 300 {
		t.Errorf("grand total count = %v, want 300", got)
	}
}
