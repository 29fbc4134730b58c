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

package aggregates

import (
	"math"
	"testing"
	"time"
)

func tallyOf(vals ...any) *Tally {
	t := NewTally()
	for _, v := range vals {
		t.Add(v, nil)
	}
	return t
}

func TestTallyAggregates(t *testing.T) {
	tally := tallyOf(2, 4, 4, 4, 5, 5, 7, 9)
	tests := []struct {
		agg  Aggregate
		want any
	}{
		{Sum, 40.0},
		{Cnt, 8},
		{Avg, 5.0},
		{Min, 2},
		{Max, 9},
		{Rng, 7.0},
		{VarPop, 4.0},
		{StdPop, 2.0},
		{Var, 32.0 / 7},
		{Std, math.Sqrt(32.0 / 7)},
	}
	for _, tt := range tests {
		t.Run(tt.agg.String(), func(t *testing.T) {
			got := tally.Aggregate(tt.agg)
			if gf, ok := got.(float64); ok {
				wf := tt.want.(float64)
				if math.Abs(gf-wf) > 1e-9 {
					t.Errorf("Aggregate(%v) = %v, want %v", tt.agg, gf, wf)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Aggregate(%v) = %v (%T), want %v (%T)", tt.agg, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestTallyEmpty(t *testing.T) {
	tally := NewTally()
	tally.Add(nil, nil)
	for _, agg := range All() {
		if got := tally.Aggregate(agg); got != nil {
			t.Errorf("empty Aggregate(%v) = %v, want nil", agg, got)
		}
	}
}

func TestTallyNonNumeric(t *testing.T) {
	tally := tallyOf("b", "a", "c")
	if got := tally.Aggregate(Cnt); got != 3 {
		t.Errorf("Cnt = %v, want 3", got)
	}
	if got := tally.Aggregate(Avg); got != 0.0 {
		t.Errorf("Avg = %v, want 0", got)
	}
	if got := tally.Aggregate(Min); got != "a" {
		t.Errorf("Min = %v, want a", got)
	}
	if got := tally.Aggregate(Max); got != "c" {
		t.Errorf("Max = %v, want c", got)
	}
	if got := tally.Aggregate(Rng).(float64); !math.IsNaN(got) {
		t.Errorf("Rng = %v, want NaN", got)
	}
	if got := tally.Aggregate(Var); got != 0.0 {
		t.Errorf("Var = %v, want 0", got)
	}
}

func TestTallyBooleans(t *testing.T) {
	tally := tallyOf(true, false, true)
	if got := tally.Aggregate(Sum); got != 2.0 {
		t.Errorf("Sum = %v, want 2", got)
	}
	if got := tally.NumericCount(); got != 3 {
		t.Errorf("NumericCount = %d, want 3", got)
	}
}

func TestTallyWeight(t *testing.T) {
	tally := NewTally()
	tally.Add(10, 2)
	if got := tally.Sum(); got != 20 {
		t.Errorf("Sum = %v, want 20", got)
	}
	if got := tally.SumSquares(); got != 400 {
		t.Errorf("SumSquares = %v, want 400", got)
	}
	tally.Add(5, "heavy")
	if got := tally.Sum(); got != 25 {
		t.Errorf("Sum with non-numeric weight = %v, want 25", got)
	}
}

func TestTallyBooleanWeight(t *testing.T) {
	tests := []struct {
		weight any
		sum    float64
	}{
		{true, 7},
		{false, 0},
		{nil, 7},
	}
	for _, tt := range tests {
		tally := NewTally()
		tally.Add(7, tt.weight)
		if got := tally.Sum(); got != tt.sum {
			t.Errorf("Add(7, %v): Sum = %v, want %v", tt.weight, got, tt.sum)
		}
		if got := tally.Count(); got != 1 {
			t.Errorf("Add(7, %v): Count = %d, want 1", tt.weight, got)
		}
	}
}

func TestTallySingleValueVariance(t *testing.T) {
	tally := tallyOf(3)
	for _, agg := range []Aggregate{Var, Std, VarPop, StdPop} {
		if got := tally.Aggregate(agg); got != 0.0 {
			t.Errorf("Aggregate(%v) = %v, want 0", agg, got)
		}
	}
}

func TestTallyDateRange(t *testing.T) {
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.Add(90 * time.Second)
	tally := tallyOf(d2, d1)
	if got := tally.Aggregate(Rng); got != 90000.0 {
		t.Errorf("Rng = %v, want 90000", got)
	}
	if got := tally.Aggregate(Min); got != d1 {
		t.Errorf("Min = %v, want %v", got, d1)
	}
}

func sameAggregate(a, b any) bool {
	fa, okA := a.(float64)
	fb, okB := b.(float64)
	if okA && okB && math.IsNaN(fa) && math.IsNaN(fb) {
		return true
	}
	return a == b
}

func TestTallyMergeAssociative(t *testing.T) {
	build := func() (a, b, c *Tally) {
		return tallyOf(1, 2), tallyOf(nil, 10, "x"), tallyOf(-4, true)
	}

	a, b, c := build()
	a.Add(b, nil)
	a.Add(c, nil)

	a2, b2, c2 := build()
	b2.Add(c2, nil)
	a2.Add(b2, nil)

	for _, agg := range All() {
		want := a.Aggregate(agg)
		if got := a2.Aggregate(agg); !sameAggregate(got, want) {
			t.Errorf("(ab)c vs a(bc): Aggregate(%v) = %v, want %v", agg, got, want)
		}
	}
	if a.Count() != 6 || a.NumericCount() != 5 {
		t.Errorf("merged counts = %d/%d, want 6/5", a.Count(), a.NumericCount())
	}
	if a.Min() != -4 || a.Max() != "x" {
		t.Errorf("merged min/max = %v/%v, want -4/x", a.Min(), a.Max())
	}
}

func TestTallyMergeCommutative(t *testing.T) {
	x, y := tallyOf(3, 8), tallyOf(1)
	x2, y2 := tallyOf(3, 8), tallyOf(1)
	x.Merge(y)
	y2.Merge(x2)
	for _, agg := range All() {
		if got, want := y2.Aggregate(agg), x.Aggregate(agg); !sameAggregate(got, want) {
			t.Errorf("Aggregate(%v) = %v, want %v", agg, got, want)
		}
	}
}

func TestTallyUnknownAggregatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown aggregate")
		}
	}()
	tallyOf(1).Aggregate(Aggregate(99))
}

func TestParseAggregate(t *testing.T) {
	for _, agg := range All() {
		got, err := Parse(agg.String())
		if err != nil || got != agg {
			t.Errorf("Parse(%q) = %v, %v", agg.String(), got, err)
		}
	}
	if got, _ := Parse("average"); got != Avg {
		t.Errorf("Parse(average) = %v, want Avg", got)
	}
	if _, err := Parse("median"); err == nil {
		t.Error("expected error for median")
	}
}
