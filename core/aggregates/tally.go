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
	"fmt"
	"math"
	"time"

	"github.com/google/pivotengine/core/values"
)

// Tally accumulates the values that fall into one pivot cell.
// It can derive every Aggregate from its count, numeric count, sum,
// sum of squares and extremes. The zero value is ready to use.
type Tally struct {
	cnt  int     // Number of non-nil values
	cntn int     // Number of numeric (or boolean) values
	sum  float64 // Sum of weighted numeric values
	sum2 float64 // Sum of squared weighted numeric values
	min  any     // Smallest value seen, by values.Compare
	max  any     // Largest value seen, by values.Compare
}

// NewTally creates an empty tally.
func NewTally() *Tally {
	return &Tally{}
}

// Add adds a value to the tally.
//
// Passing another *Tally merges it. Nil values are ignored. Booleans count as
// 0 and 1, as values and as weights. Numeric values are multiplied by weight
// when weight is numeric.
func (t *Tally) Add(value any, weight any) {
	if o, ok := value.(*Tally); ok {
		t.Merge(o)
		return
	}
	if value == nil {
		return
	}
	t.cnt++
	if b, ok := value.(bool); ok {
		if b {
			value = 1.0
		} else {
			value = 0.0
		}
	}
	if t.min == nil || values.Compare(value, t.min) < 0 {
		t.min = value
	}
	if t.max == nil || values.Compare(value, t.max) > 0 {
		t.max = value
	}
	f, ok := values.ToFloat(value)
	if !ok || math.IsNaN(f) {
		return
	}
	if w, ok := values.ToFloat(weight); ok {
		f *= w
	}
	t.cntn++
	t.sum += f
	t.sum2 += f * f
}

// Merge combines another tally into this one. Merging is associative and
// commutative.
func (t *Tally) Merge(o *Tally) {
	if o == nil || o.cnt == 0 {
		return
	}
	t.cnt += o.cnt
	t.cntn += o.cntn
	t.sum += o.sum
	t.sum2 += o.sum2
	if o.min != nil && values.Compare(o.min, t.min) < 0 {
		t.min = o.min
	}
	if o.max != nil && (t.max == nil || values.Compare(o.max, t.max) > 0) {
		t.max = o.max
	}
}

// Count returns the number of non-nil values added.
func (t *Tally) Count() int { return t.cnt }

// NumericCount returns the number of numeric values added.
func (t *Tally) NumericCount() int { return t.cntn }

// Sum returns the weighted sum of the numeric values.
func (t *Tally) Sum() float64 { return t.sum }

// SumSquares returns the weighted sum of squares of the numeric values.
func (t *Tally) SumSquares() float64 { return t.sum2 }

// Min returns the smallest value seen, or nil.
func (t *Tally) Min() any { return t.min }

// Max returns the largest value seen, or nil.
func (t *Tally) Max() any { return t.max }

// Aggregate computes a statistic. It returns nil when no value was added.
// Sum, Avg and the dispersion statistics are float64, Cnt is an int and
// Min/Max return the original values. An unknown aggregate panics.
func (t *Tally) Aggregate(agg Aggregate) any {
	if t.cnt == 0 {
		return nil
	}
	avg := 0.0
	if t.cntn > 0 {
		avg = t.sum / float64(t.cntn)
	}
	switch agg {
	case Sum:
		return t.sum
	case Cnt:
		return t.cnt
	case Avg:
		return avg
	case Max:
		return t.max
	case Min:
		return t.min
	case Rng:
		return valueRange(t.min, t.max)
	case VarPop:
		return t.varPop(avg)
	case StdPop:
		return math.Sqrt(t.varPop(avg))
	case Var:
		return t.variance(avg)
	case Std:
		return math.Sqrt(t.variance(avg))
	}
	panic(fmt.Sprintf("aggregates: unknown aggregate %v", agg))
}

func (t *Tally) varPop(avg float64) float64 {
	if t.cntn == 0 {
		return 0
	}
	// Var = E[X²] - (E[X])²
	v := t.sum2/float64(t.cntn) - avg*avg
	if v < 0 {
		// Handle floating point precision issues
		v = 0
	}
	return v
}

// variance applies Bessel's correction to the population variance.
func (t *Tally) variance(avg float64) float64 {
	if t.cntn <= 1 {
		return 0
	}
	n := float64(t.cntn)
	return t.varPop(avg) * n / (n - 1)
}

// valueRange returns max - min for numbers, the span in milliseconds for
// dates and NaN for anything else.
func valueRange(min, max any) float64 {
	if a, ok := min.(time.Time); ok {
		if b, ok := max.(time.Time); ok {
			return float64(b.Sub(a).Milliseconds())
		}
	}
	a, okA := values.ToFloat(min)
	b, okB := values.ToFloat(max)
	if !okA || !okB {
		return math.NaN()
	}
	return b - a
}
