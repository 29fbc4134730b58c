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

// Package aggregates provides the per-cell accumulator used by the pivot
// engine. A Tally stores intermediate state (counts, sums, extremes) that can
// be merged with other tallies and turned into any of the supported
// statistics on demand.
package aggregates

import (
	"fmt"
	"strings"
)

// Aggregate identifies a statistic computed from a Tally.
type Aggregate int

const (
	Sum    Aggregate = iota // Sum of numeric values
	Cnt                     // Count of non-nil values
	Avg                     // Average of numeric values
	Max                     // Maximum value
	Min                     // Minimum value
	Rng                     // Max - Min
	Std                     // Sample standard deviation
	Var                     // Sample variance
	StdPop                  // Population standard deviation
	VarPop                  // Population variance
)

var aggregateNames = [...]string{"Sum", "Cnt", "Avg", "Max", "Min", "Rng", "Std", "Var", "StdPop", "VarPop"}

// String returns the aggregate name, e.g. "Sum" or "StdPop".
func (a Aggregate) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Aggregate(%d)", int(a))
	}
	return aggregateNames[a]
}

// Valid reports whether a names a known statistic.
func (a Aggregate) Valid() bool {
	return a >= 0 && int(a) < len(aggregateNames)
}

// MarshalText implements encoding.TextMarshaler.
func (a Aggregate) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("unknown aggregate %d", int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Aggregate) UnmarshalText(b []byte) error {
	agg, err := Parse(string(b))
	if err != nil {
		return err
	}
	*a = agg
	return nil
}

// Parse parses an aggregate name case-insensitively.
// "count", "average", "range" and "stdev" are accepted as aliases.
func Parse(s string) (Aggregate, error) {
	for i, name := range aggregateNames {
		if strings.EqualFold(s, name) {
			return Aggregate(i), nil
		}
	}
	switch strings.ToLower(s) {
	case "count":
		return Cnt, nil
	case "average", "mean":
		return Avg, nil
	case "range":
		return Rng, nil
	case "stdev", "stddev":
		return Std, nil
	}
	return 0, fmt.Errorf("unknown aggregate %q", s)
}

// All returns every aggregate in declaration order.
func All() []Aggregate {
	all := make([]Aggregate, len(aggregateNames))
	for i := range all {
		all[i] = Aggregate(i)
	}
	return all
}
