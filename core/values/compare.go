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

package values

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Compare orders two dynamic values.
// Returns -1 if a < b, 0 if equal, 1 if a > b.
//
// Nil sorts after everything else, NaN sorts after every other number.
// Values of different kinds are ordered by kind (numbers, strings, dates,
// booleans, other) so that Compare is a total order over mixed input.
func Compare(a, b any) int {
	if a == nil || b == nil {
		return compareNils(a == nil, b == nil)
	}
	if fa, ok := numeric(a); ok {
		if fb, ok := numeric(b); ok {
			return compareFloat64s(fa, fb)
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return compareTimes(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			return compareBools(x, y)
		}
	}
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func rank(v any) int {
	switch v.(type) {
	case string:
		return 1
	case time.Time:
		return 2
	case bool:
		return 3
	}
	if IsNumeric(v) {
		return 0
	}
	return 4
}

// compareNils puts nil values last.
func compareNils(aNil, bNil bool) int {
	switch {
	case aNil && bNil:
		return 0
	case aNil:
		return 1
	default:
		return -1
	}
}

// compareTimes compares two time.Time values
func compareTimes(a, b time.Time) int {
	if a.Before(b) {
		return -1
	}
	if a.After(b) {
		return 1
	}
	return 0
}

// compareBools compares two bool values (false < true)
func compareBools(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

// compareFloat64s compares two float64 values with NaN handling.
// NaN values are considered greater than all other values (sort to end).
func compareFloat64s(a, b float64) int {
	aNaN := math.IsNaN(a)
	bNaN := math.IsNaN(b)

	if aNaN && bNaN {
		return 0
	}
	if aNaN {
		return 1
	}
	if bNaN {
		return -1
	}

	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Equal reports whether Compare(a, b) == 0.
func Equal(a, b any) bool {
	return Compare(a, b) == 0
}
