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

package tables

import (
	"fmt"
	"strings"
)

// SortDescription orders a view by one binding.
type SortDescription struct {
	Binding   string
	Ascending bool
}

// String renders the description as "binding" or "-binding" (descending).
func (sd SortDescription) String() string {
	if sd.Ascending {
		return sd.Binding
	}
	return "-" + sd.Binding
}

// ParseSortDescriptions parses a comma-separated list such as
// "Region,-Sales". A leading '-' means descending.
func ParseSortDescriptions(s string) ([]SortDescription, error) {
	if s == "" {
		return nil, nil
	}
	var sds []SortDescription
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		sd := SortDescription{Binding: part, Ascending: true}
		if strings.HasPrefix(part, "-") {
			sd = SortDescription{Binding: part[1:], Ascending: false}
		}
		if sd.Binding == "" {
			return nil, fmt.Errorf("empty sort binding in %q", s)
		}
		sds = append(sds, sd)
	}
	return sds, nil
}

// compareBy compares two items using multi-column sort order.
// Returns negative if a < b, zero if equal, positive if a > b.
func compareBy[T any](sorts []SortDescription, get func(T, string) any, cmp func(a, b any) int, a, b T) int {
	for _, sd := range sorts {
		c := cmp(get(a, sd.Binding), get(b, sd.Binding))
		if c != 0 {
			if !sd.Ascending {
				return -c // Reverse for descending
			}
			return c
		}
	}
	return 0
}
