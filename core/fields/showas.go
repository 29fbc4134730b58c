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

package fields

import (
	"fmt"
	"strings"
)

// ShowAs selects a transform applied to a value field's cells after the
// table is built.
type ShowAs int

const (
	ShowAsNone ShowAs = iota // Raw aggregate
	DiffRow                  // Difference to the previous row at the same level
	DiffRowPct               // Percentage difference to the previous row
	DiffCol                  // Difference to the previous column at the same level
	DiffColPct               // Percentage difference to the previous column
)

var showAsNames = [...]string{"None", "DiffRow", "DiffRowPct", "DiffCol", "DiffColPct"}

func (s ShowAs) String() string {
	if !s.Valid() {
		return fmt.Sprintf("ShowAs(%d)", int(s))
	}
	return showAsNames[s]
}

// Valid reports whether s is a known transform.
func (s ShowAs) Valid() bool {
	return s >= 0 && int(s) < len(showAsNames)
}

// IsRow reports whether s compares against the previous row.
func (s ShowAs) IsRow() bool { return s == DiffRow || s == DiffRowPct }

// IsCol reports whether s compares against the previous column.
func (s ShowAs) IsCol() bool { return s == DiffCol || s == DiffColPct }

// IsPct reports whether s is a percentage difference.
func (s ShowAs) IsPct() bool { return s == DiffRowPct || s == DiffColPct }

// MarshalText implements encoding.TextMarshaler.
func (s ShowAs) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown show-as %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ShowAs) UnmarshalText(b []byte) error {
	v, err := ParseShowAs(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseShowAs parses a transform name case-insensitively. An empty string
// is ShowAsNone.
func ParseShowAs(str string) (ShowAs, error) {
	if str == "" {
		return ShowAsNone, nil
	}
	for i, name := range showAsNames {
		if strings.EqualFold(str, name) {
			return ShowAs(i), nil
		}
	}
	return ShowAsNone, fmt.Errorf("unknown show-as %q", str)
}
