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

// Package values holds the dynamic value helpers shared by the pivot engine:
// type detection, a total order over heterogeneous values, numeric coercion,
// binding paths and culture-aware display formatting.
package values

import (
	"fmt"
	"strings"
	"time"
)

// DataType describes the kind of value a field produces.
type DataType int

const (
	// Object is used when the type is unknown or mixed.
	Object DataType = iota
	String
	Number
	Boolean
	Date
)

var dataTypeNames = []string{"object", "string", "number", "boolean", "date"}

// String returns the lowercase type name.
func (t DataType) String() string {
	if t < 0 || int(t) >= len(dataTypeNames) {
		return fmt.Sprintf("DataType(%d)", int(t))
	}
	return dataTypeNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t DataType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *DataType) UnmarshalText(b []byte) error {
	dt, err := ParseDataType(string(b))
	if err != nil {
		return err
	}
	*t = dt
	return nil
}

// ParseDataType parses a type name as produced by DataType.String.
func ParseDataType(s string) (DataType, error) {
	for i, name := range dataTypeNames {
		if strings.EqualFold(s, name) {
			return DataType(i), nil
		}
	}
	if s == "" {
		return Object, nil
	}
	return Object, fmt.Errorf("unknown data type %q", s)
}

// TypeOf reports the DataType of a single value. Nil is Object.
func TypeOf(v any) DataType {
	switch v.(type) {
	case nil:
		return Object
	case string:
		return String
	case bool:
		return Boolean
	case time.Time:
		return Date
	}
	if IsNumeric(v) {
		return Number
	}
	return Object
}

// IsNumeric reports whether v is a Go numeric type.
func IsNumeric(v any) bool {
	_, ok := numeric(v)
	return ok
}

// ToFloat converts numeric and boolean values to float64.
// Booleans map to 0 and 1. The second result is false for anything else.
func ToFloat(v any) (float64, bool) {
	if b, ok := v.(bool); ok {
		if b {
			return 1, true
		}
		return 0, true
	}
	return numeric(v)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case time.Duration:
		return float64(n), true
	}
	return 0, false
}
