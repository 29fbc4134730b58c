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
	"strconv"
	"strings"
	"time"

	"github.com/google/pivotengine/core/values"
)

// Filter decides whether a record takes part in a summary, based on one
// field's raw and formatted value.
type Filter interface {
	// IsActive reports whether the filter excludes anything.
	IsActive() bool
	// Apply reports whether a value passes the filter.
	Apply(value any, formatted string) bool
	// Clear deactivates the filter.
	Clear()
}

// Operator is a comparison used by a Condition.
type Operator int

const (
	OpNone Operator = iota
	OpEQ            // Equals
	OpNE            // Does not equal
	OpGT            // Greater than
	OpGE            // Greater than or equal
	OpLT            // Less than
	OpLE            // Less than or equal
	OpBW            // Begins with
	OpEW            // Ends with
	OpCT            // Contains
	OpNC            // Does not contain
)

var operatorNames = [...]string{"", "EQ", "NE", "GT", "GE", "LT", "LE", "BW", "EW", "CT", "NC"}

func (o Operator) String() string {
	if o < 0 || int(o) >= len(operatorNames) {
		return fmt.Sprintf("Operator(%d)", int(o))
	}
	return operatorNames[o]
}

// MarshalText implements encoding.TextMarshaler.
func (o Operator) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Operator) UnmarshalText(b []byte) error {
	op, err := ParseOperator(string(b))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// ParseOperator parses an operator name such as "GE".
func ParseOperator(s string) (Operator, error) {
	for i, name := range operatorNames {
		if strings.EqualFold(s, name) {
			return Operator(i), nil
		}
	}
	return OpNone, fmt.Errorf("unknown filter operator %q", s)
}

// Condition is one comparison of a ConditionFilter.
type Condition struct {
	Operator Operator
	Value    any
}

// IsActive reports whether the condition has an operator and an operand.
func (c Condition) IsActive() bool {
	if c.Operator == OpNone || c.Value == nil {
		return false
	}
	s, ok := c.Value.(string)
	return !ok || s != ""
}

// Apply tests a value against the condition. Strings are compared without
// regard to case, and string operands are converted to numbers or dates to
// match the value.
func (c Condition) Apply(value any) bool {
	operand := c.Value
	if vs, ok := value.(string); ok {
		value = strings.ToLower(vs)
		operand = strings.ToLower(fmt.Sprint(operand))
	} else if s, ok := operand.(string); ok {
		switch value.(type) {
		case time.Time:
			if t, ok := parseDateOperand(s); ok {
				operand = t
			}
		default:
			if values.IsNumeric(value) {
				if f, err := strconv.ParseFloat(s, 64); err == nil {
					operand = f
				}
			}
		}
	}
	switch c.Operator {
	case OpEQ:
		return values.Compare(value, operand) == 0
	case OpNE:
		return values.Compare(value, operand) != 0
	case OpGT:
		return value != nil && values.Compare(value, operand) > 0
	case OpGE:
		return value != nil && values.Compare(value, operand) >= 0
	case OpLT:
		return value != nil && values.Compare(value, operand) < 0
	case OpLE:
		return value != nil && values.Compare(value, operand) <= 0
	}
	vs, ok1 := value.(string)
	os, ok2 := operand.(string)
	if !ok1 || !ok2 {
		return c.Operator == OpNC
	}
	switch c.Operator {
	case OpBW:
		return strings.HasPrefix(vs, os)
	case OpEW:
		return strings.HasSuffix(vs, os)
	case OpCT:
		return strings.Contains(vs, os)
	case OpNC:
		return !strings.Contains(vs, os)
	}
	return true
}

// ConditionFilter combines up to two conditions with and/or.
type ConditionFilter struct {
	Condition1 Condition
	Condition2 Condition
	And        bool
}

// IsActive reports whether either condition is active.
func (f *ConditionFilter) IsActive() bool {
	return f.Condition1.IsActive() || f.Condition2.IsActive()
}

// Apply implements Filter.
func (f *ConditionFilter) Apply(value any, _ string) bool {
	c1, c2 := f.Condition1, f.Condition2
	switch {
	case c1.IsActive() && c2.IsActive():
		if f.And {
			return c1.Apply(value) && c2.Apply(value)
		}
		return c1.Apply(value) || c2.Apply(value)
	case c1.IsActive():
		return c1.Apply(value)
	case c2.IsActive():
		return c2.Apply(value)
	}
	return true
}

// Clear implements Filter.
func (f *ConditionFilter) Clear() {
	f.Condition1 = Condition{}
	f.Condition2 = Condition{}
	f.And = false
}

// ValueFilter keeps records whose formatted value is in a set and/or
// contains a search text.
type ValueFilter struct {
	// ShowValues lists the formatted values to keep. Nil keeps everything.
	ShowValues map[string]bool
	// FilterText keeps values containing the text, ignoring case.
	FilterText string
}

// NewValueFilter creates a filter that keeps the listed formatted values.
func NewValueFilter(show ...string) *ValueFilter {
	m := make(map[string]bool, len(show))
	for _, s := range show {
		m[s] = true
	}
	return &ValueFilter{ShowValues: m}
}

// IsActive implements Filter.
func (f *ValueFilter) IsActive() bool {
	return f.ShowValues != nil || f.FilterText != ""
}

// Apply implements Filter.
func (f *ValueFilter) Apply(_ any, formatted string) bool {
	if f.ShowValues != nil && !f.ShowValues[formatted] {
		return false
	}
	if f.FilterText != "" && !strings.Contains(strings.ToLower(formatted), strings.ToLower(f.FilterText)) {
		return false
	}
	return true
}

// Clear implements Filter.
func (f *ValueFilter) Clear() {
	f.ShowValues = nil
	f.FilterText = ""
}

// parseDateOperand reads a date operand stored as text, as view
// definitions store it.
func parseDateOperand(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, values.DateTimeLayout, values.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
