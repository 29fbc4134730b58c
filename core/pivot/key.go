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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/pivotengine/core/aggregates"
	"github.com/google/pivotengine/core/fields"
	"github.com/google/pivotengine/core/values"
)

// keyContext holds the settings shared by every key of one pass.
type keyContext struct {
	culture          *values.Culture
	totalsBeforeData bool
}

// Key identifies one pivot row or column: the values of the first n fields
// of a representative record, plus the value field a column stands for.
//
// Keys are immutable. Values, formatted values and the identity string are
// computed once on first use.
type Key struct {
	ctx         *keyContext
	fields      []*fields.Field
	n           int
	valueFields []*fields.Field
	vfIndex     int
	item        any

	vals      []any
	formatted []string
	id        string
}

func newKey(ctx *keyContext, flds []*fields.Field, n int, vfs []*fields.Field, vfIndex int, item any) *Key {
	if n < 0 || n > len(flds) {
		panic(fmt.Sprintf("pivot: key field count %d out of range [0, %d]", n, len(flds)))
	}
	if vfs == nil {
		vfIndex = -1
	}
	return &Key{ctx: ctx, fields: flds, n: n, valueFields: vfs, vfIndex: vfIndex, item: item}
}

// FieldCount returns how many fields the key uses. Zero is a grand total and
// len(Fields()) is a fully detailed key.
func (k *Key) FieldCount() int { return k.n }

// Fields returns the axis fields the key was built from.
func (k *Key) Fields() []*fields.Field { return k.fields }

// IsTotal reports whether the key aggregates over at least one axis field.
func (k *Key) IsTotal() bool { return k.n < len(k.fields) }

// ValueFieldIndex returns the index of the key's value field, or -1.
func (k *Key) ValueFieldIndex() int { return k.vfIndex }

// ValueField returns the key's value field, or nil for row keys.
func (k *Key) ValueField() *fields.Field {
	if k.vfIndex < 0 {
		return nil
	}
	return k.valueFields[k.vfIndex]
}

// Aggregate returns the statistic of the key's value field. Calling it on a
// key without a value field panics.
func (k *Key) Aggregate() aggregates.Aggregate {
	vf := k.ValueField()
	if vf == nil {
		panic("pivot: key has no value field")
	}
	return vf.Aggregate()
}

// Item returns the record the key was built from.
func (k *Key) Item() any { return k.item }

// Values returns the raw values of the key's fields.
func (k *Key) Values() []any {
	if k.vals == nil {
		k.vals = make([]any, k.n)
		for i := 0; i < k.n; i++ {
			k.vals[i] = k.fields[i].Value(k.item)
		}
	}
	return k.vals
}

// FormattedValues returns the display strings of the key's fields.
func (k *Key) FormattedValues() []string {
	if k.formatted == nil {
		k.formatted = make([]string, k.n)
		for i := 0; i < k.n; i++ {
			k.formatted[i] = k.fields[i].FormattedValue(k.item, k.ctx.culture)
		}
	}
	return k.formatted
}

// Value returns the i-th value, raw or formatted.
func (k *Key) Value(i int, formatted bool) any {
	if formatted {
		return k.FormattedValues()[i]
	}
	return k.Values()[i]
}

// ID returns the key's identity. Keys built from the same fields, field
// count and value field over records with equal formatted values have
// equal identities, and only those.
func (k *Key) ID() string {
	if k.id == "" {
		var b strings.Builder
		for i, s := range k.FormattedValues() {
			b.WriteString(strconv.Quote(k.fields[i].Header()))
			b.WriteByte(':')
			b.WriteString(strconv.Quote(s))
			b.WriteByte(';')
		}
		if k.vfIndex < 0 {
			b.WriteString("#-")
		} else {
			b.WriteByte('#')
			b.WriteString(strconv.Itoa(k.vfIndex))
			b.WriteByte(':')
			b.WriteString(strconv.Quote(k.valueFields[k.vfIndex].Header()))
		}
		k.id = b.String()
	}
	return k.id
}

// String returns the key's identity.
func (k *Key) String() string { return k.ID() }

// Compare orders keys built from the same fields. Values are compared
// position by position, nil last, honoring each field's sort direction.
// Keys equal on every shared position are ordered by value field and then
// by field count, with totals after their details unless the engine puts
// totals first.
func (k *Key) Compare(o *Key) int {
	kv, ov := k.Values(), o.Values()
	for i := 0; i < min(len(kv), len(ov)); i++ {
		f := k.fields[i]
		v1, v2 := k.comparable(o, i)
		if values.Compare(v1, v2) == 0 {
			continue
		}
		if v1 == nil {
			return 1
		}
		if v2 == nil {
			return -1
		}
		c := values.Compare(v1, v2)
		if f.Descending() {
			return -c
		}
		return c
	}
	if k.vfIndex != o.vfIndex {
		return k.vfIndex - o.vfIndex
	}
	c := o.n - k.n
	if k.ctx.totalsBeforeData {
		return -c
	}
	return c
}

// comparable returns the values used to order position i. Dates compare
// by their reparsed display value, since every date layout hides some
// component and keys are interned by display string; if either fails to
// parse, the display strings are compared instead.
func (k *Key) comparable(o *Key, i int) (any, any) {
	v1, v2 := k.Values()[i], o.Values()[i]
	_, ok1 := v1.(time.Time)
	_, ok2 := v2.(time.Time)
	format := k.fields[i].Format()
	if !ok1 || !ok2 {
		return v1, v2
	}
	s1, s2 := k.FormattedValues()[i], o.FormattedValues()[i]
	t1, ok1 := k.ctx.culture.ParseDate(s1, format)
	t2, ok2 := k.ctx.culture.ParseDate(s2, format)
	if ok1 && ok2 {
		return t1, t2
	}
	return s1, s2
}

// MatchesItem reports whether item has the key's formatted value at every
// position.
func (k *Key) MatchesItem(item any) bool {
	for i, s := range k.FormattedValues() {
		if k.fields[i].FormattedValue(item, k.ctx.culture) != s {
			return false
		}
	}
	return true
}
