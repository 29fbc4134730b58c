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
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/pivotengine/core/fields"
	"github.com/google/pivotengine/core/values"
)

func rec(kv ...any) map[string]any {
	m := make(map[string]any)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

func TestKeyIdentity(t *testing.T) {
	ctx := &keyContext{culture: values.Invariant}
	a, b := fields.New("a", "A"), fields.New("b", "B")
	flds := []*fields.Field{a, b}

	k1 := newKey(ctx, flds, 2, nil, -1, rec("a", "x", "b", 1, "other", true))
	k2 := newKey(ctx, flds, 2, nil, -1, rec("a", "x", "b", 1.0))
	if k1.ID() != k2.ID() {
		t.Errorf("equal formatted values: IDs %q and %q differ", k1.ID(), k2.ID())
	}

	tests := []struct {
		name string
		k    *Key
	}{
		{"different value", newKey(ctx, flds, 2, nil, -1, rec("a", "x", "b", 2))},
		{"shorter key", newKey(ctx, flds, 1, nil, -1, rec("a", "x", "b", 1))},
		{"value field", newKey(ctx, flds, 2, []*fields.Field{a}, 0, rec("a", "x", "b", 1))},
		{"separator in value", newKey(ctx, flds, 2, nil, -1, rec("a", `x";"B":"1`, "b", ""))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.k.ID() == k1.ID() {
				t.Errorf("ID %q collides with %q", tt.k.ID(), k1.ID())
			}
		})
	}
}

func TestKeyCompare(t *testing.T) {
	ctx := &keyContext{culture: values.Invariant}
	f := fields.New("v", "V")
	flds := []*fields.Field{f}
	key := func(v any) *Key { return newKey(ctx, flds, 1, nil, -1, rec("v", v)) }
	total := newKey(ctx, flds, 0, nil, -1, rec("v", 1))

	if c := key(1).Compare(key(2)); c >= 0 {
		t.Errorf("1 vs 2 = %d, want < 0", c)
	}
	if c := key(nil).Compare(key(2)); c <= 0 {
		t.Errorf("nil vs 2 = %d, want > 0", c)
	}
	if c := key(1).Compare(total); c >= 0 {
		t.Errorf("detail vs total = %d, want < 0", c)
	}
	if c := key(3).Compare(key(3)); c != 0 {
		t.Errorf("3 vs 3 = %d, want 0", c)
	}

	f.SetDescending(true)
	if c := key(1).Compare(key(2)); c <= 0 {
		t.Errorf("descending 1 vs 2 = %d, want > 0", c)
	}
	if c := key(nil).Compare(key(2)); c <= 0 {
		t.Errorf("descending nil vs 2 = %d, want > 0", c)
	}

	ctx.totalsBeforeData = true
	if c := key(1).Compare(total); c <= 0 {
		t.Errorf("totals first: detail vs total = %d, want > 0", c)
	}
}

func TestKeyCompareSortIsIdempotent(t *testing.T) {
	ctx := &keyContext{culture: values.Invariant}
	r, c := fields.New("r", "R"), fields.New("c", "C")
	c.SetDescending(true)
	flds := []*fields.Field{r, c}
	var keys []*Key
	for _, rv := range []any{"b", nil, "a"} {
		for _, cv := range []any{1, 3, 2} {
			for n := 0; n <= 2; n++ {
				keys = append(keys, newKey(ctx, flds, n, nil, -1, rec("r", rv, "c", cv)))
			}
		}
	}
	slices.SortStableFunc(keys, (*Key).Compare)
	once := make([]string, len(keys))
	for i, k := range keys {
		once[i] = k.ID()
	}
	slices.SortStableFunc(keys, (*Key).Compare)
	for i, k := range keys {
		if k.ID() != once[i] {
			t.Fatalf("second sort moved %q to %d", k.ID(), i)
		}
	}
	if got := keys[0].FormattedValues(); len(got) != 2 || got[0] != "a" || got[1] != "3" {
		t.Errorf("first key = %v, want [a 3]", got)
	}
}

func TestKeyCompareTruncatedDates(t *testing.T) {
	ctx := &keyContext{culture: values.Invariant}
	f := fields.New("d", "D")
	f.SetFormat("2006-01")
	flds := []*fields.Field{f}
	jan3 := newKey(ctx, flds, 1, nil, -1, rec("d", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)))
	jan20 := newKey(ctx, flds, 1, nil, -1, rec("d", time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)))
	feb := newKey(ctx, flds, 1, nil, -1, rec("d", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))

	if c := jan20.Compare(jan3); c != 0 {
		t.Errorf("same month = %d, want 0", c)
	}
	if c := jan20.Compare(feb); c >= 0 {
		t.Errorf("jan vs feb = %d, want < 0", c)
	}
	if jan3.ID() != jan20.ID() {
		t.Errorf("same month IDs differ: %q, %q", jan3.ID(), jan20.ID())
	}
}

func TestKeyCompareSameDay(t *testing.T) {
	ctx := &keyContext{culture: values.Invariant}
	day, region := fields.New("day", "Day"), fields.New("region", "Region")
	day.SetFormat("d")
	flds := []*fields.Field{day, region}
	at := func(hour int, r string) *Key {
		return newKey(ctx, flds, 2, nil, -1, rec("day", time.Date(2024, 1, 1, hour, 0, 0, 0, time.UTC), "region", r))
	}
	a, b, c := at(10, "A"), at(8, "B"), at(12, "C")
	subtotal := newKey(ctx, flds, 1, nil, -1, rec("day", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)))

	keys := []*Key{subtotal, b, c, a}
	slices.SortStableFunc(keys, (*Key).Compare)
	var got []string
	for _, k := range keys {
		got = append(got, strings.Join(k.FormattedValues(), " "))
	}
	want := []string{"2024-01-01 A", "2024-01-01 B", "2024-01-01 C", "2024-01-01"}
	if !slices.Equal(got, want) {
		t.Errorf("order = %q, want %q", got, want)
	}
	if n := at(23, "A").Compare(at(1, "A")); n != 0 {
		t.Errorf("same day, hidden hours differ: Compare = %d, want 0", n)
	}
}

func TestKeyMatchesItem(t *testing.T) {
	ctx := &keyContext{culture: values.Invariant}
	a, b := fields.New("a", "A"), fields.New("b", "B")
	k := newKey(ctx, []*fields.Field{a, b}, 1, nil, -1, rec("a", "x", "b", 1))
	if !k.MatchesItem(rec("a", "x", "b", 99)) {
		t.Error("subtotal key should ignore fields past its count")
	}
	if k.MatchesItem(rec("a", "y")) {
		t.Error("different value matched")
	}
}

func TestNodeReusesKeys(t *testing.T) {
	ctx := &keyContext{culture: values.Invariant}
	keys := newKeyTable()
	f := fields.New("a", "A")
	flds := []*fields.Field{f}
	root := newNode()
	n1 := root.getNode(ctx, keys, flds, 1, nil, -1, rec("a", "x"))
	n2 := root.getNode(ctx, keys, flds, 1, nil, -1, rec("a", "x", "b", 2))
	if n1 != n2 || n1.key != n2.key {
		t.Error("same value produced different nodes")
	}
	// A second trie reaching an equal key shares the interned pointer.
	other := newNode().getNode(ctx, keys, flds, 1, nil, -1, rec("a", "x"))
	if other.key != n1.key {
		t.Error("equal keys were not interned")
	}
	root.getNode(ctx, keys, flds, 0, nil, -1, rec("a", "z"))
	if keys.len() != 2 {
		t.Errorf("key table has %d keys, want 2", keys.len())
	}
	if keys.lookup(n1.key.ID()) != n1.key {
		t.Error("lookup failed")
	}
}
