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
	"slices"
)

// ListOwner is notified after a field is added to or removed from a List.
type ListOwner interface {
	ListChanged(l *List, f *Field, added bool)
}

// List is an ordered, header-unique collection of fields.
type List struct {
	name     string
	owner    ListOwner
	items    []*Field
	maxItems int
}

// NewList creates an empty list. The owner may be nil.
func NewList(name string, owner ListOwner) *List {
	return &List{name: name, owner: owner}
}

// Name returns the list name, e.g. "rowFields".
func (l *List) Name() string { return l.name }

// MaxItems returns the capacity limit, 0 means unlimited.
func (l *List) MaxItems() int { return l.maxItems }

// SetMaxItems limits how many fields the list accepts. Existing items are
// kept.
func (l *List) SetMaxItems(n int) {
	if n < 0 {
		n = 0
	}
	l.maxItems = n
}

// Len returns the number of fields.
func (l *List) Len() int { return len(l.items) }

// At returns the field at index i.
func (l *List) At(i int) *Field { return l.items[i] }

// Fields returns a copy of the list contents.
func (l *List) Fields() []*Field { return slices.Clone(l.items) }

// Headers returns the headers in list order.
func (l *List) Headers() []string {
	hs := make([]string, len(l.items))
	for i, f := range l.items {
		hs[i] = f.Header()
	}
	return hs
}

// IndexOf returns the position of f, or -1.
func (l *List) IndexOf(f *Field) int {
	return slices.Index(l.items, f)
}

// Contains reports whether f is in the list.
func (l *List) Contains(f *Field) bool {
	return l.IndexOf(f) >= 0
}

// ByHeader returns the field with the given header, or nil.
func (l *List) ByHeader(h string) *Field {
	for _, f := range l.items {
		if f.Header() == h {
			return f
		}
	}
	return nil
}

// Push appends a field. It returns false when the list is full.
// A nil field or a header already present panics.
func (l *List) Push(f *Field) bool {
	return l.Insert(len(l.items), f)
}

// Insert adds a field at index i. It returns false when the list is full.
func (l *List) Insert(i int, f *Field) bool {
	if f == nil {
		panic(fmt.Sprintf("fields: nil field pushed to %s", l.name))
	}
	if l.ByHeader(f.Header()) != nil {
		panic(fmt.Sprintf("fields: duplicate field header %q in %s", f.Header(), l.name))
	}
	if l.maxItems > 0 && len(l.items) >= l.maxItems {
		return false
	}
	if i < 0 || i > len(l.items) {
		i = len(l.items)
	}
	l.items = slices.Insert(l.items, i, f)
	if l.owner != nil {
		l.owner.ListChanged(l, f, true)
	}
	return true
}

// Remove removes f and reports whether it was present.
func (l *List) Remove(f *Field) bool {
	i := l.IndexOf(f)
	if i < 0 {
		return false
	}
	l.RemoveAt(i)
	return true
}

// RemoveAt removes the field at index i.
func (l *List) RemoveAt(i int) {
	f := l.items[i]
	l.items = slices.Delete(l.items, i, i+1)
	if l.owner != nil {
		l.owner.ListChanged(l, f, false)
	}
}

// Clear removes every field.
func (l *List) Clear() {
	for len(l.items) > 0 {
		l.RemoveAt(len(l.items) - 1)
	}
}
