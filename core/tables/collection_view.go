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

// Package tables provides an observable, filterable and sortable view over
// an in-memory slice of records.
package tables

import (
	"slices"

	"github.com/google/pivotengine/core/values"
)

// Action describes what changed in a collection.
type Action int

const (
	Reset  Action = iota // The view was rebuilt
	Add                  // Items were appended to the source
	Remove               // An item was removed from the source
)

// Change is the payload of CollectionView.CollectionChanged.
type Change struct {
	Action Action
}

// CollectionView presents a filtered, sorted projection of a source slice.
// Mutations made between BeginUpdate and EndUpdate are applied as a single
// refresh.
type CollectionView[T any] struct {
	source []T
	items  []T

	filter   func(T) bool
	sorts    []SortDescription
	getter   func(item T, binding string) any
	comparer func(a, b any) int
	sorter   func(items []T, cmp func(a, b T) int)

	updating int
	dirty    bool

	// CollectionChanged fires after every refresh of the view.
	CollectionChanged Event[Change]
}

// NewCollectionView creates a view over source and refreshes it.
func NewCollectionView[T any](source []T) *CollectionView[T] {
	cv := &CollectionView[T]{source: source}
	cv.Refresh()
	return cv
}

// Source returns the unfiltered, unsorted source slice.
func (cv *CollectionView[T]) Source() []T { return cv.source }

// SetSource replaces the source slice.
func (cv *CollectionView[T]) SetSource(source []T) {
	cv.source = source
	cv.refresh(Reset)
}

// Append adds items to the source.
func (cv *CollectionView[T]) Append(items ...T) {
	cv.source = append(cv.source, items...)
	cv.refresh(Add)
}

// RemoveAt removes the source item at index i.
func (cv *CollectionView[T]) RemoveAt(i int) {
	cv.source = slices.Delete(cv.source, i, i+1)
	cv.refresh(Remove)
}

// Items returns the current view contents. The slice must not be modified.
func (cv *CollectionView[T]) Items() []T { return cv.items }

// Len returns the number of items in the view.
func (cv *CollectionView[T]) Len() int { return len(cv.items) }

// Item returns the i-th item of the view.
func (cv *CollectionView[T]) Item(i int) T { return cv.items[i] }

// SetFilter sets the predicate items must satisfy to appear in the view.
// A nil predicate keeps every item.
func (cv *CollectionView[T]) SetFilter(fn func(T) bool) {
	cv.filter = fn
	cv.Refresh()
}

// SortDescriptions returns a copy of the active sort order.
func (cv *CollectionView[T]) SortDescriptions() []SortDescription {
	return slices.Clone(cv.sorts)
}

// SetSortDescriptions replaces the sort order.
func (cv *CollectionView[T]) SetSortDescriptions(sds ...SortDescription) {
	cv.sorts = slices.Clone(sds)
	cv.Refresh()
}

// ClearSort removes any sort order, restoring source order.
func (cv *CollectionView[T]) ClearSort() {
	if len(cv.sorts) == 0 {
		return
	}
	cv.sorts = nil
	cv.Refresh()
}

// SetValueGetter overrides how a sort binding is read from an item. The
// default resolves the binding with values.Resolve.
func (cv *CollectionView[T]) SetValueGetter(fn func(item T, binding string) any) {
	cv.getter = fn
}

// SetComparer overrides how two sort values are compared. The default is
// values.Compare.
func (cv *CollectionView[T]) SetComparer(fn func(a, b any) int) {
	cv.comparer = fn
}

// SetSorter overrides the sort step. The sorter receives the filtered items
// and must order them in place using cmp.
func (cv *CollectionView[T]) SetSorter(fn func(items []T, cmp func(a, b T) int)) {
	cv.sorter = fn
}

// BeginUpdate suspends refreshes until the matching EndUpdate.
func (cv *CollectionView[T]) BeginUpdate() {
	cv.updating++
}

// EndUpdate resumes refreshes, refreshing once if anything changed.
func (cv *CollectionView[T]) EndUpdate() {
	if cv.updating == 0 {
		return
	}
	cv.updating--
	if cv.updating == 0 && cv.dirty {
		cv.Refresh()
	}
}

// IsUpdating reports whether refreshes are suspended.
func (cv *CollectionView[T]) IsUpdating() bool {
	return cv.updating > 0
}

// DeferUpdate runs fn with refreshes suspended.
func (cv *CollectionView[T]) DeferUpdate(fn func()) {
	cv.BeginUpdate()
	defer cv.EndUpdate()
	fn()
}

// Refresh rebuilds the view from the source.
func (cv *CollectionView[T]) Refresh() {
	cv.refresh(Reset)
}

// OnCollectionChanged subscribes fn to view changes.
func (cv *CollectionView[T]) OnCollectionChanged(fn func()) (cancel func()) {
	return cv.CollectionChanged.Subscribe(func(Change) { fn() })
}

func (cv *CollectionView[T]) refresh(action Action) {
	if cv.updating > 0 {
		cv.dirty = true
		return
	}
	cv.dirty = false

	items := make([]T, 0, len(cv.source))
	for _, item := range cv.source {
		if cv.filter == nil || cv.filter(item) {
			items = append(items, item)
		}
	}
	if len(cv.sorts) > 0 {
		sorter := cv.sorter
		if sorter == nil {
			sorter = slices.SortStableFunc[[]T, T]
		}
		sorter(items, cv.Compare)
	}
	cv.items = items
	cv.CollectionChanged.Raise(Change{Action: action})
}

// Compare orders two items by the active sort descriptions.
func (cv *CollectionView[T]) Compare(a, b T) int {
	return compareBy(cv.sorts, cv.valueOf, cv.compareValues, a, b)
}

func (cv *CollectionView[T]) valueOf(item T, binding string) any {
	if cv.getter != nil {
		return cv.getter(item, binding)
	}
	return values.Resolve(item, binding)
}

func (cv *CollectionView[T]) compareValues(a, b any) int {
	if cv.comparer != nil {
		return cv.comparer(a, b)
	}
	return values.Compare(a, b)
}
