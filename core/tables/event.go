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

// Event is a list of handlers invoked synchronously, in subscription order.
// It is not safe for concurrent use.
type Event[T any] struct {
	handlers []*handler[T]
}

type handler[T any] struct {
	fn func(T)
}

// Subscribe adds a handler and returns a function that removes it.
func (e *Event[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	h := &handler[T]{fn: fn}
	e.handlers = append(e.handlers, h)
	return func() {
		for i, x := range e.handlers {
			if x == h {
				e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
				return
			}
		}
	}
}

// HasHandlers reports whether anyone is subscribed.
func (e *Event[T]) HasHandlers() bool {
	return len(e.handlers) > 0
}

// Raise calls every handler with v.
func (e *Event[T]) Raise(v T) {
	// Handlers may unsubscribe while being called.
	for _, h := range append([]*handler[T](nil), e.handlers...) {
		h.fn(v)
	}
}
