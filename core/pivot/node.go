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
	"github.com/zeebo/xxh3"

	"github.com/google/pivotengine/core/fields"
)

// node is a trie over formatted field values. Walking it with a record
// reaches the node whose key matches the record, so a key is built once per
// distinct value combination instead of once per record.
type node struct {
	children      map[string]*node
	valueChildren map[int]*node // keyed by value field index
	key           *Key
	tree          *node // nested column trie of a row node
}

func newNode() *node {
	return &node{}
}

// getNode walks n formatted values of item, then one value field leaf if
// vfs is not nil. The reached node's key is created on the first visit and
// interned in keys.
func (nd *node) getNode(ctx *keyContext, keys *keyTable, flds []*fields.Field, n int, vfs []*fields.Field, vfIndex int, item any) *node {
	cur := nd
	for i := 0; i < n; i++ {
		s := flds[i].FormattedValue(item, ctx.culture)
		child := cur.children[s]
		if child == nil {
			if cur.children == nil {
				cur.children = make(map[string]*node)
			}
			child = newNode()
			cur.children[s] = child
		}
		cur = child
	}
	if vfs != nil {
		child := cur.valueChildren[vfIndex]
		if child == nil {
			if cur.valueChildren == nil {
				cur.valueChildren = make(map[int]*node)
			}
			child = newNode()
			cur.valueChildren[vfIndex] = child
		}
		cur = child
	}
	if cur.key == nil {
		cur.key = keys.intern(newKey(ctx, flds, n, vfs, vfIndex, item))
	}
	return cur
}

// columns returns the node's nested column trie, creating it if needed.
func (nd *node) columns() *node {
	if nd.tree == nil {
		nd.tree = newNode()
	}
	return nd.tree
}

// keyTable interns keys by identity so that equal keys reached through
// different tries share one pointer. Keys are bucketed by a 64-bit hash of
// their identity and compared in full within a bucket.
type keyTable struct {
	buckets map[uint64][]*Key
	order   []*Key
}

func newKeyTable() *keyTable {
	return &keyTable{buckets: make(map[uint64][]*Key)}
}

func (t *keyTable) intern(k *Key) *Key {
	id := k.ID()
	h := xxh3.HashString(id)
	for _, c := range t.buckets[h] {
		if c.ID() == id {
			return c
		}
	}
	t.buckets[h] = append(t.buckets[h], k)
	t.order = append(t.order, k)
	return k
}

// lookup returns the interned key with the given identity, or nil.
func (t *keyTable) lookup(id string) *Key {
	for _, c := range t.buckets[xxh3.HashString(id)] {
		if c.ID() == id {
			return c
		}
	}
	return nil
}

// len returns the number of distinct keys.
func (t *keyTable) len() int {
	return len(t.order)
}
