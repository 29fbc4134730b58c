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
// Package protoloader flattens protobuf messages into pivot records.
// Message types are resolved at run time from descriptor sets, so data can
// be loaded without generated Go code.
package protoloader

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/pivotengine/core/values"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Format is the encoding of message data.
type Format int

const (
	Binary Format = iota
	Text
)

// ParseFormat maps "binary" or "textproto" to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "binary":
		return Binary, nil
	case "textproto":
		return Text, nil
	}
	return 0, fmt.Errorf("unknown format %q (want textproto or binary)", s)
}

// FormatOf guesses the format from a file extension.
func FormatOf(path string) Format {
	switch filepath.Ext(path) {
	case ".textproto", ".txtpb", ".pbtxt":
		return Text
	}
	return Binary
}

// Loader decodes messages whose types come from registered descriptor sets.
// It is safe for concurrent use.
type Loader struct {
	mu    sync.RWMutex
	files *protoregistry.Files
	seen  map[string]bool
}

// NewLoader creates a Loader over files. A nil files starts empty.
func NewLoader(files *protoregistry.Files) *Loader {
	if files == nil {
		files = new(protoregistry.Files)
	}
	return &Loader{files: files, seen: make(map[string]bool)}
}

// AddDescriptorSetFile registers a serialized FileDescriptorSet from disk.
// A path is read only once.
func (l *Loader) AddDescriptorSetFile(path string) error {
	l.mu.RLock()
	done := l.seen[path]
	l.mu.RUnlock()
	if done {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read descriptor set: %w", err)
	}
	if err := l.AddDescriptorSet(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	l.mu.Lock()
	l.seen[path] = true
	l.mu.Unlock()
	return nil
}

// AddDescriptorSet registers the files of a serialized FileDescriptorSet.
// Files already registered under the same path are skipped.
func (l *Loader) AddDescriptorSet(data []byte) error {
	set := new(descriptorpb.FileDescriptorSet)
	if err := proto.Unmarshal(data, set); err != nil {
		return fmt.Errorf("decode descriptor set: %w", err)
	}
	files, err := protodesc.NewFiles(set)
	if err != nil {
		return fmt.Errorf("build descriptors: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	var regErr error
	files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		if _, err := l.files.FindFileByPath(fd.Path()); err == nil {
			return true
		}
		regErr = l.files.RegisterFile(fd)
		return regErr == nil
	})
	return regErr
}

// Messages returns the sorted names of all top-level message types.
func (l *Loader) Messages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var names []string
	l.files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		for i := 0; i < fd.Messages().Len(); i++ {
			names = append(names, string(fd.Messages().Get(i).FullName()))
		}
		return true
	})
	slices.Sort(names)
	return names
}

func (l *Loader) messageDescriptor(name protoreflect.FullName) (protoreflect.MessageDescriptor, error) {
	d, err := l.files.FindDescriptorByName(name)
	if err != nil {
		return nil, fmt.Errorf("message %q: %w", name, err)
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%q is not a message type", name)
	}
	return md, nil
}

// Decode parses data as a message of the named type.
func (l *Loader) Decode(data []byte, messageName string, format Format) (protoreflect.Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	md, err := l.messageDescriptor(protoreflect.FullName(messageName))
	if err != nil {
		return nil, err
	}
	msg := dynamicpb.NewMessage(md)
	r := resolver{l}
	switch format {
	case Text:
		err = prototext.UnmarshalOptions{Resolver: r}.Unmarshal(data, msg)
	default:
		err = proto.UnmarshalOptions{Resolver: r}.Unmarshal(data, msg)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", messageName, err)
	}
	return msg.ProtoReflect(), nil
}

// resolver resolves Any payloads against the loader's files. Callers hold
// the read lock.
type resolver struct{ l *Loader }

func (r resolver) FindMessageByName(name protoreflect.FullName) (protoreflect.MessageType, error) {
	md, err := r.l.messageDescriptor(name)
	if err != nil {
		return nil, protoregistry.NotFound
	}
	return dynamicpb.NewMessageType(md), nil
}

func (r resolver) FindMessageByURL(url string) (protoreflect.MessageType, error) {
	return r.FindMessageByName(protoreflect.FullName(url[strings.LastIndexByte(url, '/')+1:]))
}

func (resolver) FindExtensionByName(protoreflect.FullName) (protoreflect.ExtensionType, error) {
	return nil, protoregistry.NotFound
}

func (resolver) FindExtensionByNumber(protoreflect.FullName, protoreflect.FieldNumber) (protoreflect.ExtensionType, error) {
	return nil, protoregistry.NotFound
}

// Column is one flattened field.
type Column struct {
	Name string
	Type values.DataType
}

// Table is the flattened form of a message.
type Table struct {
	Columns []Column
	Records []map[string]any
}

// level is one message in the chain from the root to the leaf records.
type level struct {
	columns []protoreflect.FieldDescriptor
	child   protoreflect.FieldDescriptor // repeated message field, nil at the leaf
}

// chain follows the first repeated message field of each message down to a
// leaf. Singular scalars, enums and timestamps become columns; other lists,
// maps and nested messages are skipped.
func chain(md protoreflect.MessageDescriptor) []level {
	var levels []level
	for md != nil {
		var lv level
		var next protoreflect.MessageDescriptor
		fields := md.Fields()
		for i := 0; i < fields.Len(); i++ {
			fd := fields.Get(i)
			switch {
			case fd.IsList() && fd.Kind() == protoreflect.MessageKind:
				if lv.child == nil {
					lv.child, next = fd, fd.Message()
				}
			case fd.IsList() || fd.IsMap():
			case fd.Kind() == protoreflect.MessageKind && !isTimestamp(fd):
			default:
				lv.columns = append(lv.columns, fd)
			}
		}
		levels = append(levels, lv)
		md = next
	}
	return levels
}

// Flatten turns msg into one record per leaf message. Each record carries
// the columns of its ancestors; a parent with no children still yields one
// record whose deeper columns are nil.
func Flatten(msg protoreflect.Message) *Table {
	levels := chain(msg.Descriptor())
	t := &Table{}
	for _, lv := range levels {
		for _, fd := range lv.columns {
			t.Columns = append(t.Columns, Column{Name: string(fd.Name()), Type: columnType(fd)})
		}
	}
	t.walk(msg, levels, nil)
	return t
}

func (t *Table) walk(msg protoreflect.Message, levels []level, parent map[string]any) {
	lv := levels[0]
	rec := maps.Clone(parent)
	if rec == nil {
		rec = make(map[string]any)
	}
	for _, fd := range lv.columns {
		if fd.Kind() == protoreflect.MessageKind && !msg.Has(fd) {
			rec[string(fd.Name())] = nil
		} else {
			rec[string(fd.Name())] = Value(msg.Get(fd), fd)
		}
	}
	var children protoreflect.List
	if lv.child != nil {
		children = msg.Get(lv.child).List()
	}
	if children == nil || children.Len() == 0 {
		t.emit(rec)
		return
	}
	for i := 0; i < children.Len(); i++ {
		t.walk(children.Get(i).Message(), levels[1:], rec)
	}
}

// emit copies rec, filling columns not set on this path with nil.
func (t *Table) emit(rec map[string]any) {
	out := make(map[string]any, len(t.Columns))
	for _, c := range t.Columns {
		out[c.Name] = rec[c.Name]
	}
	t.Records = append(t.Records, out)
}

func isTimestamp(fd protoreflect.FieldDescriptor) bool {
	return fd.Message() != nil && fd.Message().FullName() == "google.protobuf.Timestamp"
}

func columnType(fd protoreflect.FieldDescriptor) values.DataType {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return values.Boolean
	case protoreflect.StringKind, protoreflect.BytesKind, protoreflect.EnumKind:
		return values.String
	case protoreflect.MessageKind:
		return values.Date
	}
	return values.Number
}

// Value converts a field value to the type records carry: int64, uint64,
// float64, bool, string (enums by name) or time.Time.
func Value(v protoreflect.Value, fd protoreflect.FieldDescriptor) any {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return v.Bool()
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return v.Int()
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return v.Uint()
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return v.Float()
	case protoreflect.StringKind:
		return v.String()
	case protoreflect.BytesKind:
		return string(v.Bytes())
	case protoreflect.EnumKind:
		if ev := fd.Enum().Values().ByNumber(v.Enum()); ev != nil {
			return string(ev.Name())
		}
		return int64(v.Enum())
	case protoreflect.MessageKind:
		if isTimestamp(fd) {
			m := v.Message()
			fields := m.Descriptor().Fields()
			return time.Unix(m.Get(fields.ByName("seconds")).Int(), m.Get(fields.ByName("nanos")).Int()).UTC()
		}
	}
	return v.Interface()
}
