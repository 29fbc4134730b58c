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
package datasources

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/pivotengine/core/protoloader"
)

// ProtoLoader serves protobuf data files. Nested repeated messages are
// flattened so that each leaf message becomes one record.
//
// Config keys:
//   - proto_file: data file, textproto or binary (required)
//   - message_type: fully qualified root message (required)
//   - descriptor_set: FileDescriptorSet defining message_type
//   - format: "textproto" or "binary"; guessed from proto_file otherwise
type ProtoLoader struct {
	decoder *protoloader.Loader
}

// NewProtoLoader creates a proto loader with an empty type registry.
func NewProtoLoader() *ProtoLoader {
	return &ProtoLoader{decoder: protoloader.NewLoader(nil)}
}

// SourceType implements Loader.
func (l *ProtoLoader) SourceType() string { return "proto" }

// Load implements Loader.
func (l *ProtoLoader) Load(ctx context.Context, config map[string]string) (*Dataset, error) {
	path, messageType := config["proto_file"], config["message_type"]
	if path == "" || messageType == "" {
		return nil, errors.New("proto_file and message_type are required")
	}
	if set := config["descriptor_set"]; set != "" {
		if err := l.decoder.AddDescriptorSetFile(set); err != nil {
			return nil, err
		}
	}
	format := protoloader.FormatOf(path)
	if name := config["format"]; name != "" {
		var err error
		if format, err = protoloader.ParseFormat(name); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read proto file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.Parse(data, messageType, format)
}

// Parse decodes data and flattens it into a dataset typed by the message
// fields.
func (l *ProtoLoader) Parse(data []byte, messageType string, format protoloader.Format) (*Dataset, error) {
	msg, err := l.decoder.Decode(data, messageType, format)
	if err != nil {
		return nil, err
	}
	tbl := protoloader.Flatten(msg)
	schema := make([]*ColumnSchema, len(tbl.Columns))
	for i, c := range tbl.Columns {
		schema[i] = &ColumnSchema{Name: c.Name, Type: c.Type}
	}
	return NewDataset(schema, tbl.Records), nil
}

// Decoder returns the registry of message types the loader can decode.
func (l *ProtoLoader) Decoder() *protoloader.Loader { return l.decoder }
