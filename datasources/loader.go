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

// Package datasources provides a unified interface for loading records from
// various sources (CSV, SQL databases, protobuf) with support for reusable
// column annotations.
package datasources

import (
	"context"

	"github.com/google/pivotengine/core/aggregates"
	"github.com/google/pivotengine/core/fields"
	"github.com/google/pivotengine/core/pivot"
	"github.com/google/pivotengine/core/values"
)

// ColumnSchema is a single column discovered from a data source.
type ColumnSchema struct {
	Name string
	Type values.DataType
}

// ColumnAnnotation overrides how one column is presented.
type ColumnAnnotation struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Format      string `json:"format,omitempty"`
}

// ColumnAnnotations is a named, reusable set of column annotations.
type ColumnAnnotations struct {
	ID      string              `json:"id"`
	Columns []*ColumnAnnotation `json:"columns"`
}

// EnrichedColumn combines a discovered column with its annotation.
type EnrichedColumn struct {
	Name        string
	Type        values.DataType
	DisplayName string
	Format      string
}

// Loader is the interface that all data source loaders must implement.
// Built-in loaders are "csv", "sql" and "proto"; callers can register more.
type Loader interface {
	// SourceType returns the type identifier used in config (e.g. "csv").
	SourceType() string

	// Load reads the source described by config.
	Load(ctx context.Context, config map[string]string) (*Dataset, error)
}

// Dataset is a loaded table of records. It implements pivot.ItemsSource;
// each item is a map[string]any keyed by column name.
type Dataset struct {
	Columns []*EnrichedColumn
	rows    []map[string]any
}

// NewDataset creates a dataset from discovered columns and rows.
func NewDataset(schema []*ColumnSchema, rows []map[string]any) *Dataset {
	return &Dataset{Columns: EnrichSchema(schema, nil), rows: rows}
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.rows) }

// Item returns the i-th record.
func (d *Dataset) Item(i int) any { return d.rows[i] }

// Row returns the i-th record.
func (d *Dataset) Row(i int) map[string]any { return d.rows[i] }

// Column returns the column with the given name, or nil.
func (d *Dataset) Column(name string) *EnrichedColumn {
	for _, c := range d.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Annotate returns a copy of the dataset whose columns carry annotations.
// Rows are shared.
func (d *Dataset) Annotate(annotations *ColumnAnnotations) *Dataset {
	schema := make([]*ColumnSchema, len(d.Columns))
	for i, c := range d.Columns {
		schema[i] = &ColumnSchema{Name: c.Name, Type: c.Type}
	}
	return &Dataset{Columns: EnrichSchema(schema, annotations), rows: d.rows}
}

// EnrichSchema combines discovered columns with annotations. Columns
// without an annotation display their name.
func EnrichSchema(schema []*ColumnSchema, annotations *ColumnAnnotations) []*EnrichedColumn {
	annotationMap := AnnotationsToColumnMap(annotations)

	result := make([]*EnrichedColumn, len(schema))
	for i, col := range schema {
		enriched := &EnrichedColumn{
			Name:        col.Name,
			Type:        col.Type,
			DisplayName: col.Name,
		}
		if ann, ok := annotationMap[col.Name]; ok {
			if ann.DisplayName != "" {
				enriched.DisplayName = ann.DisplayName
			}
			enriched.Format = ann.Format
		}
		result[i] = enriched
	}
	return result
}

// inferSchema types each column by its first non-nil value. Columns with
// no values are strings.
func inferSchema(names []string, rows []map[string]any) []*ColumnSchema {
	schema := make([]*ColumnSchema, len(names))
	for i, name := range names {
		schema[i] = &ColumnSchema{Name: name, Type: values.String}
		for _, row := range rows {
			if v := row[name]; v != nil {
				schema[i].Type = values.TypeOf(v)
				break
			}
		}
	}
	return schema
}

// AnnotationsToColumnMap indexes annotations by column name.
func AnnotationsToColumnMap(annotations *ColumnAnnotations) map[string]*ColumnAnnotation {
	if annotations == nil {
		return nil
	}
	result := make(map[string]*ColumnAnnotation, len(annotations.Columns))
	for _, col := range annotations.Columns {
		result[col.Name] = col
	}
	return result
}

// ApplyColumns defines one engine field per dataset column, replacing the
// engine's fields and lists. Headers come from display names; number
// columns sum and everything else counts.
func ApplyColumns(e *pivot.Engine, d *Dataset) {
	e.DeferUpdate(func() {
		for _, l := range []*fields.List{e.RowFields(), e.ColumnFields(), e.ValueFields(), e.FilterFields(), e.Fields()} {
			l.Clear()
		}
		for _, c := range d.Columns {
			if e.Field(c.DisplayName) != nil {
				continue
			}
			f := e.AddField(c.Name, c.DisplayName)
			f.SetDataType(c.Type)
			f.SetAggregate(aggregates.Cnt)
			switch c.Type {
			case values.Number:
				f.SetAggregate(aggregates.Sum)
			case values.Date:
				f.SetFormat("d")
			}
			if c.Format != "" {
				f.SetFormat(c.Format)
			}
		}
	})
}
