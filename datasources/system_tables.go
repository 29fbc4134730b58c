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
	"fmt"
	"strings"

	"github.com/google/pivotengine/core/values"
)

// System source name constants
const (
	ColumnsSourceName = "_columns"
	systemSourceType  = "system"
)

// columnsSchema describes the _columns source. Each row is one column of
// one user source.
var columnsSchema = []*ColumnSchema{
	{Name: "source_name", Type: values.String},
	{Name: "column_name", Type: values.String},
	{Name: "display_name", Type: values.String},
	{Name: "data_type", Type: values.String},
	{Name: "format", Type: values.String},
	{Name: "is_key", Type: values.Boolean},
	{Name: "distinct_count", Type: values.Number},
	{Name: "row_count", Type: values.Number},
	{Name: "position", Type: values.Number},
}

// isSystemSource reports whether name is reserved for system sources.
func isSystemSource(name string) bool {
	return strings.HasPrefix(name, "_")
}

// BuildColumnsDataset creates a dataset describing every column of the
// given datasets, ordered by source name and then column position.
func BuildColumnsDataset(sources []string, datasets map[string]*Dataset) *Dataset {
	var rows []map[string]any
	for _, name := range sources {
		ds := datasets[name]
		if ds == nil {
			continue
		}
		for position, col := range ds.Columns {
			distinct := distinctCount(ds, col.Name)
			rows = append(rows, map[string]any{
				"source_name":    name,
				"column_name":    col.Name,
				"display_name":   col.DisplayName,
				"data_type":      col.Type.String(),
				"format":         col.Format,
				"is_key":         ds.Len() > 0 && distinct == ds.Len(),
				"distinct_count": int64(distinct),
				"row_count":      int64(ds.Len()),
				"position":       int64(position),
			})
		}
	}
	return NewDataset(columnsSchema, rows)
}

// distinctCount counts distinct display strings of a column, nil included.
func distinctCount(ds *Dataset, column string) int {
	seen := make(map[string]struct{})
	for i := 0; i < ds.Len(); i++ {
		v := ds.Row(i)[column]
		key := "\x00nil"
		if v != nil {
			key = values.Invariant.Format(v, "")
		}
		seen[key] = struct{}{}
	}
	return len(seen)
}

// systemLoader builds system sources from a manager's user sources.
type systemLoader struct {
	manager *Manager
}

func (l *systemLoader) SourceType() string { return systemSourceType }

// Load loads every user source, then describes their columns.
func (l *systemLoader) Load(ctx context.Context, config map[string]string) (*Dataset, error) {
	if name := config["table"]; name != ColumnsSourceName {
		return nil, fmt.Errorf("unknown system table %q", name)
	}
	var names []string
	datasets := make(map[string]*Dataset)
	for _, name := range l.manager.GetSourceNames() {
		if isSystemSource(name) {
			continue
		}
		ds, err := l.manager.LoadData(ctx, name)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		datasets[name] = ds
	}
	return BuildColumnsDataset(names, datasets), nil
}

// AddSystemSources registers the system loader and the _columns source.
// Reload _columns with InvalidateCache after user sources change.
func (m *Manager) AddSystemSources() {
	m.RegisterLoader(&systemLoader{manager: m})
	m.AddSource(&DataSource{
		Name:        ColumnsSourceName,
		SourceType:  systemSourceType,
		Description: "Columns of every configured data source",
		Config:      map[string]string{"table": ColumnsSourceName},
	})
}

// UserSourceNames returns the sorted source names, system sources excluded.
func (m *Manager) UserSourceNames() []string {
	var names []string
	for _, name := range m.GetSourceNames() {
		if !isSystemSource(name) {
			names = append(names, name)
		}
	}
	return names
}
