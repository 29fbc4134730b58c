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

// Package csvimport reads CSV data into records for the pivot engine.
package csvimport

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// ColumnType specifies the data type for a column
type ColumnType int

const (
	// ColumnTypeAuto detects the type from data (default)
	ColumnTypeAuto ColumnType = iota
	// ColumnTypeString keeps values as strings
	ColumnTypeString
	// ColumnTypeInt parses values as int64
	ColumnTypeInt
	// ColumnTypeFloat parses values as float64
	ColumnTypeFloat
	// ColumnTypeBool parses values as bool
	ColumnTypeBool
	// ColumnTypeDate parses values as time.Time
	ColumnTypeDate
)

var columnTypeNames = [...]string{"auto", "string", "int", "float", "bool", "date"}

func (t ColumnType) String() string {
	if t < 0 || int(t) >= len(columnTypeNames) {
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
	return columnTypeNames[t]
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ColumnType) UnmarshalText(b []byte) error {
	for i, name := range columnTypeNames {
		if strings.EqualFold(string(b), name) {
			*t = ColumnType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown column type %q", b)
}

// MarshalText implements encoding.TextMarshaler.
func (t ColumnType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ColumnSource defines how one column is imported
type ColumnSource struct {
	// Name is the record key (defaults to the header)
	Name string `json:"name,omitempty"`
	// Type forces a data type (default: auto-detect)
	Type ColumnType `json:"type,omitempty"`
}

// ImportOptions configures CSV import behavior
type ImportOptions struct {
	// HasHeader indicates whether the first row contains column headers
	HasHeader bool `json:"hasHeader"`
	// Delimiter is the field delimiter (defaults to comma)
	Delimiter string `json:"delimiter,omitempty"`
	// ColumnSources configures specific columns by header
	ColumnSources map[string]ColumnSource `json:"columns,omitempty"`
	// SampleSize is the number of rows sampled for type detection (default: 100)
	SampleSize int `json:"sampleSize,omitempty"`
}

// DefaultOptions returns default import options
func DefaultOptions() ImportOptions {
	return ImportOptions{
		HasHeader:     true,
		Delimiter:     ",",
		ColumnSources: make(map[string]ColumnSource),
		SampleSize:    100,
	}
}

// Column describes one imported column.
type Column struct {
	Name string
	Type ColumnType
}

// Records is the result of an import. It implements pivot.ItemsSource.
type Records struct {
	Columns []Column
	rows    []map[string]any
}

// Len returns the number of records.
func (r *Records) Len() int { return len(r.rows) }

// Item returns the i-th record as a map[string]any.
func (r *Records) Item(i int) any { return r.rows[i] }

// Row returns the i-th record.
func (r *Records) Row(i int) map[string]any { return r.rows[i] }

// Names returns the column names in file order.
func (r *Records) Names() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// ImportFromFile imports a CSV file
func ImportFromFile(filepath string, options ImportOptions) (*Records, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ImportFromReader(file, options)
}

// ImportFromReader imports CSV data from an io.Reader
func ImportFromReader(reader io.Reader, options ImportOptions) (*Records, error) {
	csvReader := csv.NewReader(reader)
	if options.Delimiter != "" {
		csvReader.Comma = []rune(options.Delimiter)[0]
	}
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSV file is empty")
	}

	var headers []string
	var dataRows [][]string
	if options.HasHeader {
		headers = records[0]
		dataRows = records[1:]
	} else {
		headers = make([]string, len(records[0]))
		for i := range headers {
			headers[i] = fmt.Sprintf("column_%d", i+1)
		}
		dataRows = records
	}
	if len(dataRows) == 0 {
		return nil, fmt.Errorf("CSV file has no data rows")
	}

	sampleSize := options.SampleSize
	if sampleSize <= 0 {
		sampleSize = 100
	}
	types := detectColumnTypes(headers, dataRows, sampleSize, options.ColumnSources)

	out := &Records{Columns: make([]Column, len(headers))}
	for i, header := range headers {
		header = strings.TrimSpace(header)
		name := header
		if src, ok := options.ColumnSources[header]; ok && src.Name != "" {
			name = src.Name
		}
		out.Columns[i] = Column{Name: name, Type: types[i]}
	}

	out.rows = make([]map[string]any, len(dataRows))
	for r, row := range dataRows {
		rec := make(map[string]any, len(headers))
		for i, col := range out.Columns {
			value := ""
			if i < len(row) {
				value = strings.TrimSpace(row[i])
			}
			rec[col.Name] = parseValue(value, col.Type)
		}
		out.rows[r] = rec
	}
	return out, nil
}

// parseValue converts a cell. Empty cells are nil; cells that do not parse
// as the column type are NaN for numbers and nil otherwise.
func parseValue(value string, t ColumnType) any {
	if value == "" {
		return nil
	}
	switch t {
	case ColumnTypeInt:
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
		return math.NaN()
	case ColumnTypeFloat:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		return math.NaN()
	case ColumnTypeBool:
		if b, err := ParseBool(value); err == nil {
			return b
		}
		return nil
	case ColumnTypeDate:
		if d, ok := parseDate(value); ok {
			return d
		}
		return nil
	}
	return value
}

// ParseBool parses true/false, yes/no, y/n and 1/0, ignoring case.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// detectColumnTypes samples data to pick the narrowest type every sampled
// non-empty value parses as. Columns with no sampled values are strings.
func detectColumnTypes(headers []string, dataRows [][]string, sampleSize int, configs map[string]ColumnSource) []ColumnType {
	types := make([]ColumnType, len(headers))
	rowsToSample := min(sampleSize, len(dataRows))

	for i, header := range headers {
		if config, ok := configs[strings.TrimSpace(header)]; ok && config.Type != ColumnTypeAuto {
			types[i] = config.Type
			continue
		}

		isInt, isFloat, isBool, isDate := true, true, true, true
		hasNonEmpty := false
		for j := 0; j < rowsToSample; j++ {
			if i >= len(dataRows[j]) {
				continue
			}
			value := strings.TrimSpace(dataRows[j][i])
			if value == "" {
				continue
			}
			hasNonEmpty = true
			if isInt {
				_, err := strconv.ParseInt(value, 10, 64)
				isInt = err == nil
			}
			if isFloat {
				_, err := strconv.ParseFloat(value, 64)
				isFloat = err == nil
			}
			if isBool {
				_, err := ParseBool(value)
				// 0/1 columns are numbers.
				isBool = err == nil && value != "0" && value != "1"
			}
			if isDate {
				_, isDate = parseDate(value)
			}
		}

		switch {
		case !hasNonEmpty:
			types[i] = ColumnTypeString
		case isInt:
			types[i] = ColumnTypeInt
		case isFloat:
			types[i] = ColumnTypeFloat
		case isBool:
			types[i] = ColumnTypeBool
		case isDate:
			types[i] = ColumnTypeDate
		default:
			types[i] = ColumnTypeString
		}
	}
	return types
}
