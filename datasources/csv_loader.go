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
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/pivotengine/core/csvimport"
	"github.com/google/pivotengine/core/values"
)

// CsvLoader implements Loader for CSV files. Column types are detected
// from the data unless an options file forces them.
//
// Required config keys:
//   - file_path: Path to the CSV file
//
// Optional config keys:
//   - has_header: "true" or "false" (default: "true")
//   - delimiter: Field delimiter (default: ",")
//   - sample_size: Rows sampled for type detection (default: 100)
//   - options_file: csvimport.ImportOptions as .json or textproto; the
//     keys above override it
type CsvLoader struct{}

// NewCsvLoader creates a new CSV loader.
func NewCsvLoader() *CsvLoader {
	return &CsvLoader{}
}

// SourceType returns "csv".
func (l *CsvLoader) SourceType() string {
	return "csv"
}

// Load imports the CSV file.
func (l *CsvLoader) Load(ctx context.Context, config map[string]string) (*Dataset, error) {
	filePath := config["file_path"]
	if filePath == "" {
		return nil, fmt.Errorf("file_path is required")
	}
	options, err := csvOptions(config)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	recs, err := csvimport.ImportFromFile(filePath, options)
	if err != nil {
		return nil, fmt.Errorf("failed to import %s: %w", filePath, err)
	}
	return FromRecords(recs), nil
}

func csvOptions(config map[string]string) (csvimport.ImportOptions, error) {
	options := csvimport.DefaultOptions()
	if path := config["options_file"]; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return options, fmt.Errorf("failed to read options file: %w", err)
		}
		if filepath.Ext(path) == ".json" {
			options, err = csvimport.OptionsFromJSON(data)
		} else {
			options, err = csvimport.OptionsFromTextproto(string(data))
		}
		if err != nil {
			return options, err
		}
	}
	if v := config["has_header"]; v != "" {
		b, err := csvimport.ParseBool(v)
		if err != nil {
			return options, fmt.Errorf("has_header: %w", err)
		}
		options.HasHeader = b
	}
	if v := config["delimiter"]; v != "" {
		options.Delimiter = v
	}
	if v := config["sample_size"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return options, fmt.Errorf("sample_size: %w", err)
		}
		options.SampleSize = n
	}
	return options, nil
}

// FromRecords wraps imported CSV records as a dataset.
func FromRecords(recs *csvimport.Records) *Dataset {
	schema := make([]*ColumnSchema, len(recs.Columns))
	for i, c := range recs.Columns {
		schema[i] = &ColumnSchema{Name: c.Name, Type: csvColumnType(c.Type)}
	}
	rows := make([]map[string]any, recs.Len())
	for i := range rows {
		rows[i] = recs.Row(i)
	}
	return NewDataset(schema, rows)
}

func csvColumnType(t csvimport.ColumnType) values.DataType {
	switch t {
	case csvimport.ColumnTypeInt, csvimport.ColumnTypeFloat:
		return values.Number
	case csvimport.ColumnTypeBool:
		return values.Boolean
	case csvimport.ColumnTypeDate:
		return values.Date
	default:
		return values.String
	}
}
