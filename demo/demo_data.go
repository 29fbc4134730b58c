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

// Package demo generates a deterministic sales dataset for trying out the
// pivot engine.
package demo

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/pivotengine/core/csvimport"
	"github.com/google/pivotengine/core/values"
	"github.com/google/pivotengine/datasources"
)

//go:embed data/products.csv
var productsCSV string

//go:embed data/regions.csv
var regionsCSV string

const (
	DefaultRows = 1000
	DefaultSeed = 1
)

var (
	channels = []string{"Online", "Retail", "Partner"}
	firstDay = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// SalesColumns lists the generated columns in record order.
var SalesColumns = []*datasources.ColumnSchema{
	{Name: "Date", Type: values.Date},
	{Name: "Year", Type: values.Number},
	{Name: "Quarter", Type: values.String},
	{Name: "Region", Type: values.String},
	{Name: "Country", Type: values.String},
	{Name: "Category", Type: values.String},
	{Name: "Product", Type: values.String},
	{Name: "Channel", Type: values.String},
	{Name: "Units", Type: values.Number},
	{Name: "Amount", Type: values.Number},
	{Name: "Returned", Type: values.Boolean},
}

// importTable parses an embedded reference table.
func importTable(name, csv string) *csvimport.Records {
	recs, err := csvimport.ImportFromReader(strings.NewReader(csv), csvimport.DefaultOptions())
	if err != nil {
		panic(fmt.Sprintf("failed to import %s CSV: %v", name, err))
	}
	return recs
}

// Sales generates n sales records. The same seed always yields the same
// records.
func Sales(n int, seed uint64) []map[string]any {
	products := importTable("products", productsCSV)
	regions := importTable("regions", regionsCSV)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	rows := make([]map[string]any, n)
	for i := range rows {
		product := products.Row(rng.IntN(products.Len()))
		region := regions.Row(rng.IntN(regions.Len()))
		date := firstDay.AddDate(0, 0, rng.IntN(730))
		units := 1 + rng.IntN(20)
		price, _ := values.ToFloat(product["UnitPrice"])
		discount := float64(rng.IntN(4)) * 0.05
		amount := math.Round(float64(units)*price*(1-discount)*100) / 100

		rows[i] = map[string]any{
			"Date":     date,
			"Year":     int64(date.Year()),
			"Quarter":  "Q" + strconv.Itoa((int(date.Month())+2)/3),
			"Region":   region["Region"],
			"Country":  region["Country"],
			"Category": product["Category"],
			"Product":  product["Product"],
			"Channel":  channels[rng.IntN(len(channels))],
			"Units":    int64(units),
			"Amount":   amount,
			"Returned": rng.IntN(25) == 0,
		}
	}
	return rows
}

// SalesDataset wraps Sales in a dataset with the demo schema.
func SalesDataset(n int, seed uint64) *datasources.Dataset {
	return datasources.NewDataset(SalesColumns, Sales(n, seed))
}

// Loader serves generated sales as the "demo" source type.
//
// Config keys:
//   - rows: number of records (default: 1000)
//   - seed: generator seed (default: 1)
type Loader struct{}

// NewLoader creates a demo loader.
func NewLoader() *Loader { return &Loader{} }

// SourceType implements datasources.Loader.
func (*Loader) SourceType() string { return "demo" }

// Load implements datasources.Loader.
func (*Loader) Load(ctx context.Context, config map[string]string) (*datasources.Dataset, error) {
	n, seed := DefaultRows, uint64(DefaultSeed)
	if v := config["rows"]; v != "" {
		var err error
		if n, err = strconv.Atoi(v); err != nil || n < 0 {
			return nil, fmt.Errorf("rows: invalid count %q", v)
		}
	}
	if v := config["seed"]; v != "" {
		var err error
		if seed, err = strconv.ParseUint(v, 10, 64); err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return SalesDataset(n, seed), nil
}

// Source returns a data source entry for the demo loader.
func Source(name string, rows int) *datasources.DataSource {
	return &datasources.DataSource{
		Name:        name,
		SourceType:  "demo",
		Description: fmt.Sprintf("%d generated grocery sales across regions, channels and two years", rows),
		Config:      map[string]string{"rows": strconv.Itoa(rows)},
	}
}
