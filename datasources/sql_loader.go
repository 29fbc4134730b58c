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
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Drivers selectable through the "driver" config key.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

// SQLDrivers lists the database/sql driver names linked into the binary.
var SQLDrivers = []string{"mysql", "pgx", "sqlite", "sqlserver"}

// SqlLoader implements Loader for SQL databases. Each result row becomes a
// record keyed by column name.
//
// Required config keys:
//   - dsn: Data source name passed to the driver
//   - query or table: SELECT statement, or a table to read in full
//
// Optional config keys:
//   - driver: One of SQLDrivers (default: "sqlite")
type SqlLoader struct {
	// PingTimeout bounds the connection check before querying.
	PingTimeout time.Duration
}

// NewSqlLoader creates a new SQL loader.
func NewSqlLoader() *SqlLoader {
	return &SqlLoader{PingTimeout: 5 * time.Second}
}

// SourceType returns "sql".
func (l *SqlLoader) SourceType() string {
	return "sql"
}

// Load runs the configured query.
func (l *SqlLoader) Load(ctx context.Context, config map[string]string) (*Dataset, error) {
	driver := config["driver"]
	if driver == "" {
		driver = "sqlite"
	}
	dsn := config["dsn"]
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	query := config["query"]
	if query == "" {
		table := config["table"]
		if table == "" {
			return nil, fmt.Errorf("query or table is required")
		}
		query = "SELECT * FROM " + table
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", driver, err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, l.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("%s: ping: %w", driver, err)
	}
	return QueryDataset(ctx, db, query)
}

// QueryDataset runs query on db and collects the result set.
func QueryDataset(ctx context.Context, db *sql.DB, query string) (*Dataset, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	var records []map[string]any
	dest := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rec := make(map[string]any, len(names))
		for i, name := range names {
			rec[name] = sqlValue(dest[i])
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return NewDataset(inferSchema(names, records), records), nil
}

// sqlValue normalizes driver values to the types records carry.
func sqlValue(v any) any {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int8:
		return int64(v)
	case int:
		return int64(v)
	case uint32:
		return int64(v)
	case float32:
		return float64(v)
	}
	return v
}
