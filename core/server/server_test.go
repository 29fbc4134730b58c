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

package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/pivotengine/core/pivot"
	"github.com/google/pivotengine/core/views"
	"github.com/google/pivotengine/datasources"
)

const salesCSV = `Region,Product,Sales
North,Apples,10
North,Pears,20
South,Apples,5
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWith(t, Options{
		Title: "Test",
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "pivot_requests_total 1\n")
		}),
	})
}

func newTestServerWith(t *testing.T, opts Options) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.csv")
	if err := os.WriteFile(path, []byte(salesCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	manager := datasources.NewManager()
	manager.RegisterLoader(datasources.NewCsvLoader())
	manager.AddSource(&datasources.DataSource{
		Name:        "sales",
		SourceType:  "csv",
		Description: "Fruit sales",
		Config:      map[string]string{"file_path": path},
	})

	loop := pivot.NewEventLoop()
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(cancel)

	s, err := New(manager, loop, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func do(t *testing.T, s *Server, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func getPivot(t *testing.T, s *Server, target string) views.TableViewModel {
	t.Helper()
	rec := do(t, s, http.MethodGet, target, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s = %d: %s", target, rec.Code, rec.Body)
	}
	var vm views.TableViewModel
	if err := json.Unmarshal(rec.Body.Bytes(), &vm); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return vm
}

func TestPivotJSON(t *testing.T) {
	s := newTestServer(t)
	vm := getPivot(t, s, "/api/pivot?source=sales&rows=Region&values=Sales")

	if vm.RecordCount != 3 || len(vm.Rows) != 3 {
		t.Fatalf("RecordCount = %d, rows = %d", vm.RecordCount, len(vm.Rows))
	}
	var got []string
	for _, r := range vm.Rows {
		got = append(got, r.Labels[0]+"="+r.Cells[0].Text)
	}
	want := []string{"North=30", "South=5", views.GrandTotalLabel + "=35"}
	if !slices.Equal(got, want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
}

func TestPivotWaitsForBatchedPass(t *testing.T) {
	s := newTestServerWith(t, Options{
		Title:  "Test",
		Engine: pivot.Config{BatchSize: 1, BatchDelay: time.Nanosecond, InvalidateDelay: time.Millisecond},
	})
	for _, target := range []string{
		"/api/pivot?source=sales&rows=Region&values=Sales",
		"/api/pivot?source=sales&rows=Product&values=Sales",
		"/api/pivot?source=sales&rows=Region&values=Sales",
	} {
		vm := getPivot(t, s, target)
		if vm.RecordCount != 3 {
			t.Errorf("%s: RecordCount = %d, want 3", target, vm.RecordCount)
		}
		if n := len(vm.Rows); n != 3 || vm.Rows[n-1].Cells[0].Text != "35" {
			t.Errorf("%s: rows = %+v", target, vm.Rows)
		}
	}

	rec := do(t, s, http.MethodGet, "/api/detail?source=sales&rows=Region&values=Sales&row=0", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("detail = %d: %s", rec.Code, rec.Body)
	}
	var resp DetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 {
		t.Errorf("detail count = %d, want 2", resp.Count)
	}
}

func TestPivotDefaultsToOnlySource(t *testing.T) {
	s := newTestServer(t)
	vm := getPivot(t, s, "/api/pivot?rows=Product&values=Sales&sort=-@0")
	if len(vm.Rows) != 3 || vm.Rows[0].Labels[0] != "Pears" {
		t.Errorf("rows = %+v", vm.Rows)
	}
}

func TestPivotErrors(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		target string
		code   int
	}{
		{"/api/pivot?source=missing&rows=Region", http.StatusNotFound},
		{"/api/pivot?rows=Nope", http.StatusBadRequest},
		{"/api/pivot?values=Sales:Median", http.StatusBadRequest},
		{"/api/pivot?rows=Region&sort=Nope", http.StatusBadRequest},
		{"/api/detail?rows=Region&row=x", http.StatusBadRequest},
		{"/api/detail?rows=Region&row=99", http.StatusBadRequest},
		{"/nowhere", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, tt.target, nil, "")
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.code, rec.Body)
			}
		})
	}
}

func TestHTMLPages(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Fruit sales") {
		t.Errorf("landing = %d:\n%s", rec.Code, rec.Body)
	}

	rec = do(t, s, http.MethodGet, "/pivot?rows=Region&cols=Product&values=Sales", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("pivot = %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	for _, want := range []string{"North", "Apples", views.GrandTotalLabel} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("pivot page missing %q", want)
		}
	}

	rec = do(t, s, http.MethodGet, "/api/pivot.txt?rows=Region&values=Sales", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "North") {
		t.Errorf("text = %d:\n%s", rec.Code, rec.Body)
	}
}

func TestViewDefinitionRoundTrip(t *testing.T) {
	s := newTestServer(t)
	getPivot(t, s, "/api/pivot?rows=Product&values=Sales")

	rec := do(t, s, http.MethodGet, "/api/view", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/view = %d: %s", rec.Code, rec.Body)
	}
	def, err := pivot.ParseViewDefinition(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("ParseViewDefinition: %v", err)
	}
	if !slices.Equal(def.RowFields.Items, []string{"Product"}) {
		t.Fatalf("RowFields = %v", def.RowFields.Items)
	}

	def.RowFields.Items = []string{"Region"}
	def.ShowRowTotals = pivot.TotalsNone
	body, err := pivot.MarshalViewDefinition(def)
	if err != nil {
		t.Fatal(err)
	}
	rec = do(t, s, http.MethodPut, "/api/view", body, "application/json")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("PUT /api/view = %d: %s", rec.Code, rec.Body)
	}

	// A request without layout parameters shows the stored layout.
	vm := getPivot(t, s, "/api/pivot")
	if len(vm.RowHeaders) != 1 || vm.RowHeaders[0].Label != "Region" || len(vm.Rows) != 2 {
		t.Errorf("RowHeaders = %+v, rows = %d", vm.RowHeaders, len(vm.Rows))
	}

	rec = do(t, s, http.MethodPut, "/api/view", []byte("{"), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body = %d", rec.Code)
	}
}

func TestDetail(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/detail?rows=Region&cols=Product&values=Sales&row=0&col=0", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("detail = %d: %s", rec.Code, rec.Body)
	}
	var resp DetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || !slices.Equal(resp.Row, []string{"North"}) || resp.Column == "" {
		t.Errorf("detail = %+v", resp)
	}

	rec = do(t, s, http.MethodGet, "/api/detail?rows=Region&values=Sales&row=0", nil, "")
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 {
		t.Errorf("row detail count = %d, want 2", resp.Count)
	}
}

func TestSourcesAndReload(t *testing.T) {
	s := newTestServer(t)
	getPivot(t, s, "/api/pivot?rows=Region&values=Sales")

	rec := do(t, s, http.MethodGet, "/api/sources", nil, "")
	var sources []SourceStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &sources); err != nil {
		t.Fatal(err)
	}
	if len(sources) != 1 || !sources[0].Loaded || sources[0].SourceType != "csv" {
		t.Errorf("sources = %+v", sources)
	}

	rec = do(t, s, http.MethodPost, "/api/sources/sales/reload", nil, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("reload = %d", rec.Code)
	}
	rec = do(t, s, http.MethodPost, "/api/sources/nope/reload", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("reload unknown = %d", rec.Code)
	}
}

func TestFieldsAndMetrics(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/fields", nil, "")
	var fields []views.FieldInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &fields); err != nil {
		t.Fatal(err)
	}
	var headers []string
	for _, f := range fields {
		headers = append(headers, f.Header)
	}
	if !slices.Equal(headers, []string{"Region", "Product", "Sales"}) {
		t.Errorf("fields = %v", headers)
	}

	rec = do(t, s, http.MethodGet, "/metrics", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "pivot_requests_total") {
		t.Errorf("metrics = %d: %s", rec.Code, rec.Body)
	}
}

func TestColumnsSource(t *testing.T) {
	s := newTestServer(t)
	s.manager.AddSystemSources()

	// The system source does not make the default ambiguous.
	getPivot(t, s, "/api/pivot?rows=Region&values=Sales")

	vm := getPivot(t, s, "/api/pivot?source=_columns&rows=column_name&values=row_count:Max")
	var got []string
	for _, r := range vm.Rows {
		got = append(got, r.Labels[0]+"="+r.Cells[0].Text)
	}
	want := []string{"Product=3", "Region=3", "Sales=3", views.GrandTotalLabel + "=3"}
	if !slices.Equal(got, want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
}
