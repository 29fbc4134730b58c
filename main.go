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

// Command pivotengine loads data sources and either prints a pivot table to
// the terminal or serves pivot views over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/pivotengine/core/metrics"
	"github.com/google/pivotengine/core/metrics/datadog"
	"github.com/google/pivotengine/core/metrics/prometheus"
	"github.com/google/pivotengine/core/pivot"
	"github.com/google/pivotengine/core/query"
	"github.com/google/pivotengine/core/rendering"
	"github.com/google/pivotengine/core/server"
	"github.com/google/pivotengine/core/values"
	"github.com/google/pivotengine/core/views"
	"github.com/google/pivotengine/datasources"
	"github.com/google/pivotengine/demo"
	"golang.org/x/sync/errgroup"
)

var (
	addr        = flag.String("addr", "127.0.0.1:8097", "HTTP listen address")
	sourcesFile = flag.String("sources", "", "data sources config (.json or textproto)")
	csvFile     = flag.String("csv", "", "CSV file to serve as a source")
	csvOptions  = flag.String("csv-options", "", "CSV import options (.json or textproto)")
	sqlDriver   = flag.String("sql-driver", "sqlite", "SQL driver: "+strings.Join(datasources.SQLDrivers, ", "))
	sqlDSN      = flag.String("sql-dsn", "", "SQL data source name; enables the sql source")
	sqlQuery    = flag.String("sql-query", "", "SQL query for the sql source")
	protoFile   = flag.String("proto", "", "textproto or binary proto file to serve as a source")
	protoMsg    = flag.String("proto-message", "", "fully qualified message type of -proto")
	descriptors = flag.String("descriptor-set", "", "FileDescriptorSet defining -proto-message")
	demoRows    = flag.Int("demo-rows", demo.DefaultRows, "rows in the generated demo source")
	viewFile    = flag.String("view", "", "view definition applied to new engines (.json or text format)")
	pivotQuery  = flag.String("query", "", "pivot query for -print, e.g. rows=Region&cols=Year&values=Amount")
	printOnly   = flag.Bool("print", false, "print the pivot to stdout and exit")
	cultureName = flag.String("culture", "en-US", "BCP 47 tag used to format values")
	statsdAddr  = flag.String("statsd", "", "DogStatsD address; metrics are also sent there when set")
	accessLog   = flag.Bool("access-log", false, "log every HTTP request")
)

func main() {
	flag.Parse()

	culture, err := values.ParseCulture(*cultureName)
	if err != nil {
		log.Fatalf("Invalid -culture: %v", err)
	}

	prom, err := setupMetrics()
	if err != nil {
		log.Fatalf("Failed to set up metrics: %v", err)
	}
	defer metrics.Flush()

	manager, err := setupSources()
	if err != nil {
		log.Fatalf("Failed to set up data sources: %v", err)
	}

	var initialView *pivot.ViewDefinition
	if *viewFile != "" {
		def, err := readViewDefinition(*viewFile)
		if err != nil {
			log.Fatalf("Failed to read view definition: %v", err)
		}
		initialView = &def
	}

	if *printOnly {
		if err := printPivot(manager, culture, initialView); err != nil {
			log.Fatal(err)
		}
		return
	}

	srv, loop, err := newServer(manager, culture, initialView, prom)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := loop.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Printf("Server starting on http://%s", *addr)
		return srv.Start(*addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
	log.Println("Server stopped")
}

// setupMetrics installs the Prometheus backend, plus DogStatsD when
// configured.
func setupMetrics() (*prometheus.Backend, error) {
	prom, err := prometheus.NewBackend()
	if err != nil {
		return nil, err
	}
	backends := metrics.Multi{prom}
	if *statsdAddr != "" {
		dd, err := datadog.NewBackend(datadog.Config{Addr: *statsdAddr, Namespace: "pivot."})
		if err != nil {
			return nil, err
		}
		backends = append(backends, dd)
	}
	metrics.SetBackend(backends)
	return prom, nil
}

// setupSources registers the loaders and every source named by flags. The
// demo source is added when nothing else is configured, and the system
// sources always are.
func setupSources() (*datasources.Manager, error) {
	manager := datasources.NewManager()
	manager.RegisterLoader(datasources.NewCsvLoader())
	manager.RegisterLoader(datasources.NewSqlLoader())
	manager.RegisterLoader(datasources.NewProtoLoader())
	manager.RegisterLoader(demo.NewLoader())

	if *sourcesFile != "" {
		if err := manager.LoadConfig(*sourcesFile); err != nil {
			return nil, err
		}
	}
	if *csvFile != "" {
		manager.AddSource(&datasources.DataSource{
			Name:       baseName(*csvFile),
			SourceType: "csv",
			Config:     map[string]string{"file_path": *csvFile, "options_file": *csvOptions},
		})
	}
	if *sqlDSN != "" {
		manager.AddSource(&datasources.DataSource{
			Name:       "sql",
			SourceType: "sql",
			Config:     map[string]string{"driver": *sqlDriver, "dsn": *sqlDSN, "query": *sqlQuery},
		})
	}
	if *protoFile != "" {
		manager.AddSource(&datasources.DataSource{
			Name:       baseName(*protoFile),
			SourceType: "proto",
			Config: map[string]string{
				"proto_file":     *protoFile,
				"message_type":   *protoMsg,
				"descriptor_set": *descriptors,
			},
		})
	}
	if len(manager.GetSourceNames()) == 0 {
		manager.AddSource(demo.Source("demo", *demoRows))
	}
	manager.AddSystemSources()
	log.Printf("Data sources: %s", strings.Join(manager.GetSourceNames(), ", "))
	return manager, nil
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func readViewDefinition(path string) (pivot.ViewDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pivot.ViewDefinition{}, err
	}
	if filepath.Ext(path) == ".json" {
		return pivot.ParseViewDefinition(data)
	}
	return pivot.ParseViewDefinitionText(data)
}

func newServer(manager *datasources.Manager, culture *values.Culture, view *pivot.ViewDefinition, prom *prometheus.Backend) (*server.Server, *pivot.EventLoop, error) {
	loop := pivot.NewEventLoop()
	srv, err := server.New(manager, loop, server.Options{
		Title:          "Pivot Engine",
		Culture:        culture,
		InitialView:    view,
		MetricsHandler: prom.Handler(),
		AccessLog:      *accessLog,
	})
	return srv, loop, err
}

// printPivot builds one pivot synchronously and renders it as text.
func printPivot(manager *datasources.Manager, culture *values.Culture, view *pivot.ViewDefinition) error {
	q := query.NewQuery(&url.URL{Path: "/pivot", RawQuery: *pivotQuery})
	if q.Source == "" {
		q.Source = manager.UserSourceNames()[0]
	}

	start := time.Now()
	ds, err := manager.LoadData(context.Background(), q.Source)
	if err != nil {
		return err
	}
	log.Printf("Loaded %q: %d records in %v", q.Source, ds.Len(), time.Since(start))

	e := pivot.NewEngine(pivot.Config{Culture: culture})
	datasources.ApplyColumns(e, ds)
	e.SetItemsSource(ds)
	if view != nil {
		if err := e.SetViewDefinition(*view); err != nil {
			return err
		}
	}
	if len(q.Rows)+len(q.Columns)+len(q.Values)+len(q.Filters) > 0 {
		if err := q.ApplyTo(e); err != nil {
			return fmt.Errorf("invalid -query: %w", err)
		}
	} else if view == nil {
		return fmt.Errorf("nothing to print: pass -query or -view (fields: %s)", strings.Join(e.Fields().Headers(), ", "))
	}
	if err := q.ApplySort(e); err != nil {
		return fmt.Errorf("invalid -query: %w", err)
	}

	vm := views.BuildViewModel(e, q.Source, query.FromEngine(e, "/pivot"))
	return rendering.RenderTerminal(os.Stdout, vm)
}
