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

// Package prometheus implements a scrape-based Prometheus backend for the
// metrics package. Collectors live in a private registry exposed through
// Handler.
package prometheus

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/google/pivotengine/core/metrics"
)

// Backend is a Prometheus metrics backend.
type Backend struct {
	reg *prometheus.Registry

	passCounter     *prometheus.CounterVec   // pivot_pass_total
	passDuration    *prometheus.HistogramVec // pivot_pass_duration_seconds
	recordCounter   *prometheus.CounterVec   // pivot_records_total
	batchCounter    prometheus.Counter       // pivot_batches_total
	loadCounter     *prometheus.CounterVec   // pivot_load_total
	requestDuration *prometheus.HistogramVec // pivot_request_duration_seconds
}

// NewBackend creates a backend with its own registry.
func NewBackend() (*Backend, error) {
	b := &Backend{
		reg: prometheus.NewRegistry(),
		passCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.PassTotal,
			Help: "Summarization passes, partitioned by outcome.",
		}, []string{"status"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.PassDuration,
			Help:    "Wall time of summarization passes in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		recordCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Records seen by summarization passes, per kind.",
		}, []string{"kind"}),
		batchCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Cooperative batches run by summarization passes.",
		}),
		loadCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.LoadTotal,
			Help: "Data source loads, per source type and status.",
		}, []string{"source", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.RequestDuration,
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
	for _, c := range []prometheus.Collector{b.passCounter, b.passDuration, b.recordCounter, b.batchCounter, b.loadCounter, b.requestDuration} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prometheus: register collector: %w", err)
		}
	}
	return b, nil
}

// Registry returns the backend's registry.
func (b *Backend) Registry() *prometheus.Registry { return b.reg }

// Handler serves the registry in the Prometheus exposition format.
func (b *Backend) Handler() http.Handler {
	return promhttp.HandlerFor(b.reg, promhttp.HandlerOpts{})
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.PassTotal:
		b.passCounter.WithLabelValues(labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		b.recordCounter.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.BatchesTotal:
		b.batchCounter.Add(delta)
	case metrics.LoadTotal:
		b.loadCounter.WithLabelValues(labels["source"], labels["status"]).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.PassDuration:
		b.passDuration.WithLabelValues(labels["status"]).Observe(value)
	case metrics.RequestDuration:
		b.requestDuration.WithLabelValues(labels["route"], labels["status"]).Observe(value)
	}
}

// Flush implements metrics.Backend. Scraped metrics need no flushing.
func (b *Backend) Flush() error { return nil }
