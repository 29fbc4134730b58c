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

// Package metrics records operational metrics of the pivot engine through a
// pluggable backend. The default backend discards everything, so callers can
// record unconditionally. Concrete backends live in subpackages.
package metrics

import (
	"sync"
	"time"
)

// Metric names.
const (
	PassTotal       = "pivot_pass_total"
	PassDuration    = "pivot_pass_duration_seconds"
	RecordsTotal    = "pivot_records_total"
	BatchesTotal    = "pivot_batches_total"
	LoadTotal       = "pivot_load_total"
	RequestDuration = "pivot_request_duration_seconds"
)

// Pass outcomes.
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a backend. Passing nil restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

// Multi fans every metric out to each of bs.
type Multi []Backend

// IncCounter implements Backend.
func (m Multi) IncCounter(name string, delta float64, labels Labels) {
	for _, b := range m {
		b.IncCounter(name, delta, labels)
	}
}

// ObserveHistogram implements Backend.
func (m Multi) ObserveHistogram(name string, value float64, labels Labels) {
	for _, b := range m {
		b.ObserveHistogram(name, value, labels)
	}
}

// Flush flushes every backend and returns the first error.
func (m Multi) Flush() error {
	var first error
	for _, b := range m {
		if err := b.Flush(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordPass counts one summarization pass and its duration.
// status is StatusCompleted or StatusCancelled.
func RecordPass(status string, records int, d time.Duration) {
	b := current()
	lbls := Labels{"status": status}
	b.IncCounter(PassTotal, 1, lbls)
	b.ObserveHistogram(PassDuration, d.Seconds(), lbls)
	RecordRecords("tallied", records)
}

// RecordRecords counts records of a kind such as "tallied" or "filtered".
func RecordRecords(kind string, delta int) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{"kind": kind})
}

// RecordBatch counts one cooperative batch of a pass.
func RecordBatch() {
	current().IncCounter(BatchesTotal, 1, nil)
}

// RecordLoad counts a data source load attempt.
func RecordLoad(source string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	current().IncCounter(LoadTotal, 1, Labels{"source": source, "status": status})
}

// RecordRequest observes the duration of an API request.
func RecordRequest(route string, status int, d time.Duration) {
	current().ObserveHistogram(RequestDuration, d.Seconds(), Labels{
		"route":  route,
		"status": statusClass(status),
	})
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
