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

package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type call struct {
	name   string
	value  float64
	labels Labels
}

type fakeBackend struct {
	mu         sync.Mutex
	counters   []call
	histograms []call
	flushes    int
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, call{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, call{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func TestRecordPass(t *testing.T) {
	fb := &fakeBackend{}
	SetBackend(fb)
	defer SetBackend(nil)

	RecordPass(StatusCompleted, 3, 2*time.Second)
	RecordPass(StatusCancelled, 0, time.Second)

	if len(fb.counters) != 3 {
		t.Fatalf("counters = %+v, want 3 calls", fb.counters)
	}
	if c := fb.counters[0]; c.name != PassTotal || c.labels["status"] != StatusCompleted {
		t.Errorf("first counter = %+v", c)
	}
	if c := fb.counters[1]; c.name != RecordsTotal || c.value != 3 || c.labels["kind"] != "tallied" {
		t.Errorf("records counter = %+v", c)
	}
	if c := fb.counters[2]; c.labels["status"] != StatusCancelled {
		t.Errorf("cancelled counter = %+v", c)
	}
	if len(fb.histograms) != 2 || fb.histograms[0].value != 2 {
		t.Errorf("histograms = %+v", fb.histograms)
	}
}

func TestRecordLoadAndRequest(t *testing.T) {
	fb := &fakeBackend{}
	SetBackend(fb)
	defer SetBackend(nil)

	RecordLoad("csv", nil)
	RecordLoad("sql", errors.New("boom"))
	RecordRequest("/api/pivot", 404, 10*time.Millisecond)

	if got := fb.counters[1].labels["status"]; got != "failure" {
		t.Errorf("load status = %q, want failure", got)
	}
	if got := fb.histograms[0].labels["status"]; got != "4xx" {
		t.Errorf("request status = %q, want 4xx", got)
	}
	if err := Flush(); err != nil || fb.flushes != 1 {
		t.Errorf("Flush = %v, flushes = %d", err, fb.flushes)
	}
}

func TestNopBackendByDefault(t *testing.T) {
	SetBackend(nil)
	RecordBatch()
	if err := Flush(); err != nil {
		t.Errorf("nop Flush = %v", err)
	}
}

func TestMulti(t *testing.T) {
	a, b := &fakeBackend{}, &fakeBackend{}
	SetBackend(Multi{a, b})
	defer SetBackend(nil)

	RecordBatch()
	RecordRequest("/pivot", 200, time.Millisecond)
	for i, fb := range []*fakeBackend{a, b} {
		if len(fb.counters) != 1 || len(fb.histograms) != 1 {
			t.Errorf("backend %d got %d counters, %d histograms", i, len(fb.counters), len(fb.histograms))
		}
	}
	if err := Flush(); err != nil || a.flushes != 1 || b.flushes != 1 {
		t.Errorf("Flush = %v, flushes = %d, %d", err, a.flushes, b.flushes)
	}
}
