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

package pivot

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Timer is a scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped it; false means it already ran or was already stopped.
	Stop() bool
}

// Scheduler runs deferred callbacks on the goroutine that owns an engine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer states.
const (
	timerPending int32 = iota
	timerStopped
	timerFired
)

// EventLoop is a Scheduler that serializes posted tasks and timer callbacks
// onto the goroutine calling Run.
type EventLoop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

// NewEventLoop creates an idle event loop.
func NewEventLoop() *EventLoop {
	return &EventLoop{wake: make(chan struct{}, 1)}
}

// Post queues f to run on the loop. It is safe for concurrent use.
func (l *EventLoop) Post(f func()) {
	l.mu.Lock()
	l.queue = append(l.queue, f)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc implements Scheduler. The callback runs on the loop goroutine.
func (l *EventLoop) AfterFunc(d time.Duration, f func()) Timer {
	t := &loopTimer{f: f}
	if d <= 0 {
		l.Post(t.fire)
		return t
	}
	t.timer = time.AfterFunc(d, func() { l.Post(t.fire) })
	return t
}

// Run executes queued tasks until ctx is done.
func (l *EventLoop) Run(ctx context.Context) error {
	for {
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			f := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()
			f()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Do runs f on the loop and waits for it to finish.
func (l *EventLoop) Do(ctx context.Context, f func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		f()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type loopTimer struct {
	f     func()
	timer *time.Timer
	state atomic.Int32
}

func (t *loopTimer) fire() {
	if t.state.CompareAndSwap(timerPending, timerFired) {
		t.f()
	}
}

func (t *loopTimer) Stop() bool {
	if t.timer != nil {
		t.timer.Stop()
	}
	return t.state.CompareAndSwap(timerPending, timerStopped)
}

// ManualScheduler queues callbacks until the caller runs them. It keeps a
// virtual clock so delays order callbacks without real waiting. It is meant
// for tests and synchronous hosts.
type ManualScheduler struct {
	now     time.Duration
	seq     int
	pending []*manualTimer
}

type manualTimer struct {
	due   time.Duration
	seq   int
	f     func()
	state int32
	s     *ManualScheduler
}

func (t *manualTimer) Stop() bool {
	if t.state != timerPending {
		return false
	}
	t.state = timerStopped
	t.s.remove(t)
	return true
}

// AfterFunc implements Scheduler.
func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.seq++
	t := &manualTimer{due: s.now + d, seq: s.seq, f: f, s: s}
	s.pending = append(s.pending, t)
	return t
}

// Pending returns the number of queued callbacks.
func (s *ManualScheduler) Pending() int {
	return len(s.pending)
}

// RunNext runs the earliest queued callback, advancing the virtual clock to
// its due time. It reports whether anything ran.
func (s *ManualScheduler) RunNext() bool {
	if len(s.pending) == 0 {
		return false
	}
	sort.SliceStable(s.pending, func(i, j int) bool {
		a, b := s.pending[i], s.pending[j]
		if a.due != b.due {
			return a.due < b.due
		}
		return a.seq < b.seq
	})
	t := s.pending[0]
	s.pending = s.pending[1:]
	if t.due > s.now {
		s.now = t.due
	}
	t.state = timerFired
	t.f()
	return true
}

// RunPending runs callbacks, including ones scheduled by the callbacks
// themselves, until none are left. It returns how many ran.
func (s *ManualScheduler) RunPending() int {
	n := 0
	for s.RunNext() {
		n++
	}
	return n
}

// Advance moves the virtual clock forward by d, running every callback due
// by then.
func (s *ManualScheduler) Advance(d time.Duration) int {
	end := s.now + d
	n := 0
	for {
		next := -1
		for i, t := range s.pending {
			if t.due <= end && (next < 0 || t.due < s.pending[next].due ||
				(t.due == s.pending[next].due && t.seq < s.pending[next].seq)) {
				next = i
			}
		}
		if next < 0 {
			break
		}
		s.RunNext()
		n++
	}
	s.now = end
	return n
}

func (s *ManualScheduler) remove(t *manualTimer) {
	for i, x := range s.pending {
		if x == t {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}
