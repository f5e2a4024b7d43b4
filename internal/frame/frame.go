// Package frame provides the per-frame callback drivers used by the scheduler.
package frame

import (
	"sync"
	"time"
)

// DefaultInterval is roughly one 60 Hz display frame.
const DefaultInterval = 16 * time.Millisecond

// Driver requests a single asynchronous callback for the next frame.
// The returned cancel func drops the request if it has not fired yet; calling
// it more than once is harmless.
type Driver interface {
	Request(fn func()) (cancel func())
}

// Timer fires requested callbacks after a fixed interval on a timer goroutine.
type Timer struct {
	interval time.Duration
}

// NewTimer returns a Timer driver; non-positive intervals use DefaultInterval.
func NewTimer(interval time.Duration) *Timer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Timer{interval: interval}
}

func (t *Timer) Interval() time.Duration { return t.interval }

func (t *Timer) Request(fn func()) func() {
	tm := time.AfterFunc(t.interval, fn)
	return func() { tm.Stop() }
}

// Manual queues requests until Step is called. It never runs callbacks on its own.
type Manual struct {
	mu    sync.Mutex
	seq   uint64
	queue []manualReq
}

type manualReq struct {
	id uint64
	fn func()
}

func NewManual() *Manual { return &Manual{} }

func (m *Manual) Request(fn func()) func() {
	m.mu.Lock()
	m.seq++
	id := m.seq
	m.queue = append(m.queue, manualReq{id: id, fn: fn})
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, r := range m.queue {
			if r.id == id {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				return
			}
		}
	}
}

// Step runs the callbacks queued before the call and returns how many ran.
// Requests made by those callbacks wait for the next Step.
func (m *Manual) Step() int {
	m.mu.Lock()
	batch := m.queue
	m.queue = nil
	m.mu.Unlock()
	for _, r := range batch {
		r.fn()
	}
	return len(batch)
}

// Pending reports queued requests.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
