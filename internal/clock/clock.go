// Package clock isolates wall-clock reads and the virtual playback clock.
package clock

import (
	"sync"
	"time"
)

// Source provides wall-clock readings. Implementations should be monotonic.
type Source interface {
	Now() time.Time
}

// System is the default Source backed by time.Now (monotonic reading included).
var System Source = systemSource{}

type systemSource struct{}

func (systemSource) Now() time.Time { return time.Now() }

// Fake is a manually advanced Source for tests and deterministic simulation.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake starts at start; a zero start uses a fixed epoch.
func NewFake(start time.Time) *Fake {
	if start.IsZero() {
		start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward; negative values are ignored.
func (f *Fake) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
