// Package bus is a synchronous in-process publish/subscribe channel for
// timeline events.
package bus

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/loykin/routeplay/internal/metrics"
	"github.com/loykin/routeplay/internal/timeline"
)

// Listener receives published events on the publishing goroutine.
type Listener func(timeline.Event)

// Filter selects which events a subscription receives.
type Filter func(timeline.Event) bool

// FailureHook is called after a listener panic has been recovered.
type FailureHook func(ev timeline.Event, recovered any)

// Subscription is a handle returned by Subscribe. Close unregisters it.
type Subscription struct {
	bus    *Bus
	id     uint64
	filter Filter
	fn     Listener
	active atomic.Bool
}

// Close unregisters the subscription. It is safe to call more than once and
// from inside a listener; a closed subscription is not invoked again, even
// by a publish already in progress.
func (s *Subscription) Close() {
	if s == nil || !s.active.Swap(false) {
		return
	}
	if s.bus != nil {
		s.bus.remove(s.id)
	}
}

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool { return s != nil && s.active.Load() }

// Bus fans events out to subscribers in subscription order.
type Bus struct {
	mu     sync.Mutex
	seq    uint64
	subs   []*Subscription
	closed bool
	onFail FailureHook
	logger *slog.Logger
}

// New returns an open bus. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// OnFailure installs an extra hook for recovered listener panics. The bus
// always logs and counts failures; the hook is for callers that want more.
func (b *Bus) OnFailure(h FailureHook) {
	b.mu.Lock()
	b.onFail = h
	b.mu.Unlock()
}

// Subscribe registers fn for every event.
func (b *Bus) Subscribe(fn Listener) *Subscription {
	return b.SubscribeFunc(nil, fn)
}

// SubscribeKind registers fn for events of kind k only.
func (b *Bus) SubscribeKind(k timeline.Kind, fn Listener) *Subscription {
	return b.SubscribeFunc(func(ev timeline.Event) bool { return ev.Kind == k }, fn)
}

// SubscribeFunc registers fn for events accepted by filter. A nil filter
// accepts everything. Subscribing to a closed bus returns a closed handle.
func (b *Bus) SubscribeFunc(filter Filter, fn Listener) *Subscription {
	s := &Subscription{bus: b, filter: filter, fn: fn}
	if fn == nil {
		return s
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return s
	}
	b.seq++
	s.id = b.seq
	s.active.Store(true)
	b.subs = append(b.subs, s)
	return s
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			// copy so snapshots held by running publishes stay intact
			next := make([]*Subscription, 0, len(b.subs)-1)
			next = append(next, b.subs[:i]...)
			b.subs = append(next, b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every current subscriber, in order. Each listener
// runs under its own recover so one failure does not stop the fan-out.
func (b *Bus) Publish(ev timeline.Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	snapshot := b.subs
	hook := b.onFail
	b.mu.Unlock()

	for _, s := range snapshot {
		if !s.active.Load() {
			continue
		}
		if s.filter != nil && !s.filter(ev) {
			continue
		}
		b.deliver(s, ev, hook)
	}
}

func (b *Bus) deliver(s *Subscription, ev timeline.Event, hook FailureHook) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("listener failed", "kind", ev.Kind.String(), "event_id", ev.ID, "panic", fmt.Sprint(r))
			metrics.IncListenerFailure(ev.Kind.String())
			if hook != nil {
				hook(ev, r)
			}
		}
	}()
	s.fn(ev)
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Closed reports whether DisposeAll has been called.
func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// DisposeAll closes every subscription and the bus itself. Later Publish
// calls are dropped.
func (b *Bus) DisposeAll() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.closed = true
	b.mu.Unlock()
	for _, s := range subs {
		s.active.Store(false)
	}
}
