package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/routeplay/internal/timeline"
)

func ev(k timeline.Kind) timeline.Event {
	return timeline.Event{ID: timeline.NewID(), Kind: k}
}

func TestPublishOrderWithFilters(t *testing.T) {
	b := New(nil)
	var got []string
	b.Subscribe(func(timeline.Event) { got = append(got, "all-1") })
	b.SubscribeKind(timeline.KindRipple, func(timeline.Event) { got = append(got, "ripple") })
	b.Subscribe(func(timeline.Event) { got = append(got, "all-2") })
	b.SubscribeKind(timeline.KindCaption, func(timeline.Event) { got = append(got, "caption") })

	b.Publish(ev(timeline.KindRipple))
	assert.Equal(t, []string{"all-1", "ripple", "all-2"}, got)

	got = nil
	b.Publish(ev(timeline.KindCaption))
	assert.Equal(t, []string{"all-1", "all-2", "caption"}, got)
}

func TestPanickingListenerIsIsolated(t *testing.T) {
	b := New(nil)
	var failures []any
	b.OnFailure(func(_ timeline.Event, r any) { failures = append(failures, r) })

	var after int
	b.Subscribe(func(timeline.Event) { panic("boom") })
	b.Subscribe(func(timeline.Event) { after++ })

	require.NotPanics(t, func() { b.Publish(ev(timeline.KindLineStart)) })
	assert.Equal(t, 1, after)
	assert.Equal(t, []any{"boom"}, failures)
}

func TestCloseIsIdempotent(t *testing.T) {
	b := New(nil)
	n := 0
	s := b.Subscribe(func(timeline.Event) { n++ })
	assert.True(t, s.Active())
	s.Close()
	s.Close()
	assert.False(t, s.Active())
	assert.Equal(t, 0, b.Len())
	b.Publish(ev(timeline.KindRipple))
	assert.Equal(t, 0, n)
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	b := New(nil)
	var calls []string
	var second *Subscription
	var self *Subscription
	self = b.Subscribe(func(timeline.Event) {
		calls = append(calls, "first")
		self.Close()
		second.Close()
	})
	second = b.Subscribe(func(timeline.Event) { calls = append(calls, "second") })
	b.Subscribe(func(timeline.Event) { calls = append(calls, "third") })

	b.Publish(ev(timeline.KindRipple))
	assert.Equal(t, []string{"first", "third"}, calls)

	calls = nil
	b.Publish(ev(timeline.KindRipple))
	assert.Equal(t, []string{"third"}, calls)
}

func TestSubscribeDuringPublishWaitsForNextEvent(t *testing.T) {
	b := New(nil)
	late := 0
	once := false
	b.Subscribe(func(timeline.Event) {
		if !once {
			once = true
			b.Subscribe(func(timeline.Event) { late++ })
		}
	})
	b.Publish(ev(timeline.KindRipple))
	assert.Equal(t, 0, late)
	b.Publish(ev(timeline.KindRipple))
	assert.Equal(t, 1, late)
}

func TestDisposeAll(t *testing.T) {
	b := New(nil)
	n := 0
	s := b.Subscribe(func(timeline.Event) { n++ })
	b.DisposeAll()
	assert.True(t, b.Closed())
	assert.False(t, s.Active())
	assert.Equal(t, 0, b.Len())

	b.Publish(ev(timeline.KindRipple))
	assert.Equal(t, 0, n)

	late := b.Subscribe(func(timeline.Event) { n++ })
	assert.False(t, late.Active())
	b.Publish(ev(timeline.KindRipple))
	assert.Equal(t, 0, n)

	b.DisposeAll()
}

func TestDisposeDuringPublishStopsFanOut(t *testing.T) {
	b := New(nil)
	var calls int
	b.Subscribe(func(timeline.Event) { calls++; b.DisposeAll() })
	b.Subscribe(func(timeline.Event) { calls++ })
	b.Publish(ev(timeline.KindRipple))
	assert.Equal(t, 1, calls)
}
