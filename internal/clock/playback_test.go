package clock

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestClampSpeed(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{1, 1},
		{0.1, MinSpeed},
		{-2, MinSpeed},
		{0, MinSpeed},
		{10, MaxSpeed},
		{2.5, 2.5},
		{math.NaN(), DefaultSpeed},
		{math.Inf(1), MaxSpeed},
	}
	for _, c := range cases {
		if got := ClampSpeed(c.in); got != c.want {
			t.Errorf("ClampSpeed(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestPlaybackBeginAndCurrent(t *testing.T) {
	p := NewPlayback(1)
	if p.Current(t0) != 0 || p.Running() {
		t.Fatal("new clock should be frozen at 0")
	}
	p.Begin(t0, 200*time.Millisecond)
	if got := p.Current(t0); got != 200*time.Millisecond {
		t.Fatalf("at begin: %v", got)
	}
	if got := p.Current(t0.Add(300 * time.Millisecond)); got != 500*time.Millisecond {
		t.Fatalf("after 300ms: %v", got)
	}
	// a wall clock reading before the anchor never rewinds virtual time
	if got := p.Current(t0.Add(-time.Second)); got != 200*time.Millisecond {
		t.Fatalf("before anchor: %v", got)
	}
}

func TestPlaybackSpeedChangeIsContinuous(t *testing.T) {
	p := NewPlayback(1)
	p.Begin(t0, 0)
	now := t0
	last := time.Duration(0)
	speeds := []float64{2, 0.5, 3, 0.25, 1.5}
	for _, s := range speeds {
		now = now.Add(100 * time.Millisecond)
		before := p.Current(now)
		p.SetSpeed(now, s)
		after := p.Current(now)
		if before != after {
			t.Fatalf("discontinuity at speed %v: %v -> %v", s, before, after)
		}
		if after < last {
			t.Fatalf("virtual time went backwards: %v < %v", after, last)
		}
		last = after
	}
	// 100ms at 1x, then 100ms at 2x, 0.5x, 3x, 0.25x
	want := 100*time.Millisecond + 200*time.Millisecond + 50*time.Millisecond + 300*time.Millisecond + 25*time.Millisecond
	if last != want {
		t.Fatalf("accumulated %v, want %v", last, want)
	}
}

func TestPlaybackSpeedWhileFrozen(t *testing.T) {
	p := NewPlayback(1)
	p.Begin(t0, 0)
	at := p.Freeze(t0.Add(400 * time.Millisecond))
	if at != 400*time.Millisecond {
		t.Fatalf("freeze: %v", at)
	}
	if got := p.SetSpeed(t0.Add(time.Second), 2); got != 2 {
		t.Fatalf("speed %v", got)
	}
	if p.Current(t0.Add(5*time.Second)) != at {
		t.Fatal("speed change while frozen moved virtual time")
	}
	p.Begin(t0.Add(5*time.Second), p.Current(t0))
	if got := p.Current(t0.Add(5*time.Second + 100*time.Millisecond)); got != 600*time.Millisecond {
		t.Fatalf("new speed not applied on resume: %v", got)
	}
}

func TestPlaybackRebaseSeekReset(t *testing.T) {
	p := NewPlayback(2)
	p.Begin(t0, 0)
	p.Rebase(t0.Add(time.Second), 100*time.Millisecond)
	if !p.Running() {
		t.Fatal("rebase must keep running")
	}
	if got := p.Current(t0.Add(time.Second + 50*time.Millisecond)); got != 200*time.Millisecond {
		t.Fatalf("after rebase: %v", got)
	}
	p.Seek(750 * time.Millisecond)
	if p.Running() || p.Current(t0.Add(time.Hour)) != 750*time.Millisecond {
		t.Fatal("seek must freeze at target")
	}
	p.Reset()
	if p.Current(t0) != 0 || p.Speed() != 2 {
		t.Fatal("reset must zero time and keep speed")
	}
}

func TestFakeSource(t *testing.T) {
	f := NewFake(time.Time{})
	start := f.Now()
	f.Advance(time.Second)
	f.Advance(-time.Hour)
	if f.Now().Sub(start) != time.Second {
		t.Fatalf("unexpected fake time %v", f.Now().Sub(start))
	}
	if System.Now().IsZero() {
		t.Fatal("system clock returned zero time")
	}
}
