package clock

import (
	"math"
	"time"
)

const (
	MinSpeed     = 0.25
	MaxSpeed     = 3.0
	DefaultSpeed = 1.0
)

// ClampSpeed bounds x to [MinSpeed, MaxSpeed]. NaN falls back to DefaultSpeed.
func ClampSpeed(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return DefaultSpeed
	case x < MinSpeed:
		return MinSpeed
	case x > MaxSpeed:
		return MaxSpeed
	}
	return x
}

// Playback derives virtual elapsed time from wall-clock readings.
//
// While running, virtual time is offset + (now - anchor) * speed. While frozen
// it is offset. Every mutation that happens while running re-anchors first, so
// virtual time never jumps when speed changes.
//
// The zero value is a frozen clock at virtual time 0 with speed 0; use
// NewPlayback.
type Playback struct {
	anchor  time.Time
	offset  time.Duration
	speed   float64
	running bool
}

// NewPlayback returns a frozen clock at 0 with the given (clamped) speed.
func NewPlayback(speed float64) Playback {
	return Playback{speed: ClampSpeed(speed)}
}

// Begin starts a playing segment so that Current(now) == at.
func (p *Playback) Begin(now time.Time, at time.Duration) {
	p.offset = at
	p.anchor = now
	p.running = true
}

// Current returns the virtual time at wall time now.
func (p *Playback) Current(now time.Time) time.Duration {
	if !p.running {
		return p.offset
	}
	elapsed := now.Sub(p.anchor)
	if elapsed < 0 {
		elapsed = 0
	}
	return p.offset + time.Duration(float64(elapsed)*p.speed)
}

// Rebase moves virtual time to at without leaving the running state.
func (p *Playback) Rebase(now time.Time, at time.Duration) {
	p.offset = at
	p.anchor = now
}

// Freeze captures the current virtual time and stops advancing.
func (p *Playback) Freeze(now time.Time) time.Duration {
	p.offset = p.Current(now)
	p.running = false
	return p.offset
}

// Seek sets a frozen virtual time.
func (p *Playback) Seek(at time.Duration) {
	p.offset = at
	p.running = false
}

// SetSpeed clamps and applies x, rebasing when running. It returns the applied speed.
func (p *Playback) SetSpeed(now time.Time, x float64) float64 {
	x = ClampSpeed(x)
	if p.running {
		p.Rebase(now, p.Current(now))
	}
	p.speed = x
	return x
}

// Reset freezes the clock at 0, keeping the speed.
func (p *Playback) Reset() {
	p.offset = 0
	p.running = false
	p.anchor = time.Time{}
}

func (p *Playback) Speed() float64 { return p.speed }
func (p *Playback) Running() bool  { return p.running }
