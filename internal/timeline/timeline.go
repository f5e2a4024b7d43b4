package timeline

import (
	"context"
	"errors"
	"time"
)

// ErrInvalid is wrapped by every validation failure reported by a Source.
var ErrInvalid = errors.New("invalid timeline")

// Timeline is an ordered event list plus its total duration.
// Events are sorted ascending by Timestamp and must not be mutated once loaded.
type Timeline struct {
	Events        []Event
	TotalDuration time.Duration
}

// Len returns the number of events.
func (t Timeline) Len() int { return len(t.Events) }

// End returns the latest Timestamp+Duration over all events.
func (t Timeline) End() time.Duration {
	var end time.Duration
	for _, e := range t.Events {
		if e.End() > end {
			end = e.End()
		}
	}
	return end
}

// Subjects lists subject ids in order of first appearance.
func (t Timeline) Subjects() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range t.Events {
		if e.SubjectID == "" {
			continue
		}
		if _, ok := seen[e.SubjectID]; ok {
			continue
		}
		seen[e.SubjectID] = struct{}{}
		out = append(out, e.SubjectID)
	}
	return out
}

// Source produces a timeline. The scheduler performs no validation on the
// result beyond trusting its sort order.
type Source interface {
	Timeline(ctx context.Context) (Timeline, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Timeline, error)

func (f SourceFunc) Timeline(ctx context.Context) (Timeline, error) { return f(ctx) }

// Static serves a prebuilt timeline.
type Static struct {
	tl Timeline
}

// NewStatic copies the event slice so later caller mutations cannot leak in.
func NewStatic(tl Timeline) Static {
	evs := append([]Event(nil), tl.Events...)
	return Static{tl: Timeline{Events: evs, TotalDuration: tl.TotalDuration}}
}

func (s Static) Timeline(ctx context.Context) (Timeline, error) {
	if err := ctx.Err(); err != nil {
		return Timeline{}, err
	}
	return s.tl, nil
}
