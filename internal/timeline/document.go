package timeline

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Document is the serialized timeline format shared by files and the HTTP API.
// Times are integer milliseconds.
//
//	{"total_duration_ms": 1500, "color": "#ff6600", "events": [
//	  {"kind": "line-start", "subject": "A", "timestamp_ms": 0, "duration_ms": 1000},
//	  {"kind": "line-complete", "subject": "A", "timestamp_ms": 1000}
//	]}
type Document struct {
	TotalDurationMS int64           `json:"total_duration_ms" mapstructure:"total_duration_ms"`
	Color           string          `json:"color,omitempty" mapstructure:"color"`
	Events          []DocumentEvent `json:"events" mapstructure:"events"`
}

type DocumentEvent struct {
	ID          string            `json:"id,omitempty" mapstructure:"id"`
	Kind        string            `json:"kind" mapstructure:"kind"`
	TimestampMS int64             `json:"timestamp_ms" mapstructure:"timestamp_ms"`
	DurationMS  int64             `json:"duration_ms,omitempty" mapstructure:"duration_ms"`
	Subject     string            `json:"subject,omitempty" mapstructure:"subject"`
	Color       string            `json:"color,omitempty" mapstructure:"color"`
	Text        string            `json:"text,omitempty" mapstructure:"text"`
	Attrs       map[string]string `json:"attrs,omitempty" mapstructure:"attrs"`
}

// Timeline converts and validates the document.
//
// Events are stably sorted by timestamp. A zero TotalDurationMS is derived from
// the latest event end. Line events need a subject, every line-complete needs an
// earlier line-start for the same subject, and the document color is applied
// to line events that carry none.
func (d Document) Timeline() (Timeline, error) {
	if d.TotalDurationMS < 0 {
		return Timeline{}, fmt.Errorf("%w: negative total duration %d", ErrInvalid, d.TotalDurationMS)
	}
	evs := make([]Event, 0, len(d.Events))
	for i, de := range d.Events {
		k := Kind(de.Kind)
		if !k.Schedulable() {
			return Timeline{}, fmt.Errorf("%w: event %d: kind %q cannot be scheduled", ErrInvalid, i, de.Kind)
		}
		if de.TimestampMS < 0 || de.DurationMS < 0 {
			return Timeline{}, fmt.Errorf("%w: event %d: negative time", ErrInvalid, i)
		}
		if k.IsLine() && de.Subject == "" {
			return Timeline{}, fmt.Errorf("%w: event %d: %s requires a subject", ErrInvalid, i, k)
		}
		id := de.ID
		if id == "" {
			id = NewID()
		}
		color := de.Color
		if color == "" && k.IsLine() {
			color = d.Color
		}
		evs = append(evs, Event{
			ID:        id,
			Kind:      k,
			Timestamp: time.Duration(de.TimestampMS) * time.Millisecond,
			Duration:  time.Duration(de.DurationMS) * time.Millisecond,
			SubjectID: de.Subject,
			Payload:   Payload{Color: color, Message: de.Text, Attrs: de.Attrs},
		})
	}
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Timestamp < evs[j].Timestamp })

	started := make(map[string]time.Duration)
	for _, e := range evs {
		switch e.Kind {
		case KindLineStart:
			if _, dup := started[e.SubjectID]; dup {
				return Timeline{}, fmt.Errorf("%w: subject %q started twice", ErrInvalid, e.SubjectID)
			}
			started[e.SubjectID] = e.Timestamp
		case KindLineComplete:
			at, ok := started[e.SubjectID]
			if !ok {
				return Timeline{}, fmt.Errorf("%w: subject %q completes before it starts", ErrInvalid, e.SubjectID)
			}
			if at > e.End() {
				return Timeline{}, fmt.Errorf("%w: subject %q start at %v after complete", ErrInvalid, e.SubjectID, at)
			}
		}
	}

	tl := Timeline{Events: evs, TotalDuration: time.Duration(d.TotalDurationMS) * time.Millisecond}
	if d.TotalDurationMS == 0 {
		tl.TotalDuration = tl.End()
	} else if len(evs) > 0 && evs[len(evs)-1].Timestamp > tl.TotalDuration {
		return Timeline{}, fmt.Errorf("%w: total duration %v ends before last event at %v",
			ErrInvalid, tl.TotalDuration, evs[len(evs)-1].Timestamp)
	}
	return tl, nil
}

// DocumentOf converts a timeline back into its serialized form.
func DocumentOf(tl Timeline) Document {
	d := Document{
		TotalDurationMS: tl.TotalDuration.Milliseconds(),
		Events:          make([]DocumentEvent, 0, len(tl.Events)),
	}
	for _, e := range tl.Events {
		d.Events = append(d.Events, DocumentEvent{
			ID:          e.ID,
			Kind:        string(e.Kind),
			TimestampMS: e.Timestamp.Milliseconds(),
			DurationMS:  e.Duration.Milliseconds(),
			Subject:     e.SubjectID,
			Color:       e.Payload.Color,
			Text:        e.Payload.Message,
			Attrs:       e.Payload.Attrs,
		})
	}
	return d
}

// Source wraps the document so it can be handed to a scheduler; validation runs on load.
func (d Document) Source() Source {
	return SourceFunc(func(ctx context.Context) (Timeline, error) {
		if err := ctx.Err(); err != nil {
			return Timeline{}, err
		}
		return d.Timeline()
	})
}
