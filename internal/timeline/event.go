package timeline

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Payload carries kind-specific data. Only the fields relevant to the kind are set.
type Payload struct {
	Progress      float64           // line-progress, fraction in [0,1]
	Message       string            // scheduler-error, caption text
	EventCount    int               // scheduler-ready
	TotalDuration time.Duration     // scheduler-ready
	Speed         float64           // playback-speed-change
	Target        time.Duration     // playback-seek
	Color         string            // presentation parameter for line events
	Attrs         map[string]string // source-specific extras, read-only
}

// Event is an immutable scheduled or emitted record.
type Event struct {
	ID        string
	Kind      Kind
	Timestamp time.Duration // virtual time since timeline start
	Duration  time.Duration // zero for instantaneous events
	SubjectID string
	Payload   Payload
}

// End is Timestamp+Duration.
func (e Event) End() time.Duration { return e.Timestamp + e.Duration }

// NewID returns a fresh opaque event id.
func NewID() string { return uuid.NewString() }

// NewLifecycle builds a scheduler lifecycle marker at virtual time at.
func NewLifecycle(kind Kind, at time.Duration, p Payload) Event {
	return Event{ID: NewID(), Kind: kind, Timestamp: at, Payload: p}
}

// NewProgress builds a continuous line-progress event for subject.
func NewProgress(subject string, at time.Duration, progress float64, color string) Event {
	return Event{
		ID:        NewID(),
		Kind:      KindLineProgress,
		Timestamp: at,
		SubjectID: subject,
		Payload:   Payload{Progress: progress, Color: color},
	}
}

// Progress returns the fraction carried by a line-progress event.
func (e Event) Progress() (float64, bool) {
	if e.Kind != KindLineProgress {
		return 0, false
	}
	return e.Payload.Progress, true
}

type wireEvent struct {
	ID              string            `json:"id"`
	Kind            Kind              `json:"kind"`
	TimestampMS     float64           `json:"timestamp_ms"`
	DurationMS      float64           `json:"duration_ms"`
	SubjectID       string            `json:"subject_id,omitempty"`
	Progress        *float64          `json:"progress,omitempty"`
	Message         string            `json:"message,omitempty"`
	EventCount      int               `json:"event_count,omitempty"`
	TotalDurationMS float64           `json:"total_duration_ms,omitempty"`
	Speed           float64           `json:"speed,omitempty"`
	TargetMS        *float64          `json:"target_ms,omitempty"`
	Color           string            `json:"color,omitempty"`
	Attrs           map[string]string `json:"attrs,omitempty"`
}

// MarshalJSON encodes times as milliseconds.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		ID:              e.ID,
		Kind:            e.Kind,
		TimestampMS:     Millis(e.Timestamp),
		DurationMS:      Millis(e.Duration),
		SubjectID:       e.SubjectID,
		Message:         e.Payload.Message,
		EventCount:      e.Payload.EventCount,
		TotalDurationMS: Millis(e.Payload.TotalDuration),
		Speed:           e.Payload.Speed,
		Color:           e.Payload.Color,
		Attrs:           e.Payload.Attrs,
	}
	if e.Kind == KindLineProgress {
		p := e.Payload.Progress
		w.Progress = &p
	}
	if e.Kind == KindSeek {
		t := Millis(e.Payload.Target)
		w.TargetMS = &t
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = Event{
		ID:        w.ID,
		Kind:      w.Kind,
		Timestamp: FromMillis(w.TimestampMS),
		Duration:  FromMillis(w.DurationMS),
		SubjectID: w.SubjectID,
		Payload: Payload{
			Message:       w.Message,
			EventCount:    w.EventCount,
			TotalDuration: FromMillis(w.TotalDurationMS),
			Speed:         w.Speed,
			Color:         w.Color,
			Attrs:         w.Attrs,
		},
	}
	if w.Progress != nil {
		e.Payload.Progress = *w.Progress
	}
	if w.TargetMS != nil {
		e.Payload.Target = FromMillis(*w.TargetMS)
	}
	return nil
}

// Millis converts a duration to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FromMillis converts fractional milliseconds to a duration.
func FromMillis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
