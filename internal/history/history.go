package history

import (
	"context"
	"time"

	"github.com/loykin/routeplay/internal/timeline"
)

// EventType defines the kind of playback audit event.
type EventType string

const (
	EventLoaded     EventType = "loaded"
	EventLoadFailed EventType = "load_failed"
	EventPlay       EventType = "play"
	EventPause      EventType = "pause"
	EventStop       EventType = "stop"
	EventSeek       EventType = "seek"
	EventSpeed      EventType = "speed"
	EventComplete   EventType = "complete"
)

var kindTypes = map[timeline.Kind]EventType{
	timeline.KindSchedulerReady:    EventLoaded,
	timeline.KindSchedulerError:    EventLoadFailed,
	timeline.KindSchedulerComplete: EventComplete,
	timeline.KindPlay:              EventPlay,
	timeline.KindPause:             EventPause,
	timeline.KindStop:              EventStop,
	timeline.KindSeek:              EventSeek,
	timeline.KindSpeedChange:       EventSpeed,
}

// TypeOf maps a lifecycle kind to its audit type. Line and trigger kinds
// are not recorded.
func TypeOf(k timeline.Kind) (EventType, bool) {
	t, ok := kindTypes[k]
	return t, ok
}

// Record is the scheduler snapshot stored with each event.
type Record struct {
	Session         string  `json:"session"`
	Scheduler       string  `json:"scheduler"`
	State           string  `json:"state"`
	VirtualTimeMS   float64 `json:"virtual_time_ms"`
	TotalDurationMS float64 `json:"total_duration_ms"`
	Speed           float64 `json:"speed"`
	Progress        float64 `json:"progress"`
	Detail          string  `json:"detail,omitempty"`
}

// Event represents a playback event exported to external systems.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Lister is implemented by sinks that can read back what they stored.
type Lister interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}
