package client

import (
	"encoding/json"
	"time"
)

// Status mirrors the daemon's scheduler snapshot.
type Status struct {
	Name            string   `json:"name"`
	State           string   `json:"state"`
	CurrentTimeMS   float64  `json:"current_time_ms"`
	TotalDurationMS float64  `json:"total_duration_ms"`
	Progress        float64  `json:"progress"`
	Speed           float64  `json:"speed"`
	EventCount      int      `json:"event_count"`
	Cursor          int      `json:"cursor"`
	Active          []string `json:"active"`
}

// StreamEvent is one server-sent event from /events. Data holds the JSON
// encoded playback event (or status snapshot for the "status" event).
type StreamEvent struct {
	Event string
	Data  json.RawMessage
}

// HistoryEvent is a stored audit entry returned by /history.
type HistoryEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     struct {
		Session         string  `json:"session"`
		Scheduler       string  `json:"scheduler"`
		State           string  `json:"state"`
		VirtualTimeMS   float64 `json:"virtual_time_ms"`
		TotalDurationMS float64 `json:"total_duration_ms"`
		Speed           float64 `json:"speed"`
		Progress        float64 `json:"progress"`
		Detail          string  `json:"detail,omitempty"`
	} `json:"record"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
