package scheduler

type State int32

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateSeeking
	StateCompleted
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateSeeking:
		return "seeking"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseState is the inverse of String. Unknown names report false.
func ParseState(name string) (State, bool) {
	for s := StateIdle; s <= StateError; s++ {
		if s.String() == name {
			return s, true
		}
	}
	return StateIdle, false
}

// Status is a point-in-time snapshot of a scheduler.
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
