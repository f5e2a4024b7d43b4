package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routeplay",
			Subsystem: "scheduler",
			Name:      "state_transitions_total",
			Help:      "Number of scheduler state transitions.",
		}, []string{"name", "from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "routeplay",
			Subsystem: "scheduler",
			Name:      "current_state",
			Help:      "Current scheduler state (1 = active state, 0 = inactive).",
		}, []string{"name", "state"},
	)
	eventsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routeplay",
			Subsystem: "scheduler",
			Name:      "events_dispatched_total",
			Help:      "Discrete timeline events dispatched, including seek replays.",
		}, []string{"name", "kind"},
	)
	progressEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routeplay",
			Subsystem: "scheduler",
			Name:      "progress_events_total",
			Help:      "Synthesized line-progress events.",
		}, []string{"name"},
	)
	ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routeplay",
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Frames processed while playing.",
		}, []string{"name"},
	)
	tickEvents = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "routeplay",
			Subsystem: "scheduler",
			Name:      "tick_dispatch_size",
			Help:      "Discrete events dispatched per tick.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"name"},
	)
	seeks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routeplay",
			Subsystem: "scheduler",
			Name:      "seeks_total",
			Help:      "Completed seek operations.",
		}, []string{"name"},
	)
	loadFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routeplay",
			Subsystem: "scheduler",
			Name:      "load_failures_total",
			Help:      "Timeline loads that ended in the error state.",
		}, []string{"name"},
	)
	speed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "routeplay",
			Subsystem: "scheduler",
			Name:      "speed",
			Help:      "Current speed multiplier.",
		}, []string{"name"},
	)
	progress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "routeplay",
			Subsystem: "scheduler",
			Name:      "progress_ratio",
			Help:      "Virtual time over total duration, updated per tick and on seek/stop.",
		}, []string{"name"},
	)
	listenerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routeplay",
			Subsystem: "bus",
			Name:      "listener_failures_total",
			Help:      "Listener panics recovered during publish.",
		}, []string{"kind"},
	)
	historyErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routeplay",
			Subsystem: "history",
			Name:      "sink_errors_total",
			Help:      "History sink send failures.",
		}, []string{"sink"},
	)
	historyDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "routeplay",
			Subsystem: "history",
			Name:      "dropped_total",
			Help:      "History events dropped because the recorder buffer was full.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		stateTransitions, currentStates, eventsDispatched, progressEvents, ticks, tickEvents,
		seeks, loadFailures, speed, progress, listenerFailures, historyErrors, historyDropped,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
}

func SetCurrentState(name, state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentStates.WithLabelValues(name, state).Set(value)
	}
}

func IncDispatched(name, kind string) {
	if regOK.Load() {
		eventsDispatched.WithLabelValues(name, kind).Inc()
	}
}

func AddProgressEvents(name string, n int) {
	if regOK.Load() && n > 0 {
		progressEvents.WithLabelValues(name).Add(float64(n))
	}
}

func ObserveTick(name string, dispatched int) {
	if regOK.Load() {
		ticks.WithLabelValues(name).Inc()
		tickEvents.WithLabelValues(name).Observe(float64(dispatched))
	}
}

func IncSeek(name string) {
	if regOK.Load() {
		seeks.WithLabelValues(name).Inc()
	}
}

func IncLoadFailure(name string) {
	if regOK.Load() {
		loadFailures.WithLabelValues(name).Inc()
	}
}

func SetSpeed(name string, x float64) {
	if regOK.Load() {
		speed.WithLabelValues(name).Set(x)
	}
}

func SetProgress(name string, ratio float64) {
	if regOK.Load() {
		progress.WithLabelValues(name).Set(ratio)
	}
}

func IncListenerFailure(kind string) {
	if regOK.Load() {
		listenerFailures.WithLabelValues(kind).Inc()
	}
}

func IncHistoryError(sink string) {
	if regOK.Load() {
		historyErrors.WithLabelValues(sink).Inc()
	}
}

func IncHistoryDropped() {
	if regOK.Load() {
		historyDropped.Inc()
	}
}
