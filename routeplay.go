package routeplay

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/routeplay/internal/config"
	"github.com/loykin/routeplay/internal/history"
	"github.com/loykin/routeplay/internal/history/factory"
	"github.com/loykin/routeplay/internal/metrics"
	"github.com/loykin/routeplay/internal/scheduler"
	iapi "github.com/loykin/routeplay/internal/server"
	"github.com/loykin/routeplay/internal/timeline"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Event = timeline.Event

type Kind = timeline.Kind

type Payload = timeline.Payload

type Timeline = timeline.Timeline

type Document = timeline.Document

type Source = timeline.Source

type State = scheduler.State

type Status = scheduler.Status

type Options = scheduler.Options

type Scheduler = scheduler.Scheduler

type Config = cfg.Config

type HistorySink = history.Sink

type Recorder = history.Recorder

type RecorderOptions = history.RecorderOptions

const (
	StateIdle      = scheduler.StateIdle
	StateLoading   = scheduler.StateLoading
	StateReady     = scheduler.StateReady
	StatePlaying   = scheduler.StatePlaying
	StatePaused    = scheduler.StatePaused
	StateSeeking   = scheduler.StateSeeking
	StateCompleted = scheduler.StateCompleted
	StateError     = scheduler.StateError
)

var (
	ErrDisposed       = scheduler.ErrDisposed
	ErrLoadSuperseded = scheduler.ErrLoadSuperseded
	ErrInvalid        = timeline.ErrInvalid
)

// New creates a scheduler; zero Options use the wall clock and a 16ms frame timer.
func New(opts Options) *Scheduler { return scheduler.New(opts) }

// LoadTimelineFile reads and validates a JSON, TOML or YAML timeline document.
func LoadTimelineFile(path string) (Timeline, error) {
	return timeline.File{Path: path}.Timeline(context.Background())
}

// NewStatic wraps a prebuilt timeline as a load source.
func NewStatic(tl Timeline) Source { return timeline.NewStatic(tl) }

func LoadConfig(path string) (*Config, error) {
	return cfg.LoadConfig(path)
}

// NewHTTPServer starts an HTTP server exposing the control API for s.
func NewHTTPServer(server cfg.ServerConfig, s *Scheduler) (*http.Server, error) {
	return iapi.NewServer(server, s)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics serves /metrics from the default registry on addr. It blocks
// until the server fails or is closed.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}

// History helpers

func NewRecorder(opts RecorderOptions, sinks ...HistorySink) *Recorder {
	return history.NewRecorder(opts, sinks...)
}

// NewSinkFromDSN builds a history sink from sqlite://, postgres://,
// clickhouse:// or opensearch:// DSNs; a bare path is a SQLite file.
func NewSinkFromDSN(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }
