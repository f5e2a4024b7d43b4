package routeplay

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/routeplay/internal/clock"
	"github.com/loykin/routeplay/internal/config"
	"github.com/loykin/routeplay/internal/frame"
	"github.com/loykin/routeplay/internal/timeline"
)

const tourJSON = `{"total_duration_ms": 1000, "events": [
  {"kind": "line-start", "subject": "A", "timestamp_ms": 0, "duration_ms": 1000},
  {"kind": "caption", "timestamp_ms": 400, "text": "halfway"},
  {"kind": "line-complete", "subject": "A", "timestamp_ms": 1000}
]}`

func writeTimeline(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tour.json")
	if err := os.WriteFile(p, []byte(tourJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestFacadePlayback(t *testing.T) {
	tl, err := LoadTimelineFile(writeTimeline(t))
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if tl.Len() != 3 || tl.TotalDuration != time.Second {
		t.Fatalf("unexpected timeline: %d events, %v", tl.Len(), tl.TotalDuration)
	}

	clk := clock.NewFake(time.Time{})
	drv := frame.NewManual()
	s := New(Options{Name: "facade", Clock: clk, Driver: drv})
	defer s.Dispose()

	var kinds []Kind
	s.On(func(ev Event) {
		if ev.Kind != timeline.KindLineProgress {
			kinds = append(kinds, ev.Kind)
		}
	})
	if err := s.Load(context.Background(), NewStatic(tl)); err != nil {
		t.Fatalf("load: %v", err)
	}
	s.Play()
	for i := 0; i < 20 && s.State() == StatePlaying; i++ {
		clk.Advance(100 * time.Millisecond)
		drv.Step()
	}
	if s.State() != StateCompleted {
		t.Fatalf("expected completed, got %s", s.State())
	}
	want := []Kind{
		timeline.KindSchedulerReady, timeline.KindPlay, timeline.KindLineStart,
		timeline.KindCaption, timeline.KindLineComplete, timeline.KindSchedulerComplete,
	}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}

	s.Dispose()
	if err := s.Load(context.Background(), NewStatic(tl)); !errors.Is(err, ErrDisposed) {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
}

func TestLoadTimelineFileInvalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.json")
	_ = os.WriteFile(p, []byte(`{"events":[{"kind":"line-start","timestamp_ms":0}]}`), 0o600)
	if _, err := LoadTimelineFile(p); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestNewHTTPServerFacade(t *testing.T) {
	s := New(Options{Driver: frame.NewManual()})
	defer s.Dispose()
	srv, err := NewHTTPServer(config.ServerConfig{Listen: "127.0.0.1:0", BasePath: "/api"}, s)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	defer func() { _ = srv.Close() }()
	resp, err := http.Get("http://" + srv.Addr + "/api/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestRegisterMetricsFacade(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("second register should be idempotent: %v", err)
	}
}

func TestSinkAndRecorderFacade(t *testing.T) {
	sink, err := NewSinkFromDSN(filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	rec := NewRecorder(RecorderOptions{Session: "s1"}, sink)
	if rec.Session() != "s1" {
		t.Fatalf("session = %q", rec.Session())
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := NewSinkFromDSN("nope://x"); err == nil {
		t.Fatal("expected error for unsupported DSN")
	}
}
