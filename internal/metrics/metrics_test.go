package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	RecordStateTransition("a", "ready", "playing")
	SetCurrentState("a", "playing", true)
	IncDispatched("a", "line-start")
	AddProgressEvents("a", 3)
	ObserveTick("a", 2)
	IncSeek("a")
	IncLoadFailure("a")
	SetSpeed("a", 2)
	SetProgress("a", 0.5)
	IncListenerFailure("line-start")
	IncHistoryError("sqlite")
	IncHistoryDropped()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"routeplay_scheduler_state_transitions_total": false,
		"routeplay_scheduler_current_state":           false,
		"routeplay_scheduler_events_dispatched_total": false,
		"routeplay_scheduler_progress_events_total":   false,
		"routeplay_scheduler_ticks_total":             false,
		"routeplay_scheduler_tick_dispatch_size":      false,
		"routeplay_scheduler_seeks_total":             false,
		"routeplay_scheduler_load_failures_total":     false,
		"routeplay_scheduler_speed":                   false,
		"routeplay_scheduler_progress_ratio":          false,
		"routeplay_bus_listener_failures_total":       false,
		"routeplay_history_sink_errors_total":         false,
		"routeplay_history_dropped_total":             false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	IncSeek("x")

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	s := string(b)
	if !strings.Contains(s, "routeplay_scheduler_seeks_total") {
		t.Fatalf("metrics output missing seeks_total: %s", s[:min(200, len(s))])
	}
}

func TestConcurrentIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	regOK.Store(false)
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncDispatched("c", "ripple")
			ObserveTick("c", 1)
			SetProgress("c", 0.1)
		}()
	}
	wg.Wait()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	// These should be no-ops and not panic when called before Register
	RecordStateTransition("test", "idle", "loading")
	SetCurrentState("test", "loading", true)
	IncDispatched("test", "ripple")
	AddProgressEvents("test", 1)
	ObserveTick("test", 0)
	IncLoadFailure("test")
	IncHistoryDropped()
}

func TestRegisterError(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(&errorRegisterer{})
	if err == nil {
		t.Fatal("Register should return error from failing registerer")
	}
	if err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
	if regOK.Load() {
		t.Fatal("failed registration must not enable helpers")
	}
}

type errorRegisterer struct{}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	return errors.New("test registration error")
}

func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}

func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
