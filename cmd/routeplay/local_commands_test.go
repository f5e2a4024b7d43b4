package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/routeplay/internal/timeline"
)

func kindsOf(t *testing.T, out string) []string {
	t.Helper()
	var kinds []string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		require.GreaterOrEqual(t, len(fields), 2, sc.Text())
		kinds = append(kinds, fields[1])
	}
	return kinds
}

func TestSimulateText(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tour.json", tourJSON)
	var out bytes.Buffer
	err := runSimulate(context.Background(), &out, &SimulateFlags{Speed: 1, Step: 100 * time.Millisecond, MaxSteps: 1000}, path)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"scheduler-ready", "playback-play",
		"line-start", "line-start", "line-complete", "ripple", "line-complete",
		"scheduler-complete",
	}, kindsOf(t, out.String()))
	assert.Contains(t, out.String(), "events=5 total=1500.0")
}

func TestSimulateDeterministic(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tour.json", tourJSON)
	flags := &SimulateFlags{Speed: 2, Step: 16 * time.Millisecond, Progress: true, MaxSteps: 1000}
	var a, b bytes.Buffer
	require.NoError(t, runSimulate(context.Background(), &a, flags, path))
	require.NoError(t, runSimulate(context.Background(), &b, flags, path))
	assert.Equal(t, a.String(), b.String())
	assert.Contains(t, a.String(), "line-progress")
}

func TestSimulateFromAndJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tour.json", tourJSON)
	var out bytes.Buffer
	flags := &SimulateFlags{Speed: 1, From: 1100 * time.Millisecond, Step: 50 * time.Millisecond, JSON: true, MaxSteps: 1000}
	require.NoError(t, runSimulate(context.Background(), &out, flags, path))

	var kinds []timeline.Kind
	dec := json.NewDecoder(&out)
	for dec.More() {
		var ev timeline.Event
		require.NoError(t, dec.Decode(&ev))
		kinds = append(kinds, ev.Kind)
	}
	// seek replays both line-starts, skips the ripple still ahead
	assert.Equal(t, []timeline.Kind{
		timeline.KindSchedulerReady,
		timeline.KindLineStart, timeline.KindLineStart, timeline.KindSeek,
		timeline.KindPlay,
		timeline.KindRipple, timeline.KindLineComplete, timeline.KindSchedulerComplete,
	}, kinds)
}

func TestSimulateErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tour.json", tourJSON)
	var out bytes.Buffer

	err := runSimulate(context.Background(), &out, &SimulateFlags{Speed: 1, Step: 0, MaxSteps: 10}, path)
	assert.Error(t, err)

	err = runSimulate(context.Background(), &out, &SimulateFlags{Speed: 1, Step: time.Millisecond, MaxSteps: 3}, path)
	assert.ErrorContains(t, err, "did not complete")

	bad := writeFile(t, dir, "bad.json", `{"events":[{"kind":"line-complete","subject":"A","timestamp_ms":1}]}`)
	err = runSimulate(context.Background(), &out, &SimulateFlags{Speed: 1, Step: time.Millisecond, MaxSteps: 3}, bad)
	assert.ErrorIs(t, err, timeline.ErrInvalid)
}

func TestInspect(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tour.json", tourJSON)
	var out bytes.Buffer
	require.NoError(t, runInspect(&out, &InspectFlags{}, path))
	s := out.String()
	assert.Contains(t, s, "events:   5")
	assert.Contains(t, s, "duration: 1.5s")
	assert.Contains(t, s, "subjects: 2")
	assert.Regexp(t, `line-start\s+2`, s)
	assert.Regexp(t, `B\s+500ms\s+1.5s\s+1`, s)

	out.Reset()
	require.NoError(t, runInspect(&out, &InspectFlags{JSON: true}, path))
	var doc timeline.Document
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, int64(1500), doc.TotalDurationMS)
	assert.Len(t, doc.Events, 5)
}

func TestPlayQuietCompletes(t *testing.T) {
	short := `{"events": [
	  {"kind": "line-start", "subject": "A", "timestamp_ms": 0, "duration_ms": 60},
	  {"kind": "line-complete", "subject": "A", "timestamp_ms": 60}
	]}`
	path := writeFile(t, t.TempDir(), "short.json", short)
	var out bytes.Buffer
	flags := &PlayFlags{Speed: 3, FrameInterval: 5 * time.Millisecond, Quiet: true}
	require.NoError(t, runPlay(context.Background(), &out, &GlobalFlags{LogLevel: "error"}, flags, path))
	assert.Contains(t, out.String(), "completed 2 events")
}

func TestPlayWithBarsCompletes(t *testing.T) {
	short := `{"events": [
	  {"kind": "line-start", "subject": "A", "timestamp_ms": 0, "duration_ms": 60},
	  {"kind": "caption", "timestamp_ms": 30, "text": "hello"},
	  {"kind": "line-complete", "subject": "A", "timestamp_ms": 60}
	]}`
	path := writeFile(t, t.TempDir(), "short.json", short)
	var out bytes.Buffer
	flags := &PlayFlags{Speed: 3, FrameInterval: 5 * time.Millisecond}
	require.NoError(t, runPlay(context.Background(), &out, &GlobalFlags{LogLevel: "error"}, flags, path))
	assert.Contains(t, out.String(), "completed 3 events")
}

func TestPlayInterrupted(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tour.json", tourJSON)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	flags := &PlayFlags{Speed: 0.25, FrameInterval: 5 * time.Millisecond, Quiet: true}
	require.NoError(t, runPlay(ctx, &out, &GlobalFlags{LogLevel: "error"}, flags, path))
	assert.Contains(t, out.String(), "stopped")
}

func TestFormatEvent(t *testing.T) {
	ev := timeline.NewProgress("A", 250*time.Millisecond, 0.25, "")
	assert.Equal(t, "    250.0  line-progress          A 0.250", formatEvent(ev))

	capEv := timeline.Event{Kind: timeline.KindCaption, Timestamp: time.Second, Payload: timeline.Payload{Message: "hi"}}
	assert.Equal(t, `   1000.0  caption                "hi"`, formatEvent(capEv))
}
