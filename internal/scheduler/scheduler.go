// Package scheduler drives a loaded timeline through play, pause, seek and
// speed changes, publishing due events on an in-process bus.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/loykin/routeplay/internal/bus"
	"github.com/loykin/routeplay/internal/clock"
	"github.com/loykin/routeplay/internal/frame"
	"github.com/loykin/routeplay/internal/metrics"
	"github.com/loykin/routeplay/internal/timeline"
)

var (
	// ErrDisposed is returned by Load once Dispose has been called.
	ErrDisposed = errors.New("scheduler disposed")
	// ErrLoadSuperseded is returned by a Load whose result arrived after a
	// newer Load (or a Dispose) started.
	ErrLoadSuperseded = errors.New("load superseded")
)

// Options configures a Scheduler. Zero values pick real-time defaults.
type Options struct {
	Name   string
	Driver frame.Driver
	Clock  clock.Source
	Logger *slog.Logger
	Speed  float64
}

type interval struct {
	start    time.Duration
	duration time.Duration
	color    string
}

// Scheduler owns the playback state machine.
//
// All fields are guarded by mu. Events produced by an operation are queued in
// outbox while mu is held and published after it is released, by whichever
// caller is not already draining. Listeners may therefore call back into the
// scheduler; their events are appended and delivered in order once the
// current one returns. Seek and Stop discard line-progress events still
// queued from before them, so listeners never see progress for a position
// that has already been left.
//
// State Machine:
// Idle -> Loading -> Ready <-> Playing <-> Paused, Playing -> Completed,
// Loading -> Error. Seeking is entered and left inside Seek.
type Scheduler struct {
	mu     sync.Mutex
	name   string
	state  State
	tl     timeline.Timeline
	cursor int
	active map[string]interval
	order  []string // active subjects, in start order

	pb     clock.Playback
	wall   clock.Source
	driver frame.Driver
	cancel func()
	gen    uint64

	loadSeq  uint64
	disposed bool

	bus      *bus.Bus
	outbox   []timeline.Event
	draining bool
	logger   *slog.Logger
}

// New returns an idle scheduler.
func New(opts Options) *Scheduler {
	if opts.Driver == nil {
		opts.Driver = frame.NewTimer(frame.DefaultInterval)
	}
	if opts.Clock == nil {
		opts.Clock = clock.System
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.Speed == 0 {
		opts.Speed = clock.DefaultSpeed
	}
	lg := opts.Logger.With("scheduler", opts.Name)
	s := &Scheduler{
		name:   opts.Name,
		state:  StateIdle,
		active: make(map[string]interval),
		pb:     clock.NewPlayback(opts.Speed),
		wall:   opts.Clock,
		driver: opts.Driver,
		bus:    bus.New(lg),
		logger: lg,
	}
	metrics.SetCurrentState(s.name, StateIdle.String(), true)
	metrics.SetSpeed(s.name, s.pb.Speed())
	return s
}

func (s *Scheduler) Name() string { return s.name }

// On subscribes to every event.
func (s *Scheduler) On(fn bus.Listener) *bus.Subscription { return s.bus.Subscribe(fn) }

// OnKind subscribes to events of one kind.
func (s *Scheduler) OnKind(k timeline.Kind, fn bus.Listener) *bus.Subscription {
	return s.bus.SubscribeKind(k, fn)
}

// OnFailure installs a hook for recovered listener panics.
func (s *Scheduler) OnFailure(h bus.FailureHook) { s.bus.OnFailure(h) }

// Load replaces the timeline with the one produced by src.
//
// On success the scheduler is ready at time 0 and scheduler-ready has been
// queued. On failure it is in the error state, scheduler-error has been
// queued and the wrapped error is returned as well.
func (s *Scheduler) Load(ctx context.Context, src timeline.Source) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	s.stopLoopLocked()
	s.loadSeq++
	seq := s.loadSeq
	s.setStateLocked(StateLoading)
	s.mu.Unlock()

	var (
		tl  timeline.Timeline
		err error
	)
	if src == nil {
		err = fmt.Errorf("%w: no source", timeline.ErrInvalid)
	} else {
		tl, err = src.Timeline(ctx)
	}
	if err == nil && tl.TotalDuration < 0 {
		err = fmt.Errorf("%w: negative total duration %s", timeline.ErrInvalid, tl.TotalDuration)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if seq != s.loadSeq {
		s.mu.Unlock()
		return ErrLoadSuperseded
	}
	s.resetLocked()
	if err != nil {
		s.tl = timeline.Timeline{}
		s.setStateLocked(StateError)
		s.emitLocked(timeline.NewLifecycle(timeline.KindSchedulerError, 0, timeline.Payload{Message: err.Error()}))
		metrics.IncLoadFailure(s.name)
		s.mu.Unlock()
		s.logger.Error("timeline load failed", "error", err)
		s.flush()
		return fmt.Errorf("load timeline: %w", err)
	}
	s.tl = tl
	s.setStateLocked(StateReady)
	s.emitLocked(timeline.NewLifecycle(timeline.KindSchedulerReady, 0, timeline.Payload{
		EventCount:    tl.Len(),
		TotalDuration: tl.TotalDuration,
	}))
	s.mu.Unlock()
	s.logger.Info("timeline loaded", "events", tl.Len(), "total", tl.TotalDuration)
	s.flush()
	return nil
}

// Play starts or resumes playback from ready or paused.
func (s *Scheduler) Play() {
	s.mu.Lock()
	if s.state != StateReady && s.state != StatePaused {
		s.ignoreLocked("play")
		s.mu.Unlock()
		return
	}
	now := s.wall.Now()
	at := s.pb.Current(now)
	s.pb.Begin(now, at)
	s.setStateLocked(StatePlaying)
	s.emitLocked(timeline.NewLifecycle(timeline.KindPlay, at, timeline.Payload{Speed: s.pb.Speed()}))
	s.requestFrameLocked()
	s.mu.Unlock()
	s.flush()
}

// Pause freezes virtual time while playing.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	if s.state != StatePlaying {
		s.ignoreLocked("pause")
		s.mu.Unlock()
		return
	}
	at := s.pb.Freeze(s.wall.Now())
	s.stopLoopLocked()
	s.setStateLocked(StatePaused)
	s.emitLocked(timeline.NewLifecycle(timeline.KindPause, at, timeline.Payload{}))
	s.mu.Unlock()
	s.flush()
}

// Stop rewinds to time 0 in the ready state. It needs a loaded timeline.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateLoading, StateError:
		s.ignoreLocked("stop")
		s.mu.Unlock()
		return
	}
	s.stopLoopLocked()
	s.dropQueuedProgressLocked()
	s.pb.Reset()
	s.cursor = 0
	s.clearActiveLocked()
	s.setStateLocked(StateReady)
	s.emitLocked(timeline.NewLifecycle(timeline.KindStop, 0, timeline.Payload{}))
	metrics.SetProgress(s.name, 0)
	s.mu.Unlock()
	s.flush()
}

// Seek moves virtual time to target, clamped to the timeline.
//
// Every line-start and trigger at or before the target is published again so
// listeners can rebuild what is visible, followed by one line-progress per
// subject still active and a playback-seek event. Seeking from ready stays
// ready; from playing, paused or completed it ends paused.
func (s *Scheduler) Seek(target time.Duration) {
	s.mu.Lock()
	defer s.flush()
	defer s.mu.Unlock()

	prev := s.state
	switch prev {
	case StateReady, StatePlaying, StatePaused, StateCompleted:
	default:
		s.ignoreLocked("seek")
		return
	}
	if prev == StatePlaying {
		s.pb.Freeze(s.wall.Now())
		s.stopLoopLocked()
	}
	s.dropQueuedProgressLocked()
	s.setStateLocked(StateSeeking)

	total := s.tl.TotalDuration
	if target < 0 {
		target = 0
	}
	if target > total {
		target = total
	}
	s.pb.Seek(target)

	evs := s.tl.Events
	s.cursor = sort.Search(len(evs), func(i int) bool { return evs[i].Timestamp > target })
	s.clearActiveLocked()
	replayed := 0
	for _, ev := range evs[:s.cursor] {
		switch {
		case ev.Kind == timeline.KindLineStart:
			s.applyLocked(ev)
			s.emitLocked(ev)
			replayed++
		case ev.Kind == timeline.KindLineComplete:
			s.applyLocked(ev)
		case ev.Kind.IsTrigger():
			s.emitLocked(ev)
			replayed++
		}
	}
	s.emitProgressLocked(target)

	if prev == StateReady {
		s.setStateLocked(StateReady)
	} else {
		s.setStateLocked(StatePaused)
	}
	s.emitLocked(timeline.NewLifecycle(timeline.KindSeek, target, timeline.Payload{Target: target}))
	metrics.IncSeek(s.name)
	metrics.SetProgress(s.name, s.progressLocked(target))
	s.logger.Debug("seek", "target", target, "replayed", replayed, "active", len(s.order))
}

// SetSpeed clamps and applies a speed multiplier and returns the applied
// value. While playing the clock is rebased so virtual time stays continuous.
func (s *Scheduler) SetSpeed(x float64) float64 {
	s.mu.Lock()
	now := s.wall.Now()
	applied := s.pb.SetSpeed(now, x)
	at := s.currentLocked(now)
	s.emitLocked(timeline.NewLifecycle(timeline.KindSpeedChange, at, timeline.Payload{Speed: applied}))
	metrics.SetSpeed(s.name, applied)
	s.mu.Unlock()
	s.flush()
	return applied
}

// Dispose stops playback, closes every subscription and returns to idle.
// It is safe to call repeatedly.
func (s *Scheduler) Dispose() {
	s.mu.Lock()
	s.stopLoopLocked()
	first := !s.disposed
	s.disposed = true
	s.loadSeq++
	s.tl = timeline.Timeline{}
	s.resetLocked()
	s.outbox = nil
	if s.state != StateIdle {
		s.setStateLocked(StateIdle)
	}
	s.mu.Unlock()
	if first {
		s.bus.DisposeAll()
		s.logger.Debug("scheduler disposed")
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentTime returns virtual time, never beyond the total duration.
func (s *Scheduler) CurrentTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(s.wall.Now())
}

func (s *Scheduler) TotalDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tl.TotalDuration
}

// Progress is CurrentTime / TotalDuration, or 0 for an empty timeline.
func (s *Scheduler) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked(s.currentLocked(s.wall.Now()))
}

func (s *Scheduler) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pb.Speed()
}

// ActiveSubjects lists subjects with an open interval, in start order.
func (s *Scheduler) ActiveSubjects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.currentLocked(s.wall.Now())
	return Status{
		Name:            s.name,
		State:           s.state.String(),
		CurrentTimeMS:   timeline.Millis(now),
		TotalDurationMS: timeline.Millis(s.tl.TotalDuration),
		Progress:        s.progressLocked(now),
		Speed:           s.pb.Speed(),
		EventCount:      s.tl.Len(),
		Cursor:          s.cursor,
		Active:          append([]string{}, s.order...),
	}
}

// tick runs once per requested frame while playing. Frames from an older
// generation are ignored.
func (s *Scheduler) tick(gen uint64) {
	s.mu.Lock()
	if s.disposed || gen != s.gen || s.state != StatePlaying {
		s.mu.Unlock()
		return
	}
	s.cancel = nil

	vt := s.pb.Current(s.wall.Now())
	evs := s.tl.Events
	dispatched := 0
	for s.cursor < len(evs) && evs[s.cursor].Timestamp <= vt {
		ev := evs[s.cursor]
		s.cursor++
		s.applyLocked(ev)
		s.emitLocked(ev)
		dispatched++
	}

	total := s.tl.TotalDuration
	if vt > total {
		vt = total
	}
	s.emitProgressLocked(vt)
	metrics.ObserveTick(s.name, dispatched)
	metrics.SetProgress(s.name, s.progressLocked(vt))

	if vt >= total {
		s.pb.Seek(total)
		s.clearActiveLocked()
		s.setStateLocked(StateCompleted)
		s.emitLocked(timeline.NewLifecycle(timeline.KindSchedulerComplete, total, timeline.Payload{
			EventCount:    s.tl.Len(),
			TotalDuration: total,
		}))
	} else {
		s.requestFrameLocked()
	}
	s.mu.Unlock()
	s.flush()
}

// applyLocked updates the active set for a dispatched line event.
func (s *Scheduler) applyLocked(ev timeline.Event) {
	switch ev.Kind {
	case timeline.KindLineStart:
		if _, ok := s.active[ev.SubjectID]; !ok {
			s.order = append(s.order, ev.SubjectID)
		}
		s.active[ev.SubjectID] = interval{start: ev.Timestamp, duration: ev.Duration, color: ev.Payload.Color}
	case timeline.KindLineComplete:
		if _, ok := s.active[ev.SubjectID]; !ok {
			return
		}
		delete(s.active, ev.SubjectID)
		for i, id := range s.order {
			if id == ev.SubjectID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}

func (s *Scheduler) emitProgressLocked(vt time.Duration) {
	for _, id := range s.order {
		iv := s.active[id]
		s.emitLocked(timeline.NewProgress(id, vt, progressOf(iv, vt), iv.color))
	}
	metrics.AddProgressEvents(s.name, len(s.order))
}

func progressOf(iv interval, vt time.Duration) float64 {
	if iv.duration <= 0 {
		return 1
	}
	p := float64(vt-iv.start) / float64(iv.duration)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

func (s *Scheduler) currentLocked(now time.Time) time.Duration {
	vt := s.pb.Current(now)
	if vt > s.tl.TotalDuration {
		vt = s.tl.TotalDuration
	}
	return vt
}

func (s *Scheduler) progressLocked(vt time.Duration) float64 {
	if s.tl.TotalDuration <= 0 {
		return 0
	}
	return float64(vt) / float64(s.tl.TotalDuration)
}

func (s *Scheduler) clearActiveLocked() {
	clear(s.active)
	s.order = s.order[:0]
}

func (s *Scheduler) resetLocked() {
	s.cursor = 0
	s.clearActiveLocked()
	s.pb.Reset()
}

func (s *Scheduler) requestFrameLocked() {
	s.gen++
	gen := s.gen
	s.cancel = s.driver.Request(func() { s.tick(gen) })
}

func (s *Scheduler) stopLoopLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// setStateLocked records the transition in metrics.
func (s *Scheduler) setStateLocked(next State) {
	prev := s.state
	s.state = next
	if prev == next {
		return
	}
	metrics.RecordStateTransition(s.name, prev.String(), next.String())
	metrics.SetCurrentState(s.name, prev.String(), false)
	metrics.SetCurrentState(s.name, next.String(), true)
}

func (s *Scheduler) ignoreLocked(op string) {
	s.logger.Warn("operation ignored", "op", op, "state", s.state.String())
}

func (s *Scheduler) emitLocked(ev timeline.Event) {
	if s.disposed {
		return
	}
	if ev.Kind.IsDiscrete() && !ev.Kind.IsLifecycle() {
		metrics.IncDispatched(s.name, ev.Kind.String())
	}
	s.outbox = append(s.outbox, ev)
}

// dropQueuedProgressLocked removes undelivered line-progress events. Only
// non-empty when called from a listener while a flush is draining.
func (s *Scheduler) dropQueuedProgressLocked() {
	kept := s.outbox[:0]
	for _, ev := range s.outbox {
		if ev.Kind != timeline.KindLineProgress {
			kept = append(kept, ev)
		}
	}
	clear(s.outbox[len(kept):])
	s.outbox = kept
}

// flush publishes queued events unless another caller is already doing so.
func (s *Scheduler) flush() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.outbox) > 0 {
		ev := s.outbox[0]
		s.outbox = s.outbox[1:]
		s.mu.Unlock()
		s.bus.Publish(ev)
		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}
