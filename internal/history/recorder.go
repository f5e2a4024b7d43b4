package history

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/routeplay/internal/bus"
	"github.com/loykin/routeplay/internal/metrics"
	"github.com/loykin/routeplay/internal/scheduler"
	"github.com/loykin/routeplay/internal/timeline"
)

const (
	DefaultBuffer      = 256
	DefaultSendTimeout = 5 * time.Second
)

// Observed is the part of a scheduler the recorder needs.
type Observed interface {
	On(fn bus.Listener) *bus.Subscription
	Status() scheduler.Status
}

// RecorderOptions tunes a Recorder. Zero values use the defaults above.
type RecorderOptions struct {
	Session     string
	Buffer      int
	SendTimeout time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

// Recorder turns scheduler lifecycle events into history events and hands
// them to sinks on a worker goroutine, so slow sinks never stall playback.
// When the buffer is full new events are dropped and counted.
type Recorder struct {
	sinks   []Sink
	opts    RecorderOptions
	logger  *slog.Logger
	ch      chan Event
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
	subs    []*bus.Subscription
	dropped int
}

func NewRecorder(opts RecorderOptions, sinks ...Sink) *Recorder {
	if opts.Session == "" {
		opts.Session = uuid.NewString()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Recorder{
		sinks:  append([]Sink(nil), sinks...),
		opts:   opts,
		logger: opts.Logger.With("component", "history", "session", opts.Session),
		ch:     make(chan Event, opts.Buffer),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) Session() string { return r.opts.Session }

// Attach records lifecycle events published by s until Close.
func (r *Recorder) Attach(s Observed) {
	sub := s.On(func(ev timeline.Event) {
		typ, ok := TypeOf(ev.Kind)
		if !ok {
			return
		}
		r.Record(r.build(typ, ev, s.Status()))
	})
	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.mu.Unlock()
}

func (r *Recorder) build(typ EventType, ev timeline.Event, st scheduler.Status) Event {
	rec := Record{
		Session:         r.opts.Session,
		Scheduler:       st.Name,
		State:           st.State,
		VirtualTimeMS:   timeline.Millis(ev.Timestamp),
		TotalDurationMS: st.TotalDurationMS,
		Speed:           st.Speed,
		Progress:        st.Progress,
	}
	switch ev.Kind {
	case timeline.KindSchedulerError:
		rec.Detail = ev.Payload.Message
	case timeline.KindSchedulerReady:
		rec.Detail = fmt.Sprintf("events=%d", ev.Payload.EventCount)
	case timeline.KindSeek:
		rec.Detail = fmt.Sprintf("target_ms=%g", timeline.Millis(ev.Payload.Target))
	case timeline.KindSpeedChange:
		rec.Speed = ev.Payload.Speed
	}
	return Event{ID: ev.ID, Type: typ, OccurredAt: r.opts.Now().UTC(), Record: rec}
}

// Record queues e for delivery. It never blocks.
func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- e:
	default:
		r.dropped++
		metrics.IncHistoryDropped()
	}
}

// Dropped reports events discarded because the buffer was full.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.ch {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), r.opts.SendTimeout)
			err := s.Send(ctx, e)
			cancel()
			if err != nil {
				name := sinkName(s)
				metrics.IncHistoryError(name)
				r.logger.Warn("history sink failed", "sink", name, "type", string(e.Type), "error", err)
			}
		}
	}
}

// Close detaches from schedulers, delivers what is queued and closes every
// sink that implements io.Closer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := r.subs
	r.subs = nil
	close(r.ch)
	r.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	<-r.done

	var firstErr error
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Named lets a sink report a stable label for logs and metrics.
type Named interface {
	Name() string
}

func sinkName(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}
