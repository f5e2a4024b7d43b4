package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/loykin/routeplay/internal/timeline"
)

// per-subject bars count in permille of the line
const lineScale = 1000

// barRenderer draws one bar for the whole timeline and one per subject line.
type barRenderer struct {
	mu      sync.Mutex
	p       *mpb.Progress
	style   mpb.BarStyleComposer
	total   *mpb.Bar
	totalMS int64
	lines   map[string]*mpb.Bar
	// read by the render goroutine, so kept outside mu
	caption atomic.Value
}

func newBarRenderer(out io.Writer, tl timeline.Timeline) *barRenderer {
	r := &barRenderer{
		p:       mpb.New(mpb.WithOutput(out), mpb.WithWidth(64), mpb.WithRefreshRate(100*time.Millisecond)),
		style:   mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟"),
		totalMS: max(tl.TotalDuration.Milliseconds(), 1),
		lines:   make(map[string]*mpb.Bar),
	}
	name := "timeline"
	r.total = r.p.New(r.totalMS,
		r.style,
		mpb.BarPriority(-1),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.OnComplete(decor.Percentage(decor.WC{W: 5}), "done"),
		),
		mpb.AppendDecorators(
			decor.Any(func(decor.Statistics) string {
				s, _ := r.caption.Load().(string)
				return s
			}),
		),
	)
	return r
}

// startLine returns the bar for subject, replacing it only when the previous
// one has already finished. Scheduler seeks replay line-start, so this is the
// single place bars are created.
func (r *barRenderer) startLine(subject string) *mpb.Bar {
	if b, ok := r.lines[subject]; ok && !b.Completed() && !b.Aborted() {
		b.SetCurrent(0)
		return b
	}
	b := r.p.New(lineScale,
		r.style,
		mpb.PrependDecorators(
			decor.Name(subject, decor.WC{W: 9, C: decor.DindentRight}),
			decor.OnComplete(decor.Percentage(decor.WC{W: 5}), "done"),
		),
	)
	r.lines[subject] = b
	return b
}

// setLine moves an existing, unfinished bar. Progress never creates bars.
func (r *barRenderer) setLine(subject string, n int64) {
	if b, ok := r.lines[subject]; ok && !b.Completed() && !b.Aborted() {
		b.SetCurrent(n)
	}
}

// handle is a scheduler listener.
func (r *barRenderer) handle(ev timeline.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch ev.Kind {
	case timeline.KindLineStart:
		r.startLine(ev.SubjectID)
	case timeline.KindLineProgress:
		r.setLine(ev.SubjectID, int64(ev.Payload.Progress*lineScale))
		r.setTotal(ev.Timestamp)
	case timeline.KindLineComplete:
		r.setLine(ev.SubjectID, lineScale)
		r.setTotal(ev.Timestamp)
	case timeline.KindRipple:
		r.caption.Store(fmt.Sprintf("ripple %s", ev.SubjectID))
		r.setTotal(ev.Timestamp)
	case timeline.KindCaption:
		r.caption.Store(ev.Payload.Message)
		r.setTotal(ev.Timestamp)
	case timeline.KindSeek:
		r.setTotal(ev.Payload.Target)
	case timeline.KindSchedulerComplete:
		r.total.SetCurrent(r.totalMS)
	}
}

func (r *barRenderer) setTotal(vt time.Duration) {
	if ms := vt.Milliseconds(); ms < r.totalMS {
		r.total.SetCurrent(ms)
	}
}

// finish completes or aborts every bar and waits for the final render.
func (r *barRenderer) finish(completed bool) {
	r.mu.Lock()
	bars := append([]*mpb.Bar{r.total}, mapValues(r.lines)...)
	r.mu.Unlock()
	for _, b := range bars {
		if completed {
			b.SetTotal(-1, true)
		} else {
			b.Abort(false)
		}
	}
	r.p.Wait()
}

func mapValues(m map[string]*mpb.Bar) []*mpb.Bar {
	out := make([]*mpb.Bar, 0, len(m))
	for _, b := range m {
		out = append(out, b)
	}
	return out
}
