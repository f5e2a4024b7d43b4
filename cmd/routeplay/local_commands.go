package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/routeplay"
	"github.com/loykin/routeplay/internal/clock"
	"github.com/loykin/routeplay/internal/frame"
	"github.com/loykin/routeplay/internal/timeline"
)

func createPlayCommand(globalFlags *GlobalFlags, flags *PlayFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play FILE",
		Short: "Play a timeline locally with progress bars",
		Long: `Play a timeline file in real time, drawing one progress bar per subject.
Ctrl-C stops playback.

Examples:
  routeplay play tour.json
  routeplay play tour.toml --speed=2 --from=3s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPlay(ctx, cmd.OutOrStdout(), globalFlags, flags, args[0])
		},
	}
	cmd.Flags().Float64Var(&flags.Speed, "speed", clock.DefaultSpeed, "playback speed (0.25 to 3)")
	cmd.Flags().DurationVar(&flags.From, "from", 0, "start position")
	cmd.Flags().DurationVar(&flags.FrameInterval, "frame-interval", frame.DefaultInterval, "frame period")
	cmd.Flags().BoolVar(&flags.Quiet, "quiet", false, "no progress bars, only the final summary")
	return cmd
}

func runPlay(ctx context.Context, out io.Writer, globalFlags *GlobalFlags, flags *PlayFlags, path string) error {
	tl, err := routeplay.LoadTimelineFile(path)
	if err != nil {
		return err
	}
	if flags.FrameInterval <= 0 {
		return fmt.Errorf("frame-interval must be positive")
	}
	s := routeplay.New(routeplay.Options{
		Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Driver: frame.NewTimer(flags.FrameInterval),
		Speed:  flags.Speed,
		Logger: cliLogger(globalFlags.LogLevel),
	})
	defer s.Dispose()

	done := make(chan struct{})
	var once sync.Once
	s.OnKind(timeline.KindSchedulerComplete, func(timeline.Event) { once.Do(func() { close(done) }) })

	var bars *barRenderer
	if !flags.Quiet {
		bars = newBarRenderer(out, tl)
		s.On(bars.handle)
	}

	if err := s.Load(ctx, routeplay.NewStatic(tl)); err != nil {
		if bars != nil {
			bars.finish(false)
		}
		return err
	}
	if flags.From > 0 {
		s.Seek(flags.From)
	}
	started := time.Now()
	s.Play()

	completed := false
	select {
	case <-done:
		completed = true
	case <-ctx.Done():
		s.Stop()
	}
	if bars != nil {
		bars.finish(completed)
	}
	if completed {
		_, _ = fmt.Fprintf(out, "completed %d events in %s\n", tl.Len(), time.Since(started).Round(time.Millisecond))
	} else {
		_, _ = fmt.Fprintln(out, "stopped")
	}
	return nil
}

func createSimulateCommand(flags *SimulateFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate FILE",
		Short: "Run a timeline on a virtual clock and print every event",
		Long: `Simulate playback deterministically: wall time advances by --step per frame,
so the output is identical on every run and can be compared against golden files.

Examples:
  routeplay simulate tour.json
  routeplay simulate tour.json --step=100ms --speed=2 --progress
  routeplay simulate tour.json --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), cmd.OutOrStdout(), flags, args[0])
		},
	}
	cmd.Flags().Float64Var(&flags.Speed, "speed", clock.DefaultSpeed, "playback speed (0.25 to 3)")
	cmd.Flags().DurationVar(&flags.From, "from", 0, "seek before playing")
	cmd.Flags().DurationVar(&flags.Step, "step", frame.DefaultInterval, "wall time per frame")
	cmd.Flags().BoolVar(&flags.Progress, "progress", false, "include line-progress events")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print events as JSON lines")
	cmd.Flags().IntVar(&flags.MaxSteps, "max-steps", 1_000_000, "abort after this many frames")
	return cmd
}

func runSimulate(ctx context.Context, out io.Writer, flags *SimulateFlags, path string) error {
	if flags.Step <= 0 {
		return fmt.Errorf("step must be positive")
	}
	tl, err := routeplay.LoadTimelineFile(path)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	clk := clock.NewFake(time.Unix(0, 0))
	drv := frame.NewManual()
	s := routeplay.New(routeplay.Options{
		Name:   "simulate",
		Driver: drv,
		Clock:  clk,
		Speed:  flags.Speed,
		Logger: cliLogger("error"),
	})
	defer s.Dispose()

	var writeErr error
	enc := json.NewEncoder(out)
	s.On(func(ev timeline.Event) {
		if writeErr != nil || (ev.Kind == timeline.KindLineProgress && !flags.Progress) {
			return
		}
		if flags.JSON {
			writeErr = enc.Encode(ev)
			return
		}
		_, writeErr = fmt.Fprintln(out, formatEvent(ev))
	})

	if err := s.Load(ctx, routeplay.NewStatic(tl)); err != nil {
		return err
	}
	if flags.From > 0 {
		s.Seek(flags.From)
	}
	s.Play()
	drv.Step()
	for steps := 0; s.State() == routeplay.StatePlaying; steps++ {
		if steps >= flags.MaxSteps {
			return fmt.Errorf("playback did not complete within %d steps", flags.MaxSteps)
		}
		clk.Advance(flags.Step)
		drv.Step()
	}
	return writeErr
}

func createInspectCommand(flags *InspectFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Validate a timeline and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.OutOrStdout(), flags, args[0])
		},
	}
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print the normalized timeline document")
	return cmd
}

type subjectSpan struct {
	start, end time.Duration
	triggers   int
}

func runInspect(out io.Writer, flags *InspectFlags, path string) error {
	tl, err := routeplay.LoadTimelineFile(path)
	if err != nil {
		return err
	}
	if flags.JSON {
		printJSON(out, timeline.DocumentOf(tl))
		return nil
	}

	kinds := make(map[timeline.Kind]int)
	spans := make(map[string]*subjectSpan)
	for _, ev := range tl.Events {
		kinds[ev.Kind]++
		if ev.SubjectID == "" {
			continue
		}
		sp, ok := spans[ev.SubjectID]
		if !ok {
			sp = &subjectSpan{start: -1}
			spans[ev.SubjectID] = sp
		}
		switch {
		case ev.Kind == timeline.KindLineStart:
			sp.start = ev.Timestamp
			sp.end = max(sp.end, ev.End())
		case ev.Kind == timeline.KindLineComplete:
			sp.end = max(sp.end, ev.Timestamp)
		case ev.Kind.IsTrigger():
			sp.triggers++
		}
	}

	_, _ = fmt.Fprintf(out, "file:     %s\nevents:   %d\nduration: %s\nsubjects: %d\n\n",
		path, tl.Len(), tl.TotalDuration, len(spans))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KIND\tCOUNT")
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, string(k))
	}
	sort.Strings(names)
	for _, k := range names {
		_, _ = fmt.Fprintf(tw, "%s\t%d\n", k, kinds[timeline.Kind(k)])
	}
	_, _ = fmt.Fprintln(tw)
	_, _ = fmt.Fprintln(tw, "SUBJECT\tSTART\tEND\tTRIGGERS")
	for _, subject := range tl.Subjects() {
		sp := spans[subject]
		start := "-"
		if sp.start >= 0 {
			start = sp.start.String()
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", subject, start, sp.end, sp.triggers)
	}
	return tw.Flush()
}
