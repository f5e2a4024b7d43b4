package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/routeplay"
	"github.com/loykin/routeplay/internal/config"
	"github.com/loykin/routeplay/internal/frame"
	"github.com/loykin/routeplay/internal/history"
	"github.com/loykin/routeplay/internal/logger"
	"github.com/loykin/routeplay/internal/metrics"
	"github.com/loykin/routeplay/internal/server"
	"github.com/loykin/routeplay/internal/timeline"
	rtls "github.com/loykin/routeplay/internal/tls"
)

const shutdownTimeout = 5 * time.Second

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the routeplay daemon",
		Long: `Start the routeplay daemon: one scheduler controlled over HTTP.
All configuration is loaded from a config.toml file.

Examples:
  routeplay serve config.toml
  routeplay serve --config=config.toml --daemonize
  routeplay serve config.toml --tls-dev`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, serveFlags, args)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon output to file")
	cmd.Flags().BoolVar(&serveFlags.TLSDev, "tls-dev", false, "serve HTTPS with a self-signed certificate next to the config")
	return cmd
}

func runServe(ctx context.Context, flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=config.toml or provide as argument")
	}

	cfg, err := routeplay.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if cfg.Server == nil {
		return fmt.Errorf("server must be configured to run serve command")
	}
	if err := cfg.ApplyEnvFiles(); err != nil {
		return fmt.Errorf("apply env files: %w", err)
	}

	pidfile := flags.PidFile
	if pidfile == "" {
		pidfile = cfg.Server.PIDFile
	}
	if flags.Daemonize {
		logfile := flags.LogFile
		if logfile == "" {
			logfile = cfg.Server.LogFile
		}
		return daemonize(pidfile, logfile)
	}
	if pidfile != "" {
		if err := writePidFile(pidfile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(pidfile) }()
	}

	log, logCloser, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(log)

	if flags.TLSDev {
		tc, err := rtls.DevConfig(filepath.Dir(configPath))
		if err != nil {
			return fmt.Errorf("tls dev setup: %w", err)
		}
		cfg.Server.TLS = tc
	}

	metricsSrv := startMetrics(cfg.Metrics, log)
	defer stopMetrics(metricsSrv)

	recorder, lister, err := openHistory(cfg.History, log)
	if err != nil {
		return err
	}

	s := routeplay.New(routeplay.Options{
		Name:   cfg.Playback.Name,
		Driver: frame.NewTimer(cfg.Playback.FrameInterval),
		Speed:  cfg.Playback.Speed,
		Logger: log,
	})
	if recorder != nil {
		recorder.Attach(s)
	}
	if cfg.Playback.Loop {
		s.OnKind(timeline.KindSchedulerComplete, func(timeline.Event) {
			s.Stop()
			s.Play()
		})
	}

	opts := []server.Option{server.WithLogger(log)}
	if lister != nil {
		opts = append(opts, server.WithHistory(lister))
	}
	srv, err := server.NewServer(*cfg.Server, s, opts...)
	if err != nil {
		s.Dispose()
		closeHistory(recorder, log)
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	if cfg.Playback.Timeline != "" {
		if err := s.Load(ctx, timeline.File{Path: cfg.Playback.Timeline}); err != nil {
			log.Error("initial timeline failed to load", "path", cfg.Playback.Timeline, "error", err)
		} else if cfg.Playback.Autoplay {
			s.Play()
		}
	}
	if flags.onReady != nil {
		flags.onReady(srv)
	}

	<-ctx.Done()
	log.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Warn("http shutdown", "error", err)
	}
	_ = srv.Close()
	s.Dispose()
	closeHistory(recorder, log)
	return nil
}

func startMetrics(mc config.MetricsConfig, log *slog.Logger) *http.Server {
	if !mc.Enabled {
		return nil
	}
	if err := routeplay.RegisterMetricsDefault(); err != nil {
		log.Warn("failed to register metrics", "error", err)
		return nil
	}
	if mc.Listen == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: mc.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()
	log.Info("metrics listening", "addr", mc.Listen)
	return srv
}

func stopMetrics(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// openHistory builds one sink per configured DSN. The first sink that can
// read back its events backs the /history endpoint.
func openHistory(cfgs []config.HistoryConfig, log *slog.Logger) (*history.Recorder, history.Lister, error) {
	if len(cfgs) == 0 {
		return nil, nil, nil
	}
	var (
		sinks  []history.Sink
		lister history.Lister
		buffer int
	)
	for _, hc := range cfgs {
		sink, err := routeplay.NewSinkFromDSN(hc.DSN)
		if err != nil {
			for _, s := range sinks {
				if c, ok := s.(io.Closer); ok {
					_ = c.Close()
				}
			}
			return nil, nil, fmt.Errorf("history sink %q: %w", redactDSN(hc.DSN), err)
		}
		sinks = append(sinks, sink)
		if l, ok := sink.(history.Lister); ok && lister == nil {
			lister = l
		}
		buffer = max(buffer, hc.Buffer)
	}
	rec := routeplay.NewRecorder(routeplay.RecorderOptions{Buffer: buffer, Logger: log}, sinks...)
	log.Info("history enabled", "sinks", len(sinks), "session", rec.Session())
	return rec, lister, nil
}

func closeHistory(rec *history.Recorder, log *slog.Logger) {
	if rec == nil {
		return
	}
	if err := rec.Close(); err != nil {
		log.Warn("closing history", "error", err)
	}
	if n := rec.Dropped(); n > 0 {
		log.Warn("history events dropped", "count", n)
	}
}
