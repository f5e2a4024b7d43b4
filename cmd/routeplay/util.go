package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/loykin/routeplay"
	"github.com/loykin/routeplay/internal/logger"
	"github.com/loykin/routeplay/internal/timeline"
)

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}

// cliLogger logs to stderr so command output on stdout stays parseable.
func cliLogger(level string) *slog.Logger {
	l, _, err := logger.NewWithWriter(logger.Config{Level: level, Format: "text"}, os.Stderr)
	if err != nil {
		l, _, _ = logger.NewWithWriter(logger.Config{Level: "warn", Format: "text"}, os.Stderr)
	}
	return l
}

// formatEvent renders one event as a fixed-width text line.
func formatEvent(ev timeline.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%9.1f  %-22s", timeline.Millis(ev.Timestamp), ev.Kind)
	if ev.SubjectID != "" {
		fmt.Fprintf(&b, " %s", ev.SubjectID)
	}
	switch ev.Kind {
	case timeline.KindLineProgress:
		fmt.Fprintf(&b, " %.3f", ev.Payload.Progress)
	case timeline.KindSeek:
		fmt.Fprintf(&b, " target=%.1f", timeline.Millis(ev.Payload.Target))
	case timeline.KindSpeedChange, timeline.KindPlay:
		fmt.Fprintf(&b, " speed=%g", ev.Payload.Speed)
	case timeline.KindSchedulerReady:
		fmt.Fprintf(&b, " events=%d total=%.1f", ev.Payload.EventCount, timeline.Millis(ev.Payload.TotalDuration))
	}
	if ev.Payload.Message != "" {
		fmt.Fprintf(&b, " %q", ev.Payload.Message)
	}
	return strings.TrimRight(b.String(), " ")
}

// redactDSN hides the password of URL style DSNs for logs and errors.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}

func tokenSecret(globalFlags *GlobalFlags, flags *TokenFlags) (string, error) {
	if flags.Secret != "" {
		return flags.Secret, nil
	}
	if globalFlags.ConfigPath == "" {
		return "", fmt.Errorf("--secret or --config is required")
	}
	cfg, err := routeplay.LoadConfig(globalFlags.ConfigPath)
	if err != nil {
		return "", err
	}
	if cfg.Server == nil || cfg.Server.JWTSecret == "" {
		return "", fmt.Errorf("config %s has no server.jwt_secret", globalFlags.ConfigPath)
	}
	return cfg.Server.JWTSecret, nil
}
