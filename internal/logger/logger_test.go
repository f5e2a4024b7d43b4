package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestWriter_Defaults(t *testing.T) {
	if w := (Config{}).Writer(); w != nil {
		t.Fatalf("expected nil writer without file")
	}
	w := Config{File: "x.log"}.Writer()
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("writer is not lumberjack.Logger")
	}
	if l.MaxSize != 10 || l.MaxBackups != 3 || l.MaxAge != 7 {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", l.MaxSize, l.MaxBackups, l.MaxAge)
	}
}

func TestWriter_Overrides(t *testing.T) {
	w := Config{File: "y.log", MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true}.Writer()
	l := w.(*lj.Logger)
	if l.MaxSize != 1 || l.MaxBackups != 9 || l.MaxAge != 11 || !l.Compress {
		t.Fatalf("unexpected overrides: size=%d backups=%d age=%d compress=%t", l.MaxSize, l.MaxBackups, l.MaxAge, l.Compress)
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routeplay.log")
	lg, closer, err := New(Config{File: path, Format: "json", Level: "debug"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lg.Debug("frame", "n", 3)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), `"msg":"frame"`) || !strings.Contains(string(b), `"n":3`) {
		t.Fatalf("unexpected log content: %s", b)
	}
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	lg, _, err := NewWithWriter(Config{Level: "warn"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	lg.Info("hidden")
	lg.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level filter not applied: %q", out)
	}
}

func TestNew_BadConfig(t *testing.T) {
	if _, _, err := New(Config{Level: "nope"}); err == nil {
		t.Fatal("expected level error")
	}
	if _, _, err := New(Config{Format: "xml"}); err == nil {
		t.Fatal("expected format error")
	}
}

func TestColorTextHandler(t *testing.T) {
	var buf bytes.Buffer
	lg, _, err := NewWithWriter(Config{Color: true, Level: "debug"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	lg.With("scheduler", "main").Error("tick failed")
	out := buf.String()
	if !strings.Contains(out, "ERROR") || !strings.Contains(out, "tick failed") {
		t.Fatalf("missing level prefix: %q", out)
	}
	if !strings.Contains(out, "scheduler=main") {
		t.Fatalf("missing attr: %q", out)
	}

	buf.Reset()
	h := NewColorTextHandler(&buf, nil, false)
	slog.New(h).Info("quiet")
	if strings.Contains(buf.String(), "time=") {
		t.Fatalf("time should be dropped: %q", buf.String())
	}
}
