package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToRotatingFile(t *testing.T) {
	dir := t.TempDir()
	log, closer := New(Config{Dir: dir}, false)

	log.Info("dashboard ready", "pid", 1234)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "runtui.log"))
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, "dashboard ready") || !strings.Contains(s, "pid=1234") {
		t.Fatalf("log content missing record: %q", s)
	}
}

func TestNewCreatesLogDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	log, closer := New(Config{Dir: dir}, false)
	log.Warn("first record")
	_ = closer.Close()

	if _, err := os.Stat(filepath.Join(dir, "runtui.log")); err != nil {
		t.Fatalf("expected log file in created dir: %v", err)
	}
}

func TestNewWithoutDirDiscards(t *testing.T) {
	log, closer := New(Config{}, false)
	// Must not panic or write anywhere.
	log.Info("nowhere to go")
	log.Error("still fine")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewConsoleMode(t *testing.T) {
	log, closer := New(Config{Dir: t.TempDir()}, true)
	if log == nil {
		t.Fatal("nil logger")
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestColorTextHandlerColorsLevels(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	log.Warn("careful")
	out := buf.String()
	if !strings.Contains(out, "\033[33m") || !strings.Contains(out, "WARN") {
		t.Fatalf("warn not colored: %q", out)
	}

	buf.Reset()
	log.Error("broken")
	out = buf.String()
	if !strings.Contains(out, "\033[31m") || !strings.Contains(out, "ERROR") {
		t.Fatalf("error not colored: %q", out)
	}

	buf.Reset()
	log.Debug("fine detail")
	if out = buf.String(); !strings.Contains(out, "\033[36m") {
		t.Fatalf("debug not colored: %q", out)
	}
}

func TestRotationDefaults(t *testing.T) {
	cases := []struct {
		in   int
		def  int
		want int
	}{
		{0, DefaultMaxSizeMB, DefaultMaxSizeMB},
		{-1, DefaultMaxBackups, DefaultMaxBackups},
		{25, DefaultMaxAgeDays, 25},
	}
	for _, c := range cases {
		if got := valOr(c.in, c.def); got != c.want {
			t.Fatalf("valOr(%d, %d) = %d, want %d", c.in, c.def, got, c.want)
		}
	}
}
