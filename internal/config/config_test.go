package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
[run]
stop_timeout = "5s"
settle_delay = "250ms"
trace_wait_retries = 10
trace_wait_interval = "50ms"

[ui]
max_output_lines = 500
show_timestamps = true

[log]
dir = "/var/log/runtui"
max_size_mb = 20
max_backups = 5
max_age_days = 14
compress = true

[server]
listen = "127.0.0.1:7070"

[metrics]
enabled = false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Run.StopTimeout != 5*time.Second {
		t.Fatalf("stop_timeout = %v", cfg.Run.StopTimeout)
	}
	if cfg.Run.SettleDelay != 250*time.Millisecond {
		t.Fatalf("settle_delay = %v", cfg.Run.SettleDelay)
	}
	if cfg.Run.TraceWaitRetries != 10 || cfg.Run.TraceWaitInterval != 50*time.Millisecond {
		t.Fatalf("trace wait = %d/%v", cfg.Run.TraceWaitRetries, cfg.Run.TraceWaitInterval)
	}
	if cfg.UI.MaxOutputLines != 500 || !cfg.UI.ShowTimestamps {
		t.Fatalf("ui = %+v", cfg.UI)
	}
	if cfg.Log.Dir != "/var/log/runtui" || cfg.Log.MaxSizeMB != 20 || !cfg.Log.Compress {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if cfg.Server.Listen != "127.0.0.1:7070" {
		t.Fatalf("listen = %q", cfg.Server.Listen)
	}
	if cfg.Metrics.Enabled {
		t.Fatal("metrics should be disabled")
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
[run]
stop_timeout = "9s"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Run.StopTimeout != 9*time.Second {
		t.Fatalf("stop_timeout = %v", cfg.Run.StopTimeout)
	}
	def := Default()
	if cfg.Run.SettleDelay != def.Run.SettleDelay {
		t.Fatalf("settle_delay = %v, want default %v", cfg.Run.SettleDelay, def.Run.SettleDelay)
	}
	if cfg.UI.MaxOutputLines != def.UI.MaxOutputLines {
		t.Fatalf("max_output_lines = %d, want default %d", cfg.UI.MaxOutputLines, def.UI.MaxOutputLines)
	}
	if !cfg.Metrics.Enabled {
		t.Fatal("metrics should default to enabled")
	}
}

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.Run.StopTimeout != 2*time.Second {
		t.Fatalf("stop_timeout = %v", cfg.Run.StopTimeout)
	}
	if cfg.Run.SettleDelay != 100*time.Millisecond {
		t.Fatalf("settle_delay = %v", cfg.Run.SettleDelay)
	}
	if cfg.Run.TraceWaitRetries != 30 || cfg.Run.TraceWaitInterval != 200*time.Millisecond {
		t.Fatalf("trace wait = %d/%v", cfg.Run.TraceWaitRetries, cfg.Run.TraceWaitInterval)
	}
	if cfg.UI.MaxOutputLines != 2000 {
		t.Fatalf("max_output_lines = %d", cfg.UI.MaxOutputLines)
	}
	if cfg.Server.Listen != "" {
		t.Fatalf("listen should default empty, got %q", cfg.Server.Listen)
	}
	if !cfg.Metrics.Enabled {
		t.Fatal("metrics should default to enabled")
	}
}

func TestLoadUnknownKeysIgnored(t *testing.T) {
	path := writeConfig(t, `
[run]
stop_timeout = "3s"
totally_unknown = "whatever"

[unrelated_section]
x = 1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Run.StopTimeout != 3*time.Second {
		t.Fatalf("stop_timeout = %v", cfg.Run.StopTimeout)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for a missing explicit config path")
	}
}

func TestLoadMalformedTOML(t *testing.T) {
	path := writeConfig(t, "[run\nstop_timeout = ")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed TOML")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("RUNTUI_RUN_STOP_TIMEOUT", "7s")
	path := writeConfig(t, "[run]\nsettle_delay = \"20ms\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Run.StopTimeout != 7*time.Second {
		t.Fatalf("stop_timeout = %v, want env override 7s", cfg.Run.StopTimeout)
	}
	if cfg.Run.SettleDelay != 20*time.Millisecond {
		t.Fatalf("settle_delay = %v from file", cfg.Run.SettleDelay)
	}
}

func TestLogConfigConversion(t *testing.T) {
	lc := LogConfig{Dir: "/x", MaxSizeMB: 1, MaxBackups: 2, MaxAgeDays: 3, Compress: true}
	got := lc.Logger()
	if got.Dir != "/x" || got.MaxSizeMB != 1 || got.MaxBackups != 2 || got.MaxAgeDays != 3 || !got.Compress {
		t.Fatalf("conversion mismatch: %+v", got)
	}
}
