package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for the dashboard log file.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

const logFileName = "runtui.log"

// Config describes the diagnostic log destination. Rotation parameters
// follow lumberjack semantics.
type Config struct {
	Dir        string // base directory for the log file
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // number of backups to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // gzip rotated files
}

// New builds the dashboard logger. With console true, records go to stderr
// with colored levels; that is the headless mode. Otherwise records go to
// the rotating file under cfg.Dir, because the terminal belongs to the
// renderer while the dashboard is up. With no directory configured either,
// diagnostics are dropped.
func New(cfg Config, console bool) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	if console {
		return slog.New(NewColorTextHandler(os.Stderr, opts)), nopCloser{}
	}
	if cfg.Dir == "" {
		return slog.New(slog.NewTextHandler(io.Discard, opts)), nopCloser{}
	}

	_ = os.MkdirAll(cfg.Dir, 0o750)
	fw := &lj.Logger{
		Filename:   filepath.Join(cfg.Dir, logFileName),
		MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   cfg.Compress,
	}
	return slog.New(slog.NewTextHandler(fw, opts)), fw
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
