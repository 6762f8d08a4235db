// Package config loads the dashboard's TOML configuration. Every key has a
// default, so a missing file is not an error and a partial file fills in
// only what it names. Environment variables with the RUNTUI_ prefix
// override file values (RUNTUI_RUN_STOP_TIMEOUT overrides run.stop_timeout).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/LayerDynamics/runtui/internal/logger"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Run     RunConfig     `toml:"run" mapstructure:"run"`
	UI      UIConfig      `toml:"ui" mapstructure:"ui"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
}

// RunConfig tunes the script lifecycle. Durations parse from strings.
type RunConfig struct {
	StopTimeout       time.Duration `toml:"stop_timeout" mapstructure:"stop_timeout"`
	SettleDelay       time.Duration `toml:"settle_delay" mapstructure:"settle_delay"`
	TraceWaitRetries  int           `toml:"trace_wait_retries" mapstructure:"trace_wait_retries"`
	TraceWaitInterval time.Duration `toml:"trace_wait_interval" mapstructure:"trace_wait_interval"`
}

type UIConfig struct {
	MaxOutputLines int  `toml:"max_output_lines" mapstructure:"max_output_lines"`
	ShowTimestamps bool `toml:"show_timestamps" mapstructure:"show_timestamps"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// Logger converts to the logger package's config.
func (lc LogConfig) Logger() logger.Config {
	return logger.Config{
		Dir:        lc.Dir,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAgeDays: lc.MaxAgeDays,
		Compress:   lc.Compress,
	}
}

type ServerConfig struct {
	// Listen is the status API address ("127.0.0.1:7070"). Empty disables
	// the server.
	Listen string `toml:"listen" mapstructure:"listen"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
}

// Load reads configuration from path. An empty path falls back to
// $XDG_CONFIG_HOME/runtui/config.toml then ~/.runtui.toml; when none
// exists the defaults apply. Unknown keys are ignored.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)
	v.SetEnvPrefix("RUNTUI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = firstExisting(defaultPaths())
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg FileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *FileConfig {
	v := viper.New()
	setDefaults(v)
	var cfg FileConfig
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run.stop_timeout", "2s")
	v.SetDefault("run.settle_delay", "100ms")
	v.SetDefault("run.trace_wait_retries", 30)
	v.SetDefault("run.trace_wait_interval", "200ms")
	v.SetDefault("ui.max_output_lines", 2000)
	v.SetDefault("ui.show_timestamps", false)
	v.SetDefault("log.dir", defaultLogDir())
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("server.listen", "")
	v.SetDefault("metrics.enabled", true)
}

func defaultPaths() []string {
	var out []string
	if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
		out = append(out, filepath.Join(x, "runtui", "config.toml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		out = append(out, filepath.Join(home, ".config", "runtui", "config.toml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		out = append(out, filepath.Join(home, ".runtui.toml"))
	}
	return out
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

func defaultLogDir() string {
	if x := os.Getenv("XDG_STATE_HOME"); x != "" {
		return filepath.Join(x, "runtui")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "runtui")
	}
	return ""
}
