package runtui

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LayerDynamics/runtui/internal/bridge"
	cfg "github.com/LayerDynamics/runtui/internal/config"
	"github.com/LayerDynamics/runtui/internal/event"
	"github.com/LayerDynamics/runtui/internal/executor"
	"github.com/LayerDynamics/runtui/internal/metrics"
	iapi "github.com/LayerDynamics/runtui/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Store = event.Store

type Event = event.Event

type Call = event.Call

type Return = event.Return

type Exception = event.Exception

type OutputLine = event.OutputLine

type Stream = event.Stream

type Kind = event.Kind

type Counts = event.Counts

const (
	StreamStdout = event.StreamStdout
	StreamStderr = event.StreamStderr
	StreamSystem = event.StreamSystem
)

const (
	KindOutput    = event.KindOutput
	KindCall      = event.KindCall
	KindReturn    = event.KindReturn
	KindException = event.KindException
)

type Executor = executor.Executor

type Options = executor.Options

type MissingScriptError = executor.MissingScriptError

// TraceWaitOptions tunes how long the trace bridge waits for the
// side-channel file to appear.
type TraceWaitOptions = bridge.Options

type Config = cfg.FileConfig

func NewStore() *Store { return event.NewStore() }

// NewExecutor prepares script for execution. Zero-value options select
// defaults; a nil Store in opts gets a fresh one.
func NewExecutor(script string, args []string, opts Options) *Executor {
	return executor.New(script, args, opts)
}

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewHTTPServer starts the read-only status API for the given executor and
// store on addr.
func NewHTTPServer(addr, basePath string, ex *Executor, st *Store, withMetrics bool) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, ex, st, withMetrics)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// MetricsHandler serves the default registry, matching what ServeMetrics
// mounts.
func MetricsHandler() http.Handler { return metrics.Handler() }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
