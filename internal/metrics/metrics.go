package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	runsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runtui",
			Subsystem: "run",
			Name:      "runs_total",
			Help:      "Number of script runs started.",
		},
	)
	scriptRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "runtui",
			Subsystem: "run",
			Name:      "script_running",
			Help:      "Whether a script subprocess is currently running (1 or 0).",
		},
	)
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "runtui",
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of completed script runs.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runtui",
			Subsystem: "events",
			Name:      "total",
			Help:      "Events recorded in the store by kind.",
		}, []string{"kind"},
	)
	outputLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runtui",
			Subsystem: "events",
			Name:      "output_lines_total",
			Help:      "Output lines recorded per stream.",
		}, []string{"stream"},
	)
	activeCalls = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "runtui",
			Subsystem: "events",
			Name:      "active_calls",
			Help:      "Calls entered but not yet returned.",
		},
	)

	traceSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runtui",
			Subsystem: "bridge",
			Name:      "skipped_lines_total",
			Help:      "Malformed side-channel lines skipped by the trace reader.",
		},
	)
	errorsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runtui",
			Subsystem: "errq",
			Name:      "dropped_total",
			Help:      "Error reports dropped because the error queue was full.",
		},
	)

	childCPU = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "runtui",
			Subsystem: "child",
			Name:      "cpu_percent",
			Help:      "CPU usage of the traced child process.",
		},
	)
	childMemory = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "runtui",
			Subsystem: "child",
			Name:      "memory_mb",
			Help:      "Resident memory of the traced child process in MiB.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{runsTotal, scriptRunning, runDuration, eventsTotal, outputLines, activeCalls, traceSkipped, errorsDropped, childCPU, childMemory}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncRun() {
	if regOK.Load() {
		runsTotal.Inc()
	}
}

func SetRunning(running bool) {
	if regOK.Load() {
		v := 0.0
		if running {
			v = 1
		}
		scriptRunning.Set(v)
	}
}

func ObserveRunDuration(seconds float64) {
	if regOK.Load() {
		runDuration.Observe(seconds)
	}
}

func IncEvent(kind string) {
	if regOK.Load() {
		eventsTotal.WithLabelValues(kind).Inc()
	}
}

func IncOutputLine(stream string) {
	if regOK.Load() {
		outputLines.WithLabelValues(stream).Inc()
	}
}

func SetActiveCalls(n int) {
	if regOK.Load() {
		activeCalls.Set(float64(n))
	}
}

func AddTraceSkipped(n int) {
	if regOK.Load() && n > 0 {
		traceSkipped.Add(float64(n))
	}
}

func IncErrorDropped() {
	if regOK.Load() {
		errorsDropped.Inc()
	}
}

func SetChildUsage(cpuPercent, memoryMB float64) {
	if regOK.Load() {
		childCPU.Set(cpuPercent)
		childMemory.Set(memoryMB)
	}
}
