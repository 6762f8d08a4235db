// Package server exposes the dashboard state over a small read-only HTTP
// API, so a run can be inspected from outside the terminal. It cannot
// start, stop or otherwise touch the script.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LayerDynamics/runtui/internal/event"
	"github.com/LayerDynamics/runtui/internal/executor"
	"github.com/LayerDynamics/runtui/internal/metrics"
)

// Router provides embeddable HTTP handlers over a run.
// Endpoints:
//
//	GET {basePath}/healthz      liveness probe
//	GET {basePath}/status       executor state and event counts
//	GET {basePath}/api/summary  event counts and the last system line
//	GET {basePath}/metrics      prometheus exposition (when enabled)
type Router struct {
	exec        *executor.Executor
	store       *event.Store
	basePath    string
	withMetrics bool
}

// NewRouter constructs a Router with a configurable basePath.
// Example basePath: "/abc" results in /abc/status, /abc/healthz.
func NewRouter(exec *executor.Executor, store *event.Store, basePath string, withMetrics bool) *Router {
	return &Router{
		exec:        exec,
		store:       store,
		basePath:    sanitizeBase(basePath),
		withMetrics: withMetrics,
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/status", r.handleStatus)
	group.GET("/api/summary", r.handleSummary)
	if r.withMetrics {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down with http.Server's Shutdown or Close.
func NewServer(addr, basePath string, exec *executor.Executor, store *event.Store, withMetrics bool) (*http.Server, error) {
	r := NewRouter(exec, store, basePath, withMetrics)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type statusResp struct {
	Script    string       `json:"script"`
	Args      []string     `json:"args,omitempty"`
	Running   bool         `json:"running"`
	Paused    bool         `json:"paused"`
	PID       int          `json:"pid"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
	Counts    event.Counts `json:"counts"`
}

type summaryResp struct {
	Counts      event.Counts `json:"counts"`
	ActiveCalls int          `json:"active_calls"`
	LastSystem  string       `json:"last_system,omitempty"`
}

func (r *Router) handleHealthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := statusResp{
		Script:  r.exec.Script(),
		Args:    r.exec.Args(),
		Running: r.exec.Running(),
		Paused:  r.exec.Paused(),
		PID:     r.exec.PID(),
		Counts:  r.store.Counts(),
	}
	if at := r.exec.StartedAt(); !at.IsZero() {
		resp.StartedAt = &at
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleSummary(c *gin.Context) {
	resp := summaryResp{
		Counts:      r.store.Counts(),
		ActiveCalls: r.store.ActiveCalls(),
	}
	lines := r.store.Output()
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].Stream == event.StreamSystem {
			resp.LastSystem = lines[i].Content
			break
		}
	}
	writeJSON(c, http.StatusOK, resp)
}
