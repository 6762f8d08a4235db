// Package bridge is the parent-side half of the trace bridge: it waits for
// the side-channel file the child's tracer writes, parses it line by line
// and forwards call/return events into the event store. The file is deleted
// afterwards; a bridge read is single-use per run.
package bridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/LayerDynamics/runtui/internal/errq"
	"github.com/LayerDynamics/runtui/internal/event"
	"github.com/LayerDynamics/runtui/internal/metrics"
)

const (
	defaultInitialDelay = 500 * time.Millisecond
	defaultRetries      = 30
	defaultInterval     = 200 * time.Millisecond
)

// record is the permissive shape of one side-channel line. Both call and
// return fields live here so a single unmarshal handles either type.
type record struct {
	Type         string            `json:"type"`
	FunctionName string            `json:"function_name"`
	Filename     string            `json:"filename"`
	LineNo       int               `json:"line_no"`
	Args         map[string]string `json:"args"`
	CallID       int               `json:"call_id"`
	ParentID     *int              `json:"parent_id"`
	ReturnValue  string            `json:"return_value"`
}

// Options tune the wait phase. Zero values select the defaults.
type Options struct {
	// InitialDelay gives the child time to start before the first check.
	InitialDelay time.Duration
	// Retries bounds how many checks run before giving up.
	Retries int
	// Interval is the pause between checks when no filesystem event
	// arrives earlier.
	Interval time.Duration
	Logger   *slog.Logger
}

// Reader drains one run's side-channel file into the event store.
type Reader struct {
	store        *event.Store
	errs         *errq.Queue
	log          *slog.Logger
	initialDelay time.Duration
	retries      int
	interval     time.Duration
}

func New(store *event.Store, errs *errq.Queue, opts Options) *Reader {
	r := &Reader{
		store:        store,
		errs:         errs,
		log:          opts.Logger,
		initialDelay: opts.InitialDelay,
		retries:      opts.Retries,
		interval:     opts.Interval,
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.initialDelay <= 0 {
		r.initialDelay = defaultInitialDelay
	}
	if r.retries <= 0 {
		r.retries = defaultRetries
	}
	if r.interval <= 0 {
		r.interval = defaultInterval
	}
	return r
}

// Run performs one bridge pass: wait for content, forward records, delete
// the file. A script that never produces trace records is normal; Run then
// finishes quietly once the retry budget is spent. Run is designed to be
// called on its own goroutine, once per run.
func (r *Reader) Run(path string) {
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			r.log.Debug("trace file cleanup failed", "path", path, "error", err)
		}
	}()

	content := r.waitForContent(path)
	if content == "" {
		return
	}
	r.processLines(strings.Split(content, "\n"))
}

// waitForContent polls for the file to exist with non-blank content, within
// the retry budget. A filesystem watcher on the parent directory wakes the
// loop as soon as the child writes; the interval tick is the fallback when
// watching is unavailable.
func (r *Reader) waitForContent(path string) string {
	time.Sleep(r.initialDelay)

	var wakeups <-chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(path)); err == nil {
			wakeups = watcher.Events
		}
	}

	for i := 0; i < r.retries; i++ {
		info, err := os.Stat(path)
		if err == nil && info.Size() > 0 {
			data, err := os.ReadFile(path)
			if err != nil {
				r.log.Warn("trace file unreadable", "path", path, "error", err)
				return ""
			}
			if strings.TrimSpace(string(data)) != "" {
				return string(data)
			}
		}

		select {
		case ev, ok := <-wakeups:
			if !ok {
				wakeups = nil
				continue
			}
			if ev.Name != path || !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
				// Unrelated event; do not burn the retry on it.
				i--
			}
		case <-time.After(r.interval):
		}
	}

	r.log.Debug("no trace content within retry budget", "path", path)
	return ""
}

// processLines parses each line independently. Malformed lines are skipped
// and reported once per pass as a single summary, never per line. Call
// records missing their required fields are dropped.
func (r *Reader) processLines(lines []string) {
	var calls, returns, skipped int

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "{") {
			skipped++
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			continue
		}
		switch rec.Type {
		case "call":
			if rec.FunctionName == "" || rec.Filename == "" {
				continue
			}
			parent := 0
			if rec.ParentID != nil {
				parent = *rec.ParentID
			}
			r.store.AddCallWithID(rec.FunctionName, rec.Filename, rec.LineNo, rec.Args, rec.CallID, parent)
			metrics.IncEvent("call")
			calls++
		case "return":
			value := rec.ReturnValue
			if value == "" {
				value = "nil"
			}
			if rec.CallID > 0 {
				r.store.AddReturnWithID(rec.FunctionName, value, rec.CallID)
			} else {
				r.store.AddReturn(rec.FunctionName, value)
			}
			metrics.IncEvent("return")
			returns++
		}
	}

	if skipped > 0 {
		metrics.AddTraceSkipped(skipped)
		r.errs.Push("trace parsing", fmt.Errorf("skipped %d malformed line(s)", skipped))
	}
	r.log.Debug("trace pass complete", "calls", calls, "returns", returns, "skipped", skipped)

	if calls == 0 {
		r.looseScan(lines)
	}
	metrics.SetActiveCalls(r.store.ActiveCalls())
}

// looseScan is the last-resort recovery path: when structured parsing found
// no calls but the text still carries call markers, it extracts whatever
// call records it can so the dashboard surfaces something rather than
// nothing. Recovered calls get store-assigned ids.
func (r *Reader) looseScan(lines []string) {
	recovered := 0
	for _, line := range lines {
		if !strings.Contains(line, `"function_name"`) || !strings.Contains(line, `"call"`) {
			continue
		}
		start := strings.IndexByte(line, '{')
		end := strings.LastIndexByte(line, '}')
		if start < 0 || end <= start {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line[start:end+1]), &rec); err != nil {
			continue
		}
		if rec.Type != "call" || rec.FunctionName == "" || rec.Filename == "" {
			continue
		}
		r.store.AddCall(rec.FunctionName, rec.Filename, rec.LineNo, rec.Args)
		metrics.IncEvent("call")
		recovered++
	}
	if recovered > 0 {
		r.log.Debug("loose scan recovered calls", "count", recovered)
	}
}
