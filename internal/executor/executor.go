// Package executor owns the child process: it launches the script with the
// trace environment injected, captures stdout/stderr into the event store,
// starts the bridge read for the run's side-channel file and supervises the
// process until exit or a stop request.
package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LayerDynamics/runtui/internal/bridge"
	"github.com/LayerDynamics/runtui/internal/errq"
	"github.com/LayerDynamics/runtui/internal/event"
	"github.com/LayerDynamics/runtui/internal/metrics"
)

const (
	defaultStopTimeout = 2 * time.Second
	defaultSettleDelay = 100 * time.Millisecond
	killWait           = time.Second
	maxLineSize        = 1024 * 1024
)

// MissingScriptError reports a script path that does not resolve to an
// existing regular file. It is returned synchronously from Start; no
// subprocess is spawned.
type MissingScriptError struct {
	Path string
}

func (e *MissingScriptError) Error() string {
	return fmt.Sprintf("script not found: %s", e.Path)
}

// Options configures an Executor. Zero values select defaults; a nil Store
// or Errors gets a fresh instance so embedded callers can construct an
// Executor in one call and pull the store back out.
type Options struct {
	Store  *event.Store
	Errors *errq.Queue
	Logger *slog.Logger
	// StopTimeout bounds the graceful SIGTERM wait before SIGKILL.
	StopTimeout time.Duration
	// SettleDelay is the pause between stop and start during Restart.
	SettleDelay time.Duration
	// TraceWait tunes the bridge reader's wait phase.
	TraceWait bridge.Options
}

// Executor runs one script at a time. All lifecycle methods are safe for
// concurrent use; Start/Stop/Restart serialize on an internal mutex while
// Running and Paused are lock-free reads for the render path.
type Executor struct {
	script string
	args   []string

	store       *event.Store
	errs        *errq.Queue
	log         *slog.Logger
	stopTimeout time.Duration
	settleDelay time.Duration
	traceWait   bridge.Options

	running atomic.Bool
	paused  atomic.Bool

	mu           sync.Mutex
	cmd          *exec.Cmd
	waitDone     chan struct{}
	startedAt    time.Time
	sampler      *metrics.ProcSampler
	sampleCancel context.CancelFunc

	consumerOnce sync.Once
	closeOnce    sync.Once
	quit         chan struct{}
}

func New(script string, args []string, opts Options) *Executor {
	e := &Executor{
		script:      script,
		args:        append([]string(nil), args...),
		store:       opts.Store,
		errs:        opts.Errors,
		log:         opts.Logger,
		stopTimeout: opts.StopTimeout,
		settleDelay: opts.SettleDelay,
		traceWait:   opts.TraceWait,
		sampler:     metrics.NewProcSampler(0),
		quit:        make(chan struct{}),
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.store == nil {
		e.store = event.NewStore()
	}
	if e.errs == nil {
		e.errs = errq.New(0, e.log)
	}
	if e.stopTimeout <= 0 {
		e.stopTimeout = defaultStopTimeout
	}
	if e.settleDelay <= 0 {
		e.settleDelay = defaultSettleDelay
	}
	return e
}

// Store returns the event store this executor feeds.
func (e *Executor) Store() *event.Store { return e.store }

// Errors returns the error queue this executor reports into.
func (e *Executor) Errors() *errq.Queue { return e.errs }

// Sampler returns the resource sampler for the current child, if any.
func (e *Executor) Sampler() *metrics.ProcSampler { return e.sampler }

// Script returns the script path this executor was built for.
func (e *Executor) Script() string { return e.script }

// Args returns the script arguments.
func (e *Executor) Args() []string { return append([]string(nil), e.args...) }

func (e *Executor) Running() bool { return e.running.Load() }

func (e *Executor) Paused() bool { return e.paused.Load() }

// PID returns the child's process id, or 0 when no child is live.
func (e *Executor) PID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd == nil || e.cmd.Process == nil {
		return 0
	}
	return e.cmd.Process.Pid
}

// StartedAt returns when the current (or last) run began.
func (e *Executor) StartedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startedAt
}

// Start validates the script, creates the side-channel file, launches the
// child in its own process group and spins up the per-run goroutines.
// Starting while a run is live is an error; the live run is untouched.
func (e *Executor) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startLocked()
}

func (e *Executor) startLocked() error {
	if e.running.Load() {
		return fmt.Errorf("script already running: %s", e.script)
	}

	info, err := os.Stat(e.script)
	if err != nil || !info.Mode().IsRegular() {
		return &MissingScriptError{Path: e.script}
	}

	traceFile, err := os.CreateTemp("", "runtui_trace_*.jsonl")
	if err != nil {
		return fmt.Errorf("create trace file: %w", err)
	}
	tracePath := traceFile.Name()
	_ = traceFile.Close()

	cmd := exec.Command(e.script, e.args...)
	cmd.Env = childEnv(os.Environ(), executableDir(), tracePath)
	configureSysProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = os.Remove(tracePath)
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = os.Remove(tracePath)
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = os.Remove(tracePath)
		return fmt.Errorf("start script: %w", err)
	}

	e.cmd = cmd
	e.waitDone = make(chan struct{})
	e.startedAt = time.Now()
	e.paused.Store(false)
	e.running.Store(true)

	metrics.IncRun()
	metrics.SetRunning(true)
	e.log.Info("script started", "script", e.script, "pid", cmd.Process.Pid)

	e.consumerOnce.Do(func() {
		go e.errs.Run(e.quit, e.store)
	})

	var readers sync.WaitGroup
	readers.Add(2)
	go e.readOutput(stdout, event.StreamStdout, &readers)
	go e.readOutput(stderr, event.StreamStderr, &readers)

	tw := e.traceWait
	if tw.Logger == nil {
		tw.Logger = e.log
	}
	go bridge.New(e.store, e.errs, tw).Run(tracePath)

	ctx, cancel := context.WithCancel(context.Background())
	e.sampleCancel = cancel
	go e.sampler.Watch(ctx, cmd.Process.Pid)

	go e.monitor(cmd, e.startedAt, e.waitDone, &readers, cancel)

	return nil
}

// Stop terminates the current run. It is a no-op when nothing is running.
// The group gets SIGTERM first; if the child is still up after the stop
// timeout it gets SIGKILL. Stop returns once the monitor has recorded the
// exit, so a following Restart clears a fully settled store.
func (e *Executor) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked()
}

func (e *Executor) stopLocked() error {
	cmd := e.cmd
	waitDone := e.waitDone
	if cmd == nil || cmd.Process == nil || !e.running.Load() {
		e.cmd = nil
		return nil
	}
	pid := cmd.Process.Pid

	e.log.Info("stopping script", "pid", pid)
	if err := signalGroup(pid, sigTerminate); err != nil {
		e.log.Debug("terminate signal failed", "pid", pid, "error", err)
	}

	select {
	case <-waitDone:
	case <-time.After(e.stopTimeout):
		e.log.Warn("script ignored terminate, killing", "pid", pid, "timeout", e.stopTimeout)
		if err := signalGroup(pid, sigKill); err != nil {
			e.log.Debug("kill signal failed", "pid", pid, "error", err)
		}
		select {
		case <-waitDone:
		case <-time.After(killWait):
			e.log.Error("script did not exit after kill", "pid", pid)
		}
	}

	e.cmd = nil
	return nil
}

// Pause stops forwarding output lines into the store. The pipes keep
// draining so the child never blocks on a full buffer.
func (e *Executor) Pause() {
	if e.paused.CompareAndSwap(false, true) {
		e.log.Debug("output paused")
	}
}

// Resume re-enables output forwarding.
func (e *Executor) Resume() {
	if e.paused.CompareAndSwap(true, false) {
		e.log.Debug("output resumed")
	}
}

// Restart stops the current run, clears the store and starts fresh. The
// settle delay gives the old process group time to fully release pipes and
// the trace file before the new run creates its own.
func (e *Executor) Restart() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.stopLocked(); err != nil {
		return err
	}
	e.store.Clear()
	metrics.SetActiveCalls(0)
	time.Sleep(e.settleDelay)
	return e.startLocked()
}

// Close stops the run and shuts down the error-queue consumer. The store is
// left open for final reads; closing it is the owner's call.
func (e *Executor) Close() error {
	err := e.Stop()
	e.closeOnce.Do(func() { close(e.quit) })
	return err
}

// readOutput forwards one pipe line by line. Read errors on a live run are
// reported through the error queue; EOF after exit is the normal end.
func (e *Executor) readOutput(r io.Reader, stream event.Stream, readers *sync.WaitGroup) {
	defer readers.Done()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		if e.paused.Load() {
			continue
		}
		e.emitOutput(sc.Text(), stream)
	}
	if err := sc.Err(); err != nil && e.running.Load() {
		e.errs.Push(string(stream)+" pipe", err)
	}
}

// monitor owns cmd.Wait for the run. It runs after both pipe readers have
// drained, records the exit in the store, then signals waitDone so Stop and
// Restart can proceed.
func (e *Executor) monitor(cmd *exec.Cmd, startedAt time.Time, waitDone chan struct{}, readers *sync.WaitGroup, cancelSample context.CancelFunc) {
	readers.Wait()
	err := cmd.Wait()
	cancelSample()

	e.running.Store(false)
	metrics.SetRunning(false)
	metrics.ObserveRunDuration(time.Since(startedAt).Seconds())

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		e.log.Info("script completed", "code", 0)
		e.emitOutput("Script completed successfully", event.StreamSystem)
	case errors.As(err, &exitErr):
		e.log.Info("script completed", "code", exitErr.ExitCode())
		e.emitOutput(fmt.Sprintf("Script completed with code %d", exitErr.ExitCode()), event.StreamSystem)
	default:
		e.log.Error("wait failed", "error", err)
		e.errs.Push("process monitor", err)
	}

	close(waitDone)
}

func (e *Executor) emitOutput(content string, stream event.Stream) {
	e.store.AddOutput(content, stream)
	metrics.IncEvent("output")
	metrics.IncOutputLine(string(stream))
}
