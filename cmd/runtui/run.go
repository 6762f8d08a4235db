package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LayerDynamics/runtui/internal/bridge"
	"github.com/LayerDynamics/runtui/internal/config"
	"github.com/LayerDynamics/runtui/internal/event"
	"github.com/LayerDynamics/runtui/internal/executor"
	"github.com/LayerDynamics/runtui/internal/logger"
	"github.com/LayerDynamics/runtui/internal/metrics"
	"github.com/LayerDynamics/runtui/internal/server"
	"github.com/LayerDynamics/runtui/internal/ui"
)

// headlessQuiet is the minimum idle period after the child exits before
// the headless loop stops draining trailing trace events.
const headlessQuiet = 500 * time.Millisecond

// runDashboard builds the store, executor and optional status server for
// one script run, then hands control to the TUI or the headless loop.
func runDashboard(cfg *config.FileConfig, script string, args []string, noUI bool) error {
	log, closer := logger.New(cfg.Log.Logger(), noUI)
	defer func() { _ = closer.Close() }()

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warn("metrics registration failed", "error", err)
		}
	}

	store := event.NewStore()
	defer store.Close()

	exec := executor.New(script, args, executor.Options{
		Store:       store,
		Logger:      log,
		StopTimeout: cfg.Run.StopTimeout,
		SettleDelay: cfg.Run.SettleDelay,
		TraceWait: bridge.Options{
			Retries:  cfg.Run.TraceWaitRetries,
			Interval: cfg.Run.TraceWaitInterval,
			Logger:   log,
		},
	})
	defer func() { _ = exec.Close() }()

	if cfg.Server.Listen != "" {
		srv, err := server.NewServer(cfg.Server.Listen, "", exec, store, cfg.Metrics.Enabled)
		if err != nil {
			return err
		}
		defer shutdownServer(srv, log)
		log.Info("status server listening", "addr", cfg.Server.Listen)
	}

	if noUI {
		return runHeadless(log, cfg, store, exec)
	}
	return runTUI(cfg, store, exec)
}

// runHeadless starts the script and prints every store event as a log
// line. It returns once the child has exited and the event flow has been
// quiet long enough for trailing trace events to drain.
func runHeadless(log *slog.Logger, cfg *config.FileConfig, store *event.Store, exec *executor.Executor) error {
	if err := exec.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	grace := 2 * cfg.Run.TraceWaitInterval
	if grace < headlessQuiet {
		grace = headlessQuiet
	}

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	events := store.Events()
	lastEvent := time.Now()
	for {
		select {
		case <-sigCh:
			_ = exec.Stop()
		case <-tick.C:
			if !exec.Running() && time.Since(lastEvent) >= grace {
				return nil
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			lastEvent = time.Now()
			logEvent(log, ev)
		}
	}
}

// runTUI starts the script first so a missing script fails before the
// terminal enters the alternate screen.
func runTUI(cfg *config.FileConfig, store *event.Store, exec *executor.Executor) error {
	if err := exec.Start(); err != nil {
		return err
	}

	model := ui.NewModel(store, exec,
		ui.WithMaxOutputLines(cfg.UI.MaxOutputLines),
		ui.WithTimestamps(cfg.UI.ShowTimestamps),
	)
	_, err := ui.NewProgram(model).Run()
	return err
}

func logEvent(log *slog.Logger, ev event.Event) {
	switch ev.Kind {
	case event.KindOutput:
		if ev.Output.Stream == event.StreamStderr {
			log.Warn("output", "stream", string(ev.Output.Stream), "line", ev.Output.Content)
			return
		}
		log.Info("output", "stream", string(ev.Output.Stream), "line", ev.Output.Content)
	case event.KindCall:
		log.Info("call", "function", ev.Call.FunctionName, "id", ev.Call.CallID, "parent", ev.Call.ParentID)
	case event.KindReturn:
		log.Info("return", "function", ev.Return.FunctionName, "id", ev.Return.CallID, "value", ev.Return.ReturnValue)
	case event.KindException:
		log.Error("exception", "type", ev.Exception.ExceptionType, "message", ev.Exception.Message)
	}
}

func shutdownServer(srv *http.Server, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("status server shutdown", "error", err)
	}
}
