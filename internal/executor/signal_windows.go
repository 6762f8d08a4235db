//go:build windows

package executor

import "os"

type stopSignal int

const (
	sigTerminate stopSignal = iota
	sigKill
)

// signalGroup terminates the child on Windows. There is no graceful
// SIGTERM analog for console-less children, so both signals map to a hard
// terminate; the escalation path in Stop degenerates to a single kill.
func signalGroup(pid int, _ stopSignal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
