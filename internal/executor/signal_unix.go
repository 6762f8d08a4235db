//go:build !windows

package executor

import "syscall"

type stopSignal = syscall.Signal

const (
	sigTerminate stopSignal = syscall.SIGTERM
	sigKill      stopSignal = syscall.SIGKILL
)

// signalGroup signals the child's whole process group, so shells and
// anything the script spawned receive the stop signal too.
func signalGroup(pid int, sig stopSignal) error {
	return syscall.Kill(-pid, sig)
}
