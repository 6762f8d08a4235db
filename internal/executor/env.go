package executor

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/LayerDynamics/runtui/tracer"
)

// childEnv builds the child environment from the parent's: the dashboard
// binary's directory is prepended to PATH so helpers shipped next to the
// binary resolve inside the child, and the trace activation variables point
// the child's tracer at this run's side-channel file. Stale trace variables
// inherited from the parent are dropped first.
func childEnv(base []string, binDir, tracePath string) []string {
	out := make([]string, 0, len(base)+3)
	sawPath := false
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		switch k {
		case tracer.EnvTrace, tracer.EnvTracePath:
			continue
		case "PATH":
			sawPath = true
			if binDir != "" {
				kv = "PATH=" + binDir + string(os.PathListSeparator) + v
			}
		}
		out = append(out, kv)
	}
	if !sawPath && binDir != "" {
		out = append(out, "PATH="+binDir)
	}
	out = append(out, tracer.EnvTrace+"=1", tracer.EnvTracePath+"="+tracePath)
	return out
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(exe)
}
