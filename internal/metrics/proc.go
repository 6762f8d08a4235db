package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const defaultSampleInterval = time.Second

// Sample is one point-in-time resource reading of the child process.
type Sample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// ProcSampler periodically reads CPU and memory usage of a single process
// so the status bar and the exported gauges can show live resource usage.
// A sampler is reusable across runs; Watch is one run's sampling loop.
type ProcSampler struct {
	interval time.Duration

	mu    sync.Mutex
	last  Sample
	valid bool
}

func NewProcSampler(interval time.Duration) *ProcSampler {
	if interval <= 0 {
		interval = defaultSampleInterval
	}
	return &ProcSampler{interval: interval}
}

// Watch samples the process until ctx is cancelled or the process
// disappears. It blocks and is meant for its own goroutine. Sampling
// failures end the loop quietly; resource visibility is best-effort.
func (s *ProcSampler) Watch(ctx context.Context, pid int) {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return
	}
	defer s.reset()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.sample(ctx, proc) {
				return
			}
		}
	}
}

func (s *ProcSampler) sample(ctx context.Context, proc *process.Process) bool {
	cpu, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		return false
	}
	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil || mem == nil {
		return false
	}
	threads, _ := proc.NumThreadsWithContext(ctx)

	reading := Sample{
		PID:        proc.Pid,
		CPUPercent: cpu,
		MemoryMB:   float64(mem.RSS) / (1024 * 1024),
		NumThreads: threads,
		Timestamp:  time.Now(),
	}

	s.mu.Lock()
	s.last = reading
	s.valid = true
	s.mu.Unlock()

	SetChildUsage(reading.CPUPercent, reading.MemoryMB)
	return true
}

func (s *ProcSampler) reset() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
	SetChildUsage(0, 0)
}

// Last returns the most recent sample of the current run, if any.
func (s *ProcSampler) Last() (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.valid
}
