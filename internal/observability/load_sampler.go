// Package observability carries the kernel's operational signals: a
// process load sampler the Runner's backpressure gate reads, and
// Prometheus histograms/counters for tick phase timings and
// accepted/rejected actions (spec 4.I).
package observability

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// LoadSample is one reading of process resource usage.
type LoadSample struct {
	CPUPercent float64
	RSSBytes   uint64
	SampledAt  time.Time
}

// LoadSampler samples this process's CPU and memory usage once per
// interval and keeps the latest reading available without blocking —
// the Runner consults it on every tick's backpressure check, so the
// read must never itself wait on a syscall.
type LoadSampler struct {
	proc     *process.Process
	interval time.Duration

	mu     sync.RWMutex
	latest LoadSample

	stop chan struct{}
	done chan struct{}
}

// NewLoadSampler starts sampling this process immediately in the
// background at the given interval.
func NewLoadSampler(interval time.Duration) (*LoadSampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	s := &LoadSampler{
		proc:     proc,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.sampleOnce()
	go s.loop()
	return s, nil
}

func (s *LoadSampler) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *LoadSampler) sampleOnce() {
	sample := LoadSample{SampledAt: time.Now()}

	if pct, err := s.proc.CPUPercent(); err == nil {
		sample.CPUPercent = pct
	} else if pcts, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pcts) > 0 {
		sample.CPUPercent = pcts[0]
	}

	if memInfo, err := s.proc.MemoryInfo(); err == nil && memInfo != nil {
		sample.RSSBytes = memInfo.RSS
	}

	s.mu.Lock()
	s.latest = sample
	s.mu.Unlock()
}

// Latest returns the most recent sample without blocking.
func (s *LoadSampler) Latest() LoadSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Overloaded reports whether the latest sample is at or above cpuPercent —
// the Runner's signal to start rejecting new intents with a transient
// error rather than only reacting to a full queue.
func (s *LoadSampler) Overloaded(cpuPercent float64) bool {
	return s.Latest().CPUPercent >= cpuPercent
}

func (s *LoadSampler) Close() {
	close(s.stop)
	<-s.done
}
