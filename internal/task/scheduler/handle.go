package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Handle is one scheduled task. It is created by the Service and lives until
// its task is stopped or replaced.
type Handle struct {
	name       string
	spec       string
	kind       SpecKind
	sched      cron.Schedule
	loc        *time.Location
	timeout    time.Duration
	runOnStart bool
	work       Work

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	next     time.Time
	prev     time.Time
	runs     uint64
	failures uint64
	running  bool
}

func (h *Handle) Name() string { return h.name }

func (h *Handle) Spec() string { return h.spec }

// Done is closed once the task loop has exited, including any in-flight run.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the loop exits or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopped reports whether the loop has exited.
func (h *Handle) Stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) setNext(t time.Time) {
	h.mu.Lock()
	h.next = t
	h.mu.Unlock()
}

func (h *Handle) markStart(t time.Time) {
	h.mu.Lock()
	h.prev = t
	h.running = true
	h.mu.Unlock()
}

func (h *Handle) markDone(err error) {
	h.mu.Lock()
	h.running = false
	h.runs++
	if err != nil {
		h.failures++
	}
	h.mu.Unlock()
}

func (h *Handle) info() ScheduleInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return ScheduleInfo{
		Name:     h.name,
		Spec:     h.spec,
		Timeout:  h.timeout,
		Next:     h.next,
		Prev:     h.prev,
		Runs:     h.runs,
		Failures: h.failures,
		Running:  h.running,
	}
}
