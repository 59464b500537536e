// Package shutdown implements the shutdown coordinator (spec.md §4.O):
// named, ordered steps run once, in ascending order, with panics and
// errors caught and logged rather than propagated. Grounded on
// original_source/src/rt/ShutdownCoordinator.cpp.
package shutdown

import (
	"log/slog"
	"sort"
	"sync"
)

// Step is one named, ordered unit of teardown work.
type Step struct {
	Name  string
	Order int
	Fn    func() error
}

// Coordinator runs registered Steps in ascending Order exactly once.
// StopAll is idempotent via a compare-and-set flag.
type Coordinator struct {
	mu       sync.Mutex
	steps    []Step
	stopped  bool
	log      *slog.Logger
}

// New creates a Coordinator. log may be nil, in which case slog.Default is
// used.
func New(log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{log: log}
}

// Register adds a step. Safe to call until StopAll has run.
func (c *Coordinator) Register(name string, order int, fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.steps = append(c.steps, Step{Name: name, Order: order, Fn: fn})
}

// StopAll sorts registered steps by ascending Order and runs each in turn,
// recovering panics and logging errors so one misbehaving step never
// blocks the rest. Idempotent: a second call is a no-op.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	steps := make([]Step, len(c.steps))
	copy(steps, c.steps)
	c.mu.Unlock()

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	for _, s := range steps {
		c.runStep(s)
	}
}

func (c *Coordinator) runStep(s Step) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("shutdown step panicked", "step", s.Name, "order", s.Order, "recovered", r)
		}
	}()
	if err := s.Fn(); err != nil {
		c.log.Error("shutdown step failed", "step", s.Name, "order", s.Order, "error", err)
	}
}

// Stopped reports whether StopAll has already run.
func (c *Coordinator) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}
