// Package metrics is the process-wide counter/gauge registry backing
// spec.md's metricsEnabled/metricsIntervalSec config. Grounded on
// original_source/src/util/Metrics.cpp's lazily-created name->counter/gauge
// maps and periodic reporter, rebuilt on prometheus/client_golang so the
// same registry both serves a scrape endpoint and the diagnostics API's
// JSON snapshot.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every named counter and gauge created for the process.
// Counters and gauges are created lazily on first use, mirroring
// MetricRegistry::counter/gauge's "insert if absent" semantics.
type Registry struct {
	prom *prometheus.Registry

	mu       sync.Mutex
	counters map[string]*counter
	gauges   map[string]*gauge

	stopReporter chan struct{}
	reporterWG   sync.WaitGroup
}

type counter struct {
	pc  prometheus.Counter
	val atomic.Uint64 // integral count, mirrors pc for JSON snapshot reads
}

type gauge struct {
	pg  prometheus.Gauge
	bits atomic.Uint64 // math.Float64bits(value)
}

// New creates an empty Registry backed by its own prometheus.Registry (not
// the global default), so multiple Registries never collide on metric
// names within a process.
func New() *Registry {
	return &Registry{
		prom:     prometheus.NewRegistry(),
		counters: make(map[string]*counter),
		gauges:   make(map[string]*gauge),
	}
}

// Prometheus exposes the underlying collector registry, for wiring into
// promhttp.HandlerFor by cmd/gmaserver.
func (r *Registry) Prometheus() *prometheus.Registry { return r.prom }

// Counter returns the named counter, creating and registering it on first
// use.
func (r *Registry) Counter(name string) *counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &counter{pc: prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: name})}
	r.prom.MustRegister(c.pc)
	r.counters[name] = c
	return c
}

// Gauge returns the named gauge, creating and registering it on first use.
func (r *Registry) Gauge(name string) *gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := &gauge{pg: prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: name})}
	r.prom.MustRegister(g.pg)
	r.gauges[name] = g
	return g
}

// Inc increments a counter by 1.
func (c *counter) Inc() { c.Add(1) }

// Add increments a counter by delta, which must be non-negative.
func (c *counter) Add(delta float64) {
	c.pc.Add(delta)
	c.val.Add(uint64(delta))
}

// Get returns the counter's current integral value.
func (c *counter) Get() uint64 { return c.val.Load() }

// Set sets a gauge's current value.
func (g *gauge) Set(v float64) {
	g.pg.Set(v)
	g.bits.Store(math.Float64bits(v))
}

// Add adds delta (possibly negative) to a gauge's current value.
func (g *gauge) Add(delta float64) {
	g.pg.Add(delta)
	for {
		old := g.bits.Load()
		nv := math.Float64bits(math.Float64frombits(old) + delta)
		if g.bits.CompareAndSwap(old, nv) {
			return
		}
	}
}

// Get returns a gauge's current value.
func (g *gauge) Get() float64 { return math.Float64frombits(g.bits.Load()) }

// Snapshot is the diagnostics-API shape of a point-in-time read of every
// counter and gauge, mirroring MetricRegistry::snapshotJson's two-map
// layout.
type Snapshot struct {
	Counters map[string]uint64  `json:"counters"`
	Gauges   map[string]float64 `json:"gauges"`
}

// Snapshot reads every registered counter and gauge under lock.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Snapshot{
		Counters: make(map[string]uint64, len(r.counters)),
		Gauges:   make(map[string]float64, len(r.gauges)),
	}
	for name, c := range r.counters {
		out.Counters[name] = c.Get()
	}
	for name, g := range r.gauges {
		out.Gauges[name] = g.Get()
	}
	return out
}

// StartReporter runs fn every period on a background goroutine until
// StopReporter is called, mirroring startReporter/stopReporter's
// start/join pair. A no-op fn is a valid way to keep a heartbeat without
// side effects.
func (r *Registry) StartReporter(period time.Duration, fn func(Snapshot)) {
	r.StopReporter()
	stop := make(chan struct{})
	r.stopReporter = stop
	r.reporterWG.Add(1)
	go func() {
		defer r.reporterWG.Done()
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if fn != nil {
					fn(r.Snapshot())
				}
			}
		}
	}()
}

// StopReporter stops a running reporter goroutine, blocking until it has
// exited. Safe to call when no reporter is running.
func (r *Registry) StopReporter() {
	if r.stopReporter == nil {
		return
	}
	close(r.stopReporter)
	r.reporterWG.Wait()
	r.stopReporter = nil
}
