// Package taregistry implements the process-wide named-function registry
// used by the atomic computer, grounded on original_source's FunctionMap
// singleton (referenced from src/core/MarketDispatcher.cpp's
// FunctionMap::instance().getAll() call).
package taregistry

import (
	"errors"
	"math"
	"sort"
	"sync"
)

// ErrNotFound is returned by Get for an unregistered name.
var ErrNotFound = errors.New("taregistry: function not found")

// Fn is a named pure function over a sequence of float64 samples.
type Fn func(series []float64) float64

// Registry maps a name to a Fn. Safe for concurrent use; Register overwrites
// an existing entry.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Fn
}

// New returns a Registry pre-populated with the built-ins named in
// spec.md §4.E: mean, sum, min, max, last, first, count, stddev.
func New() *Registry {
	r := &Registry{funcs: make(map[string]Fn)}
	r.Register("sum", sumFn)
	r.Register("mean", meanFn)
	r.Register("min", minFn)
	r.Register("max", maxFn)
	r.Register("last", lastFn)
	r.Register("first", firstFn)
	r.Register("count", countFn)
	r.Register("stddev", stddevFn)
	return r
}

// Register installs fn under name, overwriting any previous registration.
func (r *Registry) Register(name string, fn Fn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Get looks up name, returning ErrNotFound if unregistered.
func (r *Registry) Get(name string) (Fn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return fn, nil
}

// NamedFn pairs a registered name with its function, for Snapshot.
type NamedFn struct {
	Name string
	Fn   Fn
}

// Snapshot returns a copy of all (name, fn) pairs, safe to iterate without
// holding the registry lock -- used by the dispatcher's per-tick atomic
// compute loop.
func (r *Registry) Snapshot() []NamedFn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NamedFn, 0, len(r.funcs))
	for name, fn := range r.funcs {
		out = append(out, NamedFn{Name: name, Fn: fn})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sumFn(s []float64) float64 {
	var total float64
	for _, v := range s {
		total += v
	}
	return total
}

func meanFn(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	return sumFn(s) / float64(len(s))
}

func minFn(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	m := s[0]
	for _, v := range s[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxFn(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	m := s[0]
	for _, v := range s[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func lastFn(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

func firstFn(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	return s[0]
}

func countFn(s []float64) float64 { return float64(len(s)) }

func stddevFn(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	m := meanFn(s)
	var sq float64
	for _, v := range s {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(s)))
}
