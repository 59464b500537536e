package nodes

import (
	"sync"

	"github.com/ndrandal/gma-go/internal/value"
)

// WorkerFn reduces a per-symbol batch of accumulated values to one result.
type WorkerFn func([]value.Value) value.Value

// Worker is a per-symbol accumulator: it buffers incoming values for a
// symbol and, once the buffer reaches arity, calls fn over the buffered
// slice, forwards the single result, and clears that symbol's buffer.
//
// spec.md §9 flags the source's Worker trigger policy as inconsistent
// across variants (fire-immediately vs accumulate-to-arity-N) and asks
// implementers to pick one; this implementation picks accumulate-to-
// arity-N, with arity=1 reproducing "fire on every input". Grounded on
// original_source/src/nodes/WorkerNode.cpp.
type Worker struct {
	lifecycle
	fn         WorkerFn
	arity      int
	downstream ref

	mu      sync.Mutex
	buffers map[string][]value.Value
}

// NewWorker creates a Worker with the given reduction function and arity.
// arity<=0 is treated as 1.
func NewWorker(fn WorkerFn, arity int, downstream Node) *Worker {
	if arity < 1 {
		arity = 1
	}
	w := &Worker{fn: fn, arity: arity, buffers: make(map[string][]value.Value)}
	w.downstream.set(downstream)
	return w
}

func (w *Worker) OnValue(sv value.SymbolValue) {
	if w.stopped() {
		return
	}
	w.mu.Lock()
	buf := append(w.buffers[sv.Symbol], sv.Value)
	var fire []value.Value
	if len(buf) >= w.arity {
		fire = buf
		delete(w.buffers, sv.Symbol)
	} else {
		w.buffers[sv.Symbol] = buf
	}
	w.mu.Unlock()

	if fire == nil {
		return
	}
	if ds := w.downstream.get(); ds != nil {
		ds.OnValue(value.SymbolValue{Symbol: sv.Symbol, Value: w.fn(fire)})
	}
}

func (w *Worker) Shutdown() {
	if !w.beginShutdown() {
		return
	}
	w.downstream.clear()
	w.mu.Lock()
	w.buffers = nil
	w.mu.Unlock()
	w.finishShutdown()
}
