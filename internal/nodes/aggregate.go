package nodes

import (
	"sync"

	"github.com/ndrandal/gma-go/internal/value"
)

// Aggregate buffers up to arity values per symbol. Once the buffer reaches
// arity, it replays the buffered values individually to parent, then resets
// that symbol's buffer. Grounded on
// original_source/src/nodes/AggregateNode.cpp.
type Aggregate struct {
	lifecycle
	arity  int
	parent ref

	mu      sync.Mutex
	buffers map[string][]value.SymbolValue
}

// NewAggregate creates an Aggregate with the given arity. arity<=0 is
// treated as 1.
func NewAggregate(arity int, parent Node) *Aggregate {
	if arity < 1 {
		arity = 1
	}
	a := &Aggregate{arity: arity, buffers: make(map[string][]value.SymbolValue)}
	a.parent.set(parent)
	return a
}

func (a *Aggregate) OnValue(sv value.SymbolValue) {
	if a.stopped() {
		return
	}
	a.mu.Lock()
	buf := append(a.buffers[sv.Symbol], sv)
	var flush []value.SymbolValue
	if len(buf) >= a.arity {
		flush = buf
		delete(a.buffers, sv.Symbol)
	} else {
		a.buffers[sv.Symbol] = buf
	}
	a.mu.Unlock()

	if flush == nil {
		return
	}
	ds := a.parent.get()
	if ds == nil {
		return
	}
	for _, v := range flush {
		ds.OnValue(v)
	}
}

func (a *Aggregate) Shutdown() {
	if !a.beginShutdown() {
		return
	}
	a.parent.clear()
	a.mu.Lock()
	a.buffers = nil
	a.mu.Unlock()
	a.finishShutdown()
}
