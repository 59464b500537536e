// Package nodes implements the processing-node runtime (spec.md §4.L): the
// graph of Listener, AtomicAccessor, Worker, Aggregate, SymbolSplit,
// Interval, and Responder nodes that make up a client's request tree.
// Grounded on original_source/include/gma/nodes/Node.hpp and the
// per-node sources under original_source/src/nodes/.
package nodes

import (
	"sync"
	"sync/atomic"

	"github.com/ndrandal/gma-go/internal/value"
)

// Node is a vertex in a request's processing graph: it receives values via
// OnValue and releases resources via Shutdown. Every concrete node in this
// package implements Node, and because dispatcher.Node requires only
// OnValue, any Node here also satisfies it without an explicit adapter.
type Node interface {
	OnValue(value.SymbolValue)
	Shutdown()
}

type nodeState int32

const (
	stateConstructed nodeState = iota
	stateStarted
	stateRunning
	stateShuttingDown
	stateStopped
)

// lifecycle implements the Constructed -> Started -> Running ->
// ShuttingDown -> Stopped progression spec.md §4.L assigns to every node,
// making Shutdown idempotent and safe to call from any goroutine.
type lifecycle struct {
	state atomic.Int32
}

func (l *lifecycle) start() {
	l.state.CompareAndSwap(int32(stateConstructed), int32(stateStarted))
}

func (l *lifecycle) markRunning() {
	l.state.CompareAndSwap(int32(stateStarted), int32(stateRunning))
}

func (l *lifecycle) stopped() bool {
	return nodeState(l.state.Load()) == stateStopped
}

// beginShutdown moves the node to ShuttingDown and reports whether this
// call won the race -- only the winner should run teardown logic, which is
// what makes repeated Shutdown calls idempotent.
func (l *lifecycle) beginShutdown() bool {
	for {
		cur := nodeState(l.state.Load())
		if cur == stateShuttingDown || cur == stateStopped {
			return false
		}
		if l.state.CompareAndSwap(int32(cur), int32(stateShuttingDown)) {
			return true
		}
	}
}

func (l *lifecycle) finishShutdown() {
	l.state.Store(int32(stateStopped))
}

// ref is a mutex-guarded reference to a downstream Node, released on
// Shutdown so the node becomes collectable and any
// in-flight post-shutdown delivery becomes a safe no-op rather than a race
// on a bare field.
type ref struct {
	mu   sync.RWMutex
	node Node
}

func (r *ref) set(n Node) {
	r.mu.Lock()
	r.node = n
	r.mu.Unlock()
}

func (r *ref) get() Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.node
}

func (r *ref) clear() { r.set(nil) }
