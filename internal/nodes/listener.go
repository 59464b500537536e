package nodes

import (
	"sync/atomic"

	"github.com/ndrandal/gma-go/internal/dispatcher"
	"github.com/ndrandal/gma-go/internal/pool"
	"github.com/ndrandal/gma-go/internal/spsc"
	"github.com/ndrandal/gma-go/internal/value"
)

const defaultListenerQueueCap = 1024

// Dispatcher is the subset of *dispatcher.Dispatcher a Listener needs,
// named separately so tests can supply a fake without constructing a real
// one.
type Dispatcher interface {
	RegisterListener(symbol, field string, node dispatcher.Node)
	UnregisterListener(symbol, field string, node dispatcher.Node)
}

// Listener subscribes to every value the dispatcher posts for (symbol,
// field), buffers them in a bounded SPSC queue, and pumps them to
// downstream on the pool with drop-oldest backpressure. Grounded on
// original_source/src/nodes/ListenerNode.cpp.
//
// Construction does not subscribe; Start does, after the node is fully
// owned (spec.md §4.L).
type Listener struct {
	lifecycle
	symbol, field string
	downstream    ref
	pool          *pool.Pool
	dispatcher    Dispatcher
	queue         *spsc.Queue[value.SymbolValue]
	scheduled     atomic.Bool
	dropped       atomic.Uint64
}

// NewListener creates a Listener for (symbol, field). queueCap<=0 uses the
// spec default of 1024.
func NewListener(symbol, field string, downstream Node, p *pool.Pool, d Dispatcher, queueCap int) *Listener {
	if queueCap <= 0 {
		queueCap = defaultListenerQueueCap
	}
	l := &Listener{
		symbol:     symbol,
		field:      field,
		pool:       p,
		dispatcher: d,
		queue:      spsc.New[value.SymbolValue](queueCap),
	}
	l.downstream.set(downstream)
	return l
}

// Start registers the Listener with its dispatcher. Safe to call once.
func (l *Listener) Start() {
	l.lifecycle.start()
	l.dispatcher.RegisterListener(l.symbol, l.field, l)
	l.lifecycle.markRunning()
}

// Dropped returns the number of values dropped for backpressure so far.
func (l *Listener) Dropped() uint64 { return l.dropped.Load() }

// OnValue enqueues sv, dropping the oldest queued value ("drop-front") if
// the queue is full, then ensures exactly one pump task is in flight.
func (l *Listener) OnValue(sv value.SymbolValue) {
	if l.stopped() {
		return
	}
	if !l.queue.TryPush(sv) {
		l.queue.DropOne()
		l.queue.TryPush(sv)
		l.dropped.Add(1)
	}
	l.schedulePump()
}

func (l *Listener) schedulePump() {
	if l.scheduled.CompareAndSwap(false, true) {
		l.pool.Post(l.pump)
	}
}

// pump drains the queue to downstream. It is the Listener's single-flight
// worker: at most one pump task is ever in flight, enforced by the
// scheduled flag. After draining, it re-checks the queue before releasing
// the flag so a value pushed mid-drain is never stranded.
func (l *Listener) pump() {
	for {
		if l.stopped() {
			l.scheduled.Store(false)
			return
		}
		ds := l.downstream.get()
		l.queue.Drain(0, func(sv value.SymbolValue) {
			if ds != nil {
				ds.OnValue(sv)
			}
		})
		l.scheduled.Store(false)
		if l.queue.Empty() {
			return
		}
		if !l.scheduled.CompareAndSwap(false, true) {
			return // a concurrent OnValue already scheduled the next pump
		}
	}
}

// Shutdown unregisters from the dispatcher and releases the downstream
// reference. Idempotent.
func (l *Listener) Shutdown() {
	if !l.beginShutdown() {
		return
	}
	l.dispatcher.UnregisterListener(l.symbol, l.field, l)
	l.downstream.clear()
	l.finishShutdown()
}
