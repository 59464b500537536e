package nodes

import (
	"sync"
	"time"

	"github.com/ndrandal/gma-go/internal/pool"
	"github.com/ndrandal/gma-go/internal/value"
)

// Interval is a source node: after Start, it reposts itself to the pool so
// that child.OnValue(SymbolValue{"*", none}) fires every period. Downstream
// nodes must treat the wildcard symbol "*" as "tick every child", not a
// real symbol (spec.md §9). Shutdown stops scheduling further ticks; one
// already-scheduled tick may still fire once. Grounded on
// original_source/src/nodes/IntervalNode.cpp.
type Interval struct {
	lifecycle
	period time.Duration
	child  ref
	pool   *pool.Pool

	mu    sync.Mutex
	timer *time.Timer
}

// NewInterval creates an Interval that ticks child every period once
// Start is called.
func NewInterval(period time.Duration, child Node, p *pool.Pool) *Interval {
	iv := &Interval{period: period, pool: p}
	iv.child.set(child)
	return iv
}

// Start begins the repeating schedule. Call once, after the node is owned.
func (iv *Interval) Start() {
	iv.lifecycle.start()
	iv.lifecycle.markRunning()
	iv.scheduleNext()
}

func (iv *Interval) scheduleNext() {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if iv.stopped() {
		return
	}
	iv.timer = time.AfterFunc(iv.period, iv.fire)
}

func (iv *Interval) fire() {
	if iv.stopped() {
		return
	}
	iv.pool.Post(func() {
		if ds := iv.child.get(); ds != nil {
			ds.OnValue(value.SymbolValue{Symbol: value.WildcardSymbol, Value: value.None()})
		}
	})
	iv.scheduleNext()
}

// OnValue is a no-op: Interval is a source, it has no upstream input.
func (iv *Interval) OnValue(value.SymbolValue) {}

// Shutdown stops scheduling further ticks. An already-fired tick's posted
// pool task may still run once.
func (iv *Interval) Shutdown() {
	if !iv.beginShutdown() {
		return
	}
	iv.mu.Lock()
	if iv.timer != nil {
		iv.timer.Stop()
	}
	iv.mu.Unlock()
	iv.child.clear()
	iv.finishShutdown()
}
