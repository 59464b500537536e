package nodes

import (
	"github.com/ndrandal/gma-go/internal/nsprovider"
	"github.com/ndrandal/gma-go/internal/store"
	"github.com/ndrandal/gma-go/internal/value"
)

// AtomicAccessor ignores its input value and, on every OnValue, tries the
// atomic store for (symbol, field); on a miss it consults the namespace
// provider registry (e.g. the ob.* provider). A store hit wins over a
// provider hit when both would apply (spec.md §8's testable property); a
// miss on both is silent. Grounded on
// original_source/src/nodes/AtomicAccessorNode.cpp.
type AtomicAccessor struct {
	lifecycle
	symbol, field string
	store         *store.Store
	providers     *nsprovider.Registry
	downstream    ref
}

// NewAtomicAccessor creates an accessor for (symbol, field). providers may
// be nil, in which case a store miss is simply silent.
func NewAtomicAccessor(symbol, field string, st *store.Store, providers *nsprovider.Registry, downstream Node) *AtomicAccessor {
	a := &AtomicAccessor{symbol: symbol, field: field, store: st, providers: providers}
	a.downstream.set(downstream)
	return a
}

func (a *AtomicAccessor) OnValue(value.SymbolValue) {
	if a.stopped() {
		return
	}
	if v, ok := a.store.Get(a.symbol, a.field); ok {
		a.forward(v)
		return
	}
	if a.providers == nil {
		return
	}
	if f, ok := a.providers.TryResolve(a.symbol, a.field); ok {
		a.forward(value.Float(f))
	}
}

func (a *AtomicAccessor) forward(v value.Value) {
	if ds := a.downstream.get(); ds != nil {
		ds.OnValue(value.SymbolValue{Symbol: a.symbol, Value: v})
	}
}

func (a *AtomicAccessor) Shutdown() {
	if !a.beginShutdown() {
		return
	}
	a.downstream.clear()
	a.finishShutdown()
}
