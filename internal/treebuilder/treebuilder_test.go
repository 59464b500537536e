package treebuilder

import (
	"strings"
	"sync"
	"testing"

	"github.com/ndrandal/gma-go/internal/dispatcher"
	"github.com/ndrandal/gma-go/internal/nsprovider"
	"github.com/ndrandal/gma-go/internal/pool"
	"github.com/ndrandal/gma-go/internal/store"
	"github.com/ndrandal/gma-go/internal/value"
)

func TestValidateRejectsEmptyID(t *testing.T) {
	err := Validate(Request{ID: "", Tree: NodeSpec{Type: "listener", Symbol: "AAPL", Field: "price"}})
	if err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestValidateRejectsUnknownType(t *testing.T) {
	err := Validate(Request{ID: "r1", Tree: NodeSpec{Type: "bogus"}})
	if err == nil || !strings.Contains(err.Error(), "unknown node type") {
		t.Fatalf("expected unknown node type error, got %v", err)
	}
}

func TestValidateRejectsExcessiveDepth(t *testing.T) {
	leaf := NodeSpec{Type: "aggregate", Arity: 1}
	cur := leaf
	for i := 0; i < maxDepth+5; i++ {
		cur = NodeSpec{Type: "aggregate", Arity: 1, Pipeline: []NodeSpec{cur}}
	}
	err := Validate(Request{ID: "r1", Tree: cur})
	if err == nil {
		t.Fatal("expected max-depth error")
	}
}

func TestValidateAcceptsWellFormedTree(t *testing.T) {
	req := Request{
		ID: "r1",
		Tree: NodeSpec{
			Type: "listener", Symbol: "AAPL", Field: "price",
			Pipeline: []NodeSpec{{Type: "worker", Fn: "mean", Arity: 3}},
		},
	}
	if err := Validate(req); err != nil {
		t.Fatalf("expected valid tree, got %v", err)
	}
}

type fakeDispatcher struct {
	mu  sync.Mutex
	reg map[string]dispatcher.Node
}

func newFakeDispatcher() *fakeDispatcher { return &fakeDispatcher{reg: make(map[string]dispatcher.Node)} }

func (f *fakeDispatcher) RegisterListener(symbol, field string, node dispatcher.Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reg[symbol+"|"+field] = node
}
func (f *fakeDispatcher) UnregisterListener(symbol, field string, node dispatcher.Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reg, symbol+"|"+field)
}

type terminalCollector struct {
	mu   sync.Mutex
	vals []value.SymbolValue
}

func (c *terminalCollector) OnValue(sv value.SymbolValue) {
	c.mu.Lock()
	c.vals = append(c.vals, sv)
	c.mu.Unlock()
}
func (c *terminalCollector) Shutdown() {}

func TestBuildSimpleListenerChain(t *testing.T) {
	p := pool.New(1, nil)
	defer p.Shutdown()
	d := newFakeDispatcher()
	term := &terminalCollector{}

	deps := Deps{Pool: p, Dispatcher: d, Store: store.New(), Providers: nsprovider.New()}
	root, err := Build(NodeSpec{Type: "listener", Symbol: "AAPL", Field: "price"}, deps, term)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	defer root.Shutdown()

	if _, ok := d.reg["AAPL|price"]; !ok {
		t.Fatal("expected listener registered with dispatcher")
	}
	root.OnValue(value.SymbolValue{Symbol: "AAPL", Value: value.Float(1)})
	p.Drain()

	term.mu.Lock()
	defer term.mu.Unlock()
	if len(term.vals) != 1 {
		t.Fatalf("expected 1 value to reach terminal, got %d", len(term.vals))
	}
}

func TestBuildUnknownWorkerFnFails(t *testing.T) {
	p := pool.New(1, nil)
	defer p.Shutdown()
	d := newFakeDispatcher()
	term := &terminalCollector{}
	deps := Deps{Pool: p, Dispatcher: d, Store: store.New(), Providers: nsprovider.New()}

	_, err := Build(NodeSpec{
		Type: "listener", Symbol: "AAPL", Field: "price",
		Pipeline: []NodeSpec{{Type: "worker", Fn: "nope"}},
	}, deps, term)
	if err == nil {
		t.Fatal("expected error for unknown worker fn")
	}
	if _, ok := d.reg["AAPL|price"]; ok {
		t.Fatal("expected partially-built listener to be unwound (unregistered) on failure")
	}
}

func TestBuildSymbolSplitBindsRuntimeSymbol(t *testing.T) {
	p := pool.New(1, nil)
	defer p.Shutdown()
	d := newFakeDispatcher()
	term := &terminalCollector{}
	deps := Deps{Pool: p, Dispatcher: d, Store: store.New(), Providers: nsprovider.New()}

	spec := NodeSpec{
		Type: "symbolsplit",
		Child: &NodeSpec{
			Type:  "accessor",
			Field: "sma_5",
		},
	}
	root, err := Build(spec, deps, term)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer root.Shutdown()

	deps.Store.Set("AAPL", "sma_5", value.Float(100))
	root.OnValue(value.SymbolValue{Symbol: "AAPL"})

	term.mu.Lock()
	defer term.mu.Unlock()
	if len(term.vals) != 1 || term.vals[0].Symbol != "AAPL" {
		t.Fatalf("expected accessor bound to runtime symbol AAPL, got %+v", term.vals)
	}
}
