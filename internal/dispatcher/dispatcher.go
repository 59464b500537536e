// Package dispatcher implements the market dispatcher (§4.K): it fans out
// ticks to per-(symbol,field) listener sets, maintains bounded histories,
// and drives the atomic recompute loop. Grounded on
// original_source/src/core/MarketDispatcher.cpp.
package dispatcher

import (
	"log/slog"
	"sync"

	"github.com/ndrandal/gma-go/internal/atomics"
	"github.com/ndrandal/gma-go/internal/history"
	"github.com/ndrandal/gma-go/internal/pool"
	"github.com/ndrandal/gma-go/internal/store"
	"github.com/ndrandal/gma-go/internal/taregistry"
	"github.com/ndrandal/gma-go/internal/value"
)

// Node is anything that can receive a fanned-out value. internal/nodes'
// Listener implements this; dispatcher only depends on the interface to
// avoid an import cycle.
type Node interface {
	OnValue(value.SymbolValue)
}

// Tick is one inbound market-data sample: a symbol plus a named-field
// payload. Non-numeric fields are tolerated and simply skipped.
type Tick struct {
	Symbol string
	Fields map[string]any
}

// ToFloat coerces a payload field value to float64, the shape on_tick
// expects every field to carry.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Dispatcher is the process-wide tick fan-out engine.
type Dispatcher struct {
	mu        sync.Mutex // guards listeners + history append, per spec.md §4.K
	listeners map[string]map[string][]Node

	fields *history.FieldStore
	ticks  *history.Store

	taregistry *taregistry.Registry
	atomics    *atomics.Computer
	store      *store.Store
	pool       *pool.Pool

	priceField, volumeField string

	Log *slog.Logger
}

// Config configures a Dispatcher. Zero values fall back to spec defaults:
// HistoryMax=200, PriceField="price", VolumeField="volume".
type Config struct {
	HistoryMax  int
	PriceField  string
	VolumeField string
	Periods     atomics.Periods
	Pool        *pool.Pool
	Store       *store.Store
	TARegistry  *taregistry.Registry
	Log         *slog.Logger
}

// New creates a Dispatcher wired to the given collaborators.
func New(cfg Config) *Dispatcher {
	if cfg.HistoryMax <= 0 {
		cfg.HistoryMax = 200
	}
	if cfg.PriceField == "" {
		cfg.PriceField = "price"
	}
	if cfg.VolumeField == "" {
		cfg.VolumeField = "volume"
	}
	if cfg.Store == nil {
		cfg.Store = store.New()
	}
	if cfg.TARegistry == nil {
		cfg.TARegistry = taregistry.New()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	periods := cfg.Periods
	if periods.SMA == nil && periods.EMA == nil {
		periods = atomics.DefaultPeriods()
	}
	return &Dispatcher{
		listeners:   make(map[string]map[string][]Node),
		fields:      history.NewFieldStore(cfg.HistoryMax),
		ticks:       history.New(cfg.HistoryMax),
		taregistry:  cfg.TARegistry,
		atomics:     atomics.New(periods),
		store:       cfg.Store,
		pool:        cfg.Pool,
		priceField:  cfg.PriceField,
		volumeField: cfg.VolumeField,
		Log:         cfg.Log,
	}
}

// Store returns the underlying atomic store, so other components (e.g. an
// HTTP diagnostics surface) can read it without threading it separately.
func (d *Dispatcher) Store() *store.Store { return d.store }

// RegisterListener subscribes node to every value posted for (symbol,field).
func (d *Dispatcher) RegisterListener(symbol, field string, node Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	bySymbol, ok := d.listeners[symbol]
	if !ok {
		bySymbol = make(map[string][]Node)
		d.listeners[symbol] = bySymbol
	}
	bySymbol[field] = append(bySymbol[field], node)
}

// UnregisterListener removes node from (symbol,field), pruning now-empty
// maps.
func (d *Dispatcher) UnregisterListener(symbol, field string, node Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	bySymbol, ok := d.listeners[symbol]
	if !ok {
		return
	}
	nodes, ok := bySymbol[field]
	if !ok {
		return
	}
	out := nodes[:0]
	for _, n := range nodes {
		if n != node {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		delete(bySymbol, field)
	} else {
		bySymbol[field] = out
	}
	if len(bySymbol) == 0 {
		delete(d.listeners, symbol)
	}
}

type postTask struct {
	node Node
	val  value.SymbolValue
}

// OnTick updates histories, recomputes atomics, and fans out both the raw
// field values and their derived results, all without invoking any Node
// while holding the dispatcher's lock.
func (d *Dispatcher) OnTick(tick Tick) {
	var posts []postTask

	d.mu.Lock()
	bySymbol := d.listeners[tick.Symbol]
	for field, raw := range tick.Fields {
		f, ok := ToFloat(raw)
		if !ok {
			d.Log.Warn("dispatcher: non-numeric field skipped", "symbol", tick.Symbol, "field", field)
			continue
		}
		histCopy := d.fields.PushAndCopy(tick.Symbol, field, f)
		for _, n := range bySymbol[field] {
			posts = append(posts, postTask{n, value.SymbolValue{Symbol: tick.Symbol, Value: value.Float(f)}})
		}
		posts = append(posts, d.computeAndStoreFunctionsLocked(tick.Symbol, field, histCopy)...)

		if field == d.priceField {
			vol, _ := d.fields.Latest(tick.Symbol, d.volumeField)
			d.ticks.Push(tick.Symbol, history.TickEntry{Price: f, Volume: vol})
			posts = append(posts, d.computeAndStoreAtomicsLocked(tick.Symbol)...)
		}
	}
	d.mu.Unlock()

	for _, p := range posts {
		node, val := p.node, p.val
		if d.pool != nil {
			d.pool.Post(func() { node.OnValue(val) })
		} else {
			node.OnValue(val)
		}
	}
}

// computeAndStoreFunctionsLocked evaluates the generic function registry
// (§4.E) over field's history and stores/fans out each result. Caller must
// hold d.mu.
func (d *Dispatcher) computeAndStoreFunctionsLocked(symbol, field string, hist []float64) []postTask {
	var posts []postTask
	for _, named := range d.taregistry.Snapshot() {
		result := named.Fn(hist)
		d.store.Set(symbol, named.Name, value.Float(result))
		for _, n := range d.listeners[symbol][named.Name] {
			posts = append(posts, postTask{n, value.SymbolValue{Symbol: symbol, Value: value.Float(result)}})
		}
	}
	return posts
}

// computeAndStoreAtomicsLocked evaluates the built-in indicator catalogue
// (§4.F) over the symbol's TickEntry history and stores/fans out each
// result. Caller must hold d.mu.
func (d *Dispatcher) computeAndStoreAtomicsLocked(symbol string) []postTask {
	var posts []postTask
	hist := d.ticks.Copy(symbol)
	for _, fv := range d.atomics.Compute(symbol, hist) {
		d.store.Set(symbol, fv.Field, fv.Value)
		for _, n := range d.listeners[symbol][fv.Field] {
			posts = append(posts, postTask{n, value.SymbolValue{Symbol: symbol, Value: fv.Value}})
		}
	}
	return posts
}
