// Package obmanager implements the order-book manager: per-symbol
// tick-size/price validation, feed sequencing and staleness, a venue-key
// resolver, and delta publication layered on top of internal/orderbook.
// Grounded on original_source/include/gma/ob/OrderBookManager.hpp +
// src/ob/OrderBookManager.cpp.
package obmanager

import (
	"container/list"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ndrandal/gma-go/internal/orderbook"
)

const (
	defaultTickSize    = 1e-4
	defaultVenueLRUCap = 4096
)

// FeedState tracks per-symbol sequencing.
type FeedState struct {
	Seen    bool
	LastSeq uint64
	Epoch   uint32
	Stale   bool
}

// TOB is a top-of-book (price, size) pair.
type TOB struct {
	Price int64
	Size  uint64
}

// LevelDelta describes one touched aggregated level.
type LevelDelta struct {
	Side       orderbook.Side
	Price      int64
	TotalSize  uint64
	OrderCount uint32
	Removed    bool
}

// BookDelta is published to subscribers after a successful mutation.
type BookDelta struct {
	Symbol string
	Seq    uint64 // per-symbol monotonic publication counter, distinct from feed seq
	Levels []LevelDelta
	Bid    *TOB
	Ask    *TOB
}

// Counters are process-wide mutation counters.
type Counters struct {
	Adds             atomic.Uint64
	Updates          atomic.Uint64
	Deletes          atomic.Uint64
	Trades           atomic.Uint64
	Snapshots        atomic.Uint64
	Summaries        atomic.Uint64
	Malformed        atomic.Uint64
	StaleDrops       atomic.Uint64
	SeqGaps          atomic.Uint64
	StaleTransitions atomic.Uint64
	DeltasPublished  atomic.Uint64
}

// CountersSnapshot is a point-in-time read of Counters.
type CountersSnapshot struct {
	Adds, Updates, Deletes, Trades, Snapshots, Summaries, Malformed,
	StaleDrops, SeqGaps, StaleTransitions, DeltasPublished uint64
}

func (c *Counters) snapshot() CountersSnapshot {
	return CountersSnapshot{
		Adds:             c.Adds.Load(),
		Updates:          c.Updates.Load(),
		Deletes:          c.Deletes.Load(),
		Trades:           c.Trades.Load(),
		Snapshots:        c.Snapshots.Load(),
		Summaries:        c.Summaries.Load(),
		Malformed:        c.Malformed.Load(),
		StaleDrops:       c.StaleDrops.Load(),
		SeqGaps:          c.SeqGaps.Load(),
		StaleTransitions: c.StaleTransitions.Load(),
		DeltasPublished:  c.DeltasPublished.Load(),
	}
}

type venueEntry struct {
	venueKey string
	key      orderbook.OrderKey
}

// venueLRU is a bounded LRU mapping an opaque venue identifier to an
// OrderKey, one per symbol.
type venueLRU struct {
	mu       sync.Mutex
	cap      int
	ll       *list.List
	elements map[string]*list.Element
}

func newVenueLRU(capacity int) *venueLRU {
	if capacity <= 0 {
		capacity = defaultVenueLRUCap
	}
	return &venueLRU{cap: capacity, ll: list.New(), elements: make(map[string]*list.Element)}
}

func (v *venueLRU) put(venueKey string, key orderbook.OrderKey) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if elem, ok := v.elements[venueKey]; ok {
		elem.Value.(*venueEntry).key = key
		v.ll.MoveToFront(elem)
		return
	}
	elem := v.ll.PushFront(&venueEntry{venueKey: venueKey, key: key})
	v.elements[venueKey] = elem
	if v.ll.Len() > v.cap {
		oldest := v.ll.Back()
		if oldest != nil {
			v.ll.Remove(oldest)
			delete(v.elements, oldest.Value.(*venueEntry).venueKey)
		}
	}
}

func (v *venueLRU) get(venueKey string) (orderbook.OrderKey, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	elem, ok := v.elements[venueKey]
	if !ok {
		return orderbook.OrderKey{}, false
	}
	v.ll.MoveToFront(elem)
	return elem.Value.(*venueEntry).key, true
}

func (v *venueLRU) delete(venueKey string) (orderbook.OrderKey, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	elem, ok := v.elements[venueKey]
	if !ok {
		return orderbook.OrderKey{}, false
	}
	v.ll.Remove(elem)
	delete(v.elements, venueKey)
	return elem.Value.(*venueEntry).key, true
}

// Manager owns one orderbook.Book per symbol plus the sequencing, tick
// size, venue-key, and publication state around it. Each concern has its
// own lock to avoid cross-contention between symbols (spec.md §5).
type Manager struct {
	Counters Counters

	booksMu sync.RWMutex
	books   map[string]*orderbook.Book

	tickMu sync.RWMutex
	ticks  map[string]float64

	feedMu sync.Mutex
	feed   map[string]*FeedState

	resolverMu sync.Mutex
	resolvers  map[string]*venueLRU
	venueLRUCap int

	pubMu  sync.Mutex
	pubSeq map[string]uint64

	subMu sync.Mutex
	subs  []func(BookDelta)

	snapshotMu        sync.Mutex
	requestSnapshot   func(symbol string)

	lastChangeMu sync.Mutex
	lastChange   map[string]int64
}

// New creates an empty Manager. venueLRUCap<=0 uses the spec default (4096).
func New(venueLRUCap int) *Manager {
	if venueLRUCap <= 0 {
		venueLRUCap = defaultVenueLRUCap
	}
	return &Manager{
		books:       make(map[string]*orderbook.Book),
		ticks:       make(map[string]float64),
		feed:        make(map[string]*FeedState),
		resolvers:   make(map[string]*venueLRU),
		venueLRUCap: venueLRUCap,
		pubSeq:      make(map[string]uint64),
		lastChange:  make(map[string]int64),
	}
}

// SetSnapshotRequester installs the callback invoked when a sequence gap is
// detected (nil disables the callback).
func (m *Manager) SetSnapshotRequester(fn func(symbol string)) {
	m.snapshotMu.Lock()
	defer m.snapshotMu.Unlock()
	m.requestSnapshot = fn
}

// Subscribe registers fn to receive every published BookDelta. The returned
// func unsubscribes it.
func (m *Manager) Subscribe(fn func(BookDelta)) func() {
	m.subMu.Lock()
	m.subs = append(m.subs, fn)
	idx := len(m.subs) - 1
	m.subMu.Unlock()
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if idx < len(m.subs) {
			m.subs[idx] = nil
		}
	}
}

func (m *Manager) touchChange(symbol string) {
	m.lastChangeMu.Lock()
	m.lastChange[symbol] = time.Now().UnixMilli()
	m.lastChangeMu.Unlock()
}

// LastChangeMs returns the Unix-millisecond timestamp of symbol's most
// recently published delta, or 0 if none has published yet.
func (m *Manager) LastChangeMs(symbol string) int64 {
	m.lastChangeMu.Lock()
	defer m.lastChangeMu.Unlock()
	return m.lastChange[symbol]
}

// FeedSnapshot is a point-in-time read of a symbol's sequencing state, used
// by obkey meta.* queries.
type FeedSnapshot struct {
	Seq   uint64
	Epoch uint32
	Stale bool
}

// Feed returns symbol's current sequencing state.
func (m *Manager) Feed(symbol string) FeedSnapshot {
	m.feedMu.Lock()
	defer m.feedMu.Unlock()
	fs := m.feedState(symbol)
	return FeedSnapshot{Seq: fs.LastSeq, Epoch: fs.Epoch, Stale: fs.Stale}
}

func (m *Manager) publish(d BookDelta) {
	m.touchChange(d.Symbol)
	m.subMu.Lock()
	subs := make([]func(BookDelta), len(m.subs))
	copy(subs, m.subs)
	m.subMu.Unlock()
	m.Counters.DeltasPublished.Add(1)
	for _, fn := range subs {
		if fn != nil {
			fn(d)
		}
	}
}

// Book returns (creating if necessary) the symbol's order book.
func (m *Manager) Book(symbol string) *orderbook.Book {
	m.booksMu.RLock()
	b, ok := m.books[symbol]
	m.booksMu.RUnlock()
	if ok {
		return b
	}
	m.booksMu.Lock()
	defer m.booksMu.Unlock()
	if b, ok := m.books[symbol]; ok {
		return b
	}
	b = orderbook.New()
	m.books[symbol] = b
	return b
}

// Symbols returns every symbol with a live order book, for diagnostics.
func (m *Manager) Symbols() []string {
	m.booksMu.RLock()
	defer m.booksMu.RUnlock()
	out := make([]string, 0, len(m.books))
	for s := range m.books {
		out = append(out, s)
	}
	return out
}

// SetTickSize overrides symbol's tick size.
func (m *Manager) SetTickSize(symbol string, tick float64) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	m.ticks[symbol] = tick
}

// TickSize returns symbol's tick size, defaulting to 1e-4.
func (m *Manager) TickSize(symbol string) float64 {
	m.tickMu.RLock()
	defer m.tickMu.RUnlock()
	if t, ok := m.ticks[symbol]; ok {
		return t
	}
	return defaultTickSize
}

// ToTicks quantizes a decimal price to an integer tick count.
func (m *Manager) ToTicks(symbol string, px float64) int64 {
	return int64(math.Round(px / m.TickSize(symbol)))
}

// ToDouble converts an integer tick count back to a decimal price.
func (m *Manager) ToDouble(symbol string, ticks int64) float64 {
	return float64(ticks) * m.TickSize(symbol)
}

// ValidatePrice reports whether px is a strictly positive, tick-aligned
// price for symbol.
func (m *Manager) ValidatePrice(symbol string, px float64) bool {
	if px <= 0 {
		return false
	}
	tick := m.TickSize(symbol)
	ratio := px / tick
	return math.Abs(ratio-math.Round(ratio)) < 1e-8
}

func (m *Manager) feedState(symbol string) *FeedState {
	fs, ok := m.feed[symbol]
	if !ok {
		fs = &FeedState{}
		m.feed[symbol] = fs
	}
	return fs
}

// IsStale reports whether symbol's feed is currently stale.
func (m *Manager) IsStale(symbol string) bool {
	m.feedMu.Lock()
	defer m.feedMu.Unlock()
	return m.feedState(symbol).Stale
}

// OnSeq advances symbol's feed sequence. The first seq seen is always
// accepted. A gap (seq != lastSeq+1) marks the symbol stale, requests a
// snapshot if a requester is installed, and returns false.
func (m *Manager) OnSeq(symbol string, seq uint64) bool {
	m.feedMu.Lock()
	fs := m.feedState(symbol)
	if !fs.Seen {
		fs.Seen = true
		fs.LastSeq = seq
		m.feedMu.Unlock()
		return true
	}
	if seq == fs.LastSeq+1 {
		fs.LastSeq = seq
		m.feedMu.Unlock()
		return true
	}
	wasStale := fs.Stale
	fs.Stale = true
	m.feedMu.Unlock()

	m.Counters.SeqGaps.Add(1)
	if !wasStale {
		m.Counters.StaleTransitions.Add(1)
	}
	m.snapshotMu.Lock()
	req := m.requestSnapshot
	m.snapshotMu.Unlock()
	if req != nil {
		req(symbol)
	}
	return false
}

// OnReset assigns a new epoch, clears the sequence counter, and marks
// symbol stale.
func (m *Manager) OnReset(symbol string, newEpoch uint32) {
	m.feedMu.Lock()
	defer m.feedMu.Unlock()
	fs := m.feedState(symbol)
	fs.Epoch = newEpoch
	fs.LastSeq = 0
	fs.Seen = false
	fs.Stale = true
}

// checkGate reports whether a mutation on symbol at feed seq should
// proceed. It folds OnSeq's gap detection together with the already-stale
// check so every mutator shares the same drop accounting.
func (m *Manager) checkGate(symbol string, seq uint64) bool {
	m.feedMu.Lock()
	alreadyStale := m.feedState(symbol).Stale
	m.feedMu.Unlock()
	if alreadyStale {
		m.Counters.StaleDrops.Add(1)
		return false
	}
	if !m.OnSeq(symbol, seq) {
		return false
	}
	return true
}

func (m *Manager) resolver(symbol string) *venueLRU {
	m.resolverMu.Lock()
	defer m.resolverMu.Unlock()
	r, ok := m.resolvers[symbol]
	if !ok {
		r = newVenueLRU(m.venueLRUCap)
		m.resolvers[symbol] = r
	}
	return r
}

func (m *Manager) nextPubSeq(symbol string) uint64 {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	m.pubSeq[symbol]++
	return m.pubSeq[symbol]
}

func tob(b *orderbook.Book, side orderbook.Side) *TOB {
	var price int64
	var size uint64
	var ok bool
	if side == orderbook.SideBid {
		price, ok = b.BestBid()
		if ok {
			size, _ = b.BestBidSize()
		}
	} else {
		price, ok = b.BestAsk()
		if ok {
			size, _ = b.BestAskSize()
		}
	}
	if !ok {
		return nil
	}
	return &TOB{Price: price, Size: size}
}

func levelDelta(b *orderbook.Book, side orderbook.Side, price int64) LevelDelta {
	size, ok := b.LevelSize(side, price)
	if !ok {
		return LevelDelta{Side: side, Price: price, Removed: true}
	}
	return LevelDelta{Side: side, Price: price, TotalSize: size}
}

// touched runs mutate, then diffs the before/after TOB on both sides plus
// the (side,price) level actually touched, publishing a BookDelta when
// anything changed.
func (m *Manager) touched(symbol string, side orderbook.Side, price int64, mutate func() bool) bool {
	b := m.Book(symbol)
	beforeBid, beforeAsk := tob(b, orderbook.SideBid), tob(b, orderbook.SideAsk)
	beforeLevel := levelDelta(b, side, price)

	if !mutate() {
		return false
	}

	afterBid, afterAsk := tob(b, orderbook.SideBid), tob(b, orderbook.SideAsk)
	afterLevel := levelDelta(b, side, price)

	delta := BookDelta{Symbol: symbol, Seq: m.nextPubSeq(symbol)}
	if !tobEqual(beforeBid, afterBid) {
		delta.Bid = afterBid
	}
	if !tobEqual(beforeAsk, afterAsk) {
		delta.Ask = afterAsk
	}
	if beforeLevel != afterLevel {
		delta.Levels = append(delta.Levels, afterLevel)
	}
	if delta.Bid != nil || delta.Ask != nil || len(delta.Levels) > 0 {
		m.publish(delta)
	}
	return true
}

func tobEqual(a, b *TOB) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// OnAdd validates and inserts a resting order at seq, dropping malformed or
// stale events.
func (m *Manager) OnAdd(symbol string, seq uint64, key orderbook.OrderKey, side orderbook.Side, px float64, size uint64, priority uint64) bool {
	if !m.ValidatePrice(symbol, px) {
		m.Counters.Malformed.Add(1)
		return false
	}
	if !m.checkGate(symbol, seq) {
		return false
	}
	ticks := m.ToTicks(symbol, px)
	ok := m.touched(symbol, side, ticks, func() bool {
		m.Book(symbol).Add(orderbook.Order{Key: key, Side: side, Price: ticks, Size: size, Priority: priority})
		return true
	})
	if ok {
		m.Counters.Adds.Add(1)
	}
	return ok
}

// OnAddWithVenueKey is OnAdd plus recording the venue-key -> OrderKey
// mapping for later update/delete-by-venue-key resolution.
func (m *Manager) OnAddWithVenueKey(symbol string, seq uint64, venueKey string, key orderbook.OrderKey, side orderbook.Side, px float64, size uint64, priority uint64) bool {
	if m.OnAdd(symbol, seq, key, side, px, size, priority) {
		m.resolver(symbol).put(venueKey, key)
		return true
	}
	return false
}

// OnUpdate applies a price/size change to key at seq.
func (m *Manager) OnUpdate(symbol string, seq uint64, key orderbook.OrderKey, newPrice *float64, newSize *uint64) bool {
	if !m.checkGate(symbol, seq) {
		return false
	}
	b := m.Book(symbol)
	var ticks *int64
	if newPrice != nil {
		if !m.ValidatePrice(symbol, *newPrice) {
			m.Counters.Malformed.Add(1)
			return false
		}
		t := m.ToTicks(symbol, *newPrice)
		ticks = &t
	}
	side, price, ok := locatorSideAndPrice(b, key, ticks)
	if !ok {
		return false
	}
	updated := m.touched(symbol, side, price, func() bool {
		return b.Update(key, ticks, newSize)
	})
	if updated {
		m.Counters.Updates.Add(1)
	}
	return updated
}

// OnUpdateByVenueKey resolves venueKey through the symbol's LRU and applies
// OnUpdate.
func (m *Manager) OnUpdateByVenueKey(symbol string, seq uint64, venueKey string, newPrice *float64, newSize *uint64) bool {
	key, ok := m.resolver(symbol).get(venueKey)
	if !ok {
		return false
	}
	return m.OnUpdate(symbol, seq, key, newPrice, newSize)
}

// OnDelete cancels key at seq.
func (m *Manager) OnDelete(symbol string, seq uint64, key orderbook.OrderKey) bool {
	if !m.checkGate(symbol, seq) {
		return false
	}
	b := m.Book(symbol)
	side, price, ok := locatorSideAndPrice(b, key, nil)
	if !ok {
		return false
	}
	deleted := m.touched(symbol, side, price, func() bool {
		return b.Delete(key)
	})
	if deleted {
		m.Counters.Deletes.Add(1)
	}
	return deleted
}

// OnDeleteByVenueKey resolves venueKey and deletes it, forgetting the
// mapping on success.
func (m *Manager) OnDeleteByVenueKey(symbol string, seq uint64, venueKey string) bool {
	key, ok := m.resolver(symbol).delete(venueKey)
	if !ok {
		return false
	}
	return m.OnDelete(symbol, seq, key)
}

// OnTrade applies a print at px for qty at seq, inferring the passive side
// when aggressor is AggressorUnknown.
func (m *Manager) OnTrade(symbol string, seq uint64, px float64, qty uint64, aggressor orderbook.Aggressor) uint64 {
	if !m.ValidatePrice(symbol, px) {
		m.Counters.Malformed.Add(1)
		return 0
	}
	if !m.checkGate(symbol, seq) {
		return 0
	}
	b := m.Book(symbol)
	ticks := m.ToTicks(symbol, px)
	side := orderbook.SideBid
	if aggressor == orderbook.AggressorBuy {
		side = orderbook.SideAsk
	}
	var consumed uint64
	m.touched(symbol, side, ticks, func() bool {
		consumed = b.Trade(ticks, qty, aggressor)
		return true
	})
	if consumed > 0 {
		m.Counters.Trades.Add(1)
	}
	return consumed
}

// OnLevelSummary upserts a single aggregated level directly (L2 feeds).
func (m *Manager) OnLevelSummary(symbol string, seq uint64, side orderbook.Side, px float64, totalSize uint64, orderCount uint32) bool {
	if totalSize > 0 && !m.ValidatePrice(symbol, px) {
		m.Counters.Malformed.Add(1)
		return false
	}
	if !m.checkGate(symbol, seq) {
		return false
	}
	b := m.Book(symbol)
	ticks := m.ToTicks(symbol, px)
	ok := m.touched(symbol, side, ticks, func() bool {
		b.LevelSummary(side, ticks, totalSize, orderCount)
		return true
	})
	if ok {
		m.Counters.Summaries.Add(1)
	}
	return ok
}

// OnSnapshotAggregated atomically replaces one side's aggregated ladder.
// If snapshotSeq is non-nil, it becomes the new lastSeq and staleness is
// cleared; otherwise only staleness is cleared.
func (m *Manager) OnSnapshotAggregated(symbol string, side orderbook.Side, levels []orderbook.AggLevel, snapshotSeq *uint64) {
	m.Book(symbol).SnapshotAggregated(side, levels)
	m.clearStale(symbol, snapshotSeq)
	m.Counters.Snapshots.Add(1)
}

// OnSnapshotPerOrder atomically replaces one side's per-order ladder.
func (m *Manager) OnSnapshotPerOrder(symbol string, side orderbook.Side, orders []orderbook.Order, snapshotSeq *uint64) {
	m.Book(symbol).SnapshotPerOrder(side, orders)
	m.clearStale(symbol, snapshotSeq)
	m.Counters.Snapshots.Add(1)
}

func (m *Manager) clearStale(symbol string, snapshotSeq *uint64) {
	m.feedMu.Lock()
	fs := m.feedState(symbol)
	fs.Stale = false
	if snapshotSeq != nil {
		fs.LastSeq = *snapshotSeq
		fs.Seen = true
	}
	m.feedMu.Unlock()
}

// MetricsSnapshot returns a point-in-time read of all counters.
func (m *Manager) MetricsSnapshot() CountersSnapshot {
	return m.Counters.snapshot()
}

// locatorSideAndPrice finds the current side and (old, unless priceOverride
// given) price for key, needed so callers can pass the right arguments to
// touched before the mutation actually runs. Returns ok=false if key is
// unknown -- callers should treat that as "drop, do not publish".
func locatorSideAndPrice(b *orderbook.Book, key orderbook.OrderKey, priceOverride *int64) (orderbook.Side, int64, bool) {
	side, price, ok := b.Locate(key)
	if !ok {
		return 0, 0, false
	}
	if priceOverride != nil {
		return side, *priceOverride, true
	}
	return side, price, true
}
