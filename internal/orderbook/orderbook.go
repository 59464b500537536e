// Package orderbook implements the per-symbol order book: a per-order
// ladder, a derived aggregated ladder, and a locator index, grounded on
// original_source/include/gma/book/OrderBook.hpp + src/book/OrderBook.cpp.
// Only the scoped (OrderKey) mutation API exists -- spec.md §9 names the
// scoped form as canonical over the source's legacy unscoped variant.
package orderbook

import (
	"container/list"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Side of the book.
type Side int

const (
	SideBid Side = iota
	SideAsk
)

// Aggressor identifies which side initiated a trade.
type Aggressor int

const (
	AggressorUnknown Aggressor = iota
	AggressorBuy
	AggressorSell
)

// OrderKey uniquely identifies a live order across feeds and session resets:
// uniqueness is over the composite key, not the raw id (spec.md §3).
type OrderKey struct {
	ID        uint64
	FeedID    uint32
	Epoch     uint32
	Synthetic bool
}

// Order is one resting order.
type Order struct {
	Key      OrderKey
	Side     Side
	Price    int64 // integer tick count
	Size     uint64
	Priority uint64
}

var (
	// ErrUnknownKey is returned when an operation references a key not
	// currently present in the book.
	ErrUnknownKey = errors.New("orderbook: unknown key")
	// ErrInvariant is returned by CheckInvariants.
	ErrInvariant = errors.New("orderbook: invariant violated")
)

type locatorEntry struct {
	side  Side
	price int64
	elem  *list.Element // into the per-order level's list
}

type perOrderLevel struct {
	price     int64
	orders    *list.List // of *Order, insertion/priority order preserved
	totalSize uint64
}

// AggLevel is one level of the aggregated ladder.
type AggLevel struct {
	Price      int64
	TotalSize  uint64
	OrderCount uint32
}

// Book is a single symbol's order book. All mutations take the book's single
// exclusive lock (spec.md §4.G).
type Book struct {
	mu sync.Mutex

	bidPer map[int64]*perOrderLevel
	askPer map[int64]*perOrderLevel

	bidAgg []*AggLevel // sorted descending by Price
	askAgg []*AggLevel // sorted ascending by Price

	locator map[OrderKey]*locatorEntry

	nextSynthetic map[uint64]uint64 // keyed by feedID<<32|epoch, starts at 1
}

// New creates an empty Book.
func New() *Book {
	return &Book{
		bidPer:        make(map[int64]*perOrderLevel),
		askPer:        make(map[int64]*perOrderLevel),
		locator:       make(map[OrderKey]*locatorEntry),
		nextSynthetic: make(map[uint64]uint64),
	}
}

func scopeKey(feedID, epoch uint32) uint64 {
	return uint64(feedID)<<32 | uint64(epoch)
}

// Locate returns the side and price currently held by key, if it exists.
func (b *Book) Locate(key OrderKey) (Side, int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	loc, ok := b.locator[key]
	if !ok {
		return 0, 0, false
	}
	return loc.side, loc.price, true
}

// NextSyntheticID returns the next synthetic id for (feedID, epoch), a
// counter starting at 1 so it never collides with a common 0-means-missing
// sentinel (grounded on OrderBook.cpp's nextSyntheticId).
func (b *Book) NextSyntheticID(feedID, epoch uint32) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := scopeKey(feedID, epoch)
	b.nextSynthetic[k]++
	return b.nextSynthetic[k]
}

func perMap(b *Book, side Side) map[int64]*perOrderLevel {
	if side == SideBid {
		return b.bidPer
	}
	return b.askPer
}

// Add inserts o. If the locator already holds o.Key, it is treated as a
// cancel+add at the new attributes (spec.md §4.G).
func (b *Book) Add(o Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.locator[o.Key]; exists {
		b.deleteLocked(o.Key)
	}
	b.addLocked(o)
}

func (b *Book) addLocked(o Order) {
	per := perMap(b, o.Side)
	lvl, ok := per[o.Price]
	if !ok {
		lvl = &perOrderLevel{price: o.Price, orders: list.New()}
		per[o.Price] = lvl
	}
	stored := o
	elem := lvl.orders.PushBack(&stored)
	lvl.totalSize += o.Size
	b.locator[o.Key] = &locatorEntry{side: o.Side, price: o.Price, elem: elem}
	b.syncAggLevel(o.Side, o.Price)
}

// Update changes price and/or size for key. newPrice/newSize nil means
// "unchanged". A newSize of 0 behaves like Delete. Returns false if key is
// unknown.
func (b *Book) Update(key OrderKey, newPrice *int64, newSize *uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	loc, ok := b.locator[key]
	if !ok {
		return false
	}
	per := perMap(b, loc.side)
	lvl := per[loc.price]
	ord := loc.elem.Value.(*Order)

	if newSize != nil && *newSize == 0 {
		b.deleteLocked(key)
		return true
	}

	priceChanged := newPrice != nil && *newPrice != loc.price
	if !priceChanged {
		if newSize != nil && *newSize != ord.Size {
			lvl.totalSize = lvl.totalSize - ord.Size + *newSize
			ord.Size = *newSize
			b.syncAggLevel(loc.side, loc.price)
		}
		return true
	}

	// Price change: remove from old level, insert at the tail of the new
	// level -- priority loss on price change (spec.md §4.G).
	size := ord.Size
	if newSize != nil {
		size = *newSize
	}
	b.removeFromLevel(loc.side, loc.price, loc.elem)
	b.addLocked(Order{Key: key, Side: loc.side, Price: *newPrice, Size: size, Priority: ord.Priority})
	return true
}

// Delete removes key's order, erasing an emptied level. Returns false if
// key is unknown.
func (b *Book) Delete(key OrderKey) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.locator[key]; !ok {
		return false
	}
	b.deleteLocked(key)
	return true
}

func (b *Book) deleteLocked(key OrderKey) {
	loc := b.locator[key]
	b.removeFromLevel(loc.side, loc.price, loc.elem)
	delete(b.locator, key)
}

func (b *Book) removeFromLevel(side Side, price int64, elem *list.Element) {
	per := perMap(b, side)
	lvl := per[price]
	ord := elem.Value.(*Order)
	lvl.orders.Remove(elem)
	lvl.totalSize -= ord.Size
	if lvl.orders.Len() == 0 {
		delete(per, price)
	}
	b.syncAggLevel(side, price)
}

// Priority updates key's priority; on change the order moves to the tail of
// its level (a new list element is appended and the locator retargeted).
func (b *Book) Priority(key OrderKey, newPriority uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	loc, ok := b.locator[key]
	if !ok {
		return false
	}
	ord := *loc.elem.Value.(*Order)
	if ord.Priority == newPriority {
		return true
	}
	per := perMap(b, loc.side)
	lvl := per[loc.price]
	lvl.orders.Remove(loc.elem)
	ord.Priority = newPriority
	elem := lvl.orders.PushBack(&ord)
	b.locator[key] = &locatorEntry{side: loc.side, price: loc.price, elem: elem}
	return true
}

// Trade consumes qty from the passive side's level at price, front-to-back.
// aggressor=Unknown infers the passive side from top-of-book. Returns the
// quantity actually consumed.
func (b *Book) Trade(price int64, qty uint64, aggressor Aggressor) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	var side Side
	switch aggressor {
	case AggressorBuy:
		side = SideAsk
	case AggressorSell:
		side = SideBid
	default:
		bestBid, haveBid := b.bestLocked(SideBid)
		bestAsk, haveAsk := b.bestLocked(SideAsk)
		switch {
		case haveBid && price <= bestBid:
			side = SideBid
		case haveAsk && price >= bestAsk:
			side = SideAsk
		default:
			return 0
		}
	}

	per := perMap(b, side)
	lvl, ok := per[price]
	if !ok {
		return 0
	}

	var consumed uint64
	for remaining := qty; remaining > 0; {
		front := lvl.orders.Front()
		if front == nil {
			break
		}
		ord := front.Value.(*Order)
		if ord.Size <= remaining {
			remaining -= ord.Size
			consumed += ord.Size
			lvl.totalSize -= ord.Size
			lvl.orders.Remove(front)
			delete(b.locator, ord.Key)
		} else {
			ord.Size -= remaining
			lvl.totalSize -= remaining
			consumed += remaining
			remaining = 0
		}
	}
	if lvl.orders.Len() == 0 {
		delete(per, price)
	}
	b.syncAggLevel(side, price)
	return consumed
}

// LevelSummary upserts a single level of the aggregated ladder directly
// (used by L2/depth feeds that never supply per-order detail). totalSize=0
// removes the level.
func (b *Book) LevelSummary(side Side, price int64, totalSize uint64, orderCount uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setAggLevel(side, price, totalSize, orderCount)
}

// SnapshotAggregated atomically replaces the aggregated ladder for one side.
// Zero-size entries are dropped.
func (b *Book) SnapshotAggregated(side Side, levels []AggLevel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*AggLevel, 0, len(levels))
	for _, l := range levels {
		if l.TotalSize == 0 {
			continue
		}
		cp := l
		out = append(out, &cp)
	}
	sortAgg(side, out)
	if side == SideBid {
		b.bidAgg = out
	} else {
		b.askAgg = out
	}
}

// SnapshotPerOrder atomically replaces the per-order ladder (and its
// derived aggregated view) for one side.
func (b *Book) SnapshotPerOrder(side Side, orders []Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	per := make(map[int64]*perOrderLevel)
	for _, o := range orders {
		lvl, ok := per[o.Price]
		if !ok {
			lvl = &perOrderLevel{price: o.Price, orders: list.New()}
			per[o.Price] = lvl
		}
		stored := o
		elem := lvl.orders.PushBack(&stored)
		lvl.totalSize += o.Size
		b.locator[o.Key] = &locatorEntry{side: side, price: o.Price, elem: elem}
	}
	if side == SideBid {
		for price := range b.bidPer {
			b.removeKeysAtPrice(SideBid, price)
		}
		b.bidPer = per
	} else {
		for price := range b.askPer {
			b.removeKeysAtPrice(SideAsk, price)
		}
		b.askPer = per
	}
	b.rebuildAggFromPer(side)
}

func (b *Book) removeKeysAtPrice(side Side, price int64) {
	per := perMap(b, side)
	lvl, ok := per[price]
	if !ok {
		return
	}
	for e := lvl.orders.Front(); e != nil; e = e.Next() {
		delete(b.locator, e.Value.(*Order).Key)
	}
}

func (b *Book) rebuildAggFromPer(side Side) {
	per := perMap(b, side)
	out := make([]*AggLevel, 0, len(per))
	for price, lvl := range per {
		out = append(out, &AggLevel{Price: price, TotalSize: lvl.totalSize, OrderCount: uint32(lvl.orders.Len())})
	}
	sortAgg(side, out)
	if side == SideBid {
		b.bidAgg = out
	} else {
		b.askAgg = out
	}
}

// syncAggLevel recomputes the derived aggregated level at (side,price) from
// the per-order ladder, inserting/removing/updating it in the sorted
// aggregated slice as needed.
func (b *Book) syncAggLevel(side Side, price int64) {
	per := perMap(b, side)
	lvl, ok := per[price]
	if !ok {
		b.setAggLevel(side, price, 0, 0)
		return
	}
	b.setAggLevel(side, price, lvl.totalSize, uint32(lvl.orders.Len()))
}

func (b *Book) setAggLevel(side Side, price int64, totalSize uint64, orderCount uint32) {
	agg := &b.bidAgg
	if side == SideAsk {
		agg = &b.askAgg
	}
	idx, found := findAgg(side, *agg, price)
	if totalSize == 0 {
		if found {
			*agg = append((*agg)[:idx], (*agg)[idx+1:]...)
		}
		return
	}
	if found {
		(*agg)[idx].TotalSize = totalSize
		(*agg)[idx].OrderCount = orderCount
		return
	}
	newLevel := &AggLevel{Price: price, TotalSize: totalSize, OrderCount: orderCount}
	insertAt := idx // findAgg returns insertion point when not found
	*agg = append(*agg, nil)
	copy((*agg)[insertAt+1:], (*agg)[insertAt:])
	(*agg)[insertAt] = newLevel
}

// findAgg returns (index, true) if price is present, or (insertion index,
// false) otherwise, for the side's ordering (bid descending, ask ascending).
func findAgg(side Side, levels []*AggLevel, price int64) (int, bool) {
	less := func(i int) bool {
		if side == SideBid {
			return levels[i].Price <= price // descending: first price <= target
		}
		return levels[i].Price >= price // ascending: first price >= target
	}
	idx := sort.Search(len(levels), less)
	if idx < len(levels) && levels[idx].Price == price {
		return idx, true
	}
	return idx, false
}

func sortAgg(side Side, levels []*AggLevel) {
	sort.Slice(levels, func(i, j int) bool {
		if side == SideBid {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
}

func (b *Book) bestLocked(side Side) (int64, bool) {
	agg := b.bidAgg
	if side == SideAsk {
		agg = b.askAgg
	}
	if len(agg) == 0 {
		return 0, false
	}
	return agg[0].Price, true
}

// BestBid returns the best bid price, if any.
func (b *Book) BestBid() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bestLocked(SideBid)
}

// BestAsk returns the best ask price, if any.
func (b *Book) BestAsk() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bestLocked(SideAsk)
}

// BestBidSize returns the size resting at the best bid, if any.
func (b *Book) BestBidSize() (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.bidAgg) == 0 {
		return 0, false
	}
	return b.bidAgg[0].TotalSize, true
}

// BestAskSize returns the size resting at the best ask, if any.
func (b *Book) BestAskSize() (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.askAgg) == 0 {
		return 0, false
	}
	return b.askAgg[0].TotalSize, true
}

// LevelSize returns the aggregated size at (side,price), if any level exists
// there.
func (b *Book) LevelSize(side Side, price int64) (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	agg := b.bidAgg
	if side == SideAsk {
		agg = b.askAgg
	}
	idx, found := findAgg(side, agg, price)
	if !found {
		return 0, false
	}
	return agg[idx].TotalSize, true
}

// DumpLadder renders up to n levels of both sides as a fixed-width text
// table, for the diagnostics API and ad-hoc debugging. Not used on any hot
// path.
func (b *Book) DumpLadder(n int) string {
	bids, asks := b.Depth(n)
	var sb strings.Builder
	sb.WriteString("BID                         ASK\n")
	sb.WriteString("price      size  orders | price      size  orders\n")
	rows := len(bids)
	if len(asks) > rows {
		rows = len(asks)
	}
	for i := 0; i < rows; i++ {
		if i < len(bids) {
			fmt.Fprintf(&sb, "%-10d %-6d %-7d", bids[i].Price, bids[i].TotalSize, bids[i].OrderCount)
		} else {
			fmt.Fprintf(&sb, "%-10s %-6s %-7s", "", "", "")
		}
		sb.WriteString("| ")
		if i < len(asks) {
			fmt.Fprintf(&sb, "%-10d %-6d %-7d", asks[i].Price, asks[i].TotalSize, asks[i].OrderCount)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// ForEachLevel iterates up to n levels of side from best toward worse,
// calling fn for each. n<=0 means "all levels".
func (b *Book) ForEachLevel(side Side, n int, fn func(AggLevel)) {
	b.mu.Lock()
	agg := b.bidAgg
	if side == SideAsk {
		agg = b.askAgg
	}
	limit := len(agg)
	if n > 0 && n < limit {
		limit = n
	}
	snapshot := make([]AggLevel, limit)
	for i := 0; i < limit; i++ {
		snapshot[i] = *agg[i]
	}
	b.mu.Unlock()
	for _, l := range snapshot {
		fn(l)
	}
}

// Depth returns up to n levels per side as a plain slice, convenience
// wrapper over ForEachLevel for snapshot construction.
func (b *Book) Depth(n int) (bids, asks []AggLevel) {
	b.ForEachLevel(SideBid, n, func(l AggLevel) { bids = append(bids, l) })
	b.ForEachLevel(SideAsk, n, func(l AggLevel) { asks = append(asks, l) })
	return bids, asks
}

// CheckInvariants verifies per-level sums, that every per-order level
// matches its aggregated level, locator consistency, and the absence of
// empty levels, returning a descriptive error if any check
// fails (spec.md §4.G / §8).
func (b *Book) CheckInvariants() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, per := range []map[int64]*perOrderLevel{b.bidPer, b.askPer} {
		for price, lvl := range per {
			if lvl.orders.Len() == 0 {
				return fmt.Errorf("%w: empty per-order level at price %d", ErrInvariant, price)
			}
			var sum uint64
			for e := lvl.orders.Front(); e != nil; e = e.Next() {
				sum += e.Value.(*Order).Size
			}
			if sum != lvl.totalSize {
				return fmt.Errorf("%w: level %d totalSize %d != sum %d", ErrInvariant, price, lvl.totalSize, sum)
			}
		}
	}
	for _, side := range []Side{SideBid, SideAsk} {
		agg := b.bidAgg
		if side == SideAsk {
			agg = b.askAgg
		}
		for price, lvl := range perMap(b, side) {
			idx, ok := findAgg(side, agg, price)
			if !ok || agg[idx].TotalSize != lvl.totalSize || agg[idx].OrderCount != uint32(lvl.orders.Len()) {
				return fmt.Errorf("%w: aggregated level %d out of sync with per-order level", ErrInvariant, price)
			}
		}
	}
	for _, agg := range [][]*AggLevel{b.bidAgg, b.askAgg} {
		for _, l := range agg {
			if l.TotalSize == 0 {
				return fmt.Errorf("%w: zero-size aggregated level at price %d", ErrInvariant, l.Price)
			}
		}
	}
	for key, loc := range b.locator {
		per := perMap(b, loc.side)
		lvl, ok := per[loc.price]
		if !ok {
			return fmt.Errorf("%w: locator for %+v points at missing level", ErrInvariant, key)
		}
		found := false
		for e := lvl.orders.Front(); e != nil; e = e.Next() {
			if e == loc.elem {
				found = true
				if e.Value.(*Order).Key != key {
					return fmt.Errorf("%w: locator/order key mismatch for %+v", ErrInvariant, key)
				}
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: locator element for %+v not found in its level", ErrInvariant, key)
		}
	}
	return nil
}
