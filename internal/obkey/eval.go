package obkey

import "math"

// Level is one level of a captured ladder view. Orders/Notional may be
// "unknown" and carry NaN when the feed never supplied per-order detail.
type Level struct {
	Price    float64
	Size     float64
	Orders   float64
	Notional float64
}

// Ladder is ordered from best toward worse (index 0 is top of book).
type Ladder []Level

// Meta is the snapshot's non-ladder metadata.
type Meta struct {
	Seq          uint64
	Epoch        uint32
	Stale        bool
	BidLevels    int
	AskLevels    int
	LastChangeMs int64
}

// Snapshot is the captured view a Key is evaluated against. Which ladder
// source (per-order vs aggregated) feeds Bids/Asks is a concern of the
// caller building the Snapshot, not of Evaluate -- Key.Mode merely records
// which the caller intended.
type Snapshot struct {
	Bids Ladder
	Asks Ladder
	Meta Meta
}

func (s Snapshot) ladder(side Side) Ladder {
	if side == SideBid {
		return s.Bids
	}
	return s.Asks
}

func attrValue(l Level, attr Attr) float64 {
	switch attr {
	case AttrPrice:
		return l.Price
	case AttrSize:
		return l.Size
	case AttrOrders:
		return l.Orders
	case AttrNotional:
		return l.Notional
	default:
		return math.NaN()
	}
}

// clampIndexRange resolves the 1-based level band [a,b] against a ladder of
// length n into a [lo,hi) index range (0-based, best-to-worse), clamped to
// available depth. ok is false if the range selects no levels at all.
func clampIndexRange(a, b float64, n int) (lo, hi int, ok bool) {
	lo = int(a) - 1
	hi = int(b)
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	if lo >= hi {
		return 0, 0, false
	}
	return lo, hi, true
}

// priceRangeIndices returns the [lo,hi) index range of levels whose price
// falls within [p1,p2].
func priceRangeIndices(ladder Ladder, p1, p2 float64) (lo, hi int, ok bool) {
	lo, hi = -1, -1
	for i, l := range ladder {
		if l.Price >= p1 && l.Price <= p2 {
			if lo == -1 {
				lo = i
			}
			hi = i + 1
		}
	}
	if lo == -1 {
		return 0, 0, false
	}
	return lo, hi, true
}

func (k Key) levelRange(ladder Ladder) (lo, hi int, ok bool) {
	if k.ByLevels {
		return clampIndexRange(k.Range.A, k.Range.B, len(ladder))
	}
	return priceRangeIndices(ladder, k.Range.A, k.Range.B)
}

func sumAttr(ladder Ladder, lo, hi int, attr Attr) float64 {
	var total float64
	for i := lo; i < hi; i++ {
		total += attrValue(ladder[i], attr)
	}
	return total
}

func vwap(ladder Ladder, lo, hi int) float64 {
	var notional, size float64
	for i := lo; i < hi; i++ {
		notional += ladder[i].Price * ladder[i].Size
		size += ladder[i].Size
	}
	if size <= 0 {
		return math.NaN()
	}
	return notional / size
}

func reduce(ladder Ladder, lo, hi int, red Reduce, target Target) float64 {
	if red == ReduceCount {
		return float64(hi - lo)
	}
	if hi <= lo {
		return math.NaN()
	}
	attr := targetToAttr(target)
	switch red {
	case ReduceSum:
		return sumAttr(ladder, lo, hi, attr)
	case ReduceAvg:
		return sumAttr(ladder, lo, hi, attr) / float64(hi-lo)
	case ReduceMin:
		m := attrValue(ladder[lo], attr)
		for i := lo + 1; i < hi; i++ {
			if v := attrValue(ladder[i], attr); v < m {
				m = v
			}
		}
		return m
	case ReduceMax:
		m := attrValue(ladder[lo], attr)
		for i := lo + 1; i < hi; i++ {
			if v := attrValue(ladder[i], attr); v > m {
				m = v
			}
		}
		return m
	default:
		return math.NaN()
	}
}

func targetToAttr(t Target) Attr {
	switch t {
	case TargetPrice:
		return AttrPrice
	case TargetSize:
		return AttrSize
	case TargetOrders:
		return AttrOrders
	case TargetNotional:
		return AttrNotional
	default:
		return AttrNone
	}
}

// Evaluate computes k's value against snap. Empty ladders make
// best/mid/spread yield NaN, not an error; out-of-range level indices
// clamp to the available depth; imbalance's denominator being <= 0 yields
// 0 rather than NaN (spec.md §4.I).
func Evaluate(k Key, snap Snapshot) float64 {
	switch k.Metric {
	case MetricSpread:
		bid, bok := bestOf(snap.Bids)
		ask, aok := bestOf(snap.Asks)
		if !bok || !aok {
			return math.NaN()
		}
		return ask.Price - bid.Price
	case MetricMid:
		bid, bok := bestOf(snap.Bids)
		ask, aok := bestOf(snap.Asks)
		if !bok || !aok {
			return math.NaN()
		}
		return (bid.Price + ask.Price) / 2
	case MetricBest:
		l, ok := bestOf(snap.ladder(k.Side))
		if !ok {
			return math.NaN()
		}
		return attrValue(l, k.Attr)
	case MetricLevelIdx:
		ladder := snap.ladder(k.Side)
		idx := k.LevelN - 1
		if idx >= len(ladder) {
			idx = len(ladder) - 1
		}
		if idx < 0 {
			return math.NaN()
		}
		return attrValue(ladder[idx], k.Attr)
	case MetricLevelPx:
		ladder := snap.ladder(k.Side)
		for _, l := range ladder {
			if l.Price == k.AtP {
				return attrValue(l, k.Attr)
			}
		}
		return math.NaN()
	case MetricCum:
		ladder := snap.ladder(k.Side)
		lo, hi, ok := clampIndexRange(1, float64(k.LevelN), len(ladder))
		if !ok {
			return math.NaN()
		}
		return sumAttr(ladder, lo, hi, k.Attr)
	case MetricVWAP:
		ladder := snap.ladder(k.Side)
		lo, hi, ok := k.levelRange(ladder)
		if !ok {
			return math.NaN()
		}
		return vwap(ladder, lo, hi)
	case MetricImbalance:
		bidLo, bidHi, bok := k.levelRange(snap.Bids)
		askLo, askHi, aok := k.levelRange(snap.Asks)
		var bidQ, askQ float64
		if bok {
			bidQ = sumAttr(snap.Bids, bidLo, bidHi, AttrSize)
		}
		if aok {
			askQ = sumAttr(snap.Asks, askLo, askHi, AttrSize)
		}
		denom := bidQ + askQ
		if denom <= 0 {
			return 0
		}
		return (bidQ - askQ) / denom
	case MetricRange:
		ladder := snap.ladder(k.Side)
		lo, hi, ok := k.levelRange(ladder)
		if !ok {
			if k.Reduce == ReduceCount {
				return 0
			}
			return math.NaN()
		}
		return reduce(ladder, lo, hi, k.Reduce, k.Target)
	case MetricMeta:
		return evalMeta(k, snap)
	default:
		return math.NaN()
	}
}

func bestOf(ladder Ladder) (Level, bool) {
	if len(ladder) == 0 {
		return Level{}, false
	}
	return ladder[0], true
}

func evalMeta(k Key, snap Snapshot) float64 {
	switch k.MetaField {
	case MetaSeq:
		return float64(snap.Meta.Seq)
	case MetaEpoch:
		return float64(snap.Meta.Epoch)
	case MetaIsStale:
		if snap.Meta.Stale {
			return 1
		}
		return 0
	case MetaLastChangeMs:
		return float64(snap.Meta.LastChangeMs)
	case MetaLevels:
		if k.MetaSide == SideBid {
			return float64(snap.Meta.BidLevels)
		}
		return float64(snap.Meta.AskLevels)
	default:
		return math.NaN()
	}
}
