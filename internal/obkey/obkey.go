// Package obkey implements the order-book key grammar (`ob.*` namespace):
// parsing, formatting, and the types needed to evaluate a key against a
// Snapshot. Grounded on
// original_source/include/gma/ob/ObKey.hpp + src/ob/ObKey.cpp.
package obkey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Mode selects per-order vs aggregated ladder view. Default is Per.
type Mode int

const (
	ModePer Mode = iota
	ModeAgg
)

// Side of the book. A separate type from any order-book package's own Side,
// matching the C++ original's deliberate ob::Side / gma::Side namespacing.
type Side int

const (
	SideBid Side = iota
	SideAsk
)

func (s Side) String() string {
	if s == SideBid {
		return "bid"
	}
	return "ask"
}

func parseSide(tok string) (Side, error) {
	switch tok {
	case "bid":
		return SideBid, nil
	case "ask":
		return SideAsk, nil
	default:
		return 0, fmt.Errorf("obkey: unknown side %q", tok)
	}
}

// Metric discriminates which form of key this is.
type Metric int

const (
	MetricSpread Metric = iota
	MetricMid
	MetricBest
	MetricLevelIdx
	MetricLevelPx
	MetricRangeIdx
	MetricRangePx
	MetricCum
	MetricVWAP
	MetricImbalance
	MetricRange
	MetricMeta
)

// Attr is the per-level/per-point attribute requested (price/size/orders/
// notional), shared by best/level/at/cum forms.
type Attr int

const (
	AttrNone Attr = iota
	AttrPrice
	AttrSize
	AttrOrders
	AttrNotional
)

func parseAttr(tok string) (Attr, error) {
	switch tok {
	case "price":
		return AttrPrice, nil
	case "size":
		return AttrSize, nil
	case "orders":
		return AttrOrders, nil
	case "notional":
		return AttrNotional, nil
	default:
		return AttrNone, fmt.Errorf("obkey: unknown attribute %q", tok)
	}
}

func (a Attr) String() string {
	switch a {
	case AttrPrice:
		return "price"
	case AttrSize:
		return "size"
	case AttrOrders:
		return "orders"
	case AttrNotional:
		return "notional"
	default:
		return ""
	}
}

// Reduce is the aggregation function for range/imbalance forms.
type Reduce int

const (
	ReduceNone Reduce = iota
	ReduceSum
	ReduceAvg
	ReduceMin
	ReduceMax
	ReduceCount
)

func parseReduce(tok string) (Reduce, error) {
	switch tok {
	case "sum":
		return ReduceSum, nil
	case "avg":
		return ReduceAvg, nil
	case "min":
		return ReduceMin, nil
	case "max":
		return ReduceMax, nil
	case "count":
		return ReduceCount, nil
	default:
		return ReduceNone, fmt.Errorf("obkey: unknown reduce %q", tok)
	}
}

func (r Reduce) String() string {
	switch r {
	case ReduceSum:
		return "sum"
	case ReduceAvg:
		return "avg"
	case ReduceMin:
		return "min"
	case ReduceMax:
		return "max"
	case ReduceCount:
		return "count"
	default:
		return ""
	}
}

// Target is the quantity a Reduce operates over (price/size/orders/
// notional); omitted iff Reduce == Count.
type Target int

const (
	TargetNone Target = iota
	TargetPrice
	TargetSize
	TargetOrders
	TargetNotional
)

func parseTarget(tok string) (Target, error) {
	switch tok {
	case "price":
		return TargetPrice, nil
	case "size":
		return TargetSize, nil
	case "orders":
		return TargetOrders, nil
	case "notional":
		return TargetNotional, nil
	default:
		return TargetNone, fmt.Errorf("obkey: unknown target %q", tok)
	}
}

func (t Target) String() string {
	switch t {
	case TargetPrice:
		return "price"
	case TargetSize:
		return "size"
	case TargetOrders:
		return "orders"
	case TargetNotional:
		return "notional"
	default:
		return ""
	}
}

// Range is an inclusive 1-based [A,B] bound, used for both level-index and
// price-band forms.
type Range struct {
	A, B float64
}

// MetaField names the scalar meta.* sub-key.
type MetaField int

const (
	MetaNone MetaField = iota
	MetaSeq
	MetaEpoch
	MetaIsStale
	MetaLastChangeMs
	MetaLevels
)

func parseMetaField(tok string) (MetaField, error) {
	switch tok {
	case "seq":
		return MetaSeq, nil
	case "epoch":
		return MetaEpoch, nil
	case "is_stale":
		return MetaIsStale, nil
	case "last_change_ms":
		return MetaLastChangeMs, nil
	default:
		return MetaNone, fmt.Errorf("obkey: unknown meta field %q", tok)
	}
}

// Key is the parsed representation of one `ob.*` key. All fields relevant to
// the key's Metric are populated; others are zero.
type Key struct {
	Mode   Mode
	Metric Metric

	Side Side
	Attr Attr

	LevelN int     // level.N / cum.levels.N
	AtP    float64 // at.P

	ByLevels  bool // vwap/range: true=levels form, false=price form
	Range     Range
	Reduce    Reduce
	Target    Target

	MetaField   MetaField
	MetaSide    Side
	HasMetaSide bool
}

var ErrMalformed = errors.New("obkey: malformed key")

// Parse parses a dot-separated `ob.*` key string.
func Parse(key string) (Key, error) {
	if !strings.HasPrefix(key, "ob.") {
		return Key{}, fmt.Errorf("%w: missing ob. prefix: %q", ErrMalformed, key)
	}
	toks := strings.Split(key, ".")[1:] // drop "ob"

	mode := ModePer
	if len(toks) > 1 {
		switch toks[len(toks)-1] {
		case "per":
			toks = toks[:len(toks)-1]
		case "agg":
			mode = ModeAgg
			toks = toks[:len(toks)-1]
		}
	}
	if len(toks) == 0 {
		return Key{}, fmt.Errorf("%w: empty key", ErrMalformed)
	}

	k, err := parseBody(toks)
	if err != nil {
		return Key{}, err
	}
	k.Mode = mode
	return k, nil
}

func parseBody(t []string) (Key, error) {
	switch t[0] {
	case "spread":
		if len(t) != 1 {
			return Key{}, fmt.Errorf("%w: spread takes no arguments", ErrMalformed)
		}
		return Key{Metric: MetricSpread}, nil

	case "mid":
		if len(t) != 1 {
			return Key{}, fmt.Errorf("%w: mid takes no arguments", ErrMalformed)
		}
		return Key{Metric: MetricMid}, nil

	case "best":
		if len(t) != 3 {
			return Key{}, fmt.Errorf("%w: expected best.SIDE.ATTR", ErrMalformed)
		}
		side, err := parseSide(t[1])
		if err != nil {
			return Key{}, err
		}
		attr, err := parseAttr(t[2])
		if err != nil {
			return Key{}, err
		}
		return Key{Metric: MetricBest, Side: side, Attr: attr}, nil

	case "level":
		if len(t) != 4 {
			return Key{}, fmt.Errorf("%w: expected level.SIDE.N.ATTR", ErrMalformed)
		}
		side, err := parseSide(t[1])
		if err != nil {
			return Key{}, err
		}
		n, err := parseIndex(t[2])
		if err != nil {
			return Key{}, err
		}
		attr, err := parseAttr(t[3])
		if err != nil {
			return Key{}, err
		}
		return Key{Metric: MetricLevelIdx, Side: side, LevelN: n, Attr: attr}, nil

	case "at":
		if len(t) != 4 {
			return Key{}, fmt.Errorf("%w: expected at.SIDE.P.ATTR", ErrMalformed)
		}
		side, err := parseSide(t[1])
		if err != nil {
			return Key{}, err
		}
		p, err := strconv.ParseFloat(t[2], 64)
		if err != nil {
			return Key{}, fmt.Errorf("%w: bad price %q", ErrMalformed, t[2])
		}
		attr, err := parseAttr(t[3])
		if err != nil {
			return Key{}, err
		}
		return Key{Metric: MetricLevelPx, Side: side, AtP: p, Attr: attr}, nil

	case "cum":
		if len(t) != 5 || t[2] != "levels" {
			return Key{}, fmt.Errorf("%w: expected cum.SIDE.levels.N.ATTR", ErrMalformed)
		}
		side, err := parseSide(t[1])
		if err != nil {
			return Key{}, err
		}
		n, err := parseIndex(t[3])
		if err != nil {
			return Key{}, err
		}
		attr, err := parseAttr(t[4])
		if err != nil {
			return Key{}, err
		}
		return Key{Metric: MetricCum, Side: side, LevelN: n, Attr: attr}, nil

	case "vwap":
		if len(t) < 3 {
			return Key{}, fmt.Errorf("%w: expected vwap.SIDE...", ErrMalformed)
		}
		side, err := parseSide(t[1])
		if err != nil {
			return Key{}, err
		}
		k := Key{Metric: MetricVWAP, Side: side}
		if err := parseLevelsOrPriceSuffix(t[2:], &k); err != nil {
			return Key{}, err
		}
		return k, nil

	case "imbalance":
		if len(t) < 2 {
			return Key{}, fmt.Errorf("%w: expected imbalance...", ErrMalformed)
		}
		k := Key{Metric: MetricImbalance}
		if err := parseLevelsOrPriceSuffix(t[1:], &k); err != nil {
			return Key{}, err
		}
		return k, nil

	case "range":
		if len(t) < 4 {
			return Key{}, fmt.Errorf("%w: expected range.SIDE...REDUCE[.TARGET]", ErrMalformed)
		}
		side, err := parseSide(t[1])
		if err != nil {
			return Key{}, err
		}
		k := Key{Metric: MetricRange, Side: side}
		rest, err := parseLevelsOrPriceBand(t[2:], &k)
		if err != nil {
			return Key{}, err
		}
		if len(rest) < 1 {
			return Key{}, fmt.Errorf("%w: missing REDUCE", ErrMalformed)
		}
		reduce, err := parseReduce(rest[0])
		if err != nil {
			return Key{}, err
		}
		k.Reduce = reduce
		rest = rest[1:]
		if reduce == ReduceCount {
			if len(rest) != 0 {
				return Key{}, fmt.Errorf("%w: count takes no target", ErrMalformed)
			}
			k.Target = TargetNone
		} else {
			if len(rest) != 1 {
				return Key{}, fmt.Errorf("%w: expected TARGET after REDUCE", ErrMalformed)
			}
			target, err := parseTarget(rest[0])
			if err != nil {
				return Key{}, err
			}
			k.Target = target
		}
		return k, nil

	case "meta":
		if len(t) == 2 {
			mf, err := parseMetaField(t[1])
			if err != nil {
				return Key{}, err
			}
			return Key{Metric: MetricMeta, MetaField: mf}, nil
		}
		if len(t) == 3 && t[1] == "levels" {
			side, err := parseSide(t[2])
			if err != nil {
				return Key{}, err
			}
			return Key{Metric: MetricMeta, MetaField: MetaLevels, MetaSide: side, HasMetaSide: true}, nil
		}
		return Key{}, fmt.Errorf("%w: bad meta key", ErrMalformed)

	default:
		return Key{}, fmt.Errorf("%w: unrecognised key shape %q", ErrMalformed, t[0])
	}
}

// parseLevelsOrPriceSuffix handles the `.levels.N | .levels.A-B | .price.P1-P2`
// suffix shared by vwap and imbalance, setting ByLevels/Range on k.
func parseLevelsOrPriceSuffix(t []string, k *Key) error {
	if len(t) < 2 {
		return fmt.Errorf("%w: expected levels.N or price.P1-P2", ErrMalformed)
	}
	switch t[0] {
	case "levels":
		k.ByLevels = true
		rng, err := parseRangeOrSingle(t[1])
		if err != nil {
			return err
		}
		k.Range = rng
		return nil
	case "price":
		k.ByLevels = false
		rng, err := parseBand(t[1])
		if err != nil {
			return err
		}
		k.Range = rng
		return nil
	default:
		return fmt.Errorf("%w: expected levels or price, got %q", ErrMalformed, t[0])
	}
}

// parseLevelsOrPriceBand is like parseLevelsOrPriceSuffix but returns the
// remaining unconsumed tokens (used by `range`, which has REDUCE/TARGET
// trailing the band spec).
func parseLevelsOrPriceBand(t []string, k *Key) ([]string, error) {
	if len(t) < 2 {
		return nil, fmt.Errorf("%w: expected levels.A-B or price.P1-P2", ErrMalformed)
	}
	switch t[0] {
	case "levels":
		k.ByLevels = true
		rng, err := parseBand(t[1])
		if err != nil {
			return nil, err
		}
		k.Range = rng
		return t[2:], nil
	case "price":
		k.ByLevels = false
		rng, err := parseBand(t[1])
		if err != nil {
			return nil, err
		}
		k.Range = rng
		return t[2:], nil
	default:
		return nil, fmt.Errorf("%w: expected levels or price, got %q", ErrMalformed, t[0])
	}
}

// parseRangeOrSingle parses either "N" (=> Range{1,N}) or "A-B".
func parseRangeOrSingle(tok string) (Range, error) {
	if strings.Contains(tok, "-") {
		return parseBand(tok)
	}
	n, err := parseIndex(tok)
	if err != nil {
		return Range{}, err
	}
	return Range{A: 1, B: float64(n)}, nil
}

func parseBand(tok string) (Range, error) {
	parts := strings.SplitN(tok, "-", 2)
	if len(parts) != 2 {
		return Range{}, fmt.Errorf("%w: expected A-B, got %q", ErrMalformed, tok)
	}
	a, err1 := strconv.ParseFloat(parts[0], 64)
	b, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil {
		return Range{}, fmt.Errorf("%w: bad range %q", ErrMalformed, tok)
	}
	if a > b {
		return Range{}, fmt.Errorf("%w: range lower bound > upper bound: %q", ErrMalformed, tok)
	}
	return Range{A: a, B: b}, nil
}

func parseIndex(tok string) (int, error) {
	n, err := strconv.Atoi(tok)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: expected index >= 1, got %q", ErrMalformed, tok)
	}
	return n, nil
}

// IsKey reports whether s looks like an ob.* key (starts with "ob.").
func IsKey(s string) bool { return strings.HasPrefix(s, "ob.") }

// Format renders k back into its canonical string form. Format(Parse(s))
// need not equal s byte-for-byte, but Parse(Format(k)) must reproduce a Key
// semantically equivalent to k (spec.md §4.I, tested in obkey_test.go).
func Format(k Key) string {
	var b strings.Builder
	b.WriteString("ob.")

	switch k.Metric {
	case MetricSpread:
		b.WriteString("spread")
	case MetricMid:
		b.WriteString("mid")
	case MetricBest:
		fmt.Fprintf(&b, "best.%s.%s", k.Side, k.Attr)
	case MetricLevelIdx:
		fmt.Fprintf(&b, "level.%s.%d.%s", k.Side, k.LevelN, k.Attr)
	case MetricLevelPx:
		fmt.Fprintf(&b, "at.%s.%s.%s", k.Side, formatNum(k.AtP), k.Attr)
	case MetricCum:
		fmt.Fprintf(&b, "cum.%s.levels.%d.%s", k.Side, k.LevelN, k.Attr)
	case MetricVWAP:
		fmt.Fprintf(&b, "vwap.%s.%s", k.Side, formatLevelsOrBand(k))
	case MetricImbalance:
		fmt.Fprintf(&b, "imbalance.%s", formatLevelsOrBand(k))
	case MetricRange:
		fmt.Fprintf(&b, "range.%s.%s.%s", k.Side, formatLevelsOrBand(k), k.Reduce)
		if k.Reduce != ReduceCount {
			fmt.Fprintf(&b, ".%s", k.Target)
		}
	case MetricMeta:
		if k.MetaField == MetaLevels {
			fmt.Fprintf(&b, "meta.levels.%s", k.MetaSide)
		} else {
			fmt.Fprintf(&b, "meta.%s", formatMetaField(k.MetaField))
		}
	}

	if k.Mode == ModeAgg {
		b.WriteString(".agg")
	}
	return b.String()
}

func formatLevelsOrBand(k Key) string {
	if k.ByLevels {
		if k.Range.A == 1 && k.Metric != MetricRange {
			return fmt.Sprintf("levels.%d", int(k.Range.B))
		}
		return fmt.Sprintf("levels.%s-%s", formatNum(k.Range.A), formatNum(k.Range.B))
	}
	return fmt.Sprintf("price.%s-%s", formatNum(k.Range.A), formatNum(k.Range.B))
}

func formatMetaField(mf MetaField) string {
	switch mf {
	case MetaSeq:
		return "seq"
	case MetaEpoch:
		return "epoch"
	case MetaIsStale:
		return "is_stale"
	case MetaLastChangeMs:
		return "last_change_ms"
	default:
		return ""
	}
}

func formatNum(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
