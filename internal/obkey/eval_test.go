package obkey

import (
	"math"
	"testing"
)

func mkLevel(price, size float64) Level {
	return Level{Price: price, Size: size, Orders: math.NaN(), Notional: price * size}
}

func sampleSnapshot() Snapshot {
	return Snapshot{
		Bids: Ladder{mkLevel(100, 10), mkLevel(99, 20), mkLevel(98, 30)},
		Asks: Ladder{mkLevel(101, 5), mkLevel(102, 15), mkLevel(103, 25)},
		Meta: Meta{Seq: 7, Epoch: 1, Stale: false, BidLevels: 3, AskLevels: 3, LastChangeMs: 1000},
	}
}

func mustParse(t *testing.T, s string) Key {
	t.Helper()
	k, err := Parse(s)
	if err != nil {
		t.Fatalf("parse(%q): %v", s, err)
	}
	return k
}

func TestEvalSpreadAndMid(t *testing.T) {
	snap := sampleSnapshot()
	if v := Evaluate(mustParse(t, "ob.spread"), snap); v != 1 {
		t.Fatalf("spread = %v want 1", v)
	}
	if v := Evaluate(mustParse(t, "ob.mid"), snap); v != 100.5 {
		t.Fatalf("mid = %v want 100.5", v)
	}
}

func TestEvalEmptyLadderYieldsNaN(t *testing.T) {
	snap := Snapshot{}
	if v := Evaluate(mustParse(t, "ob.spread"), snap); !math.IsNaN(v) {
		t.Fatalf("spread = %v want NaN", v)
	}
	if v := Evaluate(mustParse(t, "ob.best.bid.price"), snap); !math.IsNaN(v) {
		t.Fatalf("best.bid.price = %v want NaN", v)
	}
}

func TestEvalLevelIndexClampsToDepth(t *testing.T) {
	snap := sampleSnapshot()
	v := Evaluate(mustParse(t, "ob.level.bid.99.price"), snap)
	if v != 98 {
		t.Fatalf("clamped level price = %v want 98", v)
	}
}

func TestEvalVWAPLevelsRange(t *testing.T) {
	snap := sampleSnapshot()
	v := Evaluate(mustParse(t, "ob.vwap.bid.levels.1-2"), snap)
	want := (100.0*10 + 99.0*20) / (10 + 20)
	if math.Abs(v-want) > 1e-9 {
		t.Fatalf("vwap = %v want %v", v, want)
	}
}

func TestEvalImbalanceZeroDenominator(t *testing.T) {
	snap := Snapshot{Bids: Ladder{}, Asks: Ladder{}}
	v := Evaluate(mustParse(t, "ob.imbalance.levels.5"), snap)
	if v != 0 {
		t.Fatalf("imbalance = %v want 0", v)
	}
}

func TestEvalImbalanceWeightedSides(t *testing.T) {
	snap := sampleSnapshot()
	v := Evaluate(mustParse(t, "ob.imbalance.levels.1"), snap)
	want := (10.0 - 5.0) / (10.0 + 5.0)
	if math.Abs(v-want) > 1e-9 {
		t.Fatalf("imbalance = %v want %v", v, want)
	}
}

func TestEvalRangeSumSize(t *testing.T) {
	snap := sampleSnapshot()
	v := Evaluate(mustParse(t, "ob.range.bid.levels.1-3.sum.size"), snap)
	if v != 60 {
		t.Fatalf("range sum size = %v want 60", v)
	}
}

func TestEvalMeta(t *testing.T) {
	snap := sampleSnapshot()
	if v := Evaluate(mustParse(t, "ob.meta.seq"), snap); v != 7 {
		t.Fatalf("meta.seq = %v want 7", v)
	}
	if v := Evaluate(mustParse(t, "ob.meta.levels.bid"), snap); v != 3 {
		t.Fatalf("meta.levels.bid = %v want 3", v)
	}
}
