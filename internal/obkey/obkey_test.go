package obkey

import "testing"

func TestParseVWAPRange(t *testing.T) {
	k, err := Parse("ob.vwap.bid.levels.2-8")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if k.Metric != MetricVWAP || k.Side != SideBid || !k.ByLevels {
		t.Fatalf("got %+v", k)
	}
	if k.Range.A != 2 || k.Range.B != 8 {
		t.Fatalf("range = %+v, want (2,8)", k.Range)
	}
}

func TestRoundTrip(t *testing.T) {
	keys := []string{
		"ob.spread",
		"ob.mid",
		"ob.best.bid.price",
		"ob.best.ask.size",
		"ob.level.bid.3.price",
		"ob.at.ask.101.size",
		"ob.cum.bid.levels.5.size",
		"ob.vwap.bid.levels.2-8",
		"ob.vwap.ask.levels.10",
		"ob.vwap.bid.price.99-101",
		"ob.imbalance.levels.5",
		"ob.imbalance.levels.2-8",
		"ob.imbalance.price.99-101",
		"ob.range.bid.levels.1-5.sum.size",
		"ob.range.ask.price.100-105.count",
		"ob.meta.seq",
		"ob.meta.is_stale",
		"ob.meta.levels.bid",
		"ob.spread.agg",
	}
	for _, s := range keys {
		k1, err := Parse(s)
		if err != nil {
			t.Fatalf("parse(%q): %v", s, err)
		}
		formatted := Format(k1)
		k2, err := Parse(formatted)
		if err != nil {
			t.Fatalf("parse(format(%q)=%q): %v", s, formatted, err)
		}
		if k1 != k2 {
			t.Fatalf("round-trip mismatch for %q: %+v != %+v (via %q)", s, k1, k2, formatted)
		}
	}
}

func TestRejectsUnrecognisedShape(t *testing.T) {
	bad := []string{
		"ob.nonsense",
		"ob.level.bid.0.price",  // index must be >= 1
		"ob.range.bid.levels.5-1.sum.size", // lower > upper
		"not.ob.prefixed",
		"ob.range.bid.levels.1-5.count.size", // count takes no target
	}
	for _, s := range bad {
		if _, err := Parse(s); err == nil {
			t.Errorf("expected parse error for %q", s)
		}
	}
}
