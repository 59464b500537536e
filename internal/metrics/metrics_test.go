package metrics

import (
	"testing"
	"time"
)

func TestCounterIncAndAdd(t *testing.T) {
	r := New()
	c := r.Counter("requests_total")
	c.Inc()
	c.Add(4)
	if got := c.Get(); got != 5 {
		t.Fatalf("Get() = %d, want 5", got)
	}
}

func TestCounterLookupIsStable(t *testing.T) {
	r := New()
	a := r.Counter("x")
	a.Inc()
	b := r.Counter("x")
	if b.Get() != 1 {
		t.Fatalf("second Counter() call returned a different counter: Get() = %d, want 1", b.Get())
	}
}

func TestGaugeSetAndAdd(t *testing.T) {
	r := New()
	g := r.Gauge("pool_utilization")
	g.Set(1.5)
	g.Add(-0.5)
	if got := g.Get(); got != 1.0 {
		t.Fatalf("Get() = %v, want 1.0", got)
	}
}

func TestSnapshotReflectsBothMaps(t *testing.T) {
	r := New()
	r.Counter("c1").Add(3)
	r.Gauge("g1").Set(2.5)

	snap := r.Snapshot()
	if snap.Counters["c1"] != 3 {
		t.Fatalf("Counters[c1] = %d, want 3", snap.Counters["c1"])
	}
	if snap.Gauges["g1"] != 2.5 {
		t.Fatalf("Gauges[g1] = %v, want 2.5", snap.Gauges["g1"])
	}
}

func TestReporterRunsAndStops(t *testing.T) {
	r := New()
	r.Counter("ticks").Inc()

	calls := make(chan Snapshot, 4)
	r.StartReporter(5*time.Millisecond, func(s Snapshot) {
		select {
		case calls <- s:
		default:
		}
	})

	select {
	case s := <-calls:
		if s.Counters["ticks"] != 1 {
			t.Fatalf("reporter snapshot Counters[ticks] = %d, want 1", s.Counters["ticks"])
		}
	case <-time.After(time.Second):
		t.Fatal("reporter never fired")
	}

	r.StopReporter()
	r.StopReporter() // must not hang or panic
}
