package dispatcher

import (
	"sync"
	"testing"

	"github.com/ndrandal/gma-go/internal/pool"
	"github.com/ndrandal/gma-go/internal/value"
)

type recordingNode struct {
	mu     sync.Mutex
	values []value.SymbolValue
}

func (r *recordingNode) OnValue(v value.SymbolValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recordingNode) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *pool.Pool) {
	t.Helper()
	p := pool.New(2, nil)
	d := New(Config{HistoryMax: 30, Pool: p})
	return d, p
}

func TestOnTickFansOutRawField(t *testing.T) {
	d, p := newTestDispatcher(t)
	defer p.Shutdown()

	n := &recordingNode{}
	d.RegisterListener("AAPL", "price", n)
	d.OnTick(Tick{Symbol: "AAPL", Fields: map[string]any{"price": 100.0}})
	p.Drain()

	if n.count() != 1 {
		t.Fatalf("expected 1 delivered value, got %d", n.count())
	}
}

func TestOnTickDrivesAtomicComputer(t *testing.T) {
	d, p := newTestDispatcher(t)
	defer p.Shutdown()

	n := &recordingNode{}
	d.RegisterListener("AAPL", "lastPrice", n)
	d.OnTick(Tick{Symbol: "AAPL", Fields: map[string]any{"price": 101.5, "volume": 1000.0}})
	p.Drain()

	if n.count() != 1 {
		t.Fatalf("expected lastPrice listener to fire once, got %d", n.count())
	}
	v, ok := d.Store().Get("AAPL", "lastPrice")
	if !ok {
		t.Fatal("expected lastPrice to be written to the store")
	}
	f, _ := v.Float()
	if f != 101.5 {
		t.Fatalf("lastPrice = %v want 101.5", f)
	}
}

func TestUnregisterListenerStopsDelivery(t *testing.T) {
	d, p := newTestDispatcher(t)
	defer p.Shutdown()

	n := &recordingNode{}
	d.RegisterListener("AAPL", "price", n)
	d.UnregisterListener("AAPL", "price", n)
	d.OnTick(Tick{Symbol: "AAPL", Fields: map[string]any{"price": 100.0}})
	p.Drain()

	if n.count() != 0 {
		t.Fatalf("expected no deliveries after unregister, got %d", n.count())
	}
}

func TestNonNumericFieldSkipped(t *testing.T) {
	d, p := newTestDispatcher(t)
	defer p.Shutdown()
	n := &recordingNode{}
	d.RegisterListener("AAPL", "note", n)
	d.OnTick(Tick{Symbol: "AAPL", Fields: map[string]any{"note": "halted"}})
	p.Drain()
	if n.count() != 0 {
		t.Fatalf("expected non-numeric field to be skipped, got %d deliveries", n.count())
	}
}
