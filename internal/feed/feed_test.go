package feed

import (
	"encoding/json"
	"testing"

	"github.com/ndrandal/gma-go/internal/dispatcher"
	"github.com/ndrandal/gma-go/internal/obmanager"
	"github.com/ndrandal/gma-go/internal/pool"
	"github.com/ndrandal/gma-go/internal/value"
)

type recordingNode struct{ values []value.SymbolValue }

func (r *recordingNode) OnValue(v value.SymbolValue) { r.values = append(r.values, v) }
func (r *recordingNode) Shutdown()                   {}

func newTestIngestor(t *testing.T) (*Ingestor, *dispatcher.Dispatcher, *pool.Pool, *obmanager.Manager, *int) {
	t.Helper()
	p := pool.New(1, nil)
	t.Cleanup(p.Shutdown)
	d := dispatcher.New(dispatcher.Config{Pool: p})
	m := obmanager.New(0)
	var malformed int
	in := New(d, m, nil, func() { malformed++ })
	return in, d, p, m, &malformed
}

func TestOnFrameRoutesBareSymbolToDispatcher(t *testing.T) {
	in, d, p, _, malformed := newTestIngestor(t)

	n := &recordingNode{}
	d.RegisterListener("AAPL", "price", n)

	frame, _ := json.Marshal(map[string]any{"symbol": "AAPL", "price": 101.5, "volume": 10})
	in.OnFrame(frame)
	p.Drain()

	if *malformed != 0 {
		t.Fatalf("malformed = %d, want 0", *malformed)
	}
	if len(n.values) != 1 {
		t.Fatalf("listener received %d values, want 1", len(n.values))
	}
}

func TestOnFrameRoutesL2AddToOBManager(t *testing.T) {
	in, _, _, m, malformed := newTestIngestor(t)

	frame, _ := json.Marshal(map[string]any{
		"type":   msgAdd,
		"symbol": "AAPL",
		"seq":    1,
		"side":   "bid",
		"price":  "100.25",
		"size":   10,
		"id":     1,
	})
	in.OnFrame(frame)

	if *malformed != 0 {
		t.Fatalf("malformed = %d, want 0", *malformed)
	}
	bids, _ := m.Book("AAPL").Depth(1)
	if len(bids) != 1 {
		t.Fatalf("book has %d bid levels, want 1", len(bids))
	}
}

func TestOnFrameRejectsMalformedJSON(t *testing.T) {
	in, _, _, _, malformed := newTestIngestor(t)
	in.OnFrame([]byte("not json"))
	if *malformed != 1 {
		t.Fatalf("malformed = %d, want 1", *malformed)
	}
}

func TestOnFrameRejectsUnknownMessageType(t *testing.T) {
	in, _, _, _, malformed := newTestIngestor(t)
	frame, _ := json.Marshal(map[string]any{"type": 99, "symbol": "AAPL"})
	in.OnFrame(frame)
	if *malformed != 1 {
		t.Fatalf("malformed = %d, want 1", *malformed)
	}
}

func TestOnFrameRejectsL2WithoutSymbol(t *testing.T) {
	in, _, _, _, malformed := newTestIngestor(t)
	frame, _ := json.Marshal(map[string]any{"type": msgTrade, "price": "1.0", "qty": 1})
	in.OnFrame(frame)
	if *malformed != 1 {
		t.Fatalf("malformed = %d, want 1", *malformed)
	}
}

func TestOnFrameTradeRoutesToOBManager(t *testing.T) {
	in, _, _, m, malformed := newTestIngestor(t)
	frame, _ := json.Marshal(map[string]any{
		"type":      msgTrade,
		"symbol":    "AAPL",
		"seq":       1,
		"price":     "101.00",
		"qty":       5,
		"aggressor": "buy",
	})
	in.OnFrame(frame)
	if *malformed != 0 {
		t.Fatalf("malformed = %d, want 0", *malformed)
	}
	if got := m.MetricsSnapshot().Trades; got != 1 {
		t.Fatalf("Trades = %d, want 1", got)
	}
}
