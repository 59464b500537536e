package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ndrandal/gma-go/internal/metrics"
	"github.com/ndrandal/gma-go/internal/obmanager"
	"github.com/ndrandal/gma-go/internal/orderbook"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	m := obmanager.New(0)
	m.OnAdd("AAPL", 1, orderbook.OrderKey{ID: 1}, orderbook.SideBid, 100.00, 10, 1)
	m.OnAdd("AAPL", 2, orderbook.OrderKey{ID: 2}, orderbook.SideAsk, 100.05, 5, 1)
	return &Server{OBManager: m, Metrics: metrics.New()}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	rec := get(t, newTestServer(t).Handler(), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleSymbolsListsKnownBooks(t *testing.T) {
	rec := get(t, newTestServer(t).Handler(), "/api/symbols")
	var body struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(body.Symbols) != 1 || body.Symbols[0] != "AAPL" {
		t.Fatalf("symbols = %v, want [AAPL]", body.Symbols)
	}
}

func TestHandleBookReturnsLevels(t *testing.T) {
	rec := get(t, newTestServer(t).Handler(), "/api/book/AAPL?depth=5")
	var body struct {
		Bids []decimalLevel `json:"bids"`
		Asks []decimalLevel `json:"asks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	const eps = 1e-9
	if len(body.Bids) != 1 || body.Bids[0].Price < 100.00-eps || body.Bids[0].Price > 100.00+eps {
		t.Fatalf("bids = %+v, want one level at 100.00", body.Bids)
	}
	if len(body.Asks) != 1 || body.Asks[0].Price < 100.05-eps || body.Asks[0].Price > 100.05+eps {
		t.Fatalf("asks = %+v, want one level at 100.05", body.Asks)
	}
}

func TestHandleBookRequiresSymbol(t *testing.T) {
	rec := get(t, newTestServer(t).Handler(), "/api/book/")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleObKeyEvaluatesSpread(t *testing.T) {
	rec := get(t, newTestServer(t).Handler(), "/api/obkeys/AAPL?key=ob.spread")
	var body struct {
		Value float64 `json:"value"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got, want := body.Value, 0.05; got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("spread = %v, want %v", got, want)
	}
}

func TestHandleObKeyRejectsBadKey(t *testing.T) {
	rec := get(t, newTestServer(t).Handler(), "/api/obkeys/AAPL?key=not.a.key")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleMetricsReturnsSnapshot(t *testing.T) {
	s := newTestServer(t)
	s.Metrics.Counter("feed_malformed_frames_total").Inc()

	rec := get(t, s.Handler(), "/api/metrics")
	var snap struct {
		Counters map[string]uint64 `json:"counters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if snap.Counters["feed_malformed_frames_total"] != 1 {
		t.Fatalf("counters = %v, want feed_malformed_frames_total=1", snap.Counters)
	}
}
