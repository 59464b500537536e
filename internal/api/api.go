// Package api is the diagnostics REST surface: read-only endpoints for
// inspecting live symbols, order-book depth, ob.* key evaluation, metrics,
// and liveness. Grounded on the teacher's internal/api package (a small
// net/http mux of JSON GET handlers over live server state), generalised
// from feed-sim's symbol/book/trade endpoints to this server's order-book
// and obkey domain.
package api

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"strconv"

	"github.com/ndrandal/gma-go/internal/metrics"
	"github.com/ndrandal/gma-go/internal/obkey"
	"github.com/ndrandal/gma-go/internal/obmanager"
	"github.com/ndrandal/gma-go/internal/orderbook"
)

// Server bundles the collaborators the diagnostics endpoints read from.
type Server struct {
	OBManager *obmanager.Manager
	Metrics   *metrics.Registry
}

// Handler builds the diagnostics mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/symbols", s.handleSymbols)
	mux.HandleFunc("/api/book/", s.handleBook)
	mux.HandleFunc("/api/obkeys/", s.handleObKey)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	syms := s.OBManager.Symbols()
	sort.Strings(syms)
	writeJSON(w, http.StatusOK, map[string]any{"symbols": syms})
}

// handleBook serves /api/book/{symbol}[?depth=N].
func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Path[len("/api/book/"):]
	if symbol == "" {
		writeErr(w, http.StatusBadRequest, "symbol is required")
		return
	}
	depth := 10
	if q := r.URL.Query().Get("depth"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			depth = n
		}
	}
	b := s.OBManager.Book(symbol)
	bids, asks := b.Depth(depth)
	dump := r.URL.Query().Has("dump")
	resp := map[string]any{
		"symbol": symbol,
		"bids":   toDecimalLevels(s.OBManager, symbol, bids),
		"asks":   toDecimalLevels(s.OBManager, symbol, asks),
		"stale":  s.OBManager.IsStale(symbol),
	}
	if dump {
		resp["dump"] = b.DumpLadder(depth)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleObKey serves /api/obkeys/{symbol}?key=ob.spread.
func (s *Server) handleObKey(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Path[len("/api/obkeys/"):]
	key := r.URL.Query().Get("key")
	if symbol == "" || key == "" {
		writeErr(w, http.StatusBadRequest, "symbol and key are required")
		return
	}
	k, err := obkey.Parse(key)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	snap := s.OBManager.BuildSnapshot(symbol)
	v := obkey.Evaluate(k, snap)
	var jsonValue any = v
	if math.IsNaN(v) || math.IsInf(v, 0) {
		jsonValue = nil
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "key": key, "value": jsonValue})
}

type decimalLevel struct {
	Price      float64 `json:"price"`
	TotalSize  uint64  `json:"totalSize"`
	OrderCount uint32  `json:"orderCount"`
}

func toDecimalLevels(m *obmanager.Manager, symbol string, levels []orderbook.AggLevel) []decimalLevel {
	out := make([]decimalLevel, len(levels))
	for i, l := range levels {
		out[i] = decimalLevel{
			Price:      m.ToDouble(symbol, l.Price),
			TotalSize:  l.TotalSize,
			OrderCount: l.OrderCount,
		}
	}
	return out
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.Metrics == nil {
		writeJSON(w, http.StatusOK, metrics.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.Metrics.Snapshot())
}
