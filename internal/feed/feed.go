// Package feed ingests upstream market-data frames (spec.md §6: "Feed
// protocol"): plain JSON objects arriving over a WebSocket, routed either
// to the dispatcher (tick frames, identified by a bare "symbol" field) or
// to an obmanager.Manager book operation (L2 frames, identified by a
// numeric "type" field). Grounded on
// original_source/src/server/FeedServer.cpp's read-and-route loop,
// generalised from FeedServer's tick-only routing to also cover L2 events,
// and on shopspring/decimal for exact wire-price parsing ahead of tick
// quantization (the examples pack's usual choice for money-shaped
// decimals, see DESIGN.md).
package feed

import (
	"encoding/json"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/ndrandal/gma-go/internal/dispatcher"
	"github.com/ndrandal/gma-go/internal/obmanager"
	"github.com/ndrandal/gma-go/internal/orderbook"
	"github.com/ndrandal/gma-go/internal/transport"
)

// L2 frame type codes. The numbering is the feed protocol's own
// enumeration (spec.md §6: "Message Type ∈ {0,3,4,5,6}"); values between
// known codes are reserved by the upstream protocol for frame kinds this
// server does not need to interpret.
const (
	msgAdd          = 0
	msgUpdate       = 3
	msgDelete       = 4
	msgTrade        = 5
	msgLevelSummary = 6
)

type frame struct {
	Symbol string `json:"symbol"`

	Type     *int    `json:"type"`
	Seq      uint64  `json:"seq"`
	Side     string  `json:"side"`
	Price    string  `json:"price"`
	Size     uint64  `json:"size"`
	ID       uint64  `json:"id"`
	FeedID   uint32  `json:"feedId"`
	Epoch    uint32  `json:"epoch"`
	Priority uint64  `json:"priority"`
	VenueKey string  `json:"venueKey,omitempty"`

	NewPrice *string `json:"newPrice,omitempty"`
	NewSize  *uint64 `json:"newSize,omitempty"`

	Qty       uint64 `json:"qty,omitempty"`
	Aggressor string `json:"aggressor,omitempty"`

	TotalSize  uint64 `json:"totalSize,omitempty"`
	OrderCount uint32 `json:"orderCount,omitempty"`
}

// Ingestor routes inbound feed frames to the dispatcher (ticks) or the
// order-book manager (L2 events).
type Ingestor struct {
	Dispatcher *dispatcher.Dispatcher
	OBManager  *obmanager.Manager
	Log        *slog.Logger

	malformed func()
}

// New creates an Ingestor. onMalformed, if non-nil, is invoked once per
// frame that fails to parse or route (spec.md §7: malformed feed traffic
// counts a metric and is dropped).
func New(d *dispatcher.Dispatcher, m *obmanager.Manager, log *slog.Logger, onMalformed func()) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	if onMalformed == nil {
		onMalformed = func() {}
	}
	return &Ingestor{Dispatcher: d, OBManager: m, Log: log, malformed: onMalformed}
}

// Handle connects a feed WebSocket endpoint, wiring every inbound frame to
// OnFrame.
func (in *Ingestor) Handle(conn *transport.Conn) {
	conn.OnMessage = in.OnFrame
}

// OnFrame parses and routes one inbound frame.
func (in *Ingestor) OnFrame(data []byte) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		in.Log.Debug("feed: malformed frame", "error", err)
		in.malformed()
		return
	}

	if _, hasType := raw["type"]; !hasType {
		if _, hasSymbol := raw["symbol"]; hasSymbol {
			in.routeTick(raw)
			return
		}
	}

	var f frame
	if err := json.Unmarshal(data, &f); err != nil || f.Type == nil {
		in.Log.Debug("feed: unrecognised frame", "raw", string(data))
		in.malformed()
		return
	}
	in.routeL2(f)
}

func (in *Ingestor) routeTick(raw map[string]any) {
	symbol, _ := raw["symbol"].(string)
	if symbol == "" {
		in.malformed()
		return
	}
	fields := make(map[string]any, len(raw)-1)
	for k, v := range raw {
		if k == "symbol" {
			continue
		}
		fields[k] = v
	}
	in.Dispatcher.OnTick(dispatcher.Tick{Symbol: symbol, Fields: fields})
}

func (in *Ingestor) routeL2(f frame) {
	if f.Symbol == "" {
		in.malformed()
		return
	}

	switch *f.Type {
	case msgAdd:
		in.handleAdd(f)
	case msgUpdate:
		in.handleUpdate(f)
	case msgDelete:
		in.handleDelete(f)
	case msgTrade:
		in.handleTrade(f)
	case msgLevelSummary:
		in.handleLevelSummary(f)
	default:
		in.malformed()
	}
}

func parseSide(s string) (orderbook.Side, bool) {
	switch s {
	case "bid":
		return orderbook.SideBid, true
	case "ask":
		return orderbook.SideAsk, true
	default:
		return 0, false
	}
}

func parsePrice(s string) (float64, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

func (in *Ingestor) handleAdd(f frame) {
	side, ok := parseSide(f.Side)
	px, pok := parsePrice(f.Price)
	if !ok || !pok || !in.OBManager.ValidatePrice(f.Symbol, px) {
		in.malformed()
		return
	}
	key := orderbook.OrderKey{ID: f.ID, FeedID: f.FeedID, Epoch: f.Epoch}
	if f.VenueKey != "" {
		in.OBManager.OnAddWithVenueKey(f.Symbol, f.Seq, f.VenueKey, key, side, px, f.Size, f.Priority)
		return
	}
	in.OBManager.OnAdd(f.Symbol, f.Seq, key, side, px, f.Size, f.Priority)
}

func (in *Ingestor) handleUpdate(f frame) {
	var newPrice *float64
	if f.NewPrice != nil {
		px, ok := parsePrice(*f.NewPrice)
		if !ok {
			in.malformed()
			return
		}
		newPrice = &px
	}
	if f.VenueKey != "" {
		in.OBManager.OnUpdateByVenueKey(f.Symbol, f.Seq, f.VenueKey, newPrice, f.NewSize)
		return
	}
	key := orderbook.OrderKey{ID: f.ID, FeedID: f.FeedID, Epoch: f.Epoch}
	in.OBManager.OnUpdate(f.Symbol, f.Seq, key, newPrice, f.NewSize)
}

func (in *Ingestor) handleDelete(f frame) {
	if f.VenueKey != "" {
		in.OBManager.OnDeleteByVenueKey(f.Symbol, f.Seq, f.VenueKey)
		return
	}
	key := orderbook.OrderKey{ID: f.ID, FeedID: f.FeedID, Epoch: f.Epoch}
	in.OBManager.OnDelete(f.Symbol, f.Seq, key)
}

func (in *Ingestor) handleTrade(f frame) {
	px, ok := parsePrice(f.Price)
	if !ok {
		in.malformed()
		return
	}
	aggressor := orderbook.AggressorUnknown
	switch f.Aggressor {
	case "buy":
		aggressor = orderbook.AggressorBuy
	case "sell":
		aggressor = orderbook.AggressorSell
	}
	in.OBManager.OnTrade(f.Symbol, f.Seq, px, f.Qty, aggressor)
}

func (in *Ingestor) handleLevelSummary(f frame) {
	side, ok := parseSide(f.Side)
	px, pok := parsePrice(f.Price)
	if !ok || !pok {
		in.malformed()
		return
	}
	in.OBManager.OnLevelSummary(f.Symbol, f.Seq, side, px, f.TotalSize, f.OrderCount)
}
