// Command gmabench drives a running gmaserver with synthetic load: it
// generates a small geometric random walk per symbol and streams it to the
// feed endpoint, while optionally opening a client subscription against the
// same server to observe recomputed atomics. This server's performance
// surface is the wire protocol, not an in-process call, so the generator
// talks the same feed JSON frames a real upstream would send rather than
// calling into the server's internals directly.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// symbol is one synthetic instrument driven by the generator below. This is
// gmabench's own minimal model, not obmanager's internal integer-tick
// representation: gmabench only ever speaks the decimal-price feed wire
// format.
type symbol struct {
	Ticker    string
	BasePrice float64
	TickSize  float64
	Hot       bool // bursts extra ticks every cycle
}

func universe() []symbol {
	return []symbol{
		{"ALPHA", 100.00, 0.01, false},
		{"BETA", 52.50, 0.01, false},
		{"GAMMA", 310.25, 0.01, false},
		{"DELTA", 18.75, 0.01, false},
		{"EPSILON", 225.00, 0.01, true},
	}
}

// generator produces a bounded geometric random walk per symbol, rounded to
// its tick size and floored at one tick.
type generator struct {
	rng    *rand.Rand
	prices map[string]float64
	ticks  map[string]float64
}

const tickVolatility = 0.002 // 20bps per step

func newGenerator(seed int64, syms []symbol) *generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &generator{
		rng:    rand.New(rand.NewSource(seed)),
		prices: make(map[string]float64, len(syms)),
		ticks:  make(map[string]float64, len(syms)),
	}
	for _, s := range syms {
		g.prices[s.Ticker] = s.BasePrice
		g.ticks[s.Ticker] = s.TickSize
	}
	return g
}

func (g *generator) next(ticker string) float64 {
	price := g.prices[ticker]
	tick := g.ticks[ticker]
	price *= math.Exp(tickVolatility * g.rng.NormFloat64())
	price = math.Round(price/tick) * tick
	if price < tick {
		price = tick
	}
	g.prices[ticker] = price
	return price
}

func main() {
	addr := flag.String("addr", "localhost:9002", "gmaserver host:port")
	tickRate := flag.Duration("tickInterval", 50*time.Millisecond, "interval between tick batches")
	subscribe := flag.Bool("subscribe", true, "also open a client subscription and print updates")
	seed := flag.Int64("seed", 0, "PRNG seed (0 = time-based)")
	flag.Parse()

	syms := universe()
	gen := newGenerator(*seed, syms)

	_, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	feedConn := dial(*addr, "/feed")
	defer feedConn.Close()

	var sent atomic.Uint64
	go func() {
		t := time.NewTicker(*tickRate)
		defer t.Stop()
		for range t.C {
			for _, s := range syms {
				reps := 1
				if s.Hot {
					reps = 5
				}
				for i := 0; i < reps; i++ {
					if !sendTick(feedConn, s.Ticker, gen.next(s.Ticker)) {
						return
					}
					sent.Add(1)
				}
			}
		}
	}()

	if *subscribe {
		go runSubscriber(*addr, syms)
	}

	report := time.NewTicker(5 * time.Second)
	defer report.Stop()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-report.C:
			log.Printf("gmabench: %d ticks sent", sent.Load())
		case <-sigCh:
			log.Println("gmabench: shutting down")
			return
		}
	}
}

func sendTick(conn *websocket.Conn, ticker string, price float64) bool {
	frame := map[string]any{
		"symbol": ticker,
		"price":  price,
		"volume": 100 + rand.Intn(900),
	}
	b, _ := json.Marshal(frame)
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Printf("gmabench: feed write error: %v", err)
		return false
	}
	return true
}

func dial(addr, path string) *websocket.Conn {
	u := url.URL{Scheme: "ws", Host: addr, Path: path}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("gmabench: dial %s: %v", u.String(), err)
	}
	return conn
}

func runSubscriber(addr string, syms []symbol) {
	conn := dial(addr, "/ws")
	defer conn.Close()

	type subReq struct {
		ID     int    `json:"id"`
		Symbol string `json:"symbol"`
		Field  string `json:"field"`
	}
	type subscribeMsg struct {
		Type     string   `json:"type"`
		ClientID string   `json:"clientId"`
		Requests []subReq `json:"requests"`
	}

	var reqs []subReq
	for i, s := range syms {
		reqs = append(reqs, subReq{ID: i + 1, Symbol: s.Ticker, Field: "lastPrice"})
	}
	msg := subscribeMsg{Type: "subscribe", ClientID: "gmabench", Requests: reqs}
	b, _ := json.Marshal(msg)
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Printf("gmabench: subscribe write error: %v", err)
		return
	}

	var updates atomic.Uint64
	report := time.NewTicker(5 * time.Second)
	defer report.Stop()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Printf("gmabench: subscriber read error: %v", err)
				return
			}
			var t struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(data, &t) == nil && t.Type == "update" {
				updates.Add(1)
			}
		}
	}()
	for {
		select {
		case <-report.C:
			fmt.Printf("gmabench: %d updates received\n", updates.Load())
		case <-done:
			return
		}
	}
}
