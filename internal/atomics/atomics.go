// Package atomics implements the fixed table of technical-indicator
// "atomics" computed from a symbol's tick history, grounded on
// original_source/src/core/AtomicFunctions.cpp's computeAllAtomicValues,
// per the table in spec.md §4.F (which is authoritative over the source
// where the two disagree -- see spec.md §9 on the MACD-signal bug and
// SPEC_FULL.md's resolution notes).
package atomics

import (
	"math"
	"sync"

	"github.com/ndrandal/gma-go/internal/history"
	"github.com/ndrandal/gma-go/internal/value"
)

// Periods configures the indicator periods read from configuration
// (spec.md §6: taSMA/taEMA/taVWAP/taMED/taMIN/taMAX/taSTD/taRSI).
type Periods struct {
	SMA, EMA, VWAP, Median, Min, Max, Stddev []int
	RSI                                      int
}

// DefaultPeriods mirrors common defaults seen across the indicator set.
func DefaultPeriods() Periods {
	return Periods{
		SMA:    []int{5, 10, 20, 50},
		EMA:    []int{12, 26},
		VWAP:   []int{20},
		Median: []int{20},
		Min:    []int{20},
		Max:    []int{20},
		Stddev: []int{20},
		RSI:    14,
	}
}

// Computer evaluates the fixed atomic table for each new sample. It keeps a
// small per-symbol rolling history of the macd_line sequence so macd_signal
// can be a genuine 9-period EMA of that line, rather than of price.
type Computer struct {
	periods Periods

	mu           sync.Mutex
	macdLineHist map[string][]float64
}

const macdSignalPeriod = 9
const macdHistCap = 64

// New creates a Computer configured with the given indicator periods.
func New(periods Periods) *Computer {
	return &Computer{periods: periods, macdLineHist: make(map[string][]float64)}
}

// Compute evaluates every atomic whose precondition is met against hist
// (oldest first) and returns the (field, value) pairs to write into the
// atomic store. Static placeholders are always included.
func (c *Computer) Compute(symbol string, hist []history.TickEntry) []FieldValue {
	n := len(hist)
	var out []FieldValue
	set := func(field string, v float64) {
		out = append(out, FieldValue{Field: field, Value: value.Float(v)})
	}

	prices := make([]float64, n)
	volumes := make([]float64, n)
	for i, e := range hist {
		prices[i] = e.Price
		volumes[i] = e.Volume
	}

	if n >= 1 {
		set("lastPrice", prices[n-1])
		set("openPrice", prices[0])
		set("highPrice", maxOf(prices))
		set("lowPrice", minOf(prices))
		set("mean", meanOf(prices))
		set("median", medianOf(prices))
		set("volume", volumes[n-1])
	}

	if n >= 2 {
		set("prevClose", prices[n-2])
		set("vwap", vwap(prices, volumes))
		set("obv", obv(prices, volumes))
	}

	for _, k := range c.periods.SMA {
		if n >= k {
			set(smaKey(k), smaAt(prices, n, k))
		}
	}

	emaLine := make(map[int]float64, len(c.periods.EMA))
	for _, k := range c.periods.EMA {
		if n >= k {
			v := emaAt(prices, n, k)
			emaLine[k] = v
			set(emaKey(k), v)
		}
	}

	if n >= 15 {
		set("rsi_14", rsi(prices, 14))
	}

	macdLine, haveMACD := 0.0, false
	if e12, ok12 := emaLine[12]; ok12 && n >= 26 {
		if e26, ok26 := emaAtOK(prices, n, 26); ok26 {
			macdLine = e12 - e26
			haveMACD = true
			set("macd_line", macdLine)
		}
	}
	if haveMACD {
		if sig, ok := c.macdSignal(symbol, macdLine); ok {
			set("macd_signal", sig)
		}
	}

	if n >= 20 {
		sma20 := smaAt(prices, n, 20)
		std20 := stddevAt(prices, n, 20)
		set("bollinger_upper", sma20+2*std20)
		set("bollinger_lower", sma20-2*std20)
		set("volume_avg_20", meanOf(lastN(volumes, n, 20)))
	}

	for _, k := range c.periods.Median {
		if n >= k {
			set(medianKey(k), medianOf(lastN(prices, n, k)))
		}
	}
	for _, k := range c.periods.Min {
		if n >= k {
			set(minKey(k), minOf(lastN(prices, n, k)))
		}
	}
	for _, k := range c.periods.Max {
		if n >= k {
			set(maxKey(k), maxOf(lastN(prices, n, k)))
		}
	}
	for _, k := range c.periods.Stddev {
		if n >= k {
			set(stddevKey(k), stddevAt(prices, n, k))
		}
	}

	if n >= 11 {
		set("momentum_10", prices[n-1]-prices[n-11])
		if prices[n-11] != 0 {
			set("roc_10", (prices[n-1]-prices[n-11])/prices[n-11]*100)
		}
	}
	if n >= 15 {
		set("atr_14", atr(prices, 14))
	}

	mean := meanOf(prices)
	if n >= 20 && mean != 0 {
		std20 := stddevAt(prices, n, 20)
		set("volatility_rank", math.Min(std20/math.Abs(mean), 1))
	}

	out = append(out,
		FieldValue{Field: "isHalted", Value: value.Int(0)},
		FieldValue{Field: "marketState", Value: value.String("Open")},
		FieldValue{Field: "timeSinceOpen", Value: value.Int(60)},
		FieldValue{Field: "timeUntilClose", Value: value.Int(300)},
	)
	return out
}

// FieldValue pairs an atomic key with its computed Value.
type FieldValue struct {
	Field string
	Value value.Value
}

func (c *Computer) macdSignal(symbol string, line float64) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := append(c.macdLineHist[symbol], line)
	if len(seq) > macdHistCap {
		seq = seq[len(seq)-macdHistCap:]
	}
	c.macdLineHist[symbol] = seq
	if len(seq) < macdSignalPeriod {
		return 0, false
	}
	return emaAt(seq, len(seq), macdSignalPeriod), true
}

func lastN(s []float64, n, k int) []float64 { return s[n-k:] }

func smaAt(prices []float64, n, k int) float64 { return meanOf(lastN(prices, n, k)) }

func emaAt(prices []float64, n, k int) float64 {
	v, _ := emaAtOK(prices, n, k)
	return v
}

// emaAtOK seeds with the simple moving average of the first k available
// samples (per spec.md §4.F: "seeded with sma_k ... then alpha = 2/(k+1)")
// and blends forward one sample at a time through the rest of the history.
func emaAtOK(prices []float64, n, k int) (float64, bool) {
	if n < k {
		return 0, false
	}
	alpha := 2.0 / float64(k+1)
	ema := meanOf(prices[:k])
	for _, p := range prices[k:n] {
		ema = alpha*p + (1-alpha)*ema
	}
	return ema, true
}

func vwap(prices, volumes []float64) float64 {
	var pv, v float64
	for i := range prices {
		pv += prices[i] * volumes[i]
		v += volumes[i]
	}
	if v <= 0 {
		return 0
	}
	return pv / v
}

func obv(prices, volumes []float64) float64 {
	var total float64
	for i := 1; i < len(prices); i++ {
		switch {
		case prices[i] > prices[i-1]:
			total += volumes[i]
		case prices[i] < prices[i-1]:
			total -= volumes[i]
		}
	}
	return total
}

// rsi computes the simple-average gain/loss form over the last `period`
// deltas, per spec.md §4.F ("simple-average form"), not the Wilder-smoothed
// variant found in original_source/include/gma/ta/Indicators.hpp.
func rsi(prices []float64, period int) float64 {
	n := len(prices)
	start := n - period - 1
	var gain, loss float64
	for i := start + 1; i < n; i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gain += d
		} else {
			loss += -d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	if avgLoss == 0 {
		avgLoss = 1e-6 // documented epsilon substitution, see spec.md §4.F ambiguity note
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func atr(prices []float64, period int) float64 {
	n := len(prices)
	start := n - period - 1
	var total float64
	for i := start + 1; i < n; i++ {
		total += math.Abs(prices[i] - prices[i-1])
	}
	return total / float64(period)
}

func meanOf(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}

func medianOf(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	cp := append([]float64(nil), s...)
	for i := 1; i < len(cp); i++ {
		for j := i; j > 0 && cp[j-1] > cp[j]; j-- {
			cp[j-1], cp[j] = cp[j], cp[j-1]
		}
	}
	mid := len(cp) / 2
	if len(cp)%2 == 1 {
		return cp[mid]
	}
	return (cp[mid-1] + cp[mid]) / 2
}

func stddevAt(prices []float64, n, k int) float64 {
	window := lastN(prices, n, k)
	m := meanOf(window)
	var sq float64
	for _, v := range window {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(window)))
}

func minOf(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	m := s[0]
	for _, v := range s[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	m := s[0]
	for _, v := range s[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
