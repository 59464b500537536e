// Package history implements the bounded per-symbol tick history (§4.D) and
// the per-(symbol,field) numeric sample history maintained by the market
// dispatcher.
package history

import "sync"

// TickEntry is an element of a symbol's raw price/volume history.
type TickEntry struct {
	Price  float64
	Volume float64
}

// Store is a concurrency-safe collection of bounded per-symbol deques of
// TickEntry, evicting the oldest entry once a symbol's sequence exceeds Max.
type Store struct {
	mu   sync.Mutex
	max  int
	data map[string][]TickEntry
}

// New creates a Store bounded by max entries per symbol. max must be >= 1.
func New(max int) *Store {
	if max < 1 {
		max = 1
	}
	return &Store{max: max, data: make(map[string][]TickEntry)}
}

// Push appends entry to symbol's history, evicting the oldest if over
// capacity.
func (s *Store) Push(symbol string, entry TickEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := append(s.data[symbol], entry)
	if len(seq) > s.max {
		seq = seq[len(seq)-s.max:]
	}
	s.data[symbol] = seq
}

// Copy returns a snapshot of symbol's history, oldest first.
func (s *Store) Copy(symbol string) []TickEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.data[symbol]
	out := make([]TickEntry, len(src))
	copy(out, src)
	return out
}

// Len returns the current history length for symbol.
func (s *Store) Len(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data[symbol])
}

// FieldStore is a concurrency-safe collection of bounded per-(symbol,field)
// deques of raw float64 samples, used by the market dispatcher to feed the
// function registry.
type FieldStore struct {
	mu   sync.Mutex
	max  int
	data map[string]map[string][]float64
}

// NewFieldStore creates a FieldStore bounded by max samples per
// (symbol,field).
func NewFieldStore(max int) *FieldStore {
	if max < 1 {
		max = 1
	}
	return &FieldStore{max: max, data: make(map[string]map[string][]float64)}
}

// PushAndCopy appends v to (symbol,field), evicts excess, and returns a
// snapshot copy of the resulting sequence -- all under one lock acquisition,
// matching the dispatcher's "append, then copy while still locked" ordering
// guarantee from spec.md §4.K.
func (s *FieldStore) PushAndCopy(symbol, field string, v float64) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.data[symbol]
	if !ok {
		fields = make(map[string][]float64)
		s.data[symbol] = fields
	}
	seq := append(fields[field], v)
	if len(seq) > s.max {
		seq = seq[len(seq)-s.max:]
	}
	fields[field] = seq

	out := make([]float64, len(seq))
	copy(out, seq)
	return out
}

// Latest returns the most recent sample pushed for (symbol,field), if any.
func (s *FieldStore) Latest(symbol, field string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.data[symbol][field]
	if len(seq) == 0 {
		return 0, false
	}
	return seq[len(seq)-1], true
}
