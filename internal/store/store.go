// Package store implements the thread-safe (symbol,field) -> Value atomic
// store, grounded on original_source's AtomicStore usage throughout
// MarketDispatcher.cpp and AtomicFunctions.cpp.
package store

import (
	"sync"

	"github.com/ndrandal/gma-go/internal/value"
)

// Store is a concurrency-safe symbol -> field -> Value map. Readers and
// writers may run concurrently; a Get observes either the previous or the
// new value of a field, never a torn one. No field-enumeration contract is
// exposed (matching spec.md §4.C).
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string]value.Value
}

// New creates an empty Store.
func New() *Store {
	return &Store{data: make(map[string]map[string]value.Value)}
}

// FieldValue pairs a field name with its value, for Set_batch.
type FieldValue struct {
	Field string
	Value value.Value
}

// Set writes a single (symbol, field) -> value entry.
func (s *Store) Set(symbol, field string, v value.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.data[symbol]
	if !ok {
		fields = make(map[string]value.Value)
		s.data[symbol] = fields
	}
	fields[field] = v
}

// SetBatch writes multiple fields for one symbol under a single lock
// acquisition.
func (s *Store) SetBatch(symbol string, fvs []FieldValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.data[symbol]
	if !ok {
		fields = make(map[string]value.Value, len(fvs))
		s.data[symbol] = fields
	}
	for _, fv := range fvs {
		fields[fv.Field] = fv.Value
	}
}

// Get returns the value for (symbol, field) and whether it was present.
func (s *Store) Get(symbol, field string) (value.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields, ok := s.data[symbol]
	if !ok {
		return value.None(), false
	}
	v, ok := fields[field]
	return v, ok
}
