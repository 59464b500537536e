package nodes

import (
	"sync"

	"github.com/ndrandal/gma-go/internal/value"
)

// SymbolSplitFactory creates the child node for a newly-seen symbol.
type SymbolSplitFactory func(symbol string) Node

// SymbolSplit lazily creates one child per symbol on first sight via
// factory; subsequent values for that symbol are forwarded to the same
// child. Shutdown shuts down every child. Grounded on
// original_source/src/nodes/SymbolSplitNode.cpp.
type SymbolSplit struct {
	lifecycle
	factory SymbolSplitFactory

	mu       sync.Mutex
	children map[string]Node
}

// NewSymbolSplit creates a SymbolSplit using factory to build each symbol's
// child lazily.
func NewSymbolSplit(factory SymbolSplitFactory) *SymbolSplit {
	return &SymbolSplit{factory: factory, children: make(map[string]Node)}
}

func (s *SymbolSplit) OnValue(sv value.SymbolValue) {
	if s.stopped() {
		return
	}
	s.mu.Lock()
	child, ok := s.children[sv.Symbol]
	if !ok && s.children != nil {
		child = s.factory(sv.Symbol)
		s.children[sv.Symbol] = child
	}
	s.mu.Unlock()
	if child != nil {
		child.OnValue(sv)
	}
}

// Shutdown shuts down every child created so far and releases them.
func (s *SymbolSplit) Shutdown() {
	if !s.beginShutdown() {
		return
	}
	s.mu.Lock()
	children := s.children
	s.children = nil
	s.mu.Unlock()
	for _, c := range children {
		if c != nil {
			c.Shutdown()
		}
	}
	s.finishShutdown()
}
