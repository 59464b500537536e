// Package session implements the client-facing request registry and
// socket session (spec.md §4.N): subscribe/cancel message handling, a
// per-session token-bucket rate limiter, a bound on live subscriptions,
// and the bounded outbound queue that closes the session on overflow.
// Grounded on the teacher's internal/session package structure (one
// long-lived registration map plus a pump-backed connection), generalised
// from an ITCH broadcast session to a per-request processing-tree session.
package session

import (
	"sync"

	"github.com/ndrandal/gma-go/internal/nodes"
)

// RequestRegistry maps a session's live request ids to their processing
// tree's root node. Register replaces (and shuts down) any prior entry for
// the same id; ShutdownAll shuts down and clears every entry atomically
// under the registry's lock.
type RequestRegistry struct {
	mu       sync.Mutex
	requests map[string]nodes.Node
}

// NewRequestRegistry creates an empty registry.
func NewRequestRegistry() *RequestRegistry {
	return &RequestRegistry{requests: make(map[string]nodes.Node)}
}

// Register installs root under id, shutting down and replacing any
// previous root registered under the same id.
func (r *RequestRegistry) Register(id string, root nodes.Node) {
	r.mu.Lock()
	prev, had := r.requests[id]
	r.requests[id] = root
	r.mu.Unlock()
	if had {
		prev.Shutdown()
	}
}

// Unregister removes and shuts down id's root, if present. Reports whether
// an entry existed.
func (r *RequestRegistry) Unregister(id string) bool {
	r.mu.Lock()
	root, ok := r.requests[id]
	if ok {
		delete(r.requests, id)
	}
	r.mu.Unlock()
	if ok {
		root.Shutdown()
	}
	return ok
}

// Len reports the number of currently live requests.
func (r *RequestRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// ShutdownAll shuts down every registered root and clears the map.
func (r *RequestRegistry) ShutdownAll() {
	r.mu.Lock()
	all := r.requests
	r.requests = make(map[string]nodes.Node)
	r.mu.Unlock()
	for _, root := range all {
		root.Shutdown()
	}
}
