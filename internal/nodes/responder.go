package nodes

import (
	"fmt"
	"sync"

	"github.com/ndrandal/gma-go/internal/value"
)

// SendFunc delivers one value to the remote client under key (e.g. the
// request id). It must not be called while any of this package's locks are
// held, and is invoked exactly that way by Responder.
type SendFunc func(key string, sv value.SymbolValue) error

// Responder is the terminal node of a request tree: it forwards every
// value to send, outside any lock, and swallows (logging via onError) both
// returned errors and panics from send. After Shutdown, values are
// dropped. Grounded on original_source/src/nodes/ResponderNode.cpp.
type Responder struct {
	lifecycle
	key     string
	onError func(error)

	mu   sync.RWMutex
	send SendFunc
}

// NewResponder creates a Responder that calls send(key, sv) for every
// value it receives. onError may be nil (errors are then dropped silently).
func NewResponder(key string, send SendFunc, onError func(error)) *Responder {
	if onError == nil {
		onError = func(error) {}
	}
	return &Responder{key: key, send: send, onError: onError}
}

func (r *Responder) OnValue(sv value.SymbolValue) {
	if r.stopped() {
		return
	}
	r.mu.RLock()
	send := r.send
	r.mu.RUnlock()
	if send == nil {
		return
	}
	r.callSend(send, sv)
}

func (r *Responder) callSend(send SendFunc, sv value.SymbolValue) {
	defer func() {
		if rec := recover(); rec != nil {
			r.onError(fmt.Errorf("responder: send panicked: %v", rec))
		}
	}()
	if err := send(r.key, sv); err != nil {
		r.onError(err)
	}
}

// Shutdown releases the send callback; subsequent OnValue calls drop.
func (r *Responder) Shutdown() {
	if !r.beginShutdown() {
		return
	}
	r.mu.Lock()
	r.send = nil
	r.mu.Unlock()
	r.finishShutdown()
}
