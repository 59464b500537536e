package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ndrandal/gma-go/internal/dispatcher"
	"github.com/ndrandal/gma-go/internal/nodes"
	"github.com/ndrandal/gma-go/internal/nsprovider"
	"github.com/ndrandal/gma-go/internal/pool"
	"github.com/ndrandal/gma-go/internal/store"
	"github.com/ndrandal/gma-go/internal/transport"
	"github.com/ndrandal/gma-go/internal/treebuilder"
	"github.com/ndrandal/gma-go/internal/value"
)

const (
	defaultMaxSubscriptions = 1024
	defaultOutboundQueueCap = 1024
	tokenBucketCapacity     = 64
	tokenBucketRefillPerSec = 16
)

// reqID accepts either a JSON number or string for a request id and
// renders both as a plain string internally (spec.md §6: "id (integer or
// string, stable across the session)").
type reqID string

func (r *reqID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = reqID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = reqID(n.String())
	return nil
}

type subscribeItem struct {
	ID         reqID                  `json:"id"`
	Symbol     string                 `json:"symbol"`
	Field      string                 `json:"field"`
	Pipeline   []treebuilder.NodeSpec `json:"pipeline,omitempty"`
	Operations []treebuilder.NodeSpec `json:"operations,omitempty"`
	Node       *treebuilder.NodeSpec  `json:"node,omitempty"`
	PollMs     int                    `json:"pollMs,omitempty"`
}

type subscribeEnvelope struct {
	Type     string          `json:"type"`
	ClientID string          `json:"clientId,omitempty"`
	Requests []subscribeItem `json:"requests"`
}

type cancelEnvelope struct {
	Type string   `json:"type"`
	IDs  []reqID  `json:"ids"`
}

type typeOnly struct {
	Type string `json:"type"`
}

type outSubscribed struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

type outCanceled struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

type outUpdate struct {
	Type   string      `json:"type"`
	Key    string      `json:"key"`
	Symbol string      `json:"symbol"`
	Value  value.Value `json:"value"`
	TS     int64       `json:"ts"`
}

type outError struct {
	Type    string `json:"type"`
	Where   string `json:"where"`
	Message string `json:"message"`
}

// Deps bundles the server-wide collaborators a Session's processing trees
// are wired to.
type Deps struct {
	Pool       *pool.Pool
	Dispatcher *dispatcher.Dispatcher
	Store      *store.Store
	Providers  *nsprovider.Registry
	Log        *slog.Logger
}

// Session owns one client connection's request registry, rate limiter, and
// subscription cap (spec.md §4.N).
type Session struct {
	conn     *transport.Conn
	deps     Deps
	registry *RequestRegistry
	limiter  *tokenBucket
	maxSubs  int
	log      *slog.Logger
}

// New creates a Session bound to conn. Wire conn.OnMessage to s.HandleMessage
// and conn.OnClose to s.Close before returning conn to its caller.
func New(conn *transport.Conn, deps Deps, maxSubscriptions int) *Session {
	if maxSubscriptions <= 0 {
		maxSubscriptions = defaultMaxSubscriptions
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		conn:     conn,
		deps:     deps,
		registry: NewRequestRegistry(),
		limiter:  newTokenBucket(tokenBucketCapacity, tokenBucketRefillPerSec),
		maxSubs:  maxSubscriptions,
		log:      log,
	}
	conn.OnMessage = s.HandleMessage
	conn.OnClose = s.Close
	return s
}

// HandleMessage dispatches one inbound JSON frame to subscribe/cancel
// handling. Malformed JSON or an unrecognised type is reported back to the
// client via error{where,message}, never by closing the connection
// (spec.md §7: malformed client input is reported, not fatal).
func (s *Session) HandleMessage(data []byte) {
	var t typeOnly
	if err := json.Unmarshal(data, &t); err != nil {
		s.sendError("parse", err.Error())
		return
	}
	switch t.Type {
	case "subscribe":
		s.handleSubscribe(data)
	case "cancel":
		s.handleCancel(data)
	default:
		s.sendError("dispatch", fmt.Sprintf("unknown message type %q", t.Type))
	}
}

func (s *Session) handleSubscribe(data []byte) {
	var env subscribeEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.sendError("subscribe", err.Error())
		return
	}
	for _, item := range env.Requests {
		s.handleOneSubscribe(item)
	}
}

func (s *Session) handleOneSubscribe(item subscribeItem) {
	id := string(item.ID)
	if id == "" {
		s.sendError("subscribe", "id must be non-empty")
		return
	}
	if !s.limiter.Allow() {
		s.sendError("subscribe", "rate limit exceeded")
		return
	}
	if s.registry.Len() >= s.maxSubs {
		s.sendError("subscribe", "maximum live subscriptions exceeded")
		return
	}

	tree := buildTree(item)
	req := treebuilder.Request{ID: id, Tree: tree}
	if err := treebuilder.Validate(req); err != nil {
		s.sendError("subscribe", err.Error())
		return
	}

	terminal := nodes.NewResponder(id, s.sendUpdate, func(err error) {
		s.log.Warn("session: responder send failed", "id", id, "error", err)
	})
	deps := treebuilder.Deps{
		Store:      s.deps.Store,
		Pool:       s.deps.Pool,
		Dispatcher: s.deps.Dispatcher,
		Providers:  s.deps.Providers,
	}
	root, err := treebuilder.Build(tree, deps, terminal)
	if err != nil {
		s.sendError("subscribe", err.Error())
		return
	}

	s.registry.Register(id, root)
	s.sendJSON(outSubscribed{Type: "subscribed", Key: id})
}

// buildTree maps a subscribeItem onto a treebuilder.NodeSpec per spec.md
// §4.N/§6: an explicit "node" object is used verbatim; a "pollMs" request
// becomes a pull-driven interval->accessor chain instead of a push-driven
// listener, since polling and live push are mutually exclusive delivery
// modes for the same (symbol,field) (documented as an Open Question
// resolution in DESIGN.md); otherwise a live listener chain is built.
func buildTree(item subscribeItem) treebuilder.NodeSpec {
	pipeline := item.Pipeline
	if len(pipeline) == 0 {
		pipeline = item.Operations
	}
	if item.Node != nil {
		return *item.Node
	}
	if item.PollMs >= 10 {
		return treebuilder.NodeSpec{
			Type:     "interval",
			PeriodMs: item.PollMs,
			Child: &treebuilder.NodeSpec{
				Type:     "accessor",
				Symbol:   item.Symbol,
				Field:    item.Field,
				Pipeline: pipeline,
			},
		}
	}
	return treebuilder.NodeSpec{
		Type:     "listener",
		Symbol:   item.Symbol,
		Field:    item.Field,
		Pipeline: pipeline,
	}
}

func (s *Session) handleCancel(data []byte) {
	var env cancelEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.sendError("cancel", err.Error())
		return
	}
	for _, id := range env.IDs {
		key := string(id)
		if s.registry.Unregister(key) {
			s.sendJSON(outCanceled{Type: "canceled", Key: key})
		}
	}
}

func (s *Session) sendUpdate(key string, sv value.SymbolValue) error {
	s.sendJSON(outUpdate{
		Type:   "update",
		Key:    key,
		Symbol: sv.Symbol,
		Value:  sv.Value,
		TS:     time.Now().UnixMilli(),
	})
	return nil
}

func (s *Session) sendError(where, message string) {
	s.sendJSON(outError{Type: "error", Where: where, Message: message})
}

func (s *Session) sendJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error("session: failed to marshal outbound message", "error", err)
		return
	}
	s.conn.Send(b)
}

// Close shuts down every live request tree. Safe to call multiple times;
// RequestRegistry.ShutdownAll is idempotent via map replacement.
func (s *Session) Close() {
	s.registry.ShutdownAll()
}
