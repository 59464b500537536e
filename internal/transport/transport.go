// Package transport provides the WebSocket connection plumbing shared by
// the client-facing session package and the feed-ingestion package: an
// upgrader, a bounded outbound queue, and read/write pump goroutines.
// Grounded on the teacher's internal/session/handler.go (ping/pong
// deadlines, single reader/writer goroutine pair per connection), made
// protocol-agnostic by handing inbound frames to a caller-supplied
// OnMessage callback instead of an ITCH-specific switch.
package transport

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Upgrader is shared by every endpoint that accepts WebSocket connections.
// CheckOrigin is permissive, matching the teacher: this server sits behind
// a gateway that owns origin policy.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn wraps a *websocket.Conn with a bounded outbound queue and the pump
// goroutines that drain it. A full queue closes the connection rather than
// blocking the writer that produced the message (spec.md's bounded-queue
// backpressure policy, applied here at the transport layer).
type Conn struct {
	ID       string
	ws       *websocket.Conn
	send     chan []byte
	closed   chan struct{}
	closeOnce sync.Once
	log      *slog.Logger

	// OnMessage is invoked from the read pump's goroutine for every
	// inbound text/binary frame. OnClose is invoked once, by the first
	// Close call (a pump exiting, a full outbound queue, or an explicit
	// Close).
	OnMessage func(data []byte)
	OnClose   func()
}

// Accept upgrades r/w to a WebSocket and starts its pumps. queueCap bounds
// the outbound queue; exceeding it closes the connection.
func Accept(w http.ResponseWriter, r *http.Request, queueCap int, log *slog.Logger) (*Conn, error) {
	ws, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Conn{
		ID:     uuid.NewString(),
		ws:     ws,
		send:   make(chan []byte, queueCap),
		closed: make(chan struct{}),
		log:    log,
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

// Send enqueues data for delivery. Returns false (and closes the
// connection) if the outbound queue is full.
func (c *Conn) Send(data []byte) bool {
	select {
	case c.send <- data:
		return true
	case <-c.closed:
		return false
	default:
		c.log.Warn("transport: outbound queue full, closing connection")
		c.Close()
		return false
	}
}

// Close closes the connection exactly once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
		if c.OnClose != nil {
			c.OnClose()
		}
	})
}

// Done is closed once the connection has been torn down.
func (c *Conn) Done() <-chan struct{} { return c.closed }

func (c *Conn) readPump() {
	defer c.Close()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("transport: read error", "error", err)
			}
			return
		}
		if c.OnMessage != nil {
			c.OnMessage(data)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
