package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the server.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the server.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size.
	maxMessageSize = 1 << 20

	sendBuffer = 256
)

var ErrClosed = errors.New("transport: connection closed")

// Handler receives the raw payload of one inbound event.
type Handler func(data json.RawMessage)

// Bus is the event surface the rest of the client programs against:
// fire-and-forget emits and named-event subscriptions with matched
// unsubscribe functions.
type Bus interface {
	Emit(event string, payload any) error
	On(event string, h Handler) func()
}

// envelope is the wire frame: an event name plus its JSON payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn is one live socket connection. Events are dispatched to handlers in
// the order the server delivers them; the read pump never reorders.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte
	log  *zap.Logger

	mu       sync.RWMutex
	handlers map[string]map[uint64]Handler
	nextID   uint64

	done     chan struct{}
	stopOnce sync.Once
}

func newConn(ws *websocket.Conn, log *zap.Logger) *Conn {
	c := &Conn{
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
		log:      log,
		handlers: make(map[string]map[uint64]Handler),
		done:     make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()
	return c
}

// Emit sends one event to the server. Payload may be nil for events that
// carry no body (getOnlineUsers, manualDisconnect).
func (c *Conn) Emit(event string, payload any) error {
	env := envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		env.Data = data
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}

	select {
	case c.send <- raw:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// On registers a handler for an event and returns the matching unsubscribe
// function. Unsubscribing twice is harmless.
func (c *Conn) On(event string, h Handler) func() {
	c.mu.Lock()
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]Handler)
	}
	c.nextID++
	id := c.nextID
	c.handlers[event][id] = h
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		if hs, ok := c.handlers[event]; ok {
			delete(hs, id)
			if len(hs) == 0 {
				delete(c.handlers, event)
			}
		}
		c.mu.Unlock()
	}
}

// Done is closed when the connection is no longer usable.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection down. The write pump sends a normal-closure
// frame before closing the underlying socket.
func (c *Conn) Close() {
	c.stop()
}

func (c *Conn) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

func (c *Conn) dispatch(env envelope) {
	c.mu.RLock()
	hs := make([]Handler, 0, len(c.handlers[env.Event]))
	for _, h := range c.handlers[env.Event] {
		hs = append(hs, h)
	}
	c.mu.RUnlock()

	for _, h := range hs {
		h(env.Data)
	}
}

// readPump pumps events from the socket to registered handlers.
func (c *Conn) readPump() {
	defer c.stop()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { c.ws.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("socket read failed", zap.Error(err))
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			c.log.Warn("dropping malformed frame", zap.ByteString("frame", raw))
			continue
		}
		c.dispatch(env)
	}
}

// writePump pumps outbound frames and keepalive pings to the socket.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case raw := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.stop()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.stop()
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Connector owns the single shared connection for the process. The first
// Get dials; later calls return the memoized connection. Teardown closes
// it and clears the handle so a later Get dials fresh. Credentials travel
// in the dial headers; nothing at the event level carries them.
type Connector struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	log    *zap.Logger

	mu      sync.Mutex
	current *Conn
}

func NewConnector(wsURL string, header http.Header, log *zap.Logger) *Connector {
	return &Connector{
		url:    wsURL,
		header: header,
		dialer: websocket.DefaultDialer,
		log:    log,
	}
}

// Get returns the shared connection, dialing on first use. A connection
// that died on its own is replaced by a fresh dial.
func (c *Connector) Get() (*Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		select {
		case <-c.current.done:
			c.current = nil
		default:
			return c.current, nil
		}
	}

	ws, _, err := c.dialer.Dial(c.url, c.header)
	if err != nil {
		return nil, err
	}
	c.log.Info("socket connected", zap.String("url", c.url))
	c.current = newConn(ws, c.log)
	return c.current, nil
}

// Teardown closes the current connection and forgets it.
func (c *Connector) Teardown() {
	c.mu.Lock()
	conn := c.current
	c.current = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
