package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/snapbooth/server/internal/protocol"
)

const (
	connectTimeout    = 10 * time.Second
	heartbeatInterval = 30 * time.Second
	reconnectAttempts = 5
	reconnectDelay    = 2 * time.Second
	writeWait         = 5 * time.Second
)

var ErrNotConnected = errors.New("transport: not connected")

// Handler receives one decoded inbound message. Exactly one handler is
// registered per message type; the last registration wins.
type Handler func(msg protocol.Message)

// Client maintains one logical connection to the signaling endpoint. It
// dispatches inbound messages to per-type handlers, keeps the connection
// alive with a heartbeat, and transparently reconnects a bounded number of
// times on unexpected close.
type Client struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	heartbeatEvery time.Duration
	retryDelay     time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    chan struct{}
	closeOnce sync.Once

	hmu      sync.Mutex
	handlers map[string]Handler

	// onDrop fires once when reconnection attempts are exhausted. The
	// application must react (e.g. prompt the user to rejoin); the client
	// performs no further automatic recovery.
	onDrop func()
}

func NewClient(url string, logger *slog.Logger) *Client {
	return &Client{
		url:            url,
		dialer:         &websocket.Dialer{HandshakeTimeout: connectTimeout},
		logger:         logger,
		heartbeatEvery: heartbeatInterval,
		retryDelay:     reconnectDelay,
		closed:         make(chan struct{}),
		handlers:       make(map[string]Handler),
	}
}

// SetDropHandler registers the callback invoked when the connection is lost
// and all reconnection attempts have failed. Must be called before Connect.
func (c *Client) SetDropHandler(f func()) {
	c.onDrop = f
}

// Connect dials the signaling endpoint and starts the read and heartbeat
// loops. Calling Connect while already connected is a no-op. Handlers
// registered before Connect stay registered; no inbound message arriving
// right after the open handshake is lost.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	select {
	case <-c.closed:
		return ErrNotConnected
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", c.url, err)
	}

	c.conn = conn
	c.connected = true

	go c.readLoop(conn)
	go c.heartbeatLoop(conn)

	return nil
}

// Send serializes and transmits one message. Messages sent while the
// connection is not open are dropped and reported as an error, never
// queued.
func (c *Client) Send(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return ErrNotConnected
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}

	return nil
}

// On registers the handler for a message type, replacing any previous one.
func (c *Client) On(messageType string, h Handler) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.handlers[messageType] = h
}

// Off removes the handler for a message type.
func (c *Client) Off(messageType string) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	delete(c.handlers, messageType)
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close shuts the connection down for good. It is idempotent and clears
// all registered handlers; no reconnection is attempted afterwards.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connected = false
	c.mu.Unlock()

	c.hmu.Lock()
	c.handlers = make(map[string]Handler)
	c.hmu.Unlock()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			c.logger.Warn("transport: read error, reconnecting", "error", err)
			c.reconnect(conn)
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("transport: dropping malformed frame", "error", err)
			continue
		}

		// heartbeat replies never reach application handlers
		if msg.MessageType() == protocol.TypePong {
			continue
		}

		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg protocol.Message) {
	c.hmu.Lock()
	h, ok := c.handlers[msg.MessageType()]
	c.hmu.Unlock()

	if !ok {
		c.logger.Debug("transport: no handler for message", "type", msg.MessageType())
		return
	}

	h(msg)
}

// heartbeatLoop serves exactly one connection, like readLoop. It exits as
// soon as its connection has been replaced so a reconnect never stacks a
// second ping loop on top of the first.
func (c *Client) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.mu.Lock()
			stale := c.conn != conn
			c.mu.Unlock()
			if stale {
				return
			}
			if err := c.Send(protocol.Ping{}); err != nil {
				return
			}
		}
	}
}

// reconnect replaces a dropped connection in place. Registered handlers
// survive the swap, so subscriptions established before the drop keep
// receiving messages on the new connection.
func (c *Client) reconnect(old *websocket.Conn) {
	c.mu.Lock()
	if c.conn != old {
		// another goroutine already replaced the connection
		c.mu.Unlock()
		return
	}
	c.connected = false
	old.Close()
	c.mu.Unlock()

	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		select {
		case <-c.closed:
			return
		case <-time.After(c.retryDelay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		cancel()
		if err != nil {
			c.logger.Warn("transport: reconnect failed", "attempt", attempt, "error", err)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.connected = true
		c.mu.Unlock()

		c.logger.Info("transport: reconnected", "attempt", attempt)
		go c.readLoop(conn)
		go c.heartbeatLoop(conn)
		return
	}

	c.logger.Error("transport: reconnect attempts exhausted")
	if c.onDrop != nil {
		c.onDrop()
	}
}
