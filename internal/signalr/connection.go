// Package signalr implements a minimal client for the SignalR JSON hub
// protocol over websockets: skip-negotiation dial, record-separated framing,
// fire-and-forget invocations, keepalive pings, and automatic reconnection
// with exponential backoff.
package signalr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

var (
	// ErrNotConnected is returned by Invoke while the connection is down.
	ErrNotConnected = errors.New("signalr: not connected")
	// ErrClosed is returned by Start after Close has been called.
	ErrClosed = errors.New("signalr: connection closed")
)

// TokenProvider returns the bearer credential for a connection attempt.
// It is called fresh on every dial so rotated tokens are picked up; any
// "Bearer " prefix is stripped before use.
type TokenProvider func() (string, error)

// Config holds connection configuration.
type Config struct {
	// URL is the full ws:// or wss:// hub endpoint.
	URL string
	// Token supplies the access token per attempt. Optional.
	Token TokenProvider
	// HandshakeTimeout bounds the websocket upgrade plus hub handshake.
	HandshakeTimeout time.Duration
	// KeepAliveInterval is the client ping cadence.
	KeepAliveInterval time.Duration
	// ReconnectInitialWait seeds the exponential backoff between
	// reconnection attempts.
	ReconnectInitialWait time.Duration
	Logger               *slog.Logger
}

// Connection is a persistent hub connection. It dispatches inbound
// invocations to registered handlers in transport delivery order and
// reconnects on its own after a dropped link.
type Connection struct {
	cfg Config
	log *slog.Logger

	mu             sync.Mutex
	ws             *websocket.Conn
	connected      bool
	started        bool
	closed         bool
	handlers       map[string]func(args []json.RawMessage)
	onConnected    []func(reconnected bool)
	onDisconnected []func()

	// writeMu serializes websocket writes; gorilla/websocket allows only
	// one concurrent writer.
	writeMu sync.Mutex

	done chan struct{}
}

// New creates a connection. Start must be called before it is usable.
func New(cfg Config) *Connection {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 15 * time.Second
	}
	if cfg.ReconnectInitialWait <= 0 {
		cfg.ReconnectInitialWait = 500 * time.Millisecond
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Connection{
		cfg:      cfg,
		log:      log,
		handlers: make(map[string]func(args []json.RawMessage)),
		done:     make(chan struct{}),
	}
}

// On registers the handler for a hub event, replacing any previous one.
func (c *Connection) On(target string, handler func(args []json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[target] = handler
}

// Off removes the handler for a hub event. Events arriving afterwards are
// dropped, which is why callers detach handlers before stopping the
// connection.
func (c *Connection) Off(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, target)
}

// OnConnected registers a callback fired after every successful handshake,
// with reconnected=true for all but the first.
func (c *Connection) OnConnected(f func(reconnected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnected = append(c.onConnected, f)
}

// OnDisconnected registers a callback fired when the link drops.
func (c *Connection) OnDisconnected(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnected = append(c.onDisconnected, f)
}

// Connected reports whether the hub handshake currently holds.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Start dials the hub and performs the protocol handshake. At most one
// live connection exists per Connection: a second Start while one is up is
// a guarded no-op.
func (c *Connection) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		c.log.Debug("start ignored, connection already started")
		return nil
	}
	c.started = true
	c.mu.Unlock()

	ws, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.connected = true
	c.mu.Unlock()

	c.fireConnected(false)

	go c.run(ws)
	go c.keepalive()

	return nil
}

// Invoke sends a fire-and-forget invocation. No completion is awaited; the
// hub's reply, if any, arrives as a separate inbound event.
func (c *Connection) Invoke(ctx context.Context, target string, args ...any) error {
	c.mu.Lock()
	ws, connected := c.ws, c.connected
	c.mu.Unlock()

	if !connected || ws == nil {
		return ErrNotConnected
	}

	rawArgs := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal argument: %w", err)
		}
		rawArgs = append(rawArgs, data)
	}

	frame, err := encodeFrame(invocationMessage{
		Type:      typeInvocation,
		Target:    target,
		Arguments: rawArgs,
	})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		ws.SetWriteDeadline(deadline)
		defer ws.SetWriteDeadline(time.Time{})
	}
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("invoke %s: %w", target, err)
	}
	return nil
}

// Close stops the connection permanently. Safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	c.ws = nil
	c.connected = false
	c.mu.Unlock()

	close(c.done)

	if ws != nil {
		c.writeMu.Lock()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		return ws.Close()
	}
	return nil
}

// dial establishes the websocket and completes the hub protocol handshake.
func (c *Connection) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint := c.cfg.URL
	if c.cfg.Token != nil {
		token, err := c.cfg.Token()
		if err != nil {
			return nil, fmt.Errorf("resolve token: %w", err)
		}
		token = strings.TrimPrefix(token, "Bearer ")
		if token != "" {
			sep := "?"
			if strings.Contains(endpoint, "?") {
				sep = "&"
			}
			endpoint += sep + "access_token=" + url.QueryEscape(token)
		}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	frame, err := encodeFrame(handshakeRequest{Protocol: "json", Version: 1})
	if err != nil {
		ws.Close()
		return nil, err
	}
	ws.SetWriteDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send handshake: %w", err)
	}
	ws.SetWriteDeadline(time.Time{})

	ws.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	ws.SetReadDeadline(time.Time{})

	frames := splitFrames(data)
	if len(frames) == 0 {
		ws.Close()
		return nil, fmt.Errorf("read handshake: empty response")
	}
	var resp handshakeResponse
	if err := json.Unmarshal(frames[0], &resp); err != nil {
		ws.Close()
		return nil, fmt.Errorf("parse handshake: %w", err)
	}
	if resp.Error != "" {
		ws.Close()
		return nil, fmt.Errorf("handshake rejected: %s", resp.Error)
	}

	// Some servers batch the first hub messages behind the handshake reply.
	for _, f := range frames[1:] {
		c.dispatch(ws, f)
	}

	return ws, nil
}

// run owns the read loop and the reconnect cycle for the connection's
// lifetime.
func (c *Connection) run(ws *websocket.Conn) {
	for {
		c.readLoop(ws)

		c.mu.Lock()
		c.connected = false
		c.ws = nil
		closed := c.closed
		c.mu.Unlock()

		if closed {
			return
		}

		c.fireDisconnected()

		next, ok := c.reconnect()
		if !ok {
			return
		}

		c.mu.Lock()
		c.ws = next
		c.connected = true
		c.mu.Unlock()

		c.fireConnected(true)
		ws = next
	}
}

func (c *Connection) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.log.Debug("hub read failed", "error", err)
			}
			return
		}
		for _, frame := range splitFrames(data) {
			c.dispatch(ws, frame)
		}
	}
}

// dispatch routes a single protocol frame. Handlers run on the read
// goroutine, preserving server push order.
func (c *Connection) dispatch(ws *websocket.Conn, frame []byte) {
	var env hubMessage
	if err := json.Unmarshal(frame, &env); err != nil {
		c.log.Warn("unparseable hub frame", "error", err)
		return
	}

	switch env.Type {
	case typeInvocation:
		var inv invocationMessage
		if err := json.Unmarshal(frame, &inv); err != nil {
			c.log.Warn("unparseable invocation", "error", err)
			return
		}
		c.mu.Lock()
		handler := c.handlers[inv.Target]
		c.mu.Unlock()
		if handler == nil {
			c.log.Debug("no handler for hub event", "target", inv.Target)
			return
		}
		handler(inv.Arguments)

	case typePing:
		// keepalive from the server, nothing to do

	case typeClose:
		var cm closeMessage
		_ = json.Unmarshal(frame, &cm)
		c.log.Info("server closed hub connection", "error", cm.Error)
		ws.Close()

	default:
		c.log.Debug("ignoring hub message", "type", env.Type)
	}
}

// reconnect re-dials with exponential backoff until it succeeds or the
// connection is closed.
func (c *Connection) reconnect() (*websocket.Conn, bool) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.ReconnectInitialWait
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry until Close

	attempt := 0
	for {
		select {
		case <-c.done:
			return nil, false
		default:
		}

		ws, err := c.dial(context.Background())
		if err == nil {
			c.log.Info("hub reconnected", "attempts", attempt+1)
			return ws, true
		}

		attempt++
		wait := bo.NextBackOff()
		c.log.Warn("hub reconnect failed", "attempt", attempt, "retry_in", wait, "error", err)

		select {
		case <-c.done:
			return nil, false
		case <-time.After(wait):
		}
	}
}

func (c *Connection) keepalive() {
	ticker := time.NewTicker(c.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			ws := c.ws
			c.mu.Unlock()
			if ws == nil {
				continue
			}
			c.writeMu.Lock()
			err := ws.WriteMessage(websocket.TextMessage, pingMessage)
			c.writeMu.Unlock()
			if err != nil {
				c.log.Debug("keepalive write failed", "error", err)
			}
		}
	}
}

func (c *Connection) fireConnected(reconnected bool) {
	c.mu.Lock()
	callbacks := append([]func(bool){}, c.onConnected...)
	c.mu.Unlock()
	for _, f := range callbacks {
		f(reconnected)
	}
}

func (c *Connection) fireDisconnected() {
	c.mu.Lock()
	callbacks := append([]func(){}, c.onDisconnected...)
	c.mu.Unlock()
	for _, f := range callbacks {
		f()
	}
}
