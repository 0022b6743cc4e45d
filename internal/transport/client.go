// Package transport maintains one logical connection to the push-event
// server and translates inbound frames into typed events for the sync
// orchestrator. It owns the socket resource exclusively: consumers see
// event callbacks, never the raw connection.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Handler processes the data payload of one recognized frame type.
type Handler func(data json.RawMessage)

// Status is the connectivity signal surfaced to the UI layer.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	// StatusDisconnected is emitted exactly once, after reconnection
	// attempts are exhausted.
	StatusDisconnected Status = "disconnected"
)

// ErrNotOpen is returned by Send when the socket is not in the Open state.
var ErrNotOpen = errors.New("transport: socket not open")

// Options configures the transport client. URL carries implicit
// authentication (token query parameter).
type Options struct {
	URL         string
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	DialTimeout time.Duration
}

func (o *Options) defaults() {
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 15 * time.Second
	}
}

// Client is a websocket push client with typed frame dispatch and
// bounded exponential reconnect.
type Client struct {
	opts    Options
	logger  *zap.Logger
	machine *Machine

	mu         sync.Mutex
	conn       *websocket.Conn
	handlers   map[string]Handler
	onStatus   func(Status)
	retry      *time.Timer
	bo         *backoff
	closed     bool
	cancelRead context.CancelFunc
}

// NewClient creates a transport client. Handlers must be registered
// before Connect.
func NewClient(opts Options, logger *zap.Logger) *Client {
	opts.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		opts:     opts,
		logger:   logger,
		machine:  NewMachine(),
		handlers: make(map[string]Handler),
		bo: &backoff{
			base:        opts.BaseDelay,
			max:         opts.MaxDelay,
			maxAttempts: opts.MaxAttempts,
		},
	}
}

// On registers the handler for a frame type.
func (c *Client) On(frameType string, h Handler) {
	c.mu.Lock()
	c.handlers[frameType] = h
	c.mu.Unlock()
}

// OnStatus registers the connectivity status callback.
func (c *Client) OnStatus(fn func(Status)) {
	c.mu.Lock()
	c.onStatus = fn
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	return c.machine.Current()
}

// Connect establishes the connection. Idempotent: calling it while
// already Connecting or Open is a no-op. A handshake failure schedules a
// reconnect with backoff and also returns the error.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("transport: client closed")
	}
	switch c.machine.Current() {
	case Connecting, Open:
		c.mu.Unlock()
		return nil
	}
	if err := c.machine.Transition(Connecting); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.opts.URL, nil)
	cancel()
	if err != nil {
		c.logger.Warn("push channel dial failed", zap.Error(err))
		_ = c.machine.Transition(Closed)
		c.scheduleReconnect()
		return err
	}

	readCtx, cancelRead := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancelRead()
		_ = conn.Close(websocket.StatusNormalClosure, "client closed")
		return errors.New("transport: client closed")
	}
	c.conn = conn
	c.cancelRead = cancelRead
	c.bo.reset()
	c.mu.Unlock()

	_ = c.machine.Transition(Open)
	c.logger.Info("push channel connected")
	c.emitStatus(StatusConnected)

	go c.readLoop(readCtx, conn)
	return nil
}

// Close terminates the connection intentionally: no reconnect follows.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	if c.cancelRead != nil {
		c.cancelRead()
		c.cancelRead = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	switch c.machine.Current() {
	case Open, Connecting, Errored:
		_ = c.machine.Transition(Closed)
	}
}

// Send writes an outbound frame. Rejected when the socket is not Open;
// callers must not assume fire-and-forget success.
func (c *Client) Send(ctx context.Context, frameType string, data any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || c.machine.Current() != Open {
		c.logger.Warn("send rejected, socket not open", zap.String("type", frameType))
		return ErrNotOpen
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Frame{Type: frameType, Data: payload})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, frame)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			intentional := c.closed
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			if intentional {
				return
			}

			c.logger.Warn("push channel closed", zap.Error(err))
			_ = c.machine.Transition(Closed)
			c.scheduleReconnect()
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			// A single bad frame must not close the connection.
			c.logger.Warn("malformed push frame dropped", zap.Error(err))
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame Frame) {
	c.mu.Lock()
	h, ok := c.handlers[frame.Type]
	c.mu.Unlock()
	if !ok {
		c.logger.Warn("unrecognized push frame dropped", zap.String("type", frame.Type))
		return
	}
	h(frame.Data)
}

// scheduleReconnect arms the single retry timer. If a retry is already
// pending, or the client was closed, it does nothing; there is never
// more than one timer in flight.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.retry != nil {
		c.mu.Unlock()
		return
	}
	delay, ok := c.bo.next()
	if !ok {
		c.mu.Unlock()
		c.logger.Error("reconnect attempts exhausted, giving up",
			zap.Int("attempts", c.opts.MaxAttempts))
		c.emitStatus(StatusDisconnected)
		return
	}
	attempt := c.bo.attempt
	c.retry = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.retry = nil
		c.mu.Unlock()
		_ = c.Connect(context.Background())
	})
	c.mu.Unlock()

	c.logger.Info("reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
	c.emitStatus(StatusReconnecting)
}

func (c *Client) emitStatus(s Status) {
	c.mu.Lock()
	fn := c.onStatus
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
