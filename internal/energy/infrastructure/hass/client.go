// Package hass is a client for the Home Assistant WebSocket API.
package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"energy-gauge/internal/observability/metrics"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultBreakerTimeout = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	URL            string // ws://host:8123/api/websocket
	Token          string
	RequestTimeout time.Duration
	BreakerTimeout time.Duration
}

type response struct {
	result json.RawMessage
	err    error
}

type incoming struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *ResultError    `json:"error"`
	Message string          `json:"message"`
}

// Client sends commands over one authenticated socket and matches replies by
// id. It reconnects lazily on the next call after the socket drops.
type Client struct {
	cfg     Config
	log     *zap.Logger
	dialer  *websocket.Dialer
	breaker *gobreaker.CircuitBreaker

	connectMu sync.Mutex
	writeMu   sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  int64
	pending map[int64]chan response
	closed  bool
}

// New constructs a client. It does not connect until the first call.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("hass: url required")
	}
	if cfg.Token == "" {
		return nil, errors.New("hass: token required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = defaultBreakerTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		cfg:     cfg,
		log:     logger,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		pending: make(map[int64]chan response),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "hass",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("hass circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Command errors come from a healthy host.
		IsSuccessful: func(err error) bool {
			var resultErr *ResultError
			return err == nil || errors.As(err, &resultErr) || errors.Is(err, context.Canceled)
		},
	})
	return c, nil
}

// Connect dials and authenticates if there is no live socket.
func (c *Client) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, http.Header{})
	if err != nil {
		return fmt.Errorf("hass: dial: %w", err)
	}
	if err := c.authenticate(ctx, conn); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	c.log.Info("hass connected", zap.String("url", c.cfg.URL))
	go c.readLoop(conn)
	return nil
}

func (c *Client) authenticate(ctx context.Context, conn *websocket.Conn) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		defer conn.SetReadDeadline(time.Time{})
	}

	var msg incoming
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("hass: read auth_required: %w", err)
	}
	if msg.Type != "auth_required" {
		return fmt.Errorf("hass: unexpected message %q before auth", msg.Type)
	}
	if err := conn.WriteJSON(map[string]string{"type": "auth", "access_token": c.cfg.Token}); err != nil {
		return fmt.Errorf("hass: send auth: %w", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("hass: read auth result: %w", err)
	}
	switch msg.Type {
	case "auth_ok":
		return nil
	case "auth_invalid":
		return fmt.Errorf("%w: %s", ErrAuthInvalid, msg.Message)
	default:
		return fmt.Errorf("hass: unexpected auth reply %q", msg.Type)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg incoming
		if err := conn.ReadJSON(&msg); err != nil {
			c.dropConnection(conn, err)
			return
		}
		if msg.Type != "result" {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if !ok {
			continue
		}
		if msg.Success {
			ch <- response{result: msg.Result}
			continue
		}
		resultErr := msg.Error
		if resultErr == nil {
			resultErr = &ResultError{Code: CodeUnknown, Message: "unsuccessful result"}
		}
		ch <- response{err: resultErr}
	}
}

func (c *Client) dropConnection(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	pending := c.pending
	c.pending = make(map[int64]chan response)
	closed := c.closed
	c.mu.Unlock()

	conn.Close()
	if !closed {
		c.log.Warn("hass connection lost", zap.Error(cause))
	}
	for _, ch := range pending {
		ch <- response{err: fmt.Errorf("%w: %v", ErrConnectionLost, cause)}
	}
}

// Call sends command with params merged into the message and decodes the
// result into out (which may be nil).
func (c *Client) Call(ctx context.Context, command string, params any, out any) error {
	begin := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.call(ctx, command, params, out)
	})
	var resultErr *ResultError
	if errors.As(err, &resultErr) {
		resultErr.Command = command
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveHassRequest(command, result, time.Since(begin))
	return err
}

func (c *Client) call(ctx context.Context, command string, params any, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrConnectionLost
	}
	c.nextID++
	id := c.nextID
	ch := make(chan response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	payload, err := buildMessage(id, command, params)
	if err != nil {
		c.forget(id)
		return err
	}
	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return fmt.Errorf("hass: write %s: %w", command, err)
	}

	select {
	case resp := <-ch:
		if resp.err != nil {
			return resp.err
		}
		if out == nil || len(resp.result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.result, out); err != nil {
			return fmt.Errorf("hass: decode %s: %w", command, err)
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func buildMessage(id int64, command string, params any) ([]byte, error) {
	fields := make(map[string]json.RawMessage)
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("hass: encode %s: %w", command, err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("hass: %s params must be an object: %w", command, err)
		}
	}
	fields["id"], _ = json.Marshal(id)
	fields["type"], _ = json.Marshal(command)
	return json.Marshal(fields)
}

// Close shuts the socket and fails pending calls.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
