// Package hub manages the persistent push connection to the platform's
// notification hub: named server-pushed events, RPC-style invokes, automatic
// reconnection with capped exponential backoff, and token refresh woven into
// the connection lifecycle.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ondelive/onde/internal/eventbus"
	"github.com/ondelive/onde/internal/logging"
	"github.com/ondelive/onde/pkg/errors"
	"github.com/rs/xid"
)

// TokenSource supplies bearer tokens for the connection handshake and
// coordinates refreshes. The hub never caches a token; it reads a fresh one
// on every (re)connect attempt so a token refreshed mid-session is honored.
type TokenSource interface {
	// Token returns the current access token, empty when unauthenticated.
	Token() string

	// EnsureFreshToken refreshes the token if expired or expiring soon.
	EnsureFreshToken(ctx context.Context) error

	// ForceRefresh refreshes unconditionally and returns the new token.
	ForceRefresh(ctx context.Context) (string, error)
}

// Handler receives the raw payload of a subscribed event.
type Handler func(data []byte)

type subscription struct {
	id      string
	handler Handler
}

// Client is the hub connection. One instance per process; safe for
// concurrent use.
type Client struct {
	url     string
	tokens  TokenSource
	options Options
	logger  *logging.Logger
	bus     eventbus.Bus

	mu         sync.Mutex
	conn       *websocket.Conn
	state      State
	stopped    bool
	gen        uint64
	retryTimer *time.Timer

	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[string][]*subscription

	pendingMu sync.Mutex
	pending   map[string]chan completion
}

// NewClient creates a hub client. The bus, when non-nil, receives
// connection-state change events; pass nil when nothing observes them.
func NewClient(url string, tokens TokenSource, logger *logging.Logger, bus eventbus.Bus, options Options) *Client {
	if logger == nil {
		logger = logging.New(logging.Config{Level: "info", Format: "text"})
	}

	return &Client{
		url:      url,
		tokens:   tokens,
		options:  options,
		logger:   logger.WithFields(map[string]any{"component": "hub"}),
		bus:      bus,
		handlers: make(map[string][]*subscription),
		pending:  make(map[string]chan completion),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the connection is live.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Start connects to the hub. A no-op unless the current state is
// Disconnected, so concurrent or repeated starts never produce a second
// connection.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.logger.Debug("start ignored", "state", c.state.String())
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.stopped = false
	c.gen++
	gen := c.gen
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.mu.Unlock()

	c.publishState(StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.publishState(StateDisconnected)
		return errors.Wrap(err, errors.ErrorTypeTransport, "DIAL_ERROR", "failed to connect to hub")
	}

	c.mu.Lock()
	if c.stopped || c.gen != gen {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info("connected to hub", "url", c.url)
	c.publishState(StateConnected)

	go c.readLoop(conn, gen)
	return nil
}

// Stop tears down the connection. A later Start is required to resume.
func (c *Client) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.gen++
	conn := c.conn
	c.conn = nil
	wasDisconnected := c.state == StateDisconnected
	c.state = StateDisconnected
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		conn.Close()
	}

	if !wasDisconnected {
		c.logger.Info("hub connection stopped")
		c.publishState(StateDisconnected)
	}
}

// Subscribe registers a handler for a named server-pushed event and returns
// a subscription id for Unsubscribe.
func (c *Client) Subscribe(event string, handler Handler) string {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	sub := &subscription{
		id:      xid.New().String(),
		handler: handler,
	}
	c.handlers[event] = append(c.handlers[event], sub)
	return sub.id
}

// Unsubscribe removes a handler registration.
func (c *Client) Unsubscribe(event, id string) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	subs := c.handlers[event]
	for i, sub := range subs {
		if sub.id == id {
			c.handlers[event] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Invoke performs a remote call over the open connection and waits for its
// completion frame.
func (c *Client) Invoke(ctx context.Context, method string, args ...any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		return errors.New(errors.ErrorTypeTransport, "NOT_CONNECTED", "hub is not connected")
	}

	encoded := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "MARSHAL_ERROR", "failed to encode invoke argument")
		}
		encoded = append(encoded, raw)
	}

	f := frame{
		Type:   frameInvoke,
		ID:     xid.New().String(),
		Target: method,
		Args:   encoded,
	}

	payload, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "MARSHAL_ERROR", "failed to encode invoke frame")
	}

	done := make(chan completion, 1)
	c.pendingMu.Lock()
	c.pending[f.ID] = done
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		c.dropPending(f.ID)
		return errors.Wrap(err, errors.ErrorTypeTransport, "WRITE_ERROR", "failed to send invoke")
	}

	select {
	case res := <-done:
		if res.err != "" {
			return errors.New(errors.ErrorTypeTransport, "INVOKE_FAILED", res.err)
		}
		return nil
	case <-ctx.Done():
		c.dropPending(f.ID)
		return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "INVOKE_TIMEOUT", "invoke timed out")
	}
}

// SendChatMessage sends a chat message over the hub. The token is refreshed
// proactively when stale (best-effort), the connection is started implicitly
// when down, and an authorization-shaped invoke failure triggers exactly one
// refresh-reconnect-retry cycle.
func (c *Client) SendChatMessage(ctx context.Context, user, content string) error {
	if c.tokens != nil {
		if err := c.tokens.EnsureFreshToken(ctx); err != nil {
			c.logger.Warn("pre-send token refresh failed", "error", err)
		}
	}

	if c.State() != StateConnected {
		c.logger.Warn("hub not connected, attempting to connect before send",
			"state", c.State().String())
		if err := c.Start(ctx); err != nil {
			return errors.Wrap(err, errors.ErrorTypeTransport, "NOT_CONNECTED", "cannot connect to send message")
		}
		if c.State() != StateConnected {
			return errors.New(errors.ErrorTypeTransport, "NOT_CONNECTED", "cannot connect to send message")
		}
	}

	err := c.Invoke(ctx, MethodSendMessage, user, content)
	if err == nil {
		return nil
	}

	if !isAuthShaped(err) {
		return err
	}

	c.logger.Info("authorization error on invoke, refreshing token and reconnecting")

	if c.tokens != nil {
		if _, refreshErr := c.tokens.ForceRefresh(ctx); refreshErr != nil {
			c.logger.Error("token refresh after invoke failure failed", "error", refreshErr)
			return err
		}
	}

	c.Stop()
	if startErr := c.Start(ctx); startErr != nil {
		return startErr
	}

	return c.Invoke(ctx, MethodSendMessage, user, content)
}

// dial opens one websocket connection, reading a fresh token from the
// source for the handshake.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := c.options.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: c.options.HandshakeTimeout}
	}

	header := http.Header{}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, resp, err := dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// readLoop pumps frames from one connection until it fails. gen identifies
// the connection epoch this loop belongs to.
func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(err, gen)
			return
		}
		c.handleFrame(raw)
	}
}

func (c *Client) handleFrame(raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.logger.Error("failed to decode hub frame", "error", err)
		return
	}

	switch f.Type {
	case frameEvent:
		c.dispatch(f.Target, f.Data)
	case frameCompletion:
		c.pendingMu.Lock()
		done, ok := c.pending[f.ID]
		delete(c.pending, f.ID)
		c.pendingMu.Unlock()
		if ok {
			done <- completion{err: f.Error}
		}
	default:
		c.logger.Warn("unknown hub frame type", "type", string(f.Type))
	}
}

// dispatch delivers an event payload to subscribers in registration order.
func (c *Client) dispatch(event string, data []byte) {
	c.handlersMu.RLock()
	subs := make([]*subscription, len(c.handlers[event]))
	copy(subs, c.handlers[event])
	c.handlersMu.RUnlock()

	for _, sub := range subs {
		sub.handler(data)
	}
}

// handleDisconnect reacts to a read failure: transient losses go through the
// backoff machine, an explicit Stop does not. A stale gen means the
// connection this loop served has already been superseded.
func (c *Client) handleDisconnect(err error, gen uint64) {
	c.mu.Lock()
	if c.stopped || c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	next := c.gen
	c.conn = nil
	c.state = StateReconnecting
	c.mu.Unlock()

	c.logger.Warn("hub connection lost", "error", err)
	c.publishState(StateReconnecting)
	c.failPending()

	go c.reconnect(next)
}

// reconnect runs the bounded backoff machine for the connection epoch that
// lost its link. After the final attempt the connection settles Disconnected
// and a single delayed Start retry is scheduled as a safety net, independent
// of this backoff. The loop aborts as soon as its gen is superseded, so a
// Stop or restart during a backoff sleep never races a stale dial onto a
// live connection.
func (c *Client) reconnect(gen uint64) {
	for attempt := 0; attempt < c.options.MaxReconnectAttempts; attempt++ {
		delay := backoffDelay(attempt, c.options.ReconnectCeiling)
		c.logger.Info("reconnecting to hub", "attempt", attempt+1, "delay", delay)
		time.Sleep(delay)

		c.mu.Lock()
		if c.stopped || c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.options.HandshakeTimeout)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.logger.Warn("reconnect attempt failed", "attempt", attempt+1, "error", err)
			continue
		}

		c.mu.Lock()
		if c.stopped || c.gen != gen {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.gen++
		next := c.gen
		c.conn = conn
		c.state = StateConnected
		c.mu.Unlock()

		c.logger.Info("reconnected to hub", "attempt", attempt+1)
		c.publishState(StateConnected)

		go c.readLoop(conn, next)
		return
	}

	c.mu.Lock()
	if c.stopped || c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.retryTimer = time.AfterFunc(c.options.CloseRetryDelay, func() {
		if err := c.Start(context.Background()); err != nil {
			c.logger.Error("scheduled hub restart failed", "error", err)
		}
	})
	c.mu.Unlock()

	c.logger.Error("hub reconnect attempts exhausted")
	c.publishState(StateDisconnected)
}

// failPending completes all in-flight invokes with a connection error.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan completion)
	c.pendingMu.Unlock()

	for _, done := range pending {
		done <- completion{err: "connection lost"}
	}
}

func (c *Client) dropPending(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) publishState(state State) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventbus.NewEvent(eventbus.EventConnectionStateChanged, "hub", state))
}

// isAuthShaped reports whether an invoke failure looks like an
// authorization problem. The hub reports these as free-form messages, so
// shape detection is textual.
func isAuthShaped(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "401") ||
		strings.Contains(msg, "Unauthorized") ||
		strings.Contains(msg, "Auth")
}
