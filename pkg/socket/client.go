// Package socket is the live-video chat transport: a thin wrapper over one
// websocket connection with named events and room join/leave conveniences.
//
// Unlike the hub connection it carries the access token at handshake time
// only and performs no automatic reconnection or token refresh; the live
// chat feature tolerates a dropped connection until the room is rejoined.
package socket

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ondelive/onde/internal/logging"
	"github.com/ondelive/onde/pkg/errors"
	"github.com/rs/xid"
)

// Socket event names.
const (
	EventJoinLive       = "join-live"
	EventLeaveLive      = "leave-live"
	EventNewMessage     = "new-message"
	EventMessageDeleted = "message-deleted"
	EventSendMessage    = "send-message"
)

// envelope is the socket wire format.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler receives the raw payload of a subscribed event.
type Handler func(data []byte)

type subscription struct {
	id      string
	handler Handler
}

// TokenFunc returns the access token used once, at handshake time.
type TokenFunc func() string

// Client is the live-chat socket connection.
type Client struct {
	url    string
	token  TokenFunc
	logger *logging.Logger
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn

	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[string][]*subscription
}

// NewClient creates a socket client. token may be nil for anonymous
// connections.
func NewClient(url string, token TokenFunc, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.New(logging.Config{Level: "info", Format: "text"})
	}

	return &Client{
		url:      url,
		token:    token,
		logger:   logger.WithFields(map[string]any{"component": "socket"}),
		dialer:   websocket.DefaultDialer,
		handlers: make(map[string][]*subscription),
	}
}

// Connect opens the connection. Idempotent: an already-open connection is
// kept as is.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	header := http.Header{}
	if c.token != nil {
		if token := c.token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, resp, err := c.dialer.Dial(c.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeTransport, "DIAL_ERROR", "failed to connect to socket")
	}

	c.conn = conn
	c.logger.Info("socket connected", "url", c.url)

	go c.readLoop(conn)
	return nil
}

// Disconnect tears down the connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}

	c.writeMu.Lock()
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	conn.Close()

	c.logger.Info("socket disconnected")
}

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Emit sends a named event with a payload.
func (c *Client) Emit(event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return errors.New(errors.ErrorTypeTransport, "NOT_CONNECTED", "socket is not connected")
	}

	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "MARSHAL_ERROR", "failed to encode event payload")
		}
		data = raw
	}

	raw, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "MARSHAL_ERROR", "failed to encode event")
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, raw)
	c.writeMu.Unlock()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeTransport, "WRITE_ERROR", "failed to send event")
	}
	return nil
}

// On registers a handler for a named event and returns a subscription id.
func (c *Client) On(event string, handler Handler) string {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	sub := &subscription{
		id:      xid.New().String(),
		handler: handler,
	}
	c.handlers[event] = append(c.handlers[event], sub)
	return sub.id
}

// Off removes a handler registration.
func (c *Client) Off(event, id string) {
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

// JoinLive joins a live room.
func (c *Client) JoinLive(liveID string) error {
	return c.Emit(EventJoinLive, liveID)
}

// LeaveLive leaves a live room.
func (c *Client) LeaveLive(liveID string) error {
	return c.Emit(EventLeaveLive, liveID)
}

// SendMessage relays a chat message to a live room.
func (c *Client) SendMessage(liveID, message string) error {
	return c.Emit(EventSendMessage, map[string]string{
		"liveId":  liveID,
		"message": message,
	})
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
				c.logger.Warn("socket connection lost", "error", err)
			}
			c.mu.Unlock()
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.logger.Error("failed to decode socket event", "error", err)
			continue
		}

		c.dispatch(env.Event, env.Data)
	}
}

func (c *Client) dispatch(event string, data []byte) {
	c.handlersMu.RLock()
	subs := make([]*subscription, len(c.handlers[event]))
	copy(subs, c.handlers[event])
	c.handlersMu.RUnlock()

	for _, sub := range subs {
		sub.handler(data)
	}
}
