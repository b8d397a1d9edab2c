package chat

import (
	"context"

	"github.com/ondelive/onde/internal/logging"
	"github.com/ondelive/onde/pkg/socket"
	"github.com/tidwall/gjson"
)

// LiveSession binds a chat store to one live room over the socket
// transport: pushed messages are merged with dedup, deletions are applied,
// and local sends go through REST with the pushed copy reconciled by id.
type LiveSession struct {
	socket *socket.Client
	store  *Store
	liveID string
	logger *logging.Logger

	newMsgSub string
	delMsgSub string
}

// NewLiveSession creates a session for one live room.
func NewLiveSession(sock *socket.Client, store *Store, liveID string, logger *logging.Logger) *LiveSession {
	if logger == nil {
		logger = logging.New(logging.Config{Level: "info", Format: "text"})
	}

	return &LiveSession{
		socket: sock,
		store:  store,
		liveID: liveID,
		logger: logger.WithFields(map[string]any{"component": "live_chat", "live_id": liveID}),
	}
}

// Join connects the socket if needed, registers the push handlers and joins
// the room.
func (s *LiveSession) Join() error {
	if err := s.socket.Connect(); err != nil {
		return err
	}

	s.newMsgSub = s.socket.On(socket.EventNewMessage, func(data []byte) {
		msg, ok := MessageFromWire(data)
		if !ok {
			s.logger.Warn("unrecognized pushed message payload")
			return
		}
		s.store.Merge(msg)
	})

	s.delMsgSub = s.socket.On(socket.EventMessageDeleted, func(data []byte) {
		v := gjson.ParseBytes(data)
		id := v.Get("id").String()
		if id == "" {
			id = v.String()
		}
		if id != "" {
			s.store.Remove(id)
		}
	})

	return s.socket.JoinLive(s.liveID)
}

// Leave unregisters the push handlers and leaves the room. The socket
// connection itself is left open for other consumers.
func (s *LiveSession) Leave() error {
	s.socket.Off(socket.EventNewMessage, s.newMsgSub)
	s.socket.Off(socket.EventMessageDeleted, s.delMsgSub)
	return s.socket.LeaveLive(s.liveID)
}

// Load fetches the room history into the store.
func (s *LiveSession) Load(ctx context.Context, limit int) error {
	return s.store.Load(ctx, s.liveID, limit)
}

// Send posts a message to the room. The pushed copy arriving back over the
// socket is deduplicated by the store.
func (s *LiveSession) Send(ctx context.Context, content string) (Message, error) {
	return s.store.Send(ctx, s.liveID, content)
}
