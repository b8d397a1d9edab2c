package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/ondelive/onde/internal/eventbus"
	"github.com/ondelive/onde/internal/logging"
	"github.com/ondelive/onde/pkg/errors"
)

// API is the slice of the REST backend the store depends on. Injected so
// tests can substitute a fake.
type API interface {
	// Messages fetches the message history of a live room.
	Messages(ctx context.Context, liveID string, limit int) ([]Message, error)

	// Send posts a message and returns the server-assigned message.
	Send(ctx context.Context, liveID, content string) (Message, error)

	// Delete removes a message.
	Delete(ctx context.Context, messageID string) error
}

// Store is the single writer of a room's message list. Pushed messages and
// locally sent ones meet here; identity is the message id and merging is
// idempotent on it.
type Store struct {
	api    API
	bus    eventbus.Bus
	logger *logging.Logger

	mu       sync.RWMutex
	messages []Message
}

// NewStore creates a chat store.
func NewStore(api API, bus eventbus.Bus, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.New(logging.Config{Level: "info", Format: "text"})
	}

	return &Store{
		api:    api,
		bus:    bus,
		logger: logger.WithFields(map[string]any{"component": "chat"}),
	}
}

// Load fetches the room history and replaces the local list wholesale.
func (s *Store) Load(ctx context.Context, liveID string, limit int) error {
	messages, err := s.api.Messages(ctx, liveID, limit)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.messages = messages
	s.mu.Unlock()
	return nil
}

// Send posts a message. Empty content is rejected locally before any
// network call. The server-assigned message is merged on success; if the
// same message already arrived over a push transport the merge is a no-op.
func (s *Store) Send(ctx context.Context, liveID, content string) (Message, error) {
	if strings.TrimSpace(content) == "" {
		return Message{}, errors.New(errors.ErrorTypeValidation, "EMPTY_MESSAGE", "message cannot be empty")
	}

	msg, err := s.api.Send(ctx, liveID, content)
	if err != nil {
		return Message{}, err
	}

	s.Merge(msg)
	return msg, nil
}

// Delete removes a message on the server, then locally on success only.
func (s *Store) Delete(ctx context.Context, messageID string) error {
	if err := s.api.Delete(ctx, messageID); err != nil {
		return err
	}

	s.Remove(messageID)
	return nil
}

// Merge appends a message unless one with the same id is already present.
// Returns whether the message was added.
func (s *Store) Merge(msg Message) bool {
	s.mu.Lock()
	for _, existing := range s.messages {
		if existing.ID == msg.ID {
			s.mu.Unlock()
			return false
		}
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.publish(eventbus.EventChatMessageReceived, msg)
	return true
}

// Remove deletes a message from the local list by id.
func (s *Store) Remove(messageID string) bool {
	s.mu.Lock()
	for i, msg := range s.messages {
		if msg.ID == messageID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			s.mu.Unlock()
			s.publish(eventbus.EventChatMessageDeleted, messageID)
			return true
		}
	}
	s.mu.Unlock()
	return false
}

// Messages returns a copy of the current message list.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages...)
}

// Clear empties the local list, e.g. when leaving a room.
func (s *Store) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
}

func (s *Store) publish(eventType eventbus.EventType, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.NewEvent(eventType, "chat", data))
}
