package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ondelive/onde/pkg/chat"
)

// ChatService wraps the chat endpoints. It satisfies chat.API.
type ChatService struct {
	c *Client
}

// Chat returns the chat service.
func (c *Client) Chat() *ChatService {
	return &ChatService{c: c}
}

// Messages fetches the message history of a live room.
func (s *ChatService) Messages(ctx context.Context, liveID string, limit int) ([]chat.Message, error) {
	path := fmt.Sprintf("/chat/%s/messages?limit=%d", url.PathEscape(liveID), limit)

	var messages []chat.Message
	if err := s.c.Do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// Send posts a message to a live room and returns the server-assigned
// message.
func (s *ChatService) Send(ctx context.Context, liveID, content string) (chat.Message, error) {
	var msg chat.Message
	err := s.c.Do(ctx, http.MethodPost, "/chat/"+url.PathEscape(liveID),
		map[string]string{"message": content}, &msg)
	return msg, err
}

// Delete removes a message (moderation).
func (s *ChatService) Delete(ctx context.Context, messageID string) error {
	return s.c.Do(ctx, http.MethodDelete, "/chat/messages/"+url.PathEscape(messageID), nil, nil)
}
