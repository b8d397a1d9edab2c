// Package chat holds the client-side chat state for live rooms: the message
// list store and the live-room session over the socket transport.
package chat

import (
	"github.com/tidwall/gjson"
)

// Message is a single chat message. Identity is the server-assigned ID;
// merging is idempotent on it.
type Message struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	Avatar    string `json:"avatar,omitempty"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	IsSystem  bool   `json:"isSystem,omitempty"`
}

// MessageFromWire normalizes a pushed chat payload. The hub wraps messages
// in a {message: {...}} envelope, the socket pushes them bare; both are
// accepted.
func MessageFromWire(data []byte) (Message, bool) {
	v := gjson.ParseBytes(data)

	if m := v.Get("message"); m.Exists() && m.IsObject() {
		v = m
	}
	if !v.IsObject() {
		return Message{}, false
	}

	return Message{
		ID:        v.Get("id").String(),
		User:      firstOf(v, "user", "username"),
		Avatar:    firstOf(v, "avatar", "userAvatar"),
		Content:   firstOf(v, "content", "message"),
		Timestamp: v.Get("timestamp").String(),
		IsSystem:  v.Get("isSystem").Bool(),
	}, true
}

func firstOf(v gjson.Result, paths ...string) string {
	for _, p := range paths {
		if r := v.Get(p); r.Exists() && r.String() != "" {
			return r.String()
		}
	}
	return ""
}
