package eventbus

import (
	"time"

	"github.com/rs/xid"
)

// EventType represents the type of event
type EventType string

// Event types
const (
	EventConnectionStateChanged EventType = "connection.state_changed"
	EventNowPlayingUpdated      EventType = "radio.now_playing_updated"
	EventListenersUpdated       EventType = "radio.listeners_updated"
	EventStationChanged         EventType = "radio.station_changed"
	EventPlaybackChanged        EventType = "radio.playback_changed"
	EventChatMessageReceived    EventType = "chat.message_received"
	EventChatMessageDeleted     EventType = "chat.message_deleted"
	EventSessionTerminated      EventType = "auth.session_terminated"
	EventError                  EventType = "error"
)

// Event represents a state-change notification
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	Data      interface{} `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType EventType, source string, data interface{}) *Event {
	return &Event{
		ID:        xid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	}
}
