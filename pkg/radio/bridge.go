package radio

import (
	"strconv"

	"github.com/ondelive/onde/internal/logging"
	"github.com/ondelive/onde/pkg/chat"
	"github.com/ondelive/onde/pkg/hub"
	"github.com/tidwall/gjson"
)

// ChatSink receives chat messages pushed over the hub. Merging must be
// idempotent by message id.
type ChatSink interface {
	Merge(msg chat.Message) bool
}

// Bridge wires hub-pushed events into the radio store: now-playing and
// listener updates, viewer counts, and radio chat messages. It is the
// reconciliation point between server pushes and local state.
type Bridge struct {
	hub    *hub.Client
	store  *Store
	chat   ChatSink
	logger *logging.Logger

	subs []struct{ event, id string }
}

// NewBridge creates a bridge. chatSink may be nil when radio chat is not
// displayed.
func NewBridge(h *hub.Client, store *Store, chatSink ChatSink, logger *logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.New(logging.Config{Level: "info", Format: "text"})
	}

	return &Bridge{
		hub:    h,
		store:  store,
		chat:   chatSink,
		logger: logger.WithFields(map[string]any{"component": "radio_bridge"}),
	}
}

// Attach subscribes all hub event handlers. Call Detach when the consumer
// goes away; a dangling handler keeps firing against a store nobody reads.
func (b *Bridge) Attach() {
	b.subscribe(hub.EventNowPlayingUpdate, b.handleNowPlayingUpdate)
	b.subscribe(hub.EventReceiveMessage, b.handleReceiveMessage)
	b.subscribe(hub.EventViewerCountUpdated, b.handleViewerCountUpdated)
	b.subscribe(hub.EventInfo, b.handleInfo)
}

// Detach unsubscribes all handlers registered by Attach.
func (b *Bridge) Detach() {
	for _, sub := range b.subs {
		b.hub.Unsubscribe(sub.event, sub.id)
	}
	b.subs = nil
}

func (b *Bridge) subscribe(event string, handler hub.Handler) {
	id := b.hub.Subscribe(event, handler)
	b.subs = append(b.subs, struct{ event, id string }{event, id})
}

func (b *Bridge) handleNowPlayingUpdate(data []byte) {
	update, ok := ParseUpdate(data)
	if !ok {
		b.logger.Warn("unrecognized now-playing payload")
		return
	}

	b.store.SetNowPlaying(update.NowPlaying)
	b.store.SetListeners(update.Listeners)
}

func (b *Bridge) handleReceiveMessage(data []byte) {
	if b.chat == nil {
		return
	}

	msg, ok := chat.MessageFromWire(data)
	if !ok {
		b.logger.Warn("unrecognized chat payload")
		return
	}
	b.chat.Merge(msg)
}

// handleViewerCountUpdated applies a bare current count; total and unique
// are approximated since the event carries nothing more.
func (b *Bridge) handleViewerCountUpdated(data []byte) {
	v := gjson.ParseBytes(data)
	if v.Type == gjson.Null {
		return
	}

	count := int(v.Int())
	if count == 0 && v.Type == gjson.String {
		if n, err := strconv.Atoi(v.String()); err == nil {
			count = n
		}
	}

	b.store.SetListeners(ApproximateListeners(count))
}

func (b *Bridge) handleInfo(data []byte) {
	b.logger.Info("hub notice",
		"type", gjson.GetBytes(data, "type").String(),
		"message", gjson.GetBytes(data, "message").String())
}
