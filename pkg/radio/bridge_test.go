package radio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ondelive/onde/pkg/chat"
	"github.com/ondelive/onde/pkg/hub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink captures messages the bridge hands to the chat layer.
type recordingSink struct {
	mu       sync.Mutex
	messages []chat.Message
}

func (r *recordingSink) Merge(msg chat.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return true
}

func (r *recordingSink) all() []chat.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chat.Message(nil), r.messages...)
}

// pushFrame is what the test hub server emits after the handshake.
type pushFrame struct {
	Type   string          `json:"type"`
	Target string          `json:"target"`
	Data   json.RawMessage `json:"data"`
}

// startBridge runs a hub server that pushes the given frames, then wires a
// bridge over a connected hub client.
func startBridge(t *testing.T, store *Store, sink ChatSink, frames []pushFrame) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	ready := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		<-ready
		for _, f := range frames {
			payload, _ := json.Marshal(f)
			conn.WriteMessage(websocket.TextMessage, payload)
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	opts := hub.DefaultOptions()
	opts.HandshakeTimeout = 2 * time.Second
	h := hub.NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), nil, nil, nil, opts)
	t.Cleanup(h.Stop)

	bridge := NewBridge(h, store, sink, nil)
	bridge.Attach()
	t.Cleanup(bridge.Detach)

	require.NoError(t, h.Start(context.Background()))
	close(ready)
}

func TestBridgeAppliesNowPlayingUpdate(t *testing.T) {
	store := NewStore(&fakeAPI{}, nil, nil, "")

	startBridge(t, store, nil, []pushFrame{{
		Type:   "event",
		Target: hub.EventNowPlayingUpdate,
		Data: json.RawMessage(`{
			"nowPlaying": {"songId": "s1", "artist": "Burial", "title": "Archangel", "duration": 230},
			"listeners": {"total": 12, "unique": 11, "current": 12}
		}`),
	}})

	require.Eventually(t, func() bool {
		_, ok := store.NowPlaying()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	np, _ := store.NowPlaying()
	assert.Equal(t, "Archangel", np.Title)

	l, ok := store.Listeners()
	require.True(t, ok)
	assert.Equal(t, Listeners{Total: 12, Unique: 11, Current: 12}, l)
}

func TestBridgeViewerCountApproximation(t *testing.T) {
	store := NewStore(&fakeAPI{}, nil, nil, "")

	startBridge(t, store, nil, []pushFrame{{
		Type:   "event",
		Target: hub.EventViewerCountUpdated,
		Data:   json.RawMessage(`42`),
	}})

	require.Eventually(t, func() bool {
		_, ok := store.Listeners()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	l, _ := store.Listeners()
	assert.Equal(t, Listeners{Total: 42, Unique: 42, Current: 42}, l)
}

func TestBridgeViewerCountStringPayload(t *testing.T) {
	store := NewStore(&fakeAPI{}, nil, nil, "")

	startBridge(t, store, nil, []pushFrame{{
		Type:   "event",
		Target: hub.EventViewerCountUpdated,
		Data:   json.RawMessage(`"17"`),
	}})

	require.Eventually(t, func() bool {
		l, ok := store.Listeners()
		return ok && l.Current == 17
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBridgeForwardsChatMessages(t *testing.T) {
	store := NewStore(&fakeAPI{}, nil, nil, "")
	sink := &recordingSink{}

	startBridge(t, store, sink, []pushFrame{{
		Type:   "event",
		Target: hub.EventReceiveMessage,
		Data:   json.RawMessage(`{"message": {"id": "m1", "user": "alice", "content": "hello"}}`),
	}})

	require.Eventually(t, func() bool {
		return len(sink.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := sink.all()[0]
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "alice", got.User)
	assert.Equal(t, "hello", got.Content)
}

func TestBridgeIgnoresMalformedUpdate(t *testing.T) {
	store := NewStore(&fakeAPI{}, nil, nil, "")

	startBridge(t, store, nil, []pushFrame{
		{
			Type:   "event",
			Target: hub.EventNowPlayingUpdate,
			Data:   json.RawMessage(`{"unexpected": true}`),
		},
		{
			Type:   "event",
			Target: hub.EventViewerCountUpdated,
			Data:   json.RawMessage(`3`),
		},
	})

	// The count event lands, proving both frames were delivered; the
	// malformed one changed nothing.
	require.Eventually(t, func() bool {
		_, ok := store.Listeners()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := store.NowPlaying()
	assert.False(t, ok)
}
