package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTokens is a TokenSource with scripted refresh behavior.
type fakeTokens struct {
	mu      sync.Mutex
	token   string
	ensures int
	forces  int
}

func (f *fakeTokens) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeTokens) EnsureFreshToken(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensures++
	return nil
}

func (f *fakeTokens) ForceRefresh(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forces++
	f.token = "refreshed"
	return f.token, nil
}

// testHub is a minimal in-process hub endpoint. Each accepted connection is
// driven by serve, which receives decoded frames and a reply function.
type testHub struct {
	srv   *httptest.Server
	conns int32

	mu     sync.Mutex
	tokens []string
}

func newTestHub(t *testing.T, serve func(connIndex int32, f frame, reply func(frame))) *testHub {
	t.Helper()

	h := &testHub{}
	upgrader := websocket.Upgrader{}

	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := atomic.AddInt32(&h.conns, 1)

		h.mu.Lock()
		h.tokens = append(h.tokens, r.Header.Get("Authorization"))
		h.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var writeMu sync.Mutex
		reply := func(f frame) {
			payload, _ := json.Marshal(f)
			writeMu.Lock()
			conn.WriteMessage(websocket.TextMessage, payload)
			writeMu.Unlock()
		}

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f frame
			if err := json.Unmarshal(raw, &f); err != nil {
				continue
			}
			if serve != nil {
				serve(idx, f, reply)
			}
		}
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *testHub) url() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http")
}

func (h *testHub) connections() int32 {
	return atomic.LoadInt32(&h.conns)
}

func (h *testHub) handshakeToken(i int) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tokens[i]
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.HandshakeTimeout = 2 * time.Second
	return opts
}

func TestStartIsIdempotent(t *testing.T) {
	h := newTestHub(t, nil)
	tokens := &fakeTokens{token: "T1"}
	c := NewClient(h.url(), tokens, nil, nil, testOptions())
	defer c.Stop()

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Start(context.Background()))

	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, int32(1), h.connections())
	assert.Equal(t, "Bearer T1", h.handshakeToken(0))
}

func TestSubscribeDispatchesEvents(t *testing.T) {
	h := newTestHub(t, func(_ int32, f frame, reply func(frame)) {
		if f.Type == frameInvoke && f.Target == "poke" {
			reply(frame{Type: frameEvent, Target: EventNowPlayingUpdate, Data: json.RawMessage(`{"listeners":3}`)})
			reply(frame{Type: frameCompletion, ID: f.ID})
		}
	})
	c := NewClient(h.url(), &fakeTokens{token: "T1"}, nil, nil, testOptions())
	defer c.Stop()

	require.NoError(t, c.Start(context.Background()))

	got := make(chan []byte, 1)
	id := c.Subscribe(EventNowPlayingUpdate, func(data []byte) {
		got <- data
	})

	require.NoError(t, c.Invoke(context.Background(), "poke"))

	select {
	case data := <-got:
		assert.JSONEq(t, `{"listeners":3}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("event not dispatched")
	}

	c.Unsubscribe(EventNowPlayingUpdate, id)
}

func TestUnsubscribedHandlerNotCalled(t *testing.T) {
	h := newTestHub(t, func(_ int32, f frame, reply func(frame)) {
		if f.Type == frameInvoke {
			reply(frame{Type: frameEvent, Target: EventInfo, Data: json.RawMessage(`"hi"`)})
			reply(frame{Type: frameCompletion, ID: f.ID})
		}
	})
	c := NewClient(h.url(), &fakeTokens{token: "T1"}, nil, nil, testOptions())
	defer c.Stop()

	require.NoError(t, c.Start(context.Background()))

	var calls int32
	id := c.Subscribe(EventInfo, func([]byte) {
		atomic.AddInt32(&calls, 1)
	})
	c.Unsubscribe(EventInfo, id)

	require.NoError(t, c.Invoke(context.Background(), "poke"))
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestInvokeCompletionError(t *testing.T) {
	h := newTestHub(t, func(_ int32, f frame, reply func(frame)) {
		if f.Type == frameInvoke {
			reply(frame{Type: frameCompletion, ID: f.ID, Error: "boom"})
		}
	})
	c := NewClient(h.url(), &fakeTokens{token: "T1"}, nil, nil, testOptions())
	defer c.Stop()

	require.NoError(t, c.Start(context.Background()))

	err := c.Invoke(context.Background(), MethodSendMessage, "alice", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestInvokeWhileDisconnected(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/hub", &fakeTokens{token: "T1"}, nil, nil, testOptions())

	err := c.Invoke(context.Background(), MethodSendMessage, "alice", "hello")
	require.Error(t, err)
}

func TestSendChatMessageRetriesAfterAuthFailure(t *testing.T) {
	h := newTestHub(t, func(connIndex int32, f frame, reply func(frame)) {
		if f.Type != frameInvoke || f.Target != MethodSendMessage {
			return
		}
		if connIndex == 1 {
			reply(frame{Type: frameCompletion, ID: f.ID, Error: "401 Unauthorized: token expired"})
			return
		}
		reply(frame{Type: frameCompletion, ID: f.ID})
	})

	tokens := &fakeTokens{token: "stale"}
	c := NewClient(h.url(), tokens, nil, nil, testOptions())
	defer c.Stop()

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.SendChatMessage(context.Background(), "alice", "hello"))

	tokens.mu.Lock()
	forces := tokens.forces
	tokens.mu.Unlock()
	assert.Equal(t, 1, forces)
	assert.Equal(t, int32(2), h.connections())
	assert.Equal(t, "Bearer refreshed", h.handshakeToken(1))
}

func TestSendChatMessageNonAuthErrorNotRetried(t *testing.T) {
	h := newTestHub(t, func(_ int32, f frame, reply func(frame)) {
		if f.Type == frameInvoke {
			reply(frame{Type: frameCompletion, ID: f.ID, Error: "message rejected"})
		}
	})
	tokens := &fakeTokens{token: "T1"}
	c := NewClient(h.url(), tokens, nil, nil, testOptions())
	defer c.Stop()

	require.NoError(t, c.Start(context.Background()))

	err := c.SendChatMessage(context.Background(), "alice", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message rejected")
	assert.Equal(t, int32(1), h.connections())

	tokens.mu.Lock()
	defer tokens.mu.Unlock()
	assert.Equal(t, 0, tokens.forces)
}

func TestSendChatMessageImplicitStart(t *testing.T) {
	h := newTestHub(t, func(_ int32, f frame, reply func(frame)) {
		if f.Type == frameInvoke {
			reply(frame{Type: frameCompletion, ID: f.ID})
		}
	})
	c := NewClient(h.url(), &fakeTokens{token: "T1"}, nil, nil, testOptions())
	defer c.Stop()

	require.NoError(t, c.SendChatMessage(context.Background(), "alice", "hello"))
	assert.Equal(t, StateConnected, c.State())
}

func TestReconnectAfterConnectionLoss(t *testing.T) {
	drop := make(chan struct{}, 1)
	upgrader := websocket.Upgrader{}
	var conns int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := atomic.AddInt32(&conns, 1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if idx == 1 {
			<-drop
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), &fakeTokens{token: "T1"}, nil, nil, testOptions())
	defer c.Stop()

	require.NoError(t, c.Start(context.Background()))
	drop <- struct{}{}

	// First backoff step is one second.
	require.Eventually(t, func() bool {
		return c.State() == StateConnected && atomic.LoadInt32(&conns) == 2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestStopPreventsReconnect(t *testing.T) {
	h := newTestHub(t, nil)
	c := NewClient(h.url(), &fakeTokens{token: "T1"}, nil, nil, testOptions())

	require.NoError(t, c.Start(context.Background()))
	c.Stop()

	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, int32(1), h.connections())
}

func TestRestartDuringBackoffKeepsSingleConnection(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var dials, current, peak int32
	drop := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := atomic.AddInt32(&dials, 1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		cur := atomic.AddInt32(&current, 1)
		defer atomic.AddInt32(&current, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}

		if idx == 1 {
			<-drop
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), &fakeTokens{token: "T1"}, nil, nil, testOptions())
	defer c.Stop()

	require.NoError(t, c.Start(context.Background()))
	drop <- struct{}{}

	require.Eventually(t, func() bool {
		return c.State() == StateReconnecting
	}, 2*time.Second, 10*time.Millisecond)

	// Restart while the backoff loop is asleep in its one second delay.
	c.Stop()
	require.NoError(t, c.Start(context.Background()))
	require.Equal(t, StateConnected, c.State())

	// Let the abandoned backoff loop wake; it must not dial over the
	// restarted connection.
	time.Sleep(1500 * time.Millisecond)

	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, int32(2), atomic.LoadInt32(&dials))
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(1))
}

func TestReconnectAttemptsExhausted(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var dials int32
	drop := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := atomic.AddInt32(&dials, 1)
		if idx > 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		<-drop
		conn.Close()
	}))
	defer srv.Close()

	opts := testOptions()
	opts.ReconnectCeiling = 20 * time.Millisecond
	opts.CloseRetryDelay = 300 * time.Millisecond

	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), &fakeTokens{token: "T1"}, nil, nil, opts)
	defer c.Stop()

	require.NoError(t, c.Start(context.Background()))
	drop <- struct{}{}

	// The backoff machine runs its bounded attempts and settles.
	require.Eventually(t, func() bool {
		return c.State() == StateDisconnected
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1+opts.MaxReconnectAttempts), atomic.LoadInt32(&dials))

	// One delayed restart fires as a safety net, and nothing after it.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&dials) == int32(2+opts.MaxReconnectAttempts)
	}, 3*time.Second, 10*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(2+opts.MaxReconnectAttempts), atomic.LoadInt32(&dials))
	assert.Equal(t, StateDisconnected, c.State())
}

func TestBackoffDelaySequence(t *testing.T) {
	ceiling := 30 * time.Second

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for attempt, expected := range want {
		assert.Equal(t, expected, backoffDelay(attempt, ceiling), "attempt %d", attempt)
	}
}

func TestIsAuthShaped(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"401 token expired", true},
		{"Unauthorized", true},
		{"Authentication required", true},
		{"rate limited", false},
		{"connection lost", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isAuthShaped(errTextual(tt.msg)), tt.msg)
	}
}

type errTextual string

func (e errTextual) Error() string { return string(e) }
