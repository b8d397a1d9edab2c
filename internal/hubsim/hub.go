package hubsim

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ondelive/onde/pkg/chat"
	"github.com/rs/xid"
)

// hubFrame mirrors the hub wire envelope.
type hubFrame struct {
	Type   string            `json:"type"`
	ID     string            `json:"id,omitempty"`
	Target string            `json:"target,omitempty"`
	Error  string            `json:"error,omitempty"`
	Data   json.RawMessage   `json:"data,omitempty"`
	Args   []json.RawMessage `json:"args,omitempty"`
}

type hubConn struct {
	conn    *websocket.Conn
	token   string
	writeMu sync.Mutex
}

func (hc *hubConn) send(f hubFrame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}

	hc.writeMu.Lock()
	defer hc.writeMu.Unlock()
	return hc.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Simulator) serveHub(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("hub upgrade failed", "error", err)
		return
	}

	hc := &hubConn{conn: conn, token: bearerToken(r)}

	s.mu.Lock()
	s.hubConns[hc] = struct{}{}
	s.listeners = len(s.hubConns) + 2
	s.mu.Unlock()

	s.logger.Info("hub connection opened")
	s.BroadcastViewerCount()

	defer func() {
		s.mu.Lock()
		delete(s.hubConns, hc)
		s.listeners = len(s.hubConns) + 2
		s.mu.Unlock()
		conn.Close()
		s.logger.Info("hub connection closed")
		s.BroadcastViewerCount()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var f hubFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		if f.Type == "invoke" {
			s.handleInvoke(hc, f)
		}
	}
}

func (s *Simulator) handleInvoke(hc *hubConn, f hubFrame) {
	if f.Target != "SendMessage" {
		hc.send(hubFrame{Type: "completion", ID: f.ID, Error: "unknown method " + f.Target})
		return
	}

	username, ok := s.verifyToken(hc.token)
	if !ok {
		// Worded the way the real hub reports expired credentials.
		hc.send(hubFrame{Type: "completion", ID: f.ID, Error: "401 Unauthorized: token invalid or expired"})
		return
	}

	var user, content string
	if len(f.Args) > 0 {
		json.Unmarshal(f.Args[0], &user)
	}
	if len(f.Args) > 1 {
		json.Unmarshal(f.Args[1], &content)
	}
	if user == "" {
		user = username
	}

	msg := chat.Message{
		ID:        xid.New().String(),
		User:      user,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	s.mu.Lock()
	s.messages["hub"] = append(s.messages["hub"], msg)
	s.mu.Unlock()

	hc.send(hubFrame{Type: "completion", ID: f.ID})
	s.broadcastHub("ReceiveMessage", map[string]any{"message": msg})
}

// broadcastHub pushes a named event to every hub connection.
func (s *Simulator) broadcastHub(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	s.mu.Lock()
	conns := make([]*hubConn, 0, len(s.hubConns))
	for hc := range s.hubConns {
		conns = append(conns, hc)
	}
	s.mu.Unlock()

	for _, hc := range conns {
		if err := hc.send(hubFrame{Type: "event", Target: event, Data: data}); err != nil {
			s.logger.Warn("hub broadcast failed", "event", event, "error", err)
		}
	}
}

// PushNowPlaying broadcasts the selected station's current snapshot.
func (s *Simulator) PushNowPlaying() {
	s.mu.Lock()
	var payload map[string]any
	for _, st := range s.stations {
		if st.id == s.selected {
			payload = map[string]any{
				"nowPlaying": s.flatNowPlaying(st),
				"listeners":  s.listenersJSON(),
				"isLive":     false,
			}
			break
		}
	}
	s.mu.Unlock()

	if payload != nil {
		s.broadcastHub("NowPlayingUpdate", payload)
	}
}

// flatNowPlaying renders the current envelope shape. Callers hold s.mu.
func (s *Simulator) flatNowPlaying(st station) map[string]any {
	tr := s.currentTrack(st)
	playedAt := s.playedAt[st.id]
	elapsed := int(time.Since(playedAt).Seconds())
	if elapsed > tr.duration {
		elapsed = tr.duration
	}

	return map[string]any{
		"songId":     tr.id,
		"artist":     tr.artist,
		"title":      tr.title,
		"album":      tr.album,
		"artworkUrl": tr.art,
		"playedAt":   playedAt.Unix(),
		"duration":   tr.duration,
		"elapsed":    elapsed,
	}
}

// BroadcastViewerCount pushes the bare listener count to all hub
// connections.
func (s *Simulator) BroadcastViewerCount() {
	s.mu.Lock()
	count := s.listeners
	s.mu.Unlock()

	s.broadcastHub("ViewerCountUpdated", count)
}
