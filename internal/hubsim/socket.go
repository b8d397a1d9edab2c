package hubsim

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ondelive/onde/pkg/chat"
	"github.com/rs/xid"
	"github.com/tidwall/gjson"
)

// socketEnvelope mirrors the live-chat socket wire format.
type socketEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type socketConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (sc *socketConn) send(env socketEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Simulator) serveSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("socket upgrade failed", "error", err)
		return
	}

	sc := &socketConn{conn: conn}
	username, _ := s.verifyToken(bearerToken(r))
	if username == "" {
		username = "guest"
	}

	s.logger.Info("socket connection opened", "user", username)

	defer func() {
		s.mu.Lock()
		for room, members := range s.socketRooms {
			delete(members, sc)
			if len(members) == 0 {
				delete(s.socketRooms, room)
			}
		}
		s.mu.Unlock()
		conn.Close()
		s.logger.Info("socket connection closed", "user", username)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env socketEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}

		switch env.Event {
		case "join-live":
			s.joinRoom(sc, roomID(env.Data))
		case "leave-live":
			s.leaveRoom(sc, roomID(env.Data))
		case "send-message":
			s.relayMessage(username, env.Data)
		}
	}
}

func roomID(data []byte) string {
	return gjson.ParseBytes(data).String()
}

func (s *Simulator) joinRoom(sc *socketConn, room string) {
	if room == "" {
		return
	}

	s.mu.Lock()
	if s.socketRooms[room] == nil {
		s.socketRooms[room] = make(map[*socketConn]struct{})
	}
	s.socketRooms[room][sc] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug("joined live room", "room", room)
}

func (s *Simulator) leaveRoom(sc *socketConn, room string) {
	s.mu.Lock()
	if members, ok := s.socketRooms[room]; ok {
		delete(members, sc)
		if len(members) == 0 {
			delete(s.socketRooms, room)
		}
	}
	s.mu.Unlock()
}

func (s *Simulator) relayMessage(username string, data []byte) {
	v := gjson.ParseBytes(data)
	room := v.Get("liveId").String()
	content := v.Get("message").String()
	if room == "" || content == "" {
		return
	}

	msg := chat.Message{
		ID:        xid.New().String(),
		User:      username,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	s.mu.Lock()
	s.messages[room] = append(s.messages[room], msg)
	s.mu.Unlock()

	s.broadcastRoom(room, "new-message", msg)
}

// broadcastRoom pushes an event to every member of a live room.
func (s *Simulator) broadcastRoom(room, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	s.mu.Lock()
	members := make([]*socketConn, 0, len(s.socketRooms[room]))
	for sc := range s.socketRooms[room] {
		members = append(members, sc)
	}
	s.mu.Unlock()

	for _, sc := range members {
		if err := sc.send(socketEnvelope{Event: event, Data: data}); err != nil {
			s.logger.Warn("socket broadcast failed", "room", room, "error", err)
		}
	}
}
