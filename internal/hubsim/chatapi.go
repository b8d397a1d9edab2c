package hubsim

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ondelive/onde/pkg/chat"
	"github.com/rs/xid"
)

func (s *Simulator) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	liveID := chi.URLParam(r, "liveID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	s.mu.Lock()
	history := append([]chat.Message(nil), s.messages[liveID]...)
	s.mu.Unlock()

	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	if history == nil {
		history = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Simulator) handleChatSend(w http.ResponseWriter, r *http.Request) {
	username, ok := s.verifyToken(bearerToken(r))
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	liveID := chi.URLParam(r, "liveID")

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	msg := chat.Message{
		ID:        xid.New().String(),
		User:      username,
		Content:   body.Message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	s.mu.Lock()
	s.messages[liveID] = append(s.messages[liveID], msg)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, msg)

	// Other room members learn about it over the socket.
	s.broadcastRoom(liveID, "new-message", msg)
}

func (s *Simulator) handleChatDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.verifyToken(bearerToken(r)); !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	messageID := chi.URLParam(r, "id")

	s.mu.Lock()
	room := ""
	for liveID, history := range s.messages {
		for i, msg := range history {
			if msg.ID == messageID {
				s.messages[liveID] = append(history[:i], history[i+1:]...)
				room = liveID
				break
			}
		}
		if room != "" {
			break
		}
	}
	s.mu.Unlock()

	if room == "" {
		writeError(w, http.StatusNotFound, "unknown message")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"deleted": messageID})
	s.broadcastRoom(room, "message-deleted", map[string]string{"id": messageID})
}
