package hubsim

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ondelive/onde/pkg/api"
	"github.com/rs/xid"
)

func seedMedia() []api.Media {
	return []api.Media{
		{
			ID:           "v1",
			Title:        "Onde One launch party",
			Description:  "Recording of the launch broadcast",
			ThumbnailURL: "http://localhost:8010/thumbs/v1.png",
			StreamURL:    "http://localhost:8010/vod/v1/index.m3u8",
			Duration:     5400,
			Views:        1207,
			UploadedBy:   "onde",
			UploadedAt:   "2026-08-01T20:00:00Z",
		},
		{
			ID:           "v2",
			Title:        "Studio session: Onde Classics",
			ThumbnailURL: "http://localhost:8010/thumbs/v2.png",
			StreamURL:    "http://localhost:8010/vod/v2/index.m3u8",
			Duration:     2710,
			Views:        342,
			UploadedBy:   "onde",
			UploadedAt:   "2026-08-14T18:30:00Z",
		},
	}
}

func (s *Simulator) handleMediaList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, seedMedia())
}

func (s *Simulator) handleMediaGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, item := range seedMedia() {
		if item.ID == id {
			writeJSON(w, http.StatusOK, item)
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown media")
}

func (s *Simulator) handleComments(w http.ResponseWriter, r *http.Request) {
	mediaID := chi.URLParam(r, "mediaID")

	s.mu.Lock()
	comments := append([]api.Comment(nil), s.comments[mediaID]...)
	s.mu.Unlock()

	if comments == nil {
		comments = []api.Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *Simulator) handleAddComment(w http.ResponseWriter, r *http.Request) {
	username, ok := s.verifyToken(bearerToken(r))
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var body struct {
		MediaID string `json:"mediaId"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.MediaID == "" || body.Content == "" {
		writeError(w, http.StatusBadRequest, "mediaId and content are required")
		return
	}

	comment := api.Comment{
		ID:        xid.New().String(),
		MediaID:   body.MediaID,
		Author:    username,
		Content:   body.Content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	s.mu.Lock()
	s.comments[body.MediaID] = append(s.comments[body.MediaID], comment)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, comment)
}
