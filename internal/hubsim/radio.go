package hubsim

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// station is a simulated station with a rotation of tracks.
type station struct {
	id        int
	name      string
	genre     string
	listenURL string
	hlsURL    string
	tracks    []track
}

type track struct {
	id       string
	artist   string
	title    string
	album    string
	art      string
	duration int
}

func seedStations() []station {
	return []station{
		{
			id:        1,
			name:      "Onde One",
			genre:     "electronic",
			listenURL: "http://localhost:8010/radio/one",
			hlsURL:    "http://localhost:8010/hls/one/live.m3u8",
			tracks: []track{
				{id: "t1", artist: "Burial", title: "Archangel", album: "Untrue", duration: 238},
				{id: "t2", artist: "Four Tet", title: "Baby", album: "Sixteen Oceans", duration: 211},
				{id: "t3", artist: "Caribou", title: "Odessa", album: "Swim", duration: 243},
			},
		},
		{
			id:        2,
			name:      "Onde Classics",
			genre:     "jazz",
			listenURL: "http://localhost:8010/radio/classics",
			tracks: []track{
				{id: "t4", artist: "Alice Coltrane", title: "Journey in Satchidananda", duration: 397},
				{id: "t5", artist: "Pharoah Sanders", title: "Astral Traveling", duration: 344},
			},
		},
	}
}

// currentTrack returns the playing track of a station. Callers hold s.mu.
func (s *Simulator) currentTrack(st station) track {
	return st.tracks[s.trackIndex[st.id]%len(st.tracks)]
}

// AdvanceTrack rotates a station to its next track and pushes the update to
// all hub connections.
func (s *Simulator) AdvanceTrack(stationID int) {
	s.mu.Lock()
	s.trackIndex[stationID]++
	s.playedAt[stationID] = time.Now()
	selected := s.selected
	s.mu.Unlock()

	if stationID == selected {
		s.PushNowPlaying()
	}
}

// stationJSON renders the raw descriptor wire shape.
func stationJSON(st station) map[string]any {
	out := map[string]any{
		"id":          strconv.Itoa(st.id),
		"name":        st.name,
		"genre":       st.genre,
		"listen_url":  st.listenURL,
		"description": st.name + " (" + st.genre + ")",
	}
	if st.hlsURL != "" {
		out["hls_enabled"] = true
		out["hls_url"] = st.hlsURL
	}
	return out
}

func (s *Simulator) nowPlayingJSON(st station) map[string]any {
	tr := s.currentTrack(st)
	playedAt := s.playedAt[st.id]
	elapsed := int(time.Since(playedAt).Seconds())
	if elapsed > tr.duration {
		elapsed = tr.duration
	}

	return map[string]any{
		"song": map[string]any{
			"id":     tr.id,
			"artist": tr.artist,
			"title":  tr.title,
			"album":  tr.album,
			"art":    tr.art,
		},
		"played_at": playedAt.Unix(),
		"duration":  tr.duration,
		"elapsed":   elapsed,
	}
}

func (s *Simulator) listenersJSON() map[string]any {
	return map[string]any{
		"total":   s.listeners,
		"unique":  s.listeners,
		"current": s.listeners,
	}
}

func (s *Simulator) handleStations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]map[string]any, 0, len(s.stations))
	for _, st := range s.stations {
		out = append(out, stationJSON(st))
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Simulator) handleLiveStreams(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]map[string]any, 0, len(s.stations))
	for _, st := range s.stations {
		out = append(out, map[string]any{
			"station":     stationJSON(st),
			"now_playing": s.nowPlayingJSON(st),
			"listeners":   s.listenersJSON(),
			"live":        map[string]any{"is_live": false},
			"is_online":   true,
		})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Simulator) handleSelectStation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid station id")
		return
	}

	s.mu.Lock()
	found := false
	for _, st := range s.stations {
		if st.id == id {
			found = true
			break
		}
	}
	if found {
		s.selected = id
	}
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "unknown station")
		return
	}

	s.logger.Info("station selected", "station_id", id)
	writeJSON(w, http.StatusOK, map[string]any{"selected": id})

	// Selecting a station immediately pushes its snapshot to hub listeners.
	s.PushNowPlaying()
}
