// Package radio holds the client-side radio state: the normalized station
// and now-playing shapes, the player store, and the bridge that applies
// hub-pushed updates to it.
package radio

import (
	"time"

	"github.com/tidwall/gjson"
)

// Station is the canonical station shape. The backend exposes two wire
// shapes for the same entity (a raw descriptor with listen_url/hls_url and a
// normalized one with streamUrl); both are mapped here on ingress and nothing
// past this boundary branches on the source shape.
type Station struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	StreamURL   string `json:"streamUrl"`
	Logo        string `json:"logo"`
	Genre       string `json:"genre"`
	Description string `json:"description"`
	Website     string `json:"website,omitempty"`
}

// StationFromWire normalizes either station wire shape.
func StationFromWire(data []byte) Station {
	return stationFromResult(gjson.ParseBytes(data))
}

func stationFromResult(v gjson.Result) Station {
	if s := v.Get("streamUrl"); s.Exists() {
		return Station{
			ID:          v.Get("id").String(),
			Name:        v.Get("name").String(),
			StreamURL:   s.String(),
			Logo:        v.Get("logo").String(),
			Genre:       v.Get("genre").String(),
			Description: v.Get("description").String(),
			Website:     v.Get("website").String(),
		}
	}

	// Raw descriptor. HLS wins over the plain mount when enabled.
	streamURL := v.Get("listen_url").String()
	if v.Get("hls_enabled").Bool() && v.Get("hls_url").String() != "" {
		streamURL = v.Get("hls_url").String()
	}

	return Station{
		ID:          v.Get("id").String(),
		Name:        v.Get("name").String(),
		StreamURL:   streamURL,
		Genre:       v.Get("genre").String(),
		Description: v.Get("description").String(),
		Website:     v.Get("url").String(),
	}
}

// NowPlaying is the currently broadcasting track. It is replaced wholesale
// on every update, never merged field by field.
type NowPlaying struct {
	SongID     string `json:"songId"`
	Artist     string `json:"artist"`
	Title      string `json:"title"`
	Album      string `json:"album"`
	ArtworkURL string `json:"artworkUrl"`
	PlayedAt   int64  `json:"playedAt"`
	Duration   int    `json:"duration"`
	Elapsed    int    `json:"elapsed"`
}

// ElapsedAt derives the live elapsed counter from PlayedAt and the wall
// clock, clamped to the track duration. The server also sends an elapsed
// field; the client computation is the authoritative one.
func (np NowPlaying) ElapsedAt(now time.Time) time.Duration {
	if np.PlayedAt == 0 {
		return 0
	}

	elapsed := now.Sub(time.Unix(np.PlayedAt, 0))
	if elapsed < 0 {
		return 0
	}
	if np.Duration > 0 {
		if max := time.Duration(np.Duration) * time.Second; elapsed > max {
			return max
		}
	}
	return elapsed
}

// nowPlayingFromResult accepts both the nested broadcast shape
// ({song:{...}, played_at, duration, elapsed}) and the flat one.
func nowPlayingFromResult(v gjson.Result) NowPlaying {
	if song := v.Get("song"); song.Exists() {
		return NowPlaying{
			SongID:     song.Get("id").String(),
			Artist:     song.Get("artist").String(),
			Title:      song.Get("title").String(),
			Album:      song.Get("album").String(),
			ArtworkURL: song.Get("art").String(),
			PlayedAt:   v.Get("played_at").Int(),
			Duration:   int(v.Get("duration").Int()),
			Elapsed:    int(v.Get("elapsed").Int()),
		}
	}

	return NowPlaying{
		SongID:     v.Get("songId").String(),
		Artist:     v.Get("artist").String(),
		Title:      v.Get("title").String(),
		Album:      v.Get("album").String(),
		ArtworkURL: v.Get("artworkUrl").String(),
		PlayedAt:   v.Get("playedAt").Int(),
		Duration:   int(v.Get("duration").Int()),
		Elapsed:    int(v.Get("elapsed").Int()),
	}
}

// Listeners is the station audience count.
type Listeners struct {
	Total   int `json:"total"`
	Unique  int `json:"unique"`
	Current int `json:"current"`
}

// ApproximateListeners builds a Listeners value from a bare current count,
// as pushed by the viewer-count event. Total and unique are approximated as
// equal to current; the approximation is lossy but the event carries nothing
// more.
func ApproximateListeners(current int) Listeners {
	return Listeners{Total: current, Unique: current, Current: current}
}

func listenersFromResult(v gjson.Result) Listeners {
	return Listeners{
		Total:   int(v.Get("total").Int()),
		Unique:  int(v.Get("unique").Int()),
		Current: int(v.Get("current").Int()),
	}
}

// LiveInfo describes a live streamer takeover of a station.
type LiveInfo struct {
	IsLive       bool   `json:"isLive"`
	StreamerName string `json:"streamerName"`
	Art          string `json:"art"`
}

func liveFromResult(v gjson.Result) LiveInfo {
	return LiveInfo{
		IsLive:       v.Get("is_live").Bool() || v.Get("isLive").Bool(),
		StreamerName: firstOf(v, "streamer_name", "streamerName"),
		Art:          v.Get("art").String(),
	}
}

// LiveStream is one entry of the current live-stream snapshot.
type LiveStream struct {
	StationID  int
	Station    Station
	NowPlaying NowPlaying
	Listeners  Listeners
	Live       LiveInfo
	IsOnline   bool
}

// ParseLiveStreams normalizes the /radio/LiveStream response body.
func ParseLiveStreams(body []byte) []LiveStream {
	var streams []LiveStream

	gjson.ParseBytes(body).ForEach(func(_, v gjson.Result) bool {
		streams = append(streams, LiveStream{
			StationID:  int(v.Get("station.id").Int()),
			Station:    stationFromResult(v.Get("station")),
			NowPlaying: nowPlayingFromResult(v.Get("now_playing")),
			Listeners:  listenersFromResult(v.Get("listeners")),
			Live:       liveFromResult(v.Get("live")),
			IsOnline:   v.Get("is_online").Bool(),
		})
		return true
	})

	return streams
}

// Update is the normalized form of a pushed now-playing event.
type Update struct {
	NowPlaying NowPlaying
	Listeners  Listeners
	Live       LiveInfo
	HasLive    bool
}

// ParseUpdate normalizes a pushed now-playing payload. Two shapes arrive
// from the hub: the current {nowPlaying, listeners, isLive, live} envelope
// and a legacy flattened {now_playing, listeners} one.
func ParseUpdate(data []byte) (Update, bool) {
	v := gjson.ParseBytes(data)

	np := v.Get("nowPlaying")
	if !np.Exists() {
		np = v.Get("now_playing")
	}
	if !np.Exists() {
		return Update{}, false
	}

	u := Update{
		NowPlaying: nowPlayingFromResult(np),
		Listeners:  listenersFromResult(v.Get("listeners")),
	}

	if live := v.Get("live"); live.Exists() {
		u.Live = liveFromResult(live)
		u.HasLive = true
	} else if isLive := v.Get("isLive"); isLive.Exists() {
		u.Live = LiveInfo{IsLive: isLive.Bool()}
		u.HasLive = true
	}

	return u, true
}

func firstOf(v gjson.Result, paths ...string) string {
	for _, p := range paths {
		if r := v.Get(p); r.Exists() && r.String() != "" {
			return r.String()
		}
	}
	return ""
}
