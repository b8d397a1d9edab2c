package radio

import (
	"context"
	"sync"

	"github.com/ondelive/onde/internal/eventbus"
	"github.com/ondelive/onde/internal/logging"
)

// API is the slice of the REST backend the store depends on. Injected so
// tests can substitute a fake.
type API interface {
	// SelectStation tells the backend which station to publish updates for.
	SelectStation(ctx context.Context, stationID int) error

	// LiveStreams fetches the current live-stream snapshot.
	LiveStreams(ctx context.Context) ([]LiveStream, error)
}

// Store is the single writer of radio playback state. Views observe it
// through the event bus; the hub bridge and user actions mutate it.
type Store struct {
	api    API
	bus    eventbus.Bus
	logger *logging.Logger
	prefs  *prefs

	mu          sync.RWMutex
	playing     bool
	current     *Station
	volume      float64
	favorites   []string
	nowPlaying  *NowPlaying
	listeners   *Listeners
	initialized bool
}

// NewStore creates a radio store. stateDir, when non-empty, is where volume
// and favorites persist across sessions; other state is session-local.
func NewStore(api API, bus eventbus.Bus, logger *logging.Logger, stateDir string) *Store {
	if logger == nil {
		logger = logging.New(logging.Config{Level: "info", Format: "text"})
	}

	s := &Store{
		api:    api,
		bus:    bus,
		logger: logger.WithFields(map[string]any{"component": "radio"}),
		prefs:  newPrefs(stateDir),
		volume: 0.7,
	}

	if saved, ok := s.prefs.load(); ok {
		s.volume = saved.Volume
		s.favorites = saved.Favorites
	}

	return s
}

// Play sets the current station and marks playback active. Pure state
// transition; audio decoding is a consumer concern.
func (s *Store) Play(station Station) {
	s.mu.Lock()
	st := station
	s.current = &st
	s.playing = true
	s.mu.Unlock()

	s.publish(eventbus.EventStationChanged, station)
	s.publish(eventbus.EventPlaybackChanged, true)
}

// Pause stops playback but keeps the current station.
func (s *Store) Pause() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()

	s.publish(eventbus.EventPlaybackChanged, false)
}

// Stop stops playback and clears the current station.
func (s *Store) Stop() {
	s.mu.Lock()
	s.playing = false
	s.current = nil
	s.mu.Unlock()

	s.publish(eventbus.EventPlaybackChanged, false)
}

// IsPlaying reports whether playback is active.
func (s *Store) IsPlaying() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playing
}

// CurrentStation returns the current station, false when none is selected.
func (s *Store) CurrentStation() (Station, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return Station{}, false
	}
	return *s.current, true
}

// SetVolume sets playback volume, clamped to [0, 1].
func (s *Store) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}

	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()

	s.persistPrefs()
}

// Volume returns the playback volume.
func (s *Store) Volume() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volume
}

// ToggleFavorite adds or removes a station from the favorites.
func (s *Store) ToggleFavorite(stationID string) {
	s.mu.Lock()
	found := false
	for i, id := range s.favorites {
		if id == stationID {
			s.favorites = append(s.favorites[:i], s.favorites[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		s.favorites = append(s.favorites, stationID)
	}
	s.mu.Unlock()

	s.persistPrefs()
}

// IsFavorite reports whether a station is a favorite.
func (s *Store) IsFavorite(stationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.favorites {
		if id == stationID {
			return true
		}
	}
	return false
}

// Favorites returns the favorite station ids.
func (s *Store) Favorites() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.favorites...)
}

// SetNowPlaying replaces the now-playing info wholesale. No field-wise
// merging; a pushed update is the complete truth.
func (s *Store) SetNowPlaying(np NowPlaying) {
	s.mu.Lock()
	s.nowPlaying = &np
	s.mu.Unlock()

	s.publish(eventbus.EventNowPlayingUpdated, np)
}

// NowPlaying returns the current now-playing info.
func (s *Store) NowPlaying() (NowPlaying, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.nowPlaying == nil {
		return NowPlaying{}, false
	}
	return *s.nowPlaying, true
}

// SetListeners replaces the listener counts wholesale.
func (s *Store) SetListeners(l Listeners) {
	s.mu.Lock()
	s.listeners = &l
	s.mu.Unlock()

	s.publish(eventbus.EventListenersUpdated, l)
}

// Listeners returns the current listener counts.
func (s *Store) Listeners() (Listeners, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listeners == nil {
		return Listeners{}, false
	}
	return *s.listeners, true
}

// Initialized reports whether first-station initialization has run.
func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// SelectStation switches the backend to a station and applies the current
// snapshot immediately via REST instead of waiting for the next push.
func (s *Store) SelectStation(ctx context.Context, stationID int) error {
	if err := s.api.SelectStation(ctx, stationID); err != nil {
		return err
	}

	streams, err := s.api.LiveStreams(ctx)
	if err != nil {
		return err
	}

	s.applySnapshot(streams, stationID)
	return nil
}

// InitializeFirstStation selects and plays a default station exactly once
// per session. A station without a stream URL marks the store initialized
// without playing, so a bad default cannot cause a retry storm. Backend
// failures are logged and the station is still played locally: availability
// over consistency.
func (s *Store) InitializeFirstStation(ctx context.Context, station Station, stationID int) {
	s.mu.Lock()
	if s.initialized || s.current != nil {
		s.mu.Unlock()
		s.logger.Debug("first-station initialization skipped")
		return
	}

	if station.StreamURL == "" {
		s.initialized = true
		s.mu.Unlock()
		s.logger.Error("cannot initialize station without stream URL", "station", station.Name)
		return
	}
	s.mu.Unlock()

	if err := s.api.SelectStation(ctx, stationID); err != nil {
		s.logger.Error("select-station call failed, playing locally anyway",
			"station", station.Name, "error", err)
	} else if streams, err := s.api.LiveStreams(ctx); err != nil {
		s.logger.Warn("could not fetch initial live snapshot", "error", err)
	} else {
		s.applySnapshot(streams, stationID)
	}

	s.mu.Lock()
	st := station
	s.current = &st
	s.playing = true
	s.initialized = true
	s.mu.Unlock()

	s.logger.Info("first station initialized", "station", station.Name)
	s.publish(eventbus.EventStationChanged, station)
	s.publish(eventbus.EventPlaybackChanged, true)
}

// applySnapshot applies the snapshot entry matching stationID, if any.
func (s *Store) applySnapshot(streams []LiveStream, stationID int) {
	for _, stream := range streams {
		if stream.StationID == stationID {
			s.SetNowPlaying(stream.NowPlaying)
			s.SetListeners(stream.Listeners)
			return
		}
	}
}

func (s *Store) persistPrefs() {
	s.mu.RLock()
	saved := preferences{
		Volume:    s.volume,
		Favorites: append([]string(nil), s.favorites...),
	}
	s.mu.RUnlock()

	if err := s.prefs.save(saved); err != nil {
		s.logger.Warn("failed to persist player preferences", "error", err)
	}
}

func (s *Store) publish(eventType eventbus.EventType, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.NewEvent(eventType, "radio", data))
}
