package radio

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// preferences is the slice of store state that survives across sessions.
// Everything else (now playing, listeners, current station) is realtime and
// rebuilt from the backend on startup.
type preferences struct {
	Volume    float64  `json:"volume"`
	Favorites []string `json:"favorites"`
}

type prefs struct {
	path string
}

// newPrefs returns a preference file under dir, or a disabled instance when
// dir is empty.
func newPrefs(dir string) *prefs {
	if dir == "" {
		return &prefs{}
	}
	return &prefs{path: filepath.Join(dir, "radio.json")}
}

func (p *prefs) load() (preferences, bool) {
	if p.path == "" {
		return preferences{}, false
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return preferences{}, false
	}

	var saved preferences
	if err := json.Unmarshal(data, &saved); err != nil {
		return preferences{}, false
	}
	return saved, true
}

func (p *prefs) save(saved preferences) error {
	if p.path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p.path, data, 0o644)
}
