package beacon

import (
	"sync"

	"github.com/dougsko/cwbeacon/pkg/config"
)

// Settings is a point-in-time copy of the beacon parameters
type Settings struct {
	StationName    string `json:"station_name"`
	Text           string `json:"text"`
	WPM            int    `json:"wpm"`
	FrequencyHz    int64  `json:"frequency_hz"`
	OffsetHz       int64  `json:"offset_hz"`
	FSKOffsetHz    int64  `json:"fsk_offset_hz"`
	KeyDownSeconds int    `json:"keydown_seconds"`
	PauseSeconds   int    `json:"pause_seconds"`
	CW             bool   `json:"cw"`
	FSK            bool   `json:"fsk"`
}

// Carrier returns the CW carrier and FSK mark frequency
func (s Settings) Carrier() int64 {
	return s.FrequencyHz + s.OffsetHz
}

// Space returns the FSK space frequency
func (s Settings) Space() int64 {
	return s.Carrier() - s.FSKOffsetHz
}

// SettingsFromConfig takes the station and beacon sections of a loaded
// configuration
func SettingsFromConfig(cfg *config.Config) Settings {
	b := cfg.Beacon
	return Settings{
		StationName:    cfg.Station.Name,
		Text:           b.Text,
		WPM:            b.WPM,
		FrequencyHz:    b.FrequencyHz,
		OffsetHz:       b.OffsetHz,
		FSKOffsetHz:    b.FSKOffsetHz,
		KeyDownSeconds: b.KeyDownSeconds,
		PauseSeconds:   b.PauseSeconds,
		CW:             b.CW,
		FSK:            b.FSK,
	}
}

// ApplyTo writes the settings back into the beacon section of cfg. The
// station name is not remotely changeable and is left alone.
func (s Settings) ApplyTo(cfg *config.Config) {
	cfg.Beacon = config.BeaconConfig{
		Text:           s.Text,
		WPM:            s.WPM,
		FrequencyHz:    s.FrequencyHz,
		OffsetHz:       s.OffsetHz,
		FSKOffsetHz:    s.FSKOffsetHz,
		KeyDownSeconds: s.KeyDownSeconds,
		PauseSeconds:   s.PauseSeconds,
		CW:             s.CW,
		FSK:            s.FSK,
	}
}

// Config is the live beacon configuration shared by the scheduler, which
// reads it, and the remote listener, which writes it. Reads copy the whole
// struct; writes go through Update.
type Config struct {
	mu       sync.RWMutex
	settings Settings
	revision uint64
}

// NewConfig creates a live configuration from initial settings
func NewConfig(initial Settings) *Config {
	return &Config{settings: initial}
}

// Snapshot returns a consistent copy of the current settings
func (c *Config) Snapshot() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Update applies fn to the settings under the write lock. The change is
// visible to the next Snapshot.
func (c *Config) Update(fn func(*Settings)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.settings)
	c.revision++
}

// TryUpdate applies fn to a copy of the settings and commits the copy
// only when fn returns nil
func (c *Config) TryUpdate(fn func(*Settings) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.settings
	if err := fn(&next); err != nil {
		return err
	}
	c.settings = next
	c.revision++
	return nil
}

// Revision counts the updates applied so far
func (c *Config) Revision() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revision
}
