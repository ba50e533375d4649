// Package settings persists per-device state across restarts, keyed by
// the driver's unique hardware identifier.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// GainSettings is the persisted slice of a device's gain state.
type GainSettings struct {
	GainDB     float64 `toml:"gain_db" json:"gain_db"`
	Muted      bool    `toml:"muted" json:"muted"`
	AGCEnabled bool    `toml:"agc_enabled" json:"agc_enabled"`
}

// DeviceSettings is the persisted state for one device.
type DeviceSettings struct {
	UniqueID string `toml:"unique_id" json:"unique_id"`
	Name     string `toml:"name,omitempty" json:"name,omitempty"`

	Gain GainSettings `toml:"gain" json:"gain"`

	// Ignored devices are never activated or routed.
	Ignored bool `toml:"ignored,omitempty" json:"ignored,omitempty"`
	// DisableAutoRouting keeps the device out of most-recently-plugged
	// selection; explicit routing still works.
	DisableAutoRouting bool `toml:"disable_auto_routing,omitempty" json:"disable_auto_routing,omitempty"`

	CreatedAt time.Time `toml:"created_at" json:"created_at"`
	UpdatedAt time.Time `toml:"updated_at" json:"updated_at"`
}

// File is the on-disk shape of the settings file.
type File struct {
	Version int                       `toml:"version" json:"version"`
	Devices map[string]DeviceSettings `toml:"devices" json:"devices"`
}

// LoadFile parses a settings file without touching a live store. The file
// watcher reloads through this so handlers never see a half-applied store.
func LoadFile(path string) (File, error) {
	f := File{Version: 1, Devices: make(map[string]DeviceSettings)}
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("failed to read device settings: %w", err)
	}
	if err := toml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("failed to parse device settings: %w", err)
	}
	if f.Devices == nil {
		f.Devices = make(map[string]DeviceSettings)
	}
	return f, nil
}

// Store reads and writes device settings. Persistence failures are never
// fatal to audio: a device with an unwritable settings file still plays.
type Store struct {
	mu   sync.Mutex
	path string
	file *File
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	if path == "" {
		path = "devices.toml"
	}
	return &Store{
		path: path,
		file: &File{
			Version: 1,
			Devices: make(map[string]DeviceSettings),
		},
	}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load reads the settings file. A missing file is an empty store.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read device settings: %w", err)
	}
	if err := toml.Unmarshal(data, s.file); err != nil {
		return fmt.Errorf("failed to parse device settings: %w", err)
	}
	if s.file.Devices == nil {
		s.file.Devices = make(map[string]DeviceSettings)
	}
	if s.file.Version == 0 {
		s.file.Version = 1
	}
	return nil
}

// Lookup returns the settings for a device, creating a default entry when
// the device has not been seen before. The second return reports whether
// the entry already existed.
func (s *Store) Lookup(uniqueID, name string) (DeviceSettings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ds, ok := s.file.Devices[uniqueID]; ok {
		return ds, true
	}
	ds := DeviceSettings{
		UniqueID:  uniqueID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	s.file.Devices[uniqueID] = ds
	return ds, false
}

// Update replaces a device's settings in memory. Commit writes them out.
func (s *Store) Update(ds DeviceSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds.UpdatedAt = time.Now().UTC()
	s.file.Devices[ds.UniqueID] = ds
}

// All returns a copy of every known device's settings.
func (s *Store) All() map[string]DeviceSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]DeviceSettings, len(s.file.Devices))
	for k, v := range s.file.Devices {
		out[k] = v
	}
	return out
}

// Commit writes the settings file to disk.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := toml.Marshal(s.file)
	if err != nil {
		return fmt.Errorf("failed to marshal device settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write device settings: %w", err)
	}
	return nil
}
