package config

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// Identity is the read-only device identity handed to the runtime contexts.
type Identity struct {
	Label string
	ID    int
	Port  int
}

// Store owns the persisted configuration file. Runtime contexts read through
// the accessors; the only write path is FactoryReset, which runs outside the
// normal command flow.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  *Config
}

// NewStore wraps a loaded configuration together with its file path.
func NewStore(path string, cfg *Config) *Store {
	return &Store{path: path, cfg: cfg}
}

// Config returns the current configuration.
func (s *Store) Config() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Identity returns the device identity fields.
func (s *Store) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Identity{
		Label: s.cfg.Device.Label,
		ID:    s.cfg.Device.ID,
		Port:  s.cfg.Network.CommandPort,
	}
}

// DefaultBrightness returns the configured startup brightness.
func (s *Store) DefaultBrightness() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Lighting.DefaultBrightness
}

// DefaultMedia returns the media name played on boot ("" for none).
func (s *Store) DefaultMedia() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Playback.DefaultMedia
}

// FactoryReset deletes the persisted configuration file and restores factory
// defaults in memory. Called from the reset path only; the caller is expected
// to restart the device immediately afterwards.
func (s *Store) FactoryReset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path != "" {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove config file '%s': %w", s.path, err)
		}
	}

	fresh := &Config{}
	fresh.setDefaults()
	s.cfg = fresh
	log.Printf("[Config] Factory defaults restored, file '%s' removed", s.path)
	return nil
}
