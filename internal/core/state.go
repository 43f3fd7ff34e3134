package core

import (
	"sync"
	"time"
)

// LightingSummary is the last-applied lighting command result. It has no
// history; each applied command overwrites it.
type LightingSummary struct {
	Mode       string `json:"mode"`
	Color      Color  `json:"color"`
	Brightness int    `json:"brightness"`
	BuiltinOn  bool   `json:"builtinOn"`
}

// PlaybackSummary describes the current playback session, if any.
type PlaybackSummary struct {
	Name       string `json:"name"`
	Playing    bool   `json:"playing"`
	Loop       bool   `json:"loop"`
	FrameIndex int    `json:"frameIndex"`
	FrameCount int    `json:"frameCount"`
}

// State holds the cached device status that query actions and the heartbeat
// are answered from. Worker contexts push their summaries here after each
// applied command; nothing reads a context's internals directly.
type State struct {
	mu             sync.RWMutex
	StorageMounted bool
	LastCommandAt  time.Time
	Lighting       LightingSummary
	Playback       PlaybackSummary
	RunningPattern string
}

// NewState creates a new State instance.
func NewState() *State {
	return &State{}
}

// Clone returns a snapshot of the current state for safe reading.
func (s *State) Clone() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		StorageMounted: s.StorageMounted,
		LastCommandAt:  s.LastCommandAt,
		Lighting:       s.Lighting,
		Playback:       s.Playback,
		RunningPattern: s.RunningPattern,
	}
}

// SetStorageMounted updates the removable-storage availability flag.
func (s *State) SetStorageMounted(mounted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StorageMounted = mounted
}

// TouchCommand records the arrival time of the most recent valid command.
func (s *State) TouchCommand(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastCommandAt = t
}

// SetLighting overwrites the lighting summary.
func (s *State) SetLighting(l LightingSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lighting = l
}

// SetPlayback overwrites the playback summary.
func (s *State) SetPlayback(p PlaybackSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Playback = p
}

// SetRunningPattern updates the running pattern name ("" when none).
func (s *State) SetRunningPattern(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RunningPattern = pattern
}
