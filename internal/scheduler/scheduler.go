// Package scheduler runs cron-timed show cues. Cues are plain command
// strings mapped onto queue sends, so a scheduled cue takes exactly the same
// path as a network command.
package scheduler

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"prop-controller/internal/core"
)

// Entry is one persisted schedule.
type Entry struct {
	Spec    string `json:"spec"`
	Command string `json:"command"`
}

// Patterns is the slice of the pattern engine the scheduler needs.
type Patterns interface {
	Run(name string) error
}

// Scheduler manages all cron-related cues.
//
// Supported command verbs:
//
//	color R G B          solid color
//	brightness N         array brightness 0..100
//	play NAME            start looping playback
//	image NAME           display a single image
//	stop                 stop playback
//	builtin on|off       built-in LED
//	pattern NAME         run a scripted effect
type Scheduler struct {
	cron          *cron.Cron
	store         map[cron.EntryID]Entry
	lightingQ     *core.Queue[core.LightingCommand]
	playbackQ     *core.Queue[core.PlaybackCommand]
	patterns      Patterns
	mu            sync.RWMutex
	schedulesFile string
}

// New creates and loads a scheduler.
func New(lightingQ *core.Queue[core.LightingCommand], playbackQ *core.Queue[core.PlaybackCommand], schedulesFile string) *Scheduler {
	s := &Scheduler{
		cron:          cron.New(),
		store:         make(map[cron.EntryID]Entry),
		lightingQ:     lightingQ,
		playbackQ:     playbackQ,
		schedulesFile: schedulesFile,
	}
	s.load()
	return s
}

// SetPatterns wires the pattern engine. Set once during startup, before the
// cron ticker starts; cues with the pattern verb fail until then.
func (s *Scheduler) SetPatterns(p Patterns) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = p
}

// Start begins the cron ticker.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("[Scheduler] Cron scheduler started.")
}

// Stop halts the cron ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[Scheduler] Cron scheduler stopped.")
}

// Add creates a new cue and persists it. The command string is validated up
// front so a bad cue fails at Add time, not at fire time.
func (s *Scheduler) Add(spec, command string) (int, error) {
	if err := validate(command); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.execute(command) })
	if err != nil {
		return 0, fmt.Errorf("bad schedule spec '%s': %w", spec, err)
	}
	s.store[id] = Entry{Spec: spec, Command: command}
	s.save()
	log.Printf("[Scheduler] Added cue (ID %d): %s -> %s", id, spec, command)
	return int(id), nil
}

// Remove deletes a cue.
func (s *Scheduler) Remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID := cron.EntryID(id)
	s.cron.Remove(entryID)
	delete(s.store, entryID)
	s.save()
	log.Printf("[Scheduler] Removed cue (ID %d)", id)
}

// All returns a copy of the current cues keyed by id.
func (s *Scheduler) All() map[int]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]Entry, len(s.store))
	for k, v := range s.store {
		out[int(k)] = v
	}
	return out
}

// Execute parses and fires one command string immediately. Sends are
// non-blocking; a full queue drops the cue and logs it.
func (s *Scheduler) Execute(command string) error {
	c, err := parse(command)
	if err != nil {
		return err
	}
	cueID := uuid.NewString()[:8]
	if c.lighting != nil {
		if !s.lightingQ.TrySend(*c.lighting) {
			return fmt.Errorf("lighting queue full, cue %s dropped", cueID)
		}
	}
	if c.playback != nil {
		if !s.playbackQ.TrySend(*c.playback) {
			return fmt.Errorf("playback queue full, cue %s dropped", cueID)
		}
	}
	if c.pattern != "" {
		s.mu.RLock()
		patterns := s.patterns
		s.mu.RUnlock()
		if patterns == nil {
			return fmt.Errorf("pattern engine not available, cue %s dropped", cueID)
		}
		if err := patterns.Run(c.pattern); err != nil {
			return fmt.Errorf("cue %s: %w", cueID, err)
		}
	}
	log.Printf("[Scheduler] Fired cue %s: %s", cueID, command)
	return nil
}

func (s *Scheduler) execute(command string) {
	if err := s.Execute(command); err != nil {
		log.Printf("[Scheduler] Cue failed: %v", err)
	}
}

func validate(command string) error {
	_, err := parse(command)
	return err
}

// cue is the parsed form of one command string.
type cue struct {
	lighting *core.LightingCommand
	playback *core.PlaybackCommand
	pattern  string
}

func parse(command string) (cue, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return cue{}, fmt.Errorf("empty cue command")
	}

	switch parts[0] {
	case "color":
		if len(parts) != 4 {
			return cue{}, fmt.Errorf("usage: color R G B")
		}
		var rgb [3]int
		for i := 0; i < 3; i++ {
			v, err := strconv.Atoi(parts[i+1])
			if err != nil || v < 0 || v > 255 {
				return cue{}, fmt.Errorf("bad channel value '%s'", parts[i+1])
			}
			rgb[i] = v
		}
		return cue{lighting: &core.LightingCommand{
			Kind:  core.LightingSetColor,
			Color: core.Color{R: uint8(rgb[0]), G: uint8(rgb[1]), B: uint8(rgb[2])},
		}}, nil

	case "brightness":
		if len(parts) != 2 {
			return cue{}, fmt.Errorf("usage: brightness N")
		}
		v, err := strconv.Atoi(parts[1])
		if err != nil || v < 0 || v > 100 {
			return cue{}, fmt.Errorf("bad brightness value '%s'", parts[1])
		}
		return cue{lighting: &core.LightingCommand{Kind: core.LightingSetBrightness, Brightness: v}}, nil

	case "builtin":
		if len(parts) != 2 || (parts[1] != "on" && parts[1] != "off") {
			return cue{}, fmt.Errorf("usage: builtin on|off")
		}
		return cue{lighting: &core.LightingCommand{Kind: core.LightingSetBuiltin, BuiltinOn: parts[1] == "on"}}, nil

	case "play":
		if len(parts) != 2 {
			return cue{}, fmt.Errorf("usage: play NAME")
		}
		return cue{playback: &core.PlaybackCommand{Kind: core.PlaybackPlay, Name: parts[1], Loop: true}}, nil

	case "image":
		if len(parts) != 2 {
			return cue{}, fmt.Errorf("usage: image NAME")
		}
		return cue{playback: &core.PlaybackCommand{Kind: core.PlaybackShowImage, Name: parts[1]}}, nil

	case "stop":
		return cue{playback: &core.PlaybackCommand{Kind: core.PlaybackStop}}, nil

	case "pattern":
		if len(parts) != 2 {
			return cue{}, fmt.Errorf("usage: pattern NAME")
		}
		return cue{pattern: parts[1]}, nil
	}

	return cue{}, fmt.Errorf("unknown cue verb '%s'", parts[0])
}

func (s *Scheduler) save() {
	data, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		log.Printf("[Scheduler] Error marshalling schedules: %v", err)
		return
	}
	if err := os.WriteFile(s.schedulesFile, data, 0644); err != nil {
		log.Printf("[Scheduler] Error writing schedule file: %v", err)
	}
}

func (s *Scheduler) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.schedulesFile); os.IsNotExist(err) {
		return
	}
	data, err := os.ReadFile(s.schedulesFile)
	if err != nil {
		log.Printf("[Scheduler] Error reading schedule file: %v", err)
		return
	}

	tempStore := make(map[cron.EntryID]Entry)
	if err := json.Unmarshal(data, &tempStore); err != nil {
		log.Printf("[Scheduler] Error unmarshalling schedule file: %v", err)
		return
	}

	log.Printf("[Scheduler] Loading %d cue(s) from '%s'...", len(tempStore), s.schedulesFile)
	for _, entry := range tempStore {
		cue := entry
		newID, err := s.cron.AddFunc(cue.Spec, func() { s.execute(cue.Command) })
		if err != nil {
			log.Printf("[Scheduler] Error re-adding cue from file: %v", err)
			continue
		}
		s.store[newID] = cue
	}
}

// NextRuns reports the next fire time per cue id, for the status hub.
func (s *Scheduler) NextRuns() map[int]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]time.Time)
	for _, e := range s.cron.Entries() {
		if _, ok := s.store[e.ID]; ok {
			out[int(e.ID)] = e.Next
		}
	}
	return out
}
