package lighting

import (
	"sync"

	"prop-controller/internal/core"
)

// Strip is the pixel-addressable light array. The executor is its only
// caller; no other context holds a reference.
//
// Mutations are staged and only hit the hardware on Flush.
type Strip interface {
	Count() int
	SetPixel(index int, c core.Color)
	Fill(c core.Color)
	SetBrightness(level int) // 0..100
	Clear()
	Flush() error
}

// Indicator is the built-in status LED, separate from the array.
type Indicator interface {
	Set(on bool)
}

// MemoryStrip is an in-memory Strip used on hosts without the array attached
// and by tests. Every Flush records a snapshot of the staged pixels.
type MemoryStrip struct {
	mu         sync.Mutex
	pixels     []core.Color
	brightness int
	flushes    [][]core.Color
}

// NewMemoryStrip creates a strip with n pixels.
func NewMemoryStrip(n int) *MemoryStrip {
	return &MemoryStrip{
		pixels:     make([]core.Color, n),
		brightness: 100,
	}
}

// Count implements Strip.
func (s *MemoryStrip) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pixels)
}

// SetPixel implements Strip. Out-of-range indices are ignored.
func (s *MemoryStrip) SetPixel(index int, c core.Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.pixels) {
		return
	}
	s.pixels[index] = c
}

// Fill implements Strip.
func (s *MemoryStrip) Fill(c core.Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pixels {
		s.pixels[i] = c
	}
}

// SetBrightness implements Strip.
func (s *MemoryStrip) SetBrightness(level int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	s.brightness = level
}

// Clear implements Strip.
func (s *MemoryStrip) Clear() {
	s.Fill(core.Color{})
}

// Flush implements Strip.
func (s *MemoryStrip) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make([]core.Color, len(s.pixels))
	copy(snap, s.pixels)
	s.flushes = append(s.flushes, snap)
	return nil
}

// Pixels returns a copy of the currently staged pixels.
func (s *MemoryStrip) Pixels() []core.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Color, len(s.pixels))
	copy(out, s.pixels)
	return out
}

// Brightness returns the staged brightness level.
func (s *MemoryStrip) Brightness() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brightness
}

// Flushes returns the recorded flush snapshots.
func (s *MemoryStrip) Flushes() [][]core.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]core.Color, len(s.flushes))
	copy(out, s.flushes)
	return out
}

// MemoryIndicator records the built-in LED state.
type MemoryIndicator struct {
	mu sync.Mutex
	on bool
}

// NewMemoryIndicator creates an indicator that starts off.
func NewMemoryIndicator() *MemoryIndicator {
	return &MemoryIndicator{}
}

// Set implements Indicator.
func (m *MemoryIndicator) Set(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.on = on
}

// On returns the current LED state.
func (m *MemoryIndicator) On() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on
}
