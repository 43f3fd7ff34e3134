// Package display is the boundary to the framed-image panel. The panel is
// assumed synchronous and never acknowledges; playback pushes decoded blocks
// and moves on.
package display

import "sync"

// Sink accepts one decoded pixel block at a byte offset into the panel's
// frame memory.
type Sink interface {
	Draw(block []byte, offset int) error
}

// Loopback is a Sink that records what it was handed. It stands in for the
// panel in tests and on hosts without the hardware attached.
type Loopback struct {
	mu     sync.Mutex
	frames int
	last   []byte
}

// NewLoopback creates an empty loopback sink.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Draw implements Sink.
func (l *Loopback) Draw(block []byte, offset int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames++
	l.last = append(l.last[:0], block...)
	return nil
}

// Frames returns the number of blocks drawn so far.
func (l *Loopback) Frames() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames
}

// Last returns a copy of the most recently drawn block.
func (l *Loopback) Last() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]byte, len(l.last))
	copy(out, l.last)
	return out
}
