package playback

import (
	"errors"
	"log"
)

// bufferLadder is the descending set of frame buffer sizes tried once at
// startup. The first successful allocation becomes the permanent capacity for
// the life of the process.
var bufferLadder = []int{65536, 32768, 16384, 8192, 4096}

// ErrPlaybackDisabled - every ladder candidate failed at startup; the device
// keeps running but refuses all play requests.
var ErrPlaybackDisabled = errors.New("playback disabled: no frame buffer")

// AllocFunc attempts one allocation and returns nil on failure. The indirection
// exists because a fixed-memory target can refuse an allocation the Go
// runtime on a host never would.
type AllocFunc func(size int) []byte

// DefaultAlloc allocates from the heap.
func DefaultAlloc(size int) []byte {
	return make([]byte, size)
}

// FrameBuffer is the single fixed-capacity buffer every frame is read into.
type FrameBuffer struct {
	data []byte
}

// NewFrameBuffer walks the ladder and keeps the first successful allocation.
// Returns ErrPlaybackDisabled when even the emergency size fails.
func NewFrameBuffer(alloc AllocFunc) (*FrameBuffer, error) {
	for _, size := range bufferLadder {
		if data := alloc(size); data != nil {
			if size != bufferLadder[0] {
				log.Printf("[Playback] Frame buffer degraded to %d bytes.", size)
			}
			return &FrameBuffer{data: data}, nil
		}
	}
	return nil, ErrPlaybackDisabled
}

// Cap returns the fixed capacity in bytes.
func (b *FrameBuffer) Cap() int { return len(b.data) }

// Data returns the backing slice. Callers read at most Cap() bytes into it.
func (b *FrameBuffer) Data() []byte { return b.data }
