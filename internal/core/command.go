package core

import "time"

// Color is a single RGB(W) value. W is only meaningful on strips that carry a
// dedicated white channel; executors ignore it otherwise.
type Color struct {
	R, G, B, W uint8
}

// LightingKind tags the variant carried by a LightingCommand.
type LightingKind int

const (
	LightingSetColor LightingKind = iota
	LightingSetBrightness
	LightingSetIndividual
	LightingScanner
	LightingPulse
	LightingSetBuiltin
)

// String returns the variant name used in logs and summaries.
func (k LightingKind) String() string {
	switch k {
	case LightingSetColor:
		return "set_color"
	case LightingSetBrightness:
		return "set_brightness"
	case LightingSetIndividual:
		return "set_individual"
	case LightingScanner:
		return "scanner"
	case LightingPulse:
		return "pulse"
	case LightingSetBuiltin:
		return "set_builtin"
	}
	return "unknown"
}

// LightingCommand is the decoded form of one lighting action. Exactly one
// variant is populated, selected by Kind; there are no partial updates.
type LightingCommand struct {
	Kind LightingKind

	// LightingSetColor, LightingSetIndividual, LightingScanner, LightingPulse
	Color Color

	// LightingSetBrightness, 0..100
	Brightness int

	// LightingSetIndividual
	Index int

	// LightingScanner
	StepDelay time.Duration

	// LightingPulse
	Duration time.Duration

	// LightingSetBuiltin
	BuiltinOn bool
}

// PlaybackKind tags the variant carried by a PlaybackCommand.
type PlaybackKind int

const (
	PlaybackPlay PlaybackKind = iota
	PlaybackShowImage
	PlaybackStop
)

func (k PlaybackKind) String() string {
	switch k {
	case PlaybackPlay:
		return "play"
	case PlaybackShowImage:
		return "show_image"
	case PlaybackStop:
		return "stop"
	}
	return "unknown"
}

// PlaybackCommand is one request for the playback context. Play and ShowImage
// carry the symbolic media name to resolve; Stop carries nothing.
//
// Reply, when non-nil, receives the outcome of name resolution exactly once
// (nil on success). The playback context sends without blocking, so the
// channel must be buffered; the intake context waits on it with a short
// timeout so a slow resolution never stalls the socket loop.
type PlaybackCommand struct {
	Kind  PlaybackKind
	Name  string
	Loop  bool
	Reply chan error
}
