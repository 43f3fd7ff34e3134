// Package protocol defines the JSON datagram envelope spoken on the command
// port. Envelopes are decoded once at the boundary into typed commands; the
// rest of the system never sees raw parameter maps.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"prop-controller/internal/core"
)

// Action is the wire-level command name.
type Action string

const (
	ActionSetLedColor      Action = "set_led_color"
	ActionSetLedBrightness Action = "set_led_brightness"
	ActionSetIndividualLed Action = "set_individual_led"
	ActionScannerEffect    Action = "scanner_effect"
	ActionPulseEffect      Action = "pulse_effect"
	ActionSetBuiltinLed    Action = "set_builtin_led"

	ActionPlayVideo    Action = "play_video"
	ActionDisplayImage Action = "display_image"
	ActionStopVideo    Action = "stop_video"

	ActionStatus    Action = "status"
	ActionPing      Action = "ping"
	ActionDiscovery Action = "discovery"

	ActionRunPattern     Action = "run_pattern"
	ActionStopPattern    Action = "stop_pattern"
	ActionListPatterns   Action = "list_patterns"
	ActionAddSchedule    Action = "add_schedule"
	ActionRemoveSchedule Action = "remove_schedule"
	ActionListSchedules  Action = "list_schedules"
)

// Response statuses.
const (
	StatusOK       = "ok"
	StatusAccepted = "accepted"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// Request is one inbound command envelope.
type Request struct {
	Action     Action                 `json:"action"`
	CommandID  string                 `json:"commandId"`
	Parameters map[string]interface{} `json:"parameters"`
}

// Response is the reply correlated to one request.
type Response struct {
	CommandID string      `json:"commandId"`
	Status    string      `json:"status"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
	DeviceID  int         `json:"deviceId"`
}

// DecodeRequest parses a raw datagram. A failure here means the envelope is
// untrusted (no usable correlation id), so the caller drops it silently.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("malformed envelope: %w", err)
	}
	if req.Action == "" {
		return Request{}, fmt.Errorf("malformed envelope: missing action")
	}
	return req, nil
}

// NewResponse builds a correlated response envelope.
func NewResponse(req Request, deviceID int, status string, now time.Time) Response {
	return Response{
		CommandID: req.CommandID,
		Status:    status,
		Timestamp: now.UTC().Format(time.RFC3339),
		DeviceID:  deviceID,
	}
}

// IsLighting reports whether the action routes to the lighting queue.
func (a Action) IsLighting() bool {
	switch a {
	case ActionSetLedColor, ActionSetLedBrightness, ActionSetIndividualLed,
		ActionScannerEffect, ActionPulseEffect, ActionSetBuiltinLed:
		return true
	}
	return false
}

// IsPlayback reports whether the action routes to the playback queue.
func (a Action) IsPlayback() bool {
	switch a {
	case ActionPlayVideo, ActionDisplayImage, ActionStopVideo:
		return true
	}
	return false
}

// DecodeLighting translates a lighting request into its tagged command
// variant. Out-of-range channel values are an error, not a clamp; the sender
// is expected to speak the protocol exactly.
func DecodeLighting(req Request) (core.LightingCommand, error) {
	switch req.Action {
	case ActionSetLedColor:
		c, err := colorParam(req.Parameters)
		if err != nil {
			return core.LightingCommand{}, err
		}
		return core.LightingCommand{Kind: core.LightingSetColor, Color: c}, nil

	case ActionSetLedBrightness:
		level, err := intParam(req.Parameters, "level", 0, 100)
		if err != nil {
			return core.LightingCommand{}, err
		}
		return core.LightingCommand{Kind: core.LightingSetBrightness, Brightness: level}, nil

	case ActionSetIndividualLed:
		idx, err := intParam(req.Parameters, "index", 0, 4095)
		if err != nil {
			return core.LightingCommand{}, err
		}
		c, err := colorParam(req.Parameters)
		if err != nil {
			return core.LightingCommand{}, err
		}
		return core.LightingCommand{Kind: core.LightingSetIndividual, Index: idx, Color: c}, nil

	case ActionScannerEffect:
		c, err := colorParam(req.Parameters)
		if err != nil {
			return core.LightingCommand{}, err
		}
		delayMs, err := intParam(req.Parameters, "stepDelay", 0, 60000)
		if err != nil {
			return core.LightingCommand{}, err
		}
		return core.LightingCommand{
			Kind:      core.LightingScanner,
			Color:     c,
			StepDelay: time.Duration(delayMs) * time.Millisecond,
		}, nil

	case ActionPulseEffect:
		c, err := colorParam(req.Parameters)
		if err != nil {
			return core.LightingCommand{}, err
		}
		durMs, err := intParam(req.Parameters, "duration", 1, 600000)
		if err != nil {
			return core.LightingCommand{}, err
		}
		return core.LightingCommand{
			Kind:     core.LightingPulse,
			Color:    c,
			Duration: time.Duration(durMs) * time.Millisecond,
		}, nil

	case ActionSetBuiltinLed:
		on, err := boolParam(req.Parameters, "on")
		if err != nil {
			return core.LightingCommand{}, err
		}
		return core.LightingCommand{Kind: core.LightingSetBuiltin, BuiltinOn: on}, nil
	}
	return core.LightingCommand{}, fmt.Errorf("not a lighting action: %s", req.Action)
}

// DecodePlayback translates a playback request. The Reply channel is left nil;
// the intake context attaches one when it wants the resolution outcome.
func DecodePlayback(req Request) (core.PlaybackCommand, error) {
	switch req.Action {
	case ActionPlayVideo:
		name, err := stringParam(req.Parameters, "name")
		if err != nil {
			return core.PlaybackCommand{}, err
		}
		loop := true
		if _, present := req.Parameters["loop"]; present {
			loop, err = boolParam(req.Parameters, "loop")
			if err != nil {
				return core.PlaybackCommand{}, err
			}
		}
		return core.PlaybackCommand{Kind: core.PlaybackPlay, Name: name, Loop: loop}, nil

	case ActionDisplayImage:
		name, err := stringParam(req.Parameters, "name")
		if err != nil {
			return core.PlaybackCommand{}, err
		}
		return core.PlaybackCommand{Kind: core.PlaybackShowImage, Name: name}, nil

	case ActionStopVideo:
		return core.PlaybackCommand{Kind: core.PlaybackStop}, nil
	}
	return core.PlaybackCommand{}, fmt.Errorf("not a playback action: %s", req.Action)
}

func colorParam(params map[string]interface{}) (core.Color, error) {
	r, err := intParam(params, "r", 0, 255)
	if err != nil {
		return core.Color{}, err
	}
	g, err := intParam(params, "g", 0, 255)
	if err != nil {
		return core.Color{}, err
	}
	b, err := intParam(params, "b", 0, 255)
	if err != nil {
		return core.Color{}, err
	}
	w := 0
	if _, present := params["w"]; present {
		w, err = intParam(params, "w", 0, 255)
		if err != nil {
			return core.Color{}, err
		}
	}
	return core.Color{R: uint8(r), G: uint8(g), B: uint8(b), W: uint8(w)}, nil
}

func intParam(params map[string]interface{}, key string, min, max int) (int, error) {
	raw, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing parameter '%s'", key)
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("parameter '%s' must be a number", key)
	}
	v := int(f)
	if v < min || v > max {
		return 0, fmt.Errorf("parameter '%s' out of range [%d..%d]: %d", key, min, max, v)
	}
	return v, nil
}

func boolParam(params map[string]interface{}, key string) (bool, error) {
	raw, ok := params[key]
	if !ok {
		return false, fmt.Errorf("missing parameter '%s'", key)
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("parameter '%s' must be a boolean", key)
	}
	return b, nil
}

func stringParam(params map[string]interface{}, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing parameter '%s'", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter '%s' must be a non-empty string", key)
	}
	return s, nil
}
