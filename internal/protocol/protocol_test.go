package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prop-controller/internal/core"
)

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"action":"set_led_color","commandId":"abc-1","parameters":{"r":255,"g":0,"b":0}}`))
	require.NoError(t, err)
	assert.Equal(t, ActionSetLedColor, req.Action)
	assert.Equal(t, "abc-1", req.CommandID)
}

func TestDecodeRequestMalformed(t *testing.T) {
	cases := []string{
		`not json at all`,
		`{"commandId":"x"}`,
		``,
	}
	for _, raw := range cases {
		_, err := DecodeRequest([]byte(raw))
		assert.Error(t, err, "input %q", raw)
	}
}

func TestResponseCarriesCommandID(t *testing.T) {
	req := Request{Action: ActionPing, CommandID: "corr-42"}
	resp := NewResponse(req, 7, StatusOK, time.Now())
	assert.Equal(t, "corr-42", resp.CommandID)
	assert.Equal(t, 7, resp.DeviceID)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestDecodeLightingVariants(t *testing.T) {
	tests := []struct {
		name   string
		req    Request
		expect core.LightingCommand
	}{
		{
			name: "set color",
			req: Request{Action: ActionSetLedColor, Parameters: map[string]interface{}{
				"r": float64(255), "g": float64(0), "b": float64(0),
			}},
			expect: core.LightingCommand{Kind: core.LightingSetColor, Color: core.Color{R: 255}},
		},
		{
			name: "set color with white channel",
			req: Request{Action: ActionSetLedColor, Parameters: map[string]interface{}{
				"r": float64(10), "g": float64(20), "b": float64(30), "w": float64(40),
			}},
			expect: core.LightingCommand{Kind: core.LightingSetColor, Color: core.Color{R: 10, G: 20, B: 30, W: 40}},
		},
		{
			name: "brightness",
			req: Request{Action: ActionSetLedBrightness, Parameters: map[string]interface{}{
				"level": float64(75),
			}},
			expect: core.LightingCommand{Kind: core.LightingSetBrightness, Brightness: 75},
		},
		{
			name: "individual led",
			req: Request{Action: ActionSetIndividualLed, Parameters: map[string]interface{}{
				"index": float64(3), "r": float64(0), "g": float64(255), "b": float64(0),
			}},
			expect: core.LightingCommand{Kind: core.LightingSetIndividual, Index: 3, Color: core.Color{G: 255}},
		},
		{
			name: "scanner",
			req: Request{Action: ActionScannerEffect, Parameters: map[string]interface{}{
				"r": float64(0), "g": float64(0), "b": float64(255), "stepDelay": float64(50),
			}},
			expect: core.LightingCommand{Kind: core.LightingScanner, Color: core.Color{B: 255}, StepDelay: 50 * time.Millisecond},
		},
		{
			name: "pulse",
			req: Request{Action: ActionPulseEffect, Parameters: map[string]interface{}{
				"r": float64(255), "g": float64(255), "b": float64(0), "duration": float64(2000),
			}},
			expect: core.LightingCommand{Kind: core.LightingPulse, Color: core.Color{R: 255, G: 255}, Duration: 2 * time.Second},
		},
		{
			name: "builtin led",
			req: Request{Action: ActionSetBuiltinLed, Parameters: map[string]interface{}{
				"on": true,
			}},
			expect: core.LightingCommand{Kind: core.LightingSetBuiltin, BuiltinOn: true},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := DecodeLighting(tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, cmd)
		})
	}
}

func TestDecodeLightingRejectsBadParams(t *testing.T) {
	tests := []Request{
		{Action: ActionSetLedColor, Parameters: map[string]interface{}{"r": float64(300), "g": float64(0), "b": float64(0)}},
		{Action: ActionSetLedColor, Parameters: map[string]interface{}{"g": float64(0), "b": float64(0)}},
		{Action: ActionSetLedBrightness, Parameters: map[string]interface{}{"level": "high"}},
		{Action: ActionSetIndividualLed, Parameters: map[string]interface{}{"index": float64(-1), "r": float64(0), "g": float64(0), "b": float64(0)}},
		{Action: ActionPulseEffect, Parameters: map[string]interface{}{"r": float64(0), "g": float64(0), "b": float64(0), "duration": float64(0)}},
		{Action: ActionSetBuiltinLed, Parameters: map[string]interface{}{"on": "yes"}},
	}
	for _, req := range tests {
		_, err := DecodeLighting(req)
		assert.Error(t, err, "action %s params %v", req.Action, req.Parameters)
	}
}

func TestDecodePlayback(t *testing.T) {
	cmd, err := DecodePlayback(Request{Action: ActionPlayVideo, Parameters: map[string]interface{}{"name": "intro"}})
	require.NoError(t, err)
	assert.Equal(t, core.PlaybackPlay, cmd.Kind)
	assert.Equal(t, "intro", cmd.Name)
	assert.True(t, cmd.Loop, "loop defaults to true for play_video")

	cmd, err = DecodePlayback(Request{Action: ActionPlayVideo, Parameters: map[string]interface{}{"name": "intro", "loop": false}})
	require.NoError(t, err)
	assert.False(t, cmd.Loop)

	cmd, err = DecodePlayback(Request{Action: ActionDisplayImage, Parameters: map[string]interface{}{"name": "logo"}})
	require.NoError(t, err)
	assert.Equal(t, core.PlaybackShowImage, cmd.Kind)

	cmd, err = DecodePlayback(Request{Action: ActionStopVideo})
	require.NoError(t, err)
	assert.Equal(t, core.PlaybackStop, cmd.Kind)

	_, err = DecodePlayback(Request{Action: ActionPlayVideo, Parameters: map[string]interface{}{}})
	assert.Error(t, err)
}

func TestActionRouting(t *testing.T) {
	assert.True(t, ActionSetLedColor.IsLighting())
	assert.True(t, ActionSetBuiltinLed.IsLighting())
	assert.False(t, ActionPlayVideo.IsLighting())
	assert.True(t, ActionPlayVideo.IsPlayback())
	assert.True(t, ActionStopVideo.IsPlayback())
	assert.False(t, ActionStatus.IsPlayback())
}
