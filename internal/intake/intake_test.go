package intake

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prop-controller/internal/config"
	"prop-controller/internal/core"
	"prop-controller/internal/protocol"
	"prop-controller/internal/scheduler"
)

type fakePatterns struct {
	ran     []string
	stopped int
	runErr  error
	names   []string
}

func (p *fakePatterns) Run(name string) error {
	if p.runErr != nil {
		return p.runErr
	}
	p.ran = append(p.ran, name)
	return nil
}

func (p *fakePatterns) Stop() { p.stopped++ }

func (p *fakePatterns) List() ([]string, error) { return p.names, nil }

func newTestIntake(t *testing.T) (*Intake, *core.Queue[core.LightingCommand], *core.Queue[core.PlaybackCommand]) {
	t.Helper()
	lq := core.NewQueue[core.LightingCommand]("lighting-test", 10)
	pq := core.NewQueue[core.PlaybackCommand]("playback-test", 4)
	identity := config.Identity{Label: "hallway-prop", ID: 7, Port: 8888}
	sched := scheduler.New(lq, pq, filepath.Join(t.TempDir(), "schedules.json"))
	in := New(identity, lq, pq, &fakePatterns{names: []string{"strobe"}}, sched, core.NewState())
	return in, lq, pq
}

func packet(t *testing.T, action, id string, params map[string]interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(protocol.Request{
		Action:     protocol.Action(action),
		CommandID:  id,
		Parameters: params,
	})
	require.NoError(t, err)
	return data
}

func TestLightingCommandRoutedToQueue(t *testing.T) {
	in, lq, _ := newTestIntake(t)

	resp := in.HandlePacket(packet(t, "set_led_color", "cmd-1", map[string]interface{}{
		"r": 255.0, "g": 0.0, "b": 64.0,
	}), time.Now())

	require.NotNil(t, resp)
	assert.Equal(t, "cmd-1", resp.CommandID, "response carries the request correlation id")
	assert.Equal(t, protocol.StatusAccepted, resp.Status)
	assert.Equal(t, 7, resp.DeviceID)

	cmd, ok := lq.Receive(time.Second)
	require.True(t, ok)
	assert.Equal(t, core.LightingSetColor, cmd.Kind)
	assert.Equal(t, core.Color{R: 255, B: 64}, cmd.Color)
}

func TestFullQueueAnswersDegraded(t *testing.T) {
	in, lq, _ := newTestIntake(t)

	// Fill the queue; nothing is draining it.
	for i := 0; i < lq.Cap(); i++ {
		require.True(t, lq.TrySend(core.LightingCommand{Kind: core.LightingSetBrightness}))
	}

	resp := in.HandlePacket(packet(t, "set_led_brightness", "cmd-2", map[string]interface{}{
		"level": 80.0,
	}), time.Now())

	require.NotNil(t, resp)
	assert.Equal(t, protocol.StatusDegraded, resp.Status)
	assert.Equal(t, uint64(1), lq.Drops())
}

func TestBadParametersAnswerError(t *testing.T) {
	in, lq, _ := newTestIntake(t)

	resp := in.HandlePacket(packet(t, "set_led_color", "cmd-3", map[string]interface{}{
		"r": 300.0, "g": 0.0, "b": 0.0,
	}), time.Now())

	require.NotNil(t, resp)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.NotEmpty(t, resp.Error)
	assert.Zero(t, lq.Len(), "rejected command never reaches the queue")
}

func TestMalformedEnvelopeIsDroppedSilently(t *testing.T) {
	in, _, _ := newTestIntake(t)

	assert.Nil(t, in.HandlePacket([]byte("not json"), time.Now()))
	assert.Nil(t, in.HandlePacket([]byte(`{"commandId":"x"}`), time.Now()))
}

func TestUnknownActionAnswersError(t *testing.T) {
	in, _, _ := newTestIntake(t)

	resp := in.HandlePacket(packet(t, "self_destruct", "cmd-4", nil), time.Now())
	require.NotNil(t, resp)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, "cmd-4", resp.CommandID)
}

func TestStatusAnsweredFromCachedState(t *testing.T) {
	lq := core.NewQueue[core.LightingCommand]("lighting-test", 10)
	pq := core.NewQueue[core.PlaybackCommand]("playback-test", 4)
	state := core.NewState()
	state.SetStorageMounted(true)
	state.SetPlayback(core.PlaybackSummary{Name: "opening", Playing: true, FrameCount: 12})
	in := New(config.Identity{Label: "hallway-prop", ID: 7, Port: 8888}, lq, pq, nil, nil, state)

	resp := in.HandlePacket(packet(t, "status", "cmd-5", nil), time.Now())
	require.NotNil(t, resp)
	assert.Equal(t, protocol.StatusOK, resp.Status)

	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, result["storageMounted"])
	assert.Equal(t, "hallway-prop", result["label"])

	playback, ok := result["playback"].(core.PlaybackSummary)
	require.True(t, ok)
	assert.Equal(t, "opening", playback.Name)
}

func TestPingAndDiscovery(t *testing.T) {
	in, _, _ := newTestIntake(t)

	resp := in.HandlePacket(packet(t, "ping", "cmd-6", nil), time.Now())
	require.NotNil(t, resp)
	assert.Equal(t, protocol.StatusOK, resp.Status)

	resp = in.HandlePacket(packet(t, "discovery", "cmd-7", nil), time.Now())
	require.NotNil(t, resp)
	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "hallway-prop", result["label"])
	assert.Equal(t, 8888, result["port"])
}

func TestPlaybackNotFoundSurfacesInResponse(t *testing.T) {
	in, _, pq := newTestIntake(t)

	// Stand in for the playback context: resolve fails immediately.
	go func() {
		cmd, ok := pq.Receive(time.Second)
		if ok && cmd.Reply != nil {
			cmd.Reply <- errors.New("media 'ghost' not found")
		}
	}()

	resp := in.HandlePacket(packet(t, "play_video", "cmd-8", map[string]interface{}{
		"name": "ghost",
	}), time.Now())

	require.NotNil(t, resp)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Contains(t, resp.Error, "not found")
}

func TestPlaybackResolutionSuccessAnswersOK(t *testing.T) {
	in, _, pq := newTestIntake(t)

	go func() {
		cmd, ok := pq.Receive(time.Second)
		if ok && cmd.Reply != nil {
			cmd.Reply <- nil
		}
	}()

	resp := in.HandlePacket(packet(t, "play_video", "cmd-9", map[string]interface{}{
		"name": "opening",
	}), time.Now())

	require.NotNil(t, resp)
	assert.Equal(t, protocol.StatusOK, resp.Status)
}

func TestSlowResolutionFallsBackToAccepted(t *testing.T) {
	in, _, _ := newTestIntake(t)

	// Nothing drains the queue, so no reply ever arrives.
	start := time.Now()
	resp := in.HandlePacket(packet(t, "display_image", "cmd-10", map[string]interface{}{
		"name": "logo",
	}), time.Now())

	require.NotNil(t, resp)
	assert.Equal(t, protocol.StatusAccepted, resp.Status)
	assert.Less(t, time.Since(start), time.Second, "reply wait is bounded")
}

func TestPatternActions(t *testing.T) {
	lq := core.NewQueue[core.LightingCommand]("lighting-test", 10)
	pq := core.NewQueue[core.PlaybackCommand]("playback-test", 4)
	patterns := &fakePatterns{names: []string{"strobe", "fade"}}
	in := New(config.Identity{ID: 1, Port: 8888}, lq, pq, patterns, nil, core.NewState())

	resp := in.HandlePacket(packet(t, "run_pattern", "p-1", map[string]interface{}{"name": "strobe"}), time.Now())
	require.NotNil(t, resp)
	assert.Equal(t, protocol.StatusAccepted, resp.Status)
	assert.Equal(t, []string{"strobe"}, patterns.ran)

	resp = in.HandlePacket(packet(t, "list_patterns", "p-2", nil), time.Now())
	require.NotNil(t, resp)
	assert.Equal(t, []string{"strobe", "fade"}, resp.Result)

	resp = in.HandlePacket(packet(t, "stop_pattern", "p-3", nil), time.Now())
	require.NotNil(t, resp)
	assert.Equal(t, 1, patterns.stopped)
}

func TestScheduleActions(t *testing.T) {
	in, _, _ := newTestIntake(t)

	resp := in.HandlePacket(packet(t, "add_schedule", "s-1", map[string]interface{}{
		"spec":    "@every 1h",
		"command": "color 0 255 0",
	}), time.Now())
	require.NotNil(t, resp)
	require.Equal(t, protocol.StatusOK, resp.Status)
	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	id, ok := result["id"].(int)
	require.True(t, ok)

	resp = in.HandlePacket(packet(t, "list_schedules", "s-2", nil), time.Now())
	require.NotNil(t, resp)
	all, ok := resp.Result.(map[int]scheduler.Entry)
	require.True(t, ok)
	assert.Len(t, all, 1)

	resp = in.HandlePacket(packet(t, "remove_schedule", "s-3", map[string]interface{}{
		"id": float64(id),
	}), time.Now())
	require.NotNil(t, resp)
	assert.Equal(t, protocol.StatusOK, resp.Status)
}

func TestDisabledSurfacesAnswerError(t *testing.T) {
	lq := core.NewQueue[core.LightingCommand]("lighting-test", 10)
	pq := core.NewQueue[core.PlaybackCommand]("playback-test", 4)
	in := New(config.Identity{ID: 1, Port: 8888}, lq, pq, nil, nil, core.NewState())

	for _, action := range []string{"run_pattern", "stop_pattern", "list_patterns", "add_schedule", "remove_schedule", "list_schedules"} {
		resp := in.HandlePacket(packet(t, action, "d-1", map[string]interface{}{"name": "x"}), time.Now())
		require.NotNil(t, resp)
		assert.Equal(t, protocol.StatusError, resp.Status, "action %s", action)
	}
}
