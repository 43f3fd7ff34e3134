package pattern

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prop-controller/internal/core"
)

func writePattern(t *testing.T, dir, name, code string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(code), 0644))
}

func newTestEngine(t *testing.T) (*Engine, *core.Queue[core.LightingCommand], string) {
	t.Helper()
	dir := t.TempDir()
	q := core.NewQueue[core.LightingCommand]("lighting-test", 64)
	e := NewEngine(q, 16, dir, core.NewState(), nil)
	t.Cleanup(e.Close)
	return e, q, dir
}

func TestRunPushesCommandsIntoQueue(t *testing.T) {
	e, q, dir := newTestEngine(t)
	writePattern(t, dir, "redflash.lua", `
set_color(255, 0, 0)
set_brightness(80)
set_individual(3, 0, 0, 255)
`)

	require.NoError(t, e.Run("redflash"))

	cmd, ok := q.Receive(2 * time.Second)
	require.True(t, ok)
	assert.Equal(t, core.LightingSetColor, cmd.Kind)
	assert.Equal(t, core.Color{R: 255}, cmd.Color)

	cmd, ok = q.Receive(2 * time.Second)
	require.True(t, ok)
	assert.Equal(t, core.LightingSetBrightness, cmd.Kind)
	assert.Equal(t, 80, cmd.Brightness)

	cmd, ok = q.Receive(2 * time.Second)
	require.True(t, ok)
	assert.Equal(t, core.LightingSetIndividual, cmd.Kind)
	assert.Equal(t, 3, cmd.Index)
	assert.Equal(t, core.Color{B: 255}, cmd.Color)
}

func TestPixelCountExposedToScripts(t *testing.T) {
	e, q, dir := newTestEngine(t)
	writePattern(t, dir, "count.lua", `set_brightness(pixel_count())`)

	require.NoError(t, e.Run("count"))

	cmd, ok := q.Receive(2 * time.Second)
	require.True(t, ok)
	assert.Equal(t, 16, cmd.Brightness)
}

func TestStopCancelsRunningPattern(t *testing.T) {
	e, q, dir := newTestEngine(t)
	writePattern(t, dir, "forever.lua", `
while not should_stop() do
  set_color(0, 255, 0)
  sleep(10)
end
`)

	require.NoError(t, e.Run("forever"))
	_, ok := q.Receive(2 * time.Second)
	require.True(t, ok, "pattern is producing commands")

	e.Stop()

	// Drain until production stops.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := q.Receive(300 * time.Millisecond); !ok {
			return
		}
	}
	t.Fatal("pattern kept producing after Stop")
}

func TestNewPatternReplacesRunningOne(t *testing.T) {
	e, q, dir := newTestEngine(t)
	writePattern(t, dir, "forever.lua", `
while not should_stop() do
  set_color(0, 255, 0)
  sleep(10)
end
`)
	writePattern(t, dir, "blue.lua", `set_color(0, 0, 255)`)

	require.NoError(t, e.Run("forever"))
	_, ok := q.Receive(2 * time.Second)
	require.True(t, ok)

	require.NoError(t, e.Run("blue"))

	// Eventually a blue command arrives and green production ceases.
	deadline := time.Now().Add(5 * time.Second)
	sawBlue := false
	for time.Now().Before(deadline) {
		cmd, ok := q.Receive(300 * time.Millisecond)
		if !ok {
			break
		}
		if cmd.Color.B == 255 {
			sawBlue = true
		}
	}
	assert.True(t, sawBlue)
}

func TestRunRejectsUnknownAndTraversal(t *testing.T) {
	e, _, _ := newTestEngine(t)

	assert.Error(t, e.Run("ghost"))
	assert.Error(t, e.Run("../../etc/passwd"))
}

func TestListReturnsNamesWithoutExtension(t *testing.T) {
	e, _, dir := newTestEngine(t)
	writePattern(t, dir, "strobe.lua", `-- noop`)
	writePattern(t, dir, "fade.lua", `-- noop`)
	writePattern(t, dir, "notes.txt", `ignored`)

	list, err := e.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"strobe", "fade"}, list)
}

func TestListMissingDirIsEmpty(t *testing.T) {
	q := core.NewQueue[core.LightingCommand]("lighting-test", 8)
	e := NewEngine(q, 16, filepath.Join(t.TempDir(), "nope"), core.NewState(), nil)
	defer e.Close()

	list, err := e.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}
