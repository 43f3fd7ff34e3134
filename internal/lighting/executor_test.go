package lighting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prop-controller/internal/core"
)

func newTestExecutor(t *testing.T, pixels int) (*Executor, *MemoryStrip, *MemoryIndicator, *core.Queue[core.LightingCommand]) {
	t.Helper()
	strip := NewMemoryStrip(pixels)
	ind := NewMemoryIndicator()
	q := core.NewQueue[core.LightingCommand]("lighting-test", 10)
	exec := NewExecutor(strip, ind, q, 1e9, 1000, core.NewState(), nil)
	return exec, strip, ind, q
}

func TestApplySetColor(t *testing.T) {
	exec, strip, _, _ := newTestExecutor(t, 8)

	exec.Apply(context.Background(), core.LightingCommand{
		Kind:  core.LightingSetColor,
		Color: core.Color{R: 255},
	})

	for _, px := range strip.Pixels() {
		assert.Equal(t, core.Color{R: 255}, px)
	}
	require.Len(t, strip.Flushes(), 1)
}

func TestApplySetIndividual(t *testing.T) {
	exec, strip, _, _ := newTestExecutor(t, 8)

	exec.Apply(context.Background(), core.LightingCommand{
		Kind:  core.LightingSetIndividual,
		Index: 3,
		Color: core.Color{G: 255},
	})

	px := strip.Pixels()
	assert.Equal(t, core.Color{G: 255}, px[3])
	assert.Equal(t, core.Color{}, px[0])

	// Out of range index is ignored without flushing
	before := len(strip.Flushes())
	exec.Apply(context.Background(), core.LightingCommand{
		Kind:  core.LightingSetIndividual,
		Index: 99,
		Color: core.Color{B: 255},
	})
	assert.Len(t, strip.Flushes(), before)
}

func TestApplyBrightnessAndBuiltin(t *testing.T) {
	exec, strip, ind, _ := newTestExecutor(t, 4)

	exec.Apply(context.Background(), core.LightingCommand{Kind: core.LightingSetBrightness, Brightness: 40})
	assert.Equal(t, 40, strip.Brightness())

	exec.Apply(context.Background(), core.LightingCommand{Kind: core.LightingSetBuiltin, BuiltinOn: true})
	assert.True(t, ind.On())
}

func TestScannerOrder(t *testing.T) {
	order := scannerOrder(5)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 3, 2, 1}, order)

	assert.Equal(t, []int{0}, scannerOrder(1))
	assert.Equal(t, []int{0, 1}, scannerOrder(2))
	assert.Nil(t, scannerOrder(0))
}

func TestScannerVisitCounts(t *testing.T) {
	const n = 6
	exec, strip, _, _ := newTestExecutor(t, n)

	exec.Apply(context.Background(), core.LightingCommand{
		Kind:  core.LightingScanner,
		Color: core.Color{B: 255},
	})

	visits := make([]int, n)
	for _, snap := range strip.Flushes() {
		lit := -1
		for i, px := range snap {
			if px != (core.Color{}) {
				require.Equal(t, -1, lit, "more than one pixel lit in a scanner step")
				lit = i
			}
		}
		require.NotEqual(t, -1, lit, "scanner step with no lit pixel")
		visits[lit]++
	}

	assert.Equal(t, 1, visits[0], "first endpoint visited once")
	assert.Equal(t, 1, visits[n-1], "last endpoint visited once")
	for i := 1; i < n-1; i++ {
		assert.Equal(t, 2, visits[i], "interior pixel %d visited twice", i)
	}
}

func TestPulseLevelEnvelope(t *testing.T) {
	d := 2 * time.Second
	assert.InDelta(t, 0.0, pulseLevel(0, d), 1e-9, "start of cycle is the minimum")
	assert.InDelta(t, 0.0, pulseLevel(d, d), 1e-9, "end of cycle is the minimum")
	assert.InDelta(t, 1.0, pulseLevel(d/2, d), 1e-9, "midpoint is the maximum")
	assert.InDelta(t, 0.5, pulseLevel(d/4, d), 1e-9)
}

func TestPulseStartsAndEndsDark(t *testing.T) {
	exec, strip, _, _ := newTestExecutor(t, 4)

	exec.Apply(context.Background(), core.LightingCommand{
		Kind:     core.LightingPulse,
		Color:    core.Color{R: 200},
		Duration: 150 * time.Millisecond,
	})

	flushes := strip.Flushes()
	require.GreaterOrEqual(t, len(flushes), 2)
	assert.Equal(t, core.Color{}, flushes[0][0], "first pulse sample is dark")
	assert.Equal(t, core.Color{}, flushes[len(flushes)-1][0], "last pulse sample is dark")

	peak := uint8(0)
	for _, snap := range flushes {
		if snap[0].R > peak {
			peak = snap[0].R
		}
	}
	assert.Greater(t, peak, uint8(100), "pulse reaches a bright sample mid-cycle")
}

func TestRunDrainsQueueInOrder(t *testing.T) {
	exec, strip, _, q := newTestExecutor(t, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go exec.Run(ctx)

	colors := []core.Color{{R: 1}, {R: 2}, {R: 3}}
	for _, c := range colors {
		require.True(t, q.TrySend(core.LightingCommand{Kind: core.LightingSetColor, Color: c}))
	}

	require.Eventually(t, func() bool {
		return len(strip.Flushes()) == len(colors)
	}, 2*time.Second, 10*time.Millisecond)

	for i, snap := range strip.Flushes() {
		assert.Equal(t, colors[i], snap[0], "flush %d out of order", i)
	}
}
