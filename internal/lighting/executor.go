// Package lighting implements the lighting output context: the single
// consumer of the lighting queue and the only owner of the strip hardware.
package lighting

import (
	"context"
	"log"
	"math"
	"time"

	"golang.org/x/time/rate"

	"prop-controller/internal/core"
)

const (
	// pollInterval bounds how long a Receive blocks so shutdown is observed
	// even with an idle queue.
	pollInterval = 200 * time.Millisecond

	// pulseTick is the sampling period of the pulse envelope.
	pulseTick = 50 * time.Millisecond
)

// Executor drains the lighting queue in order and mutates the output state.
// One command runs to completion before the next dequeue; effects with
// internal delays (scanner, pulse) block the context, which owns no other
// duty while they run.
type Executor struct {
	strip     Strip
	indicator Indicator
	queue     *core.Queue[core.LightingCommand]
	limiter   *rate.Limiter
	state     *core.State
	bus       *core.EventBus

	summary core.LightingSummary
}

// NewExecutor creates the lighting context. flushRate/flushBurst throttle how
// often staged pixels are pushed to the hardware, mirroring the strip's wire
// bandwidth.
func NewExecutor(strip Strip, indicator Indicator, queue *core.Queue[core.LightingCommand], flushRate float64, flushBurst int, state *core.State, bus *core.EventBus) *Executor {
	return &Executor{
		strip:     strip,
		indicator: indicator,
		queue:     queue,
		limiter:   rate.NewLimiter(rate.Limit(flushRate), flushBurst),
		state:     state,
		bus:       bus,
	}
}

// Run is the context's main loop. It returns when ctx is cancelled.
func (e *Executor) Run(ctx context.Context) {
	log.Println("[Lighting] Output context started.")
	for {
		if ctx.Err() != nil {
			log.Println("[Lighting] Output context shutting down.")
			return
		}
		cmd, ok := e.queue.Receive(pollInterval)
		if !ok {
			continue
		}
		e.Apply(ctx, cmd)
	}
}

// Apply executes exactly one command variant atomically against the output
// state and flushes it to hardware.
func (e *Executor) Apply(ctx context.Context, cmd core.LightingCommand) {
	switch cmd.Kind {
	case core.LightingSetColor:
		e.strip.Fill(cmd.Color)
		e.flush(ctx)
		e.summary.Color = cmd.Color

	case core.LightingSetBrightness:
		e.strip.SetBrightness(cmd.Brightness)
		e.flush(ctx)
		e.summary.Brightness = cmd.Brightness

	case core.LightingSetIndividual:
		if cmd.Index < 0 || cmd.Index >= e.strip.Count() {
			log.Printf("[Lighting] Pixel index %d out of range (strip has %d), ignoring.", cmd.Index, e.strip.Count())
			return
		}
		e.strip.SetPixel(cmd.Index, cmd.Color)
		e.flush(ctx)

	case core.LightingScanner:
		e.runScanner(ctx, cmd.Color, cmd.StepDelay)
		e.summary.Color = cmd.Color

	case core.LightingPulse:
		e.runPulse(ctx, cmd.Color, cmd.Duration)
		e.summary.Color = cmd.Color

	case core.LightingSetBuiltin:
		e.indicator.Set(cmd.BuiltinOn)
		e.summary.BuiltinOn = cmd.BuiltinOn

	default:
		log.Printf("[Lighting] Unknown command kind: %v", cmd.Kind)
		return
	}

	e.summary.Mode = cmd.Kind.String()
	e.publish()
}

// runScanner sweeps a single lit pixel 0..N-1 and back to 1, so endpoints are
// visited once and interior pixels twice per invocation.
func (e *Executor) runScanner(ctx context.Context, c core.Color, step time.Duration) {
	for _, idx := range scannerOrder(e.strip.Count()) {
		e.strip.Clear()
		e.strip.SetPixel(idx, c)
		e.flush(ctx)
		if !sleepCtx(ctx, step) {
			return
		}
	}
}

// runPulse breathes the fixed color with the envelope (1-cos(2pi*t/d))/2
// sampled every pulseTick. Both ends of the cycle sit at the envelope
// minimum.
func (e *Executor) runPulse(ctx context.Context, c core.Color, d time.Duration) {
	steps := int(d / pulseTick)
	for i := 0; i <= steps; i++ {
		t := time.Duration(i) * pulseTick
		if t > d {
			t = d
		}
		e.strip.Fill(scaleColor(c, pulseLevel(t, d)))
		e.flush(ctx)
		if t >= d {
			break
		}
		if !sleepCtx(ctx, pulseTick) {
			return
		}
	}
	if time.Duration(steps)*pulseTick < d {
		e.strip.Fill(scaleColor(c, pulseLevel(d, d)))
		e.flush(ctx)
	}
}

func (e *Executor) flush(ctx context.Context) {
	if err := e.limiter.Wait(ctx); err != nil {
		return
	}
	if err := e.strip.Flush(); err != nil {
		log.Printf("[Lighting] Strip flush failed: %v", err)
	}
}

func (e *Executor) publish() {
	if e.state != nil {
		e.state.SetLighting(e.summary)
	}
	if e.bus != nil {
		e.bus.Publish(core.Event{Type: core.LightingChangedEvent, Payload: e.summary})
	}
}

// scannerOrder returns the pixel visit order of one scanner cycle: 0..n-1
// then n-2..1.
func scannerOrder(n int) []int {
	if n <= 0 {
		return nil
	}
	order := make([]int, 0, 2*n-2)
	for i := 0; i < n; i++ {
		order = append(order, i)
	}
	for i := n - 2; i >= 1; i-- {
		order = append(order, i)
	}
	return order
}

// pulseLevel is the pulse brightness envelope: 0 at t=0 and t=d, 1 at t=d/2.
func pulseLevel(t, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return (1 - math.Cos(2*math.Pi*float64(t)/float64(d))) / 2
}

func scaleColor(c core.Color, level float64) core.Color {
	return core.Color{
		R: uint8(math.Round(float64(c.R) * level)),
		G: uint8(math.Round(float64(c.G) * level)),
		B: uint8(math.Round(float64(c.B) * level)),
		W: uint8(math.Round(float64(c.W) * level)),
	}
}

// sleepCtx sleeps for d, waking early on cancellation. Returns false if the
// context was cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
