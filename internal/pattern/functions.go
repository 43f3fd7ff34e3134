package pattern

import (
	"context"
	"log"
	"math"
	"time"

	lua "github.com/yuin/gopher-lua"

	"prop-controller/internal/core"
)

// runner binds one script execution to its cancel context. All queue sends
// are non-blocking; a full queue drops the frame of the effect rather than
// stalling the script.
type runner struct {
	engine *Engine
	ctx    context.Context
}

// register exposes the scripting surface to the Lua state.
func (r *runner) register(L *lua.LState) {
	L.SetGlobal("set_color", L.NewFunction(r.luaSetColor))
	L.SetGlobal("set_individual", L.NewFunction(r.luaSetIndividual))
	L.SetGlobal("set_brightness", L.NewFunction(r.luaSetBrightness))
	L.SetGlobal("set_builtin", L.NewFunction(r.luaSetBuiltin))
	L.SetGlobal("pixel_count", L.NewFunction(r.luaPixelCount))
	L.SetGlobal("sleep", L.NewFunction(r.luaSleep))
	L.SetGlobal("should_stop", L.NewFunction(r.luaShouldStop))
	L.SetGlobal("strobe", L.NewFunction(r.luaStrobe))
	L.SetGlobal("fade", L.NewFunction(r.luaFade))
	L.SetGlobal("print", L.NewFunction(luaPrint))
}

func (r *runner) send(cmd core.LightingCommand) {
	if !r.engine.lightingQ.TrySend(cmd) {
		log.Printf("[Pattern] Lighting queue full, dropped %s.", cmd.Kind)
	}
}

// cancellableSleep sleeps for d but wakes immediately on cancellation.
// It returns true if the context was cancelled.
func (r *runner) cancellableSleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return false
	case <-r.ctx.Done():
		return true
	}
}

func luaPrint(L *lua.LState) int {
	log.Printf("[Pattern] %s", L.ToString(1))
	return 0
}

func (r *runner) luaSetColor(L *lua.LState) int {
	r.send(core.LightingCommand{
		Kind:  core.LightingSetColor,
		Color: clampColor(L.ToInt(1), L.ToInt(2), L.ToInt(3)),
	})
	return 0
}

func (r *runner) luaSetIndividual(L *lua.LState) int {
	r.send(core.LightingCommand{
		Kind:  core.LightingSetIndividual,
		Index: L.ToInt(1),
		Color: clampColor(L.ToInt(2), L.ToInt(3), L.ToInt(4)),
	})
	return 0
}

func (r *runner) luaSetBrightness(L *lua.LState) int {
	level := L.ToInt(1)
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	r.send(core.LightingCommand{Kind: core.LightingSetBrightness, Brightness: level})
	return 0
}

func (r *runner) luaSetBuiltin(L *lua.LState) int {
	r.send(core.LightingCommand{Kind: core.LightingSetBuiltin, BuiltinOn: L.ToBool(1)})
	return 0
}

func (r *runner) luaPixelCount(L *lua.LState) int {
	L.Push(lua.LNumber(r.engine.pixelCount))
	return 1
}

func (r *runner) luaSleep(L *lua.LState) int {
	r.cancellableSleep(time.Duration(L.ToInt(1)) * time.Millisecond)
	return 0
}

func (r *runner) luaShouldStop(L *lua.LState) int {
	select {
	case <-r.ctx.Done():
		L.Push(lua.LBool(true))
	default:
		L.Push(lua.LBool(false))
	}
	return 1
}

// luaStrobe flashes a color for a total duration at a given frequency in Hz.
func (r *runner) luaStrobe(L *lua.LState) int {
	color := clampColor(L.ToInt(1), L.ToInt(2), L.ToInt(3))
	duration := time.Duration(L.ToInt(4)) * time.Millisecond
	hz := float64(L.ToNumber(5))
	if hz <= 0 {
		return 0
	}

	halfPeriod := time.Duration(1000/hz/2) * time.Millisecond
	start := time.Now()
	for time.Since(start) < duration {
		r.send(core.LightingCommand{Kind: core.LightingSetColor, Color: color})
		if r.cancellableSleep(halfPeriod) {
			return 0
		}
		r.send(core.LightingCommand{Kind: core.LightingSetColor})
		if r.cancellableSleep(halfPeriod) {
			return 0
		}
	}
	return 0
}

// luaFade transitions from one color to another over a duration.
func (r *runner) luaFade(L *lua.LState) int {
	r1, g1, b1 := L.ToInt(1), L.ToInt(2), L.ToInt(3)
	r2, g2, b2 := L.ToInt(4), L.ToInt(5), L.ToInt(6)
	duration := time.Duration(L.ToInt(7)) * time.Millisecond

	steps := 100
	stepDuration := duration / time.Duration(steps)
	for i := 0; i <= steps; i++ {
		progress := float64(i) / float64(steps)
		r.send(core.LightingCommand{
			Kind: core.LightingSetColor,
			Color: clampColor(
				lerp(r1, r2, progress),
				lerp(g1, g2, progress),
				lerp(b1, b2, progress),
			),
		})
		if r.cancellableSleep(stepDuration) {
			return 0
		}
	}
	r.send(core.LightingCommand{Kind: core.LightingSetColor, Color: clampColor(r2, g2, b2)})
	return 0
}

func lerp(a, b int, progress float64) int {
	return int(math.Round(float64(a) + progress*float64(b-a)))
}

func clampColor(r, g, b int) core.Color {
	return core.Color{R: clamp8(r), G: clamp8(g), B: clamp8(b)}
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
