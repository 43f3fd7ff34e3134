// Package agent wires the execution contexts together and runs the main
// cooperative loop. The queues built here are the only channels between
// contexts; the agent itself never touches the strip or the media store.
package agent

import (
	"context"
	"log"
	"sync"
	"time"

	"prop-controller/internal/config"
	"prop-controller/internal/core"
	"prop-controller/internal/display"
	"prop-controller/internal/intake"
	"prop-controller/internal/lighting"
	"prop-controller/internal/monitor"
	"prop-controller/internal/mqtt"
	"prop-controller/internal/pattern"
	"prop-controller/internal/playback"
	"prop-controller/internal/scheduler"
	"prop-controller/internal/server"
	"prop-controller/internal/storage"
)

// loopTick is the cadence of the cooperative pass (monitor sampling,
// storage availability refresh).
const loopTick = 20 * time.Millisecond

// storageEvery is how many loop passes between storage availability checks.
const storageEvery = 50

// Options carries the hardware bindings. Zero values fall back to in-memory
// implementations so the agent runs headless on a development host.
type Options struct {
	Strip     lighting.Strip
	Indicator lighting.Indicator
	Sink      display.Sink
	Pins      []monitor.TriggerPin
	Restarter monitor.Restarter
}

type Agent struct {
	ctx    context.Context
	cancel context.CancelFunc
	store  *config.Store
	wg     sync.WaitGroup

	state *core.State
	bus   *core.EventBus

	lightingQ *core.Queue[core.LightingCommand]
	playbackQ *core.Queue[core.PlaybackCommand]

	media      storage.Store
	executor   *lighting.Executor
	player     *playback.Player
	patterns   *pattern.Engine
	scheduler  *scheduler.Scheduler
	intake     *intake.Intake
	heartbeat  *intake.Heartbeat
	server     *server.Server
	mqttClient *mqtt.Client
	monitor    *monitor.ResetMonitor
}

// NewAgent builds every context from the loaded configuration.
func NewAgent(store *config.Store, opts Options) *Agent {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := store.Config()

	a := &Agent{
		ctx:    ctx,
		cancel: cancel,
		store:  store,
		state:  core.NewState(),
		bus:    core.NewEventBus(),
	}

	a.lightingQ = core.NewQueue[core.LightingCommand]("lighting", cfg.Lighting.QueueSize)
	a.playbackQ = core.NewQueue[core.PlaybackCommand]("playback", cfg.Playback.QueueSize)

	strip := opts.Strip
	if strip == nil {
		strip = lighting.NewMemoryStrip(cfg.Lighting.PixelCount)
	}
	indicator := opts.Indicator
	if indicator == nil {
		indicator = lighting.NewMemoryIndicator()
	}
	sink := opts.Sink
	if sink == nil {
		sink = display.NewLoopback()
	}

	a.media = storage.NewDirStore(cfg.Playback.MediaDir)
	a.executor = lighting.NewExecutor(strip, indicator, a.lightingQ, cfg.Lighting.FlushRate, cfg.Lighting.FlushBurst, a.state, a.bus)

	buf, err := playback.NewFrameBuffer(playback.DefaultAlloc)
	if err != nil {
		log.Printf("[Agent] Frame buffer unavailable, playback disabled: %v", err)
		buf = nil
	}
	a.player = playback.NewPlayer(a.media, sink, a.playbackQ, buf, cfg.Playback.FrameRate, cfg.Playback.FailureLimit, a.state, a.bus)

	a.patterns = pattern.NewEngine(a.lightingQ, cfg.Lighting.PixelCount, cfg.PatternsDir, a.state, a.bus)

	a.scheduler = scheduler.New(a.lightingQ, a.playbackQ, cfg.SchedulesFile)
	a.scheduler.SetPatterns(a.patterns)

	a.intake = intake.New(store.Identity(), a.lightingQ, a.playbackQ, a.patterns, a.scheduler, a.state)

	interval, err := time.ParseDuration(cfg.Network.HeartbeatInterval)
	if err != nil || interval <= 0 {
		interval = 5 * time.Second
	}
	a.heartbeat = intake.NewHeartbeat(store.Identity(), cfg.Network.HeartbeatAddr, interval, a.state, a.bus, a.queueDrops)

	a.server = server.NewServer(a.state, a.bus, a.patterns, a.scheduler, cfg.Server.Port, cfg.Server.AllowedOrigins)
	a.mqttClient = mqtt.NewClient(cfg, a.lightingQ, a.playbackQ, a.patterns, a.bus)

	if len(opts.Pins) > 0 {
		threshold, err := time.ParseDuration(cfg.Reset.HoldThreshold)
		if err != nil || threshold <= 0 {
			threshold = 5 * time.Second
		}
		restarter := opts.Restarter
		if restarter == nil {
			restarter = processRestarter{}
		}
		a.monitor = monitor.NewResetMonitor(opts.Pins, a.flashIndicator, store, restarter, threshold)
	}

	return a
}

// Run starts every context and blocks in the cooperative loop until Shutdown.
func (a *Agent) Run() {
	a.startContext("lighting", func() { a.executor.Run(a.ctx) })
	a.startContext("playback", func() { a.player.Run(a.ctx) })
	a.startContext("intake", func() {
		if err := a.intake.Run(a.ctx); err != nil {
			log.Printf("[Agent] Intake failed: %v", err)
			a.cancel()
		}
	})
	a.startContext("heartbeat", func() { a.heartbeat.Run(a.ctx) })
	a.startContext("server-forward", func() { a.server.Forward(a.ctx) })

	go func() {
		if err := a.server.ListenAndServe(); err != nil {
			log.Printf("[Agent] Observation server stopped: %v", err)
		}
	}()

	if a.mqttClient != nil {
		go func() {
			if err := a.mqttClient.Connect(); err != nil {
				log.Printf("[Agent] MQTT setup error: %v", err)
			}
		}()
	}

	a.scheduler.Start()
	a.applyBootDefaults()

	log.Println("[Agent] All contexts running.")
	ticker := time.NewTicker(loopTick)
	defer ticker.Stop()
	pass := 0
	lastPhase := monitor.PhaseNormal
	for {
		select {
		case <-a.ctx.Done():
			log.Println("[Agent] Cooperative loop stopping.")
			return
		case now := <-ticker.C:
			if a.monitor != nil {
				if phase := a.monitor.Sample(now); phase != lastPhase {
					lastPhase = phase
					a.bus.Publish(core.Event{
						Type:    core.ResetPhaseEvent,
						Payload: map[string]interface{}{"phase": phase.String()},
					})
				}
			}
			if pass%storageEvery == 0 {
				a.state.SetStorageMounted(a.media.Mounted())
			}
			pass++
		}
	}
}

// Shutdown stops every context and waits for them to exit.
func (a *Agent) Shutdown() {
	log.Println("[Agent] Shutting down...")
	a.scheduler.Stop()
	a.patterns.Stop()
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = a.server.Shutdown(shutdownCtx)
	a.cancel()
	a.wg.Wait()
	a.patterns.Close()
	log.Println("[Agent] Shutdown complete.")
}

func (a *Agent) startContext(name string, run func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		run()
		log.Printf("[Agent] Context '%s' exited.", name)
	}()
}

// applyBootDefaults seeds the configured startup brightness and media through
// the normal queue path.
func (a *Agent) applyBootDefaults() {
	a.lightingQ.TrySend(core.LightingCommand{
		Kind:       core.LightingSetBrightness,
		Brightness: a.store.DefaultBrightness(),
	})
	if media := a.store.DefaultMedia(); media != "" {
		a.playbackQ.TrySend(core.PlaybackCommand{Kind: core.PlaybackPlay, Name: media, Loop: true})
	}
}

// flashIndicator drives the builtin indicator during the reset warning window.
// Non-blocking; a full queue skips a flash edge rather than stalling the loop.
func (a *Agent) flashIndicator(on bool) {
	a.lightingQ.TrySend(core.LightingCommand{Kind: core.LightingSetBuiltin, BuiltinOn: on})
}

func (a *Agent) queueDrops() map[string]uint64 {
	return map[string]uint64{
		a.lightingQ.Name(): a.lightingQ.Drops(),
		a.playbackQ.Name(): a.playbackQ.Drops(),
	}
}
