// Package playback implements the media playback context: the single
// consumer of the playback queue and the only owner of the display and
// storage handles.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"prop-controller/internal/core"
	"prop-controller/internal/display"
	"prop-controller/internal/storage"
)

var framesDisplayed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "prop_frames_displayed_total",
	Help: "Frames pushed to the display sink.",
})

// idlePoll bounds how long a Receive blocks while no session is active.
const idlePoll = 250 * time.Millisecond

// session is one in-progress frame-display operation. frames is fixed at
// resolution time; index stays within [0, len(frames)) while the session is
// active.
type session struct {
	name     string
	kind     SourceKind
	frames   []string
	index    int
	loop     bool
	stop     bool
	failures int
}

// Player drives the display from resolved media sources. States: idle (no
// session), then per play request resolving -> playing -> idle on stop or
// non-looping completion.
type Player struct {
	store storage.Store
	sink  display.Sink
	queue *core.Queue[core.PlaybackCommand]
	buf   *FrameBuffer
	state *core.State
	bus   *core.EventBus

	tick      time.Duration
	failLimit int

	session     *session
	nextFrameAt time.Time
}

// NewPlayer creates the playback context. buf may be nil when the startup
// allocation ladder failed entirely; every play request then fails with
// ErrPlaybackDisabled but the process keeps running.
func NewPlayer(store storage.Store, sink display.Sink, queue *core.Queue[core.PlaybackCommand], buf *FrameBuffer, frameRate, failLimit int, state *core.State, bus *core.EventBus) *Player {
	if frameRate <= 0 {
		frameRate = 30
	}
	return &Player{
		store:     store,
		sink:      sink,
		queue:     queue,
		buf:       buf,
		state:     state,
		bus:       bus,
		tick:      time.Second / time.Duration(frameRate),
		failLimit: failLimit,
	}
}

// Run is the context's main loop. The receive timeout doubles as the frame
// clock: with an active session it waits only until the next frame is due.
func (p *Player) Run(ctx context.Context) {
	log.Println("[Playback] Context started.")
	for {
		if ctx.Err() != nil {
			log.Println("[Playback] Context shutting down.")
			return
		}

		timeout := idlePoll
		if p.session != nil {
			timeout = time.Until(p.nextFrameAt)
			if timeout < time.Millisecond {
				timeout = time.Millisecond
			}
			if timeout > p.tick {
				timeout = p.tick
			}
		}

		if cmd, ok := p.queue.Receive(timeout); ok {
			p.Handle(cmd)
		}
		p.Tick(time.Now())
	}
}

// Handle processes one queued command.
func (p *Player) Handle(cmd core.PlaybackCommand) {
	switch cmd.Kind {
	case core.PlaybackPlay, core.PlaybackShowImage:
		err := p.begin(cmd)
		if err != nil {
			log.Printf("[Playback] Request '%s' failed: %v", cmd.Name, err)
		}
		reply(cmd, err)

	case core.PlaybackStop:
		// Cooperative: observed by the next tick, no mid-frame interruption.
		if p.session != nil {
			p.session.stop = true
		}
		reply(cmd, nil)

	default:
		log.Printf("[Playback] Unknown command kind: %v", cmd.Kind)
	}
}

// begin resolves the symbolic name and enters the playing state. Starting a
// new session implicitly terminates the previous one.
func (p *Player) begin(cmd core.PlaybackCommand) error {
	if p.buf == nil {
		return ErrPlaybackDisabled
	}

	res, err := Resolve(p.store, cmd.Name)
	if err != nil {
		return err
	}

	// display_image shows exactly one frame even when the name resolves to a
	// sequence directory.
	if cmd.Kind == core.PlaybackShowImage && res.Kind == SourceFrameSequence {
		res.Kind = SourceSingleImage
		res.Frames = res.Frames[:1]
	}

	// Reject before entering playing if any frame cannot fit the buffer.
	for _, frame := range res.Frames {
		size, err := p.store.Size(frame)
		if err != nil {
			return fmt.Errorf("failed to size frame '%s': %w", frame, err)
		}
		if size > int64(p.buf.Cap()) {
			return fmt.Errorf("frame '%s' is %d bytes, buffer holds %d: %w", frame, size, p.buf.Cap(), storage.ErrTooLarge)
		}
	}

	if p.session != nil {
		log.Printf("[Playback] Replacing session '%s' with '%s'.", p.session.name, cmd.Name)
	}
	p.session = &session{
		name:   cmd.Name,
		kind:   res.Kind,
		frames: res.Frames,
		loop:   cmd.Kind == core.PlaybackPlay && cmd.Loop && res.Kind == SourceFrameSequence,
	}
	p.nextFrameAt = time.Now()
	p.publish()
	log.Printf("[Playback] Session '%s': %d frame(s), loop=%v.", cmd.Name, len(res.Frames), p.session.loop)
	return nil
}

// Tick advances the frame clock. The stop flag is honored on every tick;
// frame advancement waits until the next frame is due.
func (p *Player) Tick(now time.Time) {
	s := p.session
	if s == nil {
		return
	}
	if s.stop {
		p.end("stopped")
		return
	}
	if now.Before(p.nextFrameAt) {
		return
	}

	p.showFrame(s)
	p.nextFrameAt = now.Add(p.tick)

	if p.session == nil {
		// showFrame ended the session (single image or failure cap).
		return
	}

	// Single images are displayed once, then the session clears.
	if s.kind == SourceSingleImage {
		p.end("image displayed")
		return
	}

	s.index++
	if s.index >= len(s.frames) {
		if s.loop {
			s.index = 0
		} else {
			p.end("completed")
			return
		}
	}
	p.updateState()
}

// showFrame reads the current frame into the fixed buffer and pushes it to
// the sink. Read and decode failures skip the frame; a run of failLimit
// consecutive failures aborts the session instead of looping on dead media
// forever.
func (p *Player) showFrame(s *session) {
	frame := s.frames[s.index]
	n, err := p.store.ReadFull(frame, p.buf.Data())
	if err != nil {
		s.failures++
		log.Printf("[Playback] Skipping frame '%s' (%d consecutive failures): %v", frame, s.failures, err)
		if errors.Is(err, storage.ErrNotMounted) || s.failures >= p.failLimit {
			p.end("aborted after repeated frame failures")
		}
		return
	}
	s.failures = 0

	if err := p.sink.Draw(p.buf.Data()[:n], 0); err != nil {
		log.Printf("[Playback] Display sink rejected frame '%s': %v", frame, err)
		return
	}
	framesDisplayed.Inc()
}

func (p *Player) end(reason string) {
	if p.session == nil {
		return
	}
	log.Printf("[Playback] Session '%s' ended: %s.", p.session.name, reason)
	p.session = nil
	p.publish()
}

// Session reports the active session name, or "" when idle.
func (p *Player) Session() string {
	if p.session == nil {
		return ""
	}
	return p.session.name
}

func (p *Player) summary() core.PlaybackSummary {
	if s := p.session; s != nil {
		return core.PlaybackSummary{
			Name:       s.name,
			Playing:    true,
			Loop:       s.loop,
			FrameIndex: s.index,
			FrameCount: len(s.frames),
		}
	}
	return core.PlaybackSummary{}
}

// updateState refreshes the cached summary without a bus event; frame
// advances are too frequent to broadcast individually.
func (p *Player) updateState() {
	if p.state != nil {
		p.state.SetPlayback(p.summary())
	}
}

// publish refreshes the cached summary and announces a session transition.
func (p *Player) publish() {
	p.updateState()
	if p.bus != nil {
		p.bus.Publish(core.Event{Type: core.PlaybackChangedEvent, Payload: p.summary()})
	}
}

func reply(cmd core.PlaybackCommand, err error) {
	if cmd.Reply == nil {
		return
	}
	select {
	case cmd.Reply <- err:
	default:
		// Requester stopped waiting; never block the playback loop.
	}
}
