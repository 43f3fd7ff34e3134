// Package intake implements the command intake context: the sole owner of
// the UDP command socket. Inbound envelopes are decoded once, routed to the
// worker queues or answered from cached state, and every decodable envelope
// gets exactly one correlated response.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"prop-controller/internal/config"
	"prop-controller/internal/core"
	"prop-controller/internal/protocol"
	"prop-controller/internal/scheduler"
)

var commandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "prop_commands_total",
	Help: "Inbound commands by action and response status.",
}, []string{"action", "status"})

// replyWait bounds how long a playback dispatch waits for the resolution
// outcome before falling back to a plain acceptance.
const replyWait = 250 * time.Millisecond

// readPoll bounds the socket read deadline so shutdown is observed.
const readPoll = 500 * time.Millisecond

// Patterns is the scripted-effect engine surface the intake needs.
type Patterns interface {
	Run(name string) error
	Stop()
	List() ([]string, error)
}

// Intake owns the command socket and routes envelopes.
type Intake struct {
	identity  config.Identity
	lightingQ *core.Queue[core.LightingCommand]
	playbackQ *core.Queue[core.PlaybackCommand]
	patterns  Patterns
	schedules *scheduler.Scheduler
	state     *core.State
	started   time.Time
}

// New creates the intake context. patterns and schedules may be nil when the
// corresponding surface is disabled.
func New(identity config.Identity, lightingQ *core.Queue[core.LightingCommand], playbackQ *core.Queue[core.PlaybackCommand], patterns Patterns, schedules *scheduler.Scheduler, state *core.State) *Intake {
	return &Intake{
		identity:  identity,
		lightingQ: lightingQ,
		playbackQ: playbackQ,
		patterns:  patterns,
		schedules: schedules,
		state:     state,
		started:   time.Now(),
	}
}

// Run listens on the command port until ctx is cancelled.
func (s *Intake) Run(ctx context.Context) error {
	addr := &net.UDPAddr{Port: s.identity.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("[Intake] Listening for commands on udp/%d.", s.identity.Port)

	buf := make([]byte, 2048)
	for {
		if ctx.Err() != nil {
			log.Println("[Intake] Shutting down.")
			return nil
		}
		_ = conn.SetReadDeadline(time.Now().Add(readPoll))
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			log.Printf("[Intake] Socket read error: %v", err)
			continue
		}

		resp := s.HandlePacket(buf[:n], time.Now())
		if resp == nil {
			continue
		}
		payload, err := json.Marshal(resp)
		if err != nil {
			log.Printf("[Intake] Failed to marshal response: %v", err)
			continue
		}
		// Fire and forget; at-most-once, no retries.
		if _, err := conn.WriteToUDP(payload, remote); err != nil {
			log.Printf("[Intake] Failed to send response to %s: %v", remote, err)
		}
	}
}

// HandlePacket decodes and dispatches one datagram. A nil return means the
// envelope was malformed and is dropped without a response, since no
// correlation id could be trusted.
func (s *Intake) HandlePacket(data []byte, now time.Time) *protocol.Response {
	req, err := protocol.DecodeRequest(data)
	if err != nil {
		log.Printf("[Intake] Dropping malformed envelope: %v", err)
		return nil
	}
	s.state.TouchCommand(now)

	resp := s.dispatch(req, now)
	commandsHandled.WithLabelValues(string(req.Action), resp.Status).Inc()
	return resp
}

func (s *Intake) dispatch(req protocol.Request, now time.Time) *protocol.Response {
	switch {
	case req.Action.IsLighting():
		return s.dispatchLighting(req, now)
	case req.Action.IsPlayback():
		return s.dispatchPlayback(req, now)
	}

	switch req.Action {
	case protocol.ActionStatus:
		return s.respondResult(req, now, s.statusResult())

	case protocol.ActionPing:
		return s.respondResult(req, now, map[string]interface{}{"pong": true})

	case protocol.ActionDiscovery:
		return s.respondResult(req, now, map[string]interface{}{
			"label": s.identity.Label,
			"id":    s.identity.ID,
			"port":  s.identity.Port,
		})

	case protocol.ActionRunPattern:
		if s.patterns == nil {
			return s.respondError(req, now, "patterns disabled")
		}
		name, ok := req.Parameters["name"].(string)
		if !ok || name == "" {
			return s.respondError(req, now, "missing parameter 'name'")
		}
		if err := s.patterns.Run(name); err != nil {
			return s.respondError(req, now, err.Error())
		}
		return s.respond(req, now, protocol.StatusAccepted)

	case protocol.ActionStopPattern:
		if s.patterns == nil {
			return s.respondError(req, now, "patterns disabled")
		}
		s.patterns.Stop()
		return s.respond(req, now, protocol.StatusOK)

	case protocol.ActionListPatterns:
		if s.patterns == nil {
			return s.respondError(req, now, "patterns disabled")
		}
		list, err := s.patterns.List()
		if err != nil {
			return s.respondError(req, now, err.Error())
		}
		return s.respondResult(req, now, list)

	case protocol.ActionAddSchedule:
		if s.schedules == nil {
			return s.respondError(req, now, "scheduler disabled")
		}
		spec, _ := req.Parameters["spec"].(string)
		command, _ := req.Parameters["command"].(string)
		if spec == "" || command == "" {
			return s.respondError(req, now, "missing parameters 'spec' and 'command'")
		}
		id, err := s.schedules.Add(spec, command)
		if err != nil {
			return s.respondError(req, now, err.Error())
		}
		return s.respondResult(req, now, map[string]interface{}{"id": id})

	case protocol.ActionRemoveSchedule:
		if s.schedules == nil {
			return s.respondError(req, now, "scheduler disabled")
		}
		id, err := scheduleID(req.Parameters)
		if err != nil {
			return s.respondError(req, now, err.Error())
		}
		s.schedules.Remove(id)
		return s.respond(req, now, protocol.StatusOK)

	case protocol.ActionListSchedules:
		if s.schedules == nil {
			return s.respondError(req, now, "scheduler disabled")
		}
		return s.respondResult(req, now, s.schedules.All())
	}

	// Unknown action: an explicit error response, never a crash.
	log.Printf("[Intake] Unknown action '%s'.", req.Action)
	return s.respondError(req, now, "unknown action: "+string(req.Action))
}

// dispatchLighting translates and enqueues, never executes inline.
func (s *Intake) dispatchLighting(req protocol.Request, now time.Time) *protocol.Response {
	cmd, err := protocol.DecodeLighting(req)
	if err != nil {
		return s.respondError(req, now, err.Error())
	}
	if !s.lightingQ.TrySend(cmd) {
		log.Printf("[Intake] Lighting queue full, dropped %s (total drops %d).", cmd.Kind, s.lightingQ.Drops())
		return s.respond(req, now, protocol.StatusDegraded)
	}
	return s.respond(req, now, protocol.StatusAccepted)
}

// dispatchPlayback enqueues the request and waits briefly for the resolution
// outcome so "not found" failures surface in the response.
func (s *Intake) dispatchPlayback(req protocol.Request, now time.Time) *protocol.Response {
	cmd, err := protocol.DecodePlayback(req)
	if err != nil {
		return s.respondError(req, now, err.Error())
	}
	if cmd.Kind != core.PlaybackStop {
		cmd.Reply = make(chan error, 1)
	}
	if !s.playbackQ.TrySend(cmd) {
		log.Printf("[Intake] Playback queue full, dropped %s (total drops %d).", cmd.Kind, s.playbackQ.Drops())
		return s.respond(req, now, protocol.StatusDegraded)
	}
	if cmd.Reply != nil {
		select {
		case err := <-cmd.Reply:
			if err != nil {
				return s.respondError(req, now, err.Error())
			}
			return s.respond(req, now, protocol.StatusOK)
		case <-time.After(replyWait):
			// Resolution still in flight; the command was accepted.
		}
	}
	return s.respond(req, now, protocol.StatusAccepted)
}

func (s *Intake) statusResult() map[string]interface{} {
	snap := s.state.Clone()
	return map[string]interface{}{
		"label":          s.identity.Label,
		"deviceId":       s.identity.ID,
		"uptimeSeconds":  int(time.Since(s.started).Seconds()),
		"storageMounted": snap.StorageMounted,
		"lighting":       snap.Lighting,
		"playback":       snap.Playback,
		"runningPattern": snap.RunningPattern,
		"queueDrops": map[string]uint64{
			s.lightingQ.Name(): s.lightingQ.Drops(),
			s.playbackQ.Name(): s.playbackQ.Drops(),
		},
	}
}

func (s *Intake) respond(req protocol.Request, now time.Time, status string) *protocol.Response {
	resp := protocol.NewResponse(req, s.identity.ID, status, now)
	return &resp
}

func (s *Intake) respondResult(req protocol.Request, now time.Time, result interface{}) *protocol.Response {
	resp := protocol.NewResponse(req, s.identity.ID, protocol.StatusOK, now)
	resp.Result = result
	return &resp
}

func (s *Intake) respondError(req protocol.Request, now time.Time, msg string) *protocol.Response {
	resp := protocol.NewResponse(req, s.identity.ID, protocol.StatusError, now)
	resp.Error = msg
	return &resp
}

func scheduleID(params map[string]interface{}) (int, error) {
	switch v := params["id"].(type) {
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	}
	return 0, errors.New("missing parameter 'id'")
}
