// Package server exposes the observation surface: a WebSocket status stream
// and Prometheus metrics. It is read-only; commands travel over the UDP
// command port only.
package server

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"prop-controller/internal/core"
	"prop-controller/internal/scheduler"
)

// Patterns is the slice of the pattern engine the server needs.
type Patterns interface {
	List() ([]string, error)
}

// Server manages the HTTP and WebSocket observation services.
type Server struct {
	Hub        *Hub
	state      *core.State
	bus        *core.EventBus
	patterns   Patterns
	schedules  *scheduler.Scheduler
	httpServer *http.Server

	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewServer creates the observation server. patterns and schedules may be nil.
func NewServer(state *core.State, bus *core.EventBus, patterns Patterns, schedules *scheduler.Scheduler, port string, allowedOrigins []string) *Server {
	hub := NewHub()
	go hub.Run()

	s := &Server{
		Hub:            hub,
		state:          state,
		bus:            bus,
		patterns:       patterns,
		schedules:      schedules,
		allowedOrigins: allowedOrigins,
	}

	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				log.Println("[Server] Warning: WebSocket CheckOrigin is disabled.")
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			log.Printf("[Server] WebSocket connection blocked: origin '%s' not allowed.", origin)
			return false
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())
	s.httpServer = &http.Server{Addr: ":" + port, Handler: mux}

	return s
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	log.Printf("[Server] Observation server on %s.", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Forward relays bus events to connected observers until ctx is cancelled.
func (s *Server) Forward(ctx context.Context) {
	types := []core.EventType{
		core.LightingChangedEvent,
		core.PlaybackChangedEvent,
		core.PatternChangedEvent,
		core.ResetPhaseEvent,
		core.HeartbeatEvent,
	}
	sub := s.bus.Subscribe(types...)
	defer s.bus.Unsubscribe(sub, types...)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sub:
			s.Hub.Broadcast(NewMessage(string(event.Type), event.Payload))
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Server] WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// New observers get the full picture up front, then live deltas.
	snap := s.state.Clone()
	_ = conn.WriteJSON(NewMessage("device_state", map[string]interface{}{
		"storageMounted": snap.StorageMounted,
		"lighting":       snap.Lighting,
		"playback":       snap.Playback,
		"runningPattern": snap.RunningPattern,
	}))

	if s.patterns != nil {
		if patterns, err := s.patterns.List(); err == nil {
			_ = conn.WriteJSON(NewMessage("pattern_list", patterns))
		}
	}

	if s.schedules != nil {
		_ = conn.WriteJSON(NewMessage("schedule_list", map[string]interface{}{
			"entries":  s.schedules.All(),
			"nextRuns": s.schedules.NextRuns(),
		}))
	}

	s.Hub.register <- conn
	defer func() {
		s.Hub.unregister <- conn
	}()

	// Observers never send commands; reads only detect disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
