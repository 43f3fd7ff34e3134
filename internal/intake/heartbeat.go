package intake

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"runtime"
	"time"

	"github.com/google/uuid"

	"prop-controller/internal/config"
	"prop-controller/internal/core"
)

// Snapshot is one unsolicited heartbeat datagram.
type Snapshot struct {
	HeartbeatID    string               `json:"heartbeatId"`
	DeviceID       int                  `json:"deviceId"`
	Label          string               `json:"label"`
	CommandPort    int                  `json:"commandPort"`
	UptimeSeconds  int                  `json:"uptimeSeconds"`
	StorageMounted bool                 `json:"storageMounted"`
	Lighting       core.LightingSummary `json:"lighting"`
	Playback       core.PlaybackSummary `json:"playback"`
	RunningPattern string               `json:"runningPattern,omitempty"`
	FreeMemory     uint64               `json:"freeMemory"`
	QueueDrops     map[string]uint64    `json:"queueDrops"`
	Timestamp      string               `json:"timestamp"`
}

// Heartbeat emits a status snapshot to the collaborator address on a fixed
// interval, independent of inbound traffic. Fire and forget: an unreachable
// collaborator never affects the device.
type Heartbeat struct {
	identity config.Identity
	addr     string
	interval time.Duration
	state    *core.State
	bus      *core.EventBus
	drops    func() map[string]uint64
	started  time.Time
}

// NewHeartbeat creates the emitter. drops reports the per-queue drop
// counters included in every snapshot.
func NewHeartbeat(identity config.Identity, addr string, interval time.Duration, state *core.State, bus *core.EventBus, drops func() map[string]uint64) *Heartbeat {
	return &Heartbeat{
		identity: identity,
		addr:     addr,
		interval: interval,
		state:    state,
		bus:      bus,
		drops:    drops,
		started:  time.Now(),
	}
}

// Run emits until ctx is cancelled.
func (h *Heartbeat) Run(ctx context.Context) {
	conn, err := net.Dial("udp", h.addr)
	if err != nil {
		log.Printf("[Heartbeat] Cannot reach collaborator address %s: %v", h.addr, err)
		return
	}
	defer conn.Close()
	log.Printf("[Heartbeat] Emitting to %s every %v.", h.addr, h.interval)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.emit(conn)
		}
	}
}

func (h *Heartbeat) emit(conn net.Conn) {
	snap := h.snapshot(time.Now())
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[Heartbeat] Marshal failed: %v", err)
		return
	}
	if _, err := conn.Write(payload); err != nil {
		log.Printf("[Heartbeat] Send failed: %v", err)
	}
	if h.bus != nil {
		h.bus.Publish(core.Event{Type: core.HeartbeatEvent, Payload: snap})
	}
}

func (h *Heartbeat) snapshot(now time.Time) Snapshot {
	snap := h.state.Clone()
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var drops map[string]uint64
	if h.drops != nil {
		drops = h.drops()
	}

	return Snapshot{
		HeartbeatID:    uuid.NewString(),
		DeviceID:       h.identity.ID,
		Label:          h.identity.Label,
		CommandPort:    h.identity.Port,
		UptimeSeconds:  int(now.Sub(h.started).Seconds()),
		StorageMounted: snap.StorageMounted,
		Lighting:       snap.Lighting,
		Playback:       snap.Playback,
		RunningPattern: snap.RunningPattern,
		FreeMemory:     mem.HeapSys - mem.HeapInuse,
		QueueDrops:     drops,
		Timestamp:      now.UTC().Format(time.RFC3339),
	}
}
