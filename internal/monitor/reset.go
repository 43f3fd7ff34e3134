// Package monitor implements the hardware monitor: cooperative sampling of
// the physical factory-reset triggers from the main orchestration loop.
package monitor

import (
	"log"
	"time"
)

// Phase of the reset state machine.
type Phase int

const (
	PhaseNormal Phase = iota
	PhasePending
	PhaseConfirmed
)

func (p Phase) String() string {
	switch p {
	case PhaseNormal:
		return "normal"
	case PhasePending:
		return "pending"
	case PhaseConfirmed:
		return "confirmed"
	}
	return "unknown"
}

// TriggerPin reads the raw electrical level of one reset trigger. The trigger
// is asserted while the level is low.
type TriggerPin interface {
	Read() bool
}

// Restarter restarts the device. Called exactly once, after the persisted
// configuration has been cleared.
type Restarter interface {
	Restart()
}

// Resetter clears persisted configuration back to factory defaults.
type Resetter interface {
	FactoryReset() error
}

const (
	// debounceReads / debounceQuorum: majority-vote debouncing. A trigger is
	// only trusted when at least debounceQuorum of debounceReads samples
	// read low.
	debounceReads  = 5
	debounceQuorum = 4

	// flashWindow is how long before confirmation the indicator flashes.
	flashWindow = time.Second

	// flashPeriod is the indicator toggle period during the flash window.
	flashPeriod = 100 * time.Millisecond
)

// ResetMonitor samples two independent reset triggers and drives the
// Normal -> Pending -> Confirmed state machine. Either trigger alone can
// confirm a reset once held past the threshold.
type ResetMonitor struct {
	pins      []TriggerPin
	indicate  func(on bool)
	resetter  Resetter
	restarter Restarter
	threshold time.Duration

	phase      Phase
	holdStart  time.Time
	lastToggle time.Time
	flashOn    bool
}

// NewResetMonitor creates the monitor. indicate signals the flash state of
// the built-in LED and must not block.
func NewResetMonitor(pins []TriggerPin, indicate func(on bool), resetter Resetter, restarter Restarter, threshold time.Duration) *ResetMonitor {
	return &ResetMonitor{
		pins:      pins,
		indicate:  indicate,
		resetter:  resetter,
		restarter: restarter,
		threshold: threshold,
		phase:     PhaseNormal,
	}
}

// Phase returns the current reset phase.
func (m *ResetMonitor) Phase() Phase { return m.phase }

// Sample performs one cooperative pass: debounced trigger reads, the hold
// timer, the pre-confirmation flash and the terminal confirmation. Designed
// to complete in well under a millisecond so it never starves the loop.
func (m *ResetMonitor) Sample(now time.Time) Phase {
	if m.phase == PhaseConfirmed {
		return m.phase
	}

	held := false
	for _, pin := range m.pins {
		if debounced(pin) {
			held = true
			break
		}
	}

	switch m.phase {
	case PhaseNormal:
		if held {
			m.phase = PhasePending
			m.holdStart = now
			log.Println("[Monitor] Reset trigger asserted, hold pending.")
		}

	case PhasePending:
		if !held {
			m.phase = PhaseNormal
			m.setFlash(false)
			log.Printf("[Monitor] Reset trigger released after %v, back to normal.", now.Sub(m.holdStart).Round(time.Millisecond))
			return m.phase
		}
		heldFor := now.Sub(m.holdStart)
		if heldFor >= m.threshold {
			m.confirm()
			return m.phase
		}
		if m.threshold-heldFor <= flashWindow {
			if now.Sub(m.lastToggle) >= flashPeriod {
				m.lastToggle = now
				m.setFlash(!m.flashOn)
			}
		}
	}
	return m.phase
}

// confirm is terminal: configuration is cleared and the device restarts
// unconditionally.
func (m *ResetMonitor) confirm() {
	m.phase = PhaseConfirmed
	m.setFlash(true)
	log.Println("[Monitor] Reset confirmed: clearing configuration and restarting.")
	if err := m.resetter.FactoryReset(); err != nil {
		// No remote reporting channel exists here; the indicator is all we have.
		log.Printf("[Monitor] Factory reset failed: %v", err)
	}
	m.restarter.Restart()
}

func (m *ResetMonitor) setFlash(on bool) {
	if m.flashOn == on {
		return
	}
	m.flashOn = on
	if m.indicate != nil {
		m.indicate(on)
	}
}

// debounced reads the pin debounceReads times and trusts a low level only on
// a supermajority, rejecting transient noise.
func debounced(pin TriggerPin) bool {
	lows := 0
	for i := 0; i < debounceReads; i++ {
		if !pin.Read() {
			lows++
		}
	}
	return lows >= debounceQuorum
}
