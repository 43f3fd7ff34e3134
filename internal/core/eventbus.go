package core

import "sync"

// EventType names a category of status notification.
type EventType string

const (
	LightingChangedEvent EventType = "LightingChanged"
	PlaybackChangedEvent EventType = "PlaybackChanged"
	PatternChangedEvent  EventType = "PatternChanged"
	ResetPhaseEvent      EventType = "ResetPhase"
	HeartbeatEvent       EventType = "Heartbeat"
)

// Event is the envelope for all system events.
type Event struct {
	Type    EventType
	Payload interface{}
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// subscriberBuffer sizes subscriber channels so publishers never block on a
// slow observer.
const subscriberBuffer = 100

// EventBus carries status notifications between contexts and the observation
// surfaces. It never carries commands; the queues remain the sole command
// path. Publishing is non-blocking: a saturated subscriber misses events
// rather than stalling a worker context.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe returns a channel receiving events of the given types.
func (eb *EventBus) Subscribe(eventTypes ...EventType) Subscriber {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(Subscriber, subscriberBuffer)
	for _, t := range eventTypes {
		eb.subscribers[t] = append(eb.subscribers[t], ch)
	}
	return ch
}

// Unsubscribe detaches a subscriber channel from the given types.
func (eb *EventBus) Unsubscribe(ch Subscriber, eventTypes ...EventType) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, t := range eventTypes {
		subs := eb.subscribers[t]
		for i, sub := range subs {
			if sub == ch {
				eb.subscribers[t] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish distributes an event to all subscribers of its type.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, sub := range eb.subscribers[event.Type] {
		select {
		case sub <- event:
		default:
		}
	}
}
