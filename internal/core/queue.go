package core

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var queueDrops = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "prop_queue_dropped_total",
	Help: "Commands dropped because a bounded queue was full.",
}, []string{"queue"})

// Queue is the bounded single-consumer message channel between execution
// contexts. Sends never block: when the queue is full the message is dropped
// and counted. Receives block with a timeout so the consumer can keep
// servicing its own periodic duties with no pending messages.
type Queue[T any] struct {
	name  string
	ch    chan T
	drops atomic.Uint64
}

// NewQueue creates a queue with a fixed capacity. Capacity is set once and
// never grows.
func NewQueue[T any](name string, capacity int) *Queue[T] {
	return &Queue[T]{
		name: name,
		ch:   make(chan T, capacity),
	}
}

// TrySend enqueues v without blocking. Returns false when the queue is full;
// the message is dropped and the drop counter incremented.
func (q *Queue[T]) TrySend(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		q.drops.Add(1)
		queueDrops.WithLabelValues(q.name).Inc()
		return false
	}
}

// Receive blocks until a message arrives or the timeout elapses. The second
// return value is false on timeout.
func (q *Queue[T]) Receive(timeout time.Duration) (T, bool) {
	var zero T
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-q.ch:
		return v, true
	case <-timer.C:
		return zero, false
	}
}

// Name returns the queue's identifier used in logs and metrics.
func (q *Queue[T]) Name() string { return q.name }

// Len returns the number of currently queued messages.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Cap returns the fixed capacity.
func (q *Queue[T]) Cap() int { return cap(q.ch) }

// Drops returns the number of messages dropped since creation.
func (q *Queue[T]) Drops() uint64 { return q.drops.Load() }
