package syncengine

import (
	"context"
	"sync"
	"time"
)

// State labels one phase of a drain pass as seen by subscribers.
type State string

const (
	// StateSyncing is published when a drain pass starts working through a
	// non-empty queue.
	StateSyncing State = "syncing"
	// StateCompleted is published when a drain pass finishes, whether or not
	// individual mutations failed.
	StateCompleted State = "completed"
	// StateError is published when a drain pass aborts (dead session or
	// storage failure).
	StateError State = "error"
)

// StatusEvent is the asynchronous feedback channel for the UI: drain progress
// and outcomes are only ever surfaced this way, never as synchronous errors
// from a write call.
type StatusEvent struct {
	State       State
	Pending     int
	Succeeded   int
	Failed      int
	AuthExpired bool
	At          time.Time
}

// StatusDispatcher fans StatusEvents out to subscribers. Sends never block:
// a subscriber that stops draining its channel misses events rather than
// stalling the sync engine.
type StatusDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]chan StatusEvent
	nextID      int64
	bufferSize  int
}

// NewStatusDispatcher constructs a dispatcher.
func NewStatusDispatcher() *StatusDispatcher {
	return &StatusDispatcher{
		subscribers: make(map[int64]chan StatusEvent),
		bufferSize:  16,
	}
}

// Subscribe registers a listener channel that is torn down when ctx ends or
// the returned cleanup runs. Either path releases the watcher goroutine, so a
// subscriber holding a non-cancelable context leaks nothing.
func (d *StatusDispatcher) Subscribe(ctx context.Context) (<-chan StatusEvent, func()) {
	stream := make(chan StatusEvent, d.bufferSize)
	done := make(chan struct{})

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subscribers[id] = stream
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			close(done)
			d.mu.Lock()
			delete(d.subscribers, id)
			d.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-done:
		}
	}()
	return stream, cleanup
}

// Publish delivers an event to every subscriber without blocking.
func (d *StatusDispatcher) Publish(event StatusEvent) {
	d.mu.RLock()
	streams := make([]chan StatusEvent, 0, len(d.subscribers))
	for _, stream := range d.subscribers {
		streams = append(streams, stream)
	}
	d.mu.RUnlock()

	for _, stream := range streams {
		select {
		case stream <- event:
		default:
		}
	}
}
