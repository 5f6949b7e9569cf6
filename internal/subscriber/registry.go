// Package subscriber implements the allowed-state-changed listener
// registry of spec.md §4.G: concurrent-safe registration from foreign
// threads, with fan-out always driven by the orchestrator goroutine.
package subscriber

import (
	"sync"

	"github.com/google/uuid"
)

// Sink receives an allowed-state-changed notification. Returning a
// non-nil error removes the subscriber from the registry.
type Sink func(allowed bool) error

// Registry tracks long-lived subscribers and delivers best-effort
// notifications. Register/Unregister are safe to call concurrently
// from any goroutine; Notify is intended to run on a single
// goroutine (the orchestrator's), same as the teacher's
// gm.TargetSet.pruneOwned: collect failures under the lock, act on
// them after releasing it.
type Registry struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]Sink
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{byID: make(map[uuid.UUID]Sink)}
}

// Register adds sink and returns its handle.
func (r *Registry) Register(sink Sink) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	r.byID[id] = sink
	r.mu.Unlock()
	return id
}

// Unregister removes the subscriber with the given handle, if present.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
}

// Len returns the number of currently registered subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Notify delivers allowed to every subscriber, per-subscriber order
// preserved, no ordering guarantee across subscribers. A subscriber
// whose sink returns an error is removed.
func (r *Registry) Notify(allowed bool) {
	r.mu.RLock()
	sinks := make(map[uuid.UUID]Sink, len(r.byID))
	for id, s := range r.byID {
		sinks[id] = s
	}
	r.mu.RUnlock()

	var failed []uuid.UUID
	for id, sink := range sinks {
		if err := sink(allowed); err != nil {
			failed = append(failed, id)
		}
	}
	if len(failed) == 0 {
		return
	}

	r.mu.Lock()
	for _, id := range failed {
		delete(r.byID, id)
	}
	r.mu.Unlock()
}
