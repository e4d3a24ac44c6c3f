// Package device contains the pillbox integration: the transport abstraction
// over the physical (or simulated) device link, and the bridge that turns
// compartment-open events into intake confirmations.
package device

import (
	"context"
	"sync"

	"github.com/pildhora/go-adherence-backend/internal/domain"
)

// Transport is the link to a pillbox device. Implementations publish a full
// state snapshot on every change and a compartment id on every lid opening.
//
// Both subscription methods return a disposer; calling it removes the
// listener. Listeners are invoked synchronously from the transport's own
// goroutine and must not block.
type Transport interface {
	// Scan discovers nearby pillboxes. Honors ctx cancellation.
	Scan(ctx context.Context) ([]domain.PillboxDevice, error)

	// Connect pairs with the pillbox identified by deviceID.
	Connect(ctx context.Context, deviceID string) error

	// Disconnect drops the current pairing. Safe to call when not connected.
	Disconnect()

	// State returns the current device snapshot.
	State() domain.DeviceState

	// OnStateChange registers a listener for state snapshots.
	OnStateChange(fn func(domain.DeviceState)) (unsubscribe func())

	// OnCompartmentOpen registers a listener for lid openings.
	OnCompartmentOpen(fn func(compartment int)) (unsubscribe func())
}

// hub is a minimal pub/sub fan-out used by transports for both event kinds.
// Subscribe returns a disposer; publish snapshots the listener set under the
// lock and invokes outside it, so a listener may unsubscribe itself.
type hub[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(T)
}

func (h *hub[T]) subscribe(fn func(T)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]func(T))
	}
	id := h.next
	h.next++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

func (h *hub[T]) publish(v T) {
	h.mu.Lock()
	fns := make([]func(T), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}
