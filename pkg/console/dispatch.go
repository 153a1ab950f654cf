package console

import (
	"fmt"
	"sync"
)

// KeyHandler consumes one decoded event. Handlers run synchronously on the
// dispatching goroutine.
type KeyHandler func(KeyEvent)

type subscription struct {
	id      string
	handler KeyHandler
}

// Dispatcher fans each decoded event out to every subscriber in subscription
// order, so all subscribers observe the same relative event order. It also
// carries the imperative buffer-clear hooks used on interrupt and teardown.
type Dispatcher struct {
	mu        sync.RWMutex
	subs      []subscription
	clearers  []func()
	idCounter int
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe registers a handler and returns its subscription ID.
func (d *Dispatcher) Subscribe(h KeyHandler) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.idCounter++
	id := fmt.Sprintf("sub_%d", d.idCounter)
	d.subs = append(d.subs, subscription{id: id, handler: h})
	return id
}

// Unsubscribe removes a subscription. It reports whether the ID was known.
func (d *Dispatcher) Unsubscribe(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.subs {
		if s.id == id {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Dispatch delivers ev to all current subscribers. Handlers are collected
// under the read lock and invoked outside it so a handler may subscribe,
// unsubscribe, or clear without deadlocking.
func (d *Dispatcher) Dispatch(ev KeyEvent) {
	d.mu.RLock()
	handlers := make([]KeyHandler, len(d.subs))
	for i, s := range d.subs {
		handlers[i] = s.handler
	}
	d.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// RegisterClearer adds a buffer-reset hook; the decoder registers its own so
// Clear reaches every in-flight accumulator.
func (d *Dispatcher) RegisterClearer(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearers = append(d.clearers, fn)
}

// Clear invokes every registered buffer-reset hook. Called on Ctrl+C and on
// session teardown; no events are emitted for the discarded state.
func (d *Dispatcher) Clear() {
	d.mu.RLock()
	clearers := make([]func(), len(d.clearers))
	copy(clearers, d.clearers)
	d.mu.RUnlock()

	for _, fn := range clearers {
		fn()
	}
}

// SubscriberCount reports the number of active subscriptions.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}
