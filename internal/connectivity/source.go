package connectivity

import "sync"

// Listener receives the new reachability level after a transition.
type Listener func(online bool)

// Source is a connectivity signal provider. Subscribe registers a transition
// listener and returns a function that removes it; listeners see transitions
// only, the current level is read through Online.
type Source interface {
	Online() bool
	Subscribe(fn Listener) func()
}

// broadcaster fans transition events out to registered listeners.
type broadcaster struct {
	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
}

func (b *broadcaster) add(fn Listener) func() {
	b.mu.Lock()
	if b.listeners == nil {
		b.listeners = make(map[int]Listener)
	}
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// emit invokes listeners outside the broadcaster lock so a listener may
// subscribe or unsubscribe without deadlocking.
func (b *broadcaster) emit(online bool) {
	b.mu.Lock()
	fns := make([]Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// Manual is a Source driven by explicit SetOnline calls. It backs tests and
// hosts that already have their own connectivity signal.
type Manual struct {
	mu     sync.Mutex
	online bool
	bcast  broadcaster
}

// NewManual returns a manual source at the given initial level.
func NewManual(online bool) *Manual {
	return &Manual{online: online}
}

// Online reports the current level.
func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline updates the level. Listeners fire only when the level actually
// changes.
func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if changed {
		m.bcast.emit(online)
	}
}

// Subscribe registers a transition listener.
func (m *Manual) Subscribe(fn Listener) func() {
	return m.bcast.add(fn)
}
