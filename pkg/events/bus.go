// Package events provides the synchronous pub/sub bus every activity and topic publishes on.
//
// Containers forward a child's bus into their own with Forward, so an event
// raised deep inside a nest of containers reaches the outermost listener
// exactly once, on the same call stack, in publish order.
package events

import (
	"sync"
	"time"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/google/uuid"
)

// Listener is a function that handles events.
type Listener func(*domain.Event)

// Unsubscribe removes a listener. Calling it more than once is a no-op.
type Unsubscribe func()

type subscription struct {
	id       uint64
	typ      domain.EventType
	all      bool
	listener Listener
}

// Bus manages event distribution to listeners.
// Safe for concurrent use; listeners run on the publisher's goroutine.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	now    func() time.Time
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{now: time.Now}
}

// Subscribe registers a listener for a specific event type.
func (b *Bus) Subscribe(eventType domain.EventType, listener Listener) Unsubscribe {
	return b.add(subscription{typ: eventType, listener: listener})
}

// SubscribeAll registers a listener for all event types.
func (b *Bus) SubscribeAll(listener Listener) Unsubscribe {
	return b.add(subscription{all: true, listener: listener})
}

// Forward re-publishes every event of b on parent, verbatim.
func (b *Bus) Forward(parent *Bus) Unsubscribe {
	if parent == nil || parent == b {
		return func() {}
	}
	return b.SubscribeAll(parent.Publish)
}

func (b *Bus) add(s subscription) Unsubscribe {
	b.mu.Lock()
	b.nextID++
	s.id = b.nextID
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(s.id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every matching listener in registration order.
// The listener list is copied first, so listeners may (un)subscribe freely.
func (b *Bus) Publish(event *domain.Event) {
	if event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}

	b.mu.RLock()
	targets := make([]Listener, 0, len(b.subs))
	for _, s := range b.subs {
		if s.all || s.typ == event.Type {
			targets = append(targets, s.listener)
		}
	}
	b.mu.RUnlock()

	for _, l := range targets {
		l(event)
	}
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Clear removes all listeners.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}

// Group collects unsubscribe funcs so they can be released together.
type Group struct {
	mu    sync.Mutex
	funcs []Unsubscribe
}

// Add records u.
func (g *Group) Add(u Unsubscribe) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.funcs = append(g.funcs, u)
}

// Release calls every recorded unsubscribe and forgets them.
func (g *Group) Release() {
	g.mu.Lock()
	funcs := g.funcs
	g.funcs = nil
	g.mu.Unlock()
	for _, u := range funcs {
		u()
	}
}
