package events_test

import (
	"sync"
	"testing"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeByType(t *testing.T) {
	bus := events.NewBus()
	var got []domain.EventType

	bus.Subscribe(domain.EventMessage, func(e *domain.Event) { got = append(got, e.Type) })
	bus.Publish(&domain.Event{Type: domain.EventCard})
	bus.Publish(&domain.Event{Type: domain.EventMessage})

	assert.Equal(t, []domain.EventType{domain.EventMessage}, got)
}

func TestBus_PublishFillsEnvelope(t *testing.T) {
	bus := events.NewBus()
	var seen *domain.Event
	bus.SubscribeAll(func(e *domain.Event) { seen = e })

	bus.Publish(&domain.Event{Type: domain.EventCustom})

	require.NotNil(t, seen)
	assert.NotEmpty(t, seen.ID)
	assert.False(t, seen.Timestamp.IsZero())
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	bus := events.NewBus()
	count := 0
	unsub := bus.SubscribeAll(func(*domain.Event) { count++ })
	bus.SubscribeAll(func(*domain.Event) {})

	unsub()
	unsub()
	bus.Publish(&domain.Event{Type: domain.EventMessage})

	assert.Equal(t, 0, count)
	assert.Equal(t, 1, bus.Len())
}

func TestBus_ForwardChainDeliversOnce(t *testing.T) {
	// leaf -> mid -> root, the root listener must see the leaf event exactly once.
	leaf, mid, root := events.NewBus(), events.NewBus(), events.NewBus()
	leaf.Forward(mid)
	mid.Forward(root)

	var ids []string
	root.SubscribeAll(func(e *domain.Event) { ids = append(ids, e.ID) })

	leaf.Publish(&domain.Event{Type: domain.EventMessage, ID: "evt-1"})

	assert.Equal(t, []string{"evt-1"}, ids)
}

func TestBus_ForwardSelfIsNoop(t *testing.T) {
	bus := events.NewBus()
	unsub := bus.Forward(bus)
	unsub()
	assert.Equal(t, 0, bus.Len())
}

func TestBus_ListenerMayUnsubscribeDuringPublish(t *testing.T) {
	bus := events.NewBus()
	var unsub events.Unsubscribe
	calls := 0
	unsub = bus.SubscribeAll(func(*domain.Event) {
		calls++
		unsub()
	})

	bus.Publish(&domain.Event{Type: domain.EventMessage})
	bus.Publish(&domain.Event{Type: domain.EventMessage})

	assert.Equal(t, 1, calls)
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := events.NewBus()
	var mu sync.Mutex
	count := 0
	bus.SubscribeAll(func(*domain.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(&domain.Event{Type: domain.EventMessage})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, count)
}

func TestGroup_Release(t *testing.T) {
	bus := events.NewBus()
	var g events.Group
	g.Add(bus.SubscribeAll(func(*domain.Event) {}))
	g.Add(bus.SubscribeAll(func(*domain.Event) {}))

	g.Release()

	assert.Equal(t, 0, bus.Len())
}
