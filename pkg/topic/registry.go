package topic

import (
	"sync"

	"github.com/aretw0/tendril/pkg/domain"
)

// Lookup resolves topic names for the orchestrator.
type Lookup interface {
	Topic(name string) (*Topic, bool)
	Topics() []domain.TopicInfo
	All() []*Topic
}

// Registry holds the topics of one conversation, in registration order.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]*Topic
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		topics: make(map[string]*Topic),
	}
}

// Register adds a topic. Names must be unique.
func (r *Registry) Register(t *Topic) error {
	if t == nil {
		return domain.NewConfigError("registry", "nil topic")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.topics[t.Name()]; ok {
		return domain.NewConfigError("registry", "duplicate topic %q", t.Name())
	}
	r.topics[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Topic looks up a topic by name.
func (r *Registry) Topic(name string) (*Topic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.topics[name]
	return t, ok
}

// Topics describes every topic in registration order.
func (r *Registry) Topics() []domain.TopicInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.TopicInfo, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.topics[name].Info())
	}
	return out
}

// All returns every topic in registration order.
func (r *Registry) All() []*Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Topic, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.topics[name])
	}
	return out
}

// Len returns the number of registered topics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
