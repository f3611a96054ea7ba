package workflow

import (
	"maps"
	"slices"
	"sync"

	"github.com/aretw0/tendril/pkg/domain"
)

// Conversation holds cross-topic globals and the topic call stack.
// Globals are read by anyone and written only through a Promoter.
type Conversation struct {
	id string

	mu      sync.RWMutex
	globals map[string]any

	stack *CallStack
}

// NewConversation creates an empty conversation.
func NewConversation(id string) *Conversation {
	return &Conversation{
		id:      id,
		globals: make(map[string]any),
		stack:   NewCallStack(),
	}
}

// ID returns the conversation identifier.
func (c *Conversation) ID() string {
	return c.id
}

// Global returns a global value.
func (c *Conversation) Global(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.globals[key]
	return v, ok
}

// GlobalKeys returns the global keys, sorted.
func (c *Conversation) GlobalKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.globals))
}

// Globals returns a copy of every global value.
func (c *Conversation) Globals() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.globals)
}

// CallStack returns the conversation call stack.
func (c *Conversation) CallStack() *CallStack {
	return c.stack
}

// Promoter hands out the write capability for globals. Hosts mint it when
// they build a conversation's topics and hand it to the activities allowed
// to write.
func (c *Conversation) Promoter() *Promoter {
	return &Promoter{conv: c}
}

// Restore replaces globals and frames with persisted ones.
func (c *Conversation) Restore(globals map[string]any, frames []domain.CallFrame) {
	c.mu.Lock()
	c.globals = maps.Clone(globals)
	if c.globals == nil {
		c.globals = make(map[string]any)
	}
	c.mu.Unlock()
	c.stack.restore(frames)
}

// Reset clears every global and every call frame.
func (c *Conversation) Reset() {
	c.mu.Lock()
	clear(c.globals)
	c.mu.Unlock()
	c.stack.Clear()
}

// Promoter is the only way to write a conversation global.
type Promoter struct {
	conv *Conversation
}

// Promote writes v under key in the conversation.
func (p *Promoter) Promote(key string, v any) {
	if p == nil || p.conv == nil {
		return
	}
	p.conv.mu.Lock()
	defer p.conv.mu.Unlock()
	p.conv.globals[key] = v
}

// Demote removes a global.
func (p *Promoter) Demote(key string) {
	if p == nil || p.conv == nil {
		return
	}
	p.conv.mu.Lock()
	defer p.conv.mu.Unlock()
	delete(p.conv.globals, key)
}
