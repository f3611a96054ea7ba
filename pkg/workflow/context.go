package workflow

import (
	"encoding/json"
	"maps"
	"slices"
	"sync"
)

// Context is the key-value store scoped to one topic activation.
// Keys are case-sensitive. Concurrent writers are last-writer-wins.
type Context struct {
	mu     sync.RWMutex
	topic  string
	values map[string]any
	conv   *Conversation
}

// NewContext creates an empty context owned by topic. conv may be nil.
func NewContext(topic string, conv *Conversation) *Context {
	return &Context{
		topic:  topic,
		values: make(map[string]any),
		conv:   conv,
	}
}

// TopicName returns the owning topic.
func (c *Context) TopicName() string {
	return c.topic
}

// Get returns the raw value under key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Set stores v under key.
func (c *Context) Set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = v
}

// Remove deletes key. Missing keys are ignored.
func (c *Context) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}

// Has reports whether key is present.
func (c *Context) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Keys returns every key, sorted.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.values))
}

// Len returns the number of keys.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Snapshot returns a shallow copy of the values.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.values)
}

// Clear removes every key.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.values)
}

// Load replaces the content with values.
func (c *Context) Load(values map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = maps.Clone(values)
	if c.values == nil {
		c.values = make(map[string]any)
	}
}

// Child returns an isolated copy that shares the topic and conversation.
// Writes to the child are invisible here until Merge.
func (c *Context) Child() *Context {
	child := NewContext(c.topic, c.conv)
	child.values = c.Snapshot()
	return child
}

// Merge writes every value of other into c. Keys removed in other are kept.
func (c *Context) Merge(other *Context) {
	if other == nil || other == c {
		return
	}
	c.MergeMap(other.Snapshot())
}

// MergeMap writes values into c.
func (c *Context) MergeMap(values map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	maps.Copy(c.values, values)
}

// Global reads a conversation-wide value. A Context never hands out the
// conversation itself, so globals can only be written through a Promoter.
func (c *Context) Global(key string) (any, bool) {
	if c.conv == nil {
		return nil, false
	}
	return c.conv.Global(key)
}

// Globals returns a copy of the conversation globals, empty without a conversation.
func (c *Context) Globals() map[string]any {
	if c.conv == nil {
		return map[string]any{}
	}
	return c.conv.Globals()
}

// CallStack returns the conversation call stack, nil without a conversation.
func (c *Context) CallStack() *CallStack {
	if c.conv == nil {
		return nil
	}
	return c.conv.stack
}

// ConversationID returns the owning conversation id, empty without one.
func (c *Context) ConversationID() string {
	if c.conv == nil {
		return ""
	}
	return c.conv.id
}

// Get returns the value under key as T.
// ok is false when the key is missing or holds another type.
func Get[T any](c *Context, key string) (T, bool) {
	var zero T
	raw, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// GetOr returns the value under key as T, or def.
func GetOr[T any](c *Context, key string, def T) T {
	if v, ok := Get[T](c, key); ok {
		return v
	}
	return def
}

// Dump renders the context as indented JSON for debugging.
// Values that cannot be marshalled are skipped, never reported.
func Dump(c *Context) string {
	out := make(map[string]any)
	for k, v := range c.Snapshot() {
		if _, err := json.Marshal(v); err == nil {
			out[k] = v
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
