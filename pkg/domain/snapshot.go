package domain

import "time"

// ActivitySnapshot is the explicit continuation record of an activity:
// what it is, where it stands and the private bookkeeping it needs to resume.
type ActivitySnapshot struct {
	ID           string             `json:"id"`
	Kind         string             `json:"kind"`
	State        ActivityState      `json:"state"`
	Continuation map[string]any     `json:"continuation,omitempty"`
	Children     []ActivitySnapshot `json:"children,omitempty"`
}

// TopicSnapshot captures a topic's cursor, state and context.
type TopicSnapshot struct {
	Name       string             `json:"name"`
	State      TopicState         `json:"state"`
	Cursor     int                `json:"cursor"`
	Context    map[string]any     `json:"context,omitempty"`
	Activities []ActivitySnapshot `json:"activities,omitempty"`
}

// ConversationSnapshot is the persisted view of one conversation.
type ConversationSnapshot struct {
	ID          string          `json:"id"`
	ActiveTopic string          `json:"active_topic,omitempty"`
	Paused      []string        `json:"paused,omitempty"`
	CallStack   []CallFrame     `json:"call_stack,omitempty"`
	Globals     map[string]any  `json:"globals,omitempty"`
	Topics      []TopicSnapshot `json:"topics,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewConversationSnapshot creates an empty snapshot for id.
func NewConversationSnapshot(id string) *ConversationSnapshot {
	return &ConversationSnapshot{
		ID:        id,
		Globals:   make(map[string]any),
		UpdatedAt: time.Now(),
	}
}
