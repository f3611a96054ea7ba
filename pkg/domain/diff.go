package domain

import (
	"reflect"
	"slices"
)

// SnapshotDiff represents the changes between two conversation snapshots.
// It is designed to be serialized to JSON for partial updates on the client.
type SnapshotDiff struct {
	// ConversationID is always present to identify the target.
	ConversationID string `json:"conversation_id"`

	ActiveTopic *string `json:"active_topic,omitempty"`

	// Globals contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Globals map[string]any `json:"globals,omitempty"`

	// CallStack is the full stack, sent only when it changed.
	CallStack *[]CallFrame `json:"call_stack,omitempty"`

	// Topics lists the topics whose state or cursor moved.
	Topics []TopicDelta `json:"topics,omitempty"`
}

// TopicDelta is the visible movement of one topic.
type TopicDelta struct {
	Name   string     `json:"name"`
	State  TopicState `json:"state"`
	Cursor int        `json:"cursor"`
}

// Diff calculates the difference between old and new.
// If old is nil, it returns a diff representing the entire new snapshot (initial load).
// It returns nil when nothing changed.
func Diff(old, new *ConversationSnapshot) *SnapshotDiff {
	if new == nil {
		return nil
	}

	diff := &SnapshotDiff{ConversationID: new.ID}

	if old == nil || old.ActiveTopic != new.ActiveTopic {
		active := new.ActiveTopic
		diff.ActiveTopic = &active
	}

	diff.Globals = diffGlobals(old, new)

	if old == nil || !reflect.DeepEqual(old.CallStack, new.CallStack) {
		if old != nil || len(new.CallStack) > 0 {
			stack := slices.Clone(new.CallStack)
			diff.CallStack = &stack
		}
	}

	diff.Topics = diffTopics(old, new)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffGlobals(old, new *ConversationSnapshot) map[string]any {
	delta := make(map[string]any)

	if old == nil {
		for k, v := range new.Globals {
			delta[k] = v
		}
	} else {
		for k, newVal := range new.Globals {
			oldVal, exists := old.Globals[k]
			if !exists || !reflect.DeepEqual(oldVal, newVal) {
				delta[k] = newVal
			}
		}
		for k := range old.Globals {
			if _, exists := new.Globals[k]; !exists {
				delta[k] = nil
			}
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

func diffTopics(old, new *ConversationSnapshot) []TopicDelta {
	previous := make(map[string]TopicSnapshot)
	if old != nil {
		for _, t := range old.Topics {
			previous[t.Name] = t
		}
	}

	var out []TopicDelta
	for _, t := range new.Topics {
		before, seen := previous[t.Name]
		if seen && before.State == t.State && before.Cursor == t.Cursor {
			continue
		}
		if !seen && t.State == TopicIdle && t.Cursor == 0 {
			continue
		}
		out = append(out, TopicDelta{Name: t.Name, State: t.State, Cursor: t.Cursor})
	}
	return out
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SnapshotDiff) IsEmpty() bool {
	return d.ActiveTopic == nil &&
		len(d.Globals) == 0 &&
		d.CallStack == nil &&
		len(d.Topics) == 0
}
