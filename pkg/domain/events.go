package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	// EventActivityLifecycle is published on every activity state change.
	EventActivityLifecycle EventType = "activity_lifecycle"
	// EventTopicLifecycle is published on every topic state change.
	EventTopicLifecycle EventType = "topic_lifecycle"
	// EventMessage carries a chat line ready for display.
	EventMessage EventType = "message"
	// EventCard carries a card payload ready for rendering.
	EventCard EventType = "card"
	// EventValidationFailed is published when a card submission is rejected.
	EventValidationFailed EventType = "validation_failed"
	// EventTopicTriggered asks the orchestrator to start another topic.
	EventTopicTriggered EventType = "topic_triggered"
	// EventCustom is an application-defined event (see EventTrigger).
	EventCustom EventType = "custom"
	// EventResetRequested asks the orchestrator for a full conversation reset.
	EventResetRequested EventType = "reset_requested"
)

// Event is the single envelope travelling on every bus.
// Fields beyond the base are populated according to Type.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Source is the ID of the activity (or topic) that raised the event.
	Source string `json:"source"`

	// Topic is filled in by the topic when it first sees the event.
	Topic string `json:"topic,omitempty"`

	// Lifecycle events.
	From ActivityState `json:"from,omitempty"`
	To   ActivityState `json:"to,omitempty"`

	TopicFrom TopicState `json:"topic_from,omitempty"`
	TopicTo   TopicState `json:"topic_to,omitempty"`

	// Message events.
	Message string `json:"message,omitempty"`

	// Card and validation-failed events.
	Card *CardPayload `json:"card,omitempty"`

	// Topic-triggered events.
	Trigger *TopicTrigger `json:"trigger,omitempty"`

	// Custom events.
	Name string `json:"name,omitempty"`
	Data any    `json:"data,omitempty"`
}

// TopicTrigger is the request carried by EventTopicTriggered.
type TopicTrigger struct {
	Caller            string         `json:"caller"`
	Target            string         `json:"target"`
	WaitForCompletion bool           `json:"wait_for_completion"`
	Args              map[string]any `json:"args,omitempty"`
}

// TopicEvent is the payload of topic-level lifecycle hooks.
type TopicEvent struct {
	Topic     string     `json:"topic"`
	From      TopicState `json:"from"`
	To        TopicState `json:"to"`
	Timestamp time.Time  `json:"timestamp"`
}

// ActivityEvent is the payload of activity-level lifecycle hooks.
type ActivityEvent struct {
	Topic      string        `json:"topic"`
	ActivityID string        `json:"activity_id"`
	From       ActivityState `json:"from"`
	To         ActivityState `json:"to"`
	Timestamp  time.Time     `json:"timestamp"`
}

// CallEvent is the payload of call-stack hooks.
type CallEvent struct {
	Frame CallFrame `json:"frame"`
	Depth int       `json:"depth"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnTopicTransition    func(context.Context, *TopicEvent)
	OnActivityTransition func(context.Context, *ActivityEvent)
	OnCallPush           func(context.Context, *CallEvent)
	OnCallPop            func(context.Context, *CallEvent)
	OnTurn               func(context.Context, *Turn, time.Duration)
}

// CombineHooks fans every callback out to each non-nil hook in order.
func CombineHooks(hooks ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	for _, h := range hooks {
		out.OnTopicTransition = chain(out.OnTopicTransition, h.OnTopicTransition)
		out.OnActivityTransition = chain(out.OnActivityTransition, h.OnActivityTransition)
		out.OnCallPush = chain(out.OnCallPush, h.OnCallPush)
		out.OnCallPop = chain(out.OnCallPop, h.OnCallPop)
		if prev, next := out.OnTurn, h.OnTurn; next != nil {
			if prev == nil {
				out.OnTurn = next
			} else {
				out.OnTurn = func(ctx context.Context, t *Turn, d time.Duration) {
					prev(ctx, t, d)
					next(ctx, t, d)
				}
			}
		}
	}
	return out
}

func chain[E any](prev, next func(context.Context, E)) func(context.Context, E) {
	switch {
	case next == nil:
		return prev
	case prev == nil:
		return next
	}
	return func(ctx context.Context, e E) {
		prev(ctx, e)
		next(ctx, e)
	}
}
