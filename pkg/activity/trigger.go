package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/workflow"
)

// TriggerOption configures a TriggerTopic.
type TriggerOption func(*TriggerTopic)

// WaitForCompletion suspends the caller until the target topic completes.
func WaitForCompletion() TriggerOption {
	return func(t *TriggerTopic) { t.wait = true }
}

// WithArgs computes the values handed to the target topic. In wait mode they
// are also the frame's resume payload.
func WithArgs(fn func(*workflow.Context) map[string]any) TriggerOption {
	return func(t *TriggerTopic) { t.args = fn }
}

// WithResultKey stores the callee result under key instead of merging it into the context.
func WithResultKey(key string) TriggerOption {
	return func(t *TriggerTopic) { t.resultKey = key }
}

// TriggerState is the continuation of a TriggerTopic.
type TriggerState struct {
	Pushed    bool `json:"pushed"`
	Prevented bool `json:"prevented"`
}

// TriggerTopic hands control to another topic.
type TriggerTopic struct {
	Base
	target    string
	wait      bool
	args      func(*workflow.Context) map[string]any
	resultKey string
	st        TriggerState
}

// NewTriggerTopic creates a trigger for target. Without WaitForCompletion the
// caller topic is abandoned once the trigger fires.
func NewTriggerTopic(id, target string, opts ...TriggerOption) (*TriggerTopic, error) {
	if id == "" || target == "" {
		return nil, domain.NewConfigError(KindTriggerTopic, "id and target are required")
	}
	t := &TriggerTopic{target: target}
	for _, opt := range opts {
		opt(t)
	}
	t.init(id, KindTriggerTopic, domain.DefaultTransitions)
	return t, nil
}

// Target returns the topic this activity triggers.
func (t *TriggerTopic) Target() string { return t.target }

// Waits reports whether the caller is suspended until the target completes.
func (t *TriggerTopic) Waits() bool { return t.wait }

// Run fires the trigger, or on resume takes in the callee's result.
func (t *TriggerTopic) Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	if res, done := t.Replay(); done {
		return res, nil
	}

	if t.State() == domain.StateWaitingForSubActivity {
		if err := t.Enter(); err != nil {
			return domain.ActivityResult{}, err
		}
		payload := toMap(input)
		if t.resultKey != "" {
			wc.Set(t.resultKey, payload)
		} else {
			wc.MergeMap(payload)
		}
		return t.Finish(domain.Continue("", payload))
	}

	if err := t.Enter(); err != nil {
		return domain.ActivityResult{}, err
	}

	caller := wc.TopicName()
	var args map[string]any
	if t.args != nil {
		args = t.args(wc)
	}
	trigger := &domain.TopicTrigger{
		Caller:            caller,
		Target:            t.target,
		WaitForCompletion: t.wait,
		Args:              args,
	}

	if !t.wait {
		t.Publish(&domain.Event{Type: domain.EventTopicTriggered, Trigger: trigger})
		return t.Finish(domain.End(nil))
	}

	stack := wc.CallStack()
	if stack == nil {
		return domain.ActivityResult{}, domain.NewConfigError(KindTriggerTopic, "%s: wait mode needs a conversation", t.ID())
	}
	if _, err := stack.Push(caller, t.target, args); err != nil {
		if !errors.Is(err, domain.ErrCircularCall) {
			return domain.ActivityResult{}, err
		}
		t.st.Prevented = true
		msg := fmt.Sprintf("circular call prevented: %s -> %s", caller, t.target)
		t.Say(msg)
		return t.Finish(domain.Continue(msg, nil))
	}
	t.st.Pushed = true
	t.Publish(&domain.Event{Type: domain.EventTopicTriggered, Trigger: trigger})
	return t.Await(domain.StateWaitingForSubActivity, domain.WaitForSubTopic(t.target))
}

// Capabilities marks the activity as a topic trigger.
func (t *TriggerTopic) Capabilities() Capabilities {
	return Capabilities{Kind: KindTriggerTopic, TriggersTopics: true}
}

// Reset clears the continuation.
func (t *TriggerTopic) Reset() {
	t.Base.Reset()
	t.st = TriggerState{}
}

// Snapshot includes the trigger continuation.
func (t *TriggerTopic) Snapshot() domain.ActivitySnapshot {
	snap := t.Base.Snapshot()
	snap.Continuation = continuation(t.st)
	return snap
}

// EventTriggerOption configures an EventTrigger.
type EventTriggerOption func(*EventTrigger)

// AwaitResponse waits up to timeout for the host to answer the event.
func AwaitResponse(timeout time.Duration) EventTriggerOption {
	return func(e *EventTrigger) { e.timeout = timeout }
}

// ResponseKey is where the host's answer is stored.
func ResponseKey(key string) EventTriggerOption {
	return func(e *EventTrigger) { e.responseKey = key }
}

// WithEventData computes the event data at run time.
func WithEventData(fn func(*workflow.Context) any) EventTriggerOption {
	return func(e *EventTrigger) { e.data = fn }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) EventTriggerOption {
	return func(e *EventTrigger) { e.now = now }
}

// EventTriggerState is the continuation of an EventTrigger.
type EventTriggerState struct {
	Deadline time.Time `json:"deadline"`
}

// EventTrigger publishes an application event and optionally waits, bounded, for a reply.
type EventTrigger struct {
	Base
	name        string
	data        func(*workflow.Context) any
	timeout     time.Duration
	responseKey string
	st          EventTriggerState
}

// NewEventTrigger creates a trigger for the custom event name.
func NewEventTrigger(id, name string, opts ...EventTriggerOption) (*EventTrigger, error) {
	if id == "" || name == "" {
		return nil, domain.NewConfigError(KindEventTrigger, "id and event name are required")
	}
	e := &EventTrigger{}
	e.init(id, KindEventTrigger, domain.DefaultTransitions)
	e.name = name
	for _, opt := range opts {
		opt(e)
	}
	if e.timeout < 0 {
		return nil, domain.NewConfigError(KindEventTrigger, "%s: negative timeout", id)
	}
	e.responseKey = orKey(e.responseKey, id+".response")
	return e, nil
}

// Name returns the custom event name.
func (e *EventTrigger) Name() string { return e.name }

// Timeout returns the response wait, zero when the trigger does not await.
func (e *EventTrigger) Timeout() time.Duration { return e.timeout }

// Run publishes the event; in await mode a later delivery is the host's answer
// and a domain.Timeout delivery, or any delivery past the deadline, fails it.
func (e *EventTrigger) Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	if res, done := e.Replay(); done {
		return res, nil
	}

	if e.State() == domain.StateWaitingForUserInput {
		if err := e.Enter(); err != nil {
			return domain.ActivityResult{}, err
		}
		_, timedOut := input.(domain.Timeout)
		if timedOut || !e.now().Before(e.st.Deadline) {
			e.Say(fmt.Sprintf("No response to %s arrived in time.", e.name))
			return e.Finish(domain.Cancelled(domain.ErrTimeout.Error()))
		}
		wc.Set(e.responseKey, input)
		return e.Finish(domain.Continue("", input))
	}

	if err := e.Enter(); err != nil {
		return domain.ActivityResult{}, err
	}
	var data any
	if e.data != nil {
		data = e.data(wc)
	}
	e.Publish(&domain.Event{Type: domain.EventCustom, Name: e.name, Data: data})

	if e.timeout == 0 {
		return e.Finish(domain.Continue("", nil))
	}
	e.st.Deadline = e.now().Add(e.timeout)
	return e.Await(domain.StateWaitingForUserInput, domain.WaitForInput(domain.InputRequest{Prompt: e.name}))
}

// Capabilities exposes the wait deadline.
func (e *EventTrigger) Capabilities() Capabilities {
	return Capabilities{
		Kind:        KindEventTrigger,
		AwaitsInput: e.timeout > 0,
		Deadline:    e.deadline,
	}
}

func (e *EventTrigger) deadline() (time.Time, bool) {
	if e.State() != domain.StateWaitingForUserInput || e.st.Deadline.IsZero() {
		return time.Time{}, false
	}
	return e.st.Deadline, true
}

// Reset clears the deadline.
func (e *EventTrigger) Reset() {
	e.Base.Reset()
	e.st = EventTriggerState{}
}

// Snapshot includes the deadline.
func (e *EventTrigger) Snapshot() domain.ActivitySnapshot {
	snap := e.Base.Snapshot()
	snap.Continuation = continuation(e.st)
	return snap
}
