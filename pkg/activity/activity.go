package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/events"
	"github.com/aretw0/tendril/pkg/workflow"
)

// Activity kinds reported in capabilities and snapshots.
const (
	KindSimple       = "simple"
	KindMessage      = "message"
	KindDelay        = "delay"
	KindEnd          = "end"
	KindReset        = "reset"
	KindTriggerTopic = "trigger_topic"
	KindEventTrigger = "event_trigger"
	KindSetVariable  = "set_variable"
	KindPrompt       = "prompt"
	KindSave         = "save"
	KindCard         = "card"
	KindComposite    = "composite"
	KindConditional  = "conditional"
	KindRepeat       = "repeat"
	KindForEach      = "foreach"
	KindParallel     = "parallel"
	KindSwitch       = "switch"
)

// Activity is one executable, stateful step of a topic.
//
// Run is invoked with a nil input the first time and with the resume input
// afterwards; a suspended activity is always resumed on the same instance.
type Activity interface {
	ID() string
	State() domain.ActivityState
	History() []domain.StateChange
	Events() *events.Bus
	Capabilities() Capabilities

	Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error)

	// Fail marks the activity Failed unless it already is terminal.
	Fail(cause error)
	// Reset forces the activity back to Idle and drops its continuation.
	Reset()
	// Terminate marks the activity Failed and releases its subscriptions.
	Terminate()
	// Snapshot exports the continuation record.
	Snapshot() domain.ActivitySnapshot
}

// Decorator rewrites a card right before it is published.
type Decorator func(domain.CardPayload) domain.CardPayload

// Capabilities describes what an activity can do. Containers read it instead
// of type-switching on concrete activities.
type Capabilities struct {
	Kind           string
	Container      bool
	EmitsCards     bool
	TriggersTopics bool
	AwaitsInput    bool

	// Decorate installs (or, with nil, removes) a card decorator.
	Decorate func(Decorator)
	// Rerender publishes a clean copy of the pending card.
	Rerender func(ctx context.Context, wc *workflow.Context) (domain.ActivityResult, error)
	// Deadline reports when a pending wait expires.
	Deadline func() (time.Time, bool)
}

// Factory builds a fresh child activity.
type Factory func() (Activity, error)

// Static wraps an existing activity as a factory. The same instance is
// returned every time, reset first.
func Static(a Activity) Factory {
	return func() (Activity, error) {
		a.Reset()
		return a, nil
	}
}

func build(owner string, f Factory) (Activity, error) {
	if f == nil {
		return nil, domain.NewConfigError(owner, "nil factory")
	}
	child, err := f()
	if err != nil {
		return nil, fmt.Errorf("%s: build child: %w", owner, err)
	}
	if child == nil {
		return nil, domain.NewConfigError(owner, "factory returned nil activity")
	}
	return child, nil
}

func checkChildren(kind, id string, children []Activity) error {
	if id == "" {
		return domain.NewConfigError(kind, "empty id")
	}
	seen := make(map[string]bool, len(children))
	for i, c := range children {
		if c == nil {
			return domain.NewConfigError(kind, "%s: child %d is nil", id, i)
		}
		if seen[c.ID()] {
			return domain.NewConfigError(kind, "%s: duplicate child id %q", id, c.ID())
		}
		seen[c.ID()] = true
	}
	return nil
}

// continuation serializes a state struct into the snapshot map form.
func continuation(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func waitingState(res domain.ActivityResult) domain.ActivityState {
	if res.Kind == domain.ResultWaitForSubTopic {
		return domain.StateWaitingForSubActivity
	}
	return domain.StateWaitingForUserInput
}

func toMap(input any) map[string]any {
	switch v := input.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	default:
		return map[string]any{"value": v}
	}
}
