package topic

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/aretw0/tendril/pkg/activity"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/events"
	"github.com/aretw0/tendril/pkg/workflow"
)

// Option configures a Topic.
type Option func(*Topic)

// WithDescription sets the text shown to intent matchers and hosts.
func WithDescription(d string) Option {
	return func(t *Topic) { t.description = d }
}

// WithKeywords sets the phrases the keyword matcher looks for.
func WithKeywords(keywords ...string) Option {
	return func(t *Topic) { t.keywords = append(t.keywords, keywords...) }
}

// WithActivities appends activities in order.
func WithActivities(acts ...activity.Activity) Option {
	return func(t *Topic) { t.pending = append(t.pending, acts...) }
}

// WithLogger sets the topic logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Topic) {
		if l != nil {
			t.logger = l
		}
	}
}

// Topic is a named, resumable sequence of activities sharing one context.
type Topic struct {
	name        string
	description string
	keywords    []string
	logger      *slog.Logger

	mu         sync.Mutex
	state      domain.TopicState
	activities []activity.Activity
	ids        map[string]bool
	cursor     int
	conv       *workflow.Conversation
	wc         *workflow.Context
	bus        *events.Bus
	subs       events.Group

	pending []activity.Activity
}

// New creates an Idle topic. Duplicate activity ids are a configuration error.
func New(name string, opts ...Option) (*Topic, error) {
	if name == "" {
		return nil, domain.NewConfigError("topic", "empty name")
	}
	t := &Topic{
		name:   name,
		logger: slog.New(slog.DiscardHandler),
		state:  domain.TopicIdle,
		ids:    make(map[string]bool),
		bus:    events.NewBus(),
		wc:     workflow.NewContext(name, nil),
	}
	for _, opt := range opts {
		opt(t)
	}
	acts := t.pending
	t.pending = nil
	for _, a := range acts {
		if err := t.Add(a); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add appends an activity and starts republishing its events on the topic bus.
func (t *Topic) Add(a activity.Activity) error {
	if a == nil {
		return domain.NewConfigError("topic", "%s: nil activity", t.name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ids[a.ID()] {
		return domain.NewConfigError("topic", "%s: duplicate activity id %q", t.name, a.ID())
	}
	t.ids[a.ID()] = true
	t.activities = append(t.activities, a)
	t.subs.Add(a.Events().SubscribeAll(t.republish))
	return nil
}

func (t *Topic) republish(e *domain.Event) {
	if e.Topic == "" {
		e.Topic = t.name
	}
	t.bus.Publish(e)
}

// Name returns the topic name.
func (t *Topic) Name() string { return t.name }

// Description returns the topic description.
func (t *Topic) Description() string { return t.description }

// Keywords returns the matcher keywords.
func (t *Topic) Keywords() []string { return slices.Clone(t.keywords) }

// Info returns the public description used by intent matchers.
func (t *Topic) Info() domain.TopicInfo {
	return domain.TopicInfo{Name: t.name, Description: t.description, Keywords: t.Keywords()}
}

// Events returns the topic bus. Every activity event is republished here,
// stamped with the topic name.
func (t *Topic) Events() *events.Bus { return t.bus }

// Activities returns the activity list.
func (t *Topic) Activities() []activity.Activity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.activities)
}

// State returns the topic state.
func (t *Topic) State() domain.TopicState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Cursor returns the index of the current activity.
func (t *Topic) Cursor() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

// Context returns the topic context of the current activation.
func (t *Topic) Context() *workflow.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wc
}

// Current returns the activity under the cursor, or nil past the end.
func (t *Topic) Current() activity.Activity {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cursor >= len(t.activities) {
		return nil
	}
	return t.activities[t.cursor]
}

// IsWaiting reports whether the topic is suspended.
func (t *Topic) IsWaiting() bool {
	return t.State() == domain.TopicWaitingForSubActivity
}

// Activate starts a fresh run: cursor 0, a new context bound to conv seeded
// with seed, every activity reset. A running topic is restarted silently.
func (t *Topic) Activate(conv *workflow.Conversation, seed map[string]any) error {
	t.mu.Lock()
	if t.state == domain.TopicRunning || t.state == domain.TopicWaitingForSubActivity {
		t.state = domain.TopicIdle
	}
	t.cursor = 0
	t.conv = conv
	t.wc = workflow.NewContext(t.name, conv)
	t.wc.Load(maps.Clone(seed))
	acts := slices.Clone(t.activities)
	t.mu.Unlock()

	for _, a := range acts {
		a.Reset()
	}
	t.logger.Debug("topic activated", "topic", t.name)
	return t.transition(domain.TopicRunning)
}

// Step delivers input to the waiting activity, if any, and runs forward until
// an activity suspends, the topic ends or something fails.
func (t *Topic) Step(ctx context.Context, input any) (domain.ActivityResult, error) {
	switch t.State() {
	case domain.TopicRunning:
	case domain.TopicWaitingForSubActivity:
		if err := t.transition(domain.TopicRunning); err != nil {
			return domain.ActivityResult{}, err
		}
	default:
		return domain.ActivityResult{}, fmt.Errorf("topic %q is %s: %w", t.name, t.State(), domain.ErrNoActiveTopic)
	}

	wc := t.Context()
	var last domain.ActivityResult
	for {
		act := t.Current()
		if act == nil {
			return t.complete(wc, last)
		}

		var in any
		if act.State().IsWaiting() {
			in, input = input, nil
		}
		res, err := act.Run(ctx, wc, in)
		if err != nil {
			act.Fail(err)
			t.logger.Error("activity failed", "topic", t.name, "activity", act.ID(), "error", err)
			if terr := t.transition(domain.TopicFailed); terr != nil {
				return domain.ActivityResult{}, terr
			}
			return domain.ActivityResult{}, &domain.ActivityError{Topic: t.name, ActivityID: act.ID(), Cause: err}
		}

		switch res.Kind {
		case domain.ResultWaitForInput, domain.ResultWaitForSubTopic:
			if err := t.transition(domain.TopicWaitingForSubActivity); err != nil {
				return domain.ActivityResult{}, err
			}
			return res, nil
		case domain.ResultEnd:
			return t.complete(wc, res)
		case domain.ResultCancelled:
			t.logger.Warn("activity cancelled", "topic", t.name, "activity", act.ID(), "reason", res.Reason)
			if err := t.transition(domain.TopicFailed); err != nil {
				return domain.ActivityResult{}, err
			}
			return res, nil
		}

		last = res
		t.mu.Lock()
		t.cursor++
		t.mu.Unlock()
	}
}

// complete ends the topic. The End payload is the context snapshot, overlaid
// with the final activity's payload when that is a map.
func (t *Topic) complete(wc *workflow.Context, res domain.ActivityResult) (domain.ActivityResult, error) {
	payload := wc.Snapshot()
	if extra, ok := res.Payload.(map[string]any); ok {
		maps.Copy(payload, extra)
	}
	t.mu.Lock()
	t.cursor = len(t.activities)
	t.mu.Unlock()
	if err := t.transition(domain.TopicCompleted); err != nil {
		return domain.ActivityResult{}, err
	}
	out := domain.End(payload)
	out.Message = res.Message
	return out, nil
}

// Reset forces the topic back to Idle with cursor 0, an empty context and
// every activity reset.
func (t *Topic) Reset() {
	t.mu.Lock()
	from := t.state
	t.state = domain.TopicIdle
	t.cursor = 0
	t.wc = workflow.NewContext(t.name, t.conv)
	acts := slices.Clone(t.activities)
	t.mu.Unlock()

	for _, a := range acts {
		a.Reset()
	}
	if from != domain.TopicIdle {
		t.publish(from, domain.TopicIdle)
	}
}

// Terminate fails the current activity and the topic.
func (t *Topic) Terminate() {
	if act := t.Current(); act != nil && !act.State().IsTerminal() && act.State() != domain.StateIdle {
		act.Terminate()
	}
	t.mu.Lock()
	from := t.state
	live := from == domain.TopicRunning || from == domain.TopicWaitingForSubActivity
	if live {
		t.state = domain.TopicFailed
	}
	t.mu.Unlock()
	if live {
		t.publish(from, domain.TopicFailed)
	}
}

// Close stops republishing activity events.
func (t *Topic) Close() {
	t.subs.Release()
}

// Snapshot exports the topic continuation.
func (t *Topic) Snapshot() domain.TopicSnapshot {
	t.mu.Lock()
	snap := domain.TopicSnapshot{Name: t.name, State: t.state, Cursor: t.cursor, Context: t.wc.Snapshot()}
	acts := slices.Clone(t.activities)
	t.mu.Unlock()
	for _, a := range acts {
		snap.Activities = append(snap.Activities, a.Snapshot())
	}
	return snap
}

func (t *Topic) transition(to domain.TopicState) error {
	t.mu.Lock()
	from := t.state
	if !slices.Contains(domain.TopicTransitions[from], to) {
		t.mu.Unlock()
		return fmt.Errorf("topic %q: %s -> %s: %w", t.name, from, to, domain.ErrInvalidTransition)
	}
	t.state = to
	t.mu.Unlock()
	t.publish(from, to)
	return nil
}

func (t *Topic) publish(from, to domain.TopicState) {
	t.bus.Publish(&domain.Event{
		Type:      domain.EventTopicLifecycle,
		Source:    t.name,
		Topic:     t.name,
		TopicFrom: from,
		TopicTo:   to,
	})
}
