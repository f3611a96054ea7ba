package activity

import (
	"slices"
	"sync"
	"time"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/events"
)

// Base carries the state machine every activity shares.
// Concrete activities embed it and call init from their constructor.
type Base struct {
	id   string
	kind string

	mu      sync.Mutex
	state   domain.ActivityState
	table   domain.TransitionTable
	history []domain.StateChange
	last    domain.ActivityResult

	bus *events.Bus
	now func() time.Time
}

func (b *Base) init(id, kind string, table domain.TransitionTable) {
	b.id = id
	b.kind = kind
	b.state = domain.StateIdle
	b.table = table
	b.bus = events.NewBus()
	b.now = time.Now
}

// ID returns the immutable activity identifier.
func (b *Base) ID() string { return b.id }

// Kind returns the activity kind.
func (b *Base) Kind() string { return b.kind }

// Events returns the activity bus.
func (b *Base) Events() *events.Bus { return b.bus }

// State returns the current state.
func (b *Base) State() domain.ActivityState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// History returns the recorded transitions, oldest first.
func (b *Base) History() []domain.StateChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.history)
}

// Capabilities returns the plain descriptor. Activities with handlers override it.
func (b *Base) Capabilities() Capabilities {
	return Capabilities{Kind: b.kind}
}

// Transition moves to the given state or returns a *domain.TransitionError.
func (b *Base) Transition(to domain.ActivityState) error {
	b.mu.Lock()
	from := b.state
	if !b.table.Allows(from, to) {
		b.mu.Unlock()
		return &domain.TransitionError{ActivityID: b.id, From: from, To: to}
	}
	b.set(from, to)
	b.mu.Unlock()

	b.publishLifecycle(from, to)
	return nil
}

// Walk applies several transitions in order, stopping at the first error.
func (b *Base) Walk(states ...domain.ActivityState) error {
	for _, s := range states {
		if err := b.Transition(s); err != nil {
			return err
		}
	}
	return nil
}

// Enter brings the activity to Running from wherever Run may legally start.
func (b *Base) Enter() error {
	switch b.State() {
	case domain.StateRunning:
		return nil
	case domain.StateIdle:
		return b.Walk(domain.StateCreated, domain.StateRunning)
	default:
		return b.Transition(domain.StateRunning)
	}
}

// Replay returns the cached outcome of a finished activity.
func (b *Base) Replay() (domain.ActivityResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case domain.StateCompleted:
		return b.last, true
	case domain.StateFailed:
		if b.last.Kind == "" {
			return domain.Cancelled("activity failed"), true
		}
		return b.last, true
	default:
		return domain.ActivityResult{}, false
	}
}

// Finish records res and moves to the matching terminal state.
func (b *Base) Finish(res domain.ActivityResult) (domain.ActivityResult, error) {
	to := domain.StateCompleted
	if res.Kind == domain.ResultCancelled {
		to = domain.StateFailed
	}
	if err := b.Transition(to); err != nil {
		return domain.ActivityResult{}, err
	}
	b.mu.Lock()
	b.last = res
	b.mu.Unlock()
	return res, nil
}

// Await moves into a waiting state and returns res.
func (b *Base) Await(state domain.ActivityState, res domain.ActivityResult) (domain.ActivityResult, error) {
	if b.State() != state {
		if err := b.Transition(state); err != nil {
			return domain.ActivityResult{}, err
		}
	}
	return res, nil
}

// Cancel aborts cooperatively, usually because ctx is done.
func (b *Base) Cancel(cause error) (domain.ActivityResult, error) {
	return b.Finish(domain.Cancelled(cause.Error()))
}

// Fail forces the Failed state. It bypasses the table: failure may strike from any live state.
func (b *Base) Fail(cause error) {
	b.mu.Lock()
	from := b.state
	if from.IsTerminal() {
		b.mu.Unlock()
		return
	}
	b.set(from, domain.StateFailed)
	if cause != nil {
		b.last = domain.Cancelled(cause.Error())
	}
	b.mu.Unlock()

	b.publishLifecycle(from, domain.StateFailed)
}

// Terminate marks the activity Failed if it is still live.
func (b *Base) Terminate() {
	b.Fail(nil)
}

// Reset drops state, history and cached result.
func (b *Base) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = domain.StateIdle
	b.history = nil
	b.last = domain.ActivityResult{}
}

// Snapshot exports the bare continuation record.
func (b *Base) Snapshot() domain.ActivitySnapshot {
	return domain.ActivitySnapshot{ID: b.id, Kind: b.kind, State: b.State()}
}

// Say publishes a chat message.
func (b *Base) Say(text string) {
	if text == "" {
		return
	}
	b.Publish(&domain.Event{Type: domain.EventMessage, Message: text})
}

// Publish stamps the source and publishes e on the activity bus.
func (b *Base) Publish(e *domain.Event) {
	if e.Source == "" {
		e.Source = b.id
	}
	b.bus.Publish(e)
}

func (b *Base) set(from, to domain.ActivityState) {
	b.state = to
	b.history = append(b.history, domain.StateChange{From: from, To: to, At: b.now()})
}

func (b *Base) publishLifecycle(from, to domain.ActivityState) {
	b.Publish(&domain.Event{Type: domain.EventActivityLifecycle, From: from, To: to})
}
