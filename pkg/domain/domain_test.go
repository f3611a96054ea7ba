package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable_TerminalStatesHaveNoExits(t *testing.T) {
	table := DefaultTransitions.Extend(TransitionTable{
		StateCompleted: {StateRunning},
	})

	assert.False(t, table.Allows(StateCompleted, StateRunning), "completed must stay terminal even if a table lists an exit")
	assert.False(t, table.Allows(StateFailed, StateIdle))
	assert.True(t, table.Allows(StateIdle, StateCreated))
	assert.False(t, table.Allows(StateIdle, StateRunning))
}

func TestTransitionTable_ExtendDoesNotMutateBase(t *testing.T) {
	before := len(DefaultTransitions[StateRendered])
	_ = DefaultTransitions.Extend(TransitionTable{StateRendered: {StateValidationFailed}})
	assert.Len(t, DefaultTransitions[StateRendered], before)
}

func TestActivityResult_IsWaiting(t *testing.T) {
	assert.True(t, WaitForInput(nil).IsWaiting())
	assert.True(t, WaitForSubTopic("quote").IsWaiting())
	assert.False(t, Continue("", nil).IsWaiting())
	assert.False(t, End(nil).IsWaiting())
	assert.False(t, Cancelled("x").IsWaiting())
}

func TestWouldCycle(t *testing.T) {
	frames := []CallFrame{
		{Caller: "main", Callee: "quote"},
		{Caller: "quote", Callee: "address"},
	}

	assert.True(t, WouldCycle(frames, "address", "main"))
	assert.True(t, WouldCycle(frames, "address", "quote"))
	assert.True(t, WouldCycle(nil, "main", "main"), "self trigger is always a cycle")
	assert.False(t, WouldCycle(frames, "address", "payment"))
}

func TestNewCallFrame_CopiesPayload(t *testing.T) {
	payload := map[string]any{"a": 1}
	frame := NewCallFrame("x", "y", payload, time.Now())
	payload["a"] = 2
	assert.Equal(t, 1, frame.ResumePayload["a"])
}

func TestErrors_Unwrap(t *testing.T) {
	err := &TransitionError{ActivityID: "card", From: StateIdle, To: StateCompleted}
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	cfg := NewConfigError("conditional", "no factory for %q", "x")
	assert.True(t, errors.Is(cfg, ErrConfiguration))
	assert.Contains(t, cfg.Error(), `no factory for "x"`)
}

func TestCardPayload_CloneIsDeep(t *testing.T) {
	card := CardPayload{
		CardID:   "c",
		Document: map[string]any{"body": map[string]any{"title": "Hi"}},
		Errors:   map[string][]string{"name": {"required"}},
	}
	cp := card.Clone()
	cp.Document["body"].(map[string]any)["title"] = "Changed"
	cp.Errors["name"][0] = "other"

	assert.Equal(t, "Hi", card.Document["body"].(map[string]any)["title"])
	assert.Equal(t, "required", card.Errors["name"][0])
}

func TestCombineHooks(t *testing.T) {
	var order []string
	a := LifecycleHooks{
		OnCallPush: func(context.Context, *CallEvent) { order = append(order, "a.push") },
		OnTurn:     func(context.Context, *Turn, time.Duration) { order = append(order, "a.turn") },
	}
	b := LifecycleHooks{
		OnCallPush:        func(context.Context, *CallEvent) { order = append(order, "b.push") },
		OnTopicTransition: func(context.Context, *TopicEvent) { order = append(order, "b.topic") },
	}
	h := CombineHooks(a, LifecycleHooks{}, b)
	ctx := context.Background()

	h.OnCallPush(ctx, &CallEvent{})
	h.OnTopicTransition(ctx, &TopicEvent{})
	h.OnTurn(ctx, &Turn{}, 0)
	assert.Nil(t, h.OnCallPop)
	assert.Equal(t, []string{"a.push", "b.push", "b.topic", "a.turn"}, order)
}
