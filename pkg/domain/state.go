package domain

import (
	"slices"
	"time"
)

// ActivityState is the lifecycle position of a single activity instance.
type ActivityState string

const (
	StateIdle                  ActivityState = "idle"
	StateCreated               ActivityState = "created"
	StateRunning               ActivityState = "running"
	StateRendered              ActivityState = "rendered"
	StateWaitingForUserInput   ActivityState = "waiting_for_user_input"
	StateWaitingForSubActivity ActivityState = "waiting_for_sub_activity"
	StateInputCollected        ActivityState = "input_collected"
	StateValidationFailed      ActivityState = "validation_failed"
	StateCompleted             ActivityState = "completed"
	StateFailed                ActivityState = "failed"
)

// IsTerminal reports whether no transition may leave this state.
func (s ActivityState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// IsWaiting reports whether the activity is suspended on an external event.
func (s ActivityState) IsWaiting() bool {
	return s == StateWaitingForUserInput || s == StateWaitingForSubActivity
}

// TransitionTable lists, per state, the states an activity may move to.
// Terminal states must not appear as keys.
type TransitionTable map[ActivityState][]ActivityState

// Allows reports whether from -> to is a legal move.
func (t TransitionTable) Allows(from, to ActivityState) bool {
	if from.IsTerminal() {
		return false
	}
	return slices.Contains(t[from], to)
}

// Extend returns a copy of t with extra edges merged in.
func (t TransitionTable) Extend(extra TransitionTable) TransitionTable {
	out := make(TransitionTable, len(t)+len(extra))
	for from, to := range t {
		out[from] = slices.Clone(to)
	}
	for from, to := range extra {
		for _, s := range to {
			if !slices.Contains(out[from], s) {
				out[from] = append(out[from], s)
			}
		}
	}
	return out
}

// DefaultTransitions is the table shared by every activity.
// Concrete activities extend it with their narrow edges.
var DefaultTransitions = TransitionTable{
	StateIdle:    {StateCreated},
	StateCreated: {StateRunning, StateFailed},
	StateRunning: {
		StateRendered,
		StateWaitingForUserInput,
		StateWaitingForSubActivity,
		StateCompleted,
		StateFailed,
	},
	StateRendered:              {StateWaitingForUserInput, StateCompleted, StateFailed},
	StateWaitingForUserInput:   {StateRunning, StateInputCollected, StateCompleted, StateFailed},
	StateWaitingForSubActivity: {StateRunning, StateCompleted, StateFailed},
}

// StateChange records one transition of an activity.
type StateChange struct {
	From ActivityState `json:"from"`
	To   ActivityState `json:"to"`
	At   time.Time     `json:"at"`
}

// TopicState is the lifecycle position of a topic.
type TopicState string

const (
	TopicIdle                  TopicState = "idle"
	TopicRunning               TopicState = "running"
	TopicWaitingForSubActivity TopicState = "waiting_for_sub_activity"
	TopicCompleted             TopicState = "completed"
	TopicFailed                TopicState = "failed"
)

// TopicTransitions is the topic state machine. Completed and Failed topics
// only leave their state through an explicit activation or reset.
var TopicTransitions = map[TopicState][]TopicState{
	TopicIdle:                  {TopicRunning},
	TopicRunning:               {TopicWaitingForSubActivity, TopicCompleted, TopicFailed},
	TopicWaitingForSubActivity: {TopicRunning, TopicCompleted, TopicFailed},
	TopicCompleted:             {TopicRunning},
	TopicFailed:                {TopicRunning},
}
