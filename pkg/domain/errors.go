package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is wrapped by every TransitionError.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrConfiguration marks a misconfigured activity, topic or engine.
var ErrConfiguration = errors.New("configuration error")

// ErrNoBranch is returned when a conditional selects a label with no factory and no default exists.
var ErrNoBranch = errors.New("no branch matches and no default branch configured")

// ErrTopicNotFound is returned when a topic name cannot be resolved.
var ErrTopicNotFound = errors.New("topic not found")

// ErrCircularCall is reported when a wait-for-completion trigger would re-enter a topic on the call stack.
var ErrCircularCall = errors.New("circular call prevented")

// ErrTimeout is the reason recorded when a bounded wait expires.
var ErrTimeout = errors.New("timed out waiting for response")

// ErrNoActiveTopic is returned when a delivery targets a conversation with nothing running.
var ErrNoActiveTopic = errors.New("no active topic")

// ErrSessionNotFound is returned when a conversation ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// TransitionError describes an illegal state change attempted by an activity author.
type TransitionError struct {
	ActivityID string
	From       ActivityState
	To         ActivityState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("activity %q: %s -> %s: %v", e.ActivityID, e.From, e.To, ErrInvalidTransition)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// ConfigError describes a fail-fast configuration problem.
type ConfigError struct {
	Component string
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration, e.Component, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// NewConfigError is a shorthand for &ConfigError{...}.
func NewConfigError(component, format string, args ...any) error {
	return &ConfigError{Component: component, Reason: fmt.Sprintf(format, args...)}
}

// ActivityError attributes an unhandled failure to the activity and topic it escaped from.
type ActivityError struct {
	Topic      string
	ActivityID string
	Cause      error
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("topic %q activity %q failed: %v", e.Topic, e.ActivityID, e.Cause)
}

func (e *ActivityError) Unwrap() error {
	return e.Cause
}
