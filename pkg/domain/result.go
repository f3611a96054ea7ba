package domain

import "fmt"

// ResultKind tags the active variant of an ActivityResult.
type ResultKind string

const (
	ResultContinue        ResultKind = "continue"
	ResultWaitForInput    ResultKind = "wait_for_input"
	ResultWaitForSubTopic ResultKind = "wait_for_sub_topic"
	ResultEnd             ResultKind = "end"
	ResultCancelled       ResultKind = "cancelled"
)

// ActivityResult is what a single Run call reports back to its caller.
// Exactly one variant is active, selected by Kind; the remaining fields are
// only meaningful for the variants documented next to them.
type ActivityResult struct {
	Kind ResultKind `json:"kind"`

	// Message is an optional chat line (Continue, End).
	Message string `json:"message,omitempty"`

	// Model is an optional bound model (Continue).
	Model any `json:"model,omitempty"`

	// Payload is what the host should render while waiting (WaitForInput),
	// or the final data of a finished topic (End).
	Payload any `json:"payload,omitempty"`

	// Topic is the callee a WaitForSubTopic result is waiting on.
	Topic string `json:"topic,omitempty"`

	// Reason explains a Cancelled result.
	Reason string `json:"reason,omitempty"`
}

// Continue reports synchronous completion.
func Continue(message string, model any) ActivityResult {
	return ActivityResult{Kind: ResultContinue, Message: message, Model: model}
}

// WaitForInput suspends until external input is delivered.
func WaitForInput(payload any) ActivityResult {
	return ActivityResult{Kind: ResultWaitForInput, Payload: payload}
}

// WaitForSubTopic suspends until the named topic completes.
func WaitForSubTopic(topic string) ActivityResult {
	return ActivityResult{Kind: ResultWaitForSubTopic, Topic: topic}
}

// End finishes the owning topic immediately.
func End(payload any) ActivityResult {
	return ActivityResult{Kind: ResultEnd, Payload: payload}
}

// Cancelled reports a cooperative abort.
func Cancelled(reason string) ActivityResult {
	return ActivityResult{Kind: ResultCancelled, Reason: reason}
}

// IsWaiting is true only for WaitForInput and WaitForSubTopic.
func (r ActivityResult) IsWaiting() bool {
	return r.Kind == ResultWaitForInput || r.Kind == ResultWaitForSubTopic
}

func (r ActivityResult) String() string {
	switch r.Kind {
	case ResultWaitForSubTopic:
		return fmt.Sprintf("%s(%s)", r.Kind, r.Topic)
	case ResultCancelled:
		return fmt.Sprintf("%s(%s)", r.Kind, r.Reason)
	default:
		return string(r.Kind)
	}
}
