package domain

// Well-known context keys and field names.
const (
	// KeyContinue is the card field Repeat uses for its "add another?" decision.
	KeyContinue = "continue"

	// KeyLastError is where the orchestrator leaves a description of the last engine failure.
	KeyLastError = "last_error"

	// DefaultFallbackTopic is used when no topic matches the user's input.
	DefaultFallbackTopic = "fallback"

	// DefaultEscalationTopic is started after an engine failure when registered.
	DefaultEscalationTopic = "escalation"
)

// StopTokens end a continue-prompt Repeat (case-insensitive exact match).
var StopTokens = []string{"stop", "no", "done", "finished", "exit"}

// Timeout is the input the orchestrator delivers to an activity whose deadline passed.
type Timeout struct{}
