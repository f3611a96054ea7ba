// Package runtime drives a conversation across topics.
//
// The Orchestrator is the single owner of a conversation's control flow. On
// each turn it either hands input to the waiting topic or routes it to a new
// one through an IntentMatcher. It then settles what the step asked for:
// triggered topics are started (pausing the caller when the trigger waits),
// completed callees hand their results back through the call stack, and
// engine failures end the turn with a generic message and, when registered,
// an escalation topic.
package runtime
