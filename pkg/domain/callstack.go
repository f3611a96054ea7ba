package domain

import (
	"maps"
	"time"
)

// CallFrame records that Caller handed control to Callee and waits for it.
// Frames are values; nothing mutates a frame after it is created.
type CallFrame struct {
	Caller        string         `json:"caller"`
	Callee        string         `json:"callee"`
	ResumePayload map[string]any `json:"resume_payload,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
}

// NewCallFrame copies payload so later writes by the caller cannot leak into the frame.
func NewCallFrame(caller, callee string, payload map[string]any, at time.Time) CallFrame {
	return CallFrame{
		Caller:        caller,
		Callee:        callee,
		ResumePayload: maps.Clone(payload),
		StartedAt:     at,
	}
}

// WouldCycle reports whether caller triggering callee in wait mode would
// re-enter a topic that is already part of the active call chain.
func WouldCycle(frames []CallFrame, caller, callee string) bool {
	if callee == caller {
		return true
	}
	for _, f := range frames {
		if f.Caller == callee || f.Callee == callee {
			return true
		}
	}
	return false
}
