package workflow

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/tendril/pkg/domain"
)

// CallStack is the ordered list of pending wait-for-completion calls.
// Frames themselves are immutable; the stack only appends and removes.
type CallStack struct {
	mu     sync.RWMutex
	frames []domain.CallFrame
	now    func() time.Time
}

// NewCallStack creates an empty stack.
func NewCallStack() *CallStack {
	return &CallStack{now: time.Now}
}

// Push appends a frame for caller -> callee unless it would create a cycle.
func (s *CallStack) Push(caller, callee string, payload map[string]any) (domain.CallFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if domain.WouldCycle(s.frames, caller, callee) {
		return domain.CallFrame{}, fmt.Errorf("%s -> %s: %w", caller, callee, domain.ErrCircularCall)
	}
	frame := domain.NewCallFrame(caller, callee, payload, s.now())
	s.frames = append(s.frames, frame)
	return frame, nil
}

// WouldCycle runs the cycle check against the current frames without pushing.
func (s *CallStack) WouldCycle(caller, callee string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.WouldCycle(s.frames, caller, callee)
}

// Pop removes the most recent frame whose callee is callee.
func (s *CallStack) Pop(callee string) (domain.CallFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].Callee == callee {
			frame := s.frames[i]
			s.frames = slices.Delete(s.frames, i, i+1)
			return frame, true
		}
	}
	return domain.CallFrame{}, false
}

// Retarget moves the frame waiting on oldCallee onto newCallee, keeping its
// caller and payload. It is used when a callee hands off to another topic.
func (s *CallStack) Retarget(oldCallee, newCallee string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].Callee == oldCallee {
			f := s.frames[i]
			s.frames[i] = domain.NewCallFrame(f.Caller, newCallee, f.ResumePayload, f.StartedAt)
			return true
		}
	}
	return false
}

// Peek returns the top frame.
func (s *CallStack) Peek() (domain.CallFrame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.frames) == 0 {
		return domain.CallFrame{}, false
	}
	return s.frames[len(s.frames)-1], true
}

// FrameFor returns the frame waiting on callee, if any.
func (s *CallStack) FrameFor(callee string) (domain.CallFrame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].Callee == callee {
			return s.frames[i], true
		}
	}
	return domain.CallFrame{}, false
}

// Frames returns a copy of the frames, bottom first.
func (s *CallStack) Frames() []domain.CallFrame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.frames)
}

// Depth returns the number of frames.
func (s *CallStack) Depth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}

// Clear drops every frame.
func (s *CallStack) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
}

func (s *CallStack) restore(frames []domain.CallFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = slices.Clone(frames)
}
