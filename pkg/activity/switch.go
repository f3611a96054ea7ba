package activity

import (
	"context"
	"fmt"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/workflow"
)

// SwitchState is the continuation of a Switch.
type SwitchState struct {
	Case       string `json:"case,omitempty"`
	Iterations int    `json:"iterations"`
}

// Switch dispatches on a string label. With Loop it re-evaluates the selector
// after each case completes and stops once no case matches. The Default branch
// applies only to the first evaluation.
type Switch struct {
	Base
	selector func(*workflow.Context) string
	cases    map[string]Factory
	opts     containerOptions
	st       SwitchState
	slot     slot
}

// NewSwitch creates a switch over cases.
func NewSwitch(id string, selector func(*workflow.Context) string, cases map[string]Factory, opts ...ContainerOption) (*Switch, error) {
	if id == "" || selector == nil {
		return nil, domain.NewConfigError(KindSwitch, "id and selector are required")
	}
	for label, f := range cases {
		if f == nil {
			return nil, domain.NewConfigError(KindSwitch, "%s: nil factory for case %q", id, label)
		}
	}
	o := applyOptions(opts)
	if o.loop && o.maxIterations <= 0 {
		return nil, domain.NewConfigError(KindSwitch, "%s: max iterations must be positive", id)
	}
	s := &Switch{selector: selector, cases: cases, opts: o}
	s.init(id, KindSwitch, domain.DefaultTransitions)
	return s, nil
}

// SwitchOn selects on the string form of a context value.
func SwitchOn(key string) func(*workflow.Context) string {
	return func(wc *workflow.Context) string {
		v, ok := wc.Get(key)
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}
}

// Run evaluates the selector and runs the matching case.
func (s *Switch) Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	if res, done := s.Replay(); done {
		return res, nil
	}
	if err := s.Enter(); err != nil {
		return domain.ActivityResult{}, err
	}

	var in any
	child := s.slot.current()
	if child != nil && child.State().IsWaiting() {
		in = input
	} else {
		child = nil
	}

	for {
		if child == nil {
			factory, label := s.pick(wc)
			if factory == nil {
				s.slot.drop(false)
				return s.Finish(domain.Continue("", nil))
			}
			if s.st.Iterations >= s.opts.maxIterations {
				return domain.ActivityResult{}, domain.NewConfigError(KindSwitch,
					"%s: looped more than %d times", s.ID(), s.opts.maxIterations)
			}
			var err error
			if child, err = build(s.ID(), factory); err != nil {
				return domain.ActivityResult{}, err
			}
			s.st.Iterations++
			s.st.Case = label
			s.slot.attach(child, s.Events())
			in = nil
		}

		res, err := child.Run(ctx, wc, in)
		if err != nil {
			return domain.ActivityResult{}, err
		}
		switch res.Kind {
		case domain.ResultWaitForInput, domain.ResultWaitForSubTopic:
			return s.Await(domain.StateWaitingForSubActivity, res)
		case domain.ResultEnd, domain.ResultCancelled:
			s.slot.detach()
			return s.Finish(res)
		}

		s.slot.drop(false)
		if !s.opts.loop {
			return s.Finish(res)
		}
		if err := ctx.Err(); err != nil {
			return s.Cancel(err)
		}
		child = nil
	}
}

func (s *Switch) pick(wc *workflow.Context) (Factory, string) {
	label := s.selector(wc)
	if f, ok := s.cases[label]; ok {
		return f, label
	}
	if s.st.Iterations == 0 && s.opts.fallback != nil {
		return s.opts.fallback, label
	}
	return nil, label
}

// Capabilities reports the running case's handlers.
func (s *Switch) Capabilities() Capabilities {
	caps := Capabilities{Kind: KindSwitch, Container: true}
	if child := s.slot.current(); child != nil {
		cc := child.Capabilities()
		caps.EmitsCards = cc.EmitsCards
		caps.TriggersTopics = cc.TriggersTopics
		caps.AwaitsInput = cc.AwaitsInput
	}
	caps.Rerender = delegateRerender(s.slot.current)
	caps.Deadline = delegateDeadline(s.slot.current)
	return caps
}

// Reset forgets the case and iteration count.
func (s *Switch) Reset() {
	s.Base.Reset()
	s.st = SwitchState{}
	s.slot.drop(false)
}

// Terminate fails the running case and stops forwarding.
func (s *Switch) Terminate() {
	s.slot.drop(true)
	s.Base.Terminate()
}

// Snapshot includes the running case.
func (s *Switch) Snapshot() domain.ActivitySnapshot {
	snap := s.Base.Snapshot()
	snap.Continuation = continuation(s.st)
	snap.Children = s.slot.snapshot()
	return snap
}
