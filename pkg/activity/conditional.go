package activity

import (
	"context"
	"fmt"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/workflow"
)

// ConditionalState is the continuation of a Conditional.
type ConditionalState[T comparable] struct {
	Selected T    `json:"selected"`
	Chosen   bool `json:"chosen"`
}

// Conditional picks one branch, once, and delegates to it.
type Conditional[T comparable] struct {
	Base
	selector func(*workflow.Context) T
	branches map[T]Factory
	opts     containerOptions
	st       ConditionalState[T]
	slot     slot
	deco     Decorator
}

// NewConditional creates a conditional over branches keyed by label.
// Use Default to add a fallback branch.
func NewConditional[T comparable](id string, selector func(*workflow.Context) T, branches map[T]Factory, opts ...ContainerOption) (*Conditional[T], error) {
	if id == "" || selector == nil {
		return nil, domain.NewConfigError(KindConditional, "id and selector are required")
	}
	o := applyOptions(opts)
	if len(branches) == 0 && o.fallback == nil {
		return nil, domain.NewConfigError(KindConditional, "%s: no branches", id)
	}
	for label, f := range branches {
		if f == nil {
			return nil, domain.NewConfigError(KindConditional, "%s: nil factory for %v", id, label)
		}
	}
	c := &Conditional[T]{selector: selector, branches: branches, opts: o}
	c.init(id, KindConditional, domain.DefaultTransitions)
	return c, nil
}

// Selected returns the cached label.
func (c *Conditional[T]) Selected() (T, bool) {
	return c.st.Selected, c.st.Chosen
}

// Run selects on first call and forwards to the branch child.
func (c *Conditional[T]) Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	if res, done := c.Replay(); done {
		return res, nil
	}
	if err := c.Enter(); err != nil {
		return domain.ActivityResult{}, err
	}

	if c.slot.current() == nil {
		if !c.st.Chosen {
			c.st.Selected = c.selector(wc)
			c.st.Chosen = true
		}
		factory, ok := c.branches[c.st.Selected]
		if !ok {
			factory = c.opts.fallback
		}
		if factory == nil {
			return domain.ActivityResult{}, fmt.Errorf("%w: conditional %q selected %v: %w",
				domain.ErrConfiguration, c.ID(), c.st.Selected, domain.ErrNoBranch)
		}
		child, err := build(c.ID(), factory)
		if err != nil {
			return domain.ActivityResult{}, err
		}
		c.slot.attach(child, c.Events())
		if h := child.Capabilities().Decorate; h != nil && c.deco != nil {
			h(c.deco)
		}
		input = nil
	}

	res, err := c.slot.current().Run(ctx, wc, input)
	if err != nil {
		return domain.ActivityResult{}, err
	}
	if res.IsWaiting() {
		return c.Await(domain.StateWaitingForSubActivity, res)
	}
	return c.Finish(res)
}

// Capabilities delegates to the selected branch.
func (c *Conditional[T]) Capabilities() Capabilities {
	caps := Capabilities{Kind: KindConditional, Container: true}
	if child := c.slot.current(); child != nil {
		cc := child.Capabilities()
		caps.EmitsCards = cc.EmitsCards
		caps.TriggersTopics = cc.TriggersTopics
		caps.AwaitsInput = cc.AwaitsInput
	}
	caps.Decorate = c.decorate
	caps.Rerender = delegateRerender(c.slot.current)
	caps.Deadline = delegateDeadline(c.slot.current)
	return caps
}

// decorate remembers d for a branch not built yet.
func (c *Conditional[T]) decorate(d Decorator) {
	c.deco = d
	if child := c.slot.current(); child != nil {
		if h := child.Capabilities().Decorate; h != nil {
			h(d)
		}
	}
}

// Reset forgets the selection and drops the branch child.
func (c *Conditional[T]) Reset() {
	c.Base.Reset()
	c.st = ConditionalState[T]{}
	c.deco = nil
	c.slot.drop(false)
}

// Terminate fails the branch child and stops forwarding.
func (c *Conditional[T]) Terminate() {
	c.slot.drop(true)
	c.Base.Terminate()
}

// Snapshot includes the selection.
func (c *Conditional[T]) Snapshot() domain.ActivitySnapshot {
	snap := c.Base.Snapshot()
	snap.Continuation = continuation(c.st)
	snap.Children = c.slot.snapshot()
	return snap
}
