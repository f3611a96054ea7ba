package activity

import (
	"context"
	"time"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/events"
	"github.com/aretw0/tendril/pkg/workflow"
)

// CompositeState is the continuation of a Composite.
type CompositeState struct {
	Cursor  int    `json:"cursor"`
	Waiting string `json:"waiting,omitempty"`
}

// Composite runs its children strictly in order.
type Composite struct {
	Base
	children []Activity
	opts     containerOptions
	st       CompositeState
	scope    *workflow.Context
	subs     events.Group
}

// NewComposite creates a sequence of children.
func NewComposite(id string, children []Activity, opts ...ContainerOption) (*Composite, error) {
	if err := checkChildren(KindComposite, id, children); err != nil {
		return nil, err
	}
	c := &Composite{children: children, opts: applyOptions(opts)}
	c.init(id, KindComposite, domain.DefaultTransitions)
	c.wire()
	return c, nil
}

func (c *Composite) wire() {
	c.subs.Release()
	for _, child := range c.children {
		c.subs.Add(child.Events().Forward(c.Events()))
	}
}

// Children returns the static children.
func (c *Composite) Children() []Activity { return c.children }

// Run continues the sequence from the cursor. Input reaches only the waiting child.
func (c *Composite) Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	if res, done := c.Replay(); done {
		return res, nil
	}
	if err := c.Enter(); err != nil {
		return domain.ActivityResult{}, err
	}
	if c.scope == nil {
		c.scope = wc
		if c.opts.isolate {
			c.scope = wc.Child()
		}
	}

	var last domain.ActivityResult
	for c.st.Cursor < len(c.children) {
		if err := ctx.Err(); err != nil {
			return c.Cancel(err)
		}
		child := c.children[c.st.Cursor]

		var in any
		if c.st.Waiting == child.ID() {
			in, input = input, nil
		}
		res, err := child.Run(ctx, c.scope, in)
		if err != nil {
			return domain.ActivityResult{}, err
		}

		switch res.Kind {
		case domain.ResultWaitForInput, domain.ResultWaitForSubTopic:
			c.st.Waiting = child.ID()
			return c.Await(domain.StateWaitingForSubActivity, res)
		case domain.ResultEnd:
			c.st.Cursor = len(c.children)
			c.st.Waiting = ""
			c.merge(wc)
			return c.Finish(res)
		case domain.ResultCancelled:
			c.st.Waiting = ""
			return c.Finish(res)
		default:
			c.st.Cursor++
			c.st.Waiting = ""
			last = res
		}
	}

	c.merge(wc)
	return c.Finish(domain.Continue(last.Message, last.Model))
}

func (c *Composite) merge(wc *workflow.Context) {
	if c.opts.isolate && c.scope != nil {
		wc.Merge(c.scope)
	}
}

func (c *Composite) waitingChild() Activity {
	if c.st.Waiting == "" || c.st.Cursor >= len(c.children) {
		return nil
	}
	return c.children[c.st.Cursor]
}

// Capabilities aggregates the children.
func (c *Composite) Capabilities() Capabilities {
	caps := aggregate(KindComposite, c.children)
	caps.Decorate = func(d Decorator) {
		for _, child := range c.children {
			if h := child.Capabilities().Decorate; h != nil {
				h(d)
			}
		}
	}
	caps.Rerender = delegateRerender(c.waitingChild)
	caps.Deadline = delegateDeadline(c.waitingChild)
	return caps
}

// Reset rewinds the sequence and every child.
func (c *Composite) Reset() {
	c.Base.Reset()
	c.st = CompositeState{}
	c.scope = nil
	for _, child := range c.children {
		child.Reset()
	}
	c.wire()
}

// Terminate fails the composite and every live child, and stops forwarding.
func (c *Composite) Terminate() {
	for _, child := range c.children {
		child.Terminate()
	}
	c.subs.Release()
	c.Base.Terminate()
}

// Snapshot includes the cursor and every child.
func (c *Composite) Snapshot() domain.ActivitySnapshot {
	snap := c.Base.Snapshot()
	snap.Continuation = continuation(c.st)
	for _, child := range c.children {
		snap.Children = append(snap.Children, child.Snapshot())
	}
	return snap
}

func aggregate(kind string, children []Activity) Capabilities {
	caps := Capabilities{Kind: kind, Container: true}
	for _, child := range children {
		cc := child.Capabilities()
		caps.EmitsCards = caps.EmitsCards || cc.EmitsCards
		caps.TriggersTopics = caps.TriggersTopics || cc.TriggersTopics
		caps.AwaitsInput = caps.AwaitsInput || cc.AwaitsInput
	}
	return caps
}

func delegateRerender(current func() Activity) func(context.Context, *workflow.Context) (domain.ActivityResult, error) {
	return func(ctx context.Context, wc *workflow.Context) (domain.ActivityResult, error) {
		child := current()
		if child == nil {
			return domain.ActivityResult{}, nil
		}
		h := child.Capabilities().Rerender
		if h == nil {
			return domain.ActivityResult{}, nil
		}
		return h(ctx, wc)
	}
}

func delegateDeadline(current func() Activity) func() (time.Time, bool) {
	return func() (time.Time, bool) {
		child := current()
		if child == nil {
			return time.Time{}, false
		}
		h := child.Capabilities().Deadline
		if h == nil {
			return time.Time{}, false
		}
		return h()
	}
}

// slot holds one lazily built child and its forwarding subscription.
type slot struct {
	child Activity
	unsub events.Unsubscribe
}

func (s *slot) attach(child Activity, parent *events.Bus) {
	s.detach()
	s.child = child
	s.unsub = child.Events().Forward(parent)
}

func (s *slot) detach() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

func (s *slot) drop(terminate bool) {
	if terminate && s.child != nil {
		s.child.Terminate()
	}
	s.detach()
	s.child = nil
}

func (s *slot) current() Activity {
	return s.child
}

func (s *slot) snapshot() []domain.ActivitySnapshot {
	if s.child == nil {
		return nil
	}
	return []domain.ActivitySnapshot{s.child.Snapshot()}
}
