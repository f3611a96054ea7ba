package activity

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/events"
	"github.com/aretw0/tendril/pkg/workflow"
)

// ParallelState is the continuation of a Parallel.
type ParallelState struct {
	Launched bool     `json:"launched"`
	Current  string   `json:"current,omitempty"`
	Pending  []string `json:"pending,omitempty"`
}

// Parallel launches every child at once and completes when all of them have.
//
// Children that suspend are surfaced one at a time, in declaration order; the
// others keep their finished results until the group joins.
type Parallel struct {
	Base
	children []Activity
	byID     map[string]Activity
	opts     containerOptions
	st       ParallelState
	results  map[string]domain.ActivityResult
	waits    map[string]domain.ActivityResult
	scopes   map[string]*workflow.Context
	subs     events.Group
}

// NewParallel creates a parallel group. Results land under ResultsKey, by default "<id>.results".
func NewParallel(id string, children []Activity, opts ...ContainerOption) (*Parallel, error) {
	if err := checkChildren(KindParallel, id, children); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	o.resultsKey = orKey(o.resultsKey, id+".results")

	p := &Parallel{children: children, opts: o, byID: make(map[string]Activity, len(children))}
	for _, child := range children {
		p.byID[child.ID()] = child
	}
	p.init(id, KindParallel, domain.DefaultTransitions)
	p.clear()
	p.wire()
	return p, nil
}

// Children returns the parallel activities in declaration order.
func (p *Parallel) Children() []Activity { return p.children }

func (p *Parallel) clear() {
	p.st = ParallelState{}
	p.results = make(map[string]domain.ActivityResult, len(p.children))
	p.waits = make(map[string]domain.ActivityResult)
	p.scopes = make(map[string]*workflow.Context, len(p.children))
}

func (p *Parallel) wire() {
	p.subs.Release()
	for _, child := range p.children {
		p.subs.Add(child.Events().Forward(p.Events()))
	}
}

// Waiting returns the id of the child currently surfaced, if any.
func (p *Parallel) Waiting() string { return p.st.Current }

// Results returns a copy of the finished branch results.
func (p *Parallel) Results() map[string]domain.ActivityResult {
	return maps.Clone(p.results)
}

// Run launches the group on first call and resumes the surfaced child afterwards.
func (p *Parallel) Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	if res, done := p.Replay(); done {
		return res, nil
	}
	if err := p.Enter(); err != nil {
		return domain.ActivityResult{}, err
	}

	if !p.st.Launched {
		p.st.Launched = true
		if err := p.launch(ctx, wc); err != nil {
			return domain.ActivityResult{}, err
		}
	} else if p.st.Current != "" {
		id := p.st.Current
		child := p.byID[id]
		res, err := child.Run(ctx, p.scopeFor(wc, child), input)
		if err != nil {
			if !p.opts.continueOnError {
				return domain.ActivityResult{}, fmt.Errorf("parallel %q branch %q: %w", p.ID(), id, err)
			}
			child.Fail(err)
			res = domain.Cancelled(err.Error())
		}
		if res.IsWaiting() {
			p.waits[id] = res
			return p.Await(domain.StateWaitingForSubActivity, res)
		}
		delete(p.waits, id)
		p.results[id] = res
		p.st.Current = ""
	}

	if len(p.st.Pending) > 0 {
		p.st.Current, p.st.Pending = p.st.Pending[0], p.st.Pending[1:]
		return p.Await(domain.StateWaitingForSubActivity, p.waits[p.st.Current])
	}
	return p.join(wc)
}

func (p *Parallel) launch(ctx context.Context, wc *workflow.Context) error {
	outcomes := make([]domain.ActivityResult, len(p.children))
	scopes := make([]*workflow.Context, len(p.children))
	for i, child := range p.children {
		scopes[i] = p.scopeFor(wc, child)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, child := range p.children {
		g.Go(func() error {
			res, err := child.Run(gctx, scopes[i], nil)
			if err != nil {
				if !p.opts.continueOnError {
					return fmt.Errorf("parallel %q branch %q: %w", p.ID(), child.ID(), err)
				}
				child.Fail(err)
				res = domain.Cancelled(err.Error())
			}
			outcomes[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, child := range p.children {
		res := outcomes[i]
		if res.IsWaiting() {
			p.st.Pending = append(p.st.Pending, child.ID())
			p.waits[child.ID()] = res
			continue
		}
		p.results[child.ID()] = res
	}
	return nil
}

func (p *Parallel) scopeFor(wc *workflow.Context, child Activity) *workflow.Context {
	if !p.opts.isolate {
		return wc
	}
	scope, ok := p.scopes[child.ID()]
	if !ok {
		scope = wc.Child()
		p.scopes[child.ID()] = scope
	}
	return scope
}

func (p *Parallel) join(wc *workflow.Context) (domain.ActivityResult, error) {
	if p.opts.isolate {
		for _, child := range p.children {
			if scope, ok := p.scopes[child.ID()]; ok {
				wc.Merge(scope)
			}
		}
	}
	out := p.Results()
	wc.Set(p.opts.resultsKey, out)
	return p.Finish(domain.Continue("", out))
}

func (p *Parallel) current() Activity {
	if p.st.Current == "" {
		return nil
	}
	return p.byID[p.st.Current]
}

// Capabilities aggregates the children and delegates to the surfaced one.
func (p *Parallel) Capabilities() Capabilities {
	caps := aggregate(KindParallel, p.children)
	caps.Rerender = delegateRerender(p.current)
	caps.Deadline = delegateDeadline(p.current)
	return caps
}

// Reset rewinds the group and every child.
func (p *Parallel) Reset() {
	p.Base.Reset()
	p.clear()
	for _, child := range p.children {
		child.Reset()
	}
	p.wire()
}

// Terminate fails every live child and stops forwarding.
func (p *Parallel) Terminate() {
	for _, child := range p.children {
		child.Terminate()
	}
	p.subs.Release()
	p.Base.Terminate()
}

// Snapshot includes the pending queue and every child.
func (p *Parallel) Snapshot() domain.ActivitySnapshot {
	snap := p.Base.Snapshot()
	snap.Continuation = continuation(p.st)
	if snap.Continuation != nil {
		done := slices.Sorted(maps.Keys(p.results))
		snap.Continuation["done"] = done
	}
	for _, child := range p.children {
		snap.Children = append(snap.Children, child.Snapshot())
	}
	return snap
}
