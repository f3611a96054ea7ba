package activity

import (
	"context"
	"fmt"
	"reflect"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/workflow"
)

// ForEachState is the continuation of a ForEach.
type ForEachState struct {
	Started bool `json:"started"`
	Index   int  `json:"index"`
	Total   int  `json:"total"`
}

// ForEach runs a fresh child for every element of a slice found in the context.
type ForEach struct {
	Base
	itemsKey string
	factory  Factory
	opts     containerOptions
	st       ForEachState
	items    []any
	results  []any
	slot     slot
}

// NewForEach iterates the slice stored under itemsKey. A missing key yields zero iterations.
func NewForEach(id, itemsKey string, factory Factory, opts ...ContainerOption) (*ForEach, error) {
	if id == "" || itemsKey == "" || factory == nil {
		return nil, domain.NewConfigError(KindForEach, "id, items key and factory are required")
	}
	o := applyOptions(opts)
	o.itemKey = orKey(o.itemKey, "item")
	o.indexKey = orKey(o.indexKey, "index")
	o.collectKey = orKey(o.collectKey, id+".results")

	f := &ForEach{itemsKey: itemsKey, factory: factory, opts: o}
	f.init(id, KindForEach, domain.DefaultTransitions)
	return f, nil
}

// Run iterates from the current index. Input reaches only a waiting child.
func (f *ForEach) Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	if res, done := f.Replay(); done {
		return res, nil
	}
	if err := f.Enter(); err != nil {
		return domain.ActivityResult{}, err
	}
	if !f.st.Started {
		items, err := readItems(wc, f.itemsKey)
		if err != nil {
			return domain.ActivityResult{}, domain.NewConfigError(KindForEach, "%s: %v", f.ID(), err)
		}
		f.items = items
		f.st = ForEachState{Started: true, Total: len(items)}
	}

	var in any
	child := f.slot.current()
	if child != nil && child.State().IsWaiting() {
		in = input
	} else {
		child = nil
	}

	for f.st.Index < len(f.items) {
		if err := ctx.Err(); err != nil {
			return f.Cancel(err)
		}
		if child == nil {
			var err error
			if child, err = build(f.ID(), f.factory); err != nil {
				return domain.ActivityResult{}, err
			}
			f.slot.attach(child, f.Events())
			wc.Set(f.opts.itemKey, f.items[f.st.Index])
			wc.Set(f.opts.indexKey, f.st.Index)
			in = nil
		}

		res, err := child.Run(ctx, wc, in)
		if err != nil {
			return domain.ActivityResult{}, err
		}
		switch res.Kind {
		case domain.ResultWaitForInput, domain.ResultWaitForSubTopic:
			return f.Await(domain.StateWaitingForSubActivity, res)
		case domain.ResultCancelled:
			f.slot.detach()
			return f.Finish(res)
		case domain.ResultEnd:
			f.slot.detach()
			f.done(wc)
			return f.Finish(res)
		}

		f.results = append(f.results, res.Model)
		f.st.Index++
		f.slot.drop(false)
		child = nil
	}

	f.done(wc)
	return f.Finish(domain.Continue("", f.Results()))
}

// Results returns the child models collected so far, one per finished iteration.
func (f *ForEach) Results() []any {
	return append([]any(nil), f.results...)
}

func (f *ForEach) done(wc *workflow.Context) {
	wc.Set(f.opts.collectKey, f.Results())
	wc.Remove(f.opts.itemKey)
	wc.Remove(f.opts.indexKey)
}

// Capabilities reports the current child's handlers.
func (f *ForEach) Capabilities() Capabilities {
	caps := Capabilities{Kind: KindForEach, Container: true}
	if child := f.slot.current(); child != nil {
		cc := child.Capabilities()
		caps.EmitsCards = cc.EmitsCards
		caps.TriggersTopics = cc.TriggersTopics
		caps.AwaitsInput = cc.AwaitsInput
	}
	caps.Rerender = delegateRerender(f.slot.current)
	caps.Deadline = delegateDeadline(f.slot.current)
	return caps
}

// Reset forgets the items read and the results collected.
func (f *ForEach) Reset() {
	f.Base.Reset()
	f.st = ForEachState{}
	f.items = nil
	f.results = nil
	f.slot.drop(false)
}

// Terminate fails the current child and stops forwarding.
func (f *ForEach) Terminate() {
	f.slot.drop(true)
	f.Base.Terminate()
}

// Snapshot includes the index.
func (f *ForEach) Snapshot() domain.ActivitySnapshot {
	snap := f.Base.Snapshot()
	snap.Continuation = continuation(f.st)
	snap.Children = f.slot.snapshot()
	return snap
}

func readItems(wc *workflow.Context, key string) ([]any, error) {
	raw, ok := wc.Get(key)
	if !ok || raw == nil {
		return nil, nil
	}
	if items, ok := raw.([]any); ok {
		return append([]any(nil), items...), nil
	}
	v := reflect.ValueOf(raw)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, fmt.Errorf("value under %q is a %s, not a list", key, v.Kind())
	}
	items := make([]any, v.Len())
	for i := range items {
		items[i] = v.Index(i).Interface()
	}
	return items, nil
}
