package activity

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/tendril/pkg/binding"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/workflow"
)

const defaultContinuePrompt = "Would you like to add another?"

// RepeatState is the continuation of a Repeat.
type RepeatState struct {
	Iteration  int  `json:"iteration"`
	Prompting  bool `json:"prompting"`
	Prompts    int  `json:"prompts"`
	StopAfter  bool `json:"stop_after"`
	ChildCards bool `json:"child_cards"`
}

// Repeat runs a fresh child per iteration, a fixed number of times or until
// the user answers the continue question with a stop word.
//
// Card children get the question embedded in their card from the second
// iteration on; other children are followed by a container-owned prompt card.
type Repeat[T any] struct {
	Base
	factory Factory
	opts    containerOptions
	st      RepeatState
	items   []T
	slot    slot
}

// NewRepeat creates a repeat over factory. Child models of type T are collected.
func NewRepeat[T any](id string, factory Factory, opts ...ContainerOption) (*Repeat[T], error) {
	if id == "" || factory == nil {
		return nil, domain.NewConfigError(KindRepeat, "id and factory are required")
	}
	o := applyOptions(opts)
	if o.maxIterations <= 0 {
		return nil, domain.NewConfigError(KindRepeat, "%s: max iterations must be positive", id)
	}
	o.collectKey = orKey(o.collectKey, id+".items")
	o.indexKey = orKey(o.indexKey, id+".index")
	o.prompt = orKey(o.prompt, defaultContinuePrompt)

	r := &Repeat[T]{factory: factory, opts: o}
	r.init(id, KindRepeat, domain.DefaultTransitions)
	return r, nil
}

// Items returns the collected models.
func (r *Repeat[T]) Items() []T {
	return slices.Clone(r.items)
}

// Iteration returns the number of completed iterations.
func (r *Repeat[T]) Iteration() int {
	return r.st.Iteration
}

// Run starts, resumes or advances the loop.
func (r *Repeat[T]) Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	if res, done := r.Replay(); done {
		return res, nil
	}
	if err := r.Enter(); err != nil {
		return domain.ActivityResult{}, err
	}

	if r.st.Prompting {
		r.st.Prompting = false
		if IsStopWord(decision(input)) {
			return r.complete(wc)
		}
		return r.next(ctx, wc)
	}

	child := r.slot.current()
	if child == nil || !child.State().IsWaiting() {
		return r.next(ctx, wc)
	}

	in := input
	if !r.opts.fixed && r.st.Iteration > 0 && r.st.ChildCards {
		values, err := binding.Normalize(input)
		if err == nil {
			if ContinuationOnly(values) {
				if IsStopWord(values[domain.KeyContinue]) {
					r.slot.drop(true)
					return r.complete(wc)
				}
				return r.cleanForm(ctx, wc, child)
			}
			if v, ok := values[domain.KeyContinue]; ok {
				r.st.StopAfter = IsStopWord(v)
				stripped := make(map[string]any, len(values))
				for k, val := range values {
					if k != domain.KeyContinue {
						stripped[k] = val
					}
				}
				in = stripped
			}
		}
	}
	return r.drive(ctx, wc, child, in)
}

// next begins a new iteration or completes the loop.
func (r *Repeat[T]) next(ctx context.Context, wc *workflow.Context) (domain.ActivityResult, error) {
	if r.st.Iteration >= r.opts.maxIterations || (r.opts.fixed && r.st.Iteration >= r.opts.times) {
		return r.complete(wc)
	}
	child, err := build(r.ID(), r.factory)
	if err != nil {
		return domain.ActivityResult{}, err
	}
	r.slot.attach(child, r.Events())

	caps := child.Capabilities()
	r.st.ChildCards = caps.EmitsCards && caps.Decorate != nil
	if !r.opts.fixed && r.st.Iteration > 0 && r.st.ChildCards {
		caps.Decorate(r.continueWidget)
	}
	wc.Set(r.opts.indexKey, r.st.Iteration)
	return r.drive(ctx, wc, child, nil)
}

func (r *Repeat[T]) drive(ctx context.Context, wc *workflow.Context, child Activity, in any) (domain.ActivityResult, error) {
	res, err := child.Run(ctx, wc, in)
	if err != nil {
		return domain.ActivityResult{}, err
	}

	switch res.Kind {
	case domain.ResultWaitForInput, domain.ResultWaitForSubTopic:
		return r.Await(domain.StateWaitingForSubActivity, res)
	case domain.ResultCancelled:
		r.slot.detach()
		return r.Finish(res)
	case domain.ResultEnd:
		r.collect(wc, res.Model)
		r.slot.detach()
		wc.Set(r.opts.collectKey, r.Items())
		return r.Finish(res)
	}

	r.collect(wc, res.Model)
	r.st.Iteration++
	r.slot.drop(false)

	if r.opts.fixed {
		return r.next(ctx, wc)
	}
	if r.st.StopAfter || r.st.Iteration >= r.opts.maxIterations {
		return r.complete(wc)
	}
	if r.st.ChildCards {
		return r.next(ctx, wc)
	}
	return r.ask(wc)
}

// cleanForm answers a bare "continue" by re-rendering the pending card without the widget.
func (r *Repeat[T]) cleanForm(ctx context.Context, wc *workflow.Context, child Activity) (domain.ActivityResult, error) {
	caps := child.Capabilities()
	if caps.Decorate != nil {
		caps.Decorate(nil)
	}
	if caps.Rerender != nil {
		res, err := caps.Rerender(ctx, wc)
		if err != nil {
			return domain.ActivityResult{}, err
		}
		if res.Kind != "" {
			return r.Await(domain.StateWaitingForSubActivity, res)
		}
	}
	return r.drive(ctx, wc, child, nil)
}

// ask publishes the container-owned continue prompt.
func (r *Repeat[T]) ask(wc *workflow.Context) (domain.ActivityResult, error) {
	mode := domain.RenderAppend
	if r.st.Prompts > 0 {
		mode = domain.RenderReplace
	}
	card := domain.CardPayload{
		CardID: r.ID() + ".continue",
		Mode:   mode,
		Document: map[string]any{
			"type":    "continue_prompt",
			"text":    r.opts.prompt,
			"field":   domain.KeyContinue,
			"options": []any{"yes", "stop"},
		},
	}
	r.st.Prompts++
	r.st.Prompting = true

	published := card.Clone()
	r.Publish(&domain.Event{Type: domain.EventCard, Card: &published})
	return r.Await(domain.StateWaitingForUserInput, domain.WaitForInput(card))
}

func (r *Repeat[T]) continueWidget(card domain.CardPayload) domain.CardPayload {
	card.Document[domain.KeyContinue] = map[string]any{
		"type":    "choice",
		"label":   r.opts.prompt,
		"options": []any{"yes", "stop"},
		"default": "yes",
	}
	return card
}

func (r *Repeat[T]) collect(wc *workflow.Context, model any) {
	if m, ok := model.(T); ok {
		r.items = append(r.items, m)
		wc.Set(r.opts.collectKey, r.Items())
	}
}

func (r *Repeat[T]) complete(wc *workflow.Context) (domain.ActivityResult, error) {
	items := r.Items()
	wc.Set(r.opts.collectKey, items)
	wc.Remove(r.opts.indexKey)
	return r.Finish(domain.Continue("", items))
}

// Capabilities reports the current child's handlers.
func (r *Repeat[T]) Capabilities() Capabilities {
	caps := Capabilities{Kind: KindRepeat, Container: true, AwaitsInput: !r.opts.fixed}
	if child := r.slot.current(); child != nil {
		cc := child.Capabilities()
		caps.EmitsCards = cc.EmitsCards
		caps.TriggersTopics = cc.TriggersTopics
		caps.AwaitsInput = caps.AwaitsInput || cc.AwaitsInput
	}
	caps.Rerender = delegateRerender(r.slot.current)
	caps.Deadline = delegateDeadline(r.slot.current)
	return caps
}

// Reset forgets iterations and collected items.
func (r *Repeat[T]) Reset() {
	r.Base.Reset()
	r.st = RepeatState{}
	r.items = nil
	r.slot.drop(false)
}

// Terminate fails the current child and stops forwarding.
func (r *Repeat[T]) Terminate() {
	r.slot.drop(true)
	r.Base.Terminate()
}

// Snapshot includes the loop counters.
func (r *Repeat[T]) Snapshot() domain.ActivitySnapshot {
	snap := r.Base.Snapshot()
	snap.Continuation = continuation(r.st)
	if snap.Continuation != nil {
		snap.Continuation["collected"] = len(r.items)
	}
	snap.Children = r.slot.snapshot()
	return snap
}

// IsStopWord reports whether v is one of domain.StopTokens, ignoring case and surrounding space.
func IsStopWord(v any) bool {
	if v == nil {
		return false
	}
	s := strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
	return slices.Contains(domain.StopTokens, s)
}

// ContinuationOnly reports whether a submission carries nothing but the continue decision.
func ContinuationOnly(values map[string]any) bool {
	if !binding.HasValue(values, domain.KeyContinue) {
		return false
	}
	for k := range values {
		if k != domain.KeyContinue && binding.HasValue(values, k) {
			return false
		}
	}
	return true
}

// decision extracts the continue answer from raw text or a submission.
func decision(input any) any {
	if s, ok := input.(string); ok && !strings.HasPrefix(strings.TrimSpace(s), "{") {
		return s
	}
	values, err := binding.Normalize(input)
	if err != nil {
		return nil
	}
	return values[domain.KeyContinue]
}
