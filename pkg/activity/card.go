package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aretw0/tendril/pkg/binding"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/workflow"
)

var cardTransitions = domain.DefaultTransitions.Extend(domain.TransitionTable{
	domain.StateWaitingForUserInput: {domain.StateRendered},
	domain.StateInputCollected:      {domain.StateCompleted, domain.StateValidationFailed, domain.StateFailed},
	domain.StateValidationFailed:    {domain.StateRendered, domain.StateFailed},
})

// CardConfig configures a Card.
type CardConfig struct {
	// CardID is the stable id used for Replace renders. Defaults to the activity id.
	CardID string
	// Document is the opaque UI document.
	Document map[string]any
	// Render builds the document from the context instead of Document.
	Render func(*workflow.Context) map[string]any
	// ModelKey is where the bound model is stored. Defaults to the activity id.
	ModelKey string
	// Rules are checked on every submission.
	Rules binding.Rules
	// Schema is an optional JSON schema for the bound model.
	Schema string
	// SuccessMessage is published once the model is valid.
	SuccessMessage string
}

// Validator is a semantic check on a bound model.
// Every returned FieldError must name a field.
type Validator[T any] func(T) []domain.FieldError

// CardState is the continuation of a Card.
type CardState struct {
	Renders     int                 `json:"renders"`
	Submissions int                 `json:"submissions"`
	Fingerprint string              `json:"fingerprint,omitempty"`
	Errors      map[string][]string `json:"errors,omitempty"`
}

// Card renders a UI payload, waits for a submission, binds it into T and
// validates it, re-rendering the same card with errors until it is valid.
type Card[T any] struct {
	Base
	cfg        CardConfig
	validators []Validator[T]
	schemas    *binding.SchemaValidator

	mu        sync.Mutex
	decorator Decorator
	st        CardState
	pending   domain.ActivityResult
	model     T
}

// NewCard creates a card binding into T.
func NewCard[T any](id string, cfg CardConfig, validators ...Validator[T]) (*Card[T], error) {
	if id == "" {
		return nil, domain.NewConfigError(KindCard, "empty id")
	}
	if cfg.Document == nil && cfg.Render == nil {
		return nil, domain.NewConfigError(KindCard, "%s: document or render function required", id)
	}
	for i, v := range validators {
		if v == nil {
			return nil, domain.NewConfigError(KindCard, "%s: validator %d is nil", id, i)
		}
	}
	cfg.CardID = orKey(cfg.CardID, id)
	cfg.ModelKey = orKey(cfg.ModelKey, id)

	c := &Card[T]{cfg: cfg, validators: validators, schemas: binding.Default}
	c.init(id, KindCard, cardTransitions)
	return c, nil
}

// CardID returns the stable card identifier.
func (c *Card[T]) CardID() string { return c.cfg.CardID }

// Model returns the last valid model.
func (c *Card[T]) Model() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// Run renders on first call and processes submissions afterwards.
func (c *Card[T]) Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	if res, done := c.Replay(); done {
		return res, nil
	}

	if c.State() == domain.StateWaitingForUserInput {
		if input == nil {
			return c.pendingResult(), nil
		}
		return c.collect(ctx, wc, input)
	}

	if err := c.Enter(); err != nil {
		return domain.ActivityResult{}, err
	}
	return c.show(c.build(wc, nil))
}

func (c *Card[T]) collect(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	fp := fingerprint(input)

	c.mu.Lock()
	if fp == c.st.Fingerprint {
		res := c.pending
		c.mu.Unlock()
		return res, nil
	}
	c.st.Fingerprint = fp
	c.st.Submissions++
	c.mu.Unlock()

	if err := c.Transition(domain.StateInputCollected); err != nil {
		return domain.ActivityResult{}, err
	}

	model, values, errs, err := binding.Bind[T](input)
	if err != nil {
		return domain.ActivityResult{}, err
	}
	errs, err = c.validate(model, values, errs)
	if err != nil {
		return domain.ActivityResult{}, err
	}

	if len(errs) > 0 {
		if err := c.Transition(domain.StateValidationFailed); err != nil {
			return domain.ActivityResult{}, err
		}
		card := c.build(wc, domain.GroupFieldErrors(errs))
		failed := card.Clone()
		c.Publish(&domain.Event{Type: domain.EventValidationFailed, Card: &failed})
		return c.show(card)
	}

	wc.Set(c.cfg.ModelKey, model)
	c.mu.Lock()
	c.model = model
	c.st.Errors = nil
	c.mu.Unlock()

	c.Say(c.cfg.SuccessMessage)
	return c.Finish(domain.Continue(c.cfg.SuccessMessage, model))
}

func (c *Card[T]) validate(model T, values map[string]any, bindErrs []domain.FieldError) ([]domain.FieldError, error) {
	errs := append([]domain.FieldError(nil), bindErrs...)
	broken := make(map[string]bool, len(bindErrs))
	for _, e := range bindErrs {
		broken[e.Field] = true
	}
	if len(broken) > 0 && broken[binding.FormField] {
		return errs, nil
	}

	doc := binding.Document(model, values)
	for _, schema := range c.schemasToCheck() {
		found, err := c.schemas.Validate(schema, doc)
		if err != nil {
			return nil, fmt.Errorf("card %q: %w", c.ID(), err)
		}
		for _, e := range found {
			if !broken[e.Field] {
				errs = append(errs, e)
			}
		}
	}

	if len(bindErrs) > 0 {
		return errs, nil
	}
	for _, v := range c.validators {
		for _, e := range v(model) {
			if e.Field == "" {
				return nil, domain.NewConfigError(KindCard, "%s: validator returned an error without a field name", c.ID())
			}
			errs = append(errs, e)
		}
	}
	return errs, nil
}

func (c *Card[T]) schemasToCheck() []string {
	var out []string
	if !c.cfg.Rules.IsZero() {
		out = append(out, c.cfg.Rules.Schema())
	}
	if c.cfg.Schema != "" {
		out = append(out, c.cfg.Schema)
	}
	return out
}

// build assembles the payload. The first render appends, every later one replaces.
func (c *Card[T]) build(wc *workflow.Context, errs map[string][]string) domain.CardPayload {
	doc := c.cfg.Document
	if c.cfg.Render != nil {
		doc = c.cfg.Render(wc)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	mode := domain.RenderAppend
	if c.st.Renders > 0 {
		mode = domain.RenderReplace
	}
	card := domain.CardPayload{CardID: c.cfg.CardID, Mode: mode, Document: doc, Errors: errs}.Clone()
	if c.decorator != nil {
		card = c.decorator(card)
	}
	c.st.Errors = errs
	return card
}

// show publishes card and suspends.
func (c *Card[T]) show(card domain.CardPayload) (domain.ActivityResult, error) {
	if err := c.Transition(domain.StateRendered); err != nil {
		return domain.ActivityResult{}, err
	}
	published := card
	c.Publish(&domain.Event{Type: domain.EventCard, Card: &published})

	res := domain.WaitForInput(card)
	c.mu.Lock()
	c.st.Renders++
	c.pending = res
	c.mu.Unlock()

	return c.Await(domain.StateWaitingForUserInput, res)
}

func (c *Card[T]) pendingResult() domain.ActivityResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Card[T]) setDecorator(d Decorator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decorator = d
}

// rerender shows a clean copy of the pending card.
func (c *Card[T]) rerender(ctx context.Context, wc *workflow.Context) (domain.ActivityResult, error) {
	if c.State() != domain.StateWaitingForUserInput {
		return c.pendingResult(), nil
	}
	c.mu.Lock()
	c.st.Fingerprint = ""
	c.mu.Unlock()
	return c.show(c.build(wc, nil))
}

// Capabilities exposes the decorator and re-render handlers.
func (c *Card[T]) Capabilities() Capabilities {
	return Capabilities{
		Kind:        KindCard,
		EmitsCards:  true,
		AwaitsInput: true,
		Decorate:    c.setDecorator,
		Rerender:    c.rerender,
	}
}

// Reset forgets renders, submissions, errors and the bound model.
func (c *Card[T]) Reset() {
	c.Base.Reset()
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.st = CardState{}
	c.pending = domain.ActivityResult{}
	c.model = zero
	c.decorator = nil
}

// Snapshot includes the card continuation.
func (c *Card[T]) Snapshot() domain.ActivitySnapshot {
	snap := c.Base.Snapshot()
	c.mu.Lock()
	snap.Continuation = continuation(c.st)
	c.mu.Unlock()
	if snap.Continuation == nil {
		snap.Continuation = map[string]any{}
	}
	snap.Continuation["card_id"] = c.cfg.CardID
	return snap
}

func fingerprint(input any) string {
	values, err := binding.Normalize(input)
	if err != nil {
		return fmt.Sprintf("raw:%v", input)
	}
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Sprintf("raw:%v", input)
	}
	return string(data)
}
