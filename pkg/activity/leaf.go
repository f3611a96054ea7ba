package activity

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/workflow"
)

// Func is the body of a Simple activity. input is nil on the first call.
type Func func(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error)

// Simple runs an arbitrary function as an activity.
type Simple struct {
	Base
	fn Func
}

// NewSimple wraps fn. A waiting result suspends; the next delivery calls fn again with the input.
func NewSimple(id string, fn Func) (*Simple, error) {
	if id == "" || fn == nil {
		return nil, domain.NewConfigError(KindSimple, "id and function are required")
	}
	s := &Simple{fn: fn}
	s.init(id, KindSimple, domain.DefaultTransitions)
	return s, nil
}

// Run calls the wrapped function.
func (s *Simple) Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	if res, done := s.Replay(); done {
		return res, nil
	}
	if err := s.Enter(); err != nil {
		return domain.ActivityResult{}, err
	}
	res, err := s.fn(ctx, wc, input)
	if err != nil {
		return domain.ActivityResult{}, err
	}
	if res.IsWaiting() {
		return s.Await(waitingState(res), res)
	}
	return s.Finish(res)
}

// Capabilities reports input awaiting since fn may suspend.
func (s *Simple) Capabilities() Capabilities {
	return Capabilities{Kind: KindSimple, AwaitsInput: true}
}

// Message publishes one chat line, interpolated from the context.
type Message struct {
	Base
	tmpl *template.Template
	fn   func(*workflow.Context) string
}

// NewMessage parses text as a text/template. Fields resolve against the topic
// context first and conversation globals second: "Hi {{.name}}".
func NewMessage(id, text string) (*Message, error) {
	if id == "" {
		return nil, domain.NewConfigError(KindMessage, "empty id")
	}
	tmpl, err := template.New(id).Parse(text)
	if err != nil {
		return nil, domain.NewConfigError(KindMessage, "%s: %v", id, err)
	}
	m := &Message{tmpl: tmpl}
	m.init(id, KindMessage, domain.DefaultTransitions)
	return m, nil
}

// NewMessageFunc builds the message text with fn on every run.
func NewMessageFunc(id string, fn func(*workflow.Context) string) (*Message, error) {
	if id == "" || fn == nil {
		return nil, domain.NewConfigError(KindMessage, "id and function are required")
	}
	m := &Message{fn: fn}
	m.init(id, KindMessage, domain.DefaultTransitions)
	return m, nil
}

// Run publishes the message and completes.
func (m *Message) Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	if res, done := m.Replay(); done {
		return res, nil
	}
	if err := m.Enter(); err != nil {
		return domain.ActivityResult{}, err
	}
	var text string
	if m.fn != nil {
		text = m.fn(wc)
	} else {
		rendered, err := interpolate(m.tmpl, wc)
		if err != nil {
			return domain.ActivityResult{}, fmt.Errorf("message %q: %w", m.ID(), err)
		}
		text = rendered
	}
	m.Say(text)
	return m.Finish(domain.Continue(text, nil))
}

func interpolate(tmpl *template.Template, wc *workflow.Context) (string, error) {
	data := wc.Globals()
	for k, v := range wc.Snapshot() {
		data[k] = v
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return strings.ReplaceAll(sb.String(), "<no value>", ""), nil
}

// Delay pauses the topic for a fixed duration.
type Delay struct {
	Base
	d time.Duration
}

// NewDelay creates a delay of d.
func NewDelay(id string, d time.Duration) (*Delay, error) {
	if id == "" || d < 0 {
		return nil, domain.NewConfigError(KindDelay, "id required and duration must not be negative")
	}
	a := &Delay{d: d}
	a.init(id, KindDelay, domain.DefaultTransitions)
	return a, nil
}

// Run sleeps, returning Cancelled if ctx finishes first.
func (a *Delay) Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	if res, done := a.Replay(); done {
		return res, nil
	}
	if err := a.Enter(); err != nil {
		return domain.ActivityResult{}, err
	}
	timer := time.NewTimer(a.d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return a.Cancel(ctx.Err())
	case <-timer.C:
		return a.Finish(domain.Continue("", nil))
	}
}

// End finishes the owning topic.
type End struct {
	Base
	message *template.Template
}

// NewEnd creates an End activity. message is a template like NewMessage and may be empty.
func NewEnd(id, message string) (*End, error) {
	if id == "" {
		return nil, domain.NewConfigError(KindEnd, "empty id")
	}
	tmpl, err := template.New(id).Parse(message)
	if err != nil {
		return nil, domain.NewConfigError(KindEnd, "%s: %v", id, err)
	}
	a := &End{message: tmpl}
	a.init(id, KindEnd, domain.DefaultTransitions)
	return a, nil
}

// Run publishes the farewell and returns End.
func (a *End) Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	if res, done := a.Replay(); done {
		return res, nil
	}
	if err := a.Enter(); err != nil {
		return domain.ActivityResult{}, err
	}
	text, err := interpolate(a.message, wc)
	if err != nil {
		return domain.ActivityResult{}, fmt.Errorf("%s %q: %w", a.Kind(), a.ID(), err)
	}
	a.Say(text)
	return a.Finish(domain.End(nil))
}

// Reset asks the orchestrator to reset the whole conversation.
type Reset struct {
	Base
	message *template.Template
}

// NewReset creates a Reset activity. message is shown before the reset.
func NewReset(id, message string) (*Reset, error) {
	if id == "" {
		return nil, domain.NewConfigError(KindReset, "empty id")
	}
	tmpl, err := template.New(id).Parse(message)
	if err != nil {
		return nil, domain.NewConfigError(KindReset, "%s: %v", id, err)
	}
	a := &Reset{message: tmpl}
	a.init(id, KindReset, domain.DefaultTransitions)
	return a, nil
}

// Run publishes the reset request and ends the topic.
func (a *Reset) Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	if res, done := a.Replay(); done {
		return res, nil
	}
	if err := a.Enter(); err != nil {
		return domain.ActivityResult{}, err
	}
	text, err := interpolate(a.message, wc)
	if err != nil {
		return domain.ActivityResult{}, fmt.Errorf("%s %q: %w", a.Kind(), a.ID(), err)
	}
	a.Say(text)
	a.Publish(&domain.Event{Type: domain.EventResetRequested})
	return a.Finish(domain.End(nil))
}
