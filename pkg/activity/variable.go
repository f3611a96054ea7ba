package activity

import (
	"context"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/workflow"
)

// Value computes the value a SetVariable writes.
type Value func(*workflow.Context) any

// Literal always yields v.
func Literal(v any) Value {
	return func(*workflow.Context) any { return v }
}

// FromKey copies the value under key in the topic context.
func FromKey(key string) Value {
	return func(wc *workflow.Context) any {
		v, _ := wc.Get(key)
		return v
	}
}

// SetVariable writes one value, either into the topic context or, when built
// with NewGlobalVariable, into the conversation globals.
type SetVariable struct {
	Base
	key      string
	value    Value
	promoter *workflow.Promoter
}

// NewSetVariable writes into the topic context.
func NewSetVariable(id, key string, value Value) (*SetVariable, error) {
	if id == "" || key == "" || value == nil {
		return nil, domain.NewConfigError(KindSetVariable, "id, key and value are required")
	}
	s := &SetVariable{key: key, value: value}
	s.init(id, KindSetVariable, domain.DefaultTransitions)
	return s, nil
}

// NewGlobalVariable promotes the value to a conversation global.
// It is the only activity handed a Promoter.
func NewGlobalVariable(id, key string, value Value, p *workflow.Promoter) (*SetVariable, error) {
	if p == nil {
		return nil, domain.NewConfigError(KindSetVariable, "%s: global mode needs a promoter", id)
	}
	s, err := NewSetVariable(id, key, value)
	if err != nil {
		return nil, err
	}
	s.promoter = p
	return s, nil
}

// Run writes the value and completes.
func (s *SetVariable) Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	if res, done := s.Replay(); done {
		return res, nil
	}
	if err := s.Enter(); err != nil {
		return domain.ActivityResult{}, err
	}
	v := s.value(wc)
	if s.promoter != nil {
		s.promoter.Promote(s.key, v)
	} else {
		wc.Set(s.key, v)
	}
	return s.Finish(domain.Continue("", v))
}
