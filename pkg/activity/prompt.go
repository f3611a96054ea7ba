package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/aretw0/tendril/pkg/binding"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/workflow"
)

// PromptConfig configures a Prompt.
type PromptConfig struct {
	// System is the system prompt.
	System string
	// User is a text/template rendered against the context.
	User string
	// ResultKey receives the answer; JSON answers are stored decoded.
	ResultKey string
	// Schema optionally constrains JSON answers. Non-conforming answers are kept as raw text.
	Schema string
	// Say publishes the raw answer as a chat message.
	Say bool
}

// Prompt delegates one decision or free-form reply to a completion service.
// Service failures never fail the topic; they leave a note under domain.KeyLastError.
type Prompt struct {
	Base
	svc  ports.CompletionService
	cfg  PromptConfig
	user *template.Template
}

// NewPrompt creates a Prompt.
func NewPrompt(id string, svc ports.CompletionService, cfg PromptConfig) (*Prompt, error) {
	if id == "" || svc == nil {
		return nil, domain.NewConfigError(KindPrompt, "id and completion service are required")
	}
	user, err := template.New(id).Parse(cfg.User)
	if err != nil {
		return nil, domain.NewConfigError(KindPrompt, "%s: %v", id, err)
	}
	cfg.ResultKey = orKey(cfg.ResultKey, id+".answer")
	p := &Prompt{svc: svc, cfg: cfg, user: user}
	p.init(id, KindPrompt, domain.DefaultTransitions)
	return p, nil
}

// Run asks the completion service and stores the answer.
func (p *Prompt) Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	if res, done := p.Replay(); done {
		return res, nil
	}
	if err := p.Enter(); err != nil {
		return domain.ActivityResult{}, err
	}

	user, err := interpolate(p.user, wc)
	if err != nil {
		return domain.ActivityResult{}, fmt.Errorf("prompt %q: %w", p.ID(), err)
	}

	text, err := p.svc.Complete(ctx, p.cfg.System, user)
	if err != nil {
		wc.Set(domain.KeyLastError, fmt.Sprintf("completion failed: %v", err))
		return p.Finish(domain.Continue("", nil))
	}

	value := any(text)
	if decoded, ok := decodeAnswer(text); ok && p.conforms(decoded) {
		value = decoded
	}
	wc.Set(p.cfg.ResultKey, value)

	msg := ""
	if p.cfg.Say {
		msg = text
		p.Say(text)
	}
	return p.Finish(domain.Continue(msg, value))
}

func (p *Prompt) conforms(doc map[string]any) bool {
	if p.cfg.Schema == "" {
		return true
	}
	errs, err := binding.Default.Validate(p.cfg.Schema, doc)
	return err == nil && len(errs) == 0
}

// decodeAnswer reads a JSON object answer, tolerating a markdown fence.
// Anything else is plain text.
func decodeAnswer(text string) (map[string]any, bool) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, false
	}
	return out, true
}

// Save hands a collected model to a ModelSaver.
type Save struct {
	Base
	saver    ports.ModelSaver
	kind     string
	modelKey string
}

// NewSave saves the value under modelKey as kind.
func NewSave(id string, saver ports.ModelSaver, kind, modelKey string) (*Save, error) {
	if id == "" || saver == nil || modelKey == "" {
		return nil, domain.NewConfigError(KindSave, "id, saver and model key are required")
	}
	s := &Save{saver: saver, kind: kind, modelKey: modelKey}
	s.init(id, KindSave, domain.DefaultTransitions)
	return s, nil
}

// Run saves the model. Save failures propagate to the topic.
func (s *Save) Run(ctx context.Context, wc *workflow.Context, input any) (domain.ActivityResult, error) {
	if res, done := s.Replay(); done {
		return res, nil
	}
	if err := s.Enter(); err != nil {
		return domain.ActivityResult{}, err
	}
	model, ok := wc.Get(s.modelKey)
	if !ok {
		return domain.ActivityResult{}, fmt.Errorf("save %q: no model under %q", s.ID(), s.modelKey)
	}
	if err := s.saver.SaveModel(ctx, s.kind, model); err != nil {
		return domain.ActivityResult{}, fmt.Errorf("save %q: %w", s.ID(), err)
	}
	return s.Finish(domain.Continue("", model))
}
