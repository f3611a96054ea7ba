package topic

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/tendril/pkg/activity"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/workflow"
)

// Env is what a Definition may use to build its activities.
//
// Promoter is the only path to the conversation globals; hand it to the
// activities that may write them (activity.NewGlobalVariable).
type Env struct {
	ConversationID string
	Promoter       *workflow.Promoter
	Completion     ports.CompletionService
	Saver          ports.ModelSaver
	Logger         *slog.Logger
}

// EnvFor returns an Env bound to conv.
func EnvFor(conv *workflow.Conversation) Env {
	if conv == nil {
		return Env{}
	}
	return Env{ConversationID: conv.ID(), Promoter: conv.Promoter()}
}

// Definition describes a topic once; Build creates fresh activities for each conversation.
type Definition struct {
	Name        string
	Description string
	Keywords    []string
	Build       func(Env) ([]activity.Activity, error)
}

// Info returns the public description of d.
func (d Definition) Info() domain.TopicInfo {
	return domain.TopicInfo{Name: d.Name, Description: d.Description, Keywords: d.Keywords}
}

// Catalog is the set of topic definitions an engine serves.
type Catalog struct {
	defs   []Definition
	byName map[string]int
}

// NewCatalog validates and stores defs.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]int)}
	for _, d := range defs {
		if err := c.Add(d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add appends a definition.
func (c *Catalog) Add(d Definition) error {
	if d.Name == "" || d.Build == nil {
		return domain.NewConfigError("catalog", "definition needs a name and a build function")
	}
	if _, ok := c.byName[d.Name]; ok {
		return domain.NewConfigError("catalog", "duplicate topic %q", d.Name)
	}
	c.byName[d.Name] = len(c.defs)
	c.defs = append(c.defs, d)
	return nil
}

// Definitions returns the definitions in order.
func (c *Catalog) Definitions() []Definition {
	return append([]Definition(nil), c.defs...)
}

// Definition looks up a definition by name.
func (c *Catalog) Definition(name string) (Definition, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Infos describes every definition in order.
func (c *Catalog) Infos() []domain.TopicInfo {
	out := make([]domain.TopicInfo, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d.Info())
	}
	return out
}

// Build instantiates every topic for one conversation.
func (c *Catalog) Build(env Env) (*Registry, error) {
	reg := NewRegistry()
	for _, d := range c.defs {
		acts, err := d.Build(env)
		if err != nil {
			return nil, fmt.Errorf("build topic %q: %w", d.Name, err)
		}
		t, err := New(d.Name,
			WithDescription(d.Description),
			WithKeywords(d.Keywords...),
			WithActivities(acts...),
			WithLogger(env.Logger),
		)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
