// Package demo defines the insurance assistant shipped with the tendril command.
package demo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/tendril/pkg/activity"
	"github.com/aretw0/tendril/pkg/binding"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/topic"
	"github.com/aretw0/tendril/pkg/workflow"
	"github.com/google/uuid"
)

// Topic names.
const (
	TopicGreeting = "greeting"
	TopicQuote    = "quote"
	TopicAgent    = "agent"
	TopicAdvisor  = "advisor"
)

// EventCRMLookup is raised while a quote is being checked.
const EventCRMLookup = "crm.lookup"

// Applicant is the person asking for a quote.
type Applicant struct {
	Name  string `json:"name"`
	Age   int    `json:"age"`
	Email string `json:"email"`
}

// Driver is an additional driver on the policy.
type Driver struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

// Quote is the priced offer handed to the model saver.
type Quote struct {
	Reference string  `json:"reference"`
	Customer  string  `json:"customer"`
	Drivers   int     `json:"drivers"`
	Risk      string  `json:"risk"`
	Monthly   float64 `json:"monthly"`
}

// Risk levels.
const (
	RiskLow  = "low"
	RiskHigh = "high"
)

// Catalog returns the demo topics.
func Catalog() (*topic.Catalog, error) {
	return topic.NewCatalog(
		topic.Definition{
			Name:        TopicGreeting,
			Description: "Greets the user and explains what the assistant does",
			Keywords:    []string{"hello", "hi", "hey", "good morning"},
			Build:       greeting,
		},
		topic.Definition{
			Name:        TopicQuote,
			Description: "Prepares a car insurance quote",
			Keywords:    []string{"quote", "insurance", "price", "car"},
			Build:       quote,
		},
		topic.Definition{
			Name:        TopicAgent,
			Description: "Hands the conversation to a human agent",
			Keywords:    []string{"agent", "human", "person"},
			Build:       agent,
		},
		topic.Definition{
			Name:        TopicAdvisor,
			Description: "Answers free-form insurance questions with the language model",
			Keywords:    []string{"question", "explain", "what is"},
			Build:       advisor,
		},
		topic.Definition{
			Name:  domain.DefaultFallbackTopic,
			Build: fallback,
		},
		topic.Definition{
			Name:  domain.DefaultEscalationTopic,
			Build: escalation,
		},
	)
}

func greeting(env topic.Env) ([]activity.Activity, error) {
	return build(
		func() (activity.Activity, error) {
			return activity.NewMessage("welcome", "Hi{{if .customer}} {{.customer}}{{end}}! I can prepare a car insurance quote for you.")
		},
		func() (activity.Activity, error) {
			return activity.NewMessage("hint", "Say \"quote\" to start, or \"agent\" to talk to a person.")
		},
	)
}

func quote(env topic.Env) ([]activity.Activity, error) {
	saver := env.Saver
	if saver == nil {
		saver = LogSaver(env.Logger)
	}
	return build(
		func() (activity.Activity, error) {
			return activity.NewMessage("intro", "Let's prepare your quote.")
		},
		func() (activity.Activity, error) {
			return activity.NewCard[Applicant]("applicant", activity.CardConfig{
				Document: map[string]any{
					"title":  "About you",
					"text":   "Tell me who the main driver is.",
					"fields": []any{"name", "age", "email"},
				},
				Rules: binding.Rules{
					Required: []string{"name", "age", "email"},
					Ranges:   map[string]binding.Range{"age": binding.Between(18, 99)},
				},
				SuccessMessage: "Thanks!",
			}, validEmail)
		},
		func() (activity.Activity, error) {
			return activity.NewGlobalVariable("remember-customer", "customer", func(wc *workflow.Context) any {
				a, _ := workflow.Get[Applicant](wc, "applicant")
				return a.Name
			}, env.Promoter)
		},
		func() (activity.Activity, error) {
			return activity.NewRepeat[Driver]("drivers", driverCard,
				activity.ContinuePrompt("Add another driver? (answer continue=no to finish)"),
				activity.CollectKey("drivers"),
				activity.MaxIterations(5),
			)
		},
		func() (activity.Activity, error) {
			return checks()
		},
		func() (activity.Activity, error) {
			return activity.NewSwitch("route", activity.SwitchOn("risk"), map[string]activity.Factory{
				RiskHigh: func() (activity.Activity, error) {
					return activity.NewTriggerTopic("review", TopicAgent,
						activity.WaitForCompletion(),
						activity.WithArgs(func(wc *workflow.Context) map[string]any {
							return map[string]any{"reason": "high risk profile"}
						}),
						activity.WithResultKey("review"),
					)
				},
			}, activity.Default(func() (activity.Activity, error) {
				return activity.NewMessage("auto-approved", "Good news, no manual review needed.")
			}))
		},
		func() (activity.Activity, error) {
			return activity.NewSimple("price", func(_ context.Context, wc *workflow.Context, _ any) (domain.ActivityResult, error) {
				q := Price(wc)
				wc.Set("quote", q)
				return domain.Continue("", q), nil
			})
		},
		func() (activity.Activity, error) {
			return activity.NewSave("store-quote", saver, "quote", "quote")
		},
		func() (activity.Activity, error) {
			return activity.NewMessage("offer", "Your monthly premium is {{printf \"%.2f\" .quote.Monthly}} EUR (reference {{.quote.Reference}}).")
		},
		func() (activity.Activity, error) {
			return activity.NewEnd("done", "Anything else? Say \"quote\" to start over.")
		},
	)
}

func driverCard() (activity.Activity, error) {
	return activity.NewCard[Driver]("driver", activity.CardConfig{
		Document: map[string]any{
			"title":  "Additional driver",
			"fields": []any{"name", "age"},
		},
		Rules: binding.Rules{
			Required: []string{"name", "age"},
			Ranges:   map[string]binding.Range{"age": binding.AtLeast(16)},
		},
	})
}

// checks runs the risk and discount computations next to the CRM lookup.
func checks() (activity.Activity, error) {
	risk, err := activity.NewSimple("risk", func(_ context.Context, wc *workflow.Context, _ any) (domain.ActivityResult, error) {
		level := Risk(wc)
		wc.Set("risk", level)
		return domain.Continue("", level), nil
	})
	if err != nil {
		return nil, err
	}
	discount, err := activity.NewSimple("discount", func(_ context.Context, wc *workflow.Context, _ any) (domain.ActivityResult, error) {
		drivers, _ := workflow.Get[[]Driver](wc, "drivers")
		pct := 0.1
		for _, d := range drivers {
			if d.Age < 30 {
				pct = 0
			}
		}
		wc.Set("discount", pct)
		return domain.Continue("", pct), nil
	})
	if err != nil {
		return nil, err
	}
	crm, err := activity.NewEventTrigger("crm", EventCRMLookup, activity.WithEventData(func(wc *workflow.Context) any {
		a, _ := workflow.Get[Applicant](wc, "applicant")
		return map[string]any{"email": a.Email}
	}))
	if err != nil {
		return nil, err
	}
	return activity.NewParallel("checks", []activity.Activity{risk, discount, crm})
}

func agent(env topic.Env) ([]activity.Activity, error) {
	return build(
		func() (activity.Activity, error) {
			return activity.NewMessage("handoff", "I'm bringing in a colleague{{if .reason}} ({{.reason}}){{end}}.")
		},
		func() (activity.Activity, error) {
			return activity.NewCard[Callback]("callback", activity.CardConfig{
				Document: map[string]any{
					"title":  "Callback",
					"text":   "When can an agent call you?",
					"fields": []any{"phone", "slot"},
				},
				Rules: binding.Rules{Required: []string{"phone"}},
			})
		},
		func() (activity.Activity, error) {
			return activity.NewMessage("booked", "An agent will call {{.callback.Phone}}{{if .callback.Slot}} {{.callback.Slot}}{{end}}.")
		},
	)
}

// Callback is the contact an agent uses.
type Callback struct {
	Phone string `json:"phone"`
	Slot  string `json:"slot"`
}

func advisor(env topic.Env) ([]activity.Activity, error) {
	if env.Completion == nil {
		return build(func() (activity.Activity, error) {
			return activity.NewMessage("offline", "I can't answer open questions right now. Say \"agent\" to talk to a person.")
		})
	}
	return build(func() (activity.Activity, error) {
		return activity.NewPrompt("answer", env.Completion, activity.PromptConfig{
			System: "You are a concise car insurance advisor. Answer in at most three sentences.",
			User:   "{{.utterance}}",
			Say:    true,
		})
	})
}

func fallback(topic.Env) ([]activity.Activity, error) {
	return build(func() (activity.Activity, error) {
		return activity.NewMessage("help", "I can help with car insurance quotes. Try \"quote\", \"agent\" or ask a question.")
	})
}

func escalation(topic.Env) ([]activity.Activity, error) {
	return build(func() (activity.Activity, error) {
		return activity.NewMessage("sorry", "An agent has been notified and will follow up{{if .failed_topic}} on your {{.failed_topic}}{{end}}.")
	})
}

// Risk is high for young applicants or very young additional drivers.
func Risk(wc *workflow.Context) string {
	a, _ := workflow.Get[Applicant](wc, "applicant")
	if a.Age < 25 {
		return RiskHigh
	}
	drivers, _ := workflow.Get[[]Driver](wc, "drivers")
	for _, d := range drivers {
		if d.Age < 21 {
			return RiskHigh
		}
	}
	return RiskLow
}

// Price computes the monthly premium from the checks.
func Price(wc *workflow.Context) Quote {
	a, _ := workflow.Get[Applicant](wc, "applicant")
	drivers, _ := workflow.Get[[]Driver](wc, "drivers")
	risk := workflow.GetOr(wc, "risk", RiskLow)
	discount := workflow.GetOr(wc, "discount", 0.0)

	monthly := 40.0 + 12.5*float64(len(drivers))
	if risk == RiskHigh {
		monthly += 30
	}
	monthly *= 1 - discount
	return Quote{
		Reference: strings.ToUpper(uuid.NewString()[:8]),
		Customer:  a.Name,
		Drivers:   len(drivers),
		Risk:      risk,
		Monthly:   monthly,
	}
}

func validEmail(a Applicant) []domain.FieldError {
	if a.Email != "" && !strings.Contains(a.Email, "@") {
		return []domain.FieldError{{Field: "email", Message: "must be an email address"}}
	}
	return nil
}

// LogSaver is the model saver used when the host provides none.
func LogSaver(logger *slog.Logger) ports.ModelSaver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return ports.ModelSaverFunc(func(ctx context.Context, kind string, model any) error {
		logger.InfoContext(ctx, "model saved", "kind", kind, "model", fmt.Sprintf("%+v", model))
		return nil
	})
}

func build(factories ...activity.Factory) ([]activity.Activity, error) {
	acts := make([]activity.Activity, 0, len(factories))
	for _, f := range factories {
		a, err := f()
		if err != nil {
			return nil, err
		}
		acts = append(acts, a)
	}
	return acts, nil
}
