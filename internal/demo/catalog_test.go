package demo_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/internal/demo"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/topic"
	"github.com/aretw0/tendril/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type saved struct {
	mu     sync.Mutex
	quotes []demo.Quote
}

func (s *saved) SaveModel(_ context.Context, kind string, model any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := model.(demo.Quote); ok && kind == "quote" {
		s.quotes = append(s.quotes, q)
	}
	return nil
}

func newEngine(t *testing.T, opts ...tendril.Option) (*tendril.Engine, *saved) {
	t.Helper()
	cat, err := demo.Catalog()
	require.NoError(t, err)
	s := &saved{}
	eng, err := tendril.New(cat, append([]tendril.Option{tendril.WithModelSaver(s)}, opts...)...)
	require.NoError(t, err)
	return eng, s
}

func send(t *testing.T, eng *tendril.Engine, id string, input any) *domain.Turn {
	t.Helper()
	turn, err := eng.Send(context.Background(), id, input)
	require.NoError(t, err)
	return turn
}

func hasEvent(turn *domain.Turn, name string) bool {
	for _, r := range turn.Replies {
		if r.Kind == domain.ReplyEvent && r.Event != nil && r.Event.Name == name {
			return true
		}
	}
	return false
}

func TestDemo_QuoteAutoApproved(t *testing.T) {
	eng, s := newEngine(t)

	turn := send(t, eng, "c", "hello")
	assert.Equal(t, demo.TopicGreeting, turn.ActiveTopic)
	require.Len(t, turn.Messages(), 2)
	assert.Equal(t, "Hi! I can prepare a car insurance quote for you.", turn.Messages()[0])

	turn = send(t, eng, "c", "I need a quote")
	assert.Equal(t, demo.TopicQuote, turn.ActiveTopic)
	require.True(t, turn.Waiting)
	assert.Equal(t, "applicant", turn.LastCard().CardID)

	turn = send(t, eng, "c", map[string]any{"name": "Ana", "age": "40", "email": "ana@example.com"})
	require.True(t, turn.Waiting)
	assert.Contains(t, turn.Messages(), "Thanks!")
	assert.Equal(t, "driver", turn.LastCard().CardID)

	turn = send(t, eng, "c", map[string]any{"name": "Bo", "age": 35})
	require.True(t, turn.Waiting)
	assert.Contains(t, turn.LastCard().Document, domain.KeyContinue)

	turn = send(t, eng, "c", map[string]any{domain.KeyContinue: "no"})
	assert.False(t, turn.Waiting)
	assert.True(t, hasEvent(turn, demo.EventCRMLookup))
	msgs := strings.Join(turn.Messages(), "\n")
	assert.Contains(t, msgs, "Good news, no manual review needed.")
	assert.Contains(t, msgs, "Your monthly premium is 47.25 EUR")

	require.Len(t, s.quotes, 1)
	q := s.quotes[0]
	assert.Equal(t, "Ana", q.Customer)
	assert.Equal(t, 1, q.Drivers)
	assert.Equal(t, demo.RiskLow, q.Risk)
	assert.Len(t, q.Reference, 8)

	snap, err := eng.Snapshot(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, "Ana", snap.Globals["customer"])

	turn = send(t, eng, "c", "hi again")
	assert.Equal(t, "Hi Ana! I can prepare a car insurance quote for you.", turn.Messages()[0])
}

func TestDemo_HighRiskCallsAgent(t *testing.T) {
	eng, s := newEngine(t)

	send(t, eng, "r", "quote")
	send(t, eng, "r", map[string]any{"name": "Cy", "age": 20, "email": "cy@example.com"})
	send(t, eng, "r", map[string]any{"name": "Di", "age": 45})

	turn := send(t, eng, "r", map[string]any{domain.KeyContinue: "stop"})
	assert.Equal(t, demo.TopicAgent, turn.ActiveTopic)
	assert.Equal(t, 1, turn.CallDepth)
	assert.Contains(t, turn.Messages(), "I'm bringing in a colleague (high risk profile).")
	require.True(t, turn.Waiting)
	assert.Equal(t, "callback", turn.LastCard().CardID)

	turn = send(t, eng, "r", map[string]any{"phone": "555-0100"})
	assert.Equal(t, demo.TopicQuote, turn.ActiveTopic)
	assert.Zero(t, turn.CallDepth)
	msgs := strings.Join(turn.Messages(), "\n")
	assert.Contains(t, msgs, "An agent will call 555-0100.")
	assert.Contains(t, msgs, "Your monthly premium is 74.25 EUR")
	require.Len(t, s.quotes, 1)
	assert.Equal(t, demo.RiskHigh, s.quotes[0].Risk)
}

func TestDemo_ApplicantValidation(t *testing.T) {
	eng, _ := newEngine(t)
	send(t, eng, "v", "quote")

	turn := send(t, eng, "v", map[string]any{"name": "Ed", "age": 12, "email": "nope"})
	require.True(t, turn.Waiting)
	card := turn.LastCard()
	require.NotNil(t, card)
	assert.Equal(t, "applicant", card.CardID)
	assert.Contains(t, card.Errors, "age")
	assert.Contains(t, card.Errors, "email")
}

func TestDemo_FallbackAndAdvisor(t *testing.T) {
	eng, _ := newEngine(t)
	turn := send(t, eng, "f", "blorp")
	assert.Equal(t, domain.DefaultFallbackTopic, turn.ActiveTopic)

	turn = send(t, eng, "f", "explain deductibles")
	assert.Equal(t, demo.TopicAdvisor, turn.ActiveTopic)
	assert.Contains(t, turn.Messages()[0], "can't answer open questions")

	llm := ports.CompletionFunc(func(_ context.Context, _, user string) (string, error) {
		return "A deductible is what you pay first.", nil
	})
	eng, _ = newEngine(t, tendril.WithCompletionService(llm))
	turn = send(t, eng, "f", "explain deductibles")
	assert.Equal(t, []string{"A deductible is what you pay first."}, turn.Messages())
}

func TestRiskAndPrice(t *testing.T) {
	wc := workflow.NewContext("quote", nil)
	wc.Set("applicant", demo.Applicant{Name: "Ana", Age: 30})
	wc.Set("drivers", []demo.Driver{{Name: "Kid", Age: 18}})
	assert.Equal(t, demo.RiskHigh, demo.Risk(wc))

	wc.Set("risk", demo.RiskHigh)
	wc.Set("discount", 0.0)
	q := demo.Price(wc)
	assert.InDelta(t, 82.5, q.Monthly, 0.001)
	assert.Equal(t, 1, q.Drivers)
}

func TestCatalogBuildsWithoutSaver(t *testing.T) {
	cat, err := demo.Catalog()
	require.NoError(t, err)
	reg, err := cat.Build(topic.EnvFor(workflow.NewConversation("g")))
	require.NoError(t, err)
	assert.Equal(t, 6, reg.Len())
}
