package topic_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/tendril/pkg/activity"
	"github.com/aretw0/tendril/pkg/binding"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/topic"
	"github.com/aretw0/tendril/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Name string `json:"name"`
}

func greetingTopic(t *testing.T) *topic.Topic {
	t.Helper()
	hello, err := activity.NewMessage("hello", "Hi! Let's get to know you.")
	require.NoError(t, err)
	card, err := activity.NewCard[profile]("profile", activity.CardConfig{
		Document: map[string]any{"fields": []any{"name"}},
		Rules:    binding.Rules{Required: []string{"name"}},
	})
	require.NoError(t, err)
	end, err := activity.NewEnd("bye", "Nice to meet you.")
	require.NoError(t, err)

	tp, err := topic.New("greeting", topic.WithKeywords("hello", "hi"), topic.WithActivities(hello, card, end))
	require.NoError(t, err)
	return tp
}

func TestTopic_GreetingCardEnd(t *testing.T) {
	ctx := context.Background()
	tp := greetingTopic(t)

	var messages []string
	var cards []domain.CardPayload
	tp.Events().Subscribe(domain.EventMessage, func(e *domain.Event) {
		assert.Equal(t, "greeting", e.Topic)
		messages = append(messages, e.Message)
	})
	tp.Events().Subscribe(domain.EventCard, func(e *domain.Event) { cards = append(cards, *e.Card) })

	require.NoError(t, tp.Activate(workflow.NewConversation("c"), nil))
	res, err := tp.Step(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultWaitForInput, res.Kind)
	assert.Equal(t, domain.TopicWaitingForSubActivity, tp.State())
	assert.Equal(t, 1, tp.Cursor())
	require.Len(t, cards, 1)
	assert.Equal(t, "profile", cards[0].CardID)

	res, err = tp.Step(ctx, map[string]any{"name": "Ana"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultEnd, res.Kind)
	assert.Equal(t, domain.TopicCompleted, tp.State())
	assert.Equal(t, []string{"Hi! Let's get to know you.", "Nice to meet you."}, messages)

	payload, ok := res.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, profile{Name: "Ana"}, payload["profile"])
}

func TestTopic_CursorNeverMovesBackward(t *testing.T) {
	ctx := context.Background()
	tp := greetingTopic(t)
	require.NoError(t, tp.Activate(workflow.NewConversation("c"), nil))

	prev := 0
	inputs := []any{nil, map[string]any{}, map[string]any{}, map[string]any{"name": "Ana"}}
	for _, in := range inputs {
		_, err := tp.Step(ctx, in)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, tp.Cursor(), prev)
		prev = tp.Cursor()
		if tp.State() == domain.TopicCompleted {
			break
		}
	}
	assert.Equal(t, domain.TopicCompleted, tp.State())
}

func TestTopic_InputOnlyReachesWaitingActivity(t *testing.T) {
	var seen []any
	probe, err := activity.NewSimple("probe", func(_ context.Context, _ *workflow.Context, input any) (domain.ActivityResult, error) {
		seen = append(seen, input)
		return domain.Continue("", nil), nil
	})
	require.NoError(t, err)
	tp, err := topic.New("p", topic.WithActivities(probe))
	require.NoError(t, err)

	require.NoError(t, tp.Activate(nil, nil))
	_, err = tp.Step(context.Background(), "stray input")
	require.NoError(t, err)
	assert.Equal(t, []any{nil}, seen)
}

func TestTopic_ErrorFailsTopic(t *testing.T) {
	boom, err := activity.NewSimple("boom", func(context.Context, *workflow.Context, any) (domain.ActivityResult, error) {
		return domain.ActivityResult{}, errors.New("kaput")
	})
	require.NoError(t, err)
	tp, err := topic.New("broken", topic.WithActivities(boom))
	require.NoError(t, err)

	require.NoError(t, tp.Activate(nil, nil))
	_, err = tp.Step(context.Background(), nil)

	var aerr *domain.ActivityError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "boom", aerr.ActivityID)
	assert.Equal(t, domain.TopicFailed, tp.State())
	assert.Equal(t, domain.StateFailed, boom.State())
}

func TestTopic_StepWhenIdle(t *testing.T) {
	tp := greetingTopic(t)
	_, err := tp.Step(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrNoActiveTopic)
}

func TestTopic_ResetClearsEverything(t *testing.T) {
	ctx := context.Background()
	tp := greetingTopic(t)
	require.NoError(t, tp.Activate(workflow.NewConversation("c"), map[string]any{"utterance": "hi"}))
	_, err := tp.Step(ctx, nil)
	require.NoError(t, err)

	tp.Reset()

	assert.Equal(t, domain.TopicIdle, tp.State())
	assert.Zero(t, tp.Cursor())
	assert.Zero(t, tp.Context().Len())
	for _, a := range tp.Activities() {
		assert.Equal(t, domain.StateIdle, a.State(), a.ID())
	}
}

func TestTopic_ActivateSeedsContext(t *testing.T) {
	tp := greetingTopic(t)
	require.NoError(t, tp.Activate(nil, map[string]any{"utterance": "hello"}))
	assert.Equal(t, "hello", workflow.GetOr(tp.Context(), "utterance", ""))
	assert.Equal(t, domain.TopicRunning, tp.State())

	require.NoError(t, tp.Activate(nil, nil))
	assert.False(t, tp.Context().Has("utterance"))
}

func TestTopic_DuplicateActivity(t *testing.T) {
	m, err := activity.NewMessage("m", "x")
	require.NoError(t, err)
	_, err = topic.New("dup", topic.WithActivities(m, m))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestTopic_Snapshot(t *testing.T) {
	tp := greetingTopic(t)
	require.NoError(t, tp.Activate(nil, nil))
	_, err := tp.Step(context.Background(), nil)
	require.NoError(t, err)

	snap := tp.Snapshot()
	assert.Equal(t, "greeting", snap.Name)
	assert.Equal(t, 1, snap.Cursor)
	require.Len(t, snap.Activities, 3)
	assert.Equal(t, domain.StateWaitingForUserInput, snap.Activities[1].State)
}
