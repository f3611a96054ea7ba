package activity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/tendril/pkg/activity"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_InterpolatesContextOverGlobals(t *testing.T) {
	conv := workflow.NewConversation("c")
	conv.Promoter().Promote("name", "global")
	conv.Promoter().Promote("company", "ACME")
	wc := workflow.NewContext("t", conv)
	wc.Set("name", "local")

	m, err := activity.NewMessage("hi", "Hi {{.name}} from {{.company}}{{.missing}}")
	require.NoError(t, err)
	res, err := m.Run(context.Background(), wc, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hi local from ACME", res.Message)
}

func TestMessage_BadTemplateIsConfigError(t *testing.T) {
	_, err := activity.NewMessage("hi", "{{.name")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestEnd_InterpolatesFarewell(t *testing.T) {
	wc := newScope("t")
	wc.Set("name", "Ana")
	e, err := activity.NewEnd("bye", "Bye {{.name}}.")
	require.NoError(t, err)
	var said []string
	e.Events().Subscribe(domain.EventMessage, func(ev *domain.Event) { said = append(said, ev.Message) })

	res, err := e.Run(context.Background(), wc, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultEnd, res.Kind)
	assert.Equal(t, []string{"Bye Ana."}, said)

	_, err = activity.NewEnd("bad", "{{.name")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestDelay_HonorsCancellation(t *testing.T) {
	d, err := activity.NewDelay("wait", time.Hour)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := d.Run(ctx, newScope("t"), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultCancelled, res.Kind)
	assert.Equal(t, domain.StateFailed, d.State())
}

func TestReset_PublishesRequest(t *testing.T) {
	r, err := activity.NewReset("reset", "Starting over.")
	require.NoError(t, err)
	requested := false
	r.Events().Subscribe(domain.EventResetRequested, func(*domain.Event) { requested = true })

	res, err := r.Run(context.Background(), newScope("t"), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultEnd, res.Kind)
	assert.True(t, requested)
}

func TestSetVariable_GlobalWritesThroughPromoter(t *testing.T) {
	conv := workflow.NewConversation("c")
	wc := workflow.NewContext("t", conv)

	s, err := activity.NewGlobalVariable("set", "customer", activity.Literal("C-9"), conv.Promoter())
	require.NoError(t, err)
	_, err = s.Run(context.Background(), wc, nil)
	require.NoError(t, err)

	v, ok := conv.Global("customer")
	assert.True(t, ok)
	assert.Equal(t, "C-9", v)
	assert.False(t, wc.Has("customer"))

	_, err = activity.NewGlobalVariable("set", "customer", activity.Literal(1), nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSimple_CannotWriteGlobals(t *testing.T) {
	conv := workflow.NewConversation("c")
	conv.Promoter().Promote("tier", "gold")
	wc := workflow.NewContext("t", conv)

	s, err := activity.NewSimple("rogue", func(_ context.Context, wc *workflow.Context, _ any) (domain.ActivityResult, error) {
		globals := wc.Globals()
		globals["tier"] = "platinum"
		globals["owned"] = true
		wc.Set("owned", true)
		return domain.Continue("", nil), nil
	})
	require.NoError(t, err)
	_, err = s.Run(context.Background(), wc, nil)
	require.NoError(t, err)

	tier, _ := conv.Global("tier")
	assert.Equal(t, "gold", tier)
	_, ok := conv.Global("owned")
	assert.False(t, ok)
	assert.Equal(t, []string{"tier"}, conv.GlobalKeys())
	assert.True(t, wc.Has("owned"))
}

func TestSetVariable_FromKey(t *testing.T) {
	wc := newScope("t")
	wc.Set("src", 3)
	s, err := activity.NewSetVariable("copy", "dst", activity.FromKey("src"))
	require.NoError(t, err)

	_, err = s.Run(context.Background(), wc, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, workflow.GetOr(wc, "dst", 0))
}

func TestTriggerTopic_FireAndForget(t *testing.T) {
	wc := newScope("main")
	trig, err := activity.NewTriggerTopic("go", "sales")
	require.NoError(t, err)
	var got *domain.TopicTrigger
	trig.Events().Subscribe(domain.EventTopicTriggered, func(e *domain.Event) { got = e.Trigger })

	res, err := trig.Run(context.Background(), wc, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultEnd, res.Kind)
	require.NotNil(t, got)
	assert.Equal(t, "main", got.Caller)
	assert.False(t, got.WaitForCompletion)
	assert.Zero(t, wc.CallStack().Depth())
}

func TestTriggerTopic_WaitPushesFrameAndMergesResult(t *testing.T) {
	ctx := context.Background()
	wc := newScope("main")
	trig, err := activity.NewTriggerTopic("quote", "pricing", activity.WaitForCompletion(),
		activity.WithArgs(func(*workflow.Context) map[string]any { return map[string]any{"plan": "gold"} }))
	require.NoError(t, err)

	res, err := trig.Run(ctx, wc, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitForSubTopic("pricing"), res)
	assert.Equal(t, domain.StateWaitingForSubActivity, trig.State())

	frame, ok := wc.CallStack().Peek()
	require.True(t, ok)
	assert.Equal(t, "main", frame.Caller)
	assert.Equal(t, "pricing", frame.Callee)
	assert.Equal(t, "gold", frame.ResumePayload["plan"])

	res, err = trig.Run(ctx, wc, map[string]any{"price": 10})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultContinue, res.Kind)
	assert.Equal(t, 10, workflow.GetOr(wc, "price", 0))
}

func TestTriggerTopic_CircularCallPrevented(t *testing.T) {
	conv := workflow.NewConversation("c")
	_, err := conv.CallStack().Push("a", "b", nil)
	require.NoError(t, err)
	wc := workflow.NewContext("b", conv)

	trig, err := activity.NewTriggerTopic("back", "a", activity.WaitForCompletion())
	require.NoError(t, err)
	triggered := false
	trig.Events().Subscribe(domain.EventTopicTriggered, func(*domain.Event) { triggered = true })

	res, err := trig.Run(context.Background(), wc, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultContinue, res.Kind)
	assert.Contains(t, res.Message, "circular call prevented: b -> a")
	assert.False(t, triggered)
	assert.Equal(t, 1, conv.CallStack().Depth())
}

func TestTriggerTopic_WaitWithoutConversation(t *testing.T) {
	trig, err := activity.NewTriggerTopic("quote", "pricing", activity.WaitForCompletion())
	require.NoError(t, err)
	_, err = trig.Run(context.Background(), workflow.NewContext("main", nil), nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestEventTrigger_TimesOut(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	ev, err := activity.NewEventTrigger("notify", "crm.lookup",
		activity.AwaitResponse(time.Minute),
		activity.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	var lines []string
	ev.Events().Subscribe(domain.EventMessage, func(e *domain.Event) { lines = append(lines, e.Message) })

	ctx := context.Background()
	wc := newScope("t")
	res, err := ev.Run(ctx, wc, nil)
	require.NoError(t, err)
	assert.True(t, res.IsWaiting())

	deadline, ok := ev.Capabilities().Deadline()
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Minute), deadline)

	res, err = ev.Run(ctx, wc, domain.Timeout{})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultCancelled, res.Kind)
	assert.Equal(t, domain.StateFailed, ev.State())
	assert.Equal(t, []string{"No response to crm.lookup arrived in time."}, lines)
}

func TestEventTrigger_LateResponseCountsAsTimeout(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	ev, err := activity.NewEventTrigger("notify", "crm.lookup",
		activity.AwaitResponse(time.Minute),
		activity.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	ctx := context.Background()
	wc := newScope("t")
	_, err = ev.Run(ctx, wc, nil)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	res, err := ev.Run(ctx, wc, "found")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultCancelled, res.Kind)
	assert.False(t, wc.Has("notify.response"))
}

func TestEventTrigger_StoresResponse(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	ev, err := activity.NewEventTrigger("notify", "crm.lookup",
		activity.AwaitResponse(time.Minute),
		activity.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	ctx := context.Background()
	wc := newScope("t")
	_, err = ev.Run(ctx, wc, nil)
	require.NoError(t, err)
	res, err := ev.Run(ctx, wc, "found")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultContinue, res.Kind)
	assert.Equal(t, "found", workflow.GetOr(wc, "notify.response", ""))
}

func TestPrompt_DegradesOnCompletionFailure(t *testing.T) {
	svc := ports.CompletionFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("service unavailable")
	})
	p, err := activity.NewPrompt("classify", svc, activity.PromptConfig{User: "classify {{.utterance}}"})
	require.NoError(t, err)

	wc := newScope("t")
	res, err := p.Run(context.Background(), wc, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultContinue, res.Kind)
	assert.Contains(t, workflow.GetOr(wc, domain.KeyLastError, ""), "service unavailable")
	assert.False(t, wc.Has("classify.answer"))
}

func TestPrompt_DecodesFencedJSON(t *testing.T) {
	var gotUser string
	svc := ports.CompletionFunc(func(_ context.Context, _, user string) (string, error) {
		gotUser = user
		return "```json\n{\"intent\":\"quote\"}\n```", nil
	})
	p, err := activity.NewPrompt("classify", svc, activity.PromptConfig{
		User:   "classify {{.utterance}}",
		Schema: `{"type":"object","required":["intent"]}`,
	})
	require.NoError(t, err)

	wc := newScope("t")
	wc.Set("utterance", "I want a quote")
	_, err = p.Run(context.Background(), wc, nil)
	require.NoError(t, err)

	assert.Equal(t, "classify I want a quote", gotUser)
	answer, ok := workflow.Get[map[string]any](wc, "classify.answer")
	require.True(t, ok)
	assert.Equal(t, "quote", answer["intent"])
}

func TestPrompt_NonConformingAnswerStaysRaw(t *testing.T) {
	svc := ports.CompletionFunc(func(context.Context, string, string) (string, error) {
		return `{"other":1}`, nil
	})
	p, err := activity.NewPrompt("classify", svc, activity.PromptConfig{
		Schema: `{"type":"object","required":["intent"]}`,
	})
	require.NoError(t, err)

	wc := newScope("t")
	_, err = p.Run(context.Background(), wc, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"other":1}`, workflow.GetOr(wc, "classify.answer", ""))
}

func TestSave_PropagatesFailure(t *testing.T) {
	var saved []any
	ok := ports.ModelSaverFunc(func(_ context.Context, kind string, model any) error {
		saved = append(saved, model)
		return nil
	})
	s, err := activity.NewSave("save", ok, "person", "person")
	require.NoError(t, err)

	wc := newScope("t")
	wc.Set("person", person{Name: "Ana"})
	_, err = s.Run(context.Background(), wc, nil)
	require.NoError(t, err)
	assert.Len(t, saved, 1)

	failing := ports.ModelSaverFunc(func(context.Context, string, any) error { return errors.New("disk full") })
	s, err = activity.NewSave("save", failing, "person", "person")
	require.NoError(t, err)
	_, err = s.Run(context.Background(), wc, nil)
	assert.ErrorContains(t, err, "disk full")
}

func TestSimple_SuspendsAndResumesSameInstance(t *testing.T) {
	calls := 0
	s, err := activity.NewSimple("ask", func(_ context.Context, _ *workflow.Context, input any) (domain.ActivityResult, error) {
		calls++
		if input == nil {
			return domain.WaitForInput(domain.InputRequest{Prompt: "name?"}), nil
		}
		return domain.Continue("got "+input.(string), nil), nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	wc := newScope("t")
	_, err = s.Run(ctx, wc, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StateWaitingForUserInput, s.State())

	res, err := s.Run(ctx, wc, "Ana")
	require.NoError(t, err)
	assert.Equal(t, "got Ana", res.Message)
	assert.Equal(t, 2, calls)

	history := s.History()
	require.NotEmpty(t, history)
	assert.Equal(t, domain.StateCompleted, history[len(history)-1].To)
}
