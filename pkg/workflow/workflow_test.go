package workflow_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_TypedAccess(t *testing.T) {
	wc := workflow.NewContext("quote", nil)
	wc.Set("age", 42)
	wc.Set("Name", "Ana")

	age, ok := workflow.Get[int](wc, "age")
	assert.True(t, ok)
	assert.Equal(t, 42, age)

	_, ok = workflow.Get[string](wc, "age")
	assert.False(t, ok, "mistyped read must not panic")

	_, ok = wc.Get("name")
	assert.False(t, ok, "keys are case-sensitive")

	assert.Equal(t, "fallback", workflow.GetOr(wc, "missing", "fallback"))
	assert.Equal(t, []string{"Name", "age"}, wc.Keys())

	wc.Remove("age")
	assert.False(t, wc.Has("age"))
}

func TestContext_ChildIsIsolatedUntilMerge(t *testing.T) {
	wc := workflow.NewContext("t", nil)
	wc.Set("a", 1)

	child := wc.Child()
	child.Set("b", 2)
	child.Set("a", 10)

	assert.False(t, wc.Has("b"))
	assert.Equal(t, 1, workflow.GetOr(wc, "a", 0))

	wc.Merge(child)
	assert.Equal(t, 10, workflow.GetOr(wc, "a", 0))
	assert.Equal(t, 2, workflow.GetOr(wc, "b", 0))
}

func TestContext_SnapshotIsCopy(t *testing.T) {
	wc := workflow.NewContext("t", nil)
	wc.Set("a", 1)
	snap := wc.Snapshot()
	snap["a"] = 2
	assert.Equal(t, 1, workflow.GetOr(wc, "a", 0))
}

func TestContext_ConcurrentWriters(t *testing.T) {
	wc := workflow.NewContext("t", nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wc.Set("shared", i)
			_, _ = wc.Get("shared")
		}(i)
	}
	wg.Wait()
	assert.True(t, wc.Has("shared"))
}

func TestContext_DumpSkipsUnmarshallable(t *testing.T) {
	wc := workflow.NewContext("t", nil)
	wc.Set("ok", "yes")
	wc.Set("fn", func() {})

	out := workflow.Dump(wc)
	assert.Contains(t, out, `"ok": "yes"`)
	assert.NotContains(t, out, "fn")
}

func TestConversation_GlobalsOnlyThroughPromoter(t *testing.T) {
	conv := workflow.NewConversation("c1")
	wc := workflow.NewContext("t", conv)

	_, ok := wc.Global("lang")
	assert.False(t, ok)

	conv.Promoter().Promote("lang", "pt")
	v, ok := wc.Global("lang")
	require.True(t, ok)
	assert.Equal(t, "pt", v)
	assert.Equal(t, []string{"lang"}, conv.GlobalKeys())

	conv.Promoter().Demote("lang")
	_, ok = conv.Global("lang")
	assert.False(t, ok)
}

func TestConversation_ResetClearsGlobalsAndStack(t *testing.T) {
	conv := workflow.NewConversation("c1")
	conv.Promoter().Promote("x", 1)
	_, err := conv.CallStack().Push("main", "quote", nil)
	require.NoError(t, err)

	conv.Reset()

	assert.Empty(t, conv.GlobalKeys())
	assert.Equal(t, 0, conv.CallStack().Depth())
}

func TestCallStack_PushPopBalance(t *testing.T) {
	s := workflow.NewCallStack()

	frame, err := s.Push("main", "quote", map[string]any{"step": 1})
	require.NoError(t, err)
	assert.Equal(t, "main", frame.Caller)
	assert.False(t, frame.StartedAt.IsZero())

	_, err = s.Push("quote", "address", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Depth())

	popped, ok := s.Pop("address")
	require.True(t, ok)
	assert.Equal(t, "quote", popped.Caller)

	_, ok = s.Pop("address")
	assert.False(t, ok, "a frame pops exactly once")

	popped, ok = s.Pop("quote")
	require.True(t, ok)
	assert.Equal(t, 1, popped.ResumePayload["step"])
	assert.Equal(t, 0, s.Depth())
}

func TestCallStack_CycleIsPrevented(t *testing.T) {
	s := workflow.NewCallStack()
	_, err := s.Push("main", "quote", nil)
	require.NoError(t, err)

	_, err = s.Push("quote", "main", nil)
	assert.True(t, errors.Is(err, domain.ErrCircularCall))
	_, err = s.Push("quote", "quote", nil)
	assert.True(t, errors.Is(err, domain.ErrCircularCall))

	assert.Equal(t, 1, s.Depth(), "no frame is pushed for a prevented call")
}

func TestCallStack_FramesIsCopy(t *testing.T) {
	s := workflow.NewCallStack()
	_, _ = s.Push("a", "b", nil)
	frames := s.Frames()
	frames[0].Callee = "z"

	top, ok := s.Peek()
	require.True(t, ok)
	assert.Equal(t, "b", top.Callee)
}

func TestConversation_Restore(t *testing.T) {
	conv := workflow.NewConversation("c1")
	conv.Restore(map[string]any{"k": "v"}, []domain.CallFrame{{Caller: "a", Callee: "b"}})

	v, ok := conv.Global("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	_, ok = conv.CallStack().FrameFor("b")
	assert.True(t, ok)
}

func TestCallStack_Retarget(t *testing.T) {
	s := workflow.NewCallStack()
	_, err := s.Push("main", "sales", map[string]any{"lead": 1})
	require.NoError(t, err)

	assert.True(t, s.Retarget("sales", "billing"))
	assert.False(t, s.Retarget("sales", "other"))

	frame, ok := s.Pop("billing")
	require.True(t, ok)
	assert.Equal(t, "main", frame.Caller)
	assert.Equal(t, 1, frame.ResumePayload["lead"])
	assert.Zero(t, s.Depth())
}
