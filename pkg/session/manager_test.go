package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/tendril/internal/runtime"
	"github.com/aretw0/tendril/pkg/activity"
	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/session"
	"github.com/aretw0/tendril/pkg/topic"
	"github.com/aretw0/tendril/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clock = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// counterCatalog has a "count" topic that bumps a global on every run and a
// "wait" topic that waits a minute for a host event.
func counterCatalog(t *testing.T) *topic.Catalog {
	t.Helper()
	cat, err := topic.NewCatalog(
		topic.Definition{
			Name:     "count",
			Keywords: []string{"count"},
			Build: func(env topic.Env) ([]activity.Activity, error) {
				p := env.Promoter
				bump, err := activity.NewSimple("bump", func(_ context.Context, wc *workflow.Context, _ any) (domain.ActivityResult, error) {
					n, _ := wc.Global("n")
					v, _ := n.(float64)
					p.Promote("n", v+1)
					return domain.Continue("", nil), nil
				})
				if err != nil {
					return nil, err
				}
				return []activity.Activity{bump}, nil
			},
		},
		topic.Definition{
			Name:     "wait",
			Keywords: []string{"wait"},
			Build: func(topic.Env) ([]activity.Activity, error) {
				ev, err := activity.NewEventTrigger("ask", "lookup",
					activity.AwaitResponse(time.Minute),
					activity.WithClock(func() time.Time { return clock }),
				)
				if err != nil {
					return nil, err
				}
				return []activity.Activity{ev}, nil
			},
		},
	)
	require.NoError(t, err)
	return cat
}

func newManager(t *testing.T, store *memory.Store, opts ...session.Option) *session.Manager {
	t.Helper()
	cat := counterCatalog(t)
	build := func(conv *workflow.Conversation) (*runtime.Orchestrator, error) {
		reg, err := cat.Build(topic.EnvFor(conv))
		if err != nil {
			return nil, err
		}
		return runtime.New(conv, reg)
	}
	mgr, err := session.NewManager(store, build, opts...)
	require.NoError(t, err)
	return mgr
}

func TestManager_SendPersistsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	mgr := newManager(t, store)

	turn, err := mgr.Send(ctx, "c1", "count please")
	require.NoError(t, err)
	assert.Equal(t, "c1", turn.ConversationID)
	assert.Equal(t, "count", turn.ActiveTopic)

	snap, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "count", snap.ActiveTopic)
	assert.EqualValues(t, 1, snap.Globals["n"])

	ids, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)
}

func TestManager_TurnsAreSerialized(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	mgr := newManager(t, store)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Send(ctx, "race", "count")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := mgr.Snapshot(ctx, "race")
	require.NoError(t, err)
	assert.EqualValues(t, 20, snap.Globals["n"])
}

func TestManager_RestoresGlobalsAfterEviction(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	mgr := newManager(t, store)

	_, err := mgr.Send(ctx, "c", "count")
	require.NoError(t, err)
	require.NoError(t, mgr.Evict(ctx, "c"))
	assert.Empty(t, mgr.Live())

	_, err = mgr.Send(ctx, "c", "count")
	require.NoError(t, err)
	snap, err := mgr.Snapshot(ctx, "c")
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap.Globals["n"])
}

func TestManager_ResetAndDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	mgr := newManager(t, store)

	_, err := mgr.Send(ctx, "c", "count")
	require.NoError(t, err)

	require.NoError(t, mgr.Reset(ctx, "c"))
	snap, err := store.Load(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, snap.Globals)
	assert.Empty(t, snap.ActiveTopic)

	require.NoError(t, mgr.Delete(ctx, "c"))
	_, err = mgr.Snapshot(ctx, "c")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_SweepDeliversTimeouts(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.NewStore())

	var mu sync.Mutex
	var seen []*domain.Turn
	cancel := mgr.Subscribe(func(turn *domain.Turn) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, turn)
	})
	defer cancel()

	turn, err := mgr.Send(ctx, "w", "please wait")
	require.NoError(t, err)
	require.True(t, turn.Waiting)
	_, err = mgr.Send(ctx, "other", "count")
	require.NoError(t, err)

	fired, err := mgr.Sweep(ctx, clock.Add(30*time.Second))
	require.NoError(t, err)
	assert.Zero(t, fired)

	fired, err = mgr.Sweep(ctx, clock.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Equal(t, "w", seen[2].ConversationID)
	assert.Equal(t, domain.ResultCancelled, seen[2].Result.Kind)
}

func TestManager_SubscribeCancel(t *testing.T) {
	mgr := newManager(t, memory.NewStore())
	calls := 0
	cancel := mgr.Subscribe(func(*domain.Turn) { calls++ })
	_, err := mgr.Send(context.Background(), "c", "count")
	require.NoError(t, err)
	cancel()
	_, err = mgr.Send(context.Background(), "c", "count")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

type recordingLocker struct {
	*memory.Locker
	mu   sync.Mutex
	keys []string
	ttls []time.Duration
	fail error
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.ttls = append(l.ttls, ttl)
	fail := l.fail
	l.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return l.Locker.Lock(ctx, key, ttl)
}

func TestManager_UsesDistributedLocker(t *testing.T) {
	locker := &recordingLocker{Locker: memory.NewLocker()}
	mgr := newManager(t, memory.NewStore(), session.WithLocker(locker), session.WithLockTTL(5*time.Second))

	_, err := mgr.Send(context.Background(), "c", "count")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, locker.keys)
	assert.Equal(t, []time.Duration{5 * time.Second}, locker.ttls)

	locker.fail = errors.New("redis down")
	_, err = mgr.Send(context.Background(), "c", "count")
	assert.ErrorContains(t, err, "distributed lock")
}

func TestNewManager_RequiresStoreAndBuilder(t *testing.T) {
	_, err := session.NewManager(nil, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
