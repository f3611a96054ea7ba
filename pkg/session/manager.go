package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/internal/runtime"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/workflow"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// Builder creates the orchestrator of a new conversation.
type Builder func(conv *workflow.Conversation) (*runtime.Orchestrator, error)

// TurnListener observes every turn the manager produces, including those
// raised by Sweep.
type TurnListener func(turn *domain.Turn)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager owns the live conversations of a process. Turns of one
// conversation are serialized; different conversations run concurrently.
// Locks are reference counted so idle conversations leave nothing behind.
type Manager struct {
	store ports.SnapshotStore
	build Builder

	mu    sync.Mutex            // guards locks
	locks map[string]*lockEntry // active locks

	live sync.Map // conversation id -> *runtime.Orchestrator

	lmu       sync.RWMutex
	listeners map[int]TurnListener
	nextID    int

	locker  ports.DistributedLocker // optional
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager persisting snapshots to store.
func NewManager(store ports.SnapshotStore, build Builder, opts ...Option) (*Manager, error) {
	if store == nil || build == nil {
		return nil, domain.NewConfigError("session", "store and builder are required")
	}
	m := &Manager{
		store:     store,
		build:     build,
		locks:     make(map[string]*lockEntry),
		listeners: make(map[int]TurnListener),
		lockTTL:   DefaultLockTTL,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(id) after unlocking.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// WithLock executes fn while holding the lock for the conversation.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"conversation", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Send handles one piece of user input for conversation id, creating the
// conversation on first contact.
func (m *Manager) Send(ctx context.Context, id string, input any) (*domain.Turn, error) {
	return m.turn(ctx, id, func(o *runtime.Orchestrator) (*domain.Turn, error) {
		return o.HandleInput(ctx, input)
	})
}

// Start activates a topic by name in conversation id.
func (m *Manager) Start(ctx context.Context, id, topicName string, seed map[string]any) (*domain.Turn, error) {
	return m.turn(ctx, id, func(o *runtime.Orchestrator) (*domain.Turn, error) {
		return o.Start(ctx, topicName, seed)
	})
}

// Reset clears conversation id and persists the empty state.
func (m *Manager) Reset(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		o, err := m.orchestrator(ctx, id)
		if err != nil {
			return err
		}
		if err := o.Reset(ctx); err != nil {
			return err
		}
		return m.store.Save(ctx, id, o.Snapshot())
	})
}

// Snapshot returns the live view of conversation id, or its persisted one.
func (m *Manager) Snapshot(ctx context.Context, id string) (*domain.ConversationSnapshot, error) {
	var snap *domain.ConversationSnapshot
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		if o, ok := m.cached(id); ok {
			snap = o.Snapshot()
			return nil
		}
		var err error
		snap, err = m.store.Load(ctx, id)
		return err
	})
	return snap, err
}

// Delete forgets conversation id.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		m.live.Delete(id)
		return m.store.Delete(ctx, id)
	})
}

// Evict drops the in-memory orchestrator of id; its snapshot stays in the store.
func (m *Manager) Evict(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(context.Context) error {
		m.live.Delete(id)
		return nil
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Live returns the ids of the conversations held in memory, sorted.
func (m *Manager) Live() []string {
	var ids []string
	m.live.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	slices.Sort(ids)
	return ids
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.SnapshotStore {
	return m.store
}

// Sweep delivers expired deadlines to every live conversation and returns
// how many produced a turn.
func (m *Manager) Sweep(ctx context.Context, now time.Time) (int, error) {
	var fired int
	var errs []error
	for _, id := range m.Live() {
		err := m.WithLock(ctx, id, func(ctx context.Context) error {
			o, ok := m.cached(id)
			if !ok {
				return nil
			}
			turn, err := o.Tick(ctx, now)
			if err != nil || turn == nil {
				return err
			}
			fired++
			m.notify(turn)
			return m.store.Save(ctx, id, o.Snapshot())
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", id, err))
		}
	}
	return fired, errors.Join(errs...)
}

// Subscribe registers a listener for every turn; the returned func removes it.
func (m *Manager) Subscribe(fn TurnListener) func() {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.lmu.Lock()
		defer m.lmu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) notify(turn *domain.Turn) {
	m.lmu.RLock()
	defer m.lmu.RUnlock()
	for _, fn := range m.listeners {
		fn(turn)
	}
}

func (m *Manager) turn(ctx context.Context, id string, fn func(*runtime.Orchestrator) (*domain.Turn, error)) (*domain.Turn, error) {
	var turn *domain.Turn
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		o, err := m.orchestrator(ctx, id)
		if err != nil {
			return err
		}
		turn, err = fn(o)
		if err != nil {
			return err
		}
		if err := m.store.Save(ctx, id, o.Snapshot()); err != nil {
			return fmt.Errorf("failed to persist conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.notify(turn)
	return turn, nil
}

func (m *Manager) cached(id string) (*runtime.Orchestrator, bool) {
	v, ok := m.live.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*runtime.Orchestrator), true
}

// orchestrator returns the live orchestrator of id, building it and
// restoring persisted globals when absent. Must be called under the lock.
func (m *Manager) orchestrator(ctx context.Context, id string) (*runtime.Orchestrator, error) {
	if o, ok := m.cached(id); ok {
		return o, nil
	}
	o, err := m.build(workflow.NewConversation(id))
	if err != nil {
		return nil, fmt.Errorf("failed to build conversation %s: %w", id, err)
	}
	snap, err := m.store.Load(ctx, id)
	switch {
	case err == nil:
		o.Restore(snap)
		m.logger.Debug("conversation restored", "conversation", id)
	case errors.Is(err, domain.ErrSessionNotFound):
	default:
		return nil, fmt.Errorf("failed to check conversation existence: %w", err)
	}
	m.live.Store(id, o)
	return o, nil
}
