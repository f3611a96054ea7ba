package tendril

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/internal/runtime"
	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/session"
	"github.com/aretw0/tendril/pkg/topic"
	"github.com/aretw0/tendril/pkg/workflow"
)

// Engine is the high-level entry point for the Tendril library.
// It builds a fresh set of topics for every conversation from the catalog
// and serializes the turns of each conversation.
type Engine struct {
	catalog  *topic.Catalog
	sessions *session.Manager

	store      ports.SnapshotStore
	locker     ports.DistributedLocker
	lockTTL    time.Duration
	completion ports.CompletionService
	saver      ports.ModelSaver
	matcher    ports.IntentMatcher
	llmRouting bool
	fallback   string
	escalation string
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithStore persists conversation snapshots. Defaults to memory.
func WithStore(store ports.SnapshotStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLocker coordinates turns across replicas.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = locker
		e.lockTTL = ttl
	}
}

// WithCompletionService hands an LLM to topics that use one.
func WithCompletionService(svc ports.CompletionService) Option {
	return func(e *Engine) {
		e.completion = svc
	}
}

// WithModelSaver hands a persistence boundary to topics that save models.
func WithModelSaver(saver ports.ModelSaver) Option {
	return func(e *Engine) {
		e.saver = saver
	}
}

// WithIntentMatcher replaces the keyword matcher.
func WithIntentMatcher(m ports.IntentMatcher) Option {
	return func(e *Engine) {
		e.matcher = m
	}
}

// WithLLMRouting classifies input with the completion service, falling back
// to keywords. It has no effect without WithCompletionService.
func WithLLMRouting() Option {
	return func(e *Engine) {
		e.llmRouting = true
	}
}

// WithFallbackTopic names the topic used when nothing matches.
func WithFallbackTopic(name string) Option {
	return func(e *Engine) {
		e.fallback = name
	}
}

// WithEscalationTopic names the topic started after an engine failure.
func WithEscalationTopic(name string) Option {
	return func(e *Engine) {
		e.escalation = name
	}
}

// New initializes a new Tendril Engine over catalog.
func New(catalog *topic.Catalog, opts ...Option) (*Engine, error) {
	if catalog == nil {
		return nil, domain.NewConfigError("engine", "a topic catalog is required")
	}
	eng := &Engine{
		catalog:    catalog,
		fallback:   domain.DefaultFallbackTopic,
		escalation: domain.DefaultEscalationTopic,
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if eng.matcher == nil && eng.llmRouting && eng.completion != nil {
		eng.matcher = runtime.NewLLMMatcher(eng.completion, eng.logger)
	}

	sessionOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker), session.WithLockTTL(eng.lockTTL))
	}
	sessions, err := session.NewManager(eng.store, eng.build, sessionOpts...)
	if err != nil {
		return nil, err
	}
	eng.sessions = sessions
	return eng, nil
}

func (e *Engine) build(conv *workflow.Conversation) (*runtime.Orchestrator, error) {
	env := topic.EnvFor(conv)
	env.Completion = e.completion
	env.Saver = e.saver
	env.Logger = e.logger.With("conversation", conv.ID())
	reg, err := e.catalog.Build(env)
	if err != nil {
		return nil, err
	}
	opts := []runtime.Option{
		runtime.WithLogger(e.logger),
		runtime.WithLifecycleHooks(e.hooks),
		runtime.WithFallback(e.fallback),
		runtime.WithEscalation(e.escalation),
	}
	if e.matcher != nil {
		opts = append(opts, runtime.WithMatcher(e.matcher))
	}
	return runtime.New(conv, reg, opts...)
}

// Send delivers one piece of user input to a conversation, creating it on
// first contact. Input is free text or, for a waiting card, a map of field values.
func (e *Engine) Send(ctx context.Context, conversationID string, input any) (*domain.Turn, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("send: empty conversation id")
	}
	return e.sessions.Send(ctx, conversationID, input)
}

// Start activates a topic by name, skipping intent matching.
func (e *Engine) Start(ctx context.Context, conversationID, topicName string, seed map[string]any) (*domain.Turn, error) {
	return e.sessions.Start(ctx, conversationID, topicName, seed)
}

// Reset clears every topic, call frame and global of a conversation.
func (e *Engine) Reset(ctx context.Context, conversationID string) error {
	return e.sessions.Reset(ctx, conversationID)
}

// Snapshot returns the current view of a conversation.
func (e *Engine) Snapshot(ctx context.Context, conversationID string) (*domain.ConversationSnapshot, error) {
	return e.sessions.Snapshot(ctx, conversationID)
}

// Delete forgets a conversation.
func (e *Engine) Delete(ctx context.Context, conversationID string) error {
	return e.sessions.Delete(ctx, conversationID)
}

// Conversations lists the persisted conversation ids.
func (e *Engine) Conversations(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

// Topics describes the catalog.
func (e *Engine) Topics() []domain.TopicInfo {
	return e.catalog.Infos()
}

// Catalog returns the topic catalog the engine builds from.
func (e *Engine) Catalog() *topic.Catalog {
	return e.catalog
}

// Subscribe observes every turn, including those produced by timeouts.
func (e *Engine) Subscribe(fn func(*domain.Turn)) (cancel func()) {
	return e.sessions.Subscribe(fn)
}

// Sweep delivers expired wait deadlines once.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	return e.sessions.Sweep(ctx, time.Now())
}

// RunSweeper calls Sweep every interval until ctx is done.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Sweep(ctx); err != nil {
				e.logger.Warn("sweep failed", "error", err)
			}
		}
	}
}
