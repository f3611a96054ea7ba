package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(o *Orchestrator) { o.hooks = h }
}

// WithMatcher replaces the keyword intent matcher.
func WithMatcher(m ports.IntentMatcher) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.matcher = m
		}
	}
}

// WithFallback names the topic used when no topic matches the input.
func WithFallback(name string) Option {
	return func(o *Orchestrator) { o.fallback = name }
}

// WithEscalation names the topic started after an engine failure.
func WithEscalation(name string) Option {
	return func(o *Orchestrator) { o.escalation = name }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Messages the orchestrator says on its own behalf.
const (
	msgNotUnderstood = "Sorry, I didn't understand that. Could you rephrase?"
	msgUnavailable   = "Sorry, %s is not available right now."
	msgFailure       = "Something went wrong on our side. Let's start over from here."
)
