package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/tendril/pkg/domain"
)

// Hooks returns lifecycle hooks that log engine activity at debug level,
// and every turn at info level.
func Hooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTopicTransition: func(ctx context.Context, e *domain.TopicEvent) {
			logger.DebugContext(ctx, "topic_transition", "topic", e.Topic, "from", e.From, "to", e.To)
		},
		OnActivityTransition: func(ctx context.Context, e *domain.ActivityEvent) {
			logger.DebugContext(ctx, "activity_transition", "topic", e.Topic, "activity", e.ActivityID, "from", e.From, "to", e.To)
		},
		OnCallPush: func(ctx context.Context, e *domain.CallEvent) {
			logger.DebugContext(ctx, "call_push", "caller", e.Frame.Caller, "callee", e.Frame.Callee, "depth", e.Depth)
		},
		OnCallPop: func(ctx context.Context, e *domain.CallEvent) {
			logger.DebugContext(ctx, "call_pop", "caller", e.Frame.Caller, "callee", e.Frame.Callee, "depth", e.Depth)
		},
		OnTurn: func(ctx context.Context, t *domain.Turn, d time.Duration) {
			logger.InfoContext(ctx, "turn",
				"conversation", t.ConversationID,
				"topic", t.ActiveTopic,
				"result", t.Result.Kind,
				"replies", len(t.Replies),
				"waiting", t.Waiting,
				"duration", d,
			)
		},
	}
}

// ParseLevel maps a config string to a slog level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
