package metrics_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	hooks := metrics.NewCollector(reg).Hooks()
	ctx := context.Background()

	hooks.OnTopicTransition(ctx, &domain.TopicEvent{Topic: "quote", From: domain.TopicIdle, To: domain.TopicRunning})
	hooks.OnTopicTransition(ctx, &domain.TopicEvent{Topic: "quote", From: domain.TopicRunning, To: domain.TopicCompleted})
	hooks.OnActivityTransition(ctx, &domain.ActivityEvent{Topic: "quote", ActivityID: "card", To: domain.StateRunning})
	hooks.OnCallPush(ctx, &domain.CallEvent{Frame: domain.CallFrame{Caller: "main", Callee: "address"}, Depth: 1})
	hooks.OnCallPop(ctx, &domain.CallEvent{Frame: domain.CallFrame{Caller: "main", Callee: "address"}})
	hooks.OnTurn(ctx, &domain.Turn{
		Result:  domain.End(nil),
		Replies: []domain.Reply{{Kind: domain.ReplyMessage}, {Kind: domain.ReplyCard}, {Kind: domain.ReplyMessage}},
	}, 20*time.Millisecond)

	expected := `
# HELP tendril_topic_transitions_total Topic state changes by topic and target state.
# TYPE tendril_topic_transitions_total counter
tendril_topic_transitions_total{to="completed",topic="quote"} 1
tendril_topic_transitions_total{to="running",topic="quote"} 1
# HELP tendril_topic_calls_total Waiting topic calls by callee and direction (push or pop).
# TYPE tendril_topic_calls_total counter
tendril_topic_calls_total{callee="address",direction="pop"} 1
tendril_topic_calls_total{callee="address",direction="push"} 1
# HELP tendril_replies_total Outbound replies by kind.
# TYPE tendril_replies_total counter
tendril_replies_total{kind="card"} 1
tendril_replies_total{kind="message"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"tendril_topic_transitions_total", "tendril_topic_calls_total", "tendril_replies_total"))

	count, err := testutil.GatherAndCount(reg, "tendril_turn_duration_seconds", "tendril_call_stack_depth", "tendril_activity_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCollector_Unregistered(t *testing.T) {
	c := metrics.NewCollector(nil)
	assert.NotPanics(t, func() {
		c.Hooks().OnCallPush(context.Background(), &domain.CallEvent{Depth: 2})
	})
}
