// Package metrics exports engine activity as Prometheus metrics.
//
// A Collector turns lifecycle hooks into counters and histograms:
//
//	col := metrics.NewCollector(prometheus.DefaultRegisterer)
//	eng, err := tendril.New(catalog, tendril.WithLifecycleHooks(col.Hooks()))
package metrics

import (
	"context"
	"time"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "tendril"

// Collector holds the engine metrics.
type Collector struct {
	topicTransitions    *prometheus.CounterVec
	activityTransitions *prometheus.CounterVec
	calls               *prometheus.CounterVec
	callDepth           prometheus.Histogram
	turnDuration        *prometheus.HistogramVec
	replies             *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		topicTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "topic_transitions_total",
			Help:      "Topic state changes by topic and target state.",
		}, []string{"topic", "to"}),
		activityTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "activity_transitions_total",
			Help:      "Activity state changes by target state.",
		}, []string{"topic", "to"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "topic_calls_total",
			Help:      "Waiting topic calls by callee and direction (push or pop).",
		}, []string{"callee", "direction"}),
		callDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "call_stack_depth",
			Help:      "Call stack depth observed after each push.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8},
		}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time spent handling one piece of input, by result kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "replies_total",
			Help:      "Outbound replies by kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(
			c.topicTransitions,
			c.activityTransitions,
			c.calls,
			c.callDepth,
			c.turnDuration,
			c.replies,
		)
	}
	return c
}

// Hooks returns lifecycle hooks feeding the collector.
func (c *Collector) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTopicTransition: func(_ context.Context, e *domain.TopicEvent) {
			c.topicTransitions.WithLabelValues(e.Topic, string(e.To)).Inc()
		},
		OnActivityTransition: func(_ context.Context, e *domain.ActivityEvent) {
			c.activityTransitions.WithLabelValues(e.Topic, string(e.To)).Inc()
		},
		OnCallPush: func(_ context.Context, e *domain.CallEvent) {
			c.calls.WithLabelValues(e.Frame.Callee, "push").Inc()
			c.callDepth.Observe(float64(e.Depth))
		},
		OnCallPop: func(_ context.Context, e *domain.CallEvent) {
			c.calls.WithLabelValues(e.Frame.Callee, "pop").Inc()
		},
		OnTurn: func(_ context.Context, t *domain.Turn, d time.Duration) {
			c.turnDuration.WithLabelValues(string(t.Result.Kind)).Observe(d.Seconds())
			for _, r := range t.Replies {
				c.replies.WithLabelValues(string(r.Kind)).Inc()
			}
		},
	}
}
