package runtime

import (
	"github.com/aretw0/tendril/pkg/domain"
)

func (o *Orchestrator) emitTopicTransition(e *domain.Event) {
	if o.hooks.OnTopicTransition == nil {
		return
	}
	o.hooks.OnTopicTransition(o.turnCtx, &domain.TopicEvent{
		Topic:     e.Topic,
		From:      e.TopicFrom,
		To:        e.TopicTo,
		Timestamp: e.Timestamp,
	})
}

func (o *Orchestrator) emitActivityTransition(e *domain.Event) {
	if o.hooks.OnActivityTransition == nil {
		return
	}
	o.hooks.OnActivityTransition(o.turnCtx, &domain.ActivityEvent{
		Topic:      e.Topic,
		ActivityID: e.Source,
		From:       e.From,
		To:         e.To,
		Timestamp:  e.Timestamp,
	})
}

func (o *Orchestrator) emitCallPush(frame domain.CallFrame) {
	o.logger.Debug("call pushed", "caller", frame.Caller, "callee", frame.Callee)
	if o.hooks.OnCallPush == nil {
		return
	}
	o.hooks.OnCallPush(o.turnCtx, &domain.CallEvent{Frame: frame, Depth: o.conv.CallStack().Depth()})
}

func (o *Orchestrator) emitCallPop(frame domain.CallFrame) {
	o.logger.Debug("call popped", "caller", frame.Caller, "callee", frame.Callee)
	if o.hooks.OnCallPop == nil {
		return
	}
	o.hooks.OnCallPop(o.turnCtx, &domain.CallEvent{Frame: frame, Depth: o.conv.CallStack().Depth()})
}
