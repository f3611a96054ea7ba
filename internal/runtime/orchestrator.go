package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/events"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/topic"
	"github.com/aretw0/tendril/pkg/workflow"
)

// Orchestrator owns one conversation: its topics, the active topic, the
// callers paused on a sub-topic and the replies of the current turn.
// Turns are serialized; HandleInput, Start, Reset and Tick may be called
// from any goroutine.
type Orchestrator struct {
	conv    *workflow.Conversation
	topics  topic.Lookup
	matcher ports.IntentMatcher
	logger  *slog.Logger
	hooks   domain.LifecycleHooks
	now     func() time.Time

	fallback   string
	escalation string

	mu        sync.Mutex
	active    *topic.Topic
	activeSub events.Unsubscribe
	paused    []*topic.Topic

	// emu guards the fields observe writes; triggers outlive the turn that
	// raised them while their caller is paused
	emu            sync.Mutex
	turnCtx        context.Context
	replies        []domain.Reply
	triggers       []domain.TopicTrigger
	resetRequested bool
}

// New creates an orchestrator for conv over topics.
func New(conv *workflow.Conversation, topics topic.Lookup, opts ...Option) (*Orchestrator, error) {
	if conv == nil || topics == nil {
		return nil, domain.NewConfigError("orchestrator", "conversation and topics are required")
	}
	o := &Orchestrator{
		conv:       conv,
		topics:     topics,
		matcher:    topic.KeywordMatcher{},
		logger:     logging.NewNop(),
		now:        time.Now,
		fallback:   domain.DefaultFallbackTopic,
		escalation: domain.DefaultEscalationTopic,
		turnCtx:    context.Background(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Conversation returns the conversation this orchestrator drives.
func (o *Orchestrator) Conversation() *workflow.Conversation { return o.conv }

// Topics describes the registered topics.
func (o *Orchestrator) Topics() []domain.TopicInfo { return o.topics.Topics() }

// ActiveTopic returns the name of the active topic, if any.
func (o *Orchestrator) ActiveTopic() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return ""
	}
	return o.active.Name()
}

// Waiting reports whether the conversation is suspended on the user.
func (o *Orchestrator) Waiting() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active != nil && o.active.IsWaiting()
}

// HandleInput processes one piece of user input. A waiting topic receives it
// directly; otherwise the input is matched to a topic, falling back to the
// fallback topic.
func (o *Orchestrator) HandleInput(ctx context.Context, input any) (*domain.Turn, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	start := o.begin(ctx)

	if o.active != nil && o.active.IsWaiting() {
		res, err := o.active.Step(ctx, input)
		res, err = o.drive(ctx, res, err)
		return o.finish(start, res, err)
	}

	text := utterance(input)
	name, ok := o.matcher.Match(ctx, text, o.topics.Topics())
	if !ok {
		o.logger.Debug("no topic matched", "conversation", o.conv.ID(), "input", text)
		name = o.fallback
	}
	res, err := o.startTopic(ctx, name, map[string]any{"utterance": text})
	return o.finish(start, res, err)
}

// Start activates a topic by name regardless of the input matcher.
// A topic waiting on the user is abandoned.
func (o *Orchestrator) Start(ctx context.Context, name string, seed map[string]any) (*domain.Turn, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	start := o.begin(ctx)

	if _, ok := o.topics.Topic(name); !ok {
		return nil, fmt.Errorf("start %q: %w", name, domain.ErrTopicNotFound)
	}
	o.abandon()
	res, err := o.startTopic(ctx, name, seed)
	return o.finish(start, res, err)
}

// Reset returns every topic to Idle and clears the call stack, paused
// topics and conversation globals.
func (o *Orchestrator) Reset(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.begin(ctx)
	o.resetAll()
	return nil
}

// Tick delivers domain.Timeout to the waiting activity whose deadline has
// passed. It returns a nil turn when nothing expired.
func (o *Orchestrator) Tick(ctx context.Context, now time.Time) (*domain.Turn, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active == nil || !o.active.IsWaiting() {
		return nil, nil
	}
	act := o.active.Current()
	if act == nil {
		return nil, nil
	}
	deadline := act.Capabilities().Deadline
	if deadline == nil {
		return nil, nil
	}
	at, ok := deadline()
	if !ok || now.Before(at) {
		return nil, nil
	}

	start := o.begin(ctx)
	o.logger.Debug("wait expired", "conversation", o.conv.ID(), "topic", o.active.Name(), "activity", act.ID())
	res, err := o.active.Step(ctx, domain.Timeout{})
	res, err = o.drive(ctx, res, err)
	return o.finish(start, res, err)
}

// Snapshot exports the conversation.
func (o *Orchestrator) Snapshot() *domain.ConversationSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := domain.NewConversationSnapshot(o.conv.ID())
	snap.UpdatedAt = o.now()
	snap.Globals = o.conv.Globals()
	snap.CallStack = o.conv.CallStack().Frames()
	if o.active != nil {
		snap.ActiveTopic = o.active.Name()
	}
	for _, t := range o.paused {
		snap.Paused = append(snap.Paused, t.Name())
	}
	for _, t := range o.topics.All() {
		snap.Topics = append(snap.Topics, t.Snapshot())
	}
	return snap
}

// Restore brings back the conversation globals of a persisted snapshot.
// Topics restart fresh; pending call frames are dropped since their callers
// cannot be resumed by a new process.
func (o *Orchestrator) Restore(snap *domain.ConversationSnapshot) {
	if snap == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conv.Restore(snap.Globals, nil)
}

func (o *Orchestrator) begin(ctx context.Context) time.Time {
	o.turnCtx = ctx
	o.replies = nil
	o.resetRequested = false
	return o.now()
}

func (o *Orchestrator) finish(start time.Time, res domain.ActivityResult, err error) (*domain.Turn, error) {
	if err != nil {
		return nil, err
	}
	turn := &domain.Turn{
		ConversationID: o.conv.ID(),
		Replies:        o.replies,
		Result:         res,
		CallDepth:      o.conv.CallStack().Depth(),
	}
	if o.active != nil {
		turn.ActiveTopic = o.active.Name()
		turn.Waiting = o.active.IsWaiting()
	}
	o.replies = nil
	if o.hooks.OnTurn != nil {
		o.hooks.OnTurn(o.turnCtx, turn, o.now().Sub(start))
	}
	return turn, nil
}

// startTopic activates name and runs it. Unknown names fall back once.
func (o *Orchestrator) startTopic(ctx context.Context, name string, seed map[string]any) (domain.ActivityResult, error) {
	t, ok := o.topics.Topic(name)
	if !ok {
		o.logger.Warn("topic not found", "conversation", o.conv.ID(), "topic", name)
		o.say(msgNotUnderstood)
		if name == o.fallback {
			return domain.End(nil), nil
		}
		if t, ok = o.topics.Topic(o.fallback); !ok {
			return domain.End(nil), nil
		}
	}
	if err := o.activate(t, seed); err != nil {
		return domain.ActivityResult{}, err
	}
	res, err := t.Step(ctx, nil)
	return o.drive(ctx, res, err)
}

// drive settles the effects of one step: failures, reset requests, queued
// topic triggers and returns from sub-topics, until the conversation rests.
func (o *Orchestrator) drive(ctx context.Context, res domain.ActivityResult, err error) (domain.ActivityResult, error) {
	for {
		if err != nil {
			return o.fail(ctx, err)
		}
		if o.resetRequested {
			o.resetAll()
			return res, nil
		}
		if trig, ok := o.nextTrigger(res); ok {
			res, err = o.handleTrigger(ctx, trig, res)
			continue
		}

		switch o.active.State() {
		case domain.TopicCompleted:
			frame, ok := o.conv.CallStack().Pop(o.active.Name())
			if !ok || len(o.paused) == 0 {
				return res, nil
			}
			res, err = o.resumeCaller(ctx, frame, o.active.Context().Snapshot())
		case domain.TopicFailed:
			frame, ok := o.conv.CallStack().Pop(o.active.Name())
			if !ok || len(o.paused) == 0 {
				return res, nil
			}
			note := map[string]any{domain.KeyLastError: fmt.Sprintf("topic %q did not complete: %s", o.active.Name(), res.Reason)}
			res, err = o.resumeCaller(ctx, frame, note)
		default:
			return res, nil
		}
	}
}

// nextTrigger dequeues the first trigger the active topic can act on: one it
// raised itself and, in wait mode, the one it is suspended on. Triggers of
// paused callers stay queued until their caller is active again.
func (o *Orchestrator) nextTrigger(res domain.ActivityResult) (domain.TopicTrigger, bool) {
	if o.active == nil {
		return domain.TopicTrigger{}, false
	}
	o.emu.Lock()
	defer o.emu.Unlock()
	for i, trig := range o.triggers {
		if trig.Caller != o.active.Name() {
			continue
		}
		if trig.WaitForCompletion && (res.Kind != domain.ResultWaitForSubTopic || res.Topic != trig.Target) {
			continue
		}
		o.triggers = slices.Delete(o.triggers, i, i+1)
		return trig, true
	}
	return domain.TopicTrigger{}, false
}

func (o *Orchestrator) handleTrigger(ctx context.Context, trig domain.TopicTrigger, res domain.ActivityResult) (domain.ActivityResult, error) {
	callee, found := o.topics.Topic(trig.Target)
	stack := o.conv.CallStack()

	if !trig.WaitForCompletion {
		if !found {
			o.logger.Warn("triggered topic not found", "conversation", o.conv.ID(), "topic", trig.Target)
			o.say(fmt.Sprintf(msgUnavailable, trig.Target))
			return res, nil
		}
		caller := o.active
		if caller != nil && stack.Retarget(caller.Name(), trig.Target) {
			o.logger.Debug("call frame handed off", "from", caller.Name(), "to", trig.Target)
		}
		if err := o.activate(callee, trig.Args); err != nil {
			return domain.ActivityResult{}, err
		}
		return callee.Step(ctx, nil)
	}

	frame, ok := stack.FrameFor(trig.Target)
	if !found {
		stack.Pop(trig.Target)
		o.logger.Warn("triggered topic not found", "conversation", o.conv.ID(), "topic", trig.Target)
		o.say(fmt.Sprintf(msgUnavailable, trig.Target))
		payload := maps.Clone(frame.ResumePayload)
		if payload == nil {
			payload = make(map[string]any)
		}
		payload[domain.KeyLastError] = fmt.Sprintf("%s: %v", trig.Target, domain.ErrTopicNotFound)
		return o.active.Step(ctx, payload)
	}
	if !ok {
		return domain.ActivityResult{}, fmt.Errorf("trigger %s -> %s: no call frame", trig.Caller, trig.Target)
	}

	o.emitCallPush(frame)
	o.paused = append(o.paused, o.active)
	if err := o.activate(callee, frame.ResumePayload); err != nil {
		return domain.ActivityResult{}, err
	}
	return callee.Step(ctx, nil)
}

// resumeCaller reattaches the most recently paused topic and hands it the
// frame payload merged with values.
func (o *Orchestrator) resumeCaller(ctx context.Context, frame domain.CallFrame, values map[string]any) (domain.ActivityResult, error) {
	caller := o.paused[len(o.paused)-1]
	o.paused = o.paused[:len(o.paused)-1]
	if caller.Name() != frame.Caller {
		o.logger.Warn("call frame does not match paused topic", "frame_caller", frame.Caller, "paused", caller.Name())
	}
	o.emitCallPop(frame)

	payload := maps.Clone(frame.ResumePayload)
	if payload == nil {
		payload = make(map[string]any, len(values))
	}
	maps.Copy(payload, values)

	o.attach(caller)
	return caller.Step(ctx, payload)
}

func (o *Orchestrator) fail(ctx context.Context, cause error) (domain.ActivityResult, error) {
	failed := ""
	if o.active != nil {
		failed = o.active.Name()
	}
	o.logger.Error("turn failed", "conversation", o.conv.ID(), "topic", failed, "error", cause)
	o.say(msgFailure)

	for _, t := range o.paused {
		t.Terminate()
	}
	o.paused = nil
	o.triggers = nil
	o.conv.CallStack().Clear()

	res := domain.Cancelled(cause.Error())
	esc, ok := o.topics.Topic(o.escalation)
	if !ok || failed == o.escalation {
		return res, nil
	}
	if err := o.activate(esc, map[string]any{domain.KeyLastError: cause.Error(), "failed_topic": failed}); err != nil {
		return res, nil
	}
	next, err := esc.Step(ctx, nil)
	if err != nil {
		o.logger.Error("escalation failed", "conversation", o.conv.ID(), "error", err)
		return res, nil
	}
	return o.drive(ctx, next, nil)
}

func (o *Orchestrator) resetAll() {
	o.detach()
	for _, t := range o.topics.All() {
		t.Reset()
	}
	o.active = nil
	o.paused = nil
	o.triggers = nil
	o.resetRequested = false
	o.conv.Reset()
	o.logger.Debug("conversation reset", "conversation", o.conv.ID())
}

// abandon terminates the waiting chain before an explicit Start.
func (o *Orchestrator) abandon() {
	if o.active != nil && o.active.IsWaiting() {
		o.active.Terminate()
	}
	for _, t := range o.paused {
		t.Terminate()
	}
	o.paused = nil
	o.triggers = nil
	o.conv.CallStack().Clear()
}

func (o *Orchestrator) activate(t *topic.Topic, seed map[string]any) error {
	o.attach(t)
	return t.Activate(o.conv, seed)
}

func (o *Orchestrator) attach(t *topic.Topic) {
	o.detach()
	o.active = t
	o.activeSub = t.Events().SubscribeAll(o.observe)
}

func (o *Orchestrator) detach() {
	if o.activeSub != nil {
		o.activeSub()
		o.activeSub = nil
	}
}

// observe collects what the active topic publishes during a turn.
func (o *Orchestrator) observe(e *domain.Event) {
	o.emu.Lock()
	defer o.emu.Unlock()
	switch e.Type {
	case domain.EventMessage:
		o.replies = append(o.replies, domain.Reply{Kind: domain.ReplyMessage, Topic: e.Topic, Text: e.Message})
	case domain.EventCard:
		card := e.Card.Clone()
		o.replies = append(o.replies, domain.Reply{Kind: domain.ReplyCard, Topic: e.Topic, Card: &card})
	case domain.EventCustom:
		o.replies = append(o.replies, domain.Reply{Kind: domain.ReplyEvent, Topic: e.Topic, Event: e})
	case domain.EventTopicTriggered:
		if e.Trigger != nil {
			o.triggers = append(o.triggers, *e.Trigger)
		}
	case domain.EventResetRequested:
		o.resetRequested = true
	case domain.EventTopicLifecycle:
		o.emitTopicTransition(e)
	case domain.EventActivityLifecycle:
		o.emitActivityTransition(e)
	}
}

func (o *Orchestrator) say(text string) {
	topicName := ""
	if o.active != nil {
		topicName = o.active.Name()
	}
	o.emu.Lock()
	defer o.emu.Unlock()
	o.replies = append(o.replies, domain.Reply{Kind: domain.ReplyMessage, Topic: topicName, Text: text})
}

// utterance extracts the free text of an input for intent matching.
func utterance(input any) string {
	switch v := input.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if s, ok := v["text"].(string); ok {
			return strings.TrimSpace(s)
		}
	case nil:
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}
